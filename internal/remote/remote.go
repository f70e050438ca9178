// Package remote defines the capability interface the category engine uses
// to reach the backing store. Every method is a single remote call scoped by
// company id; the store offers no transaction spanning multiple calls, so
// multi-step operations (merge, batch import) must order their calls to keep
// the inconsistency window small.
package remote

import (
	"context"

	"tally/internal/models"
)

// CategoryPatch describes a partial update to a category. Nil fields are
// left untouched. ParentSet distinguishes "leave the parent alone" from
// "set the parent to ParentID (nil clears it)".
type CategoryPatch struct {
	Name      *string
	Type      *models.AccountType
	ParentID  *string
	ParentSet bool
}

// Empty reports whether the patch changes nothing.
func (p CategoryPatch) Empty() bool {
	return p.Name == nil && p.Type == nil && !p.ParentSet
}

// RefCounts breaks down how many records reference a category, per table.
type RefCounts struct {
	Transactions int64 `json:"transactions"`
	Imported     int64 `json:"imported"`
	Ledger       int64 `json:"ledger"`
}

// Total returns the combined reference count.
func (r RefCounts) Total() int64 {
	return r.Transactions + r.Imported + r.Ledger
}

// Store is the remote store capability consumed by the category engine.
type Store interface {
	// Categories.
	ListCategories(ctx context.Context, companyID string) ([]models.Category, error)
	InsertCategories(ctx context.Context, companyID string, rows []models.Category) ([]models.Category, error)
	UpdateCategory(ctx context.Context, companyID, id string, patch CategoryPatch) (*models.Category, error)
	DeleteCategory(ctx context.Context, companyID, id string) error

	// Payees.
	ListPayees(ctx context.Context, companyID string) ([]models.Payee, error)
	InsertPayee(ctx context.Context, companyID, name string) (*models.Payee, error)
	UpdatePayeeName(ctx context.Context, companyID, id, name string) (*models.Payee, error)
	DeletePayee(ctx context.Context, companyID, id string) error

	// Foreign references to categories.
	CountCategoryRefs(ctx context.Context, companyID, categoryID string) (RefCounts, error)
	CountPayeeRefs(ctx context.Context, companyID, payeeID string) (int64, error)
	RewriteCategoryRefs(ctx context.Context, companyID, fromID, toID string) error
	RewriteRuleCategoryName(ctx context.Context, companyID, fromName, toName string) error

	// Protected external account links.
	ExternalLink(ctx context.Context, companyID, linkID string) (*models.ExternalAccountLink, error)
	UpdateExternalLinkName(ctx context.Context, companyID, linkID, name string) error
}
