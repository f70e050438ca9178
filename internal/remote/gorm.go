package remote

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"tally/internal/models"
)

// gormStore implements Store on a GORM connection. Each method issues its
// own statements; no method opens a transaction that outlives the call, to
// match the capability contract.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a Store backed by the given GORM connection.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) ListCategories(ctx context.Context, companyID string) ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *gormStore) InsertCategories(ctx context.Context, companyID string, rows []models.Category) ([]models.Category, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	inserted := make([]models.Category, len(rows))
	copy(inserted, rows)
	for i := range inserted {
		inserted[i].CompanyID = companyID
		inserted[i].ID = ""
	}
	if err := s.db.WithContext(ctx).Create(&inserted).Error; err != nil {
		return nil, fmt.Errorf("insert categories: %w", err)
	}
	return inserted, nil
}

func (s *gormStore) UpdateCategory(ctx context.Context, companyID, id string, patch CategoryPatch) (*models.Category, error) {
	var category models.Category
	if err := s.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		First(&category).Error; err != nil {
		return nil, fmt.Errorf("load category %s: %w", id, err)
	}

	updates := make(map[string]interface{})
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Type != nil {
		updates["type"] = *patch.Type
	}
	if patch.ParentSet {
		updates["parent_id"] = patch.ParentID
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&category).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update category %s: %w", id, err)
		}
	}
	return &category, nil
}

func (s *gormStore) DeleteCategory(ctx context.Context, companyID, id string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		Delete(&models.Category{})
	if result.Error != nil {
		return fmt.Errorf("delete category %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("delete category %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *gormStore) ListPayees(ctx context.Context, companyID string) ([]models.Payee, error) {
	var payees []models.Payee
	if err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Find(&payees).Error; err != nil {
		return nil, fmt.Errorf("list payees: %w", err)
	}
	return payees, nil
}

func (s *gormStore) InsertPayee(ctx context.Context, companyID, name string) (*models.Payee, error) {
	payee := &models.Payee{CompanyID: companyID, Name: name}
	if err := s.db.WithContext(ctx).Create(payee).Error; err != nil {
		return nil, fmt.Errorf("insert payee: %w", err)
	}
	return payee, nil
}

func (s *gormStore) UpdatePayeeName(ctx context.Context, companyID, id, name string) (*models.Payee, error) {
	var payee models.Payee
	if err := s.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		First(&payee).Error; err != nil {
		return nil, fmt.Errorf("load payee %s: %w", id, err)
	}
	if err := s.db.WithContext(ctx).Model(&payee).Update("name", name).Error; err != nil {
		return nil, fmt.Errorf("update payee %s: %w", id, err)
	}
	return &payee, nil
}

func (s *gormStore) DeletePayee(ctx context.Context, companyID, id string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		Delete(&models.Payee{})
	if result.Error != nil {
		return fmt.Errorf("delete payee %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("delete payee %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *gormStore) CountCategoryRefs(ctx context.Context, companyID, categoryID string) (RefCounts, error) {
	var counts RefCounts

	if err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("company_id = ? AND (category_id = ? OR offset_category_id = ?)", companyID, categoryID, categoryID).
		Count(&counts.Transactions).Error; err != nil {
		return counts, fmt.Errorf("count transaction refs: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.ImportedTransaction{}).
		Where("company_id = ? AND category_id = ?", companyID, categoryID).
		Count(&counts.Imported).Error; err != nil {
		return counts, fmt.Errorf("count imported refs: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("company_id = ? AND category_id = ?", companyID, categoryID).
		Count(&counts.Ledger).Error; err != nil {
		return counts, fmt.Errorf("count ledger refs: %w", err)
	}

	return counts, nil
}

func (s *gormStore) CountPayeeRefs(ctx context.Context, companyID, payeeID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("company_id = ? AND payee_id = ?", companyID, payeeID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count payee refs: %w", err)
	}
	return count, nil
}

// RewriteCategoryRefs repoints every reference from one category to another.
// The selected and offsetting fields on transactions are rewritten
// independently; a transaction may reference the source in either or both.
func (s *gormStore) RewriteCategoryRefs(ctx context.Context, companyID, fromID, toID string) error {
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.Transaction{}).
		Where("company_id = ? AND category_id = ?", companyID, fromID).
		Update("category_id", toID).Error; err != nil {
		return fmt.Errorf("rewrite transaction category refs: %w", err)
	}
	if err := db.Model(&models.Transaction{}).
		Where("company_id = ? AND offset_category_id = ?", companyID, fromID).
		Update("offset_category_id", toID).Error; err != nil {
		return fmt.Errorf("rewrite transaction offset refs: %w", err)
	}
	if err := db.Model(&models.ImportedTransaction{}).
		Where("company_id = ? AND category_id = ?", companyID, fromID).
		Update("category_id", toID).Error; err != nil {
		return fmt.Errorf("rewrite imported refs: %w", err)
	}
	if err := db.Model(&models.LedgerEntry{}).
		Where("company_id = ? AND category_id = ?", companyID, fromID).
		Update("category_id", toID).Error; err != nil {
		return fmt.Errorf("rewrite ledger refs: %w", err)
	}
	return nil
}

func (s *gormStore) RewriteRuleCategoryName(ctx context.Context, companyID, fromName, toName string) error {
	if err := s.db.WithContext(ctx).Model(&models.AutomationRule{}).
		Where("company_id = ? AND category_name = ?", companyID, fromName).
		Update("category_name", toName).Error; err != nil {
		return fmt.Errorf("rewrite rule category name: %w", err)
	}
	return nil
}

func (s *gormStore) ExternalLink(ctx context.Context, companyID, linkID string) (*models.ExternalAccountLink, error) {
	var link models.ExternalAccountLink
	if err := s.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", linkID, companyID).
		First(&link).Error; err != nil {
		return nil, fmt.Errorf("load external link %s: %w", linkID, err)
	}
	return &link, nil
}

func (s *gormStore) UpdateExternalLinkName(ctx context.Context, companyID, linkID, name string) error {
	if err := s.db.WithContext(ctx).Model(&models.ExternalAccountLink{}).
		Where("id = ? AND company_id = ?", linkID, companyID).
		Update("display_name", name).Error; err != nil {
		return fmt.Errorf("update external link %s: %w", linkID, err)
	}
	return nil
}
