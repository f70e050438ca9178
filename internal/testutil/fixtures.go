package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"tally/internal/models"
	"tally/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewCompanyID returns a fresh tenant id for a test.
func NewCompanyID() string {
	return uuid.New()
}

// CreateTestCategory creates a root expense category with a unique name.
func CreateTestCategory(t *testing.T, db *gorm.DB, companyID string) *models.Category {
	t.Helper()
	name := fmt.Sprintf("Test Category %d", nextID())
	return CreateTestCategoryWith(t, db, companyID, name, models.AccountTypeExpense, nil)
}

// CreateTestCategoryWith creates a category with the given name, type and parent.
func CreateTestCategoryWith(t *testing.T, db *gorm.DB, companyID, name string, accountType models.AccountType, parentID *string) *models.Category {
	t.Helper()

	category := &models.Category{
		CompanyID: companyID,
		Name:      name,
		Type:      accountType,
		ParentID:  parentID,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestLinkedCategory creates a category protected by an external
// account link.
func CreateTestLinkedCategory(t *testing.T, db *gorm.DB, companyID, name string, accountType models.AccountType) (*models.Category, *models.ExternalAccountLink) {
	t.Helper()

	link := &models.ExternalAccountLink{
		CompanyID:   companyID,
		DisplayName: name,
		Provider:    "test-bank",
	}
	if err := db.Create(link).Error; err != nil {
		t.Fatalf("failed to create test external link: %v", err)
	}

	category := &models.Category{
		CompanyID:      companyID,
		Name:           name,
		Type:           accountType,
		ExternalLinkID: &link.ID,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create linked test category: %v", err)
	}
	return category, link
}

// CreateTestPayee creates a payee with a unique name.
func CreateTestPayee(t *testing.T, db *gorm.DB, companyID string) *models.Payee {
	t.Helper()
	return CreateTestPayeeWithName(t, db, companyID, fmt.Sprintf("Test Payee %d", nextID()))
}

// CreateTestPayeeWithName creates a payee with the given name.
func CreateTestPayeeWithName(t *testing.T, db *gorm.DB, companyID, name string) *models.Payee {
	t.Helper()

	payee := &models.Payee{
		CompanyID: companyID,
		Name:      name,
	}
	if err := db.Create(payee).Error; err != nil {
		t.Fatalf("failed to create test payee: %v", err)
	}
	return payee
}

// CreateTestTransaction creates a transaction referencing the given
// category. offsetCategoryID may be nil.
func CreateTestTransaction(t *testing.T, db *gorm.DB, companyID string, categoryID *string, offsetCategoryID *string) *models.Transaction {
	t.Helper()

	txn := &models.Transaction{
		CompanyID:        companyID,
		Date:             time.Now(),
		Amount:           decimal.NewFromInt(100),
		Memo:             fmt.Sprintf("Test Transaction %d", nextID()),
		CategoryID:       categoryID,
		OffsetCategoryID: offsetCategoryID,
	}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return txn
}

// CreateTestLedgerEntry posts a debit journal line against a category.
func CreateTestLedgerEntry(t *testing.T, db *gorm.DB, companyID, transactionID, categoryID string) *models.LedgerEntry {
	t.Helper()

	entry := &models.LedgerEntry{
		CompanyID:     companyID,
		TransactionID: transactionID,
		CategoryID:    categoryID,
		Side:          models.EntrySideDebit,
		Amount:        decimal.NewFromInt(100),
	}
	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("failed to create test ledger entry: %v", err)
	}
	return entry
}

// CreateTestRule creates an automation rule targeting a category by name.
func CreateTestRule(t *testing.T, db *gorm.DB, companyID, categoryName string) *models.AutomationRule {
	t.Helper()

	rule := &models.AutomationRule{
		CompanyID:    companyID,
		Name:         fmt.Sprintf("Test Rule %d", nextID()),
		MatchPattern: fmt.Sprintf("PATTERN-%d", nextID()),
		CategoryName: categoryName,
	}
	if err := db.Create(rule).Error; err != nil {
		t.Fatalf("failed to create test rule: %v", err)
	}
	return rule
}
