package remote

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"tally/internal/models"
	"tally/internal/testutil"
)

func TestGormStoreCategories(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	s := NewGormStore(db)
	companyID := testutil.NewCompanyID()

	t.Run("insert_assigns_ids_and_company", func(t *testing.T) {
		rows, err := s.InsertCategories(ctx, companyID, []models.Category{
			{Name: "Rent", Type: models.AccountTypeExpense},
			{Name: "Sales", Type: models.AccountTypeRevenue},
		})
		testutil.AssertNoError(t, err)
		if len(rows) != 2 {
			t.Fatalf("expected 2 inserted rows, got %d", len(rows))
		}
		for _, row := range rows {
			if row.ID == "" || row.CompanyID != companyID {
				t.Errorf("row not fully populated: %+v", row)
			}
		}
	})

	t.Run("list_is_scoped_to_company", func(t *testing.T) {
		testutil.CreateTestCategory(t, db, testutil.NewCompanyID())
		rows, err := s.ListCategories(ctx, companyID)
		testutil.AssertNoError(t, err)
		if len(rows) != 2 {
			t.Errorf("expected 2 rows for company, got %d", len(rows))
		}
	})

	t.Run("update_applies_patch", func(t *testing.T) {
		parent := testutil.CreateTestCategoryWith(t, db, companyID, "Operating", models.AccountTypeExpense, nil)
		child := testutil.CreateTestCategoryWith(t, db, companyID, "Postage", models.AccountTypeExpense, nil)

		name := "Shipping"
		updated, err := s.UpdateCategory(ctx, companyID, child.ID, CategoryPatch{
			Name:      &name,
			ParentID:  &parent.ID,
			ParentSet: true,
		})
		testutil.AssertNoError(t, err)
		if updated.Name != "Shipping" {
			t.Errorf("expected renamed row, got %q", updated.Name)
		}

		var reloaded models.Category
		testutil.AssertNoError(t, db.First(&reloaded, "id = ?", child.ID).Error)
		if reloaded.ParentID == nil || *reloaded.ParentID != parent.ID {
			t.Error("expected parent to be persisted")
		}
	})

	t.Run("parent_set_clears_parent", func(t *testing.T) {
		parent := testutil.CreateTestCategoryWith(t, db, companyID, "Group", models.AccountTypeExpense, nil)
		child := testutil.CreateTestCategoryWith(t, db, companyID, "Member", models.AccountTypeExpense, &parent.ID)

		updated, err := s.UpdateCategory(ctx, companyID, child.ID, CategoryPatch{ParentSet: true})
		testutil.AssertNoError(t, err)
		_ = updated

		var reloaded models.Category
		testutil.AssertNoError(t, db.First(&reloaded, "id = ?", child.ID).Error)
		if reloaded.ParentID != nil {
			t.Error("expected parent cleared")
		}
	})

	t.Run("delete_missing_row", func(t *testing.T) {
		err := s.DeleteCategory(ctx, companyID, "0198a6b2-0000-7000-8000-000000000001")
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("expected record-not-found, got %v", err)
		}
	})

	t.Run("delete_wrong_company", func(t *testing.T) {
		row := testutil.CreateTestCategory(t, db, companyID)
		err := s.DeleteCategory(ctx, testutil.NewCompanyID(), row.ID)
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("expected record-not-found across companies, got %v", err)
		}
	})
}

func TestGormStoreCountCategoryRefs(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	s := NewGormStore(db)
	companyID := testutil.NewCompanyID()
	cat := testutil.CreateTestCategoryWith(t, db, companyID, "Fuel", models.AccountTypeExpense, nil)
	other := testutil.CreateTestCategoryWith(t, db, companyID, "Tolls", models.AccountTypeExpense, nil)

	// One transaction selects it, one offsets against it, one does both.
	testutil.CreateTestTransaction(t, db, companyID, &cat.ID, nil)
	testutil.CreateTestTransaction(t, db, companyID, &other.ID, &cat.ID)
	both := testutil.CreateTestTransaction(t, db, companyID, &cat.ID, &cat.ID)
	testutil.CreateTestLedgerEntry(t, db, companyID, both.ID, cat.ID)

	counts, err := s.CountCategoryRefs(ctx, companyID, cat.ID)
	testutil.AssertNoError(t, err)
	if counts.Transactions != 3 {
		t.Errorf("expected 3 transaction refs, got %d", counts.Transactions)
	}
	if counts.Ledger != 1 {
		t.Errorf("expected 1 ledger ref, got %d", counts.Ledger)
	}
	if counts.Total() != 4 {
		t.Errorf("expected total 4, got %d", counts.Total())
	}

	otherCounts, err := s.CountCategoryRefs(ctx, companyID, other.ID)
	testutil.AssertNoError(t, err)
	if otherCounts.Total() != 1 {
		t.Errorf("expected total 1 for the other category, got %d", otherCounts.Total())
	}
}

func TestGormStoreRewriteCategoryRefs(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	s := NewGormStore(db)
	companyID := testutil.NewCompanyID()
	from := testutil.CreateTestCategoryWith(t, db, companyID, "Old", models.AccountTypeExpense, nil)
	to := testutil.CreateTestCategoryWith(t, db, companyID, "New", models.AccountTypeExpense, nil)
	keep := testutil.CreateTestCategoryWith(t, db, companyID, "Keep", models.AccountTypeExpense, nil)

	// Selected and offsetting references move independently.
	mixed := testutil.CreateTestTransaction(t, db, companyID, &from.ID, &keep.ID)
	offsetOnly := testutil.CreateTestTransaction(t, db, companyID, &keep.ID, &from.ID)
	testutil.CreateTestLedgerEntry(t, db, companyID, mixed.ID, from.ID)

	testutil.AssertNoError(t, s.RewriteCategoryRefs(ctx, companyID, from.ID, to.ID))

	var reloaded models.Transaction
	testutil.AssertNoError(t, db.First(&reloaded, "id = ?", mixed.ID).Error)
	if reloaded.CategoryID == nil || *reloaded.CategoryID != to.ID {
		t.Error("selected reference was not rewritten")
	}
	if reloaded.OffsetCategoryID == nil || *reloaded.OffsetCategoryID != keep.ID {
		t.Error("an unrelated offsetting reference must not move")
	}

	reloaded = models.Transaction{}
	testutil.AssertNoError(t, db.First(&reloaded, "id = ?", offsetOnly.ID).Error)
	if reloaded.OffsetCategoryID == nil || *reloaded.OffsetCategoryID != to.ID {
		t.Error("offsetting reference was not rewritten")
	}
	if reloaded.CategoryID == nil || *reloaded.CategoryID != keep.ID {
		t.Error("an unrelated selected reference must not move")
	}

	var entry models.LedgerEntry
	testutil.AssertNoError(t, db.First(&entry, "transaction_id = ?", mixed.ID).Error)
	if entry.CategoryID != to.ID {
		t.Error("ledger reference was not rewritten")
	}
}

func TestGormStoreRewriteRuleCategoryName(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	s := NewGormStore(db)
	companyID := testutil.NewCompanyID()
	testutil.CreateTestRule(t, db, companyID, "Meals")
	testutil.CreateTestRule(t, db, companyID, "Travel")

	testutil.AssertNoError(t, s.RewriteRuleCategoryName(ctx, companyID, "Meals", "Meals & Entertainment"))

	var rules []models.AutomationRule
	testutil.AssertNoError(t, db.Where("company_id = ?", companyID).Find(&rules).Error)
	names := map[string]bool{}
	for _, r := range rules {
		names[r.CategoryName] = true
	}
	if !names["Meals & Entertainment"] || names["Meals"] {
		t.Errorf("expected rule rename, got %v", names)
	}
	if !names["Travel"] {
		t.Error("unrelated rule must keep its name")
	}
}

func TestGormStorePayees(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	s := NewGormStore(db)
	companyID := testutil.NewCompanyID()

	payee, err := s.InsertPayee(ctx, companyID, "Acme")
	testutil.AssertNoError(t, err)
	if payee.ID == "" {
		t.Fatal("expected an assigned id")
	}

	renamed, err := s.UpdatePayeeName(ctx, companyID, payee.ID, "Acme Corp")
	testutil.AssertNoError(t, err)
	if renamed.Name != "Acme Corp" {
		t.Errorf("expected renamed payee, got %q", renamed.Name)
	}

	testutil.CreateTestTransaction(t, db, companyID, nil, nil)
	count, err := s.CountPayeeRefs(ctx, companyID, payee.ID)
	testutil.AssertNoError(t, err)
	if count != 0 {
		t.Errorf("expected no refs, got %d", count)
	}

	testutil.AssertNoError(t, s.DeletePayee(ctx, companyID, payee.ID))
	if err := s.DeletePayee(ctx, companyID, payee.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected record-not-found on second delete, got %v", err)
	}
}
