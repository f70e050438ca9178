package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tally/internal/logger"
	"tally/internal/models"
	"tally/internal/remote"
	"tally/internal/testutil"
)

const testHighlightTTL = 5 * time.Second

func newTestCategoryStore(t *testing.T) (*CategoryStore, remote.Store, string) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	companyID := testutil.NewCompanyID()
	r := remote.NewGormStore(db)
	st := NewCategoryStore(companyID, r, testHighlightTTL, logger.Get())
	testutil.AssertNoError(t, st.Refetch(context.Background()))
	return st, r, companyID
}

// failingRemote wraps a real remote store and fails selected calls.
type failingRemote struct {
	remote.Store
	failInsert bool
	failUpdate bool
	failDelete bool
}

var errRemoteDown = errors.New("remote store unavailable")

func (f *failingRemote) InsertCategories(ctx context.Context, companyID string, rows []models.Category) ([]models.Category, error) {
	if f.failInsert {
		return nil, errRemoteDown
	}
	return f.Store.InsertCategories(ctx, companyID, rows)
}

func (f *failingRemote) UpdateCategory(ctx context.Context, companyID, id string, patch remote.CategoryPatch) (*models.Category, error) {
	if f.failUpdate {
		return nil, errRemoteDown
	}
	return f.Store.UpdateCategory(ctx, companyID, id, patch)
}

func (f *failingRemote) DeleteCategory(ctx context.Context, companyID, id string) error {
	if f.failDelete {
		return errRemoteDown
	}
	return f.Store.DeleteCategory(ctx, companyID, id)
}

// flakyUpdateRemote fails the nth UpdateCategory call and passes the rest
// through, to exercise partial-progress recovery.
type flakyUpdateRemote struct {
	remote.Store
	calls  int
	failAt int
}

func (f *flakyUpdateRemote) UpdateCategory(ctx context.Context, companyID, id string, patch remote.CategoryPatch) (*models.Category, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, errRemoteDown
	}
	return f.Store.UpdateCategory(ctx, companyID, id, patch)
}

func TestCategoryStoreCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("root", func(t *testing.T) {
		st, _, _ := newTestCategoryStore(t)

		created, err := st.Create(ctx, "Office Supplies", models.AccountTypeExpense, nil)
		testutil.AssertNoError(t, err)

		if created.ID == "" {
			t.Fatal("expected a non-empty id")
		}
		if !st.RecentlyChanged(created.ID) {
			t.Error("a created category should be highlighted")
		}
		if got := st.Categories(); len(got) != 1 || got[0].Name != "Office Supplies" {
			t.Errorf("unexpected cache contents: %+v", got)
		}
	})

	t.Run("under_parent_by_name", func(t *testing.T) {
		st, _, _ := newTestCategoryStore(t)

		_, err := st.Create(ctx, "Travel", models.AccountTypeExpense, nil)
		testutil.AssertNoError(t, err)

		parentRef := ByName("travel")
		child, err := st.Create(ctx, "Flights", models.AccountTypeExpense, &parentRef)
		testutil.AssertNoError(t, err)
		if child.ParentID == nil {
			t.Fatal("expected child to carry its parent id")
		}
	})

	t.Run("duplicate_name", func(t *testing.T) {
		st, _, _ := newTestCategoryStore(t)

		_, err := st.Create(ctx, "Rent", models.AccountTypeExpense, nil)
		testutil.AssertNoError(t, err)

		_, err = st.Create(ctx, "  RENT ", models.AccountTypeExpense, nil)
		testutil.AssertAppError(t, err, "NAME_CONFLICT")
	})

	t.Run("type_mismatch_with_parent", func(t *testing.T) {
		st, _, _ := newTestCategoryStore(t)

		parent, err := st.Create(ctx, "Sales", models.AccountTypeRevenue, nil)
		testutil.AssertNoError(t, err)

		parentRef := ByID(parent.ID)
		_, err = st.Create(ctx, "Postage", models.AccountTypeExpense, &parentRef)
		testutil.AssertAppError(t, err, "TYPE_MISMATCH")
	})

	t.Run("missing_parent", func(t *testing.T) {
		st, _, _ := newTestCategoryStore(t)

		parentRef := ByName("Nothing Here")
		_, err := st.Create(ctx, "Orphan", models.AccountTypeExpense, &parentRef)
		testutil.AssertAppError(t, err, "PARENT_NOT_FOUND")
	})

	t.Run("remote_failure_rolls_back", func(t *testing.T) {
		_, r, companyID := newTestCategoryStore(t)
		failing := &failingRemote{Store: r, failInsert: true}
		broken := NewCategoryStore(companyID, failing, testHighlightTTL, logger.Get())
		testutil.AssertNoError(t, broken.Refetch(ctx))

		_, err := broken.Create(ctx, "Doomed", models.AccountTypeExpense, nil)
		testutil.AssertAppError(t, err, "REMOTE_FAILURE")

		if got := broken.Categories(); len(got) != 0 {
			t.Errorf("expected empty cache after rollback, got %+v", got)
		}
	})
}

func TestCategoryStoreUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("rename", func(t *testing.T) {
		st, _, _ := newTestCategoryStore(t)

		created, err := st.Create(ctx, "Ofice Supplies", models.AccountTypeExpense, nil)
		testutil.AssertNoError(t, err)

		newName := "Office Supplies"
		updated, err := st.Update(ctx, ByID(created.ID), UpdatePatch{Name: &newName})
		testutil.AssertNoError(t, err)
		if updated.Name != "Office Supplies" {
			t.Errorf("expected renamed category, got %q", updated.Name)
		}
	})

	t.Run("rename_collision_needs_merge", func(t *testing.T) {
		st, _, _ := newTestCategoryStore(t)

		existing, err := st.Create(ctx, "Office Supplies", models.AccountTypeExpense, nil)
		testutil.AssertNoError(t, err)
		dup, err := st.Create(ctx, "Supplies", models.AccountTypeExpense, nil)
		testutil.AssertNoError(t, err)

		newName := "office supplies"
		_, err = st.Update(ctx, ByID(dup.ID), UpdatePatch{Name: &newName})

		var needsMerge *NeedsMergeError
		if !errors.As(err, &needsMerge) {
			t.Fatalf("expected NeedsMergeError, got %v", err)
		}
		if needsMerge.Existing.ID != existing.ID {
			t.Errorf("expected collision with %s, got %s", existing.ID, needsMerge.Existing.ID)
		}
		testutil.AssertAppError(t, err, "NEEDS_MERGE")
	})

	t.Run("move_rejects_cycle", func(t *testing.T) {
		st, _, _ := newTestCategoryStore(t)

		top, err := st.Create(ctx, "Top", models.AccountTypeExpense, nil)
		testutil.AssertNoError(t, err)
		topRef := ByID(top.ID)
		child, err := st.Create(ctx, "Child", models.AccountTypeExpense, &topRef)
		testutil.AssertNoError(t, err)

		childRef := ByID(child.ID)
		_, err = st.Move(ctx, ByID(top.ID), &childRef)
		testutil.AssertAppError(t, err, "CYCLE_DETECTED")

		selfRef := ByID(top.ID)
		_, err = st.Move(ctx, ByID(top.ID), &selfRef)
		testutil.AssertAppError(t, err, "CYCLE_DETECTED")
	})

	t.Run("retype_cascades_to_children", func(t *testing.T) {
		st, _, _ := newTestCategoryStore(t)

		parent, err := st.Create(ctx, "Materials", models.AccountTypeExpense, nil)
		testutil.AssertNoError(t, err)
		parentRef := ByID(parent.ID)
		child, err := st.Create(ctx, "Lumber", models.AccountTypeExpense, &parentRef)
		testutil.AssertNoError(t, err)

		cogs := models.AccountTypeCOGS
		_, err = st.Update(ctx, ByID(parent.ID), UpdatePatch{Type: &cogs})
		testutil.AssertNoError(t, err)

		got, err := st.Resolve(ByID(child.ID))
		testutil.AssertNoError(t, err)
		if got.Type != models.AccountTypeCOGS {
			t.Errorf("expected cascaded child type cogs, got %s", got.Type)
		}
	})

	t.Run("remote_failure_restores_snapshot", func(t *testing.T) {
		_, r, companyID := newTestCategoryStore(t)
		failing := &failingRemote{Store: r}
		st := NewCategoryStore(companyID, failing, testHighlightTTL, logger.Get())
		testutil.AssertNoError(t, st.Refetch(ctx))

		created, err := st.Create(ctx, "Stable", models.AccountTypeExpense, nil)
		testutil.AssertNoError(t, err)

		failing.failUpdate = true
		newName := "Renamed"
		_, err = st.Update(ctx, ByID(created.ID), UpdatePatch{Name: &newName})
		testutil.AssertAppError(t, err, "REMOTE_FAILURE")

		got, err := st.Resolve(ByID(created.ID))
		testutil.AssertNoError(t, err)
		if got.Name != "Stable" {
			t.Errorf("expected rollback to original name, got %q", got.Name)
		}
	})
}

func TestCategoryStoreDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("promotes_children_to_root", func(t *testing.T) {
		st, _, _ := newTestCategoryStore(t)

		parent, err := st.Create(ctx, "Utilities", models.AccountTypeExpense, nil)
		testutil.AssertNoError(t, err)
		parentRef := ByID(parent.ID)
		child, err := st.Create(ctx, "Electricity", models.AccountTypeExpense, &parentRef)
		testutil.AssertNoError(t, err)

		testutil.AssertNoError(t, st.Delete(ctx, ByID(parent.ID)))

		got, err := st.Resolve(ByID(child.ID))
		testutil.AssertNoError(t, err)
		if got.ParentID != nil {
			t.Errorf("expected child promoted to root, got parent %v", *got.ParentID)
		}
		if _, err := st.Resolve(ByID(parent.ID)); err == nil {
			t.Error("expected deleted category to be gone")
		}
	})

	t.Run("mid_promotion_failure_resyncs", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		t.Cleanup(func() { testutil.TeardownTestDB(t, db) })
		companyID := testutil.NewCompanyID()
		flaky := &flakyUpdateRemote{Store: remote.NewGormStore(db), failAt: 2}
		st := NewCategoryStore(companyID, flaky, testHighlightTTL, logger.Get())

		parent := testutil.CreateTestCategoryWith(t, db, companyID, "Utilities", models.AccountTypeExpense, nil)
		first := testutil.CreateTestCategoryWith(t, db, companyID, "Electricity", models.AccountTypeExpense, &parent.ID)
		second := testutil.CreateTestCategoryWith(t, db, companyID, "Water", models.AccountTypeExpense, &parent.ID)
		testutil.AssertNoError(t, st.Refetch(ctx))

		err := st.Delete(ctx, ByID(parent.ID))
		testutil.AssertAppError(t, err, "REMOTE_FAILURE")

		// The first child was promoted remotely before the failure; the
		// cache must reflect that, not the pre-delete snapshot.
		got, rerr := st.Resolve(ByID(first.ID))
		testutil.AssertNoError(t, rerr)
		if got.ParentID != nil {
			t.Error("expected the already-promoted child to show as root")
		}
		got, rerr = st.Resolve(ByID(second.ID))
		testutil.AssertNoError(t, rerr)
		if got.ParentID == nil || *got.ParentID != parent.ID {
			t.Error("expected the unpromoted child to keep its parent")
		}
		if _, rerr := st.Resolve(ByID(parent.ID)); rerr != nil {
			t.Error("expected the category to survive the failed delete")
		}
	})

	t.Run("refuses_when_in_use", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		t.Cleanup(func() { testutil.TeardownTestDB(t, db) })
		companyID := testutil.NewCompanyID()
		r := remote.NewGormStore(db)
		st := NewCategoryStore(companyID, r, testHighlightTTL, logger.Get())

		category := testutil.CreateTestCategory(t, db, companyID)
		testutil.CreateTestTransaction(t, db, companyID, &category.ID, nil)
		testutil.AssertNoError(t, st.Refetch(ctx))

		err := st.Delete(ctx, ByID(category.ID))
		testutil.AssertAppError(t, err, "CATEGORY_IN_USE")
	})

	t.Run("refuses_when_subcategory_in_use", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		t.Cleanup(func() { testutil.TeardownTestDB(t, db) })
		companyID := testutil.NewCompanyID()
		r := remote.NewGormStore(db)
		st := NewCategoryStore(companyID, r, testHighlightTTL, logger.Get())

		parent := testutil.CreateTestCategoryWith(t, db, companyID, "Parent", models.AccountTypeExpense, nil)
		child := testutil.CreateTestCategoryWith(t, db, companyID, "Child", models.AccountTypeExpense, &parent.ID)
		testutil.CreateTestTransaction(t, db, companyID, &child.ID, nil)
		testutil.AssertNoError(t, st.Refetch(ctx))

		err := st.Delete(ctx, ByID(parent.ID))
		testutil.AssertAppError(t, err, "CATEGORY_IN_USE")
	})

	t.Run("refuses_protected_link", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		t.Cleanup(func() { testutil.TeardownTestDB(t, db) })
		companyID := testutil.NewCompanyID()
		r := remote.NewGormStore(db)
		st := NewCategoryStore(companyID, r, testHighlightTTL, logger.Get())

		linked, _ := testutil.CreateTestLinkedCategory(t, db, companyID, "Checking", models.AccountTypeAsset)
		testutil.AssertNoError(t, st.Refetch(ctx))

		err := st.Delete(ctx, ByID(linked.ID))
		testutil.AssertAppError(t, err, "PROTECTED_LINK")
	})
}

func TestCategoryStoreSortOrder(t *testing.T) {
	ctx := context.Background()
	st, _, _ := newTestCategoryStore(t)

	// Created out of order on purpose.
	_, err := st.Create(ctx, "Travel", models.AccountTypeExpense, nil)
	testutil.AssertNoError(t, err)
	_, err = st.Create(ctx, "Bank", models.AccountTypeAsset, nil)
	testutil.AssertNoError(t, err)
	meals, err := st.Create(ctx, "Meals", models.AccountTypeExpense, nil)
	testutil.AssertNoError(t, err)
	mealsRef := ByID(meals.ID)
	_, err = st.Create(ctx, "dinners", models.AccountTypeExpense, &mealsRef)
	testutil.AssertNoError(t, err)
	_, err = st.Create(ctx, "Breakfasts", models.AccountTypeExpense, &mealsRef)
	testutil.AssertNoError(t, err)

	var names []string
	for _, c := range st.Categories() {
		names = append(names, c.Name)
	}
	want := []string{"Bank", "Meals", "Breakfasts", "dinners", "Travel"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("unexpected order:\n got %v\nwant %v", names, want)
	}
}

func TestCategoryStoreKeepsDeepNesting(t *testing.T) {
	ctx := context.Background()
	st, _, _ := newTestCategoryStore(t)

	root, err := st.Create(ctx, "Operating", models.AccountTypeExpense, nil)
	testutil.AssertNoError(t, err)
	rootRef := ByID(root.ID)
	child, err := st.Create(ctx, "Office", models.AccountTypeExpense, &rootRef)
	testutil.AssertNoError(t, err)
	childRef := ByID(child.ID)
	grand, err := st.Create(ctx, "Printer Ink", models.AccountTypeExpense, &childRef)
	testutil.AssertNoError(t, err)

	assertAll := func(t *testing.T) {
		t.Helper()
		var names []string
		for _, c := range st.Categories() {
			names = append(names, c.Name)
		}
		want := []string{"Operating", "Office", "Printer Ink"}
		if fmt.Sprint(names) != fmt.Sprint(want) {
			t.Fatalf("unexpected cache contents:\n got %v\nwant %v", names, want)
		}
		got, err := st.Resolve(ByID(grand.ID))
		testutil.AssertNoError(t, err)
		if got.ParentID == nil || *got.ParentID != child.ID {
			t.Error("grandchild lost its parent")
		}
	}

	assertAll(t)

	// A refetch must not shed the deeper levels either.
	testutil.AssertNoError(t, st.Refetch(ctx))
	assertAll(t)
}

func TestCategoryStoreHighlights(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })
	companyID := testutil.NewCompanyID()
	r := remote.NewGormStore(db)

	// Tiny TTL so expiry is observable.
	st := NewCategoryStore(companyID, r, 10*time.Millisecond, logger.Get())
	testutil.AssertNoError(t, st.Refetch(ctx))

	created, err := st.Create(ctx, "Flash", models.AccountTypeExpense, nil)
	testutil.AssertNoError(t, err)

	if !st.RecentlyChanged(created.ID) {
		t.Fatal("expected fresh highlight")
	}
	time.Sleep(20 * time.Millisecond)
	if st.RecentlyChanged(created.ID) {
		t.Error("expected highlight to expire")
	}
}

func TestCategoryStoreRefetchOverwritesCache(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })
	companyID := testutil.NewCompanyID()
	r := remote.NewGormStore(db)
	st := NewCategoryStore(companyID, r, testHighlightTTL, logger.Get())
	testutil.AssertNoError(t, st.Refetch(ctx))

	// A record created behind the store's back appears after refetch.
	testutil.CreateTestCategoryWith(t, db, companyID, "External", models.AccountTypeExpense, nil)
	if len(st.Categories()) != 0 {
		t.Fatal("cache should not see the record before refetch")
	}
	testutil.AssertNoError(t, st.Refetch(ctx))
	if len(st.Categories()) != 1 {
		t.Fatalf("expected refetched record, got %+v", st.Categories())
	}
}
