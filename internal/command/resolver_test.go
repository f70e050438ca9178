package command

import (
	"testing"

	"tally/internal/models"
	"tally/internal/testutil"
)

func named(id, name string) models.Category {
	c := models.Category{Name: name, Type: models.AccountTypeExpense}
	c.ID = id
	return c
}

func TestResolverCategory(t *testing.T) {
	categories := []models.Category{
		named("0198a6b2-0000-7000-8000-000000000001", "Office Supplies"),
		named("0198a6b2-0000-7000-8000-000000000002", "Office Rent"),
		named("0198a6b2-0000-7000-8000-000000000003", "Travel"),
	}
	r := NewResolver(categories, nil)

	t.Run("by_id", func(t *testing.T) {
		c, err := r.Category("0198a6b2-0000-7000-8000-000000000003")
		testutil.AssertNoError(t, err)
		if c.Name != "Travel" {
			t.Errorf("expected Travel, got %s", c.Name)
		}
	})

	t.Run("exact_name_case_insensitive", func(t *testing.T) {
		c, err := r.Category("office supplies")
		testutil.AssertNoError(t, err)
		if c.Name != "Office Supplies" {
			t.Errorf("expected Office Supplies, got %s", c.Name)
		}
	})

	t.Run("unique_substring", func(t *testing.T) {
		c, err := r.Category("trav")
		testutil.AssertNoError(t, err)
		if c.Name != "Travel" {
			t.Errorf("expected Travel, got %s", c.Name)
		}
	})

	t.Run("ambiguous_substring", func(t *testing.T) {
		_, err := r.Category("office")
		testutil.AssertAppError(t, err, "AMBIGUOUS_REFERENCE")
	})

	t.Run("no_match", func(t *testing.T) {
		_, err := r.Category("utilities")
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := r.Category("  ")
		testutil.AssertAppError(t, err, "INVALID_COMMAND")
	})
}

func TestResolverPayee(t *testing.T) {
	payees := []models.Payee{
		{CompanyID: "c", Name: "Acme Corp"},
		{CompanyID: "c", Name: "Acme West"},
	}
	payees[0].ID = "0198a6b2-0000-7000-8000-00000000000a"
	payees[1].ID = "0198a6b2-0000-7000-8000-00000000000b"
	r := NewResolver(nil, payees)

	if _, err := r.Payee("acme"); err == nil {
		t.Error("expected ambiguity between the two Acmes")
	}
	p, err := r.Payee("west")
	testutil.AssertNoError(t, err)
	if p.Name != "Acme West" {
		t.Errorf("expected Acme West, got %s", p.Name)
	}
}

func TestRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"create_ok", Request{Action: ActionCreateCategory, Name: "Rent", Type: "expense"}, false},
		{"create_missing_type", Request{Action: ActionCreateCategory, Name: "Rent"}, true},
		{"create_bad_type", Request{Action: ActionCreateCategory, Name: "Rent", Type: "sideways"}, true},
		{"rename_ok", Request{Action: ActionRenameCategory, Name: "Rent", NewName: "Rent Expense"}, false},
		{"rename_missing_new_name", Request{Action: ActionRenameCategory, Name: "Rent"}, true},
		{"move_needs_parent_or_root", Request{Action: ActionMoveCategory, Name: "Rent"}, true},
		{"move_to_root_ok", Request{Action: ActionMoveCategory, Name: "Rent", ToRoot: true}, false},
		{"merge_ok", Request{Action: ActionMergeCategories, Target: "A", Sources: []string{"B"}}, false},
		{"merge_no_sources", Request{Action: ActionMergeCategories, Target: "A"}, true},
		{"unknown_action", Request{Action: "explode"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected a validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
