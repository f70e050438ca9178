package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"tally/internal/logger"
	"tally/internal/merge"
	"tally/internal/models"
	"tally/internal/notify"
	"tally/internal/remote"
	"tally/internal/store"
	"tally/internal/testutil"
)

func setupPipeline(t *testing.T) (*Pipeline, *store.Manager, string) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	companyID := testutil.NewCompanyID()
	r := remote.NewGormStore(db)
	broker := notify.NewBroker()
	stores := store.NewManager(r, broker, 5*time.Second, logger.Get())
	t.Cleanup(stores.Close)

	sequencer := NewSequencer(stores, merge.NewEngine(r, logger.Get()), logger.Get())
	return sequencer.ForCompany(companyID), stores, companyID
}

func TestPipelineProposeAndConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("later_step_references_earlier_creation", func(t *testing.T) {
		p, stores, companyID := setupPipeline(t)

		proposal, err := p.Propose(ctx, []Request{
			{Action: ActionCreateCategory, Name: "Travel", Type: "expense"},
			{Action: ActionCreateCategory, Name: "Flights", Type: "expense", Parent: "Travel"},
		})
		testutil.AssertNoError(t, err)
		if p.State() != StateAwaitingConfirmation {
			t.Fatalf("expected awaiting_confirmation, got %s", p.State())
		}
		if len(proposal.Steps) != 2 {
			t.Fatalf("expected 2 steps, got %v", proposal.Steps)
		}
		if !strings.Contains(proposal.Steps[1], "to be created") {
			t.Errorf("a forward reference should be marked, got %q", proposal.Steps[1])
		}

		report, err := p.Confirm(ctx)
		testutil.AssertNoError(t, err)
		if report.State != StateIdle {
			t.Fatalf("expected idle after clean run, got %s", report.State)
		}
		for _, step := range report.Steps {
			if step.Status != StepDone {
				t.Errorf("step %d: expected done, got %s (%s)", step.Index, step.Status, step.Detail)
			}
		}

		st, err := stores.Categories(ctx, companyID)
		testutil.AssertNoError(t, err)
		child, err := st.Resolve(store.ByName("Flights"))
		testutil.AssertNoError(t, err)
		if child.ParentID == nil {
			t.Error("expected Flights created under Travel")
		}
	})

	t.Run("move_under_parent_created_earlier", func(t *testing.T) {
		p, stores, companyID := setupPipeline(t)

		st, err := stores.Categories(ctx, companyID)
		testutil.AssertNoError(t, err)
		existing, err := st.Create(ctx, "Flights", models.AccountTypeExpense, nil)
		testutil.AssertNoError(t, err)

		proposal, err := p.Propose(ctx, []Request{
			{Action: ActionCreateCategory, Name: "Travel", Type: "expense"},
			{Action: ActionMoveCategory, Name: "Flights", Parent: "Travel"},
		})
		testutil.AssertNoError(t, err)
		if !strings.Contains(proposal.Steps[1], "to be created") {
			t.Errorf("the pending parent should be marked, got %q", proposal.Steps[1])
		}

		report, err := p.Confirm(ctx)
		testutil.AssertNoError(t, err)
		if report.State != StateIdle {
			t.Fatalf("expected idle after clean run, got %s; steps: %+v", report.State, report.Steps)
		}

		parent, err := st.Resolve(store.ByName("Travel"))
		testutil.AssertNoError(t, err)
		moved, err := st.Resolve(store.ByID(existing.ID))
		testutil.AssertNoError(t, err)
		if moved.ParentID == nil || *moved.ParentID != parent.ID {
			t.Errorf("expected %q moved under the freshly created parent, got %v", moved.Name, moved.ParentID)
		}
	})

	t.Run("unresolvable_reference_rejected_at_propose", func(t *testing.T) {
		p, _, _ := setupPipeline(t)

		_, err := p.Propose(ctx, []Request{
			{Action: ActionRenameCategory, Name: "Nothing Here", NewName: "Still Nothing"},
		})
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
		if p.State() != StateIdle {
			t.Errorf("a failed propose leaves the pipeline idle, got %s", p.State())
		}
	})

	t.Run("invalid_command_rejected_at_propose", func(t *testing.T) {
		p, _, _ := setupPipeline(t)

		_, err := p.Propose(ctx, []Request{{Action: "explode"}})
		testutil.AssertAppError(t, err, "INVALID_COMMAND")
	})

	t.Run("empty_batch", func(t *testing.T) {
		p, _, _ := setupPipeline(t)
		_, err := p.Propose(ctx, nil)
		testutil.AssertAppError(t, err, "INVALID_COMMAND")
	})
}

func TestPipelineCancel(t *testing.T) {
	ctx := context.Background()
	p, stores, companyID := setupPipeline(t)

	_, err := p.Propose(ctx, []Request{
		{Action: ActionCreateCategory, Name: "Doomed", Type: "expense"},
	})
	testutil.AssertNoError(t, err)

	if !p.Cancel() {
		t.Fatal("expected cancel to report a dropped batch")
	}
	if p.State() != StateIdle {
		t.Fatalf("expected idle after cancel, got %s", p.State())
	}
	if p.Cancel() {
		t.Error("a second cancel has nothing to drop")
	}

	// Nothing ran.
	st, err := stores.Categories(ctx, companyID)
	testutil.AssertNoError(t, err)
	if _, err := st.Resolve(store.ByName("Doomed")); err == nil {
		t.Error("cancelled batch must have no effect")
	}

	_, err = p.Confirm(ctx)
	testutil.AssertAppError(t, err, "NOTHING_TO_CONFIRM")
}

func TestPipelinePartialFailure(t *testing.T) {
	ctx := context.Background()
	p, stores, companyID := setupPipeline(t)

	st, err := stores.Categories(ctx, companyID)
	testutil.AssertNoError(t, err)

	// The middle step fails at execution time: by then "First" exists, so
	// creating it again collides.
	_, err = p.Propose(ctx, []Request{
		{Action: ActionCreateCategory, Name: "First", Type: "expense"},
		{Action: ActionCreateCategory, Name: "First", Type: "expense"},
		{Action: ActionCreateCategory, Name: "Third", Type: "expense"},
	})
	testutil.AssertNoError(t, err)

	report, err := p.Confirm(ctx)
	testutil.AssertNoError(t, err)
	if report.State != StatePartiallyFailed {
		t.Fatalf("expected partially_failed, got %s", report.State)
	}

	if len(report.Steps) != 3 {
		t.Fatalf("every step must appear in the report, got %d", len(report.Steps))
	}
	if report.Steps[0].Status != StepDone {
		t.Errorf("step 0: expected done, got %s", report.Steps[0].Status)
	}
	if report.Steps[1].Status != StepFailed || report.Steps[1].Detail == "" {
		t.Errorf("step 1: expected failed with detail, got %+v", report.Steps[1])
	}
	if report.Steps[2].Status != StepSkipped {
		t.Errorf("step 2: expected skipped, got %s", report.Steps[2].Status)
	}

	// Completed work stands; skipped work never happened.
	if _, err := st.Resolve(store.ByName("First")); err != nil {
		t.Error("the completed step's category must exist")
	}
	if _, err := st.Resolve(store.ByName("Third")); err == nil {
		t.Error("the skipped step's category must not exist")
	}

	p.Acknowledge()
	if p.State() != StateIdle {
		t.Errorf("expected idle after acknowledge, got %s", p.State())
	}
}

func TestPipelineMergeCommand(t *testing.T) {
	ctx := context.Background()
	p, stores, companyID := setupPipeline(t)

	st, err := stores.Categories(ctx, companyID)
	testutil.AssertNoError(t, err)
	_, err = st.Create(ctx, "Office Supplies", models.AccountTypeExpense, nil)
	testutil.AssertNoError(t, err)
	_, err = st.Create(ctx, "Stationery", models.AccountTypeExpense, nil)
	testutil.AssertNoError(t, err)

	_, err = p.Propose(ctx, []Request{
		{Action: ActionMergeCategories, Target: "Office Supplies", Sources: []string{"Stationery"}},
	})
	testutil.AssertNoError(t, err)

	report, err := p.Confirm(ctx)
	testutil.AssertNoError(t, err)
	if report.State != StateIdle {
		t.Fatalf("expected idle, got %s; steps: %+v", report.State, report.Steps)
	}

	if _, err := st.Resolve(store.ByName("Stationery")); err == nil {
		t.Error("merged source must be gone")
	}
	if _, err := st.Resolve(store.ByName("Office Supplies")); err != nil {
		t.Error("merge target must survive")
	}
}

func TestPipelineRejectsProposeWhileExecuting(t *testing.T) {
	p, _, _ := setupPipeline(t)
	p.mu.Lock()
	p.state = StateExecuting
	p.mu.Unlock()

	_, err := p.Propose(context.Background(), []Request{
		{Action: ActionCreateCategory, Name: "X", Type: "expense"},
	})
	testutil.AssertAppError(t, err, "BATCH_IN_PROGRESS")
}
