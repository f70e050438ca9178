package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	apperrors "tally/internal/errors"
	"tally/internal/merge"
	"tally/internal/models"
	"tally/internal/store"
)

// State is the sequencer's lifecycle position.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateExecuting            State = "executing"
	StatePartiallyFailed      State = "partially_failed"
)

// StepStatus is the outcome of one executed step.
type StepStatus string

const (
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// Proposal is the confirmation prompt for a queued batch. Nothing has been
// executed when a Proposal is returned.
type Proposal struct {
	State   State    `json:"state"`
	Steps   []string `json:"steps"`
	Summary string   `json:"summary"`
}

// StepResult records one step of an executed batch, verbatim.
type StepResult struct {
	Index   int        `json:"index"`
	Summary string     `json:"summary"`
	Status  StepStatus `json:"status"`
	Detail  string     `json:"detail,omitempty"`
}

// Report is the outcome of a confirmed batch.
type Report struct {
	State State        `json:"state"`
	Steps []StepResult `json:"steps"`
}

// Pipeline sequences one company's command batches: resolve, confirm,
// execute strictly in order, stop on first failure. A batch's later steps
// may depend on records created by earlier steps, so the pipeline refetches
// the stores between steps and never resolves against a stale snapshot.
type Pipeline struct {
	companyID string
	stores    *store.Manager
	merger    *merge.Engine
	log       *zap.SugaredLogger

	mu    sync.Mutex
	state State
	queue []Request
}

// Sequencer hands out one Pipeline per company.
type Sequencer struct {
	stores *store.Manager
	merger *merge.Engine
	log    *zap.SugaredLogger

	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

// NewSequencer creates a sequencer over the given stores and merge engine.
func NewSequencer(stores *store.Manager, merger *merge.Engine, log *zap.SugaredLogger) *Sequencer {
	return &Sequencer{
		stores:    stores,
		merger:    merger,
		log:       log,
		pipelines: make(map[string]*Pipeline),
	}
}

// ForCompany returns the company's pipeline, creating it on first use.
func (s *Sequencer) ForCompany(companyID string) *Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pipelines[companyID]; ok {
		return p
	}
	p := &Pipeline{
		companyID: companyID,
		stores:    s.stores,
		merger:    s.merger,
		log:       s.log,
		state:     StateIdle,
	}
	s.pipelines[companyID] = p
	return p
}

// State returns the pipeline's current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Propose validates and queues a batch, returning the confirmation prompt.
// Every reference is resolved now so an absent or ambiguous reference is
// surfaced before anything runs; a reference that an earlier command in the
// same batch will create is allowed and marked as such. Proposing replaces
// any batch still awaiting confirmation.
func (p *Pipeline) Propose(ctx context.Context, requests []Request) (*Proposal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateExecuting {
		return nil, apperrors.ErrBatchInProgress
	}
	if len(requests) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidCommand, "no commands given")
	}

	for _, req := range requests {
		if err := req.Validate(); err != nil {
			return nil, err
		}
	}

	cats, payees, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	resolver := NewResolver(cats, payees)

	// Names that earlier commands in this batch will create; later commands
	// may reference them even though they do not exist yet.
	pendingCategories := make(map[string]bool)
	pendingPayees := make(map[string]bool)

	steps := make([]string, 0, len(requests))
	for _, req := range requests {
		summary, err := p.describe(req, resolver, pendingCategories, pendingPayees)
		if err != nil {
			return nil, err
		}
		steps = append(steps, summary)
		switch req.Action {
		case ActionCreateCategory:
			pendingCategories[strings.ToLower(strings.TrimSpace(req.Name))] = true
		case ActionCreatePayee:
			pendingPayees[strings.ToLower(strings.TrimSpace(req.Name))] = true
		case ActionRenameCategory:
			pendingCategories[strings.ToLower(strings.TrimSpace(req.NewName))] = true
		case ActionRenamePayee:
			pendingPayees[strings.ToLower(strings.TrimSpace(req.NewName))] = true
		}
	}

	p.queue = append([]Request(nil), requests...)
	p.state = StateAwaitingConfirmation

	var b strings.Builder
	fmt.Fprintf(&b, "About to run %d command(s):\n", len(steps))
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString("Confirm to proceed.")

	return &Proposal{State: p.state, Steps: steps, Summary: b.String()}, nil
}

// Cancel discards a queued batch with no remote effect. Reports whether
// anything was cancelled.
func (p *Pipeline) Cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateAwaitingConfirmation {
		return false
	}
	p.queue = nil
	p.state = StateIdle
	return true
}

// Confirm executes the queued batch strictly in sequence. After each
// successful step the stores are refetched before the next step's
// references are resolved, so a record created by step N is visible to
// step N+1. A failed step stops the batch; completed steps stand, and the
// report lists every step's outcome.
func (p *Pipeline) Confirm(ctx context.Context) (*Report, error) {
	p.mu.Lock()
	if p.state != StateAwaitingConfirmation {
		p.mu.Unlock()
		return nil, apperrors.ErrNothingToConfirm
	}
	queue := p.queue
	p.queue = nil
	p.state = StateExecuting
	p.mu.Unlock()

	report := &Report{}
	failed := false

	for i, req := range queue {
		if failed {
			report.Steps = append(report.Steps, StepResult{
				Index:   i,
				Summary: string(req.Action),
				Status:  StepSkipped,
			})
			continue
		}

		if i > 0 {
			// Stale local state must never resolve a reference created
			// earlier in the same batch.
			if err := p.refetch(ctx); err != nil {
				p.log.Errorw("refetch between batch steps failed",
					"company_id", p.companyID, "step", i, "error", err)
			}
		}

		summary, detail, err := p.execute(ctx, req)
		if err != nil {
			failed = true
			report.Steps = append(report.Steps, StepResult{
				Index:   i,
				Summary: summary,
				Status:  StepFailed,
				Detail:  err.Error(),
			})
			p.log.Warnw("batch stopped on failed step",
				"company_id", p.companyID, "step", i, "action", req.Action, "error", err)
			continue
		}
		report.Steps = append(report.Steps, StepResult{
			Index:   i,
			Summary: summary,
			Status:  StepDone,
			Detail:  detail,
		})
	}

	p.mu.Lock()
	if failed {
		p.state = StatePartiallyFailed
	} else {
		p.state = StateIdle
	}
	report.State = p.state
	p.mu.Unlock()
	return report, nil
}

// Acknowledge clears a partially-failed state back to idle once the caller
// has seen the report.
func (p *Pipeline) Acknowledge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StatePartiallyFailed {
		p.state = StateIdle
	}
}

func (p *Pipeline) snapshot(ctx context.Context) ([]models.Category, []models.Payee, error) {
	st, err := p.stores.Categories(ctx, p.companyID)
	if err != nil {
		return nil, nil, err
	}
	ps, err := p.stores.Payees(ctx, p.companyID)
	if err != nil {
		return nil, nil, err
	}
	return st.Categories(), ps.Payees(), nil
}

func (p *Pipeline) refetch(ctx context.Context) error {
	st, err := p.stores.Categories(ctx, p.companyID)
	if err != nil {
		return err
	}
	if err := st.Refetch(ctx); err != nil {
		return err
	}
	ps, err := p.stores.Payees(ctx, p.companyID)
	if err != nil {
		return err
	}
	return ps.Refetch(ctx)
}

// describe builds the confirmation line for one command, resolving its
// references. pendingCategories/pendingPayees hold names earlier commands
// in the batch will create.
func (p *Pipeline) describe(req Request, resolver *Resolver, pendingCategories, pendingPayees map[string]bool) (string, error) {
	resolveCategory := func(ref string) (string, error) {
		c, err := resolver.Category(ref)
		if err == nil {
			return c.Name, nil
		}
		if errors.Is(err, apperrors.ErrCategoryNotFound) && pendingCategories[strings.ToLower(strings.TrimSpace(ref))] {
			return strings.TrimSpace(ref) + " (to be created)", nil
		}
		return "", err
	}
	resolvePayee := func(ref string) (string, error) {
		payee, err := resolver.Payee(ref)
		if err == nil {
			return payee.Name, nil
		}
		if errors.Is(err, apperrors.ErrPayeeNotFound) && pendingPayees[strings.ToLower(strings.TrimSpace(ref))] {
			return strings.TrimSpace(ref) + " (to be created)", nil
		}
		return "", err
	}

	switch req.Action {
	case ActionCreateCategory:
		if req.Parent != "" {
			parent, err := resolveCategory(req.Parent)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Create category %q (%s) under %q", req.Name, req.Type, parent), nil
		}
		return fmt.Sprintf("Create category %q (%s)", req.Name, req.Type), nil
	case ActionRenameCategory:
		name, err := resolveCategory(req.Name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Rename category %q to %q", name, req.NewName), nil
	case ActionRetypeCategory:
		name, err := resolveCategory(req.Name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Change category %q to type %s", name, req.Type), nil
	case ActionMoveCategory:
		name, err := resolveCategory(req.Name)
		if err != nil {
			return "", err
		}
		if req.ToRoot {
			return fmt.Sprintf("Move category %q to the top level", name), nil
		}
		parent, err := resolveCategory(req.Parent)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Move category %q under %q", name, parent), nil
	case ActionDeleteCategory:
		name, err := resolveCategory(req.Name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Delete category %q", name), nil
	case ActionMergeCategories:
		target, err := resolveCategory(req.Target)
		if err != nil {
			return "", err
		}
		names := make([]string, 0, len(req.Sources))
		for _, src := range req.Sources {
			name, err := resolveCategory(src)
			if err != nil {
				return "", err
			}
			names = append(names, fmt.Sprintf("%q", name))
		}
		return fmt.Sprintf("Merge %s into %q", strings.Join(names, ", "), target), nil
	case ActionFindCategory:
		return fmt.Sprintf("Look up category %q", req.Name), nil
	case ActionCategoryUsage:
		name, err := resolveCategory(req.Name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Check usage of category %q", name), nil
	case ActionCreatePayee:
		return fmt.Sprintf("Create payee %q", req.Name), nil
	case ActionRenamePayee:
		name, err := resolvePayee(req.Name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Rename payee %q to %q", name, req.NewName), nil
	case ActionDeletePayee:
		name, err := resolvePayee(req.Name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Delete payee %q", name), nil
	case ActionFindPayee:
		return fmt.Sprintf("Look up payee %q", req.Name), nil
	}
	return "", apperrors.WithMessage(apperrors.ErrInvalidCommand, fmt.Sprintf("unknown action %q", req.Action))
}

// execute dispatches one command against the stores. References are
// resolved against the freshly fetched caches.
func (p *Pipeline) execute(ctx context.Context, req Request) (summary, detail string, err error) {
	st, err := p.stores.Categories(ctx, p.companyID)
	if err != nil {
		return string(req.Action), "", err
	}
	ps, err := p.stores.Payees(ctx, p.companyID)
	if err != nil {
		return string(req.Action), "", err
	}
	resolver := NewResolver(st.Categories(), ps.Payees())

	switch req.Action {
	case ActionCreateCategory:
		accountType, _ := models.ParseAccountType(req.Type)
		var parentRef *store.Reference
		if req.Parent != "" {
			parent, err := resolver.Category(req.Parent)
			if err != nil {
				return fmt.Sprintf("Create category %q", req.Name), "", err
			}
			ref := store.ByID(parent.ID)
			parentRef = &ref
		}
		created, err := st.Create(ctx, req.Name, accountType, parentRef)
		if err != nil {
			return fmt.Sprintf("Create category %q", req.Name), "", err
		}
		return fmt.Sprintf("Create category %q", created.Name), "created " + created.ID, nil

	case ActionRenameCategory:
		target, err := resolver.Category(req.Name)
		if err != nil {
			return fmt.Sprintf("Rename category %q", req.Name), "", err
		}
		updated, err := st.Update(ctx, store.ByID(target.ID), store.UpdatePatch{Name: &req.NewName})
		if err != nil {
			return fmt.Sprintf("Rename category %q", target.Name), "", err
		}
		return fmt.Sprintf("Rename category %q to %q", target.Name, updated.Name), "", nil

	case ActionRetypeCategory:
		target, err := resolver.Category(req.Name)
		if err != nil {
			return fmt.Sprintf("Change type of %q", req.Name), "", err
		}
		accountType, _ := models.ParseAccountType(req.Type)
		if _, err := st.Update(ctx, store.ByID(target.ID), store.UpdatePatch{Type: &accountType}); err != nil {
			return fmt.Sprintf("Change type of %q", target.Name), "", err
		}
		return fmt.Sprintf("Change type of %q to %s", target.Name, accountType), "", nil

	case ActionMoveCategory:
		target, err := resolver.Category(req.Name)
		if err != nil {
			return fmt.Sprintf("Move category %q", req.Name), "", err
		}
		if req.ToRoot {
			if _, err := st.Move(ctx, store.ByID(target.ID), nil); err != nil {
				return fmt.Sprintf("Move category %q", target.Name), "", err
			}
			return fmt.Sprintf("Move category %q to the top level", target.Name), "", nil
		}
		parent, err := resolver.Category(req.Parent)
		if err != nil {
			return fmt.Sprintf("Move category %q", target.Name), "", err
		}
		parentRef := store.ByID(parent.ID)
		if _, err := st.Move(ctx, store.ByID(target.ID), &parentRef); err != nil {
			return fmt.Sprintf("Move category %q", target.Name), "", err
		}
		return fmt.Sprintf("Move category %q under %q", target.Name, parent.Name), "", nil

	case ActionDeleteCategory:
		target, err := resolver.Category(req.Name)
		if err != nil {
			return fmt.Sprintf("Delete category %q", req.Name), "", err
		}
		if err := st.Delete(ctx, store.ByID(target.ID)); err != nil {
			return fmt.Sprintf("Delete category %q", target.Name), "", err
		}
		return fmt.Sprintf("Delete category %q", target.Name), "", nil

	case ActionMergeCategories:
		target, err := resolver.Category(req.Target)
		if err != nil {
			return "Merge categories", "", err
		}
		ids := []string{target.ID}
		names := []string{target.Name}
		for _, src := range req.Sources {
			c, err := resolver.Category(src)
			if err != nil {
				return "Merge categories", "", err
			}
			if c.ID == target.ID {
				continue
			}
			ids = append(ids, c.ID)
			names = append(names, c.Name)
		}
		if err := p.merger.Merge(ctx, st, ids, target.ID); err != nil {
			return fmt.Sprintf("Merge into %q", target.Name), "", err
		}
		return fmt.Sprintf("Merge %s into %q", strings.Join(names[1:], ", "), target.Name), "", nil

	case ActionFindCategory:
		found, err := resolver.Category(req.Name)
		if err != nil {
			return fmt.Sprintf("Look up category %q", req.Name), "", err
		}
		detail := fmt.Sprintf("%s (%s)", found.Name, found.Type)
		if found.ParentID != nil {
			if parent, perr := st.Resolve(store.ByID(*found.ParentID)); perr == nil {
				detail += " under " + parent.Name
			}
		}
		return fmt.Sprintf("Look up category %q", req.Name), detail, nil

	case ActionCategoryUsage:
		found, counts, err := st.Usage(ctx, store.ByName(req.Name))
		if err != nil {
			// Fall back to fuzzy resolution before giving up.
			fuzzy, ferr := resolver.Category(req.Name)
			if ferr != nil {
				return fmt.Sprintf("Check usage of %q", req.Name), "", ferr
			}
			found, counts, err = st.Usage(ctx, store.ByID(fuzzy.ID))
			if err != nil {
				return fmt.Sprintf("Check usage of %q", req.Name), "", err
			}
		}
		detail := fmt.Sprintf("%q is referenced by %d transaction(s), %d imported row(s), %d ledger entrie(s)",
			found.Name, counts.Transactions, counts.Imported, counts.Ledger)
		return fmt.Sprintf("Check usage of %q", found.Name), detail, nil

	case ActionCreatePayee:
		created, err := ps.Create(ctx, req.Name)
		if err != nil {
			return fmt.Sprintf("Create payee %q", req.Name), "", err
		}
		return fmt.Sprintf("Create payee %q", created.Name), "created " + created.ID, nil

	case ActionRenamePayee:
		target, err := resolver.Payee(req.Name)
		if err != nil {
			return fmt.Sprintf("Rename payee %q", req.Name), "", err
		}
		updated, err := ps.Rename(ctx, store.ByID(target.ID), req.NewName)
		if err != nil {
			return fmt.Sprintf("Rename payee %q", target.Name), "", err
		}
		return fmt.Sprintf("Rename payee %q to %q", target.Name, updated.Name), "", nil

	case ActionDeletePayee:
		target, err := resolver.Payee(req.Name)
		if err != nil {
			return fmt.Sprintf("Delete payee %q", req.Name), "", err
		}
		if err := ps.Delete(ctx, store.ByID(target.ID)); err != nil {
			return fmt.Sprintf("Delete payee %q", target.Name), "", err
		}
		return fmt.Sprintf("Delete payee %q", target.Name), "", nil

	case ActionFindPayee:
		found, err := resolver.Payee(req.Name)
		if err != nil {
			return fmt.Sprintf("Look up payee %q", req.Name), "", err
		}
		return fmt.Sprintf("Look up payee %q", req.Name), found.Name, nil
	}

	return string(req.Action), "", apperrors.WithMessage(apperrors.ErrInvalidCommand,
		fmt.Sprintf("unknown action %q", req.Action))
}
