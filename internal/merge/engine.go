// Package merge collapses several categories into one target, rewiring
// subcategories and every foreign reference. The remote store offers no
// transaction spanning the steps, so the step order is chosen to keep the
// inconsistency window small: references move before sources disappear.
package merge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "tally/internal/errors"
	"tally/internal/hierarchy"
	"tally/internal/models"
	"tally/internal/remote"
	"tally/internal/saga"
	"tally/internal/store"
)

// Engine executes category merges against the remote store.
type Engine struct {
	remote remote.Store
	log    *zap.SugaredLogger
}

// NewEngine creates a merge engine.
func NewEngine(r remote.Store, log *zap.SugaredLogger) *Engine {
	return &Engine{remote: r, log: log}
}

// Merge folds every source category into the target. The target must be one
// of the selected ids, all selected categories must share a type, and no
// source may be an ancestor of the target. On partial failure the error
// reports which steps completed; completed steps are not undone.
func (e *Engine) Merge(ctx context.Context, st *store.CategoryStore, sourceIDs []string, targetID string) error {
	if len(sourceIDs) < 2 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "select at least two categories to merge")
	}

	cats := st.Categories()
	byID := make(map[string]models.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}

	target, ok := byID[targetID]
	if !ok {
		return apperrors.WithMessage(apperrors.ErrCategoryNotFound, "merge target not found")
	}

	targetSelected := false
	sources := make([]models.Category, 0, len(sourceIDs)-1)
	for _, id := range sourceIDs {
		if id == targetID {
			targetSelected = true
			continue
		}
		src, ok := byID[id]
		if !ok {
			return apperrors.WithMessage(apperrors.ErrCategoryNotFound, fmt.Sprintf("merge source %s not found", id))
		}
		if src.Type != target.Type {
			return apperrors.WithMessage(apperrors.ErrTypeMismatch,
				fmt.Sprintf("Cannot merge %q (%s) into %q (%s)", src.Name, src.Type, target.Name, target.Type))
		}
		if hierarchy.IsAncestor(cats, src.ID, target.ID) {
			return apperrors.WithMessage(apperrors.ErrCycleDetected,
				fmt.Sprintf("Cannot merge %q into its own subcategory %q", src.Name, target.Name))
		}
		if src.ExternalLinkID != nil {
			// Merging deletes the source, and a linked category is undeletable.
			return apperrors.WithMessage(apperrors.ErrProtectedLink,
				fmt.Sprintf("%q is linked to an external account and cannot be merged away", src.Name))
		}
		sources = append(sources, src)
	}
	if !targetSelected {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "merge target must be one of the selected categories")
	}

	companyID := st.CompanyID()
	sourceHasRoot := false
	for _, src := range sources {
		if src.IsRoot() {
			sourceHasRoot = true
			break
		}
	}

	steps := []saga.Step{
		{Name: "reparent subcategories", Run: func(ctx context.Context) error {
			for _, src := range sources {
				for _, c := range cats {
					if c.ParentID == nil || *c.ParentID != src.ID {
						continue
					}
					parentID := target.ID
					patch := remote.CategoryPatch{ParentSet: true, ParentID: &parentID}
					if _, err := e.remote.UpdateCategory(ctx, companyID, c.ID, patch); err != nil {
						return err
					}
				}
			}
			return nil
		}},
		{Name: "rewrite transaction references", Run: func(ctx context.Context) error {
			for _, src := range sources {
				if err := e.remote.RewriteCategoryRefs(ctx, companyID, src.ID, target.ID); err != nil {
					return err
				}
			}
			return nil
		}},
		{Name: "rewrite automation rules", Run: func(ctx context.Context) error {
			for _, src := range sources {
				if err := e.remote.RewriteRuleCategoryName(ctx, companyID, src.Name, target.Name); err != nil {
					return err
				}
			}
			return nil
		}},
		{Name: "promote target to root", Run: func(ctx context.Context) error {
			// A root merged into a subcategory leaves a root: the merged
			// entity inherits the more senior role.
			if target.ParentID == nil || !sourceHasRoot {
				return nil
			}
			_, err := e.remote.UpdateCategory(ctx, companyID, target.ID, remote.CategoryPatch{ParentSet: true})
			return err
		}},
		{Name: "delete source categories", Run: func(ctx context.Context) error {
			for _, src := range sources {
				if err := e.remote.DeleteCategory(ctx, companyID, src.ID); err != nil {
					return err
				}
			}
			return nil
		}},
		{Name: "refetch", Run: func(ctx context.Context) error {
			// No incremental patching after a multi-step remote operation.
			if err := st.Refetch(ctx); err != nil {
				return err
			}
			st.MarkChanged(target.ID)
			return nil
		}},
	}

	if err := saga.Run(ctx, steps); err != nil {
		e.log.Errorw("merge stopped on failed step",
			"company_id", companyID, "target_id", target.ID, "error", err)
		// Surface the completion cursor: the user must see which steps ran.
		wrapped := apperrors.Wrap(apperrors.ErrRemoteFailure, err)
		wrapped.Message = "Merge stopped: " + err.Error()
		return wrapped
	}
	return nil
}
