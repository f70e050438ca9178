// Package store owns the authoritative in-memory cache of a company's
// bookkeeping records. Every mutation flows through the store's API, which
// validates hierarchy invariants locally, applies the change optimistically,
// issues the remote call, and rolls the cache back on failure. No caller
// ever mutates a cached record directly.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "tally/internal/errors"
	"tally/internal/hierarchy"
	"tally/internal/models"
	"tally/internal/remote"
	"tally/internal/uuid"
)

// NeedsMergeError signals that a rename collided with an existing live
// category. The caller should offer a merge into Existing instead of
// treating the rename as failed outright.
type NeedsMergeError struct {
	Existing models.Category
}

func (e *NeedsMergeError) Error() string {
	return fmt.Sprintf("category %q already exists; merge instead of renaming over it", e.Existing.Name)
}

// Unwrap lets errors.As surface the NEEDS_MERGE app error code.
func (e *NeedsMergeError) Unwrap() error { return apperrors.ErrNeedsMerge }

// UpdatePatch describes a partial category update. Nil fields are left
// untouched. ParentSet distinguishes "leave the parent alone" from "set the
// parent to Parent (nil promotes to root)".
type UpdatePatch struct {
	Name      *string
	Type      *models.AccountType
	Parent    *Reference
	ParentSet bool
}

// CategorySpec is one category to create in a batch insert.
type CategorySpec struct {
	Name     string
	Type     models.AccountType
	ParentID *string
}

// CategoryStore is the tenant-scoped cache and single mutation surface for
// one company's chart of accounts. The mutex is held across the remote call
// so no two mutating calls for the same company are ever in flight at once.
type CategoryStore struct {
	companyID    string
	remote       remote.Store
	highlightTTL time.Duration
	log          *zap.SugaredLogger

	mu         sync.Mutex
	cache      []models.Category
	highlights map[string]time.Time
}

// NewCategoryStore creates an unprimed store for one company. Call Refetch
// (or use Manager, which primes on first access) before serving reads.
func NewCategoryStore(companyID string, r remote.Store, highlightTTL time.Duration, log *zap.SugaredLogger) *CategoryStore {
	return &CategoryStore{
		companyID:    companyID,
		remote:       r,
		highlightTTL: highlightTTL,
		log:          log,
		highlights:   make(map[string]time.Time),
	}
}

// CompanyID returns the tenant this store is scoped to.
func (s *CategoryStore) CompanyID() string { return s.companyID }

// Categories returns the cached chart of accounts in presentation order:
// roots by (type, name), each root immediately followed by its children.
func (s *CategoryStore) Categories() []models.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Category, len(s.cache))
	copy(out, s.cache)
	return out
}

// Resolve finds the category a reference points at, by id or by exact
// case-insensitive name. Fuzzy matching lives in the command pipeline, not
// here.
func (s *CategoryStore) Resolve(ref Reference) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(ref)
}

func (s *CategoryStore) resolveLocked(ref Reference) (*models.Category, error) {
	if ref.id != "" {
		for i := range s.cache {
			if s.cache[i].ID == ref.id {
				c := s.cache[i]
				return &c, nil
			}
		}
		return nil, apperrors.WithMessage(apperrors.ErrCategoryNotFound, fmt.Sprintf("No category with %s", ref))
	}
	if found := hierarchy.FindByName(s.cache, ref.name, ""); found != nil {
		c := *found
		return &c, nil
	}
	return nil, apperrors.WithMessage(apperrors.ErrCategoryNotFound, fmt.Sprintf("No category named %s", ref))
}

// Create validates and creates a new category. parentRef may reference the
// parent by id or name; nil creates a root category.
func (s *CategoryStore) Create(ctx context.Context, name string, accountType models.AccountType, parentRef *Reference) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
	}

	var parentID *string
	if parentRef != nil && !parentRef.IsZero() {
		parent, err := s.resolveLocked(*parentRef)
		if err != nil {
			return nil, apperrors.WithMessage(apperrors.ErrParentNotFound, fmt.Sprintf("Parent category %s not found", *parentRef))
		}
		parentID = &parent.ID
	}

	if !hierarchy.NameIsUnique(s.cache, name, "") {
		return nil, apperrors.WithMessage(apperrors.ErrNameConflict, fmt.Sprintf("A category named %q already exists", name))
	}
	if !hierarchy.TypesCompatible(s.cache, accountType, parentID) {
		return nil, apperrors.ErrTypeMismatch
	}

	// Optimistic apply: the provisional record is swapped for the remote's
	// canonical one on success, or rolled back with the snapshot on failure.
	snapshot := s.cache
	provisional := models.Category{
		CompanyID: s.companyID,
		Name:      name,
		Type:      accountType,
		ParentID:  parentID,
	}
	provisional.ID = uuid.New()
	s.cache = sortCategories(append(cloneCategories(s.cache), provisional))
	s.markChangedLocked(provisional.ID)

	inserted, err := s.remote.InsertCategories(ctx, s.companyID, []models.Category{{
		Name:     name,
		Type:     accountType,
		ParentID: parentID,
	}})
	if err != nil || len(inserted) != 1 {
		s.cache = snapshot
		if err == nil {
			err = fmt.Errorf("remote inserted %d records, want 1", len(inserted))
		}
		return nil, apperrors.Wrap(apperrors.ErrRemoteFailure, err)
	}

	canonical := inserted[0]
	s.replaceLocked(provisional.ID, canonical)
	s.markChangedLocked(canonical.ID)
	out := canonical
	return &out, nil
}

// CreateMany inserts a batch of already-resolved category specs in one
// remote call. Each spec is validated against the cache and against the
// rest of the batch. Used by the import pipeline's two insert phases.
func (s *CategoryStore) CreateMany(ctx context.Context, specs []CategorySpec) ([]models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(specs) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(specs))
	rows := make([]models.Category, 0, len(specs))
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
		}
		folded := strings.ToLower(name)
		if seen[folded] || !hierarchy.NameIsUnique(s.cache, name, "") {
			return nil, apperrors.WithMessage(apperrors.ErrNameConflict, fmt.Sprintf("A category named %q already exists", name))
		}
		if !hierarchy.TypesCompatible(s.cache, spec.Type, spec.ParentID) {
			return nil, apperrors.WithMessage(apperrors.ErrTypeMismatch, fmt.Sprintf("Category %q does not match its parent's type", name))
		}
		seen[folded] = true
		rows = append(rows, models.Category{Name: name, Type: spec.Type, ParentID: spec.ParentID})
	}

	snapshot := s.cache
	working := cloneCategories(s.cache)
	provisionalIDs := make([]string, len(rows))
	for i, row := range rows {
		row.CompanyID = s.companyID
		row.ID = uuid.New()
		provisionalIDs[i] = row.ID
		working = append(working, row)
	}
	s.cache = sortCategories(working)

	inserted, err := s.remote.InsertCategories(ctx, s.companyID, rows)
	if err != nil || len(inserted) != len(rows) {
		s.cache = snapshot
		if err == nil {
			err = fmt.Errorf("remote inserted %d records, want %d", len(inserted), len(rows))
		}
		return nil, apperrors.Wrap(apperrors.ErrRemoteFailure, err)
	}

	for i := range inserted {
		s.replaceLocked(provisionalIDs[i], inserted[i])
		s.markChangedLocked(inserted[i].ID)
	}
	out := make([]models.Category, len(inserted))
	copy(out, inserted)
	return out, nil
}

// Update applies a partial update to a category. A rename that collides
// with a different live category returns *NeedsMergeError instead of
// renaming over it. Retyping a category with children cascades the new type
// to its direct children so the type-consistency invariant holds.
func (s *CategoryStore) Update(ctx context.Context, ref Reference, patch UpdatePatch) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.resolveLocked(ref)
	if err != nil {
		return nil, err
	}

	newName := current.Name
	if patch.Name != nil {
		newName = strings.TrimSpace(*patch.Name)
		if newName == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
		}
	}
	newType := current.Type
	if patch.Type != nil {
		newType = *patch.Type
	}
	newParentID := current.ParentID
	if patch.ParentSet {
		if patch.Parent == nil || patch.Parent.IsZero() {
			newParentID = nil
		} else {
			parent, perr := s.resolveLocked(*patch.Parent)
			if perr != nil {
				return nil, apperrors.WithMessage(apperrors.ErrParentNotFound, fmt.Sprintf("Parent category %s not found", *patch.Parent))
			}
			newParentID = &parent.ID
		}
	}

	if patch.Name != nil {
		if existing := hierarchy.FindByName(s.cache, newName, current.ID); existing != nil {
			return nil, &NeedsMergeError{Existing: *existing}
		}
	}
	if !hierarchy.NoCycle(s.cache, current.ID, newParentID) {
		return nil, apperrors.ErrCycleDetected
	}
	if !hierarchy.TypesCompatible(s.cache, newType, newParentID) {
		return nil, apperrors.ErrTypeMismatch
	}

	retypedChildren := []models.Category{}
	if newType != current.Type {
		retypedChildren = s.childrenLocked(current.ID)
	}

	snapshot := s.cache
	working := cloneCategories(s.cache)
	for i := range working {
		switch {
		case working[i].ID == current.ID:
			working[i].Name = newName
			working[i].Type = newType
			working[i].ParentID = newParentID
		case newType != current.Type && working[i].ParentID != nil && *working[i].ParentID == current.ID:
			working[i].Type = newType
		}
	}
	s.cache = sortCategories(working)
	s.markChangedLocked(current.ID)

	remotePatch := remote.CategoryPatch{}
	if patch.Name != nil {
		remotePatch.Name = &newName
	}
	if patch.Type != nil {
		remotePatch.Type = &newType
	}
	if patch.ParentSet {
		remotePatch.ParentSet = true
		remotePatch.ParentID = newParentID
	}

	updated, err := s.remote.UpdateCategory(ctx, s.companyID, current.ID, remotePatch)
	if err != nil {
		s.cache = snapshot
		return nil, apperrors.Wrap(apperrors.ErrRemoteFailure, err)
	}
	for _, child := range retypedChildren {
		if _, err := s.remote.UpdateCategory(ctx, s.companyID, child.ID, remote.CategoryPatch{Type: &newType}); err != nil {
			// Mid-cascade failure: the remote is partially updated, so a
			// snapshot restore would lie. Resync from the source of truth.
			s.log.Errorw("retype cascade failed, refetching",
				"company_id", s.companyID, "category_id", child.ID, "error", err)
			if rerr := s.refetchLocked(ctx); rerr != nil {
				s.log.Errorw("refetch after failed cascade also failed", "error", rerr)
			}
			return nil, apperrors.Wrap(apperrors.ErrRemoteFailure, err)
		}
	}

	// A protected category mirrors its name to the linked external record.
	if current.ExternalLinkID != nil && newName != current.Name {
		if err := s.remote.UpdateExternalLinkName(ctx, s.companyID, *current.ExternalLinkID, newName); err != nil {
			s.log.Errorw("failed to mirror rename to external link",
				"company_id", s.companyID, "link_id", *current.ExternalLinkID, "error", err)
			if rerr := s.refetchLocked(ctx); rerr != nil {
				s.log.Errorw("refetch after failed mirror also failed", "error", rerr)
			}
			return nil, apperrors.Wrap(apperrors.ErrRemoteFailure, err)
		}
	}

	// Automation rules reference categories by name; keep them pointing at
	// the renamed category. Best effort: a stale rule name is recoverable.
	if newName != current.Name {
		if err := s.remote.RewriteRuleCategoryName(ctx, s.companyID, current.Name, newName); err != nil {
			s.log.Warnw("failed to rewrite automation rules after rename",
				"company_id", s.companyID, "from", current.Name, "to", newName, "error", err)
		}
	}

	s.replaceLocked(current.ID, *updated)
	out := *updated
	return &out, nil
}

// Move reparents a category. A nil parent promotes it to root. Sugar over
// Update touching only the parent; type and cycle checks still apply.
func (s *CategoryStore) Move(ctx context.Context, ref Reference, newParent *Reference) (*models.Category, error) {
	return s.Update(ctx, ref, UpdatePatch{Parent: newParent, ParentSet: true})
}

// Delete removes a category. Refusal order: external link first, then
// subcategories used by transactions, then the category's own usage — so
// the error names the most specific blocking cause. Unreferenced
// subcategories are promoted to root before the delete.
func (s *CategoryStore) Delete(ctx context.Context, ref Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.resolveLocked(ref)
	if err != nil {
		return err
	}

	if current.ExternalLinkID != nil {
		msg := fmt.Sprintf("%q is linked to an external account", current.Name)
		if link, lerr := s.remote.ExternalLink(ctx, s.companyID, *current.ExternalLinkID); lerr == nil {
			msg = fmt.Sprintf("%q is linked to external account %q", current.Name, link.DisplayName)
		}
		return apperrors.WithMessage(apperrors.ErrProtectedLink, msg)
	}

	children := s.childrenLocked(current.ID)
	for _, child := range children {
		counts, cerr := s.remote.CountCategoryRefs(ctx, s.companyID, child.ID)
		if cerr != nil {
			return apperrors.Wrap(apperrors.ErrRemoteFailure, cerr)
		}
		if counts.Total() > 0 {
			return apperrors.WithMessage(apperrors.ErrCategoryInUse,
				fmt.Sprintf("Subcategory %q is used in existing transactions", child.Name))
		}
	}

	counts, err := s.remote.CountCategoryRefs(ctx, s.companyID, current.ID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteFailure, err)
	}
	if counts.Total() > 0 {
		return apperrors.WithMessage(apperrors.ErrCategoryInUse,
			fmt.Sprintf("%q is used in existing transactions", current.Name))
	}

	snapshot := s.cache
	working := make([]models.Category, 0, len(s.cache))
	for _, c := range s.cache {
		if c.ID == current.ID {
			continue
		}
		if c.ParentID != nil && *c.ParentID == current.ID {
			c.ParentID = nil
			s.markChangedLocked(c.ID)
		}
		working = append(working, c)
	}
	s.cache = sortCategories(working)

	for i, child := range children {
		if _, err := s.remote.UpdateCategory(ctx, s.companyID, child.ID, remote.CategoryPatch{ParentSet: true}); err != nil {
			s.cache = snapshot
			if i > 0 {
				// Earlier children were already promoted remotely; resync.
				if rerr := s.refetchLocked(ctx); rerr != nil {
					s.log.Errorw("refetch after failed promotion also failed", "error", rerr)
				}
			}
			return apperrors.Wrap(apperrors.ErrRemoteFailure, err)
		}
	}
	if err := s.remote.DeleteCategory(ctx, s.companyID, current.ID); err != nil {
		s.cache = snapshot
		if len(children) > 0 {
			// Children were already promoted remotely; resync.
			if rerr := s.refetchLocked(ctx); rerr != nil {
				s.log.Errorw("refetch after failed delete also failed", "error", rerr)
			}
		}
		return apperrors.Wrap(apperrors.ErrRemoteFailure, err)
	}
	return nil
}

// Usage returns how many records reference the category, per table.
func (s *CategoryStore) Usage(ctx context.Context, ref Reference) (*models.Category, remote.RefCounts, error) {
	s.mu.Lock()
	current, err := s.resolveLocked(ref)
	s.mu.Unlock()
	if err != nil {
		return nil, remote.RefCounts{}, err
	}
	counts, err := s.remote.CountCategoryRefs(ctx, s.companyID, current.ID)
	if err != nil {
		return nil, remote.RefCounts{}, apperrors.Wrap(apperrors.ErrRemoteFailure, err)
	}
	return current, counts, nil
}

// Refetch replaces the whole cache from the remote store. Triggered after
// multi-step operations and by external change notifications; any
// unacknowledged optimistic state is overwritten (last-refetch-wins).
func (s *CategoryStore) Refetch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refetchLocked(ctx)
}

func (s *CategoryStore) refetchLocked(ctx context.Context) error {
	cats, err := s.remote.ListCategories(ctx, s.companyID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteFailure, err)
	}
	s.cache = sortCategories(cats)
	return nil
}

// MarkChanged sets the "recently changed" highlight on a category.
func (s *CategoryStore) MarkChanged(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markChangedLocked(id)
}

// RecentlyChanged reports whether a category's highlight is still live.
// Expired highlights are pruned as they are read.
func (s *CategoryStore) RecentlyChanged(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.highlights[id]
	if !ok {
		return false
	}
	if time.Since(ts) > s.highlightTTL {
		delete(s.highlights, id)
		return false
	}
	return true
}

func (s *CategoryStore) markChangedLocked(id string) {
	s.highlights[id] = time.Now()
}

func (s *CategoryStore) childrenLocked(parentID string) []models.Category {
	var children []models.Category
	for _, c := range s.cache {
		if c.ParentID != nil && *c.ParentID == parentID {
			children = append(children, c)
		}
	}
	return children
}

// replaceLocked swaps a cached record (by id) for its canonical version and
// re-sorts. The old record is dropped if the id is unknown.
func (s *CategoryStore) replaceLocked(oldID string, canonical models.Category) {
	working := make([]models.Category, 0, len(s.cache)+1)
	for _, c := range s.cache {
		if c.ID == oldID {
			continue
		}
		working = append(working, c)
	}
	s.cache = sortCategories(append(working, canonical))
}

func cloneCategories(cats []models.Category) []models.Category {
	out := make([]models.Category, len(cats))
	copy(out, cats)
	return out
}

// sortCategories produces the presentation order every consumer sees:
// roots ordered by (type, folded name), each category immediately followed
// by its subtree with siblings ordered by folded name. A child whose parent
// is missing sorts as a root. The remote system tolerates nesting deeper
// than two levels, so the walk is fully recursive.
func sortCategories(cats []models.Category) []models.Category {
	byID := make(map[string]bool, len(cats))
	for _, c := range cats {
		byID[c.ID] = true
	}

	var roots []models.Category
	childrenOf := make(map[string][]models.Category)
	for _, c := range cats {
		if c.ParentID == nil || !byID[*c.ParentID] {
			roots = append(roots, c)
			continue
		}
		childrenOf[*c.ParentID] = append(childrenOf[*c.ParentID], c)
	}

	less := func(a, b models.Category) bool {
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	}
	sort.SliceStable(roots, func(i, j int) bool { return less(roots[i], roots[j]) })

	out := make([]models.Category, 0, len(cats))
	var emit func(models.Category)
	emit = func(c models.Category) {
		out = append(out, c)
		kids := childrenOf[c.ID]
		sort.SliceStable(kids, func(i, j int) bool { return less(kids[i], kids[j]) })
		for _, kid := range kids {
			emit(kid)
		}
	}
	for _, root := range roots {
		emit(root)
	}
	return out
}
