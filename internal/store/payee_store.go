package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/remote"
	"tally/internal/uuid"
)

// PayeeStore is the flat counterpart of CategoryStore: a tenant-scoped
// cache of payees with unique (case-insensitive) names and no hierarchy.
type PayeeStore struct {
	companyID string
	remote    remote.Store
	log       *zap.SugaredLogger

	mu    sync.Mutex
	cache []models.Payee
}

// NewPayeeStore creates an unprimed payee store for one company.
func NewPayeeStore(companyID string, r remote.Store, log *zap.SugaredLogger) *PayeeStore {
	return &PayeeStore{companyID: companyID, remote: r, log: log}
}

// Payees returns the cached payees sorted by folded name.
func (s *PayeeStore) Payees() []models.Payee {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Payee, len(s.cache))
	copy(out, s.cache)
	return out
}

// Resolve finds a payee by id or exact case-insensitive name.
func (s *PayeeStore) Resolve(ref Reference) (*models.Payee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(ref)
}

func (s *PayeeStore) resolveLocked(ref Reference) (*models.Payee, error) {
	if ref.id != "" {
		for i := range s.cache {
			if s.cache[i].ID == ref.id {
				p := s.cache[i]
				return &p, nil
			}
		}
		return nil, apperrors.WithMessage(apperrors.ErrPayeeNotFound, fmt.Sprintf("No payee with %s", ref))
	}
	folded := strings.ToLower(strings.TrimSpace(ref.name))
	for i := range s.cache {
		if strings.ToLower(s.cache[i].Name) == folded {
			p := s.cache[i]
			return &p, nil
		}
	}
	return nil, apperrors.WithMessage(apperrors.ErrPayeeNotFound, fmt.Sprintf("No payee named %s", ref))
}

// Create validates and creates a payee.
func (s *PayeeStore) Create(ctx context.Context, name string) (*models.Payee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "payee name is required")
	}
	if s.nameTakenLocked(name, "") {
		return nil, apperrors.WithMessage(apperrors.ErrPayeeNameConflict, fmt.Sprintf("A payee named %q already exists", name))
	}

	snapshot := s.cache
	provisional := models.Payee{CompanyID: s.companyID, Name: name}
	provisional.ID = uuid.New()
	s.cache = sortPayees(append(clonePayees(s.cache), provisional))

	inserted, err := s.remote.InsertPayee(ctx, s.companyID, name)
	if err != nil {
		s.cache = snapshot
		return nil, apperrors.Wrap(apperrors.ErrRemoteFailure, err)
	}
	s.replaceLocked(provisional.ID, *inserted)
	out := *inserted
	return &out, nil
}

// Rename changes a payee's name, refusing collisions with other payees.
func (s *PayeeStore) Rename(ctx context.Context, ref Reference, newName string) (*models.Payee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.resolveLocked(ref)
	if err != nil {
		return nil, err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "payee name is required")
	}
	if s.nameTakenLocked(newName, current.ID) {
		return nil, apperrors.WithMessage(apperrors.ErrPayeeNameConflict, fmt.Sprintf("A payee named %q already exists", newName))
	}

	snapshot := s.cache
	working := clonePayees(s.cache)
	for i := range working {
		if working[i].ID == current.ID {
			working[i].Name = newName
		}
	}
	s.cache = sortPayees(working)

	updated, err := s.remote.UpdatePayeeName(ctx, s.companyID, current.ID, newName)
	if err != nil {
		s.cache = snapshot
		return nil, apperrors.Wrap(apperrors.ErrRemoteFailure, err)
	}
	s.replaceLocked(current.ID, *updated)
	out := *updated
	return &out, nil
}

// Delete removes a payee unless transactions still reference it.
func (s *PayeeStore) Delete(ctx context.Context, ref Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.resolveLocked(ref)
	if err != nil {
		return err
	}

	refs, err := s.remote.CountPayeeRefs(ctx, s.companyID, current.ID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteFailure, err)
	}
	if refs > 0 {
		return apperrors.WithMessage(apperrors.ErrPayeeInUse,
			fmt.Sprintf("%q is used in existing transactions", current.Name))
	}

	snapshot := s.cache
	working := make([]models.Payee, 0, len(s.cache))
	for _, p := range s.cache {
		if p.ID != current.ID {
			working = append(working, p)
		}
	}
	s.cache = working

	if err := s.remote.DeletePayee(ctx, s.companyID, current.ID); err != nil {
		s.cache = snapshot
		return apperrors.Wrap(apperrors.ErrRemoteFailure, err)
	}
	return nil
}

// Refetch replaces the whole cache from the remote store.
func (s *PayeeStore) Refetch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payees, err := s.remote.ListPayees(ctx, s.companyID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteFailure, err)
	}
	s.cache = sortPayees(payees)
	return nil
}

func (s *PayeeStore) nameTakenLocked(name, excludeID string) bool {
	folded := strings.ToLower(name)
	for _, p := range s.cache {
		if p.ID != excludeID && strings.ToLower(p.Name) == folded {
			return true
		}
	}
	return false
}

func (s *PayeeStore) replaceLocked(oldID string, canonical models.Payee) {
	working := make([]models.Payee, 0, len(s.cache)+1)
	for _, p := range s.cache {
		if p.ID != oldID {
			working = append(working, p)
		}
	}
	s.cache = sortPayees(append(working, canonical))
}

func clonePayees(payees []models.Payee) []models.Payee {
	out := make([]models.Payee, len(payees))
	copy(out, payees)
	return out
}

func sortPayees(payees []models.Payee) []models.Payee {
	sort.SliceStable(payees, func(i, j int) bool {
		return strings.ToLower(payees[i].Name) < strings.ToLower(payees[j].Name)
	})
	return payees
}
