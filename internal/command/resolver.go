package command

import (
	"fmt"
	"strings"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/uuid"
)

// Resolver maps human-supplied references onto concrete records: exact
// case-insensitive match first, then substring containment. Ambiguity and
// absence are surfaced with candidate suggestions; the resolver never
// guesses.
type Resolver struct {
	categories []models.Category
	payees     []models.Payee
}

// NewResolver creates a resolver over a snapshot of the stores.
func NewResolver(categories []models.Category, payees []models.Payee) *Resolver {
	return &Resolver{categories: categories, payees: payees}
}

// Category resolves a reference to a category.
func (r *Resolver) Category(ref string) (*models.Category, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidCommand, "empty category reference")
	}

	if uuid.IsValid(ref) {
		for i := range r.categories {
			if r.categories[i].ID == ref {
				c := r.categories[i]
				return &c, nil
			}
		}
	}

	folded := strings.ToLower(ref)
	for i := range r.categories {
		if strings.ToLower(r.categories[i].Name) == folded {
			c := r.categories[i]
			return &c, nil
		}
	}

	var candidates []models.Category
	for i := range r.categories {
		if strings.Contains(strings.ToLower(r.categories[i].Name), folded) {
			candidates = append(candidates, r.categories[i])
		}
	}

	switch len(candidates) {
	case 1:
		c := candidates[0]
		return &c, nil
	case 0:
		return nil, apperrors.WithMessage(apperrors.ErrCategoryNotFound,
			fmt.Sprintf("No category matches %q", ref))
	default:
		return nil, apperrors.WithMessage(apperrors.ErrAmbiguousReference,
			fmt.Sprintf("%q matches several categories: %s; be more specific", ref, joinNames(candidateNames(candidates))))
	}
}

// Payee resolves a reference to a payee with the same matching rules.
func (r *Resolver) Payee(ref string) (*models.Payee, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidCommand, "empty payee reference")
	}

	if uuid.IsValid(ref) {
		for i := range r.payees {
			if r.payees[i].ID == ref {
				p := r.payees[i]
				return &p, nil
			}
		}
	}

	folded := strings.ToLower(ref)
	for i := range r.payees {
		if strings.ToLower(r.payees[i].Name) == folded {
			p := r.payees[i]
			return &p, nil
		}
	}

	var candidates []string
	var match *models.Payee
	for i := range r.payees {
		if strings.Contains(strings.ToLower(r.payees[i].Name), folded) {
			candidates = append(candidates, r.payees[i].Name)
			match = &r.payees[i]
		}
	}

	switch len(candidates) {
	case 1:
		p := *match
		return &p, nil
	case 0:
		return nil, apperrors.WithMessage(apperrors.ErrPayeeNotFound,
			fmt.Sprintf("No payee matches %q", ref))
	default:
		return nil, apperrors.WithMessage(apperrors.ErrAmbiguousReference,
			fmt.Sprintf("%q matches several payees: %s; be more specific", ref, joinNames(candidates)))
	}
}

func candidateNames(cats []models.Category) []string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names
}

func joinNames(names []string) string {
	const maxSuggestions = 5
	if len(names) > maxSuggestions {
		return strings.Join(names[:maxSuggestions], ", ") + ", ..."
	}
	return strings.Join(names, ", ")
}
