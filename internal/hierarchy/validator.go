// Package hierarchy holds the pure predicates that gate every category
// mutation: name uniqueness, parent/child type compatibility, and
// cycle-freedom. The functions have no side effects and operate on a
// snapshot of the company's categories.
package hierarchy

import (
	"strings"

	"tally/internal/models"
)

// NameIsUnique reports whether no live category other than excludeID already
// uses the given name. Comparison is case-insensitive.
func NameIsUnique(categories []models.Category, name, excludeID string) bool {
	return FindByName(categories, name, excludeID) == nil
}

// FindByName returns the category (other than excludeID) whose name matches
// case-insensitively, or nil. Used to carry the colliding category into a
// merge suggestion instead of a bare conflict error.
func FindByName(categories []models.Category, name, excludeID string) *models.Category {
	folded := strings.ToLower(strings.TrimSpace(name))
	for i := range categories {
		if categories[i].ID == excludeID {
			continue
		}
		if strings.ToLower(categories[i].Name) == folded {
			return &categories[i]
		}
	}
	return nil
}

// TypesCompatible reports whether a category of childType may sit under
// parentID. A nil parent is always compatible; otherwise the parent must
// exist and carry the same type.
func TypesCompatible(categories []models.Category, childType models.AccountType, parentID *string) bool {
	if parentID == nil {
		return true
	}
	for i := range categories {
		if categories[i].ID == *parentID {
			return categories[i].Type == childType
		}
	}
	return false
}

// NoCycle reports whether assigning proposedParentID as the parent of
// categoryID keeps the hierarchy acyclic. A category may not parent itself
// (checked first as a fast path), and the proposed parent's ancestor chain
// must not contain categoryID. The walk is bounded by the category count to
// survive malformed data that already contains a loop.
func NoCycle(categories []models.Category, categoryID string, proposedParentID *string) bool {
	if proposedParentID == nil {
		return true
	}
	if *proposedParentID == categoryID {
		return false
	}

	byID := make(map[string]*models.Category, len(categories))
	for i := range categories {
		byID[categories[i].ID] = &categories[i]
	}

	current := byID[*proposedParentID]
	for steps := 0; current != nil && current.ParentID != nil; steps++ {
		if steps >= len(categories) {
			// The existing chain does not terminate; refuse to extend it.
			return false
		}
		if *current.ParentID == categoryID {
			return false
		}
		current = byID[*current.ParentID]
	}
	return true
}

// IsAncestor reports whether ancestorID appears anywhere in the ancestor
// chain of categoryID. The walk is bounded like NoCycle.
func IsAncestor(categories []models.Category, ancestorID, categoryID string) bool {
	byID := make(map[string]*models.Category, len(categories))
	for i := range categories {
		byID[categories[i].ID] = &categories[i]
	}

	current := byID[categoryID]
	for steps := 0; current != nil && current.ParentID != nil; steps++ {
		if steps >= len(categories) {
			return false
		}
		if *current.ParentID == ancestorID {
			return true
		}
		current = byID[*current.ParentID]
	}
	return false
}
