// Package importer validates and inserts bulk category rows. Rows may name
// parents that exist in the tenant, elsewhere in the same file, or nowhere
// (auto-created on request). Because the remote store cannot insert a batch
// whose rows reference each other by name, insertion happens in two phases:
// parentless rows first, then children with parent names resolved against
// the refreshed category list.
package importer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperrors "tally/internal/errors"
	"tally/internal/hierarchy"
	"tally/internal/models"
	"tally/internal/store"
)

// Row is one parsed import row.
type Row struct {
	Name   string
	Type   string
	Parent string
	Line   int
}

func (r Row) blank() bool {
	return strings.TrimSpace(r.Name) == "" && strings.TrimSpace(r.Type) == ""
}

// RowIssue describes why one row was rejected.
type RowIssue struct {
	Line   int    `json:"line"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// ValidationError aggregates every rejected row in a file.
type ValidationError struct {
	Issues []RowIssue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("import failed validation: %d row(s) rejected", len(e.Issues))
}

// Unwrap lets errors.As surface the INVALID_IMPORT app error code.
func (e *ValidationError) Unwrap() error { return apperrors.ErrInvalidImport }

// Options controls import behavior.
type Options struct {
	// AutoCreateParents synthesizes a missing parent (with the child's
	// type) instead of rejecting the row.
	AutoCreateParents bool
}

// Summary reports what an import created.
type Summary struct {
	Created            []models.Category `json:"created"`
	AutoCreatedParents []string          `json:"auto_created_parents,omitempty"`
}

// Pipeline runs category and payee imports against a company's stores.
type Pipeline struct {
	log *zap.SugaredLogger
}

// NewPipeline creates an import pipeline.
func NewPipeline(log *zap.SugaredLogger) *Pipeline {
	return &Pipeline{log: log}
}

// ImportCategories validates, orders, and inserts the given rows.
// Validation follows a fixed order: empty file, then per-row name/type
// checks, then cross-row duplicate and parent checks. Any issue rejects the
// whole file; nothing is inserted.
func (p *Pipeline) ImportCategories(ctx context.Context, st *store.CategoryStore, rows []Row, opts Options) (*Summary, error) {
	usable := make([]Row, 0, len(rows))
	var issues []RowIssue

	for _, row := range rows {
		if row.blank() {
			continue
		}
		name := strings.TrimSpace(row.Name)
		if name == "" {
			issues = append(issues, RowIssue{Line: row.Line, Reason: "missing name"})
			continue
		}
		if strings.TrimSpace(row.Type) == "" {
			issues = append(issues, RowIssue{Line: row.Line, Name: name, Reason: "missing type"})
			continue
		}
		if _, ok := models.ParseAccountType(row.Type); !ok {
			issues = append(issues, RowIssue{Line: row.Line, Name: name,
				Reason: fmt.Sprintf("unknown type %q", row.Type)})
			continue
		}
		row.Name = name
		usable = append(usable, row)
	}

	if len(usable) == 0 && len(issues) == 0 {
		return nil, apperrors.ErrEmptyImport
	}

	existing := st.Categories()
	inFile := make(map[string]Row, len(usable))
	for _, row := range usable {
		folded := strings.ToLower(row.Name)
		if !hierarchy.NameIsUnique(existing, row.Name, "") {
			issues = append(issues, RowIssue{Line: row.Line, Name: row.Name,
				Reason: "a category with this name already exists"})
			continue
		}
		if _, dup := inFile[folded]; dup {
			issues = append(issues, RowIssue{Line: row.Line, Name: row.Name,
				Reason: "duplicated within the file"})
			continue
		}
		inFile[folded] = row
	}

	// Parent resolution: in tenant, in file, or neither. A found parent
	// must share the child's type.
	needsParent := make(map[string]models.AccountType) // folded parent name -> child type
	for _, row := range usable {
		parent := strings.TrimSpace(row.Parent)
		if parent == "" {
			continue
		}
		rowType, _ := models.ParseAccountType(row.Type)
		if tenantParent := hierarchy.FindByName(existing, parent, ""); tenantParent != nil {
			if tenantParent.Type != rowType {
				issues = append(issues, RowIssue{Line: row.Line, Name: row.Name,
					Reason: fmt.Sprintf("type %s does not match parent %q (%s)", rowType, tenantParent.Name, tenantParent.Type)})
			}
			continue
		}
		if fileParent, ok := inFile[strings.ToLower(parent)]; ok {
			parentType, _ := models.ParseAccountType(fileParent.Type)
			if parentType != rowType {
				issues = append(issues, RowIssue{Line: row.Line, Name: row.Name,
					Reason: fmt.Sprintf("type %s does not match parent %q (%s)", rowType, fileParent.Name, parentType)})
			}
			continue
		}
		if !opts.AutoCreateParents {
			issues = append(issues, RowIssue{Line: row.Line, Name: row.Name,
				Reason: fmt.Sprintf("parent %q not found", parent)})
			continue
		}
		needsParent[strings.ToLower(parent)] = rowType
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	ordered := orderRows(usable)

	// Phase 1: parentless rows plus synthesized missing parents. Children
	// cannot go in the same batch because they need their parents' assigned
	// ids.
	var phase1 []store.CategorySpec
	var autoCreated []string
	for folded, childType := range needsParent {
		// Recover the display-cased name from the first row that named it.
		display := folded
		for _, row := range ordered {
			if strings.ToLower(strings.TrimSpace(row.Parent)) == folded {
				display = strings.TrimSpace(row.Parent)
				break
			}
		}
		phase1 = append(phase1, store.CategorySpec{Name: display, Type: childType})
		autoCreated = append(autoCreated, display)
	}
	var phase2Rows []Row
	for _, row := range ordered {
		if strings.TrimSpace(row.Parent) == "" {
			rowType, _ := models.ParseAccountType(row.Type)
			phase1 = append(phase1, store.CategorySpec{Name: row.Name, Type: rowType})
			continue
		}
		phase2Rows = append(phase2Rows, row)
	}

	summary := &Summary{AutoCreatedParents: autoCreated}
	created, err := st.CreateMany(ctx, phase1)
	if err != nil {
		return nil, err
	}
	summary.Created = append(summary.Created, created...)

	if len(phase2Rows) == 0 {
		return summary, nil
	}

	// Phase 2: re-resolve parent names against the updated category list
	// so children pick up the ids assigned in phase 1.
	refreshed := st.Categories()
	phase2 := make([]store.CategorySpec, 0, len(phase2Rows))
	for _, row := range phase2Rows {
		rowType, _ := models.ParseAccountType(row.Type)
		parent := hierarchy.FindByName(refreshed, strings.TrimSpace(row.Parent), "")
		if parent == nil {
			return summary, apperrors.WithMessage(apperrors.ErrParentNotFound,
				fmt.Sprintf("Parent %q disappeared between import phases", row.Parent))
		}
		parentID := parent.ID
		phase2 = append(phase2, store.CategorySpec{Name: row.Name, Type: rowType, ParentID: &parentID})
	}

	created, err = st.CreateMany(ctx, phase2)
	if err != nil {
		return summary, err
	}
	summary.Created = append(summary.Created, created...)

	p.log.Infow("category import completed",
		"company_id", st.CompanyID(),
		"created", len(summary.Created),
		"auto_created_parents", len(autoCreated),
	)
	return summary, nil
}

// ImportPayees inserts payee names, rejecting the file if any name is
// empty, duplicated, or already taken.
func (p *Pipeline) ImportPayees(ctx context.Context, ps *store.PayeeStore, names []string) ([]models.Payee, error) {
	var issues []RowIssue
	existing := ps.Payees()
	taken := make(map[string]bool, len(existing))
	for _, payee := range existing {
		taken[strings.ToLower(payee.Name)] = true
	}

	cleaned := make([]string, 0, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		folded := strings.ToLower(name)
		if taken[folded] {
			issues = append(issues, RowIssue{Line: i + 1, Name: name,
				Reason: "a payee with this name already exists"})
			continue
		}
		taken[folded] = true
		cleaned = append(cleaned, name)
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	if len(cleaned) == 0 {
		return nil, apperrors.ErrEmptyImport
	}

	created := make([]models.Payee, 0, len(cleaned))
	for _, name := range cleaned {
		payee, err := ps.Create(ctx, name)
		if err != nil {
			return created, err
		}
		created = append(created, *payee)
	}
	return created, nil
}

// orderRows sorts rows so a parent row always precedes any row naming it as
// parent. Depth-first with a "currently visiting" guard so an accidental
// cycle in the input cannot recurse forever; cyclic rows fall back to input
// order.
func orderRows(rows []Row) []Row {
	byName := make(map[string]int, len(rows))
	for i, row := range rows {
		byName[strings.ToLower(row.Name)] = i
	}

	ordered := make([]Row, 0, len(rows))
	done := make([]bool, len(rows))
	visiting := make([]bool, len(rows))

	var visit func(i int)
	visit = func(i int) {
		if done[i] || visiting[i] {
			return
		}
		visiting[i] = true
		parent := strings.ToLower(strings.TrimSpace(rows[i].Parent))
		if parent != "" {
			if j, ok := byName[parent]; ok {
				visit(j)
			}
		}
		visiting[i] = false
		done[i] = true
		ordered = append(ordered, rows[i])
	}

	for i := range rows {
		visit(i)
	}
	return ordered
}
