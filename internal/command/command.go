// Package command turns untrusted structured commands, typed by a human or
// proposed by the assistant, into store mutations. Commands are schema
// -validated envelopes; references are resolved fuzzily at this boundary
// and nothing below it ever sees a bare "name or id" string.
package command

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	apperrors "tally/internal/errors"
	"tally/internal/models"
)

// Action is the closed set of operations a command may request.
type Action string

const (
	ActionCreateCategory  Action = "create_category"
	ActionRenameCategory  Action = "rename_category"
	ActionRetypeCategory  Action = "retype_category"
	ActionMoveCategory    Action = "move_category"
	ActionDeleteCategory  Action = "delete_category"
	ActionMergeCategories Action = "merge_categories"
	ActionFindCategory    Action = "find_category"
	ActionCategoryUsage   Action = "check_category_usage"
	ActionCreatePayee     Action = "create_payee"
	ActionRenamePayee     Action = "rename_payee"
	ActionDeletePayee     Action = "delete_payee"
	ActionFindPayee       Action = "find_payee"
)

// Request is one untrusted command envelope. Reference fields (Name,
// Parent, Target, Sources) hold names or ids; they are resolved against
// the store before anything executes.
type Request struct {
	Action  Action   `json:"action" validate:"required"`
	Name    string   `json:"name,omitempty"`
	Type    string   `json:"type,omitempty"`
	NewName string   `json:"new_name,omitempty"`
	Parent  string   `json:"parent,omitempty"`
	ToRoot  bool     `json:"to_root,omitempty"`
	Target  string   `json:"target,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

var validate = validator.New()

// Validate checks the envelope's schema: a known action and the fields
// that action requires. Reference existence is checked later, at
// resolution time.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return apperrors.WithMessage(apperrors.ErrInvalidCommand, err.Error())
	}

	requireName := func(field, value string) error {
		if value == "" {
			return apperrors.WithMessage(apperrors.ErrInvalidCommand,
				fmt.Sprintf("%s requires %s", r.Action, field))
		}
		return nil
	}

	switch r.Action {
	case ActionCreateCategory:
		if err := requireName("name", r.Name); err != nil {
			return err
		}
		if _, ok := models.ParseAccountType(r.Type); !ok {
			return apperrors.WithMessage(apperrors.ErrInvalidCommand,
				fmt.Sprintf("unknown category type %q", r.Type))
		}
	case ActionRenameCategory, ActionRenamePayee:
		if err := requireName("name", r.Name); err != nil {
			return err
		}
		return requireName("new_name", r.NewName)
	case ActionRetypeCategory:
		if err := requireName("name", r.Name); err != nil {
			return err
		}
		if _, ok := models.ParseAccountType(r.Type); !ok {
			return apperrors.WithMessage(apperrors.ErrInvalidCommand,
				fmt.Sprintf("unknown category type %q", r.Type))
		}
	case ActionMoveCategory:
		if err := requireName("name", r.Name); err != nil {
			return err
		}
		if !r.ToRoot && r.Parent == "" {
			return apperrors.WithMessage(apperrors.ErrInvalidCommand,
				"move_category requires parent or to_root")
		}
	case ActionDeleteCategory, ActionFindCategory, ActionCategoryUsage,
		ActionCreatePayee, ActionDeletePayee, ActionFindPayee:
		return requireName("name", r.Name)
	case ActionMergeCategories:
		if len(r.Sources) == 0 {
			return apperrors.WithMessage(apperrors.ErrInvalidCommand,
				"merge_categories requires at least one source")
		}
		return requireName("target", r.Target)
	default:
		return apperrors.WithMessage(apperrors.ErrInvalidCommand,
			fmt.Sprintf("unknown action %q", r.Action))
	}
	return nil
}
