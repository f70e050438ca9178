package store

import "fmt"

// Reference names a record either by opaque id or by human-readable name.
// Callers resolve a Reference into a concrete record at the store boundary;
// nothing below that boundary accepts a bare "id or name" string.
type Reference struct {
	id   string
	name string
}

// ByID references a record by its store-assigned id.
func ByID(id string) Reference { return Reference{id: id} }

// ByName references a record by name, resolved case-insensitively.
func ByName(name string) Reference { return Reference{name: name} }

// ID returns the id half of the reference, if set.
func (r Reference) ID() string { return r.id }

// Name returns the name half of the reference, if set.
func (r Reference) Name() string { return r.name }

// IsZero reports whether the reference names nothing.
func (r Reference) IsZero() bool { return r.id == "" && r.name == "" }

// String renders the reference for error messages.
func (r Reference) String() string {
	if r.id != "" {
		return fmt.Sprintf("id %s", r.id)
	}
	return fmt.Sprintf("%q", r.name)
}
