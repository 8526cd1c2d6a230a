package model

import (
	"fmt"
	"strings"
)

// InputRef identifies an input by its position in Form.Inputs.
type InputRef int

// NoInput marks an absent role (no submit control, no password field...).
const NoInput InputRef = -1

// Valid reports whether the reference points at an input.
func (r InputRef) Valid() bool {
	return r >= 0
}

// Input is one submittable control of a form.
type Input struct {
	// Ref is the position inside the owning form's Inputs.
	Ref InputRef `json:"ref"`

	// Tag is the element name: input, textarea, select or button.
	Tag string `json:"tag"`

	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`

	// DeclaredType is the lowercased type attribute, "text" when absent.
	DeclaredType string `json:"type"`

	// Value is the default value sent when the input is not overridden.
	Value string `json:"value,omitempty"`

	// Checked is set for pre-selected checkboxes and radio buttons.
	Checked bool `json:"checked,omitempty"`
}

// Label returns the most descriptive identifier of the input.
func (in Input) Label() string {
	switch {
	case in.ID != "":
		return in.ID
	case in.Name != "":
		return in.Name
	default:
		return fmt.Sprintf("%s#%d", in.Tag, in.Ref)
	}
}

// IsButton reports whether the input is a push control rather than a data field.
func (in Input) IsButton() bool {
	switch in.DeclaredType {
	case "submit", "button", "image", "reset":
		return true
	}
	return false
}

// IsSubmit reports whether activating the input submits the form.
func (in Input) IsSubmit() bool {
	return in.DeclaredType == "submit" || in.DeclaredType == "image"
}

// Form is an HTML form after classification.
type Form struct {
	// Index is the position of the form on its page.
	Index int `json:"index"`

	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Action  string `json:"action"`
	Method  string `json:"method"`
	Enctype string `json:"enctype,omitempty"`

	Inputs []Input `json:"inputs,omitempty"`

	// RequiresAuthentication is true iff the form has a password field.
	RequiresAuthentication bool `json:"requires_authentication"`

	SubmitControl InputRef `json:"submit_control"`
	UsernameField InputRef `json:"username_field"`
	PasswordField InputRef `json:"password_field"`
}

// Label returns the id, the name or a positional label.
func (f Form) Label() string {
	switch {
	case f.ID != "":
		return f.ID
	case f.Name != "":
		return f.Name
	default:
		return fmt.Sprintf("form#%d", f.Index)
	}
}

// Submittable reports whether the form has a control that submits it.
func (f Form) Submittable() bool {
	_, ok := f.Input(f.SubmitControl)
	return ok
}

// CanAuthenticate reports whether username, password and submit roles are all filled.
func (f Form) CanAuthenticate() bool {
	_, user := f.Input(f.UsernameField)
	_, pass := f.Input(f.PasswordField)
	return user && pass && f.Submittable()
}

// Input returns the input at ref.
func (f Form) Input(ref InputRef) (Input, bool) {
	if !ref.Valid() || int(ref) >= len(f.Inputs) {
		return Input{}, false
	}
	return f.Inputs[ref], true
}

// FuzzTargets returns every data-bearing input that a submission carries,
// password fields included. A control without a name is never sent.
func (f Form) FuzzTargets() []Input {
	targets := make([]Input, 0, len(f.Inputs))
	for _, in := range f.Inputs {
		if in.IsButton() || in.Name == "" {
			continue
		}
		targets = append(targets, in)
	}
	return targets
}

// UnnamedInputs returns the data-bearing inputs left out of every
// submission because they have no name.
func (f Form) UnnamedInputs() []Input {
	var out []Input
	for _, in := range f.Inputs {
		if !in.IsButton() && in.Name == "" {
			out = append(out, in)
		}
	}
	return out
}

// IsPost reports whether the form submits with POST.
func (f Form) IsPost() bool {
	return strings.EqualFold(f.Method, "POST")
}
