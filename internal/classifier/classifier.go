package classifier

import (
	"strings"

	"github.com/nao1215/surfacefuzz/internal/fetch"
	"github.com/nao1215/surfacefuzz/internal/model"
)

// usernameHints are matched case-insensitively against input ids and names.
var usernameHints = []string{"user", "login", "email", "mail", "account", "uid"}

// Classify classifies every form of a page, keeping their order.
func Classify(raw []fetch.RawForm) []model.Form {
	forms := make([]model.Form, 0, len(raw))
	for _, rf := range raw {
		forms = append(forms, ClassifyForm(rf))
	}
	return forms
}

// ClassifyForm scans the inputs of rf once and fills in the form's roles.
// Roles that cannot be found are left as model.NoInput.
func ClassifyForm(rf fetch.RawForm) model.Form {
	form := model.Form{
		Index:         rf.Index,
		ID:            rf.ID,
		Name:          rf.Name,
		Action:        rf.Action,
		Method:        rf.Method,
		Enctype:       rf.Enctype,
		Inputs:        rf.Inputs,
		SubmitControl: model.NoInput,
		UsernameField: model.NoInput,
		PasswordField: model.NoInput,
	}

	var textFields []model.InputRef
	for _, in := range rf.Inputs {
		switch {
		case in.DeclaredType == "password":
			form.RequiresAuthentication = true
			if !form.PasswordField.Valid() {
				form.PasswordField = in.Ref
			}
		case in.IsSubmit():
			if !form.SubmitControl.Valid() {
				form.SubmitControl = in.Ref
			}
		case isTextual(in):
			textFields = append(textFields, in.Ref)
			if !form.UsernameField.Valid() && looksLikeUsername(in) {
				form.UsernameField = in.Ref
			}
		}
	}

	// A login form often names its username field something generic.
	if form.RequiresAuthentication && !form.UsernameField.Valid() {
		form.UsernameField = positionalUsername(textFields, form.PasswordField)
	}
	return form
}

// positionalUsername picks the text field closest before the password
// field, or the only text field when none precedes it.
func positionalUsername(textFields []model.InputRef, password model.InputRef) model.InputRef {
	found := model.NoInput
	for _, ref := range textFields {
		if ref < password {
			found = ref
		}
	}
	if !found.Valid() && len(textFields) == 1 {
		found = textFields[0]
	}
	return found
}

func isTextual(in model.Input) bool {
	if in.Tag != "input" {
		return false
	}
	switch in.DeclaredType {
	case "text", "email", "tel", "":
		return true
	}
	return false
}

func looksLikeUsername(in model.Input) bool {
	if in.DeclaredType == "email" {
		return true
	}
	id := strings.ToLower(in.ID)
	name := strings.ToLower(in.Name)
	for _, hint := range usernameHints {
		if strings.Contains(id, hint) || strings.Contains(name, hint) {
			return true
		}
	}
	return false
}
