package classifier

import (
	"testing"

	"github.com/nao1215/surfacefuzz/internal/fetch"
	"github.com/nao1215/surfacefuzz/internal/model"
)

func inputs(specs ...[3]string) []model.Input {
	out := make([]model.Input, 0, len(specs))
	for i, s := range specs {
		out = append(out, model.Input{Ref: model.InputRef(i), Tag: s[0], DeclaredType: s[1], Name: s[2]})
	}
	return out
}

func TestClassifyForm(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		inputs       []model.Input
		requiresAuth bool
		submit       model.InputRef
		username     model.InputRef
		password     model.InputRef
	}{
		{
			name: "login form",
			inputs: inputs(
				[3]string{"input", "text", "username"},
				[3]string{"input", "password", "pass"},
				[3]string{"input", "submit", "go"},
			),
			requiresAuth: true,
			submit:       2,
			username:     0,
			password:     1,
		},
		{
			name: "search form",
			inputs: inputs(
				[3]string{"input", "text", "q"},
				[3]string{"button", "submit", ""},
			),
			submit:   1,
			username: model.NoInput,
			password: model.NoInput,
		},
		{
			name: "generic single text field in a login form",
			inputs: inputs(
				[3]string{"input", "hidden", "csrf"},
				[3]string{"input", "text", "who"},
				[3]string{"input", "password", "pw"},
				[3]string{"input", "image", "send"},
			),
			requiresAuth: true,
			submit:       3,
			username:     1,
			password:     2,
		},
		{
			name: "text field right before the password field",
			inputs: inputs(
				[3]string{"input", "text", "search"},
				[3]string{"input", "text", "who"},
				[3]string{"input", "password", "pw"},
				[3]string{"input", "text", "otp"},
				[3]string{"input", "submit", "go"},
			),
			requiresAuth: true,
			submit:       4,
			username:     1,
			password:     2,
		},
		{
			name: "single text field after the password field",
			inputs: inputs(
				[3]string{"input", "password", "pw"},
				[3]string{"input", "text", "who"},
			),
			requiresAuth: true,
			submit:       model.NoInput,
			username:     1,
			password:     0,
		},
		{
			name: "email beats first text field",
			inputs: inputs(
				[3]string{"input", "text", "nickname"},
				[3]string{"input", "email", "contact"},
				[3]string{"input", "password", "pw"},
			),
			requiresAuth: true,
			submit:       model.NoInput,
			username:     1,
			password:     2,
		},
		{
			name: "no submit control",
			inputs: inputs(
				[3]string{"textarea", "textarea", "comment"},
				[3]string{"input", "button", "preview"},
			),
			submit:   model.NoInput,
			username: model.NoInput,
			password: model.NoInput,
		},
		{
			name: "first of several password fields",
			inputs: inputs(
				[3]string{"input", "text", "login"},
				[3]string{"input", "password", "new"},
				[3]string{"input", "password", "confirm"},
				[3]string{"input", "submit", "a"},
				[3]string{"input", "submit", "b"},
			),
			requiresAuth: true,
			submit:       3,
			username:     0,
			password:     1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			form := ClassifyForm(fetch.RawForm{Index: 1, ID: "f", Inputs: tc.inputs})

			if form.RequiresAuthentication != tc.requiresAuth {
				t.Errorf("RequiresAuthentication = %v, expected %v", form.RequiresAuthentication, tc.requiresAuth)
			}
			if form.SubmitControl != tc.submit {
				t.Errorf("SubmitControl = %d, expected %d", form.SubmitControl, tc.submit)
			}
			if form.UsernameField != tc.username {
				t.Errorf("UsernameField = %d, expected %d", form.UsernameField, tc.username)
			}
			if form.PasswordField != tc.password {
				t.Errorf("PasswordField = %d, expected %d", form.PasswordField, tc.password)
			}
			if form.Index != 1 || form.ID != "f" {
				t.Errorf("form identity not kept: index %d id %q", form.Index, form.ID)
			}
		})
	}
}

func TestClassify_KeepsOrder(t *testing.T) {
	t.Parallel()

	raw := []fetch.RawForm{
		{Index: 0, ID: "a"},
		{Index: 1, ID: "b", Inputs: inputs([3]string{"input", "password", "p"})},
	}
	forms := Classify(raw)

	if len(forms) != 2 {
		t.Fatalf("got %d forms, expected 2", len(forms))
	}
	if forms[0].ID != "a" || forms[1].ID != "b" {
		t.Errorf("order not kept: %q, %q", forms[0].ID, forms[1].ID)
	}
	if forms[0].RequiresAuthentication || !forms[1].RequiresAuthentication {
		t.Error("authentication flag assigned to the wrong form")
	}
	if forms[1].CanAuthenticate() {
		t.Error("a form without username or submit control cannot authenticate")
	}
}
