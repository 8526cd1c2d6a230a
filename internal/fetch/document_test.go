package fetch

import (
	"testing"

	"github.com/nao1215/surfacefuzz/internal/model"
)

func loginForm() model.Form {
	return model.Form{
		Action: "http://example.test/login",
		Method: "POST",
		Inputs: []model.Input{
			{Ref: 0, Tag: "input", Name: "user", DeclaredType: "text"},
			{Ref: 1, Tag: "input", Name: "pass", DeclaredType: "password"},
			{Ref: 2, Tag: "input", Name: "remember", DeclaredType: "checkbox", Value: "on"},
			{Ref: 3, Tag: "input", Name: "lang", DeclaredType: "radio", Value: "en", Checked: true},
			{Ref: 4, Tag: "input", DeclaredType: "hidden", Value: "unnamed"},
			{Ref: 5, Tag: "input", Name: "go", DeclaredType: "submit", Value: "Sign in"},
			{Ref: 6, Tag: "button", Name: "cancel", DeclaredType: "button", Value: "Cancel"},
		},
		SubmitControl: 5,
		UsernameField: 0,
		PasswordField: 1,
	}
}

func TestFormValues(t *testing.T) {
	t.Parallel()

	values := FormValues(loginForm(), map[model.InputRef]string{
		0: "admin",
		1: "secret",
	})

	expected := map[string]string{
		"user": "admin",
		"pass": "secret",
		"lang": "en",
		"go":   "Sign in",
	}
	if len(values) != len(expected) {
		t.Errorf("got %d fields %v, expected %d", len(values), values, len(expected))
	}
	for k, v := range expected {
		if got := values.Get(k); got != v {
			t.Errorf("field %q = %q, expected %q", k, got, v)
		}
	}
	if values.Has("remember") {
		t.Error("unchecked checkbox should not be sent")
	}
	if values.Has("cancel") {
		t.Error("a button other than the submit control should not be sent")
	}
}

func TestFormValues_OverrideUnchecked(t *testing.T) {
	t.Parallel()

	values := FormValues(loginForm(), map[model.InputRef]string{2: "<script>"})
	if got := values.Get("remember"); got != "<script>" {
		t.Errorf("remember = %q, expected the override", got)
	}
}

func TestDocument_Redirected(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		doc      Document
		expected bool
	}{
		{"same", Document{URL: "http://example.test/a", RequestURL: "http://example.test/a"}, false},
		{"fragment only", Document{URL: "http://example.test/a#x", RequestURL: "http://example.test/a"}, false},
		{"moved", Document{URL: "http://example.test/home", RequestURL: "http://example.test/login"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.doc.Redirected(); got != tc.expected {
				t.Errorf("Redirected() = %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestDocument_IsHTML(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		contentType string
		expected    bool
	}{
		{"", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"application/json", false},
		{"image/png", false},
	}

	for _, tc := range testCases {
		t.Run(tc.contentType, func(t *testing.T) {
			t.Parallel()
			d := Document{ContentType: tc.contentType}
			if got := d.IsHTML(); got != tc.expected {
				t.Errorf("IsHTML() = %v, expected %v", got, tc.expected)
			}
		})
	}
}
