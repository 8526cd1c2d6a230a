package fetch

import (
	"context"
	"net/url"
	"strings"

	"github.com/nao1215/surfacefuzz/internal/model"
)

// Fetcher retrieves pages and submits forms.
type Fetcher interface {
	// Fetch retrieves rawURL. Any status outside 2xx is an *Error.
	Fetch(ctx context.Context, rawURL string) (*Document, error)

	// Submit submits form as found on pageURL. values override the default
	// value of the inputs they reference. A response with any status is
	// returned as a Document; only transport failures are errors.
	Submit(ctx context.Context, pageURL string, form model.Form, values map[model.InputRef]string) (*Document, error)
}

// Prober answers whether a URL exists without following redirects.
type Prober interface {
	Exists(ctx context.Context, rawURL string) bool
}

// RawForm is a form as parsed, before role classification.
type RawForm struct {
	Index   int
	ID      string
	Name    string
	Action  string
	Method  string
	Enctype string
	Inputs  []model.Input
}

// Document is a fetched response with its parsed content.
type Document struct {
	// URL is the final URL after redirects.
	URL string

	// RequestURL is the URL that was asked for.
	RequestURL string

	StatusCode  int
	ContentType string
	Title       string
	Body        []byte
	Links       []string
	Forms       []RawForm
	Cookies     []model.CookieSnapshot
}

// IsHTML reports whether the document was parsed as HTML.
func (d *Document) IsHTML() bool {
	ct := strings.ToLower(d.ContentType)
	return ct == "" || strings.Contains(ct, "html")
}

// Redirected reports whether the final URL differs from the requested one.
func (d *Document) Redirected() bool {
	return model.NormalizeURL(d.URL) != model.NormalizeURL(d.RequestURL)
}

// Query returns the raw query string of the final URL.
func (d *Document) Query() string {
	u, err := url.Parse(d.URL)
	if err != nil {
		return ""
	}
	return u.RawQuery
}

// FormValues builds the submission fields for form: every named input with
// its default value, overridden by values. Only the form's submit control
// is sent among push buttons, and unchecked checkboxes and radios are left
// out unless overridden.
func FormValues(form model.Form, values map[model.InputRef]string) url.Values {
	out := url.Values{}
	for _, in := range form.Inputs {
		if in.Name == "" {
			continue
		}
		override, overridden := values[in.Ref]

		switch {
		case in.IsButton():
			if in.Ref != form.SubmitControl && !overridden {
				continue
			}
		case in.DeclaredType == "checkbox" || in.DeclaredType == "radio":
			if !in.Checked && !overridden {
				continue
			}
		}

		v := in.Value
		if overridden {
			v = override
		}
		out.Add(in.Name, v)
	}
	return out
}
