package fetch

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/surfacefuzz/internal/model"
)

const (
	htmlElementInput    = "input"
	htmlElementSelect   = "select"
	htmlElementTextarea = "textarea"
	htmlElementButton   = "button"
)

// Parser extracts the title, outgoing links and forms of an HTML page.
// Relative references resolve against the page URL or its <base href>.
type Parser struct {
	baseURL *url.URL
}

// ParseResult is the content extracted from one page.
type ParseResult struct {
	Title string

	// Links are absolute, fragment-free and de-duplicated, in document order.
	Links []string

	// Forms are in document order; Index is the position among them.
	Forms []RawForm
}

// NewParser creates a parser resolving against pageURL.
func NewParser(pageURL string) (*Parser, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse reads an HTML document from content.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	root, err := html.Parse(content)
	if err != nil {
		return nil, err
	}
	doc := goquery.NewDocumentFromNode(root)

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
			p.baseURL = p.baseURL.ResolveReference(u)
		}
	}

	result := &ParseResult{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	seen := make(map[string]struct{})
	doc.Find("a[href], area[href], frame[src], iframe[src]").Each(func(_ int, s *goquery.Selection) {
		ref, ok := s.Attr("href")
		if !ok {
			ref, _ = s.Attr("src")
		}
		link := p.resolveURL(ref)
		if link == "" {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		result.Links = append(result.Links, link)
	})

	doc.Find("form").Each(func(i int, s *goquery.Selection) {
		result.Forms = append(result.Forms, p.parseForm(i, s))
	})

	return result, nil
}

func (p *Parser) parseForm(index int, s *goquery.Selection) RawForm {
	form := RawForm{
		Index:   index,
		ID:      s.AttrOr("id", ""),
		Name:    s.AttrOr("name", ""),
		Method:  strings.ToUpper(strings.TrimSpace(s.AttrOr("method", ""))),
		Enctype: strings.ToLower(strings.TrimSpace(s.AttrOr("enctype", ""))),
	}
	if form.Method != "POST" {
		form.Method = "GET"
	}

	// An absent or empty action submits to the page itself.
	form.Action = p.baseURL.String()
	if action := strings.TrimSpace(s.AttrOr("action", "")); action != "" {
		if resolved := p.resolveAction(action); resolved != "" {
			form.Action = resolved
		}
	}

	s.Find("input, textarea, select, button").Each(func(_ int, el *goquery.Selection) {
		form.Inputs = append(form.Inputs, parseInput(model.InputRef(len(form.Inputs)), el))
	})
	return form
}

func parseInput(ref model.InputRef, el *goquery.Selection) model.Input {
	tag := goquery.NodeName(el)
	in := model.Input{
		Ref:          ref,
		Tag:          tag,
		Name:         el.AttrOr("name", ""),
		ID:           el.AttrOr("id", ""),
		DeclaredType: strings.ToLower(strings.TrimSpace(el.AttrOr("type", ""))),
	}

	switch tag {
	case htmlElementTextarea:
		in.DeclaredType = htmlElementTextarea
		in.Value = el.Text()
	case htmlElementSelect:
		in.DeclaredType = htmlElementSelect
		in.Value = selectedOption(el)
	case htmlElementButton:
		if in.DeclaredType == "" {
			in.DeclaredType = "submit"
		}
		in.Value = el.AttrOr("value", "")
	default:
		if in.DeclaredType == "" {
			in.DeclaredType = "text"
		}
		in.Value = el.AttrOr("value", "")
		_, in.Checked = el.Attr("checked")
	}
	return in
}

func selectedOption(el *goquery.Selection) string {
	option := el.Find("option[selected]").First()
	if option.Length() == 0 {
		option = el.Find("option").First()
	}
	if option.Length() == 0 {
		return ""
	}
	if v, ok := option.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(option.Text())
}

// resolveURL turns a link reference into an absolute http(s) URL without
// fragment. Non-navigational schemes and bare fragments yield "".
func (p *Parser) resolveURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := p.baseURL.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return model.NormalizeURL(resolved.String())
}

func (p *Parser) resolveAction(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return p.baseURL.ResolveReference(u).String()
}
