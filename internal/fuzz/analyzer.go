package fuzz

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/nao1215/surfacefuzz/internal/model"
)

// SensitiveDataAnalyzer reports responses containing any of a list of
// markers, such as database error messages or stack trace fragments.
// Matching ignores case. Each marker is reported once per response URL.
type SensitiveDataAnalyzer struct {
	markers [][]byte
	seen    map[string]struct{}
}

// NewSensitiveDataAnalyzer creates an analyzer for markers. Empty markers
// are ignored.
func NewSensitiveDataAnalyzer(markers []string) *SensitiveDataAnalyzer {
	a := &SensitiveDataAnalyzer{seen: make(map[string]struct{})}
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			a.markers = append(a.markers, []byte(strings.ToLower(m)))
		}
	}
	return a
}

// Analyze implements Analyzer.
func (a *SensitiveDataAnalyzer) Analyze(d Delivery) []model.Finding {
	if d.Document == nil || len(a.markers) == 0 {
		return nil
	}

	body := bytes.ToLower(d.Document.Body)
	var out []model.Finding
	for _, m := range a.markers {
		if !bytes.Contains(body, m) {
			continue
		}
		key := d.Document.URL + "\x00" + string(m)
		if _, dup := a.seen[key]; dup {
			continue
		}
		a.seen[key] = struct{}{}

		out = append(out, model.Finding{
			Kind:       model.KindSensitiveDataExposed,
			PageURL:    d.Page.URL,
			FormID:     d.Form.Label(),
			Input:      d.Input.Label(),
			Value:      d.Value,
			ResultURL:  d.Document.URL,
			StatusCode: d.Document.StatusCode,
			Detail:     fmt.Sprintf("response contains %q", string(m)),
		})
	}
	return out
}
