package model

// Summary condenses a run into counts.
type Summary struct {
	SiteURL string `json:"site_url"`

	Pages     int `json:"pages"`
	Forms     int `json:"forms"`
	AuthForms int `json:"auth_forms"`
	Inputs    int `json:"inputs"`

	Attempts           int `json:"attempts"`
	SuccessfulAttempts int `json:"successful_attempts"`

	Findings int                 `json:"findings"`
	ByKind   map[FindingKind]int `json:"by_kind"`

	// HighestSeverity is the worst severity found, SeverityInfo when empty.
	HighestSeverity Severity `json:"highest_severity"`
}

// NewSummary computes the summary of run.
func NewSummary(run *Run) Summary {
	s := Summary{
		SiteURL: run.SiteURL,
		ByKind:  make(map[FindingKind]int),
	}
	if run.Site == nil {
		return s
	}

	for _, p := range run.Site.Pages() {
		s.Pages++
		for _, f := range p.Forms {
			s.Forms++
			s.Inputs += len(f.Inputs)
			if f.RequiresAuthentication {
				s.AuthForms++
			}
		}
	}

	for _, a := range run.Site.Attempts() {
		s.Attempts++
		if a.Succeeded() {
			s.SuccessfulAttempts++
		}
	}

	for _, f := range run.Site.Findings() {
		s.Findings++
		s.ByKind[f.Kind]++
		if sev := f.Severity(); sev > s.HighestSeverity {
			s.HighestSeverity = sev
		}
	}
	return s
}

// Count returns the number of findings of kind.
func (s Summary) Count(kind FindingKind) int {
	return s.ByKind[kind]
}
