package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nao1215/surfacefuzz/internal/crawler"
	"github.com/nao1215/surfacefuzz/internal/fetch"
	"github.com/nao1215/surfacefuzz/internal/model"
)

// loginServer accepts one password. Accepted logins redirect to /home,
// rejected ones render the login page again.
type loginServer struct {
	mu        sync.Mutex
	password  string
	marker    string
	submitted []string
	failWith  error
}

func (s *loginServer) Fetch(context.Context, string) (*fetch.Document, error) {
	return nil, errors.New("unused")
}

func (s *loginServer) Submit(_ context.Context, pageURL string, form model.Form, values map[model.InputRef]string) (*fetch.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}
	pw := values[form.PasswordField]
	s.submitted = append(s.submitted, pw)

	if pw == s.password {
		return &fetch.Document{
			URL:        "http://ex.test/home",
			RequestURL: form.Action,
			StatusCode: 200,
			Body:       []byte("hello " + s.marker),
		}, nil
	}
	return &fetch.Document{URL: pageURL, RequestURL: form.Action, StatusCode: 200, Body: []byte("bad password")}, nil
}

func loginPage() (*model.Page, model.Form) {
	form := model.Form{
		Index:  0,
		ID:     "login",
		Action: "http://ex.test/login",
		Method: "POST",
		Inputs: []model.Input{
			{Ref: 0, Tag: "input", Name: "user", DeclaredType: "text"},
			{Ref: 1, Tag: "input", Name: "pass", DeclaredType: "password"},
			{Ref: 2, Tag: "input", DeclaredType: "submit"},
		},
		RequiresAuthentication: true,
		UsernameField:          0,
		PasswordField:          1,
		SubmitControl:          2,
	}
	page := &model.Page{URL: "http://ex.test/login", Forms: []model.Form{form}}
	return page, form
}

func outcomes(results []Result) []model.AttemptOutcome {
	out := make([]model.AttemptOutcome, 0, len(results))
	for _, r := range results {
		out = append(out, r.Attempt.Outcome)
	}
	return out
}

func TestAttempt_DictionaryTriesEveryWord(t *testing.T) {
	t.Parallel()

	srv := &loginServer{password: "pass"}
	page, form := loginPage()
	p := NewProber(srv, "admin", WithDictionary([]string{"x", "pass", "y"}))

	results := p.Attempt(context.Background(), page, form, "admin", p.Candidates())

	got := outcomes(results)
	expected := []model.AttemptOutcome{model.OutcomeFailure, model.OutcomeSuccess, model.OutcomeFailure}
	if len(got) != len(expected) {
		t.Fatalf("got %d attempts, expected %d", len(got), len(expected))
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("attempt %d = %s, expected %s", i, got[i], expected[i])
		}
	}
	if results[1].Landing == nil || results[1].Landing.URL != "http://ex.test/home" {
		t.Errorf("successful attempt should carry the landing document")
	}
	for i, r := range results {
		if r.Attempt.Username != "admin" || r.Attempt.FormID != "login" {
			t.Errorf("attempt %d = %+v", i, r.Attempt)
		}
	}
}

func TestAttempt_StopOnSuccess(t *testing.T) {
	t.Parallel()

	srv := &loginServer{password: "pass"}
	page, form := loginPage()
	p := NewProber(srv, "admin", WithDictionary([]string{"x", "pass", "y"}), WithStopOnSuccess(true))

	results := p.Attempt(context.Background(), page, form, "admin", p.Candidates())
	if len(results) != 2 {
		t.Errorf("got %d attempts, expected 2", len(results))
	}
	if len(srv.submitted) != 2 {
		t.Errorf("server saw %d submissions, expected 2", len(srv.submitted))
	}
}

func TestAttempt_FixedPassword(t *testing.T) {
	t.Parallel()

	srv := &loginServer{password: "secret"}
	page, form := loginPage()
	p := NewProber(srv, "admin", WithFixedPassword("secret"))

	results := p.Attempt(context.Background(), page, form, "admin", p.Candidates())
	if len(results) != 1 || !results[0].Attempt.Succeeded() {
		t.Fatalf("results = %+v, expected one success", results)
	}
	if results[0].Attempt.Password != "secret" {
		t.Errorf("Password = %q", results[0].Attempt.Password)
	}
}

func TestAttempt_SubmissionFailure(t *testing.T) {
	t.Parallel()

	srv := &loginServer{failWith: &fetch.Error{Kind: fetch.KindTimeout, URL: "http://ex.test/login"}}
	page, form := loginPage()
	p := NewProber(srv, "admin", WithDictionary([]string{"a", "b"}))

	results := p.Attempt(context.Background(), page, form, "admin", p.Candidates())
	if len(results) != 2 {
		t.Fatalf("got %d attempts, expected 2", len(results))
	}
	for _, r := range results {
		if r.Attempt.Succeeded() || r.Attempt.Reason == "" || r.Landing != nil {
			t.Errorf("attempt = %+v, expected a failure with a reason", r.Attempt)
		}
	}
}

func TestAttempt_FormCannotAuthenticate(t *testing.T) {
	t.Parallel()

	srv := &loginServer{password: "pass"}
	page, form := loginPage()
	form.SubmitControl = model.NoInput
	p := NewProber(srv, "admin", WithDictionary([]string{"x", "pass"}))

	results := p.Attempt(context.Background(), page, form, "admin", p.Candidates())
	if len(results) != 1 || results[0].Attempt.Succeeded() {
		t.Errorf("results = %+v, expected a single failure", results)
	}
	if len(srv.submitted) != 0 {
		t.Error("nothing should be submitted")
	}
}

func TestJudge(t *testing.T) {
	t.Parallel()

	page, form := loginPage()
	home := &fetch.Document{URL: "http://ex.test/home", StatusCode: 200, Body: []byte("Welcome")}
	same := &fetch.Document{URL: "http://ex.test/login?error=1", StatusCode: 200, Body: []byte("Welcome")}
	denied := &fetch.Document{URL: "http://ex.test/home", StatusCode: 403}
	plain := &fetch.Document{URL: "http://ex.test/login", StatusCode: 200, Body: []byte("try again")}

	testCases := []struct {
		name      string
		marker    string
		criterion Criterion
		doc       *fetch.Document
		want      bool
	}{
		{"any: moved", "", CriterionAny, home, true},
		{"any: marker only", "Welcome", CriterionAny, same, true},
		{"any: neither", "Welcome", CriterionAny, plain, false},
		{"any: error status", "", CriterionAny, denied, false},
		{"all: moved without marker configured", "", CriterionAll, home, true},
		{"all: moved with marker", "Welcome", CriterionAll, home, true},
		{"all: marker without move", "Welcome", CriterionAll, same, false},
		{"all: move without marker", "Dashboard", CriterionAll, home, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := NewProber(nil, "admin", WithSuccessMarker(tc.marker), WithCriterion(tc.criterion))
			if got, _ := p.judge(page, form, tc.doc); got != tc.want {
				t.Errorf("judge() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestJudge_ActionURLRenderedInPlace(t *testing.T) {
	t.Parallel()

	page, form := loginPage()
	form.Action = "http://ex.test/session"
	loginAgain := &fetch.Document{
		URL:        "http://ex.test/session",
		StatusCode: 200,
		Forms: []fetch.RawForm{{
			Action: "http://ex.test/session",
			Method: "POST",
			Inputs: []model.Input{
				{Ref: 0, Tag: "input", Name: "user", DeclaredType: "text"},
				{Ref: 1, Tag: "input", Name: "pass", DeclaredType: "password"},
				{Ref: 2, Tag: "input", DeclaredType: "submit"},
			},
		}},
	}
	dashboard := &fetch.Document{URL: "http://ex.test/session", StatusCode: 200, Body: []byte("dashboard")}

	p := NewProber(nil, "admin")
	if ok, reason := p.judge(page, form, loginAgain); ok || reason != "response still shows the login form" {
		t.Errorf("judge(login form again) = %v, %q", ok, reason)
	}
	if ok, _ := p.judge(page, form, dashboard); !ok {
		t.Error("a response at the action URL without a login form should count as moved")
	}
}

func TestAuthenticate_RecordsAttemptsAndFindings(t *testing.T) {
	t.Parallel()

	srv := &loginServer{password: "pass"}
	page, _ := loginPage()
	site := model.NewSite("http://ex.test/")
	p := NewProber(srv, "admin", WithDictionary([]string{"x", "pass", "y"}))

	landings := p.Authenticate(context.Background(), site, page)

	if len(landings) != 1 || landings[0].URL != "http://ex.test/home" {
		t.Errorf("landings = %v", landings)
	}
	if n := len(site.Attempts()); n != 3 {
		t.Errorf("site has %d attempts, expected 3", n)
	}
	if n := len(site.FindingsOfKind(model.KindAuthenticationFailed)); n != 2 {
		t.Errorf("got %d AuthenticationFailed findings, expected 2", n)
	}
	succeeded := site.FindingsOfKind(model.KindAuthenticationSucceeded)
	if len(succeeded) != 1 || succeeded[0].Value != "pass" || succeeded[0].Input != "pass" {
		t.Errorf("AuthenticationSucceeded findings = %+v", succeeded)
	}
}

// TestLoginScenario crawls a real HTTP site whose only link leads to a
// login page; the members area is reachable only after logging in.
func TestLoginScenario(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/login">Sign in</a></body></html>`)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if r.PostFormValue("user") == "admin" && r.PostFormValue("pass") == "pass" {
				http.SetCookie(w, &http.Cookie{Name: "sid", Value: "1", Path: "/"})
				http.Redirect(w, r, "/members", http.StatusSeeOther)
				return
			}
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><form method="post" action="/login">
<input type="text" name="user"><input type="password" name="pass"><input type="submit" value="Login">
</form></body></html>`)
	})
	mux.HandleFunc("/members", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sid"); err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>members <a href="/members/files">files</a></body></html>`)
	})
	mux.HandleFunc("/members/files", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sid"); err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>files</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	fetcher := fetch.NewHTTPFetcher(srv.Client())
	prober := NewProber(fetcher, "admin", WithDictionary([]string{"x", "pass", "y"}))
	spider := crawler.NewSpider(fetcher, crawler.WithAuthenticator(prober))

	site, err := spider.Discover(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	attempts := site.Attempts()
	if len(attempts) != 3 {
		t.Fatalf("got %d attempts, expected 3", len(attempts))
	}
	if attempts[0].Succeeded() || !attempts[1].Succeeded() {
		t.Errorf("attempt outcomes = %s, %s, %s", attempts[0].Outcome, attempts[1].Outcome, attempts[2].Outcome)
	}

	members, ok := site.Page(srv.URL + "/members")
	if !ok {
		t.Fatal("the post-login page should be recorded")
	}
	if members.DiscoveredVia != model.DiscoveryAuthentication {
		t.Errorf("members via %q, expected authentication", members.DiscoveredVia)
	}
	if !site.HasPage(srv.URL + "/members/files") {
		t.Error("links on the post-login page should be followed")
	}
}

// TestLoginScenario_ActionRendersInPlace covers a login form that posts to
// another URL which renders the result there, without a redirect.
func TestLoginScenario_ActionRendersInPlace(t *testing.T) {
	t.Parallel()

	const loginForm = `<html><body><form method="post" action="/session">
<input type="text" name="user"><input type="password" name="pass"><input type="submit" value="Login">
</form></body></html>`

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/login">Sign in</a></body></html>`)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, loginForm)
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.PostFormValue("pass") != "pass" {
			fmt.Fprint(w, loginForm)
			return
		}
		fmt.Fprint(w, `<html><body>dashboard <a href="/secret">secret</a></body></html>`)
	})
	mux.HandleFunc("/secret", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>secret</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	fetcher := fetch.NewHTTPFetcher(srv.Client())
	prober := NewProber(fetcher, "admin", WithDictionary([]string{"x", "pass", "y"}))
	spider := crawler.NewSpider(fetcher, crawler.WithAuthenticator(prober))

	site, err := spider.Discover(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	attempts := site.Attempts()
	if len(attempts) != 3 {
		t.Fatalf("got %d attempts, expected 3", len(attempts))
	}
	expected := []bool{false, true, false}
	for i, a := range attempts {
		if a.Succeeded() != expected[i] {
			t.Errorf("attempt %d succeeded = %v, expected %v (%s)", i, a.Succeeded(), expected[i], a.Reason)
		}
	}
	if !site.HasPage(srv.URL + "/session") {
		t.Error("the page rendered by the accepted login should be recorded")
	}
	if !site.HasPage(srv.URL + "/secret") {
		t.Error("links on the post-login page should be followed")
	}
}
