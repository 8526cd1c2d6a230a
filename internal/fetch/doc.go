// Package fetch retrieves pages and submits forms on behalf of the crawler,
// the authentication prober and the fuzz sweep.
//
// Two Fetcher implementations exist. HTTPFetcher drives net/http with a
// cookie jar so that a login session persists across requests; BrowserFetcher
// drives a headless Chrome through chromedp for targets that build their
// forms with JavaScript. Both parse HTML with the same Parser (x/net/html plus
// goquery) and both wait on a shared Pacer before every request so that the
// configured time gap holds across every stage of a run.
package fetch
