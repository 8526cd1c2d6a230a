// Package crawler discovers the pages of one web origin.
//
// # Phases
//
// Discover runs a breadth-first crawl from the seed URL. A link is followed
// only when its normalized URL starts with the seed (a plain string prefix
// test) and it has not been claimed before. Pages holding a login form are
// handed to an Authenticator before their links are followed, and the pages
// reached by a successful login join the crawl.
//
// GuessPaths runs afterwards. Each guess is joined to the origin, probed
// without following redirects and, when it exists, recorded as an unlinked
// page and crawled in turn.
//
// # Concurrency
//
// A bounded pool of workers shares one worklist. The Site is the visited
// set: Site.Claim is an atomic check-and-insert, so two workers never fetch
// the same URL. Pacing between requests belongs to the fetcher.
//
// # Usage
//
//	spider := crawler.NewSpider(fetcher,
//		crawler.WithWorkers(4),
//		crawler.WithAuthenticator(prober),
//	)
//	site, err := spider.Discover(ctx, "http://app.test/")
//	if err == nil {
//		err = spider.GuessPaths(ctx, site, lists.PageGuesses)
//	}
package crawler
