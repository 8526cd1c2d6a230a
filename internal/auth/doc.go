// Package auth tries credentials against login forms.
//
// A Prober submits one (username, password) pair per candidate password,
// either a single fixed password or every word of a dictionary, and judges
// each submission by two signals: whether the browser ended up on a
// different page and whether a configured success marker appears in the
// response. Every attempt is recorded, successful or not.
package auth
