// Package fuzz delivers payloads to every input of every submittable form
// of a site and records what comes back.
//
// Each (input, value) pair is submitted exactly once per sweep. The sweep
// does not decide whether a payload succeeded; it records the response URL,
// status, whether the value was echoed verbatim and how far the response
// drifted from the page the form came from. Judgement is left to Analyzers.
package fuzz
