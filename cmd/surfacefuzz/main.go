// Package main provides the entry point for the surfacefuzz CLI.
//
// surfacefuzz maps the attack surface of a web application (pages, forms,
// inputs, cookies), probes its login forms and fuzzes every input with a
// list of attack vectors, reporting what it observed.
//
// Usage:
//
//	surfacefuzz scan site.yaml
//	surfacefuzz discover site.yaml
//	surfacefuzz history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
