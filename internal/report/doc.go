// Package report renders finished runs.
//
// Writers for three formats share the Writer interface:
//   - SimpleWriter: text for the terminal, listing every page with its
//     forms, inputs and cookies, then the finding log in append order
//   - JSONWriter: the run and its summary as one JSON document
//   - MarkdownWriter: tables and a mermaid chart for sharing
//
// Writers only read the run. Findings are produced by the engine and never
// reordered or filtered here, apart from SimpleWriter's optional severity
// threshold.
package report
