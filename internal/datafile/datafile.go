// Package datafile loads the sectioned data lists a run draws from: fuzz
// vectors, sensitive-data markers, the password dictionary, sanitization
// probes and guessed paths.
//
// The file is plain text. A section starts at one of the header lines
//
//	external fuzz vectors:
//	sensitive data:
//	password dictionary:
//	sanitization checking inputs:
//	page guessing:
//
// and runs until the next header. Every non-empty line inside a section is
// one entry, taken verbatim. Lines before the first header are ignored.
package datafile

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrDataFileNotFound is returned when the data file does not exist.
var ErrDataFileNotFound = errors.New("data file not found")

//go:embed default.txt
var defaultData string

// Section names a list of the data file.
type Section string

const (
	SectionVectors       Section = "external fuzz vectors"
	SectionSensitiveData Section = "sensitive data"
	SectionDictionary    Section = "password dictionary"
	SectionSanitization  Section = "sanitization checking inputs"
	SectionPageGuesses   Section = "page guessing"
)

// Lists holds the entries of every section in file order.
type Lists struct {
	Vectors            []string
	SensitiveData      []string
	PasswordDictionary []string
	SanitizationInputs []string
	PageGuesses        []string
}

// Load reads the data file at path. An empty path returns the built-in lists.
func Load(path string) (*Lists, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path) //nolint:gosec // user-provided data file is intentional
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrDataFileNotFound)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer f.Close()

	lists, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lists, nil
}

// Default returns the lists compiled into the binary.
func Default() *Lists {
	lists, err := Parse(strings.NewReader(defaultData))
	if err != nil {
		panic(fmt.Sprintf("embedded data file is invalid: %v", err))
	}
	return lists
}

// DefaultContent returns the raw text of the built-in data file.
func DefaultContent() string {
	return defaultData
}

// Parse reads sectioned lists from r.
func Parse(r io.Reader) (*Lists, error) {
	lists := &Lists{}
	var current *[]string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if target, ok := lists.section(line); ok {
			current = target
			continue
		}
		if current != nil {
			*current = append(*current, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lists, nil
}

func (l *Lists) section(line string) (*[]string, bool) {
	header := strings.ToLower(strings.TrimSpace(line))
	if !strings.HasSuffix(header, ":") {
		return nil, false
	}
	switch Section(strings.TrimSuffix(header, ":")) {
	case SectionVectors:
		return &l.Vectors, true
	case SectionSensitiveData:
		return &l.SensitiveData, true
	case SectionDictionary:
		return &l.PasswordDictionary, true
	case SectionSanitization:
		return &l.SanitizationInputs, true
	case SectionPageGuesses:
		return &l.PageGuesses, true
	}
	return nil, false
}

// Counts returns the number of entries per section.
func (l *Lists) Counts() map[Section]int {
	return map[Section]int{
		SectionVectors:       len(l.Vectors),
		SectionSensitiveData: len(l.SensitiveData),
		SectionDictionary:    len(l.PasswordDictionary),
		SectionSanitization:  len(l.SanitizationInputs),
		SectionPageGuesses:   len(l.PageGuesses),
	}
}
