package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.txt
var templateFS embed.FS

// Alphabet names the set of answer letters printed on the sheets.
type Alphabet string

const (
	// AlphabetThai is the four Thai choice letters used on school sheets.
	AlphabetThai Alphabet = "thai"
	// AlphabetLatin is A to D.
	AlphabetLatin Alphabet = "latin"
)

var alphabets = map[Alphabet][]string{
	AlphabetThai:  {"ก", "ข", "ค", "ง"},
	AlphabetLatin: {"A", "B", "C", "D"},
}

// Unreadable is the marker the recognizer is asked to return for illegible identity fields.
const Unreadable = "unreadable"

var (
	loadOnce      sync.Once
	loadErr       error
	masterKeyTmpl *template.Template
	sheetTmpl     *template.Template
)

// IsValidAlphabet checks if an alphabet name is valid.
func IsValidAlphabet(a string) bool {
	_, ok := alphabets[Alphabet(a)]
	return ok
}

// Letters returns the answer letters of an alphabet, or nil if it is unknown.
func Letters(a Alphabet) []string {
	return alphabets[a]
}

// MasterKeyData holds template data for master key prompts.
type MasterKeyData struct {
	Choices string
}

// SheetData holds template data for answer sheet prompts.
type SheetData struct {
	Choices    string
	Questions  string
	Unreadable string
}

// Load parses the embedded prompt templates. It is safe to call repeatedly.
func Load() error {
	loadOnce.Do(func() {
		masterKeyTmpl, loadErr = parse("templates/master_key.txt")
		if loadErr != nil {
			return
		}
		sheetTmpl, loadErr = parse("templates/answer_sheet.txt")
	})
	return loadErr
}

func parse(name string) (*template.Template, error) {
	content, err := templateFS.ReadFile(name)
	if err != nil {
		return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
	}
	return tmpl, nil
}

// BuildMasterKeyPrompt builds the instruction sent with a master key image.
func BuildMasterKeyPrompt(a Alphabet) (string, error) {
	if err := Load(); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	letters, ok := alphabets[a]
	if !ok {
		return "", errors.New("invalid alphabet: " + string(a))
	}
	var buf bytes.Buffer
	if err := masterKeyTmpl.Execute(&buf, MasterKeyData{Choices: strings.Join(letters, ", ")}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildSheetPrompt builds the instruction sent with a student answer sheet.
// questions are the question numbers present on the master key.
func BuildSheetPrompt(a Alphabet, questions []int) (string, error) {
	if err := Load(); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	letters, ok := alphabets[a]
	if !ok {
		return "", errors.New("invalid alphabet: " + string(a))
	}
	data := SheetData{
		Choices:    strings.Join(letters, ", "),
		Questions:  joinInts(questions),
		Unreadable: Unreadable,
	}
	var buf bytes.Buffer
	if err := sheetTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
