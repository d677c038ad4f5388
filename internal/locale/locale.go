// Package locale loads the recognized locale table and the per-locale reply
// strings. Both are read-only once loaded.
package locale

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed data/available_locales.yaml data/strings/*.yaml
var dataFS embed.FS

const tableFile = "available_locales.yaml"

// ErrInvalidTable is returned when a locale table cannot be used.
var ErrInvalidTable = errors.New("invalid locale table")

// Entry is one recognized locale.
type Entry struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// Table is the ordered set of recognized locales.
type Table struct {
	entries []Entry
	byCode  map[string]Entry
}

// LoadTable reads available_locales.yaml from dir. An empty dir selects the
// embedded table.
func LoadTable(dir string) (*Table, error) {
	data, err := readData(dir, tableFile)
	if err != nil {
		return nil, err
	}
	return ParseTable(data)
}

// ParseTable parses a YAML sequence of {code, name} entries. Codes must be
// valid BCP 47 tags and unique (case-insensitively).
func ParseTable(data []byte) (*Table, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no locales", ErrInvalidTable)
	}

	t := &Table{byCode: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if _, err := language.Parse(e.Code); err != nil {
			return nil, fmt.Errorf("%w: code %q: %v", ErrInvalidTable, e.Code, err)
		}
		key := strings.ToLower(e.Code)
		if _, dup := t.byCode[key]; dup {
			return nil, fmt.Errorf("%w: duplicate code %q", ErrInvalidTable, e.Code)
		}
		t.byCode[key] = e
		t.entries = append(t.entries, e)
	}
	return t, nil
}

// Codes returns the locale codes in table order.
func (t *Table) Codes() []string {
	codes := make([]string, len(t.entries))
	for i, e := range t.entries {
		codes[i] = e.Code
	}
	return codes
}

// Entries returns a copy of the table entries.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Lookup returns the entry for code, matched case-insensitively.
func (t *Table) Lookup(code string) (Entry, bool) {
	e, ok := t.byCode[strings.ToLower(code)]
	return e, ok
}

// Name returns the display name for code, or code itself if unknown.
func (t *Table) Name(code string) string {
	if e, ok := t.Lookup(code); ok && e.Name != "" {
		return e.Name
	}
	return code
}

func readData(dir, name string) ([]byte, error) {
	if dir == "" {
		return fs.ReadFile(dataFS, "data/"+name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}
