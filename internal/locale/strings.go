package locale

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Strings is the reply string table for one locale, already merged with the
// default locale's table. It is a plain value and safe to share.
type Strings struct {
	locale string
	values map[string]string
}

// NewStrings builds a table directly; mainly useful in tests.
func NewStrings(locale string, values map[string]string) Strings {
	return Strings{locale: locale, values: values}
}

// Locale returns the locale the table was resolved for.
func (s Strings) Locale() string {
	return s.locale
}

// Get returns the string for key, or key itself when no table has it.
func (s Strings) Get(key string) string {
	if v, ok := s.values[key]; ok {
		return v
	}
	return key
}

// Lookup returns the string for key and whether any table has it.
func (s Strings) Lookup(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Format looks up key and formats it with args.
func (s Strings) Format(key string, args ...any) string {
	return fmt.Sprintf(s.Get(key), args...)
}

// Bundle holds every loaded string table and resolves a request locale to
// the closest one.
type Bundle struct {
	defaultLocale string
	tables        map[string]map[string]string
	codes         []string
	matcher       language.Matcher
}

// LoadBundle loads <code>.yaml string tables from dir/strings, or the
// embedded tables when dir is empty. The default locale must have a table.
func LoadBundle(dir, defaultLocale string) (*Bundle, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(dataFS, "data/strings")
		if err != nil {
			return nil, err
		}
		fsys = sub
	} else {
		fsys = os.DirFS(filepath.Join(dir, "strings"))
	}

	files, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("listing string tables: %w", err)
	}
	tables := make(map[string]map[string]string, len(files))
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		values := make(map[string]string)
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		tables[strings.TrimSuffix(name, ".yaml")] = values
	}
	return NewBundle(defaultLocale, tables)
}

// NewBundle builds a Bundle from in-memory tables keyed by locale code.
func NewBundle(defaultLocale string, tables map[string]map[string]string) (*Bundle, error) {
	if _, ok := tables[defaultLocale]; !ok {
		return nil, fmt.Errorf("%w: no strings for default locale %q", ErrInvalidTable, defaultLocale)
	}

	// The matcher falls back to its first tag, so the default goes first.
	codes := []string{defaultLocale}
	var rest []string
	for code := range tables {
		if code != defaultLocale {
			rest = append(rest, code)
		}
	}
	sort.Strings(rest)
	codes = append(codes, rest...)

	tags := make([]language.Tag, 0, len(codes))
	for _, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("%w: string table %q: %v", ErrInvalidTable, code, err)
		}
		tags = append(tags, tag)
	}

	return &Bundle{
		defaultLocale: defaultLocale,
		tables:        tables,
		codes:         codes,
		matcher:       language.NewMatcher(tags),
	}, nil
}

// For returns the strings for locale. Keys missing from the matched table
// fall back to the default locale.
func (b *Bundle) For(locale string) Strings {
	code := b.resolve(locale)
	merged := make(map[string]string, len(b.tables[b.defaultLocale]))
	for k, v := range b.tables[b.defaultLocale] {
		merged[k] = v
	}
	if code != b.defaultLocale {
		for k, v := range b.tables[code] {
			merged[k] = v
		}
	}
	return Strings{locale: code, values: merged}
}

func (b *Bundle) resolve(locale string) string {
	if _, ok := b.tables[locale]; ok {
		return locale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return b.defaultLocale
	}
	_, idx, conf := b.matcher.Match(tag)
	if conf == language.No {
		return b.defaultLocale
	}
	return b.codes[idx]
}
