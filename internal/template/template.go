// Package template renders mail and HTML page content from file-backed
// sources kept under <dir>/<language>/<name>. Sources are read from disk on
// first use and cached for the lifetime of the Set; concurrent first renders
// may duplicate the read but always agree on the result.
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	texttemplate "text/template"

	"golang.org/x/text/language"
)

// Mail template file suffixes. A mail template <name> is backed by two files.
const (
	subjectSuffix = ".subject"
	bodySuffix    = ".body"
)

// Set is a cache of parsed templates keyed by (language, file name).
// The zero value is not usable; construct with New.
type Set struct {
	dir   string
	cache sync.Map // "lang/name" -> *texttemplate.Template
}

// New returns a Set reading sources below dir.
func New(dir string) *Set {
	return &Set{dir: dir}
}

// Preload parses the given page template names plus both halves of the given
// mail template names for every language, so missing files surface at boot
// instead of on first use.
func (s *Set) Preload(langs []string, pages, mails []string) error {
	for _, lang := range langs {
		tag, err := language.Parse(lang)
		if err != nil {
			return fmt.Errorf("template preload: bad language %q: %w", lang, err)
		}
		names := make([]string, 0, len(pages)+2*len(mails))
		names = append(names, pages...)
		for _, m := range mails {
			names = append(names, m+subjectSuffix, m+bodySuffix)
		}
		for _, n := range names {
			if _, err := s.lookup(tag, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// Page renders the page template name for lang with data.
func (s *Set) Page(lang language.Tag, name string, data any) (string, error) {
	return s.render(lang, name, data)
}

// Mail renders the mail template name for lang, returning the subject line
// and the body. The subject is collapsed to a single trimmed line.
func (s *Set) Mail(lang language.Tag, name string, data any) (subject, body string, err error) {
	subject, err = s.render(lang, name+subjectSuffix, data)
	if err != nil {
		return "", "", err
	}
	body, err = s.render(lang, name+bodySuffix, data)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(strings.ReplaceAll(subject, "\n", " ")), body, nil
}

func (s *Set) render(lang language.Tag, name string, data any) (string, error) {
	tpl, err := s.lookup(lang, name)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("template %s/%s: %w", lang, name, err)
	}
	return b.String(), nil
}

// lookup returns the cached template, reading and parsing the source file on
// a miss. Losing a populate race is harmless: both parses come from the same
// source, and LoadOrStore keeps exactly one.
func (s *Set) lookup(lang language.Tag, name string) (*texttemplate.Template, error) {
	key := lang.String() + "/" + name
	if v, ok := s.cache.Load(key); ok {
		return v.(*texttemplate.Template), nil
	}

	path := filepath.Join(s.dir, lang.String(), name)
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", key, err)
	}
	tpl, err := texttemplate.New(key).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", key, err)
	}
	actual, _ := s.cache.LoadOrStore(key, tpl)
	return actual.(*texttemplate.Template), nil
}
