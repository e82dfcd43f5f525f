package notify

import (
	"os"
	"path/filepath"
	"strings"
)

// Resolver returns the raw template text for (template id, list, languages),
// applying whatever fallback order the implementation supports. The language
// candidates are tried in order before the implementation's own fallbacks;
// ok is false when no source at all exists.
type Resolver interface {
	Raw(templateID, listID, mailHost string, languages []string) (subject, body string, ok bool)
}

// FileResolver reads template overrides from a directory tree and falls back
// to the built-in English templates.
//
// Lookup order: list-specific, domain-specific, site-wide, built-in;
// within each scope the requested language, then the list's language, then
// the site default, then English. Files live at:
//
//	<dir>/lists/<list-id>/<lang>/<template-id>.txt
//	<dir>/domains/<mail-host>/<lang>/<template-id>.txt
//	<dir>/site/<lang>/<template-id>.txt
//
// A file's first line is the subject; the remainder (after one blank line)
// is the body.
type FileResolver struct {
	dir         string
	defaultLang string
}

// NewFileResolver creates a resolver rooted at dir.
func NewFileResolver(dir, defaultLang string) *FileResolver {
	if defaultLang == "" {
		defaultLang = "en"
	}
	return &FileResolver{dir: dir, defaultLang: defaultLang}
}

// Raw implements Resolver.
func (r *FileResolver) Raw(templateID, listID, mailHost string, languages []string) (string, string, bool) {
	langs := dedupe(append(append([]string{}, languages...), r.defaultLang, "en"))
	scopes := []string{}
	if listID != "" {
		scopes = append(scopes, filepath.Join("lists", listID))
	}
	if mailHost != "" {
		scopes = append(scopes, filepath.Join("domains", mailHost))
	}
	scopes = append(scopes, "site")

	name := strings.ReplaceAll(templateID, ":", ".") + ".txt"
	for _, scope := range scopes {
		for _, lang := range langs {
			path := filepath.Join(r.dir, scope, lang, name)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			subject, body := splitTemplate(string(data))
			return subject, body, true
		}
	}

	if t, ok := builtins[templateID]; ok {
		return t.Subject, t.Body, true
	}
	return "", "", false
}

func splitTemplate(text string) (subject, body string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	idx := strings.Index(text, "\n")
	if idx < 0 {
		return strings.TrimSpace(text), ""
	}
	return strings.TrimSpace(text[:idx]), strings.TrimPrefix(text[idx+1:], "\n")
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// BuiltinResolver serves only the compiled-in English templates. Used in
// tests and in deployments with no template directory.
type BuiltinResolver struct{}

// Raw implements Resolver.
func (BuiltinResolver) Raw(templateID, _, _ string, _ []string) (string, string, bool) {
	t, ok := builtins[templateID]
	return t.Subject, t.Body, ok
}
