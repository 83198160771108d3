package timing

import (
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLanguage reduces a language hint to its base subtag, so "hi-IN"
// and "hi_IN" both become "hi". Hints that are not BCP 47 tags fall back to
// their lowercased prefix.
func NormalizeLanguage(hint string) string {
	h := strings.TrimSpace(strings.ReplaceAll(hint, "_", "-"))
	if h == "" {
		return ""
	}
	if tag, err := language.Parse(h); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			return base.String()
		}
	}
	prefix, _, _ := strings.Cut(strings.ToLower(h), "-")
	return prefix
}
