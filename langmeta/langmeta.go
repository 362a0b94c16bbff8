// Package langmeta resolves display metadata (native name, English name and
// emoji flag) for the language codes used as document keys.
package langmeta

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Meta describes language display metadata.
type Meta struct {
	// Code is the canonical BCP 47 form of the language code.
	Code string
	// Name is the language's own name for itself (e.g. "日本語").
	Name string
	// EnglishName is the English name (e.g. "Japanese").
	EnglishName string
	// Flag is an emoji flag derived from the (possibly inferred) region.
	Flag string
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 && len(parts[1]) == 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Canonical returns the normalized form of a language code (pt_br -> pt-BR).
// Codes that are not valid BCP 47 tags are returned trimmed but otherwise
// unchanged.
func Canonical(lang string) string {
	c := canonicalize(lang)
	if _, err := language.Parse(c); err != nil {
		return strings.TrimSpace(lang)
	}
	return c
}

// Resolve returns best-effort metadata for a language code. Unknown or
// unparsable codes come back with Name and EnglishName set to the input.
func Resolve(lang string) Meta {
	code := canonicalize(lang)
	tag, err := language.Parse(code)
	if err != nil {
		return Meta{Code: lang, Name: lang, EnglishName: lang}
	}

	m := Meta{
		Code:        code,
		Name:        display.Self.Name(tag),
		EnglishName: display.English.Tags().Name(tag),
	}
	if m.Name == "" {
		m.Name = lang
	}
	if m.EnglishName == "" {
		m.EnglishName = lang
	}

	if region, conf := tag.Region(); conf != language.No {
		m.Flag = flagFromRegion(region.String())
	}
	return m
}

// flagFromRegion turns a two-letter region code into its regional
// indicator pair. Anything else yields "".
func flagFromRegion(region string) string {
	if len(region) != 2 {
		return ""
	}
	region = strings.ToUpper(region)
	var b strings.Builder
	for _, r := range region {
		if r < 'A' || r > 'Z' {
			return ""
		}
		b.WriteRune(0x1F1E6 + (r - 'A'))
	}
	return b.String()
}
