package app

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Guilhem-Bonnet/subseek/internal/domain"
)

var (
	reParensContent = regexp.MustCompile(`\([^)]*\)`)
	reBrackets      = regexp.MustCompile(`\[[^\]]*\]`)
	reLeadingThe    = regexp.MustCompile(`^the\s+`)
	reSpaces        = regexp.MustCompile(`\s+`)
)

// titleVariants renvoie title puis des variantes sans "(2005)", "(US)", "[...]".
func titleVariants(title string) []string {
	t := strings.TrimSpace(title)
	if t == "" {
		return nil
	}
	variants := []string{t}
	clean := reParensContent.ReplaceAllString(t, " ")
	clean = reBrackets.ReplaceAllString(clean, " ")
	clean = strings.Join(strings.Fields(clean), " ")
	if clean != "" && clean != t {
		variants = append(variants, clean)
	}
	return variants
}

// matchKey est une forme comparable d'un titre: minuscules, sans accents,
// ponctuation retirée, "the" initial ignoré.
func matchKey(title string) string {
	s := strings.TrimSpace(strings.ToLower(title))
	if s == "" {
		return ""
	}

	// NFD -> retrait des marques -> NFC.
	tr := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(tr, s); err == nil {
		s = out
	}

	s = strings.NewReplacer("&", " and ", "'", "", "’", "").Replace(s)

	b := strings.Builder{}
	b.Grow(len(s))
	for _, ch := range s {
		switch {
		case unicode.IsLetter(ch), unicode.IsDigit(ch):
			b.WriteRune(ch)
		default:
			b.WriteRune(' ')
		}
	}
	s = reSpaces.ReplaceAllString(strings.TrimSpace(b.String()), " ")
	return reLeadingThe.ReplaceAllString(s, "")
}

// matchShow choisit l'entrée correspondant à title: nom exact d'abord,
// puis clé normalisée, puis variantes sans parenthèses.
func matchShow(entries []domain.ShowIndexEntry, title string) (domain.ShowIndexEntry, bool) {
	for _, e := range entries {
		if e.DisplayName == title {
			return e, true
		}
	}
	for _, v := range titleVariants(title) {
		want := matchKey(v)
		if want == "" {
			continue
		}
		for _, e := range entries {
			if matchKey(e.DisplayName) == want {
				return e, true
			}
		}
	}
	// Le catalogue peut suffixer l'année ou le pays: "Show A (2019)".
	want := matchKey(title)
	for _, e := range entries {
		for _, v := range titleVariants(e.DisplayName)[1:] {
			if matchKey(v) == want {
				return e, true
			}
		}
	}
	return domain.ShowIndexEntry{}, false
}
