// Package language ramène les libellés de langue des catalogues
// ("English", "Français", "fre", "pt-BR"...) à un code ISO 639-2/T unique.
package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Codes bibliographiques (ISO 639-2/B) encore envoyés par certains clients.
var bibliographic = map[string]string{
	"alb": "sqi", "arm": "hye", "baq": "eus", "bur": "mya", "chi": "zho",
	"cze": "ces", "dut": "nld", "fre": "fra", "geo": "kat", "ger": "deu",
	"gre": "ell", "ice": "isl", "mac": "mkd", "mao": "mri", "may": "msa",
	"per": "fas", "rum": "ron", "slo": "slk", "tib": "bod", "wel": "cym",
}

// Langues proposées par les catalogues de sous-titres.
var known = []string{
	"ar", "bg", "bn", "bs", "ca", "cs", "cy", "da", "de", "el", "en", "es",
	"et", "eu", "fa", "fi", "fr", "gl", "he", "hi", "hr", "hu", "hy", "id",
	"is", "it", "ja", "ka", "kk", "km", "ko", "lt", "lv", "mk", "ml", "ms",
	"nl", "no", "pl", "pt", "ro", "ru", "si", "sk", "sl", "sq", "sr", "sv",
	"ta", "te", "th", "tl", "tr", "uk", "ur", "vi", "zh",
}

// Libellés maison des catalogues, non couverts par CLDR.
var aliases = map[string]string{
	"bengali":   "ben",
	"català":    "cat",
	"euskera":   "eus",
	"galego":    "glg",
	"farsi":     "fas",
	"norwegian": "nor",
	"français":  "fra",
	"español":   "spa",
}

// Normalizer est immuable après construction et sûr en concurrence.
type Normalizer struct {
	names map[string]string
}

func New() *Normalizer {
	names := make(map[string]string, len(known)*2+len(aliases))
	english := display.English.Languages()
	for _, code := range known {
		tag := language.Make(code)
		base, _ := tag.Base()
		iso3 := base.ISO3()
		if name := english.Name(tag); name != "" {
			names[strings.ToLower(name)] = iso3
		}
		// Nom natif (ex: "Deutsch").
		if self := display.Self.Name(tag); self != "" {
			names[strings.ToLower(self)] = iso3
		}
	}
	for k, v := range aliases {
		names[k] = v
	}
	return &Normalizer{names: names}
}

// Normalize renvoie le code ISO 639-2/T de raw, ou false si inconnu.
func (n *Normalizer) Normalize(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	// "Portuguese (Brazilian)", "Spanish (Latin America)", "Serbian (Latin)"...
	if i := strings.Index(s, "("); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	if code, ok := n.names[s]; ok {
		return code, true
	}
	if code, ok := bibliographic[s]; ok {
		return code, true
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", false
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", false
	}
	iso3 := base.ISO3()
	if iso3 == "" || iso3 == "und" {
		return "", false
	}
	return iso3, true
}

// ToISO1 convertit un code (2 ou 3 lettres) en code à deux lettres quand il existe.
func ToISO1(code string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(code))
	if b, ok := bibliographic[c]; ok {
		c = b
	}
	base, err := language.ParseBase(c)
	if err != nil {
		return "", false
	}
	s := base.String()
	if len(s) != 2 {
		return "", false
	}
	return s, true
}
