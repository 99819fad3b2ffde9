// Package markup extrait des enregistrements typés depuis du HTML semi-structuré
// à l'aide d'expressions régulières.
package markup

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrCardinality: deux patterns frères n'ont pas matché le même nombre de fois.
	ErrCardinality = errors.New("markup: field cardinality mismatch")
	// ErrLayout: des lignes ont été trouvées mais aucune n'a pu être lue.
	ErrLayout = errors.New("markup: no parsable record (layout changed?)")
)

// Match contient les groupes capturés d'un match, sans le match complet.
type Match []string

// Group renvoie le groupe i (0-based) ou "" s'il n'existe pas.
func (m Match) Group(i int) string {
	if i < 0 || i >= len(m) {
		return ""
	}
	return m[i]
}

// Tuple regroupe, pour une même position, un match de chaque pattern.
type Tuple []Match

// Record est une ligne extraite: son texte capturé et ses tuples zippés.
type Record struct {
	Index  int
	Text   string
	Tuples []Tuple
}

var controlStripper = strings.NewReplacer("\r", "", "\n", "", "\t", "")

// Normalize retire les retours à la ligne et tabulations puis décode les entités.
// L'ordre compte: certaines frontières ne deviennent contiguës qu'après le strip.
func Normalize(text string) string {
	return html.UnescapeString(controlStripper.Replace(text))
}

// FindAll applique re sur text (déjà normalisé) et renvoie les matches dans l'ordre.
func FindAll(text string, re *regexp.Regexp) []Match {
	raw := re.FindAllStringSubmatch(text, -1)
	out := make([]Match, 0, len(raw))
	for _, m := range raw {
		out = append(out, Match(m[1:]))
	}
	return out
}

// Extract normalise text puis applique chaque pattern indépendamment.
func Extract(text string, patterns ...*regexp.Regexp) [][]Match {
	norm := Normalize(text)
	out := make([][]Match, 0, len(patterns))
	for _, re := range patterns {
		out = append(out, FindAll(norm, re))
	}
	return out
}

// Zip assemble positionnellement les matches de patterns frères.
func Zip(sets [][]Match) ([]Tuple, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	n := len(sets[0])
	for i, s := range sets[1:] {
		if len(s) != n {
			return nil, fmt.Errorf("%w: pattern 0 matched %d, pattern %d matched %d", ErrCardinality, n, i+1, len(s))
		}
	}
	out := make([]Tuple, n)
	for pos := 0; pos < n; pos++ {
		t := make(Tuple, len(sets))
		for p := range sets {
			t[p] = sets[p][pos]
		}
		out[pos] = t
	}
	return out, nil
}

// Extractor fait une extraction à deux niveaux: blocs "ligne" puis champs
// dans la sous-chaîne capturée de chaque ligne.
//
// Row doit capturer le contenu de la ligne dans son premier groupe.
// Si Row est nil, le document entier forme un seul enregistrement.
type Extractor struct {
	Row    *regexp.Regexp
	Fields []*regexp.Regexp
	Logger zerolog.Logger
}

// Records renvoie les lignes parsables. Une ligne dont les champs n'ont pas
// la même cardinalité est ignorée (et loggée). Zéro ligne n'est pas une erreur.
func (x Extractor) Records(text string) ([]Record, error) {
	norm := Normalize(text)

	var rows []string
	if x.Row == nil {
		rows = []string{norm}
	} else {
		for _, m := range FindAll(norm, x.Row) {
			rows = append(rows, m.Group(0))
		}
	}

	out := make([]Record, 0, len(rows))
	for i, row := range rows {
		sets := make([][]Match, 0, len(x.Fields))
		for _, re := range x.Fields {
			sets = append(sets, FindAll(row, re))
		}
		tuples, err := Zip(sets)
		if err != nil {
			x.Logger.Warn().Err(err).Int("row", i).Msg("skipping record")
			continue
		}
		out = append(out, Record{Index: i, Text: row, Tuples: tuples})
	}

	if x.Row != nil && len(rows) > 0 && len(out) == 0 {
		return nil, ErrLayout
	}
	return out, nil
}
