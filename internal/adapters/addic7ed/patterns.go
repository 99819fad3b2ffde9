package addic7ed

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Guilhem-Bonnet/subseek/internal/markup"
)

var (
	// /shows.php
	reShowLink = regexp.MustCompile(`<a href="/show/(\d+)"[^>]*>([^<]+)</a>`)

	// /ajax_loadShow.php: une ligne par sous-titre, onze cellules.
	reEpisodeRow = regexp.MustCompile(`<tr class="epeven[^"]*">(.*?)</tr>`)
	reCellOpen   = regexp.MustCompile(`<td([^>]*)>`)
	reCellBody   = regexp.MustCompile(`<td[^>]*>(.*?)</td>`)

	// /search.php et /movie/<id>
	reMovieLink    = regexp.MustCompile(`<a href="/?(movie/\d+)"[^>]*>([^<]+)</a>`)
	reMovieTitle   = regexp.MustCompile(`<span class="titulo">([^<]+)`)
	reVersionBlock = regexp.MustCompile(`<table class="tabel95">(.*?)</table>`)
	reVersion      = regexp.MustCompile(`Version ([^,<]+)`)
	reBlockLang    = regexp.MustCompile(`<td[^>]*class="language"[^>]*>([^<]+)`)
	reBlockDL      = regexp.MustCompile(`<a[^>]*class="buttonDownload"[^>]*href="([^"]+)"`)

	reHref = regexp.MustCompile(`href="([^"]+)"`)
	reTags = regexp.MustCompile(`<[^>]*>`)
)

// Positions des cellules d'une ligne de listing.
const (
	colSeason = iota
	colEpisode
	colTitle
	colLanguage
	colVersion
	colCompleted
	colHearingImpaired
	colCorrected
	colHD
	colDownload
	colMulti

	minEpisodeCells = colDownload + 1
)

func showIndexExtractor() markup.Extractor {
	return markup.Extractor{Fields: []*regexp.Regexp{reShowLink}}
}

func episodeExtractor() markup.Extractor {
	return markup.Extractor{Row: reEpisodeRow, Fields: []*regexp.Regexp{reCellOpen, reCellBody}}
}

func movieBlockExtractor() markup.Extractor {
	return markup.Extractor{Row: reVersionBlock, Fields: []*regexp.Regexp{reBlockLang, reBlockDL}}
}

// cellText renvoie le texte d'une cellule sans balises.
func cellText(t markup.Tuple) string {
	if len(t) < 2 {
		return ""
	}
	return strings.TrimSpace(reTags.ReplaceAllString(t[1].Group(0), ""))
}

func cellFlag(t markup.Tuple) bool {
	return cellText(t) != ""
}

func cellInt(t markup.Tuple) (int, error) {
	return strconv.Atoi(cellText(t))
}

func cellHref(t markup.Tuple) string {
	if len(t) < 2 {
		return ""
	}
	m := reHref.FindStringSubmatch(t[1].Group(0))
	if m == nil {
		return ""
	}
	return m[1]
}
