package app

import (
	"strings"
)

// Un id de candidat vaut "<ref échappée>:<langue>". Les "/" de la référence
// deviennent "," ; les "%", "," et ":" d'origine sont d'abord encodés en %XX
// pour que le découpage reste sans perte.
var (
	idEscaper = strings.NewReplacer("%", "%25", ",", "%2C", ":", "%3A", "/", ",")
	// Appliqué après le retour des "," en "/".
	idUnescaper = strings.NewReplacer("%2C", ",", "%3A", ":", "%25", "%")
)

const idDelimiter = ":"

func EncodeCandidateID(downloadRef, language string) string {
	return idEscaper.Replace(downloadRef) + idDelimiter + language
}

func DecodeCandidateID(id string) (downloadRef, language string, err error) {
	escaped, lang, ok := strings.Cut(id, idDelimiter)
	if !ok || escaped == "" || lang == "" {
		return "", "", &CodedError{Code: CodeInvalidID, Message: "invalid candidate id: " + id}
	}
	ref := idUnescaper.Replace(strings.ReplaceAll(escaped, ",", "/"))
	return ref, lang, nil
}
