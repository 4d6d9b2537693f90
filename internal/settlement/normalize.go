package settlement

import (
	"strings"
	"unicode"
)

// dropWords no identifican nada entre fuentes.
var dropWords = map[string]bool{
	"fc": true, "cf": true, "sc": true, "afc": true, "the": true, "club": true,
}

// genericTails los comparten demasiados nombres como para identificar uno solos.
var genericTails = map[string]bool{
	"united": true, "city": true, "town": true, "county": true, "state": true,
	"athletic": true, "rovers": true, "wanderers": true, "albion": true,
}

// abbreviations expande abreviaturas por palabra y códigos de equipo comunes.
var abbreviations = map[string]string{
	"st":    "saint",
	"ste":   "sainte",
	"mt":    "mount",
	"ft":    "fort",
	"utd":   "united",
	"cty":   "city",
	"intl":  "international",
	"univ":  "university",
	"la":    "los angeles",
	"ny":    "new york",
	"nj":    "new jersey",
	"sf":    "san francisco",
	"okc":   "oklahoma city thunder",
	"lal":   "los angeles lakers",
	"lac":   "los angeles clippers",
	"gsw":   "golden state warriors",
	"nyk":   "new york knicks",
	"bkn":   "brooklyn nets",
	"phx":   "phoenix suns",
	"sas":   "san antonio spurs",
	"nop":   "new orleans pelicans",
	"nyy":   "new york yankees",
	"nym":   "new york mets",
	"lad":   "los angeles dodgers",
	"laa":   "los angeles angels",
	"tb":    "tampa bay",
	"kc":    "kansas city",
	"gb":    "green bay",
	"ne":    "new england",
	"man":   "manchester",
	"psg":   "paris saint germain",
	"inter": "internazionale",
	"btc":   "bitcoin",
	"eth":   "ethereum",
}

// Normalize reduce el nombre de un participante a palabras en minúsculas con
// las abreviaturas conocidas expandidas. "St. Louis" y "st louis" quedan iguales.
func Normalize(name string) string {
	name = strings.NewReplacer(".", "", "'", "").Replace(strings.ToLower(name))
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if dropWords[f] {
			continue
		}
		if exp, ok := abbreviations[f]; ok {
			out = append(out, exp)
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// Strength ordena qué tan seguro es que dos nombres sean la misma entidad.
type Strength int

const (
	StrengthNone Strength = iota
	StrengthTail
	StrengthSubstring
	StrengthExact
)

func (s Strength) String() string {
	switch s {
	case StrengthExact:
		return "exact"
	case StrengthSubstring:
		return "substring"
	case StrengthTail:
		return "tail"
	default:
		return "none"
	}
}

// Score compara dos nombres crudos después de normalizarlos.
func Score(a, b string) Strength {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return StrengthNone
	}
	if na == nb {
		return StrengthExact
	}
	if containsWords(na, nb) || containsWords(nb, na) {
		return StrengthSubstring
	}
	if tail(na, 2) == tail(nb, 2) {
		return StrengthTail
	}
	if last := tail(na, 1); last == tail(nb, 1) && !genericTails[last] {
		return StrengthTail
	}
	return StrengthNone
}

// containsWords indica si sub aparece en s respetando límites de palabra.
func containsWords(s, sub string) bool {
	return strings.Contains(" "+s+" ", " "+sub+" ")
}

func tail(s string, n int) string {
	words := strings.Fields(s)
	if len(words) < n {
		return s
	}
	return strings.Join(words[len(words)-n:], " ")
}
