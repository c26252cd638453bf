package geo

import (
	"strings"
	"unicode"

	"github.com/paulmach/orb/geojson"
)

// NameSource records how an administrative name was resolved.
type NameSource string

const (
	// NameNative means a native-script (Han) attribute field supplied the name.
	NameNative NameSource = "native"
	// NameLatin means only a Latin/English field was available and the
	// English fallback was allowed.
	NameLatin NameSource = "latin"
	// NameNone means no usable field was found.
	NameNone NameSource = "none"
)

// Candidate attribute fields in preference order, following the common GADM
// schema: NL_NAME_* carry localized names, NAME_* the Latin ones.
var (
	provinceFields  = []string{"NL_NAME_1", "NAME_1", "PROVINCE", "ADM1_NAME", "VARNAME_1"}
	cityFields      = []string{"NL_NAME_2", "NAME_2", "CITY", "ADM2_NAME", "VARNAME_2"}
	adminNameFields = []string{"NL_NAME_2", "NL_NAME_1", "NAME_2", "NAME_1", "NAME"}
)

// pickName resolves one name from the candidate fields by the two-pass rule:
// pass one takes the first candidate containing native-script characters;
// pass two, only when allowLatin is set, takes the first non-empty candidate.
// Returns the field that supplied the value for auditability.
func pickName(props geojson.Properties, candidates []string, allowLatin bool) (value, field string, src NameSource) {
	for _, c := range candidates {
		v := propString(props, c)
		if v != "" && hasHan(v) {
			return v, c, NameNative
		}
	}
	if allowLatin {
		for _, c := range candidates {
			if v := propString(props, c); v != "" {
				return v, c, NameLatin
			}
		}
	}
	return "", "", NameNone
}

// propString reads a property as a trimmed string, normalizing placeholder
// values ("NA", "N/A", "NAN", "<NA>", empty) to absent.
func propString(props geojson.Properties, key string) string {
	raw, ok := props[key]
	if !ok {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "NA", "N/A", "NAN", "<NA>":
		return ""
	}
	return s
}

// hasHan reports whether s contains at least one Han-script rune.
func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
