package generator

import (
	"regexp"
	"strconv"
	"strings"
)

var hallPattern = regexp.MustCompile(`холл\s*(\d+)\s*(?:-?го)?\s*подъезда`)

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FormatPlaceHuman maps a raw place cell onto one of the two canonical
// phrasings. Entrance halls with a number become "в холле N-го подъезда",
// the around-the-building phrase stays fixed, anything else passes through
// with whitespace collapsed and original casing kept.
func FormatPlaceHuman(placeRaw string) string {
	s0 := strings.TrimSpace(placeRaw)
	if s0 == "" {
		return ""
	}

	s := strings.ToLower(collapseSpaces(s0))

	if strings.Contains(s, "около дома") {
		return "около дома"
	}

	if m := hallPattern.FindStringSubmatch(s); m != nil {
		if ord := podiezdGenitive(m[1]); ord != "" {
			return "в холле " + ord + " подъезда"
		}
		return "в холле подъезда"
	}

	if strings.Contains(s, "холл") && strings.Contains(s, "подъезд") {
		return "в холле подъезда"
	}

	return collapseSpaces(s0)
}

// DetectPlacePush picks the push-notification location category for a place.
func DetectPlacePush(placeRaw string) string {
	s := strings.ToLower(collapseSpaces(strings.TrimSpace(placeRaw)))

	if strings.Contains(s, "около дома") {
		return "в вашем дворе"
	}
	return "в вашем доме"
}

func podiezdGenitive(raw string) string {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return ""
	}
	return strconv.Itoa(n) + "-го"
}
