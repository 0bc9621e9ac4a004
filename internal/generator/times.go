package generator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var timePattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})-(\d{1,2}):(\d{2})$`)

var timeSeparators = strings.NewReplacer("–", "-", "—", "-", ".", ":")

// TimeRange is a validated same-day time window.
type TimeRange struct {
	FromMinutes int
	ToMinutes   int
	TimeText    string // "с HH:MM до HH:MM", used in news text
	TimeShort   string // "HH:MM-HH:MM", used in push text
	Key         string // dedup key, equal iff the minute values are equal
}

// ParseTimeRange normalizes a raw range like "18.30-19.30" or "18:30 – 19:30"
// and validates it. Dots become colons and dashes collapse to a hyphen, so
// spreadsheet-typed variants map to one canonical range.
func ParseTimeRange(raw string) (TimeRange, error) {
	if strings.TrimSpace(raw) == "" {
		return TimeRange{}, errors.New("Пустое время")
	}

	s := strings.Join(strings.Fields(raw), "")
	s = timeSeparators.Replace(s)

	m := timePattern.FindStringSubmatch(s)
	if m == nil {
		return TimeRange{}, fmt.Errorf("Неверный формат времени: %s", raw)
	}

	h1, _ := strconv.Atoi(m[1])
	min1, _ := strconv.Atoi(m[2])
	h2, _ := strconv.Atoi(m[3])
	min2, _ := strconv.Atoi(m[4])

	if h1 > 23 || h2 > 23 || min1 > 59 || min2 > 59 {
		return TimeRange{}, fmt.Errorf("Неверные часы/минуты: %s", raw)
	}

	from := h1*60 + min1
	to := h2*60 + min2
	if to <= from {
		return TimeRange{}, fmt.Errorf("Время окончания раньше начала: %s", raw)
	}

	fromText := fmt.Sprintf("%02d:%02d", h1, min1)
	toText := fmt.Sprintf("%02d:%02d", h2, min2)
	short := fromText + "-" + toText

	return TimeRange{
		FromMinutes: from,
		ToMinutes:   to,
		TimeText:    fmt.Sprintf("с %s до %s", fromText, toText),
		TimeShort:   short,
		Key:         short,
	}, nil
}
