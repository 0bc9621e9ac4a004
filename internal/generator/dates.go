package generator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dayMillis = 24 * 60 * 60 * 1000

var monthsGenitive = [12]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

var datePattern = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)

// Date is a validated calendar date pinned to UTC midnight.
type Date struct {
	Year  int
	Month int // 1-12
	Day   int
	TS    int64 // epoch milliseconds at UTC midnight
}

// ParseDate accepts D.M.YYYY or DD.MM.YYYY and validates the real calendar
// date, so 31.02.2024 is rejected even though it matches the shape.
func ParseDate(raw string) (Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Date{}, errors.New("Пустая дата")
	}
	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return Date{}, fmt.Errorf("Неверный формат даты: %s", raw)
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Date{}, fmt.Errorf("Неверная дата: %s", raw)
	}

	dt := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if dt.Year() != year || dt.Month() != time.Month(month) || dt.Day() != day {
		return Date{}, fmt.Errorf("Несуществующая дата: %s", raw)
	}
	return Date{Year: year, Month: month, Day: day, TS: dt.UnixMilli()}, nil
}

// FormatDateHuman renders "{day} {genitive month}", e.g. "5 июня".
func FormatDateHuman(d Date) string {
	return fmt.Sprintf("%d %s", d.Day, monthsGenitive[d.Month-1])
}

// FormatDateListHuman joins dates for news text. Dates within one month are
// collapsed to bare day numbers with a single month word at the end.
func FormatDateListHuman(dates []Date) string {
	if len(dates) == 0 {
		return ""
	}
	if len(dates) == 1 {
		return FormatDateHuman(dates[0])
	}

	sameMonth := true
	for _, d := range dates {
		if d.Month != dates[0].Month || d.Year != dates[0].Year {
			sameMonth = false
			break
		}
	}

	if !sameMonth {
		parts := make([]string, len(dates))
		for i, d := range dates {
			parts[i] = FormatDateHuman(d)
		}
		return joinWithAnd(parts)
	}

	monthWord := monthsGenitive[dates[0].Month-1]
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = strconv.Itoa(d.Day)
	}
	return joinWithAnd(parts) + " " + monthWord
}

func joinWithAnd(parts []string) string {
	if len(parts) == 2 {
		return parts[0] + " и " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " и " + parts[len(parts)-1]
}

// consecutiveDays reports whether every adjacent pair of ascending dates
// differs by exactly one UTC day.
func consecutiveDays(dates []Date) bool {
	for i := 1; i < len(dates); i++ {
		if dates[i].TS-dates[i-1].TS != dayMillis {
			return false
		}
	}
	return true
}

func isNextDay(prev, next Date) bool {
	return next.TS-prev.TS == dayMillis
}

// pluralDays returns the Russian agreement form of "день" for a count.
func pluralDays(n int) string {
	if n < 0 {
		n = -n
	}
	mod10 := n % 10
	mod100 := n % 100
	if mod10 == 1 && mod100 != 11 {
		return "день"
	}
	if mod10 >= 2 && mod10 <= 4 && (mod100 < 12 || mod100 > 14) {
		return "дня"
	}
	return "дней"
}

// BuildPushRelative builds the colloquial day phrase for push notifications.
// Dates must be sorted ascending and deduplicated.
func BuildPushRelative(dates []Date) string {
	if len(dates) == 0 {
		return ""
	}
	if len(dates) == 1 {
		return "Завтра"
	}
	if len(dates) == 2 {
		if consecutiveDays(dates) {
			return "Завтра и послезавтра"
		}
		return "Завтра и " + FormatDateHuman(dates[1])
	}
	if consecutiveDays(dates) {
		return fmt.Sprintf("Завтра и следующие %d дня", len(dates)-1)
	}
	return FormatDateListHuman(dates)
}

// BuildPushRelativePiket is the picket flavor: consecutive runs become
// "Ближайшие N дней" with plural agreement, a full week gets its own phrase.
func BuildPushRelativePiket(dates []Date) string {
	if len(dates) == 0 {
		return ""
	}
	if len(dates) == 1 {
		return "Завтра"
	}
	if consecutiveDays(dates) {
		if len(dates) == 7 {
			return "Ближайшую неделю"
		}
		return fmt.Sprintf("Ближайшие %d %s", len(dates), pluralDays(len(dates)))
	}
	return BuildPushRelative(dates)
}
