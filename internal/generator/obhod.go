package generator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Block-level scenario keys produced by the obhod auto path. The suffix
// encodes the slot-count pairing of the block's days.
const (
	ScenarioObhod1d1slot   = "obhod_1d_1slot"
	ScenarioObhod1d2slot   = "obhod_1d_2slot"
	ScenarioObhod2d11Same  = "obhod_2d_1_1_same"
	ScenarioObhod2d11Diff  = "obhod_2d_1_1_diff"
	ScenarioObhod2d21      = "obhod_2d_2_1"
	ScenarioObhod2d12      = "obhod_2d_1_2"
	ScenarioObhod2d22      = "obhod_2d_2_2"
)

// daySchedule is one calendar day at one address with its deduplicated,
// ascending time slots (at most two).
type daySchedule struct {
	date  Date
	slots []TimeRange
	okrug string
}

// Occurrence is one obhod notification unit: a block of one or two
// consecutive days at an address, classified into a scenario key and carrying
// the variable map for template rendering.
type Occurrence struct {
	ScenarioKey   string
	Address       string
	DateListHuman string
	Okrug         string
	Vars          map[string]string
}

type obhodEvent struct {
	rowNum  int
	okrug   string
	address string
	date    Date
	slot    TimeRange
}

// BuildObhodOccurrences turns raw visit rows into notification blocks.
// Rows are validated first; survivors are partitioned by address, grouped by
// calendar day with slots deduplicated and capped at two, then chunked into
// blocks of at most two consecutive days. A run of three consecutive days
// always yields a 2-day block followed by a 1-day block.
func BuildObhodOccurrences(rows []ObhodRow) ([]Occurrence, []RowError) {
	var rowErrors []RowError
	var events []obhodEvent

	for _, r := range rows {
		address := strings.TrimSpace(r.Address)
		if address == "" {
			rowErrors = append(rowErrors, RowError{RowNum: r.RowNum, Err: "Пустой адрес"})
			continue
		}
		d, err := ParseDate(r.DateRaw)
		if err != nil {
			rowErrors = append(rowErrors, RowError{RowNum: r.RowNum, Err: err.Error()})
			continue
		}
		t, err := ParseTimeRange(r.TimeRaw)
		if err != nil {
			rowErrors = append(rowErrors, RowError{RowNum: r.RowNum, Err: err.Error()})
			continue
		}
		events = append(events, obhodEvent{rowNum: r.RowNum, okrug: r.Okrug, address: address, date: d, slot: t})
	}

	var addresses []string
	byAddress := map[string][]obhodEvent{}
	for _, e := range events {
		if _, ok := byAddress[e.address]; !ok {
			addresses = append(addresses, e.address)
		}
		byAddress[e.address] = append(byAddress[e.address], e)
	}

	var items []Occurrence
	for _, address := range addresses {
		list := byAddress[address]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].date.TS != list[j].date.TS {
				return list[i].date.TS < list[j].date.TS
			}
			return list[i].slot.FromMinutes < list[j].slot.FromMinutes
		})

		days := collectDays(list)

		for i := 0; i < len(days); {
			if i+1 < len(days) && isNextDay(days[i].date, days[i+1].date) {
				items = append(items, buildOccurrence(address, days[i:i+2]))
				i += 2
				continue
			}
			items = append(items, buildOccurrence(address, days[i:i+1]))
			i++
		}
	}

	return items, rowErrors
}

// collectDays buckets sorted events into per-day schedules, deduplicating
// identical slots and keeping at most the two earliest distinct ones.
func collectDays(list []obhodEvent) []daySchedule {
	var days []daySchedule
	index := map[int64]int{}
	for _, e := range list {
		idx, ok := index[e.date.TS]
		if !ok {
			days = append(days, daySchedule{date: e.date, okrug: e.okrug})
			idx = len(days) - 1
			index[e.date.TS] = idx
		}
		days[idx].slots = append(days[idx].slots, e.slot)
	}

	sort.SliceStable(days, func(i, j int) bool { return days[i].date.TS < days[j].date.TS })

	for i := range days {
		var uniq []TimeRange
		for _, s := range days[i].slots {
			dup := false
			for _, u := range uniq {
				if u.Key == s.Key {
					dup = true
					break
				}
			}
			if !dup {
				uniq = append(uniq, s)
			}
		}
		sort.SliceStable(uniq, func(a, b int) bool { return uniq[a].FromMinutes < uniq[b].FromMinutes })
		if len(uniq) > 2 {
			uniq = uniq[:2]
		}
		days[i].slots = uniq
	}
	return days
}

func buildOccurrence(address string, block []daySchedule) Occurrence {
	scenario := selectObhodScenario(block)
	occ := Occurrence{
		ScenarioKey: scenario,
		Address:     address,
		Okrug:       block[0].okrug,
		Vars: map[string]string{
			"ADDRESS":       address,
			"NEWS_DATETIME": buildNewsDateTime(block),
			"PUSH_DAY":      buildObhodPushDay(block),
			"PUSH_TIME":     buildObhodPushTime(block, scenario),
		},
	}
	if len(block) == 2 {
		occ.DateListHuman = FormatDateHuman(block[0].date) + " и " + FormatDateHuman(block[1].date)
	} else {
		occ.DateListHuman = FormatDateHuman(block[0].date)
	}
	return occ
}

// selectObhodScenario classifies a block by its slot-count pairing. "Same"
// compares the minute values of the slots, not the formatted strings.
func selectObhodScenario(block []daySchedule) string {
	if len(block) == 1 {
		if len(block[0].slots) == 2 {
			return ScenarioObhod1d2slot
		}
		return ScenarioObhod1d1slot
	}

	s1 := len(block[0].slots)
	s2 := len(block[1].slots)

	if s1 == 1 && s2 == 1 {
		if block[0].slots[0].Key == block[1].slots[0].Key {
			return ScenarioObhod2d11Same
		}
		return ScenarioObhod2d11Diff
	}
	if s1 == 2 && s2 == 1 {
		return ScenarioObhod2d21
	}
	if s1 == 1 && s2 == 2 {
		return ScenarioObhod2d12
	}
	return ScenarioObhod2d22
}

func sameSlots(a, b []TimeRange) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key {
			return false
		}
	}
	return true
}

func formatDayWithSlots(d Date, slots []TimeRange) string {
	if len(slots) == 1 {
		return FormatDateHuman(d) + " " + slots[0].TimeText
	}
	return FormatDateHuman(d) + " " + slots[0].TimeText + " и " + slots[1].TimeText
}

// buildNewsDateTime renders the news date/time phrase for a block. Two days
// with identical slot lists collapse into a single date-list phrase.
func buildNewsDateTime(block []daySchedule) string {
	if len(block) == 0 {
		return ""
	}
	if len(block) == 1 {
		return formatDayWithSlots(block[0].date, block[0].slots)
	}

	if sameSlots(block[0].slots, block[1].slots) {
		dateList := FormatDateListHuman([]Date{block[0].date, block[1].date})
		parts := make([]string, len(block[0].slots))
		for i, s := range block[0].slots {
			parts[i] = s.TimeText
		}
		return strings.TrimSpace(dateList + " " + strings.Join(parts, " и "))
	}

	return formatDayWithSlots(block[0].date, block[0].slots) + " и " + formatDayWithSlots(block[1].date, block[1].slots)
}

func buildObhodPushDay(block []daySchedule) string {
	if len(block) == 1 {
		return "Завтра"
	}
	if isNextDay(block[0].date, block[1].date) {
		return "Завтра и послезавтра"
	}
	return "Завтра и " + FormatDateHuman(block[1].date)
}

// buildObhodPushTime fills the push time only when it is unambiguous: a
// single day, or two days sharing one identical slot. Otherwise the template
// is expected to omit the placeholder.
func buildObhodPushTime(block []daySchedule, scenario string) string {
	if len(block) == 2 && scenario == ScenarioObhod2d11Same {
		return block[0].slots[0].TimeText
	}
	if len(block) == 1 && len(block[0].slots) > 0 {
		return block[0].slots[0].TimeText
	}
	return ""
}

// RescheduleGroup aggregates reschedule rows sharing an address and a raw
// date cell; the manual path bypasses block building entirely.
type RescheduleGroup struct {
	Address string
	DateRaw string
	Times   []string
	RowNums []int
}

// BuildRescheduleGroups groups rows by (address, raw date) preserving
// first-seen order. Rows with an empty address are reported individually.
func BuildRescheduleGroups(rows []ObhodRow) ([]RescheduleGroup, []RowError) {
	var groups []RescheduleGroup
	index := map[string]int{}
	var rowErrors []RowError

	for _, r := range rows {
		address := strings.TrimSpace(r.Address)
		if address == "" {
			rowErrors = append(rowErrors, RowError{RowNum: r.RowNum, Err: "Пустой адрес"})
			continue
		}
		dateRaw := strings.TrimSpace(r.DateRaw)
		key := address + "||" + dateRaw
		idx, ok := index[key]
		if !ok {
			groups = append(groups, RescheduleGroup{Address: address, DateRaw: dateRaw})
			idx = len(groups) - 1
			index[key] = idx
		}
		groups[idx].Times = append(groups[idx].Times, strings.TrimSpace(r.TimeRaw))
		groups[idx].RowNums = append(groups[idx].RowNums, r.RowNum)
	}
	return groups, rowErrors
}

// FormatObhodDateTimeMulti merges one date with up to two distinct times
// into a single human phrase for the reschedule scenario. A third distinct
// time is a hard error here because the cells are hand-entered.
func FormatObhodDateTimeMulti(dateRaw string, timeRaws []string) (string, error) {
	d, err := ParseDate(dateRaw)
	if err != nil {
		return "", err
	}

	var times []string
	for _, t := range timeRaws {
		t = strings.TrimSpace(t)
		if t != "" {
			times = append(times, t)
		}
	}
	if len(times) == 0 {
		return "", errors.New("Пустое время")
	}
	if len(times) > 2 {
		return "", errors.New("Больше двух обходов в день не поддерживается")
	}

	var parsed []TimeRange
	for _, tr := range times {
		t, err := ParseTimeRange(tr)
		if err != nil {
			return "", err
		}
		parsed = append(parsed, t)
	}

	var uniq []TimeRange
	for _, t := range parsed {
		dup := false
		for _, u := range uniq {
			if u.Key == t.Key {
				dup = true
				break
			}
		}
		if !dup {
			uniq = append(uniq, t)
		}
	}
	sort.SliceStable(uniq, func(i, j int) bool { return uniq[i].FromMinutes < uniq[j].FromMinutes })

	parts := make([]string, len(uniq))
	for i, t := range uniq {
		parts[i] = t.TimeText
	}
	return fmt.Sprintf("%s %s", FormatDateHuman(d), strings.Join(parts, " и ")), nil
}
