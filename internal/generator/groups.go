package generator

import (
	"fmt"
	"sort"
	"strings"
)

// RowError ties a validation failure to its 1-based source row.
type RowError struct {
	RowNum int    `json:"row_num"`
	Err    string `json:"error"`
}

func (e RowError) String() string {
	return fmt.Sprintf("Строка %d: %s", e.RowNum, e.Err)
}

// Group is one aggregated occurrence for pickets and meetings: all rows with
// the same address and time window, dates accumulated across rows.
type Group struct {
	Key            string
	EventType      EventType
	ScenarioKey    string
	Address        string
	Time           TimeRange
	Dates          []Date
	PlaceOriginal  string
	PlaceFinal     string
	TopicRaw       string
	Okrug          string
	Raion          string
	MeetingTypeRaw string
	LinkRaw        string
	SourceRows     []int
}

// groupRow is the shared view of piket and vstrecha rows used for grouping.
type groupRow struct {
	rowNum         int
	okrug          string
	raion          string
	address        string
	placeRaw       string
	topicRaw       string
	dateRaw        string
	timeRaw        string
	meetingTypeRaw string
	linkRaw        string
}

// BuildPiketGroups aggregates picket rows by (scenario, address, time range).
func BuildPiketGroups(rows []PiketRow, scenarioKey string, placeOverrides map[int]string) ([]Group, []RowError) {
	shared := make([]groupRow, len(rows))
	for i, r := range rows {
		shared[i] = groupRow{
			rowNum:   r.RowNum,
			okrug:    r.Okrug,
			address:  r.Address,
			placeRaw: r.PlaceRaw,
			topicRaw: r.TopicRaw,
			dateRaw:  r.DateRaw,
			timeRaw:  r.TimeRaw,
		}
	}
	return buildGroups(shared, EventPiket, scenarioKey, placeOverrides)
}

// BuildVstrechaGroups aggregates meeting rows the same way, carrying the
// meeting-specific columns along on the group.
func BuildVstrechaGroups(rows []VstrechaRow, scenarioKey string, placeOverrides map[int]string) ([]Group, []RowError) {
	shared := make([]groupRow, len(rows))
	for i, r := range rows {
		shared[i] = groupRow{
			rowNum:         r.RowNum,
			okrug:          r.Okrug,
			raion:          r.Raion,
			address:        r.Address,
			placeRaw:       r.PlaceRaw,
			topicRaw:       r.TopicRaw,
			dateRaw:        r.DateRaw,
			timeRaw:        r.TimeRaw,
			meetingTypeRaw: r.MeetingTypeRaw,
			linkRaw:        r.LinkRaw,
		}
	}
	return buildGroups(shared, EventVstrecha, scenarioKey, placeOverrides)
}

// buildGroups validates each row, keyed-groups survivors, then sorts and
// deduplicates each group's dates. A failed row is reported and skipped
// without affecting the rest of the batch. Group order is first-seen order
// so repeated runs over the same input produce identical output.
func buildGroups(rows []groupRow, eventType EventType, scenarioKey string, placeOverrides map[int]string) ([]Group, []RowError) {
	var groups []Group
	index := map[string]int{}
	var rowErrors []RowError

	for _, r := range rows {
		t, err := ParseTimeRange(r.timeRaw)
		if err != nil {
			rowErrors = append(rowErrors, RowError{RowNum: r.rowNum, Err: err.Error()})
			continue
		}

		d, err := ParseDate(r.dateRaw)
		if err != nil {
			rowErrors = append(rowErrors, RowError{RowNum: r.rowNum, Err: err.Error()})
			continue
		}

		address := strings.TrimSpace(r.address)
		if address == "" {
			rowErrors = append(rowErrors, RowError{RowNum: r.rowNum, Err: "Пустой адрес"})
			continue
		}

		key := string(eventType) + "|" + scenarioKey + "|" + address + "|" + t.Key
		idx, ok := index[key]
		if !ok {
			placeFinal := r.placeRaw
			if override, ok := placeOverrides[r.rowNum]; ok {
				placeFinal = override
			}
			groups = append(groups, Group{
				Key:            key,
				EventType:      eventType,
				ScenarioKey:    scenarioKey,
				Address:        address,
				Time:           t,
				PlaceOriginal:  r.placeRaw,
				PlaceFinal:     placeFinal,
				TopicRaw:       r.topicRaw,
				Okrug:          r.okrug,
				Raion:          r.raion,
				MeetingTypeRaw: r.meetingTypeRaw,
				LinkRaw:        r.linkRaw,
			})
			idx = len(groups) - 1
			index[key] = idx
		}

		groups[idx].Dates = append(groups[idx].Dates, d)
		groups[idx].SourceRows = append(groups[idx].SourceRows, r.rowNum)
	}

	for i := range groups {
		groups[i].Dates = sortedUniqueDates(groups[i].Dates)
	}
	return groups, rowErrors
}

// sortedUniqueDates sorts ascending by timestamp and drops exact duplicates.
func sortedUniqueDates(dates []Date) []Date {
	sorted := append([]Date(nil), dates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS < sorted[j].TS })
	var uniq []Date
	for _, d := range sorted {
		if len(uniq) == 0 || uniq[len(uniq)-1].TS != d.TS {
			uniq = append(uniq, d)
		}
	}
	return uniq
}
