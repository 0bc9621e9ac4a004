package generator

import (
	"fmt"
	"strings"
)

// EventType tags the three notification families.
type EventType string

const (
	EventObhod    EventType = "obhod"
	EventPiket    EventType = "piket"
	EventVstrecha EventType = "vstrecha"
)

// Scenarios lists the admin-selectable scenario keys per event type. The
// obhod auto path additionally produces block-level keys, see obhod.go.
var Scenarios = map[EventType][]string{
	EventObhod:    {"regular", "cancel_generic", "cancel_quorum", "reschedule"},
	EventPiket:    {"regular", "cancel"},
	EventVstrecha: {"offline", "online"},
}

// Column names accepted by cell edits, shared across row variants.
const (
	FieldOkrug         = "okrug"
	FieldRaion         = "raion"
	FieldAddress       = "address"
	FieldDate          = "date"
	FieldTime          = "time"
	FieldTopic         = "topic"
	FieldPlace         = "place"
	FieldCampaignStart = "campaign_start"
	FieldCampaignEnd   = "campaign_end"
	FieldMeetingType   = "meeting_type"
	FieldLink          = "link"
)

// ObhodRow is one door-to-door visit line: district, address, date, time.
type ObhodRow struct {
	RowNum  int
	Okrug   string
	Address string
	DateRaw string
	TimeRaw string
}

// PiketRow is one picket line with campaign window, topic and place.
type PiketRow struct {
	RowNum           int
	Okrug            string
	Address          string
	CampaignStartRaw string
	CampaignEndRaw   string
	TopicRaw         string
	PlaceRaw         string
	DateRaw          string
	TimeRaw          string
}

// VstrechaRow is one meeting line; the trailing link column is optional.
type VstrechaRow struct {
	RowNum         int
	Okrug          string
	Raion          string
	Address        string
	PlaceRaw       string
	TopicRaw       string
	DateRaw        string
	TimeRaw        string
	MeetingTypeRaw string
	LinkRaw        string
}

// RowSet is the typed result of one parse call. Exactly one of the slices is
// populated, selected by EventType. Row numbers are 1-based source line
// numbers and stay stable for error reporting.
type RowSet struct {
	EventType EventType
	Obhod     []ObhodRow
	Piket     []PiketRow
	Vstrecha  []VstrechaRow
}

// Len returns the number of parsed rows regardless of variant.
func (rs *RowSet) Len() int {
	switch rs.EventType {
	case EventObhod:
		return len(rs.Obhod)
	case EventPiket:
		return len(rs.Piket)
	case EventVstrecha:
		return len(rs.Vstrecha)
	default:
		return 0
	}
}

// Edits holds cell-level overrides keyed by row number and column name.
// They are applied at read time; the parsed rows are never mutated.
type Edits map[int]map[string]string

func (e Edits) get(rowNum int, field, fallback string) string {
	if e == nil {
		return fallback
	}
	if row, ok := e[rowNum]; ok {
		if v, ok := row[field]; ok {
			return v
		}
	}
	return fallback
}

// ParseRows splits tab-separated text into typed rows for the event type.
// Blank lines are dropped, short lines are reported with their 1-based line
// number and skipped; remaining lines keep parsing.
func ParseRows(text string, eventType EventType) (*RowSet, []string) {
	rs := &RowSet{EventType: eventType}
	if _, ok := Scenarios[eventType]; !ok {
		return rs, []string{fmt.Sprintf("Неизвестный тип события: %s", eventType)}
	}

	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return rs, []string{"Пустая вставка"}
	}

	var errs []string
	for i, line := range lines {
		rowNum := i + 1
		cols := strings.Split(line, "\t")
		for j := range cols {
			cols[j] = strings.TrimSpace(cols[j])
		}

		switch eventType {
		case EventObhod:
			if len(cols) < 4 {
				errs = append(errs, fmt.Sprintf("Строка %d: ожидалось 4 колонки (Округ, Адрес, Дата обхода, Время обхода)", rowNum))
				continue
			}
			rs.Obhod = append(rs.Obhod, ObhodRow{
				RowNum:  rowNum,
				Okrug:   cols[0],
				Address: cols[1],
				DateRaw: cols[2],
				TimeRaw: cols[3],
			})

		case EventVstrecha:
			if len(cols) < 8 {
				errs = append(errs, fmt.Sprintf("Строка %d: ожидалось 8 колонок (Округ, Район, Адреса, Место встречи, Тематика, Дата, Время, Тип встречи)", rowNum))
				continue
			}
			row := VstrechaRow{
				RowNum:         rowNum,
				Okrug:          cols[0],
				Raion:          cols[1],
				Address:        cols[2],
				PlaceRaw:       cols[3],
				TopicRaw:       cols[4],
				DateRaw:        cols[5],
				TimeRaw:        cols[6],
				MeetingTypeRaw: cols[7],
			}
			if len(cols) > 8 {
				row.LinkRaw = cols[8]
			}
			rs.Vstrecha = append(rs.Vstrecha, row)

		case EventPiket:
			if len(cols) < 8 {
				errs = append(errs, fmt.Sprintf("Строка %d: ожидалось 8 колонок (Округ, Адрес, Дата старта, Дата окончания, Тематика, Место проведения, Дата, Время)", rowNum))
				continue
			}
			rs.Piket = append(rs.Piket, PiketRow{
				RowNum:           rowNum,
				Okrug:            cols[0],
				Address:          cols[1],
				CampaignStartRaw: cols[2],
				CampaignEndRaw:   cols[3],
				TopicRaw:         cols[4],
				PlaceRaw:         cols[5],
				DateRaw:          cols[6],
				TimeRaw:          cols[7],
			})
		}
	}

	return rs, errs
}

// WithEdits returns a copy of the row set with cell edits applied. The
// receiver is left untouched so repeated generations see the same input.
func (rs *RowSet) WithEdits(edits Edits) *RowSet {
	out := &RowSet{EventType: rs.EventType}
	switch rs.EventType {
	case EventObhod:
		out.Obhod = make([]ObhodRow, len(rs.Obhod))
		for i, r := range rs.Obhod {
			r.Okrug = edits.get(r.RowNum, FieldOkrug, r.Okrug)
			r.Address = edits.get(r.RowNum, FieldAddress, r.Address)
			r.DateRaw = edits.get(r.RowNum, FieldDate, r.DateRaw)
			r.TimeRaw = edits.get(r.RowNum, FieldTime, r.TimeRaw)
			out.Obhod[i] = r
		}
	case EventPiket:
		out.Piket = make([]PiketRow, len(rs.Piket))
		for i, r := range rs.Piket {
			r.Okrug = edits.get(r.RowNum, FieldOkrug, r.Okrug)
			r.Address = edits.get(r.RowNum, FieldAddress, r.Address)
			r.CampaignStartRaw = edits.get(r.RowNum, FieldCampaignStart, r.CampaignStartRaw)
			r.CampaignEndRaw = edits.get(r.RowNum, FieldCampaignEnd, r.CampaignEndRaw)
			r.TopicRaw = edits.get(r.RowNum, FieldTopic, r.TopicRaw)
			r.PlaceRaw = edits.get(r.RowNum, FieldPlace, r.PlaceRaw)
			r.DateRaw = edits.get(r.RowNum, FieldDate, r.DateRaw)
			r.TimeRaw = edits.get(r.RowNum, FieldTime, r.TimeRaw)
			out.Piket[i] = r
		}
	default:
		out.Vstrecha = make([]VstrechaRow, len(rs.Vstrecha))
		for i, r := range rs.Vstrecha {
			r.Okrug = edits.get(r.RowNum, FieldOkrug, r.Okrug)
			r.Raion = edits.get(r.RowNum, FieldRaion, r.Raion)
			r.Address = edits.get(r.RowNum, FieldAddress, r.Address)
			r.PlaceRaw = edits.get(r.RowNum, FieldPlace, r.PlaceRaw)
			r.TopicRaw = edits.get(r.RowNum, FieldTopic, r.TopicRaw)
			r.DateRaw = edits.get(r.RowNum, FieldDate, r.DateRaw)
			r.TimeRaw = edits.get(r.RowNum, FieldTime, r.TimeRaw)
			r.MeetingTypeRaw = edits.get(r.RowNum, FieldMeetingType, r.MeetingTypeRaw)
			r.LinkRaw = edits.get(r.RowNum, FieldLink, r.LinkRaw)
			out.Vstrecha[i] = r
		}
	}
	return out
}
