package generator

import (
	"fmt"
	"strconv"
	"strings"
)

// Record statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Options carries the admin-entered knobs that are not part of the table.
type Options struct {
	CancelReason string `json:"cancel_reason"` // {REASON}
	WhenWord     string `json:"when_word"`     // {WHEN_WORD}
	Link         string `json:"link"`          // fallback {LINK} for online meetings
	TopicShort   string `json:"topic_short"`   // {TOPIC_SHORT} override for push text
}

// Request is one self-contained generation invocation. All state the engine
// needs is passed in; nothing is retained between calls.
type Request struct {
	EventType      EventType      `json:"event_type"`
	ScenarioKey    string         `json:"scenario_key"`
	Input          string         `json:"input"`
	Edits          Edits          `json:"edits,omitempty"`
	PlaceOverrides map[int]string `json:"place_overrides,omitempty"`
	Options        Options        `json:"options"`
}

// Record is one generated output unit, emitted even on failure so the caller
// can show what went wrong next to the partial output.
type Record struct {
	EventType      EventType `json:"event_type"`
	ScenarioKey    string    `json:"scenario_key"`
	Address        string    `json:"address"`
	DateListHuman  string    `json:"date_list_human"`
	TimeRangeHuman string    `json:"time_range_human"`
	NewsTitle      string    `json:"news_title"`
	NewsHTML       string    `json:"news_html"`
	PushTitle      string    `json:"push_title"`
	PushBody       string    `json:"push_body"`
	Status         string    `json:"status"`
	ErrorText      string    `json:"error_text"`
}

// Result bundles the three error tiers with the produced records.
type Result struct {
	Records     []Record   `json:"records"`
	ParseErrors []string   `json:"parse_errors,omitempty"`
	RowErrors   []RowError `json:"row_errors,omitempty"`
}

// Generate runs the full pipeline for one request against a template
// snapshot: parse, validate, group, assemble variables, render. It is a pure
// function of its arguments; a malformed row, missing template, or unmet
// rule never aborts the rest of the batch.
func Generate(req Request, templates []Template) Result {
	rows, parseErrors := ParseRows(req.Input, req.EventType)
	if rows.Len() == 0 {
		return Result{ParseErrors: parseErrors}
	}
	rows = rows.WithEdits(req.Edits)

	var res Result
	res.ParseErrors = parseErrors

	switch req.EventType {
	case EventObhod:
		res.Records, res.RowErrors = generateObhod(rows.Obhod, req, templates)
	case EventPiket:
		groups, rowErrors := BuildPiketGroups(rows.Piket, req.ScenarioKey, req.PlaceOverrides)
		res.RowErrors = rowErrors
		res.Records = renderGroups(groups, req, templates)
	default:
		groups, rowErrors := BuildVstrechaGroups(rows.Vstrecha, req.ScenarioKey, req.PlaceOverrides)
		res.RowErrors = rowErrors
		res.Records = renderGroups(groups, req, templates)
	}
	return res
}

func generateObhod(rows []ObhodRow, req Request, templates []Template) ([]Record, []RowError) {
	switch req.ScenarioKey {
	case "reschedule":
		return generateObhodReschedule(rows, req, templates)
	case "cancel_generic", "cancel_quorum":
		return generateObhodCancel(rows, req, templates)
	}

	items, rowErrors := BuildObhodOccurrences(rows)
	var out []Record
	for _, it := range items {
		rec := Record{
			EventType:     EventObhod,
			ScenarioKey:   it.ScenarioKey,
			Address:       it.Address,
			DateListHuman: it.DateListHuman,
		}
		tpl := FindTemplate(templates, EventObhod, it.ScenarioKey)
		if tpl == nil {
			rec.Status = StatusError
			rec.ErrorText = missingTemplate(it.ScenarioKey)
			out = append(out, rec)
			continue
		}
		out = append(out, renderRecord(rec, tpl, it.Vars))
	}
	return out, rowErrors
}

func generateObhodReschedule(rows []ObhodRow, req Request, templates []Template) ([]Record, []RowError) {
	groups, rowErrors := BuildRescheduleGroups(rows)
	tpl := FindTemplate(templates, EventObhod, req.ScenarioKey)

	var out []Record
	for _, re := range rowErrors {
		out = append(out, errorRecord(EventObhod, req.ScenarioKey, "", re.String()))
	}
	for _, g := range groups {
		if tpl == nil {
			out = append(out, errorRecord(EventObhod, req.ScenarioKey, g.Address, missingTemplate(req.ScenarioKey)))
			continue
		}
		text, err := FormatObhodDateTimeMulti(g.DateRaw, g.Times)
		if err != nil {
			out = append(out, errorRecord(EventObhod, req.ScenarioKey, g.Address,
				fmt.Sprintf("Строки %s: %s", joinRowNums(g.RowNums), err.Error())))
			continue
		}
		rec := Record{EventType: EventObhod, ScenarioKey: req.ScenarioKey, Address: g.Address}
		out = append(out, renderRecord(rec, tpl, map[string]string{
			"ADDRESS":       g.Address,
			"NEWS_DATETIME": text,
		}))
	}
	return out, nil
}

func generateObhodCancel(rows []ObhodRow, req Request, templates []Template) ([]Record, []RowError) {
	tpl := FindTemplate(templates, EventObhod, req.ScenarioKey)

	var out []Record
	for _, r := range rows {
		address := strings.TrimSpace(r.Address)
		if address == "" {
			out = append(out, errorRecord(EventObhod, req.ScenarioKey, "",
				fmt.Sprintf("Строка %d: пустой адрес", r.RowNum)))
			continue
		}
		if tpl == nil {
			out = append(out, errorRecord(EventObhod, req.ScenarioKey, address, missingTemplate(req.ScenarioKey)))
			continue
		}
		rec := Record{EventType: EventObhod, ScenarioKey: req.ScenarioKey, Address: address}
		out = append(out, renderRecord(rec, tpl, map[string]string{"ADDRESS": address}))
	}
	return out, nil
}

// renderGroups assembles the variable map for picket and meeting groups and
// renders each one, surfacing rule violations on the record.
func renderGroups(groups []Group, req Request, templates []Template) []Record {
	tpl := FindTemplate(templates, req.EventType, req.ScenarioKey)

	var out []Record
	for _, g := range groups {
		dateList := FormatDateListHuman(g.Dates)
		timeRange := g.Time.TimeText
		rec := Record{
			EventType:      g.EventType,
			ScenarioKey:    g.ScenarioKey,
			Address:        g.Address,
			DateListHuman:  dateList,
			TimeRangeHuman: timeRange,
		}
		if tpl == nil {
			rec.Status = StatusError
			rec.ErrorText = missingTemplate(req.ScenarioKey)
			out = append(out, rec)
			continue
		}

		placeText := FormatPlaceHuman(g.PlaceFinal)
		placePush := DetectPlacePush(g.PlaceFinal)
		topicFull := strings.TrimSpace(g.TopicRaw)
		topicShort := strings.TrimSpace(req.Options.TopicShort)
		if topicShort == "" {
			topicShort = topicFull
		}

		var pushRelative string
		if g.EventType == EventPiket {
			pushRelative = BuildPushRelativePiket(g.Dates)
		} else {
			pushRelative = BuildPushRelative(g.Dates)
		}

		vars := map[string]string{
			"ADDRESS":       g.Address,
			"DATE_LIST":     dateList,
			"TIME_RANGE":    timeRange,
			"DATE_TIME":     strings.TrimSpace(dateList + " " + timeRange),
			"PUSH_RELATIVE": pushRelative,
			"PLACE_TEXT":    placeText,
			"PLACE_PUSH":    placePush,
			"TOPIC_FULL":    topicFull,
			"TOPIC_SHORT":   topicShort,
			"REASON":        req.Options.CancelReason,
			"WHEN_WORD":     req.Options.WhenWord,
			"LINK":          req.Options.Link,
		}

		var errs []string
		if g.EventType == EventVstrecha {
			isOnline := req.ScenarioKey == "online"
			link := strings.TrimSpace(g.LinkRaw)
			if link == "" {
				link = strings.TrimSpace(req.Options.Link)
			}
			vars["LINK"] = link
			vars["TEMA"] = MeetingTema(g.TopicRaw)
			vars["MEETING_FOOTER"] = MeetingFooterHTML(isOnline, link, placeText, g.Address)

			rowType := NormalizeMeetingType(g.MeetingTypeRaw)
			if rowType != "" {
				want := "offline"
				if isOnline {
					want = "online"
				}
				if rowType != want {
					errs = append(errs, "Тип встречи в таблице не совпадает со сценарием")
				}
			}
		}

		if tpl.Rules.RequiresPlaceText && placeText == "" {
			errs = append(errs, "Не заполнено место (PLACE_TEXT)")
		}
		if tpl.Rules.RequiresPlacePush && placePush == "" {
			errs = append(errs, "Не выбран вариант PLACE_PUSH")
		}
		if tpl.Rules.RequiresTopic && topicFull == "" {
			errs = append(errs, "Не заполнена тематика (TOPIC_FULL)")
		}
		if tpl.Rules.RequiresReason && req.Options.CancelReason == "" {
			errs = append(errs, "Не выбрана причина (REASON)")
		}

		rec = renderRecord(rec, tpl, vars)
		if len(errs) > 0 {
			rec.Status = StatusError
			rec.ErrorText = strings.Join(errs, "; ")
		}
		out = append(out, rec)
	}
	return out
}

func renderRecord(rec Record, tpl *Template, vars map[string]string) Record {
	rec.NewsTitle = Render(tpl.TitleNews, vars)
	rec.NewsHTML = Render(tpl.BodyNewsHTML, vars)
	rec.PushTitle = Render(tpl.PushTitle, vars)
	rec.PushBody = Render(tpl.PushBody, vars)
	rec.Status = StatusOK
	return rec
}

func errorRecord(eventType EventType, scenarioKey, address, text string) Record {
	return Record{
		EventType:   eventType,
		ScenarioKey: scenarioKey,
		Address:     address,
		Status:      StatusError,
		ErrorText:   text,
	}
}

func missingTemplate(scenarioKey string) string {
	return "Нет шаблона для scenario_key=" + scenarioKey
}

func joinRowNums(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
