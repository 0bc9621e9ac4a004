package generator

import "strings"

// Render substitutes {NAME} placeholders in a template string. Replacement
// is literal and single-pass: an inserted value is never re-scanned, and a
// placeholder with no matching variable stays in the output verbatim.
func Render(template string, vars map[string]string) string {
	if template == "" {
		return ""
	}

	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			b.WriteString(rest)
			return b.String()
		}
		closing += open

		name := rest[open+1 : closing]
		if value, ok := vars[name]; ok {
			b.WriteString(rest[:open])
			b.WriteString(value)
			rest = rest[closing+1:]
			continue
		}
		// Not a known placeholder: keep the brace and rescan right after it,
		// so "{{ADDRESS}" still finds the inner placeholder.
		b.WriteString(rest[:open+1])
		rest = rest[open+1:]
	}
}

// Rules are the structured flags a template carries; each one turns a
// missing variable into a record-level validation error.
type Rules struct {
	RequiresPlaceText bool `json:"requires_place_text" yaml:"requires_place_text"`
	RequiresPlacePush bool `json:"requires_place_push" yaml:"requires_place_push"`
	RequiresTopic     bool `json:"requires_topic" yaml:"requires_topic"`
	RequiresReason    bool `json:"requires_reason" yaml:"requires_reason"`
}

// Template is the externally supplied text record the engine renders into.
// The engine never mutates templates; it only selects and reads them.
type Template struct {
	EventType    EventType `json:"event_type" yaml:"event_type"`
	ScenarioKey  string    `json:"scenario_key" yaml:"scenario_key"`
	Name         string    `json:"name" yaml:"name"`
	TitleNews    string    `json:"title_news" yaml:"title_news"`
	BodyNewsHTML string    `json:"body_news_html" yaml:"body_news_html"`
	PushTitle    string    `json:"push_title" yaml:"push_title"`
	PushBody     string    `json:"push_body" yaml:"push_body"`
	Rules        Rules     `json:"rules" yaml:"rules"`
	IsActive     bool      `json:"is_active" yaml:"is_active"`
}

// FindTemplate returns the first active template matching the pair, or nil.
func FindTemplate(templates []Template, eventType EventType, scenarioKey string) *Template {
	for i := range templates {
		t := &templates[i]
		if t.IsActive && t.EventType == eventType && t.ScenarioKey == scenarioKey {
			return t
		}
	}
	return nil
}
