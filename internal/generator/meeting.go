package generator

import "strings"

// NormalizeMeetingType maps a raw meeting-type cell to "online", "offline"
// or "" when unrecognized. Both Russian spellings of offline are accepted.
func NormalizeMeetingType(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if strings.Contains(s, "онлайн") || strings.Contains(s, "online") {
		return "online"
	}
	if strings.Contains(s, "оффлайн") || strings.Contains(s, "офлайн") || strings.Contains(s, "offline") {
		return "offline"
	}
	return ""
}

// NormalizeMeetingTopic rewrites the two fixed topics into the genitive
// phrases used after "по вопросам"; any other topic passes through as is.
func NormalizeMeetingTopic(topicRaw string) string {
	s := strings.TrimSpace(topicRaw)
	switch strings.ToLower(s) {
	case "умный домофон":
		return "установки умного домофона"
	case "шлагбаум":
		return "установки шлагбаума"
	}
	return s
}

// MeetingTema never leaves the topic slot empty: an empty topic falls back
// to the literal "ОСС".
func MeetingTema(topicRaw string) string {
	if t := NormalizeMeetingTopic(topicRaw); t != "" {
		return t
	}
	return "ОСС"
}

// MeetingFooterHTML builds the closing sentence of a meeting news body.
// Offline meetings name the place and address; online meetings embed the
// link when present (quotes escaped for the href) or point to SMS otherwise.
func MeetingFooterHTML(isOnline bool, link, placeText, address string) string {
	addr := strings.TrimSpace(address)
	place := strings.TrimSpace(placeText)
	ln := strings.TrimSpace(link)

	if !isOnline {
		return "<div><br />Встреча пройдет " + place + " по адресу: " + addr + ".</div>"
	}

	if ln != "" {
		safe := strings.ReplaceAll(ln, `"`, "&quot;")
		return `<div><br />Встреча пройдет в онлайн-формате – подключиться можно будет по <a href="` + safe + `" target="_blank" rel="noopener noreferrer">ссылке</a>.</div>`
	}

	return "<div><br />Встреча пройдет в онлайн-формате. Ссылка на встречу была направлена в СМС-сообщении.</div>"
}
