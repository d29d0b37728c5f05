package connection

import "strings"

// MatchTopicFilter reports whether a wire topic matches a subscription
// filter. Filters use MQTT semantics: "+" matches exactly one topic level,
// "#" matches the remainder of the topic (and must be the last level). A
// trailing "*" is accepted as a prefix wildcard for sources without MQTT
// filter syntax. An empty filter matches everything.
func MatchTopicFilter(filter, topic string) bool {
	if filter == "" || filter == "#" {
		return true
	}
	if strings.HasSuffix(filter, "*") && !strings.ContainsAny(filter, "+#") {
		return strings.HasPrefix(topic, strings.TrimSuffix(filter, "*"))
	}

	fParts := strings.Split(filter, "/")
	tParts := strings.Split(topic, "/")

	for i, fp := range fParts {
		if fp == "#" {
			return i == len(fParts)-1
		}
		if i >= len(tParts) {
			return false
		}
		if fp == "+" {
			continue
		}
		if !strings.EqualFold(fp, tParts[i]) {
			return false
		}
	}
	return len(fParts) == len(tParts)
}
