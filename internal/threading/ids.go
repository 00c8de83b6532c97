// Package threading decides which ticket an inbound email belongs to and
// applies the result to the store. It unifies date recovery (DateExtractor),
// multi-strategy thread matching (ThreadMatcher) and the ticket/message
// write path (ConversationReconciler).
package threading

import (
	"regexp"
	"strings"
)

// fuzzyPrefixLen is how many leading characters of a message identifier are
// compared when relays have mutated the tail of an id.
const fuzzyPrefixLen = 12

// fuzzyMinIDLen guards the fuzzy pass against short, collision-prone ids.
const fuzzyMinIDLen = 8

var (
	bracketedIDPattern = regexp.MustCompile(`<([^<>]+)>`)
	replyPrefixPattern = regexp.MustCompile(`^(?i:(re|fwd|fw))\s*:\s*`)
)

// CleanMessageID strips angle brackets, quotes and surrounding whitespace
// from a message identifier, yielding its clean form for comparison.
func CleanMessageID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.Trim(value, "<>")
	value = strings.Trim(value, `"`)
	return strings.TrimSpace(value)
}

// uniqueCleanIDs extracts every message identifier from the given raw header
// values (References lists, In-Reply-To) in order, clean-formed and deduped.
func uniqueCleanIDs(values ...string) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		matches := bracketedIDPattern.FindAllStringSubmatch(raw, -1)
		if len(matches) == 0 {
			// Bare identifiers, whitespace separated
			for _, field := range strings.Fields(raw) {
				add(CleanMessageID(field))
			}
			continue
		}
		for _, match := range matches {
			add(CleanMessageID(match[1]))
		}
	}
	return ids
}

// fuzzyIDMatch reports whether two clean-form identifiers look like the same
// message mangled by a relay: the first fuzzyPrefixLen characters of either
// one appear inside the other. Short ids are rejected outright.
func fuzzyIDMatch(a, b string) bool {
	if len(a) < fuzzyMinIDLen || len(b) < fuzzyMinIDLen {
		return false
	}
	return strings.Contains(b, idPrefix(a)) || strings.Contains(a, idPrefix(b))
}

func idPrefix(id string) string {
	if len(id) > fuzzyPrefixLen {
		return id[:fuzzyPrefixLen]
	}
	return id
}

// RootSubject strips leading reply/forward markers (Re:, Fwd:, Fw:), however
// deeply nested, returning the root conversation subject.
func RootSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	for {
		stripped := replyPrefixPattern.ReplaceAllString(subject, "")
		if stripped == subject {
			return subject
		}
		subject = strings.TrimSpace(stripped)
	}
}
