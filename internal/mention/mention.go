// Package mention extracts @username references from comment text.
package mention

import "regexp"

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// Extract returns every @word token in order of occurrence. Duplicates are
// kept so callers can see each reference; notification fan-out dedupes on its
// own terms.
func Extract(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	mentions := make([]string, 0, len(matches))
	for _, match := range matches {
		mentions = append(mentions, match[1])
	}
	return mentions
}
