package tagging

import (
	"regexp"
	"strings"
)

// leadingListMarker matches bullets, dashes and "1." / "2)" numbering at the start of a line.
var leadingListMarker = regexp.MustCompile(`^\s*(?:[-•*]+\s*|\(?\d+[.)]\s+)*`)

// ParseTags turns raw model output into an ordered tag list. Lines are stripped of
// list markers, split on commas, and deduplicated case-insensitively keeping the
// first spelling seen.
func ParseTags(raw string) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, line := range strings.Split(raw, "\n") {
		line = leadingListMarker.ReplaceAllString(line, "")
		for _, part := range strings.Split(line, ",") {
			tag := strings.Trim(strings.TrimSpace(part), `"'`)
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			tags = append(tags, tag)
		}
	}
	return tags
}

// JoinTags serializes a tag list for the list item field.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}
