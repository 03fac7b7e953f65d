// Package segment turns extracted text into ordered, speaker-tagged records.
package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const UnknownSpeaker = "unknown"

// Record is one utterance in extraction order.
type Record struct {
	OriginalText string
	Speaker      string
	// Position is the character offset of the match in the normalized text,
	// or the index among non-blank lines when the text has no speaker labels.
	Position int
}

var (
	timestampPattern    = regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}\]`)
	labelPattern        = regexp.MustCompile(`[ \t]*(Speaker \d+:)`)
	spaceRunPattern     = regexp.MustCompile(`[ \t]{2,}`)
	newlineRunPattern   = regexp.MustCompile(`\n{3,}`)
	utterancePattern    = regexp.MustCompile(`(?i)(?:Agent|Speaker)\s*\w+:([^\n]+)`)
	pageFooterPattern   = regexp.MustCompile(`(?im)^Page \d+ of \d+`)
	headerMarkerPattern = regexp.MustCompile(`(?im)^CTAS.*?\n`)
	preamblePattern     = regexp.MustCompile(`(?is)^.*?(Dear Reader,)`)
)

// Normalize removes [HH:MM:SS] timestamps, starts every speaker label on its
// own line, and collapses runs of spaces and of blank lines.
func Normalize(text string) string {
	text = timestampPattern.ReplaceAllString(text, "")
	text = labelPattern.ReplaceAllString(text, "\n$1")
	text = spaceRunPattern.ReplaceAllString(text, " ")
	text = newlineRunPattern.ReplaceAllString(text, "\n\n")
	return text
}

// Segment splits text into records. Labelled dialogue ("Agent X: ...",
// "Speaker N: ...") wins; otherwise every non-blank line is one record.
func Segment(text string) []Record {
	matches := utterancePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) > 0 {
		records := make([]Record, 0, len(matches))
		for _, m := range matches {
			full := text[m[0]:m[1]]
			speaker := strings.TrimSpace(full[:strings.Index(full, ":")])
			records = append(records, Record{
				OriginalText: strings.TrimSpace(text[m[2]:m[3]]),
				Speaker:      speaker,
				Position:     utf8.RuneCountInString(text[:m[0]]),
			})
		}
		return records
	}

	var records []Record
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		records = append(records, Record{
			OriginalText: line,
			Speaker:      UnknownSpeaker,
			Position:     len(records),
		})
	}
	return records
}

// StripHeadersAndFooters drops "Page N of M" lines, CTAS header lines and
// anything before the "Dear Reader," greeting.
func StripHeadersAndFooters(text string) string {
	text = pageFooterPattern.ReplaceAllString(text, "")
	text = headerMarkerPattern.ReplaceAllString(text, "")
	text = preamblePattern.ReplaceAllString(text, "${1}")
	return strings.TrimSpace(text)
}
