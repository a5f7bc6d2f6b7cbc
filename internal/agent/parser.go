package agent

import (
	"regexp"
	"strings"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

// The parser is deliberately forgiving: models wrap records in prose,
// reorder fields, or skip some entirely. Anything recognizable is kept,
// anything malformed is dropped, and zero records is a valid outcome.

var (
	observationBlockRe = regexp.MustCompile(`(?s)<observation>(.*?)</observation>`)
	summaryBlockRe     = regexp.MustCompile(`(?s)<summary>(.*?)</summary>`)
	factRe             = regexp.MustCompile(`(?s)<fact>(.*?)</fact>`)
	conceptRe          = regexp.MustCompile(`(?s)<concept>(.*?)</concept>`)
	fileRe             = regexp.MustCompile(`(?s)<file>(.*?)</file>`)
)

// ParseObservations extracts every well-formed observation block from
// response text. Records with a missing or unknown type are skipped.
func ParseObservations(text string) []*models.ParsedObservation {
	var observations []*models.ParsedObservation
	for _, match := range observationBlockRe.FindAllStringSubmatch(text, -1) {
		block := match[1]

		obsType := models.ObservationType(tagContent(block, "type"))
		if !models.ValidObservationType(obsType) {
			continue
		}

		obs := &models.ParsedObservation{
			Type:          obsType,
			Title:         tagContent(block, "title"),
			Subtitle:      tagContent(block, "subtitle"),
			Narrative:     tagContent(block, "narrative"),
			Facts:         repeatedTag(block, factRe),
			Concepts:      repeatedTag(block, conceptRe),
			FilesRead:     repeatedTag(tagContent(block, "files_read"), fileRe),
			FilesModified: repeatedTag(tagContent(block, "files_modified"), fileRe),
		}
		observations = append(observations, obs)
	}
	return observations
}

// ParseSummary extracts the first summary block, nil when the response
// contains none. Missing fields stay empty.
func ParseSummary(text string) *models.ParsedSummary {
	match := summaryBlockRe.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	block := match[1]
	return &models.ParsedSummary{
		Request:      tagContent(block, "request"),
		Investigated: tagContent(block, "investigated"),
		Learned:      tagContent(block, "learned"),
		Completed:    tagContent(block, "completed"),
		NextSteps:    tagContent(block, "next_steps"),
		Notes:        tagContent(block, "notes"),
	}
}

func tagContent(block, tag string) string {
	open := "<" + tag + ">"
	closing := "</" + tag + ">"
	start := strings.Index(block, open)
	if start < 0 {
		return ""
	}
	start += len(open)
	end := strings.Index(block[start:], closing)
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(block[start : start+end])
}

func repeatedTag(block string, re *regexp.Regexp) []string {
	var values []string
	for _, match := range re.FindAllStringSubmatch(block, -1) {
		if v := strings.TrimSpace(match[1]); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// selfReferenceMarkers flag summaries where the model described its own
// memory-agent role instead of the observed session's work.
var selfReferenceMarkers = []string{
	"memory agent",
	"memory extraction agent",
	"extraction agent",
	"role definition",
	"session initialization",
	"awaiting tool",
	"awaiting user input",
	"awaiting instructions",
	"waiting for the user",
	"waiting for user",
}

// IsSelfReferentialSummary reports whether a parsed summary talks about the
// memory agent itself rather than the observed session. These show up when
// a summary is requested before any real work has been streamed in.
func IsSelfReferentialSummary(summary *models.ParsedSummary) bool {
	combined := strings.ToLower(strings.Join([]string{
		summary.Request,
		summary.Completed,
		summary.Learned,
		summary.NextSteps,
	}, "\n"))
	for _, marker := range selfReferenceMarkers {
		if strings.Contains(combined, marker) {
			return true
		}
	}
	return false
}

// minMeaningfulLength is the floor below which assistant text cannot carry
// enough substance to summarize.
const minMeaningfulLength = 50

// hollowContentMarkers flag assistant text that is hook chatter or
// memory-agent meta talk rather than session work.
var hollowContentMarkers = []string{
	"memory agent",
	"memory extraction agent",
	"extraction agent",
	"hook success",
	"system-reminder",
	"awaiting tool",
	"awaiting user input",
}

// HasMeaningfulContent reports whether assistant text is worth feeding to a
// summary request at all.
func HasMeaningfulContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < minMeaningfulLength {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, marker := range hollowContentMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}
