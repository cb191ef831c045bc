package report

import (
	"regexp"
	"strings"

	"medical-intake-agent/internal/consultation"
)

// Section order is fixed: headings are numbered 1 to 6 in this order.
const (
	sectionExecutiveSummary = iota
	sectionSymptomAnalysis
	sectionRiskAssessment
	sectionHearingSummary
	sectionRecommendations
	sectionFollowUp
	sectionCount
)

// sectionTitles are the headings the provider is asked to use.
var sectionTitles = [sectionCount]string{
	"Executive Summary",
	"Symptom Analysis",
	"Risk Assessment",
	"Hearing Assessment Summary",
	"Recommendations",
	"Follow-up Actions",
}

// sectionKeywords recognise a heading by its title. Longer phrases come first.
var sectionKeywords = [sectionCount][]string{
	{"executive summary", "summary", "overview"},
	{"symptom analysis", "symptoms", "symptom"},
	{"risk assessment", "risk factors", "risks"},
	{"hearing assessment summary", "hearing assessment", "hearing summary", "hearing"},
	{"recommendations", "recommendation"},
	{"follow-up actions", "follow up actions", "follow-up", "follow up"},
}

var numberedMarker = regexp.MustCompile(`^([1-6])[.)]\s*(.*)$`)

// ParseSections splits free report prose into the six named sections and
// reports how many distinct headings were recognised. Text before the first
// heading belongs to the executive summary, so a reply without any heading
// lands there whole and the other sections stay empty.
func ParseSections(text string) (consultation.ReportSections, int) {
	var (
		parts   [sectionCount][]string
		seen    [sectionCount]bool
		current = sectionExecutiveSummary
		last    = -1
		found   = 0
	)

	for _, line := range strings.Split(text, "\n") {
		if idx, rest, ok := matchHeading(line, last); ok {
			current, last = idx, max(last, idx)
			if !seen[idx] {
				seen[idx] = true
				found++
			}
			if rest == "" {
				continue
			}
			line = rest
		}
		parts[current] = append(parts[current], strings.TrimRight(line, " \t\r"))
	}

	join := func(i int) string {
		return strings.TrimSpace(strings.Join(parts[i], "\n"))
	}
	return consultation.ReportSections{
		ExecutiveSummary: join(sectionExecutiveSummary),
		SymptomAnalysis:  join(sectionSymptomAnalysis),
		RiskAssessment:   join(sectionRiskAssessment),
		HearingSummary:   join(sectionHearingSummary),
		Recommendations:  join(sectionRecommendations),
		FollowUpActions:  join(sectionFollowUp),
	}, found
}

// matchHeading reports whether line opens a section and returns the content
// the line still carries. Only an exact heading title is consumed: a line
// that merely starts with a section keyword keeps its full text as content.
// Numbered lines must name their section exactly and carry its number, and a
// numbered line with an unknown title only counts when it moves forward past
// last. Numbered lists inside a section therefore never split it. Plain
// lines must consist of the heading alone; markdown-styled lines may also
// open a section by prefix.
func matchHeading(line string, last int) (int, string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return 0, "", false
	}
	styled := strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "**")
	s := strings.TrimLeft(trimmed, "#*_ ")

	num := 0
	if m := numberedMarker.FindStringSubmatch(s); m != nil {
		num = int(m[1][0] - '0')
		s = m[2]
	}

	title, rest := splitTitle(s)
	title = strings.ToLower(strings.Trim(title, "*_ :"))
	rest = strings.TrimSpace(strings.TrimLeft(rest, "*_ "))
	if title == "" {
		return 0, "", false
	}

	idx, exact := keywordSection(title)
	switch {
	case idx < 0:
		if num > 0 && num-1 > last && rest == "" && looksLikeTitle(title) {
			return num - 1, "", true
		}
		return 0, "", false
	case num > 0:
		if !exact || num-1 != idx {
			return 0, "", false
		}
	case !styled:
		if !exact || rest != "" {
			return 0, "", false
		}
	}

	if !exact {
		return idx, trimmed, true
	}
	return idx, rest, true
}

// splitTitle cuts s at the first colon or spaced dash.
func splitTitle(s string) (string, string) {
	cut := -1
	width := 0
	if i := strings.Index(s, ":"); i >= 0 {
		cut, width = i, 1
	}
	if i := strings.Index(s, " - "); i >= 0 && (cut < 0 || i < cut) {
		cut, width = i, 3
	}
	if cut < 0 {
		return s, ""
	}
	return s[:cut], s[cut+width:]
}

// keywordSection finds the section whose keyword equals title or starts it.
// exact is false for a prefix match.
func keywordSection(title string) (idx int, exact bool) {
	idx = -1
	for i, keywords := range sectionKeywords {
		for _, kw := range keywords {
			if title == kw {
				return i, true
			}
			if idx < 0 && strings.HasPrefix(title, kw+" ") {
				idx = i
			}
		}
	}
	return idx, false
}

func looksLikeTitle(title string) bool {
	return len(strings.Fields(title)) <= 5 && !strings.HasSuffix(title, ".")
}
