package guardrail

import (
	"regexp"
	"sort"
	"strings"
)

// Supported PII entity identifiers for Policy.PIIActions.
const (
	PIIEmail      = "email"
	PIIPhone      = "phone"
	PIISSN        = "ssn"
	PIICreditCard = "credit_card"
	PIIIPAddress  = "ip_address"
)

// span marks a detected entity occurrence in the evaluated text.
type span struct {
	entity string
	start  int
	end    int
}

// piiDetector pairs an entity identifier with its compiled pattern.
type piiDetector struct {
	entity string
	re     *regexp.Regexp
}

// Patterns intentionally favor precision over recall; a production deployment
// would call out to a dedicated PII service behind the same action table.
var builtinDetectors = []piiDetector{
	{PIIEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{PIIPhone, regexp.MustCompile(`\+?\d{1,3}[\s\-.]?\(?\d{2,4}\)?[\s\-.]?\d{3,4}[\s\-.]?\d{3,4}`)},
	{PIISSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{PIICreditCard, regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`)},
	{PIIIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

// detectPII returns all entity spans found in text for the entities named in
// the action table, ordered by start offset.
func detectPII(text string, actions []PIIAction) []span {
	wanted := map[string]bool{}
	for _, a := range actions {
		wanted[a.Entity] = true
	}

	var spans []span
	for _, d := range builtinDetectors {
		if !wanted[d.entity] {
			continue
		}
		for _, loc := range d.re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{entity: d.entity, start: loc[0], end: loc[1]})
		}
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	return spans
}

// anonymizeSpans rewrites the given spans with {ENTITY} placeholder tokens.
// Spans are applied back-to-front so earlier offsets stay valid; overlapping
// spans collapse into the first (longest) placeholder.
func anonymizeSpans(text string, spans []span) string {
	// Drop spans fully contained in an earlier one.
	kept := spans[:0:0]
	lastEnd := -1
	for _, s := range spans {
		if s.start < lastEnd {
			continue
		}
		kept = append(kept, s)
		lastEnd = s.end
	}

	var b strings.Builder
	prev := 0
	for _, s := range kept {
		b.WriteString(text[prev:s.start])
		b.WriteString("{" + strings.ToUpper(s.entity) + "}")
		prev = s.end
	}
	b.WriteString(text[prev:])

	return b.String()
}
