// Package plan extracts structured action plans from free-form oracle
// text and detects the dialogue control markers.
package plan

import (
	"encoding/json"
	"strings"
)

// CompletionMarker is the literal token an oracle emits to signal
// "adopt my extracted plan now".
const CompletionMarker = "EXECUTE"

// agreementPhrase signals approval of a proposed plan (case-insensitive).
const agreementPhrase = "i agree"

// Plan maps an agent identifier to one action string for the step.
type Plan map[string]string

// HasCompletionMarker reports whether raw oracle text carries the
// completion marker anywhere.
func HasCompletionMarker(raw string) bool {
	return strings.Contains(raw, CompletionMarker)
}

// HasAgreement reports whether raw oracle text expresses agreement.
func HasAgreement(raw string) bool {
	return strings.Contains(strings.ToLower(raw), agreementPhrase)
}

// Extract scans raw text for balanced-brace fragments and returns the
// first one that parses as a string-to-string mapping. Extraction is
// best-effort by design: when no fragment qualifies the result is an
// empty plan, never an error.
func Extract(raw string) Plan {
	for start := 0; start < len(raw); start++ {
		if raw[start] != '{' {
			continue
		}
		end, ok := matchBrace(raw, start)
		if !ok {
			continue
		}
		if p, ok := decodeFragment(raw[start : end+1]); ok {
			return p
		}
	}
	return Plan{}
}

// matchBrace finds the index of the brace closing the one at start.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// decodeFragment tries to decode a brace fragment as agent -> action
// text. Models occasionally emit single-quoted pseudo-JSON, so a
// normalized second pass is attempted before giving up.
func decodeFragment(frag string) (Plan, bool) {
	var p Plan
	if err := json.Unmarshal([]byte(frag), &p); err == nil {
		return p, true
	}
	if err := json.Unmarshal([]byte(normalizeQuotes(frag)), &p); err == nil {
		return p, true
	}
	return nil, false
}

// normalizeQuotes rewrites single-quote string delimiters to double
// quotes. Only delimiters are swapped: a quote inside a string closes
// it only when the next non-space byte is a JSON separator, so
// apostrophes in values survive.
func normalizeQuotes(frag string) string {
	var b strings.Builder
	b.Grow(len(frag))
	inString := false
	for i := 0; i < len(frag); i++ {
		c := frag[i]
		if c != '\'' {
			b.WriteByte(c)
			continue
		}
		if !inString {
			b.WriteByte('"')
			inString = true
			continue
		}
		j := i + 1
		for j < len(frag) && (frag[j] == ' ' || frag[j] == '\t' || frag[j] == '\n') {
			j++
		}
		if j == len(frag) || frag[j] == ':' || frag[j] == ',' || frag[j] == '}' {
			b.WriteByte('"')
			inString = false
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}
