package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// parseState classifies how a model response was parsed.
type parseState int

const (
	parseOK parseState = iota
	parseRepaired
	parseFailed
)

var (
	codeFenceRe    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	unquotedKeyRe  = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	trailingComma  = regexp.MustCompile(`,(\s*[}\]])`)
	doubledBraceRe = regexp.MustCompile(`\}\s*\{`)
)

// parseExtraction parses a model response into a rawExtraction, attempting
// mechanical repair when direct parsing fails. Returns the state so callers
// can count repairs.
func parseExtraction(response string) (*rawExtraction, parseState) {
	candidate := extractJSONObject(response)
	if candidate == "" {
		return nil, parseFailed
	}

	var out rawExtraction
	if err := json.Unmarshal([]byte(candidate), &out); err == nil {
		return &out, parseOK
	}

	repaired := repairJSON(candidate)
	if err := json.Unmarshal([]byte(repaired), &out); err == nil {
		return &out, parseRepaired
	}
	return nil, parseFailed
}

// extractJSONObject pulls the outermost {...} from a response, stripping
// code fences and leading prose.
func extractJSONObject(s string) string {
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end > start {
		return s[start : end+1]
	}
	// Truncated output with no closing brace; repair will balance it.
	return s[start:]
}

// repairJSON applies mechanical fixes for the malformed-JSON patterns local
// models produce: unquoted keys, trailing commas, doubled braces between
// array elements, and unbalanced closers on truncated output.
func repairJSON(s string) string {
	s = strings.TrimSpace(s)
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	s = trailingComma.ReplaceAllString(s, "$1")
	s = doubledBraceRe.ReplaceAllString(s, "},{")
	s = quoteBareValues(s)
	s = balanceBrackets(s)
	return s
}

// quoteBareValues wraps unquoted string values in quotes. Numbers, booleans
// and null are left alone.
func quoteBareValues(s string) string {
	var out strings.Builder
	inString := false
	escaped := false
	i := 0
	for i < len(s) {
		c := s[i]
		if inString {
			out.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			i++
			continue
		}
		if c == '"' {
			inString = true
			out.WriteByte(c)
			i++
			continue
		}
		if c == ':' {
			out.WriteByte(c)
			i++
			// Skip whitespace after the colon.
			for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
				out.WriteByte(s[i])
				i++
			}
			if i < len(s) && isBareValueStart(s[i]) {
				j := i
				for j < len(s) && s[j] != ',' && s[j] != '}' && s[j] != ']' && s[j] != '\n' {
					j++
				}
				val := strings.TrimSpace(s[i:j])
				if !isJSONLiteral(val) {
					out.WriteByte('"')
					out.WriteString(strings.ReplaceAll(val, `"`, `\"`))
					out.WriteByte('"')
					i = j
					continue
				}
			}
			continue
		}
		out.WriteByte(c)
		i++
	}
	return out.String()
}

func isBareValueStart(c byte) bool {
	switch c {
	case '"', '{', '[', '}', ']', ',':
		return false
	}
	return true
}

func isJSONLiteral(v string) bool {
	if v == "true" || v == "false" || v == "null" || v == "" {
		return true
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if (c < '0' || c > '9') && c != '.' && c != '-' && c != '+' && c != 'e' && c != 'E' {
			return false
		}
	}
	return true
}

// balanceBrackets appends missing closers for truncated output.
func balanceBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
