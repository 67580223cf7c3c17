package content

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxQuestions caps every generated question list.
const MaxQuestions = 10

var (
	numberingRe     = regexp.MustCompile(`^\d+[.)]\s*`)
	numberedQRe     = regexp.MustCompile(`\d+[.)]\s*([^?\n]+[?])`)
	jsonObjectRe    = regexp.MustCompile(`\{[\s\S]*\}`)
	errNoJSONObject = errors.New("no JSON object in response")
)

// parseQuestions pulls question lines out of free-form model output.
// Three passes, each only tried when the previous produced nothing:
// numbered lines ending in "?", inline "<n>. ...?" fragments, and finally a
// plain split on "?".
func parseQuestions(text string) []string {
	var questions []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cleaned := strings.TrimSpace(numberingRe.ReplaceAllString(line, ""))
		if utf8.RuneCountInString(cleaned) > 20 && strings.HasSuffix(cleaned, "?") {
			questions = append(questions, cleaned)
		}
	}

	if len(questions) == 0 {
		for _, m := range numberedQRe.FindAllString(text, -1) {
			questions = append(questions, strings.TrimSpace(numberingRe.ReplaceAllString(m, "")))
		}
	}

	if len(questions) == 0 {
		var parts []string
		for _, p := range strings.Split(text, "?") {
			if utf8.RuneCountInString(strings.TrimSpace(p)) > 20 {
				parts = append(parts, strings.TrimSpace(p)+"?")
			}
		}
		questions = parts
	}

	if len(questions) > MaxQuestions {
		questions = questions[:MaxQuestions]
	}
	return questions
}

// stripFences removes a surrounding markdown code fence.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}

// decodeObject finds the outermost {...} block in raw and decodes it.
func decodeObject(raw string) (map[string]any, error) {
	block := jsonObjectRe.FindString(stripFences(raw))
	if block == "" {
		return nil, errNoJSONObject
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(block), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// field returns the first present key, so both camelCase and snake_case
// spellings from the model are accepted.
func field(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// coerceStrings accepts a JSON array and keeps its non-empty string forms.
// Anything that is not an array yields nil.
func coerceStrings(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s := coerceString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// numberOr reads a numeric field, substituting def when missing or not a
// number, and clamps the result into [lo, hi].
func numberOr(m map[string]any, def, lo, hi float64, keys ...string) float64 {
	f := def
	if v, ok := field(m, keys...); ok {
		if n := coerceFloat(v); !math.IsNaN(n) && !math.IsInf(n, 0) {
			f = n
		}
	}
	return clamp(f, lo, hi)
}

func stringOr(m map[string]any, def string, keys ...string) string {
	if v, ok := field(m, keys...); ok {
		if s := coerceString(v); s != "" {
			return s
		}
	}
	return def
}

func stringsOf(m map[string]any, keys ...string) []string {
	v, _ := field(m, keys...)
	if out := coerceStrings(v); out != nil {
		return out
	}
	return []string{}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
