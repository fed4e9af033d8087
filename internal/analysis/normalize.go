package analysis

import (
	"encoding/json"
	"strings"
)

// NoAnalysisMessage is returned when a successful response carries no text.
const NoAnalysisMessage = "No analysis could be generated for this video."

type fields map[string]json.RawMessage

// extractor pulls a candidate string out of one known response shape.
type extractor struct {
	shape   string
	extract func(fields) string
}

// extractors are tried in order; the first non-empty result wins.
var extractors = []extractor{
	{shape: "data", extract: topLevelString("data")},
	{shape: "data.generated_text", extract: nestedString("data", "generated_text")},
	{shape: "data.text", extract: nestedString("data", "text")},
	{shape: "summary", extract: topLevelString("summary")},
}

// Normalize returns the analysis text from a provider success body, or
// NoAnalysisMessage. It never fails.
func Normalize(raw []byte) string {
	text, _ := normalize(raw)
	return text
}

// normalize also reports which shape matched, "" for the sentinel.
func normalize(raw []byte) (string, string) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return NoAnalysisMessage, ""
	}
	for _, e := range extractors {
		if s := strings.TrimSpace(e.extract(f)); s != "" {
			return s, e.shape
		}
	}
	return NoAnalysisMessage, ""
}

func topLevelString(key string) func(fields) string {
	return func(f fields) string {
		return asString(f[key])
	}
}

func nestedString(key, inner string) func(fields) string {
	return func(f fields) string {
		raw, ok := f[key]
		if !ok {
			return ""
		}
		var nested fields
		if err := json.Unmarshal(raw, &nested); err != nil {
			return ""
		}
		return asString(nested[inner])
	}
}

func asString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
