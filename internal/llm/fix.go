package llm

import (
	"encoding/json"
	"regexp"
)

// DefaultConfidence is assumed when the model returns a fix without a
// confidence value.
const DefaultConfidence = 0.85

// FixRecord is the structured fix extracted from a model completion.
type FixRecord struct {
	Code        string   `json:"code"`
	Explanation string   `json:"explanation"`
	References  []string `json:"references"`
	Confidence  float64  `json:"confidence"`
}

// jsonObjectRe grabs the outermost JSON object embedded in prose, for models
// that wrap their answer in commentary despite being told not to.
var jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)

// ParseFix normalizes a raw completion into a FixRecord. It tries the whole
// response as JSON first, then falls back to extracting an embedded JSON
// object. When neither works, it returns a zero-confidence record whose Code
// is the original snippet, so downstream stages never apply an unparseable
// fix.
func ParseFix(raw, originalSnippet string) FixRecord {
	if fix, ok := decodeFix([]byte(raw)); ok {
		return fix
	}

	if match := jsonObjectRe.FindString(raw); match != "" {
		if fix, ok := decodeFix([]byte(match)); ok {
			return fix
		}
	}

	return SentinelFix(originalSnippet)
}

// SentinelFix is the unparseable-response fallback. Code equals the original
// snippet so applying it is a no-op by construction.
func SentinelFix(originalSnippet string) FixRecord {
	return FixRecord{
		Code:        originalSnippet,
		Explanation: "Could not generate fix",
		References:  []string{},
		Confidence:  0.0,
	}
}

func decodeFix(data []byte) (FixRecord, bool) {
	var probe struct {
		Code        string   `json:"code"`
		Explanation string   `json:"explanation"`
		References  []string `json:"references"`
		Confidence  *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return FixRecord{}, false
	}
	if probe.Code == "" {
		return FixRecord{}, false
	}

	fix := FixRecord{
		Code:        probe.Code,
		Explanation: probe.Explanation,
		References:  probe.References,
		Confidence:  DefaultConfidence,
	}
	if fix.References == nil {
		fix.References = []string{}
	}
	if probe.Confidence != nil {
		fix.Confidence = *probe.Confidence
	}
	return fix, true
}
