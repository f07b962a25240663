// Package analyzer classifies arbitrary JSON payloads into numeric metrics
// and low-cardinality tags. It is pure and stateless; callers hand it decoded
// values and receive path-addressed classifications back.
package analyzer

import (
	"bytes"
	"encoding/json"
	"strings"
)

// maxTagLength is the cutoff above which string values are treated as free
// text and ignored, to avoid cardinality-explosive tags.
const maxTagLength = 80

// maxNestingDepth is the depth at which a payload is considered deeply nested
// and flagged for structured extraction downstream.
const maxNestingDepth = 5

// Metric is a numeric, time-series-worthy field found in a response
type Metric struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Type string `json:"type"` // "int" or "float"
}

// Tag is a short string-valued categorical field found in a response
type Tag struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Decode parses a JSON document preserving the distinction between integer
// and fractional numbers, which encoding/json's default float64 decoding
// would lose.
func Decode(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Analyze recursively walks a decoded JSON value and classifies every leaf
// into exactly one of metric, tag, or ignored. The prefix is the dot/bracket
// path from the root, empty at the top level.
//
// Numeric leaves become metrics; strings shorter than maxTagLength become
// tags; long strings, booleans, and nulls are ignored. Non-empty arrays are
// sampled at their first element only, under a "[*]" path suffix.
func Analyze(v interface{}, prefix string) ([]Metric, []Tag) {
	var metrics []Metric
	var tags []Tag

	switch value := v.(type) {
	case map[string]interface{}:
		for key, child := range value {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}

			switch leaf := child.(type) {
			case json.Number:
				metrics = append(metrics, Metric{
					Path: path,
					Name: flatten(path),
					Type: numberType(leaf),
				})
			case float64:
				// Values decoded without UseNumber land here.
				metrics = append(metrics, Metric{
					Path: path,
					Name: flatten(path),
					Type: floatType(leaf),
				})
			case string:
				if len(leaf) < maxTagLength {
					tags = append(tags, Tag{Path: path, Name: flatten(path)})
				}
			case map[string]interface{}, []interface{}:
				childMetrics, childTags := Analyze(child, path)
				metrics = append(metrics, childMetrics...)
				tags = append(tags, childTags...)
			}
			// bool and nil leaves are ignored
		}

	case []interface{}:
		if len(value) > 0 {
			// Arrays are treated as structurally uniform; sample the first
			// element only.
			metrics, tags = Analyze(value[0], prefix+"[*]")
		}
	}

	return metrics, tags
}

// DeeplyNested reports whether any branch of the value reaches
// maxNestingDepth container levels before bottoming out. Empty containers
// never count toward depth. The result only gates structured-extraction
// hints; it does not change classification.
func DeeplyNested(v interface{}) bool {
	return exceedsDepth(v, 0)
}

func exceedsDepth(v interface{}, depth int) bool {
	switch value := v.(type) {
	case map[string]interface{}:
		if len(value) == 0 {
			return false
		}
		if depth >= maxNestingDepth {
			return true
		}
		for _, child := range value {
			if exceedsDepth(child, depth+1) {
				return true
			}
		}
		return false
	case []interface{}:
		if len(value) == 0 {
			return false
		}
		if depth >= maxNestingDepth {
			return true
		}
		return exceedsDepth(value[0], depth+1)
	default:
		return depth >= maxNestingDepth
	}
}

// flatten turns a dot-separated path into a metric/tag name
func flatten(path string) string {
	return strings.ReplaceAll(path, ".", "_")
}

// numberType distinguishes fractional from integral JSON numbers by their
// source representation
func numberType(n json.Number) string {
	if strings.ContainsAny(n.String(), ".eE") {
		return "float"
	}
	return "int"
}

func floatType(f float64) string {
	if f == float64(int64(f)) {
		return "int"
	}
	return "float"
}
