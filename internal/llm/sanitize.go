package llm

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/mvbarbosa/docetl/constants"
)

// StripToJSON trims the model answer down to the JSON object it contains.
// Models wrap output in markdown fences or add prose around it; the payload
// between the first '{' and the last '}' is what we validate.
func StripToJSON(content string) ([]byte, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	return []byte(s[start : end+1]), nil
}

// SanitizeFields repairs a decoded extraction object against the declared
// schema so near-miss output can still validate:
//   - numeric and boolean values are coerced to strings
//   - strings are whitespace-trimmed
//   - null and empty values become the not-found sentinel
//   - keys not declared by the schema are dropped
//
// Missing declared keys are left alone here; FinishExtraction backfills them
// with the not-found sentinel after validation.
func SanitizeFields(raw []byte, declared map[string]bool) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var actions []string
	for k, v := range maps.Clone(m) {
		if !declared[k] {
			delete(m, k)
			actions = append(actions, k+"(unknown)")
			continue
		}
		switch t := v.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" || strings.EqualFold(s, "null") {
				m[k] = constants.FieldNotFound
				actions = append(actions, k+"(empty)")
			} else if s != t {
				m[k] = s
				actions = append(actions, k+"(trimmed)")
			}
		case float64:
			if t == float64(int64(t)) {
				m[k] = fmt.Sprintf("%d", int64(t))
			} else {
				m[k] = fmt.Sprintf("%v", t)
			}
			actions = append(actions, k+"(number)")
		case bool:
			m[k] = fmt.Sprintf("%t", t)
			actions = append(actions, k+"(bool)")
		case nil:
			m[k] = constants.FieldNotFound
			actions = append(actions, k+"(null)")
		default:
			// nested object or array: serialize rather than lose data
			b, err := json.Marshal(t)
			if err != nil {
				delete(m, k)
				actions = append(actions, k+"(type)")
				continue
			}
			m[k] = string(b)
			actions = append(actions, k+"(flattened)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, actions, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, actions, nil
}

// DecodeFields unmarshals validated extraction JSON into the field map.
func DecodeFields(raw []byte) (map[string]string, error) {
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return out, nil
}
