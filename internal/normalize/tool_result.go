package normalize

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	errMissingMessageID  = errors.New("chunk envelope missing message id")
	errMissingToolFields = errors.New("tool_call missing id or name")
	errMissingCallID     = errors.New("tool_result missing tool_use_id")
)

// Names of the historical tool-result encodings, recorded on the parsed
// payload for observability.
const (
	EncodingBlockArray  = "block-array"
	EncodingJSONString  = "json-string"
	EncodingPlainString = "plain-string"
)

type parsedResult struct {
	success  bool
	result   any
	errText  string
	encoding string
}

// parseToolResult resolves the three historical encodings of a tool
// result payload, in fixed priority order:
//
//  1. nested content-block array: [{"type":"text","text":...}, ...]
//  2. JSON-encoded string: a string whose contents parse as JSON
//  3. plain string
//
// An explicit is_error flag wins over anything discovered in the
// payload. When no flag is discoverable the result defaults to success.
func parseToolResult(raw json.RawMessage, isError *bool) parsedResult {
	parsed := decodeResult(raw)
	if isError != nil {
		parsed.success = !*isError
		if !parsed.success && parsed.errText == "" {
			parsed.errText = resultText(parsed.result)
		}
	}
	return parsed
}

func decodeResult(raw json.RawMessage) parsedResult {
	if len(raw) == 0 {
		return parsedResult{success: true, encoding: EncodingPlainString}
	}

	var blocks []map[string]any
	if err := json.Unmarshal(raw, &blocks); err == nil {
		texts := make([]string, 0, len(blocks))
		for _, block := range blocks {
			if text, ok := block["text"].(string); ok && text != "" {
				texts = append(texts, text)
			}
		}
		return parsedResult{
			success:  true,
			result:   strings.Join(texts, "\n"),
			encoding: EncodingBlockArray,
		}
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		var embedded any
		if json.Unmarshal([]byte(str), &embedded) == nil {
			if obj, ok := embedded.(map[string]any); ok {
				parsed := parsedResult{success: true, result: embedded, encoding: EncodingJSONString}
				applyEmbeddedFlags(&parsed, obj)
				return parsed
			}
			// Scalars round-trip through JSON (e.g. "42"); they carry no
			// flags and keep the decoded value.
			if embedded != nil {
				return parsedResult{success: true, result: embedded, encoding: EncodingJSONString}
			}
		}
		return parsedResult{success: true, result: str, encoding: EncodingPlainString}
	}

	// Some writers stored the object unquoted.
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		parsed := parsedResult{success: true, result: obj, encoding: EncodingJSONString}
		applyEmbeddedFlags(&parsed, obj)
		return parsed
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err == nil {
		return parsedResult{success: true, result: generic, encoding: EncodingJSONString}
	}
	return parsedResult{success: true, result: string(raw), encoding: EncodingPlainString}
}

func applyEmbeddedFlags(parsed *parsedResult, obj map[string]any) {
	if obj == nil {
		return
	}
	if success, ok := obj["success"].(bool); ok {
		parsed.success = success
	}
	if isError, ok := obj["is_error"].(bool); ok && isError {
		parsed.success = false
	}
	if errText, ok := obj["error"].(string); ok && errText != "" {
		parsed.success = false
		parsed.errText = errText
	}
}

func resultText(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
