package gateway

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// NormalizeReply applies the brace-bounded extraction rule used for both
// live replies and history replay: take the substring from the first '{'
// to the last '}' inclusive and parse it as JSON. If the raw string has
// no braces, or the extracted substring fails to parse, the whole raw
// reply is returned as literal text.
//
// Stored raw text is always the pre-extraction reply, so running the
// same raw string through this function live and on replay yields
// identical renderings.
func NormalizeReply(raw string) any {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return raw
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		slog.Warn("Reply looked structured but failed to parse, falling back to literal text", "error", err)
		return raw
	}
	return parsed
}
