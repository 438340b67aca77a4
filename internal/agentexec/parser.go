package agentexec

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParseLine emits exactly one structured event or none for a single
// line of agent output:
//   - a leading '{' attempts a JSON object with a string "event" field;
//   - a leading "[PROGRESS]" yields a progress event;
//   - a leading "[ERROR]" yields an error event;
//   - anything else yields nothing.
func ParseLine(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Event{}, false
	}

	switch {
	case strings.HasPrefix(trimmed, "{"):
		var raw struct {
			Event   string `json:"event"`
			Message string `json:"message"`
			Data    any    `json:"data"`
		}
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil || raw.Event == "" {
			return Event{}, false
		}
		return Event{EventType: raw.Event, Message: raw.Message, Data: raw.Data}, true
	case strings.HasPrefix(trimmed, "[PROGRESS]"):
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "[PROGRESS]"))
		return Event{EventType: "progress", Message: rest}, true
	case strings.HasPrefix(trimmed, "[ERROR]"):
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "[ERROR]"))
		return Event{EventType: "error", Message: rest}, true
	default:
		return Event{}, false
	}
}

// toolUseErrorSpan matches a single complete <tool_use_error>...</tool_use_error>
// span; unclosed tags never match and are silently ignored.
var toolUseErrorSpan = regexp.MustCompile(`(?s)<tool_use_error>(.*?)</tool_use_error>`)

// toolNamePatterns extracts a candidate tool name from an error
// message, in priority order. When none match, the whole trimmed
// message is returned as a best-effort fallback (downstream
// question: downstream consumers already treat unknown names as Skip).
var toolNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`No such tool available:\s*(\S+)`),
	regexp.MustCompile(`Tool\s+"([^"]+)"\s+is not available`),
	regexp.MustCompile(`Unknown tool:\s*(\S+)`),
}

// ExtractToolName applies the three recognized patterns to an error
// message, falling back to the trimmed whole message.
func ExtractToolName(message string) string {
	trimmed := strings.TrimSpace(message)
	for _, re := range toolNamePatterns {
		if m := re.FindStringSubmatch(trimmed); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return trimmed
}

// ParseToolUseErrors scans the full accumulated output for
// <tool_use_error>...</tool_use_error> spans and records one
// ToolUseError per span, deriving a candidate tool name from each.
func ParseToolUseErrors(output string) []ToolUseError {
	var errs []ToolUseError
	for _, m := range toolUseErrorSpan.FindAllStringSubmatch(output, -1) {
		inner := strings.TrimSpace(m[1])
		errs = append(errs, ToolUseError{
			ToolName:     ExtractToolName(inner),
			ErrorMessage: inner,
			Raw:          m[0],
		})
	}
	return errs
}
