// Package toolfallback maps canonical tool names to the alternative
// names other agent CLIs may accept, and decides how the executor
// should recover from an observed tool-use error. The
// tool-name-extraction regexes live in internal/agentexec, which owns
// tag scanning over raw agent output.
package toolfallback

import "strings"

// Decision is the fallback map's recovery verdict for one tool-use error.
type Decision struct {
	Kind string // "retry_with_hint" | "skip" | "abort"
	Hint string
}

const (
	KindRetryWithHint = "retry_with_hint"
	KindSkip          = "skip"
	KindAbort         = "abort"
)

// canonicalAlternatives lists each canonical tool name's ordered
// alternatives, as other CLIs announce them.
var canonicalAlternatives = map[string][]string{
	"bash":      {"shell", "exec", "run_command", "terminal"},
	"read":      {"read_file", "cat", "view"},
	"write":     {"write_file", "create_file"},
	"edit":      {"edit_file", "str_replace", "patch"},
	"grep":      {"search", "ripgrep", "find_in_files"},
	"glob":      {"find_files", "list_files"},
	"websearch": {"web_search", "search_web"},
	"webfetch":  {"web_fetch", "fetch_url", "http_get"},
}

// canonicalOf resolves any known alternative name back to its
// canonical tool name; if name is already canonical, returns it as-is.
func canonicalOf(name string) (string, bool) {
	lower := strings.ToLower(name)
	if _, ok := canonicalAlternatives[lower]; ok {
		return lower, true
	}
	for canonical, alts := range canonicalAlternatives {
		for _, a := range alts {
			if strings.EqualFold(a, lower) {
				return canonical, true
			}
		}
	}
	return "", false
}

// Resolve looks up an alternative for toolName that appears in
// announcedTools, and returns the recovery decision: RetryWithHint
// with the first matching alternative and a human-readable hint, or
// Skip when no known alternative is available. Abort is never
// produced automatically; it is reserved for callers.
func Resolve(toolName string, announcedTools []string) Decision {
	canonical, ok := canonicalOf(toolName)
	if !ok {
		return Decision{Kind: KindSkip}
	}

	announced := make(map[string]bool, len(announcedTools))
	for _, t := range announcedTools {
		announced[strings.ToLower(t)] = true
	}

	// The canonical spelling itself counts as an alternative: a
	// different CLI may simply announce the same tool under a
	// different case (e.g. "bash" vs. the error's "Bash").
	candidates := append([]string{canonical}, canonicalAlternatives[canonical]...)
	for _, alt := range candidates {
		if announced[strings.ToLower(alt)] {
			return Decision{
				Kind: KindRetryWithHint,
				Hint: "The tool '" + toolName + "' is not available. Use '" + alt + "' instead.",
			}
		}
	}
	return Decision{Kind: KindSkip}
}
