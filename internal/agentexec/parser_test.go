package agentexec

import "testing"

func TestParseLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantEvent bool
		wantType  string
		wantMsg   string
	}{
		{"whitespace only", "   ", false, "", ""},
		{"empty", "", false, "", ""},
		{"json event", `{"event":"tool_call","message":"Reading file","data":{"file":"src/main.rs"}}`, true, "tool_call", "Reading file"},
		{"progress marker", "[PROGRESS] 50% complete", true, "progress", "50% complete"},
		{"error marker", "[ERROR] something broke", true, "error", "something broke"},
		{"plain text", "some normal output", false, "", ""},
		{"malformed json", `{not valid json`, false, "", ""},
		{"json without event field", `{"message":"no event key"}`, false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := ParseLine(tt.line)
			if ok != tt.wantEvent {
				t.Fatalf("ParseLine(%q) ok = %v, want %v", tt.line, ok, tt.wantEvent)
			}
			if !ok {
				return
			}
			if ev.EventType != tt.wantType {
				t.Errorf("EventType = %q, want %q", ev.EventType, tt.wantType)
			}
			if ev.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", ev.Message, tt.wantMsg)
			}
		})
	}
}

func TestExtractToolName(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"No such tool available: Bash", "Bash"},
		{`Tool "Read" is not available`, "Read"},
		{"Unknown tool: Glob", "Glob"},
		{"something else entirely went wrong", "something else entirely went wrong"},
	}
	for _, tt := range tests {
		if got := ExtractToolName(tt.message); got != tt.want {
			t.Errorf("ExtractToolName(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestParseToolUseErrors(t *testing.T) {
	output := "prefix text\n<tool_use_error>Error: No such tool available: Bash</tool_use_error>\nmore text\n"
	errs := ParseToolUseErrors(output)
	if len(errs) != 1 {
		t.Fatalf("len(errs) = %d, want 1", len(errs))
	}
	if errs[0].ToolName != "Bash" {
		t.Errorf("ToolName = %q, want Bash", errs[0].ToolName)
	}
}

func TestParseToolUseErrors_Unclosed(t *testing.T) {
	output := "<tool_use_error>Error: No such tool available: Bash"
	errs := ParseToolUseErrors(output)
	if len(errs) != 0 {
		t.Fatalf("len(errs) = %d, want 0 for unclosed tag", len(errs))
	}
}

func TestParseToolUseErrors_Multiple(t *testing.T) {
	output := `<tool_use_error>Unknown tool: Foo</tool_use_error> and <tool_use_error>Tool "Bar" is not available</tool_use_error>`
	errs := ParseToolUseErrors(output)
	if len(errs) != 2 {
		t.Fatalf("len(errs) = %d, want 2", len(errs))
	}
	if errs[0].ToolName != "Foo" || errs[1].ToolName != "Bar" {
		t.Errorf("unexpected tool names: %+v", errs)
	}
}
