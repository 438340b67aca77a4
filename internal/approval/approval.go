// Package approval implements the tool-invocation gating policy the
// agent executor consults for every "tool_call" event it parses,
// grounded on the rule-table shape of internal/security/validation.go.
package approval

import "strings"

// Policy is the gating decision for one tool invocation.
type Policy string

const (
	AutoApprove    Policy = "auto_approve"
	RequireApproval Policy = "require_approval"
	Deny           Policy = "deny"
)

// rule pairs a tool name (case-insensitive) with the policy it earns
// for a given agent role; an empty role matches any role.
type rule struct {
	tool   string
	role   string
	policy Policy
}

// defaultRules is the static rule table. More specific (role-scoped)
// rules are listed before role-agnostic fallbacks so Evaluate's
// first-match scan finds them first.
var defaultRules = []rule{
	{tool: "bash", role: "", policy: RequireApproval},
	{tool: "write", role: "", policy: RequireApproval},
	{tool: "edit", role: "", policy: RequireApproval},
	{tool: "webfetch", role: "", policy: RequireApproval},
	{tool: "websearch", role: "", policy: AutoApprove},
	{tool: "read", role: "", policy: AutoApprove},
	{tool: "grep", role: "", policy: AutoApprove},
	{tool: "glob", role: "", policy: AutoApprove},
	{tool: "bash", role: "reviewer", policy: Deny},
	{tool: "write", role: "reviewer", policy: Deny},
	{tool: "edit", role: "reviewer", policy: Deny},
}

// Table is a pure function from (tool name, agent role) to Policy,
// backed by an internal rule list. The zero value uses defaultRules.
type Table struct {
	rules []rule
}

// NewTable constructs a Table over the built-in rule set.
func NewTable() *Table {
	return &Table{rules: defaultRules}
}

// Evaluate returns the policy governing toolName for agentRole. Rules
// scoped to agentRole are checked before role-agnostic rules; an
// unrecognized tool defaults to RequireApproval (the conservative
// choice when the policy table has no opinion).
func (t *Table) Evaluate(toolName, agentRole string) Policy {
	tool := strings.ToLower(toolName)
	role := strings.ToLower(agentRole)

	for _, r := range t.rules {
		if r.role == role && strings.EqualFold(r.tool, tool) {
			return r.policy
		}
	}
	for _, r := range t.rules {
		if r.role == "" && strings.EqualFold(r.tool, tool) {
			return r.policy
		}
	}
	return RequireApproval
}
