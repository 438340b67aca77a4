package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// CommandValidator vets the commands, refs, and paths the pipeline
// passes to child processes: the git binary behind the read layer and
// the agent-CLI binaries the executor spawns.
type CommandValidator struct {
	// Binaries the pipeline is allowed to spawn
	allowedCommands map[string]bool
	// Absolute paths are only accepted under this root; empty rejects
	// all absolute paths
	workspaceRoot string
	// Pattern for valid identifiers (alphanumeric + dash/underscore)
	identifierPattern *regexp.Regexp
}

// NewCommandValidator creates a validator covering the binaries the
// pipeline legitimately spawns: git/gh for the read layer, the four
// agent-CLI families, and the build tools QA steps commonly shell to.
func NewCommandValidator() *CommandValidator {
	return &CommandValidator{
		allowedCommands: map[string]bool{
			"git":      true,
			"gh":       true,
			"claude":   true,
			"codex":    true,
			"gemini":   true,
			"opencode": true,
			"python":   true,
			"python3":  true,
			"node":     true,
			"npm":      true,
			"go":       true,
			"make":     true,
			"bash":     true,
			"sh":       true,
		},
		identifierPattern: regexp.MustCompile(`^[a-zA-Z0-9_-]+$`),
	}
}

// WithWorkspace anchors absolute-path validation to root. Returns the
// same validator for chaining at construction time.
func (v *CommandValidator) WithWorkspace(root string) *CommandValidator {
	v.workspaceRoot = root
	return v
}

// ValidateCommand checks if a command is safe to execute
func (v *CommandValidator) ValidateCommand(cmd string, args []string) error {
	cmdBase := filepath.Base(cmd)
	if !v.allowedCommands[cmdBase] {
		return fmt.Errorf("command not in allowed list: %s", cmdBase)
	}

	for _, arg := range args {
		if err := v.validateArgument(arg); err != nil {
			return fmt.Errorf("invalid argument: %w", err)
		}
	}

	return nil
}

// validateArgument checks a single argument for injection attempts
func (v *CommandValidator) validateArgument(arg string) error {
	// Shell metacharacters that could lead to injection
	dangerous := []string{
		"$(", // Command substitution
		"${", // Variable expansion
		"`",  // Command substitution
		"&&", // Command chaining
		"||", // Command chaining
		";",  // Command separator
		"|",  // Pipe
		">",  // Redirect
		"<",  // Redirect
		"&",  // Background execution
		"\n", // Newline
		"\r", // Carriage return
	}

	for _, pattern := range dangerous {
		if strings.Contains(arg, pattern) {
			return fmt.Errorf("argument contains dangerous pattern: %s", pattern)
		}
	}

	return nil
}

// ValidateGitRef validates a git reference (branch, tag, commit)
func (v *CommandValidator) ValidateGitRef(ref string) error {
	gitRefPattern := regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	if !gitRefPattern.MatchString(ref) {
		return fmt.Errorf("invalid git ref format: %s", ref)
	}
	return nil
}

// ValidatePath validates a file system path. Relative paths must not
// traverse upward; absolute paths must fall under the workspace root.
func (v *CommandValidator) ValidatePath(path string) error {
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return fmt.Errorf("path traversal detected: %s", path)
	}

	if filepath.IsAbs(path) {
		if v.workspaceRoot == "" || !strings.HasPrefix(clean, v.workspaceRoot) {
			return fmt.Errorf("absolute path outside workspace: %s", path)
		}
	}

	return nil
}

// ValidateTaskID validates a task/bead identifier (lowercase UUID, the
// form uuid.NewString produces).
func (v *CommandValidator) ValidateTaskID(id string) error {
	taskIDPattern := regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)
	if !taskIDPattern.MatchString(id) {
		return fmt.Errorf("invalid task ID format: %s", id)
	}
	return nil
}

// SanitizeForShell escapes a string for safe use in shell commands.
// Prefer validation; this is the fallback for free-form text.
func SanitizeForShell(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\"'\"'") + "'"
}
