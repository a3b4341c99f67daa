package tools

import (
	"fmt"
	"strings"
)

// forbiddenPromptChars is the blocklist applied to any prompt headed for an
// unsandboxed shell-bound tool: shell metacharacters plus the control bytes
// that could smuggle a second command or truncate the one being built.
const forbiddenPromptChars = "|&;$`\"'<>(){}[]*~#"

// ValidatePrompt returns a non-nil error iff prompt contains a forbidden
// character or control byte. No built-in tool shells out, so nothing calls
// this automatically; it is exposed for any future tool that does.
func ValidatePrompt(prompt string) error {
	for _, r := range prompt {
		switch r {
		case '\n', '\r', '\t', 0:
			return fmt.Errorf("invalid prompt: contains forbidden control byte %q", r)
		}
		if strings.ContainsRune(forbiddenPromptChars, r) {
			return fmt.Errorf("invalid prompt: contains forbidden character %q", r)
		}
	}
	return nil
}
