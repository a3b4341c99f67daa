package tools

import "testing"

func TestValidatePromptAcceptsPlainText(t *testing.T) {
	if err := ValidatePrompt("list the files in the current directory"); err != nil {
		t.Errorf("expected plain prompt to pass, got: %v", err)
	}
}

func TestValidatePromptRejectsForbiddenChars(t *testing.T) {
	cases := []string{
		"rm -rf / ; echo done",
		"echo $(whoami)",
		"echo `whoami`",
		"cat file | grep secret",
		"name && rm -rf /",
		"echo \"quoted\"",
		"echo 'quoted'",
		"a < b > c",
		"glob*",
		"home~user",
		"topic #channel",
		"array[0]",
		"{block}",
		"(group)",
	}
	for _, c := range cases {
		if err := ValidatePrompt(c); err == nil {
			t.Errorf("expected %q to be rejected", c)
		}
	}
}

func TestValidatePromptRejectsControlBytes(t *testing.T) {
	cases := []string{"line1\nline2", "a\rb", "a\tb", "a\x00b"}
	for _, c := range cases {
		if err := ValidatePrompt(c); err == nil {
			t.Errorf("expected %q to be rejected", c)
		}
	}
}
