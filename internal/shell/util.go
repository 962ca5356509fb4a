package shell

import "strings"

// EscapedString quotes s for use as a single shell word.
func EscapedString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// IsValidOutput reports whether out holds at least one non-blank line.
func IsValidOutput(out []string) bool {
	for _, line := range out {
		if strings.TrimSpace(line) != "" {
			return true
		}
	}
	return false
}

// FastCmd runs cmds and returns the last line of stdout, or "" if there was
// no output.
func FastCmd(s *Session, cmds ...string) string {
	out := s.NewJob().Add(cmds...).Exec().Out()
	if !IsValidOutput(out) {
		return ""
	}
	return out[len(out)-1]
}

// FastCmdResult runs cmds and reports whether the last one exited 0.
func FastCmdResult(s *Session, cmds ...string) bool {
	return s.NewJob().Add(cmds...).To(nil).Exec().IsSuccess()
}
