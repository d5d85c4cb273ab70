package orchestrator

import (
	"regexp"
	"strings"
)

var (
	fencedDiffRe = regexp.MustCompile("(?s)```diff\\s+(.*?)```")
	rawDiffRe    = regexp.MustCompile(`(?s)diff --git .*`)
)

// ExtractDiff finds a unified diff in text. A ```diff fenced block with a
// VCS header wins; otherwise everything from the first "diff --git " line
// to the end of the text is taken. ok is false when neither is present.
func ExtractDiff(text string) (diff string, ok bool) {
	for _, m := range fencedDiffRe.FindAllStringSubmatch(text, -1) {
		if hasVCSHeader(m[1]) {
			return strings.TrimSpace(m[1]), true
		}
	}

	raw := rawDiffRe.FindString(text)
	if raw == "" {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSpace(strings.TrimSuffix(raw, "```"))
	if raw == "" {
		return "", false
	}
	return raw, true
}

// hasVCSHeader reports a "diff --git " line or a "--- " line directly
// followed by a "+++ " line.
func hasVCSHeader(block string) bool {
	if strings.Contains(block, "diff --git ") {
		return true
	}
	lines := strings.Split(block, "\n")
	for i := 0; i+1 < len(lines); i++ {
		if strings.HasPrefix(lines[i], "--- ") && strings.HasPrefix(lines[i+1], "+++ ") {
			return true
		}
	}
	return false
}
