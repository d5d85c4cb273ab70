package runner

import (
	"fmt"
	"strings"

	"github.com/neboloop/architect/internal/agent/session"
)

// MaxEscalationRounds bounds how many evidence-augmented turns follow an
// uncertain reply.
const MaxEscalationRounds = 1

// hedgePhrases mark a reply as uncertain. Matched against the lower-cased reply.
var hedgePhrases = []string{
	"i'm not sure",
	"i am not sure",
	"not sure",
	"don't know",
	"do not know",
	"unable to",
	"cannot",
	"can't help",
	"не уверен",
	"не могу",
	"не удалось",
	"не нашел",
	"не нашёл",
}

// IsUncertain reports whether reply is blank or hedges
func IsUncertain(reply string) bool {
	text := strings.ToLower(strings.TrimSpace(reply))
	if text == "" {
		return true
	}
	for _, p := range hedgePhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// BuildEscalationTurn returns a copy of conv extended with the search
// evidence and an instruction to finish the answer from it.
func BuildEscalationTurn(conv *session.Conversation, query, evidence string) *session.Conversation {
	next := conv.Clone()
	next.Append(
		session.AssistantMessage(fmt.Sprintf("Web search results for \"%s\":\n%s", query, evidence)),
		session.UserMessage("Use the sources above to finish the answer. List the links you relied on."),
	)
	return next
}
