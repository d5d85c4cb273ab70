package tools

import (
	"fmt"
	"strings"
)

// DefaultAllowlist is the set of commands run_command accepts when the config
// does not override it. An entry is a binary name, or a binary and its first
// argument.
var DefaultAllowlist = []string{
	"./gradlew", "gradle", "adb", "make", "mvn",
	"git status", "git diff", "git log", "git show", "git branch",
	"go test", "go build", "go vet", "npm test",
	"ls", "pwd", "cat", "head", "tail", "grep", "wc",
}

// shellOperators are rejected outside quotes. Commands are executed without
// a shell, so these would otherwise reach the program as literal arguments.
const shellOperators = ";&|$`<>()\\\n\r"

// Policy decides which commands the agent may run unattended
type Policy struct {
	Allowlist []string
	allowed   map[string]bool
}

// NewPolicy creates a policy. An empty allowlist falls back to
// DefaultAllowlist.
func NewPolicy(allowlist []string) *Policy {
	if len(allowlist) == 0 {
		allowlist = DefaultAllowlist
	}
	p := &Policy{allowed: make(map[string]bool, len(allowlist))}
	for _, entry := range allowlist {
		entry = strings.Join(strings.Fields(entry), " ")
		if entry == "" {
			continue
		}
		p.Allowlist = append(p.Allowlist, entry)
		p.allowed[entry] = true
	}
	return p
}

// Check returns nil when cmd is a single allowlisted command
func (p *Policy) Check(cmd string) error {
	_, err := p.Parse(cmd)
	return err
}

// Parse splits cmd into argv and checks it against the policy. The binary,
// or the binary and its first argument, must match an allowlist entry
// exactly.
func (p *Policy) Parse(cmd string) ([]string, error) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return nil, fmt.Errorf("empty command")
	}
	if IsDangerous(cmd) {
		return nil, fmt.Errorf("command %q is blocked as destructive", cmd)
	}
	argv, err := splitCommand(cmd)
	if err != nil {
		return nil, err
	}
	if p.isAllowed(argv) {
		return argv, nil
	}
	return nil, fmt.Errorf("command %q is not allowed by policy (allowed: %s)",
		cmd, strings.Join(p.Allowlist, ", "))
}

func (p *Policy) isAllowed(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	if p.allowed[argv[0]] {
		return true
	}
	return len(argv) > 1 && p.allowed[argv[0]+" "+argv[1]]
}

// splitCommand tokenizes a command line on whitespace. Single and double
// quotes group words and are removed; nothing inside them is expanded.
func splitCommand(line string) ([]string, error) {
	var (
		argv   []string
		cur    strings.Builder
		inWord bool
		quote  rune
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				argv = append(argv, cur.String())
				cur.Reset()
				inWord = false
			}
		case strings.ContainsRune(shellOperators, r):
			return nil, fmt.Errorf("shell operator %q is not allowed; run one command at a time", r)
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if inWord {
		argv = append(argv, cur.String())
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return argv, nil
}

// IsDangerous checks if a command appears dangerous
func IsDangerous(cmd string) bool {
	dangerous := []string{
		"rm -rf /", "rm -rf ~", "rm -rf *",
		"sudo ", "su ",
		"chmod 777", "chown ",
		"dd if=", "mkfs",
		"> /dev/", ">/dev/",
		"curl | sh", "curl | bash", "wget | sh",
		":(){ :|:& };:",
		"git push --force", "git push -f",
	}

	cmdLower := strings.ToLower(cmd)
	for _, d := range dangerous {
		if strings.Contains(cmdLower, d) {
			return true
		}
	}
	return false
}
