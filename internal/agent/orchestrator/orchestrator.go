// Package orchestrator turns assistant replies into repository changes:
// extract a diff, apply it, run the tests, repair once and publish.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/neboloop/architect/internal/agent/tools"
	"github.com/neboloop/architect/internal/logging"
)

const (
	// MaxRepairAttempts bounds the corrective diffs requested after a failed test run
	MaxRepairAttempts = 1

	// maxTestLogChars is how many characters of test output go into a repair request
	maxTestLogChars = 6000

	commitMessage = "agent: apply changes & tests"
	prTitle       = "Agent: implement changes"
	prBody        = "Created automatically by AUTO mode"
)

const generateSystemPrompt = `You are a senior engineer. The previous answer asked for code changes but contained no diff.
Produce a minimal unified diff (git diff format) that implements the request.
Combine multiple changes into one diff.
If no change is needed, return an empty string.`

const generateUserPrompt = "Produce a unified diff in a ```diff block for the current request.\n\nPrevious answer:\n"

const repairSystemPrompt = "You are a developer agent. Find and fix the cause of the failing tests. Return a unified diff."

// Asker sends one tool-less request to the model
type Asker interface {
	Ask(ctx context.Context, system, user string) (string, error)
}

// TestOutcome is the last known test result
type TestOutcome string

const (
	TestUnknown TestOutcome = "unknown"
	TestPass    TestOutcome = "pass"
	TestFail    TestOutcome = "fail"
)

// PatchState tracks one orchestration run
type PatchState struct {
	ExtractedDiff string      `json:"extracted_diff,omitempty"`
	TestOutcome   TestOutcome `json:"test_outcome"`
	AttemptsUsed  int         `json:"attempts_used"`
}

// Step is one tool call made by the orchestrator
type Step struct {
	Tool    string `json:"tool"`
	OK      bool   `json:"ok"`
	Summary string `json:"summary"`
}

// Report describes what Process did
type Report struct {
	Mode  Mode       `json:"mode"`
	Patch PatchState `json:"patch"`
	Steps []Step     `json:"steps"`
	Notes []string   `json:"notes,omitempty"`
	PR    string     `json:"pr,omitempty"`
}

func (r *Report) note(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Notes = append(r.Notes, msg)
	logging.Named("orchestrator").Warnf("%s", msg)
}

// Summary renders the report for humans
func (r *Report) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mode=%s tests=%s repairs=%d", r.Mode, r.Patch.TestOutcome, r.Patch.AttemptsUsed)
	for _, s := range r.Steps {
		status := "ok"
		if !s.OK {
			status = "failed"
		}
		fmt.Fprintf(&sb, "\n- %s: %s", s.Tool, status)
		if s.Summary != "" {
			fmt.Fprintf(&sb, " (%s)", firstLine(s.Summary))
		}
	}
	for _, n := range r.Notes {
		fmt.Fprintf(&sb, "\n! %s", n)
	}
	if r.PR != "" {
		fmt.Fprintf(&sb, "\n%s", r.PR)
	}
	return sb.String()
}

// Orchestrator post-processes assistant replies. Every failure is recorded
// and the flow moves on; Auto mode always reaches the publish step.
type Orchestrator struct {
	tools tools.Invoker
	asker Asker
}

// New creates an orchestrator
func New(invoker tools.Invoker, asker Asker) *Orchestrator {
	return &Orchestrator{tools: invoker, asker: asker}
}

// Process runs the mode's flow over reply
func (o *Orchestrator) Process(ctx context.Context, mode Mode, reply string) *Report {
	report := &Report{Mode: mode, Patch: PatchState{TestOutcome: TestUnknown}}
	log := logging.L().With(zap.String("mode", string(mode)))
	log.Debug("orchestrating reply", zap.Int("reply_chars", len(reply)))

	switch mode {
	case ModeApply:
		o.applyFromReply(ctx, report, reply, false)
	case ModeRun:
		o.applyFromReply(ctx, report, reply, true)
	case ModeAuto:
		o.auto(ctx, report, reply)
	}

	log.Info("orchestration finished",
		zap.String("tests", string(report.Patch.TestOutcome)),
		zap.Int("steps", len(report.Steps)),
		zap.Int("notes", len(report.Notes)))
	return report
}

func (o *Orchestrator) applyFromReply(ctx context.Context, report *Report, reply string, runTests bool) {
	diff, ok := ExtractDiff(reply)
	if !ok {
		return
	}
	report.Patch.ExtractedDiff = diff
	o.apply(ctx, report, diff)
	if runTests {
		o.test(ctx, report)
	}
}

func (o *Orchestrator) auto(ctx context.Context, report *Report, reply string) {
	diff, ok := ExtractDiff(reply)
	if !ok {
		diff, ok = o.generate(ctx, report, reply)
	}
	if ok {
		report.Patch.ExtractedDiff = diff
		o.apply(ctx, report, diff)
	}

	log := o.test(ctx, report)
	for report.Patch.TestOutcome != TestPass && report.Patch.AttemptsUsed < MaxRepairAttempts {
		report.Patch.AttemptsUsed++
		fix, ok := o.repair(ctx, report, log)
		if !ok {
			break
		}
		o.apply(ctx, report, fix)
		log = o.test(ctx, report)
	}

	o.publish(ctx, report)
}

func (o *Orchestrator) generate(ctx context.Context, report *Report, reply string) (string, bool) {
	if o.asker == nil {
		report.note("no diff in reply and no model available to generate one")
		return "", false
	}
	answer, err := o.asker.Ask(ctx, generateSystemPrompt, generateUserPrompt+reply)
	if err != nil {
		report.note("diff generation failed: %v", err)
		return "", false
	}
	diff, ok := ExtractDiff(answer)
	if !ok {
		report.note("model returned no diff")
	}
	return diff, ok
}

func (o *Orchestrator) repair(ctx context.Context, report *Report, testLog string) (string, bool) {
	if o.asker == nil {
		report.note("tests failed and no model available to repair")
		return "", false
	}
	user := "Logs:\n" + headRunes(testLog, maxTestLogChars) + "\n\nProduce a minimal unified diff that fixes the failure."
	answer, err := o.asker.Ask(ctx, repairSystemPrompt, user)
	if err != nil {
		report.note("repair request failed: %v", err)
		return "", false
	}
	diff, ok := ExtractDiff(answer)
	if !ok {
		report.note("repair answer contained no diff")
	}
	return diff, ok
}

func (o *Orchestrator) apply(ctx context.Context, report *Report, diff string) {
	res := o.call(ctx, report, "apply_patch", map[string]any{"patch": diff, "three_way": true})
	if !res.OK {
		report.note("apply_patch failed: %s", firstLine(res.Summary))
	}
}

// test runs the suite, records the outcome and returns the log for repairs
func (o *Orchestrator) test(ctx context.Context, report *Report) string {
	res := o.call(ctx, report, "run_tests", map[string]any{"task": "test"})
	if testsPassed(res) {
		report.Patch.TestOutcome = TestPass
	} else {
		report.Patch.TestOutcome = TestFail
	}
	return testLog(res)
}

func (o *Orchestrator) publish(ctx context.Context, report *Report) {
	commit := o.call(ctx, report, "git_commit", map[string]any{"message": commitMessage})
	if !commit.OK {
		report.note("git_commit failed: %s", firstLine(commit.Summary))
	}
	pr := o.call(ctx, report, "create_pr", map[string]any{
		"title":        prTitle,
		"body":         prBody,
		"draft":        false,
		"allow_update": true,
	})
	if !pr.OK {
		report.note("create_pr failed: %s", firstLine(pr.Summary))
		return
	}
	report.PR = pr.Summary
}

func (o *Orchestrator) call(ctx context.Context, report *Report, name string, args map[string]any) tools.Result {
	raw, err := json.Marshal(args)
	if err != nil {
		res := tools.ErrorResult("encode %s arguments: %v", name, err)
		report.Steps = append(report.Steps, Step{Tool: name, OK: false, Summary: res.Summary})
		return *res
	}
	res := o.tools.Invoke(ctx, name, string(raw))
	report.Steps = append(report.Steps, Step{Tool: name, OK: res.OK, Summary: res.Summary})
	return res
}

// testsPassed requires an OK invocation and, when the output is JSON, an
// "ok": true field in it.
func testsPassed(res tools.Result) bool {
	if !res.OK {
		return false
	}
	var payload struct {
		OK *bool `json:"ok"`
	}
	if err := json.Unmarshal([]byte(res.Output), &payload); err != nil {
		return res.OK
	}
	return payload.OK != nil && *payload.OK
}

func testLog(res tools.Result) string {
	var payload struct {
		Output string `json:"output"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal([]byte(res.Output), &payload); err == nil {
		if payload.Output != "" {
			return payload.Output
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if res.Output != "" {
		return res.Output
	}
	return res.Summary
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// headRunes returns the first n characters of s
func headRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
