package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
)

// Audit severities, most severe first
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)

// maxAuditFindings caps the findings one audit reports
const maxAuditFindings = 200

// Finding is one issue reported by the mobile audit
type Finding struct {
	Severity string `json:"severity"`
	File     string `json:"file"`
	Line     int    `json:"line,omitempty"`
	Rule     string `json:"rule"`
	Message  string `json:"message"`
}

func (f Finding) String() string {
	loc := f.File
	if f.Line > 0 {
		loc = fmt.Sprintf("%s:%d", f.File, f.Line)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Severity, loc, f.Message)
}

var severityRank = map[string]int{SeverityHigh: 0, SeverityMedium: 1, SeverityLow: 2}

// sourceRule flags a literal pattern in Kotlin, Java or resource XML
type sourceRule struct {
	id       string
	pattern  string
	severity string
	message  string
	exts     []string
}

var sourceRules = []sourceRule{
	{"webview-js-interface", "addJavascriptInterface(", SeverityHigh, "WebView addJavascriptInterface exposes native code to page scripts", []string{".kt", ".java"}},
	{"webview-universal-file-access", "setAllowUniversalAccessFromFileURLs(true)", SeverityHigh, "WebView lets file:// pages read any origin", []string{".kt", ".java"}},
	{"webview-js-enabled", "setJavaScriptEnabled(true)", SeverityMedium, "WebView JavaScript enabled", []string{".kt", ".java"}},
	{"webview-js-enabled", "javaScriptEnabled = true", SeverityMedium, "WebView JavaScript enabled", []string{".kt"}},
	{"cleartext-permitted", `cleartextTrafficPermitted="true"`, SeverityMedium, "network security config permits cleartext traffic", []string{".xml"}},
}

// Audit scans the workspace for common Android security mistakes: risky
// manifest flags, exported components without a permission and unsafe
// WebView settings. Findings are ordered by severity, then location.
func Audit(ctx context.Context, ws *Workspace) ([]Finding, error) {
	var findings []Finding
	var walkErr error
	err := walkFiles(ws, ".", "**/*", func(abs, rel string) bool {
		if err := ctx.Err(); err != nil {
			walkErr = err
			return false
		}
		ext := path.Ext(rel)
		if ext != ".xml" && ext != ".kt" && ext != ".java" {
			return true
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return true
		}
		if path.Base(rel) == "AndroidManifest.xml" {
			findings = append(findings, auditManifest(rel, data)...)
		}
		findings = append(findings, auditSource(rel, ext, data)...)
		return len(findings) < maxAuditFindings
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}

	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] < severityRank[b.Severity]
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
	if len(findings) > maxAuditFindings {
		findings = findings[:maxAuditFindings]
	}
	return findings, nil
}

func auditSource(rel, ext string, data []byte) []Finding {
	var out []Finding
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		for _, r := range sourceRules {
			if !hasExt(r.exts, ext) || !strings.Contains(text, r.pattern) {
				continue
			}
			out = append(out, Finding{Severity: r.severity, File: rel, Line: line, Rule: r.id, Message: r.message})
		}
	}
	return out
}

func hasExt(exts []string, ext string) bool {
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

// manifestComponents are the elements that can be exported
var manifestComponents = map[string]bool{
	"activity": true, "activity-alias": true, "service": true, "receiver": true, "provider": true,
}

type component struct {
	kind       string
	name       string
	line       int
	exported   bool
	permission bool
	launcher   bool
}

// auditManifest walks the manifest token by token so findings carry lines
func auditManifest(rel string, data []byte) []Finding {
	var out []Finding
	add := func(sev string, line int, rule, msg string) {
		out = append(out, Finding{Severity: sev, File: rel, Line: line, Rule: rule, Message: msg})
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	var current *component
	for {
		line, _ := dec.InputPos()
		tok, err := dec.Token()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				add(SeverityLow, line, "manifest-unparsable", "manifest could not be parsed: "+err.Error())
			}
			break
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch {
			case el.Name.Local == "application":
				if androidAttr(el, "debuggable") == "true" {
					add(SeverityHigh, line, "debuggable", "application is debuggable (android:debuggable=\"true\")")
				}
				if androidAttr(el, "allowBackup") == "true" {
					add(SeverityMedium, line, "allow-backup", "app data can be extracted with adb backup (android:allowBackup=\"true\")")
				}
				if androidAttr(el, "usesCleartextTraffic") == "true" {
					add(SeverityMedium, line, "cleartext-traffic", "cleartext HTTP traffic is allowed (android:usesCleartextTraffic=\"true\")")
				}
			case manifestComponents[el.Name.Local]:
				current = &component{
					kind:       el.Name.Local,
					name:       androidAttr(el, "name"),
					line:       line,
					exported:   androidAttr(el, "exported") == "true",
					permission: androidAttr(el, "permission") != "",
				}
				if el.Name.Local == "provider" && androidAttr(el, "grantUriPermissions") == "true" && current.exported {
					add(SeverityMedium, line, "provider-grant-uri", fmt.Sprintf("exported provider %s grants URI permissions", current.name))
				}
			case el.Name.Local == "action" && current != nil:
				if androidAttr(el, "name") == "android.intent.action.MAIN" {
					current.launcher = true
				}
			}
		case xml.EndElement:
			if current != nil && el.Name.Local == current.kind {
				if current.exported && !current.permission && !current.launcher {
					add(SeverityMedium, current.line, "exported-component",
						fmt.Sprintf("exported %s %s is not protected by a permission", current.kind, current.name))
				}
				current = nil
			}
		}
	}
	return out
}

// androidAttr returns the android: namespaced attribute. The decoder
// reports the namespace URL when xmlns:android is declared, the bare prefix
// otherwise.
func androidAttr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local != local {
			continue
		}
		if a.Name.Space == "android" || strings.HasSuffix(a.Name.Space, "/apk/res/android") {
			return a.Value
		}
	}
	return ""
}

// MobileAuditTool runs Audit over the workspace
type MobileAuditTool struct {
	ws *Workspace
}

// NewMobileAuditTool creates the mobile_audit tool
func NewMobileAuditTool(ws *Workspace) *MobileAuditTool {
	return &MobileAuditTool{ws: ws}
}

// Name returns the tool name
func (t *MobileAuditTool) Name() string { return "mobile_audit" }

// Description returns the tool description
func (t *MobileAuditTool) Description() string {
	return "Quick Android security audit of the project: debuggable/allowBackup/cleartext manifest flags, " +
		"exported components without a permission, risky WebView settings. Findings carry HIGH, MEDIUM or LOW severity."
}

// Schema returns the JSON schema
func (t *MobileAuditTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

// Execute runs the audit
func (t *MobileAuditTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	findings, err := Audit(ctx, t.ws)
	if err != nil {
		return ErrorResult("audit: %v", err), nil
	}
	counts := map[string]int{}
	for _, f := range findings {
		counts[f.Severity]++
	}
	if findings == nil {
		findings = []Finding{}
	}
	return JSONResult(true, AuditSummary(findings), map[string]any{
		"ok":       true,
		"findings": findings,
		"counts":   counts,
	}), nil
}

// AuditSummary is the one-line verdict for a set of findings
func AuditSummary(findings []Finding) string {
	if len(findings) == 0 {
		return "No critical findings."
	}
	counts := map[string]int{}
	for _, f := range findings {
		counts[f.Severity]++
	}
	var parts []string
	for _, sev := range []string{SeverityHigh, SeverityMedium, SeverityLow} {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(sev)))
		}
	}
	return fmt.Sprintf("%d findings (%s)", len(findings), strings.Join(parts, ", "))
}
