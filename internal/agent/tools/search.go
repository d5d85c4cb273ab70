package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// skipDirs are never walked by list_files or find_replace
var skipDirs = map[string]bool{
	".git": true, ".gradle": true, ".idea": true, "node_modules": true, "build": true, "vendor": true,
}

// globToRegexp converts a slash glob into an anchored regexp. "**" spans
// directories, "*" and "?" stay within one segment.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				i++
				if i+1 < len(glob) && glob[i+1] == '/' {
					i++
					sb.WriteString("(?:.*/)?")
				} else {
					sb.WriteString(".*")
				}
			} else {
				sb.WriteString("[^/]*")
			}
		case '?':
			sb.WriteString("[^/]")
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// walkFiles calls fn for every regular file under dir whose workspace
// relative path matches glob. fn returns false to stop.
func walkFiles(ws *Workspace, dir, glob string, fn func(abs, rel string) bool) error {
	re, err := globToRegexp(glob)
	if err != nil {
		return fmt.Errorf("invalid glob %q: %w", glob, err)
	}
	root, err := ws.Resolve(dir)
	if err != nil {
		return err
	}
	stop := fmt.Errorf("stop")
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel := ws.Rel(path)
		if !re.MatchString(rel) {
			return nil
		}
		if !fn(path, rel) {
			return stop
		}
		return nil
	})
	if err == stop {
		return nil
	}
	return err
}

// ListFilesTool lists workspace files matching a glob
type ListFilesTool struct {
	ws *Workspace
}

// NewListFilesTool creates the list_files tool
func NewListFilesTool(ws *Workspace) *ListFilesTool {
	return &ListFilesTool{ws: ws}
}

// Name returns the tool name
func (t *ListFilesTool) Name() string { return "list_files" }

// Description returns the tool description
func (t *ListFilesTool) Description() string {
	return "List project files matching a glob (e.g. **/*.kt). Arguments: glob, limit."
}

// Schema returns the JSON schema
func (t *ListFilesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"glob": {"type": "string", "default": "**/*", "description": "Glob relative to the project root"},
			"limit": {"type": "integer", "minimum": 1, "default": 500, "description": "Maximum number of files"}
		}
	}`)
}

type listFilesInput struct {
	Glob  string `json:"glob"`
	Limit int    `json:"limit"`
}

// Execute walks the workspace
func (t *ListFilesTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[listFilesInput](input)
	if err != nil {
		return nil, err
	}
	if in.Glob == "" {
		in.Glob = "**/*"
	}
	if in.Limit <= 0 {
		in.Limit = 500
	}

	files := []string{}
	err = walkFiles(t.ws, ".", in.Glob, func(_, rel string) bool {
		files = append(files, rel)
		return len(files) < in.Limit && ctx.Err() == nil
	})
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	return JSONResult(true, fmt.Sprintf("Found: %d", len(files)), map[string]any{
		"ok":    true,
		"files": files,
	}), nil
}

// FindReplaceTool performs literal or regex replacement across files
type FindReplaceTool struct {
	ws *Workspace
}

// NewFindReplaceTool creates the find_replace tool
func NewFindReplaceTool(ws *Workspace) *FindReplaceTool {
	return &FindReplaceTool{ws: ws}
}

// Name returns the tool name
func (t *FindReplaceTool) Name() string { return "find_replace" }

// Description returns the tool description
func (t *FindReplaceTool) Description() string {
	return "Bulk find-and-replace across files selected by glob. Supports regex; dry_run (default true) only reports what would change."
}

// Schema returns the JSON schema
func (t *FindReplaceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"dir": {"type": "string", "default": "."},
			"glob": {"type": "string", "default": "**/*.*"},
			"find": {"type": "string", "minLength": 1},
			"replace": {"type": "string", "default": ""},
			"regex": {"type": "boolean", "default": false},
			"dry_run": {"type": "boolean", "default": true}
		},
		"required": ["find"]
	}`)
}

type findReplaceInput struct {
	Dir     string `json:"dir"`
	Glob    string `json:"glob"`
	Find    string `json:"find"`
	Replace string `json:"replace"`
	Regex   bool   `json:"regex"`
	DryRun  *bool  `json:"dry_run"`
}

// Execute rewrites matching files unless dry_run is set
func (t *FindReplaceTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[findReplaceInput](input)
	if err != nil {
		return nil, err
	}
	if in.Dir == "" {
		in.Dir = "."
	}
	if in.Glob == "" {
		in.Glob = "**/*.*"
	}
	dry := in.DryRun == nil || *in.DryRun

	replace := func(src string) string { return strings.ReplaceAll(src, in.Find, in.Replace) }
	if in.Regex {
		re, err := regexp.Compile("(?m)" + in.Find)
		if err != nil {
			return ErrorResult("invalid regex: %v", err), nil
		}
		replace = func(src string) string { return re.ReplaceAllString(src, in.Replace) }
	}

	changed := []string{}
	var writeErr error
	err = walkFiles(t.ws, in.Dir, in.Glob, func(abs, rel string) bool {
		data, err := os.ReadFile(abs)
		if err != nil {
			return true
		}
		src := string(data)
		dst := replace(src)
		if src == dst {
			return true
		}
		changed = append(changed, rel)
		if !dry {
			if err := os.WriteFile(abs, []byte(dst), 0644); err != nil {
				writeErr = fmt.Errorf("write %s: %w", rel, err)
				return false
			}
		}
		return ctx.Err() == nil
	})
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	if writeErr != nil {
		return nil, writeErr
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Files changed: %d", len(changed))
	for _, f := range changed {
		sb.WriteString("\n• " + f)
	}
	return JSONResult(true, sb.String(), map[string]any{
		"ok":      true,
		"changed": len(changed),
		"dry_run": dry,
		"files":   changed,
	}), nil
}
