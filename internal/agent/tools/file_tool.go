package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ReadFileTool reads a text file inside the workspace
type ReadFileTool struct {
	ws *Workspace
}

// NewReadFileTool creates the read_file tool
func NewReadFileTool(ws *Workspace) *ReadFileTool {
	return &ReadFileTool{ws: ws}
}

// Name returns the tool name
func (t *ReadFileTool) Name() string { return "read_file" }

// Description returns the tool description
func (t *ReadFileTool) Description() string {
	return "Read a text file by path relative to the project root. Optional offset and limit select a character range."
}

// Schema returns the JSON schema
func (t *ReadFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "File path relative to the project root"},
			"offset": {"type": "integer", "minimum": 0, "description": "Character offset to start reading from"},
			"limit": {"type": "integer", "minimum": 1, "description": "Maximum number of characters to read"}
		},
		"required": ["path"]
	}`)
}

type readFileInput struct {
	Path   string `json:"path"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// Execute reads the requested range
func (t *ReadFileTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[readFileInput](input)
	if err != nil {
		return nil, err
	}
	target, err := t.ws.Resolve(in.Path)
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return ErrorResult("file not found: %s", in.Path), nil
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, err
	}
	content := []rune(string(data))
	from := min(in.Offset, len(content))
	to := len(content)
	if in.Limit > 0 {
		to = min(from+in.Limit, len(content))
	}
	truncated := to < len(content)

	summary := fmt.Sprintf("Read %s [%d..%d)", in.Path, from, to)
	if truncated {
		summary += " (truncated)"
	}
	return JSONResult(true, summary, map[string]any{
		"ok":         true,
		"path":       in.Path,
		"offset":     from,
		"end_offset": to,
		"truncated":  truncated,
		"content":    string(content[from:to]),
	}), nil
}

// WriteFileTool creates or overwrites a text file inside the workspace
type WriteFileTool struct {
	ws *Workspace
}

// NewWriteFileTool creates the write_file tool
func NewWriteFileTool(ws *Workspace) *WriteFileTool {
	return &WriteFileTool{ws: ws}
}

// Name returns the tool name
func (t *WriteFileTool) Name() string { return "write_file" }

// Description returns the tool description
func (t *WriteFileTool) Description() string {
	return "Create or overwrite a text file (path, content). The path is relative to the project root; parent directories are created."
}

// Schema returns the JSON schema
func (t *WriteFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "File path relative to the project root"},
			"content": {"type": "string", "description": "Full file content"}
		},
		"required": ["path", "content"]
	}`)
}

type writeFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Execute writes the file
func (t *WriteFileTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[writeFileInput](input)
	if err != nil {
		return nil, err
	}
	target, err := t.ws.Resolve(in.Path)
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(in.Content), 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", in.Path, err)
	}
	return JSONResult(true, "Wrote "+in.Path, map[string]any{
		"ok":    true,
		"path":  in.Path,
		"bytes": len(in.Content),
	}), nil
}
