package tool

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ReadFileTool reads a local file.
type ReadFileTool struct{}

func (ReadFileTool) Name() string { return "read_file" }

func (ReadFileTool) Description() string {
	return "Read and return the contents of a local file."
}

func (ReadFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path of the file to read",
			},
		},
		"required": []string{"file_path"},
	}
}

func (ReadFileTool) Execute(_ context.Context, args map[string]any) Result {
	path, ok := stringArg(args, "file_path")
	if !ok || path == "" {
		return Fail("read_file: file_path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Fail(fmt.Sprintf("read_file: %v", err))
	}

	res := Ok(string(data))
	res.Metadata = map[string]any{"bytes": len(data)}
	return res
}

// WriteFileTool writes (or overwrites) a local file.
type WriteFileTool struct{}

func (WriteFileTool) Name() string { return "write_file" }

func (WriteFileTool) Description() string {
	return "Write content to a local file, replacing it if it exists."
}

func (WriteFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path of the file to write",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full file content",
			},
		},
		"required": []string{"file_path", "content"},
	}
}

func (WriteFileTool) Execute(_ context.Context, args map[string]any) Result {
	path, ok := stringArg(args, "file_path")
	if !ok || path == "" {
		return Fail("write_file: file_path is required")
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return Fail("write_file: content is required")
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Fail(fmt.Sprintf("write_file: %v", err))
	}
	return Ok(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

// ReplaceInFileTool replaces every occurrence of a text block in a file.
type ReplaceInFileTool struct{}

func (ReplaceInFileTool) Name() string { return "replace_in_file" }

func (ReplaceInFileTool) Description() string {
	return "Replace matching text in a local file. The search text should occur exactly once."
}

func (ReplaceInFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path of the file to edit",
			},
			"old_text": map[string]any{
				"type":        "string",
				"description": "Text to find",
			},
			"new_text": map[string]any{
				"type":        "string",
				"description": "Replacement text",
			},
		},
		"required": []string{"file_path", "old_text", "new_text"},
	}
}

func (ReplaceInFileTool) Execute(_ context.Context, args map[string]any) Result {
	path, ok := stringArg(args, "file_path")
	if !ok || path == "" {
		return Fail("replace_in_file: file_path is required")
	}
	oldText, ok := stringArg(args, "old_text")
	if !ok || oldText == "" {
		return Fail("replace_in_file: old_text is required")
	}
	newText, _ := stringArg(args, "new_text")

	data, err := os.ReadFile(path)
	if err != nil {
		return Fail(fmt.Sprintf("replace_in_file: %v", err))
	}

	text := string(data)
	count := strings.Count(text, oldText)
	if count == 0 {
		return Fail("replace_in_file: old_text not found in file")
	}

	text = strings.ReplaceAll(text, oldText, newText)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return Fail(fmt.Sprintf("replace_in_file: %v", err))
	}

	res := Ok(fmt.Sprintf("replaced %d occurrence(s) in %s", count, path))
	res.Metadata = map[string]any{"occurrences": count}
	return res
}
