package editor

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/flemzord/toolcore/internal/audit"
	"github.com/flemzord/toolcore/internal/tool"
)

// Service identity.
const (
	ServiceID   = "code_editor"
	ServiceName = "Code Editor"

	ToolReadFile    = "fs_read_file"
	ToolWriteFile   = "fs_write_file"
	ToolFindReplace = "find_replace"
)

// Service exposes an Editor as tools.
type Service struct {
	*tool.Base
	editor *Editor
}

var _ tool.Service = (*Service)(nil)

// NewService wraps editor.
func NewService(editor *Editor, logger *slog.Logger) *Service {
	s := &Service{
		Base: tool.NewBase(tool.BaseConfig{
			ID:          ServiceID,
			Name:        ServiceName,
			Description: "Reads and edits files inside the workspace",
			Logger:      logger,
		}),
		editor: editor,
	}

	s.Handle(tool.Definition{
		Name:        ToolReadFile,
		Description: "Read a UTF-8 text file relative to the workspace root.",
		Parameters: tool.ObjectSchema(map[string]tool.Property{
			"path": {Type: "string", Description: "File path relative to the workspace root"},
		}, "path"),
		Scope: tool.ScopeReadOnly,
	}, s.readFile)

	s.Handle(tool.Definition{
		Name:        ToolWriteFile,
		Description: "Create or overwrite a file atomically. Returns a diff preview; set dryRun to preview only.",
		Parameters: tool.ObjectSchema(map[string]tool.Property{
			"path":            {Type: "string", Description: "File path relative to the workspace root"},
			"content":         {Type: "string", Description: "Full new content"},
			"createIfMissing": {Type: "boolean", Description: "Create the file when absent", Default: true},
			"failIfExists":    {Type: "boolean", Description: "Refuse to overwrite an existing file", Default: false},
			"dryRun":          {Type: "boolean", Description: "Preview without writing", Default: false},
		}, "path", "content"),
		Scope: tool.ScopeReadWrite,
	}, s.writeFile)

	s.Handle(tool.Definition{
		Name:        ToolFindReplace,
		Description: "Replace every occurrence of a string or RE2 pattern in a file. Previews by default; pass dryRun=false to apply.",
		Parameters: tool.ObjectSchema(map[string]tool.Property{
			"path":    {Type: "string", Description: "File path relative to the workspace root"},
			"find":    {Type: "string", Description: "Text or pattern to search for"},
			"replace": {Type: "string", Description: "Literal replacement text"},
			"isRegex": {Type: "boolean", Description: "Treat find as an RE2 regular expression", Default: false},
			"dryRun":  {Type: "boolean", Description: "Preview without writing", Default: true},
		}, "path", "find", "replace"),
		Scope: tool.ScopeReadWrite,
	}, s.findReplace)

	return s
}

func (s *Service) readFile(ctx context.Context, params json.RawMessage) (any, error) {
	var req ReadRequest
	if err := s.decode(ToolReadFile, params, &req, "path"); err != nil {
		return nil, err
	}
	return s.editor.ReadFile(ctx, req)
}

func (s *Service) writeFile(ctx context.Context, params json.RawMessage) (any, error) {
	var req WriteRequest
	if err := s.decode(ToolWriteFile, params, &req, "path", "content"); err != nil {
		return nil, err
	}
	return s.editor.WriteFile(ctx, req)
}

func (s *Service) findReplace(ctx context.Context, params json.RawMessage) (any, error) {
	var req FindReplaceRequest
	if err := s.decode(ToolFindReplace, params, &req, "path", "find", "replace"); err != nil {
		return nil, err
	}
	return s.editor.FindReplace(ctx, req)
}

func (s *Service) decode(name string, params json.RawMessage, dst any, required ...string) error {
	if err := tool.Decode(params, dst, required...); err != nil {
		s.editor.audit.RecordToolCall(audit.ToolCall{Tool: name, Parameters: params, Err: err})
		return err
	}
	return nil
}
