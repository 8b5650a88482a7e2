// Package editor reads, writes, and rewrites text files inside the
// workspace. Every mutation of a path is serialized through a per-path
// FIFO lock, written atomically, and recorded in the audit trail.
package editor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/flemzord/toolcore/internal/audit"
	"github.com/flemzord/toolcore/internal/metrics"
	"github.com/flemzord/toolcore/internal/pathlock"
	"github.com/flemzord/toolcore/internal/tool"
	"github.com/flemzord/toolcore/internal/workspace"
)

// DefaultMaxFileBytes bounds the files the editor loads into memory.
const DefaultMaxFileBytes = 10 << 20

// File change actions.
const (
	ActionCreate    = "create"
	ActionOverwrite = "overwrite"
	ActionReplace   = "replace"
)

// Config configures an Editor.
type Config struct {
	Workspace *workspace.Workspace

	// Locks serializes writers. Nil creates a private Mutex.
	Locks *pathlock.Mutex

	DiffMaxChars int
	MaxFileBytes int64

	Audit   *audit.Logger
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Editor implements the three file operations.
type Editor struct {
	ws       *workspace.Workspace
	locks    *pathlock.Mutex
	diffMax  int
	maxBytes int64
	audit    *audit.Logger
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates an Editor. A workspace is required.
func New(cfg Config) (*Editor, error) {
	if cfg.Workspace == nil {
		return nil, errors.New("editor: workspace is required")
	}
	e := &Editor{
		ws:       cfg.Workspace,
		locks:    cfg.Locks,
		diffMax:  cfg.DiffMaxChars,
		maxBytes: cfg.MaxFileBytes,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if e.locks == nil {
		e.locks = pathlock.New()
	}
	if e.diffMax <= 0 {
		e.diffMax = DefaultDiffMaxChars
	}
	if e.maxBytes <= 0 {
		e.maxBytes = DefaultMaxFileBytes
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "editor")
	return e, nil
}

// ReadRequest is one fs_read_file call.
type ReadRequest struct {
	Path string `json:"path"`
}

// ReadResult reports a file's content. A missing file is Exists false,
// not an error.
type ReadResult struct {
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
	Content string `json:"content"`
	Bytes   int    `json:"bytes"`
}

// WriteRequest is one fs_write_file call. CreateIfMissing defaults to true.
type WriteRequest struct {
	Path            string `json:"path"`
	Content         string `json:"content"`
	CreateIfMissing *bool  `json:"createIfMissing,omitempty"`
	FailIfExists    bool   `json:"failIfExists,omitempty"`
	DryRun          bool   `json:"dryRun,omitempty"`
}

// WriteResult reports a committed or previewed write.
type WriteResult struct {
	Success     bool   `json:"success,omitempty"`
	Preview     bool   `json:"preview,omitempty"`
	Path        string `json:"path"`
	Action      string `json:"action"`
	Bytes       int    `json:"bytes"`
	DiffPreview string `json:"diffPreview"`
}

// FindReplaceRequest is one find_replace call. DryRun defaults to true.
type FindReplaceRequest struct {
	Path    string `json:"path"`
	Find    string `json:"find"`
	Replace string `json:"replace"`
	IsRegex bool   `json:"isRegex,omitempty"`
	DryRun  *bool  `json:"dryRun,omitempty"`
}

// FindReplaceResult reports the replacement count over the whole file;
// only DiffPreview is bounded.
type FindReplaceResult struct {
	Success      bool   `json:"success,omitempty"`
	Preview      bool   `json:"preview,omitempty"`
	Path         string `json:"path"`
	Replacements int    `json:"replacements"`
	Bytes        int    `json:"bytes"`
	DiffPreview  string `json:"diffPreview"`
}

// ReadFile returns the content of path. Reads take no lock.
func (e *Editor) ReadFile(_ context.Context, req ReadRequest) (*ReadResult, error) {
	params := map[string]any{"path": req.Path}
	res, err := e.readFile(req)
	if err != nil {
		e.audit.RecordToolCall(audit.ToolCall{Tool: ToolReadFile, Parameters: params, Err: err})
		return nil, err
	}
	e.audit.RecordToolCall(audit.ToolCall{
		Tool:       ToolReadFile,
		Parameters: params,
		Result:     map[string]any{"exists": res.Exists, "bytes": res.Bytes},
	})
	return res, nil
}

func (e *Editor) readFile(req ReadRequest) (*ReadResult, error) {
	abs, err := e.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	content, exists, err := e.load(abs)
	if err != nil {
		return nil, err
	}
	return &ReadResult{Path: e.ws.Rel(abs), Exists: exists, Content: content, Bytes: len(content)}, nil
}

// WriteFile replaces the content of path under its lock.
func (e *Editor) WriteFile(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	params := map[string]any{"path": req.Path, "dryRun": req.DryRun}
	res, err := e.writeFile(ctx, req)
	if err != nil {
		e.audit.RecordToolCall(audit.ToolCall{Tool: ToolWriteFile, Parameters: params, Err: err})
		return nil, err
	}
	e.audit.RecordToolCall(audit.ToolCall{Tool: ToolWriteFile, Parameters: params, Result: res})
	return res, nil
}

func (e *Editor) writeFile(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	abs, err := e.resolveWritable(req.Path)
	if err != nil {
		return nil, err
	}

	release, err := e.lock(ctx, abs)
	if err != nil {
		return nil, err
	}
	defer release()

	before, exists, err := e.load(abs)
	if err != nil {
		return nil, err
	}
	createIfMissing := req.CreateIfMissing == nil || *req.CreateIfMissing
	if !exists && !createIfMissing {
		return nil, tool.InvalidParametersf("file does not exist and createIfMissing is false: %s", req.Path)
	}
	if exists && req.FailIfExists {
		return nil, tool.InvalidParametersf("file already exists and failIfExists is set: %s", req.Path)
	}

	action := ActionCreate
	if exists {
		action = ActionOverwrite
	}
	res := &WriteResult{
		Path:        e.ws.Rel(abs),
		Action:      action,
		Bytes:       len(req.Content),
		DiffPreview: DiffPreview(before, req.Content, e.diffMax),
	}
	if req.DryRun {
		res.Preview = true
		return res, nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, tool.InternalError("creating parent directories: " + err.Error()).WithCause(err)
	}
	if err := writeAtomic(abs, []byte(req.Content)); err != nil {
		return nil, tool.InternalError("writing file: " + err.Error()).WithCause(err)
	}
	e.committed(res.Path, action, res.Bytes, res.DiffPreview)
	res.Success = true
	return res, nil
}

// FindReplace rewrites every match of req.Find in path under its lock.
func (e *Editor) FindReplace(ctx context.Context, req FindReplaceRequest) (*FindReplaceResult, error) {
	dryRun := req.DryRun == nil || *req.DryRun
	params := map[string]any{"path": req.Path, "find": req.Find, "isRegex": req.IsRegex, "dryRun": dryRun}
	res, err := e.findReplace(ctx, req, dryRun)
	if err != nil {
		e.audit.RecordToolCall(audit.ToolCall{Tool: ToolFindReplace, Parameters: params, Err: err})
		return nil, err
	}
	e.audit.RecordToolCall(audit.ToolCall{Tool: ToolFindReplace, Parameters: params, Result: res})
	return res, nil
}

func (e *Editor) findReplace(ctx context.Context, req FindReplaceRequest, dryRun bool) (*FindReplaceResult, error) {
	if req.Find == "" {
		return nil, tool.InvalidParameters("find must not be empty")
	}
	var re *regexp.Regexp
	if req.IsRegex {
		var err error
		if re, err = regexp.Compile(req.Find); err != nil {
			return nil, tool.InvalidParametersf("invalid regular expression: %v", err).WithCause(err)
		}
	}

	abs, err := e.resolveWritable(req.Path)
	if err != nil {
		return nil, err
	}

	release, err := e.lock(ctx, abs)
	if err != nil {
		return nil, err
	}
	defer release()

	before, exists, err := e.load(abs)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, tool.InvalidParametersf("file does not exist: %s", req.Path)
	}

	after, count := replaceAll(before, req.Find, req.Replace, re)
	res := &FindReplaceResult{
		Path:         e.ws.Rel(abs),
		Replacements: count,
		Bytes:        len(after),
		DiffPreview:  DiffPreview(before, after, e.diffMax),
	}
	if dryRun {
		res.Preview = true
		return res, nil
	}

	if count > 0 {
		if err := writeAtomic(abs, []byte(after)); err != nil {
			return nil, tool.InternalError("writing file: " + err.Error()).WithCause(err)
		}
		e.committed(res.Path, ActionReplace, res.Bytes, res.DiffPreview)
	}
	res.Success = true
	return res, nil
}

// replaceAll substitutes replace for every match, literally in both
// modes: "$1" in replace is not expanded.
func replaceAll(s, find, replace string, re *regexp.Regexp) (string, int) {
	if re == nil {
		return strings.ReplaceAll(s, find, replace), strings.Count(s, find)
	}
	count := 0
	out := re.ReplaceAllStringFunc(s, func(string) string {
		count++
		return replace
	})
	return out, count
}

func (e *Editor) committed(rel, action string, n int, diff string) {
	e.audit.RecordFileChange(audit.FileChange{Path: rel, Action: action, Bytes: n, DiffPreview: diff})
	e.metrics.ObserveFileChange(action)
	e.logger.Info("file changed", "path", rel, "action", action, "bytes", n)
}

func (e *Editor) resolve(path string) (string, error) {
	abs, err := e.ws.Resolve(path)
	if err != nil {
		return "", tool.InvalidParameters(err.Error()).WithCause(err)
	}
	return abs, nil
}

func (e *Editor) resolveWritable(path string) (string, error) {
	abs, err := e.ws.CheckWritable(path)
	if err != nil {
		return "", tool.InvalidParameters(err.Error()).WithCause(err)
	}
	return abs, nil
}

func (e *Editor) lock(ctx context.Context, abs string) (func(), error) {
	release, err := e.locks.Acquire(ctx, abs)
	if err != nil {
		return nil, tool.MapError(fmt.Errorf("waiting for lock on %s: %w", e.ws.Rel(abs), err), ServiceName)
	}
	return release, nil
}

// load reads abs. A missing file yields exists false.
func (e *Editor) load(abs string) (content string, exists bool, err error) {
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, tool.InternalError("stat: " + err.Error()).WithCause(err)
	}
	if info.IsDir() {
		return "", false, tool.InvalidParametersf("path is a directory: %s", e.ws.Rel(abs))
	}
	if info.Size() > e.maxBytes {
		return "", false, tool.InvalidParametersf("file exceeds %d bytes: %s", e.maxBytes, e.ws.Rel(abs))
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", false, tool.InternalError("reading file: " + err.Error()).WithCause(err)
	}
	return string(data), true, nil
}
