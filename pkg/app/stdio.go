package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/flemzord/toolcore/internal/tool"
)

// maxLineBytes bounds one request line on the stdio transport.
const maxLineBytes = 8 << 20

// Request is one line read by Serve.
type Request struct {
	ID         json.RawMessage `json:"id"`
	Tool       string          `json:"tool"`
	Parameters json.RawMessage `json:"parameters"`
}

// Response is one line written by Serve. Exactly one of Result and Error
// is set.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *tool.Error     `json:"error,omitempty"`
}

// Serve reads newline-delimited requests from r, executes them
// concurrently through the registry, and writes one response line per
// request to w in completion order. It returns when r is exhausted and
// every in-flight call has answered, or when ctx is canceled.
func (a *App) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	enc := json.NewEncoder(w)
	reply := func(resp Response) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(resp); err != nil {
			a.Logger.Error("writing response", "error", err)
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			reply(Response{ID: json.RawMessage("null"), Error: tool.InvalidParameters("request must be a JSON object")})
			continue
		}
		if req.ID == nil {
			req.ID = json.RawMessage("null")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			reply(a.call(ctx, req))
		}()
	}
	wg.Wait()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requests: %w", err)
	}
	return ctx.Err()
}

func (a *App) call(ctx context.Context, req Request) Response {
	result, err := a.Registry.Execute(ctx, req.Tool, req.Parameters)
	if err != nil {
		var te *tool.Error
		if !errors.As(err, &te) {
			te = tool.MapError(err, "toolcore")
		}
		return Response{ID: req.ID, Error: te}
	}
	return Response{ID: req.ID, Result: result}
}
