package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/ayusman/snapview/internal/log"
)

// Executor runs hooks with a timeout.
type Executor struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor creates an Executor with the specified timeout in milliseconds.
func NewExecutor(timeoutMs int) *Executor {
	return &Executor{
		timeout: time.Duration(timeoutMs) * time.Millisecond,
		logger:  log.With("component", "hooks"),
	}
}

// Execute runs h with req as JSON on stdin and parses its stdout as a Response.
// The hook runs in its own directory; the manifest config is passed along
// unless req already carries one.
func (e *Executor) Execute(ctx context.Context, h *Hook, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, h.Executable)
	cmd.Dir = h.Path

	if req.Config == nil {
		req.Config = h.Manifest.Config
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("hook %s timed out after %s", h.Manifest.Name, e.timeout)
	}

	if err != nil {
		if s := stderr.String(); s != "" {
			return nil, fmt.Errorf("hook %s failed: %w, stderr: %s", h.Manifest.Name, err, s)
		}
		return nil, fmt.Errorf("hook %s failed: %w", h.Manifest.Name, err)
	}

	var response Response
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse hook response: %w, stdout: %s", err, stdout.String())
	}

	return &response, nil
}

// Result is the outcome of one hook run.
type Result struct {
	Hook     string    `json:"hook"`
	Response *Response `json:"response,omitempty"`
	Err      string    `json:"error,omitempty"`
}

// RunAll runs every hook subscribed to req.Event one after another. A failing
// hook is logged and does not stop the others.
func (e *Executor) RunAll(ctx context.Context, m *Manager, req Request) []Result {
	hooks := m.For(req.Event)
	results := make([]Result, 0, len(hooks))

	for _, h := range hooks {
		r := req
		r.Config = nil
		resp, err := e.Execute(ctx, h, &r)

		res := Result{Hook: h.Manifest.Name, Response: resp}
		switch {
		case err != nil:
			res.Err = err.Error()
			e.logger.Warn("hook failed", "hook", h.Manifest.Name, "event", req.Event, "error", err)
		case !resp.Success:
			e.logger.Warn("hook reported failure", "hook", h.Manifest.Name, "event", req.Event, "error", resp.Error)
		default:
			e.logger.Debug("hook ran", "hook", h.Manifest.Name, "event", req.Event)
		}
		results = append(results, res)
	}
	return results
}
