// Package procpool runs registered task handlers in separate worker
// processes. The parent re-executes a binary with EnvWorker set, writes one
// JSON Request on the child's stdin and reads one JSON Response from its
// stdout. The child side is Serve.
package procpool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// EnvWorker marks a process as a pool worker.
const EnvWorker = "TEXFLOW_WORKER"

// Request is the unit of work shipped to a worker.
type Request struct {
	Handler string          `json:"handler"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the worker's verdict.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	PID   int    `json:"pid,omitempty"`
}

// ErrWorker reports a handler failure inside a worker process.
var ErrWorker = errors.New("procpool: worker failed")

// WorkerError carries the message a worker reported for a failed handler.
type WorkerError struct {
	Handler string
	PID     int
	Message string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("procpool: %s (pid %d): %s", e.Handler, e.PID, e.Message)
}

func (e *WorkerError) Is(target error) bool { return target == ErrWorker }

// Pool spawns worker processes on demand. Concurrency is bounded by the
// caller.
type Pool struct {
	Executable string
	Args       []string
	Env        []string
}

// New returns a pool that re-executes the running binary.
func New() (*Pool, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("procpool: locate executable: %w", err)
	}
	return &Pool{Executable: exe}, nil
}

// IsWorker reports whether the current process was started as a worker.
func IsWorker() bool {
	return os.Getenv(EnvWorker) == "1"
}

// Run executes handler with payload in a fresh worker process. The process
// is killed when ctx is cancelled.
func (p *Pool) Run(ctx context.Context, handler string, payload []byte) error {
	_, err := p.call(ctx, handler, payload)
	return err
}

func (p *Pool) call(ctx context.Context, handler string, payload []byte) (Response, error) {
	if p == nil || p.Executable == "" {
		return Response{}, fmt.Errorf("procpool: executable is required")
	}
	req, err := json.Marshal(Request{Handler: handler, Payload: payload})
	if err != nil {
		return Response{}, fmt.Errorf("procpool: encode request: %w", err)
	}
	cmd := exec.CommandContext(ctx, p.Executable, p.Args...)
	cmd.Env = append(append(os.Environ(), p.Env...), EnvWorker+"=1")
	cmd.Stdin = bytes.NewReader(req)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Response{}, ctxErr
	}
	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		if runErr != nil {
			return Response{}, fmt.Errorf("procpool: %s: %w%s", handler, runErr, stderrSuffix(stderr.String()))
		}
		return Response{}, fmt.Errorf("procpool: %s: malformed response: %w%s", handler, err, stderrSuffix(stderr.String()))
	}
	if !resp.OK {
		return resp, &WorkerError{Handler: handler, PID: resp.PID, Message: resp.Error}
	}
	if runErr != nil {
		return resp, fmt.Errorf("procpool: %s: %w%s", handler, runErr, stderrSuffix(stderr.String()))
	}
	return resp, nil
}

func stderrSuffix(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return ""
	}
	return ": " + stderr
}
