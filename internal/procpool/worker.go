package procpool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kingrea/texflow/internal/task"
)

// Serve handles exactly one request from r and writes the response to w.
// Handler failures are reported in the response; the returned error covers
// protocol failures only.
func Serve(ctx context.Context, reg *task.Registry, r io.Reader, w io.Writer) error {
	if reg == nil {
		reg = task.DefaultRegistry
	}
	var req Request
	resp := Response{PID: os.Getpid()}
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		resp.Error = fmt.Sprintf("decode request: %v", err)
		return writeResponse(w, resp, fmt.Errorf("procpool: decode request: %w", err))
	}
	handler, err := reg.Lookup(req.Handler)
	if err != nil {
		resp.Error = err.Error()
		return writeResponse(w, resp, nil)
	}
	if err := runHandler(ctx, handler, req.Payload); err != nil {
		resp.Error = err.Error()
		return writeResponse(w, resp, nil)
	}
	resp.OK = true
	return writeResponse(w, resp, nil)
}

func runHandler(ctx context.Context, handler task.Handler, payload json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return handler(ctx, payload)
}

func writeResponse(w io.Writer, resp Response, cause error) error {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return fmt.Errorf("procpool: encode response: %w", err)
	}
	return cause
}
