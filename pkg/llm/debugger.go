package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type debugDirKey struct{}

// DebugDirContextKey nests debug output under a per-request directory when set on the context.
var DebugDirContextKey = debugDirKey{}

// DebugRoot is the directory all exchange logs are written under.
var DebugRoot = "debug"

// DebugClient records every request/response exchange of the wrapped client as JSON
// lines under debug/exchanges/<provider>/.
type DebugClient struct {
	client   LLMClient
	provider string
	mu       sync.Mutex
}

// NewDebugClient wraps client with exchange recording.
func NewDebugClient(client LLMClient, provider string) *DebugClient {
	return &DebugClient{client: client, provider: provider}
}

func (d *DebugClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	resp, err := d.client.Complete(ctx, req)

	entry := map[string]any{
		"time":       start.Format(time.RFC3339Nano),
		"elapsed_ms": time.Since(start).Milliseconds(),
		"request":    req,
	}
	if err != nil {
		entry["error"] = err.Error()
	} else {
		entry["response"] = resp
	}
	d.write(ctx, entry)

	return resp, err
}

func (d *DebugClient) IsTransientError(err error) bool {
	return d.client.IsTransientError(err)
}

func (d *DebugClient) write(ctx context.Context, entry map[string]any) {
	dir := filepath.Join(DebugRoot, "exchanges", d.provider)
	if val, ok := ctx.Value(DebugDirContextKey).(string); ok && val != "" {
		dir = filepath.Join(DebugRoot, "exchanges", val, d.provider)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.ErrorContext(ctx, "Failed to create debug directory", "dir", dir, "error", err)
		return
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", time.Now().Format("20060102")))
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to open debug file", "file", filename, "error", err)
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		slog.WarnContext(ctx, "Failed to encode debug entry", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		slog.WarnContext(ctx, "Failed to write to debug file", "error", err)
	}
}
