// Package invokables holds the built-in callables an invoke step can
// reference by name (registry.AddInvokable), in the same spirit as the
// teacher's internal/tools/* packages: one small, self-contained callable
// per concern, registered once at boot rather than discovered dynamically
// (the Go port has no equivalent of the Python original's importlib-based
// dotted-path resolution — invoke.py's _get_callable — since Go has no
// runtime module loader; callables are compiled in and looked up by name
// through internal/registry instead).
package invokables

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dialogforge/core/internal/registry"
)

// Register wires every built-in callable into reg under its dotted name.
func Register(reg *registry.Registry) {
	reg.AddInvokable("time.now", Now)
	reg.AddInvokable("http.fetch", Fetch)
}

// Now returns the current time in RFC3339, ignoring args. Useful for
// templates that stamp a variable without a model round trip.
func Now(ctx context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"now": time.Now().UTC().Format(time.RFC3339)}, nil
}

// Fetch performs a bounded GET request and returns the response body as
// text, for invoke steps that need to pull in external data a prompt step
// can then summarize. args must carry a non-empty "url" string.
func Fetch(ctx context.Context, args map[string]any) (map[string]any, error) {
	raw, ok := args["url"]
	if !ok {
		return nil, fmt.Errorf("invokables: http.fetch requires a \"url\" argument")
	}
	url, ok := raw.(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("invokables: http.fetch \"url\" argument must be a non-empty string")
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invokables: http.fetch: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invokables: http.fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("invokables: http.fetch %s: read body: %w", url, err)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(body),
	}, nil
}
