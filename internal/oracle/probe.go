package oracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/collabgrid/collabgrid/internal/config"
)

// ProbeResult reports reachability of one backend. Probe results are
// advisory: a disconnected backend never blocks a run.
type ProbeResult struct {
	Backend   string
	Connected bool
	Latency   time.Duration
	Error     string
}

// ProbeBackend checks connectivity to a backend's models endpoint.
func ProbeBackend(ctx context.Context, cfg config.BackendConfig) ProbeResult {
	res := ProbeResult{Backend: cfg.Name}
	apiBase := strings.TrimSuffix(cfg.APIBase, "/")
	if apiBase == "" {
		res.Error = "no apiBase configured"
		return res
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", apiBase+"/models", nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	// Any HTTP answer counts as connected; auth failures still prove
	// the endpoint is reachable.
	res.Connected = true
	if resp.StatusCode >= http.StatusInternalServerError {
		res.Error = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return res
}

// ProbeAll probes the coordinator and every pool backend in order.
func ProbeAll(ctx context.Context, coordinator config.BackendConfig, pool []config.BackendConfig) []ProbeResult {
	results := make([]ProbeResult, 0, len(pool)+1)
	results = append(results, ProbeBackend(ctx, coordinator))
	for _, b := range pool {
		results = append(results, ProbeBackend(ctx, b))
	}
	return results
}
