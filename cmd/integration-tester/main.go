package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ZanzyTHEbar/people-network-go/internal/apptype"
)

type StepResult struct {
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type Report struct {
	BaseURL    string       `json:"base_url"`
	StartedAt  time.Time    `json:"started_at"`
	DurationMs int64        `json:"duration_ms"`
	Steps      []StepResult `json:"steps"`
	Passed     bool         `json:"passed"`
}

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "Base URL of a running people-network server")
	sseEndpoint := flag.String("sse-endpoint", "/sse", "SSE endpoint path")
	asset := flag.String("asset", "/", "Asset path expected to be served")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	base := strings.TrimSuffix(*baseURL, "/")
	start := time.Now()
	report := Report{BaseURL: base, StartedAt: start}
	steps := make([]StepResult, 0, 16)

	steps = append(steps, runHTTP(ctx, "healthz", base+"/healthz", http.StatusOK))
	steps = append(steps, runHTTP(ctx, "asset", base+*asset, http.StatusOK))
	steps = append(steps, runCacheStatus(ctx, base+"/_cache/status"))

	client := mcp.NewClient(&mcp.Implementation{Name: "integration-tester", Version: "dev"}, nil)
	transport := mcp.NewSSEClientTransport(base+*sseEndpoint, nil)

	var session *mcp.ClientSession
	steps = append(steps, step("connect", func() error {
		var err error
		session, err = client.Connect(ctx, transport)
		return err
	}))
	if session != nil {
		defer session.Close()
		steps = append(steps, step("list_tools", func() error {
			_, err := session.ListTools(ctx, &mcp.ListToolsParams{})
			return err
		}))
		steps = append(steps, runTool(ctx, session, "create_entities", apptype.CreateEntitiesArgs{
			Entities: []apptype.Entity{
				{ID: "it-a", Name: "A", Type: apptype.EntityTypePerson},
				{ID: "it-b", Name: "B", Type: apptype.EntityTypePerson},
				{ID: "it-g", Name: "G", Type: apptype.EntityTypeGroup},
			},
		}))
		steps = append(steps, runTool(ctx, session, "create_connections", apptype.CreateConnectionsArgs{
			Connections: []apptype.Connection{
				{From: "it-a", To: "it-b", Type: apptype.ConnectionBiDirectional},
				{From: "it-a", To: "it-g", Type: apptype.ConnectionOneWay},
			},
		}))
		steps = append(steps, runTool(ctx, session, "read_network", apptype.ReadNetworkArgs{Limit: 10}))
		steps = append(steps, runTool(ctx, session, "open_entities", apptype.OpenEntitiesArgs{IDs: []string{"it-a"}, IncludeConnections: true}))
		steps = append(steps, runTool(ctx, session, "neighbors", apptype.NeighborsArgs{IDs: []string{"it-b"}, Direction: "out"}))
		steps = append(steps, runTool(ctx, session, "cache_status", apptype.CacheStatusArgs{}))
		steps = append(steps, runTool(ctx, session, "health_check", apptype.HealthArgs{}))
		steps = append(steps, runTool(ctx, session, "delete_connection", apptype.DeleteConnectionArgs{From: "it-a", To: "it-g", Type: apptype.ConnectionOneWay}))
		for _, id := range []string{"it-a", "it-b", "it-g"} {
			steps = append(steps, runTool(ctx, session, "delete_entity", apptype.DeleteEntityArgs{ID: id}))
		}
	}

	report.Steps = steps
	report.DurationMs = elapsedMsSince(start)
	report.Passed = true
	for _, s := range steps {
		if !s.Success {
			report.Passed = false
			break
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if !report.Passed {
		os.Exit(1)
	}
}

func step(name string, fn func() error) StepResult {
	t0 := time.Now()
	res := StepResult{Name: name, Success: true}
	if err := fn(); err != nil {
		res.Success = false
		res.Error = err.Error()
	}
	res.ElapsedMs = elapsedMsSince(t0)
	return res
}

func runTool(ctx context.Context, session *mcp.ClientSession, name string, args any) StepResult {
	return step(name, func() error {
		raw, err := json.Marshal(args)
		if err != nil {
			return err
		}
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: json.RawMessage(raw)})
		if err != nil {
			return err
		}
		if res.IsError {
			return fmt.Errorf("tool %s reported an error", name)
		}
		return nil
	})
}

func runHTTP(ctx context.Context, name, url string, want int) StepResult {
	return step(name, func() error {
		_, err := get(ctx, url, want)
		return err
	})
}

func runCacheStatus(ctx context.Context, url string) StepResult {
	return step("cache_status_http", func() error {
		body, err := get(ctx, url, http.StatusOK)
		if err != nil {
			return err
		}
		var st apptype.CacheStatusResult
		if err := json.Unmarshal(body, &st); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		if st.State == "" {
			return fmt.Errorf("empty cache state")
		}
		return nil
	})
}

func get(ctx context.Context, url string, want int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != want {
		return nil, fmt.Errorf("GET %s: status %d, want %d", url, resp.StatusCode, want)
	}
	return body, nil
}

// elapsedMsSince returns max(1ms, elapsed) to avoid zero durations on fast steps
func elapsedMsSince(t0 time.Time) int64 {
	d := time.Since(t0) / time.Millisecond
	if d <= 0 {
		return 1
	}
	return int64(d)
}
