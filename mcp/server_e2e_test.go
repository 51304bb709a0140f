package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"

	"pkt.systems/engramd/internal/auth"
	"pkt.systems/engramd/internal/extract"
	"pkt.systems/engramd/internal/graph"
	"pkt.systems/engramd/internal/graph/redistore"
	"pkt.systems/engramd/internal/ingest"
	"pkt.systems/engramd/internal/memory"
	"pkt.systems/pslog"
)

type bearerTransport struct {
	token string
	next  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.token != "" {
		clone.Header.Set("Authorization", "Bearer "+t.token)
	}
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(clone)
}

func startE2EServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := pslog.NoopLogger()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := redistore.NewWithClient(client, logger)

	queue := ingest.NewQueue(logger)
	svc, err := memory.New(memory.Config{
		Engine:           graph.Limit(store, 4),
		Extractor:        extract.NewHeuristic(),
		Queue:            queue,
		DefaultNamespace: "default",
		Logger:           logger,
	})
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	pool := ingest.NewPool(queue, 2, svc.IngestTask, logger)
	svc.AttachPool(pool)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = pool.Run(ctx) }()

	ring := auth.NewKeyring()
	if err := ring.Add("admin-token", auth.Principal{UserID: "alice", Role: "admin"}); err != nil {
		t.Fatal(err)
	}
	if err := ring.Add("reader-token", auth.Principal{UserID: "bob", Role: "reader"}); err != nil {
		t.Fatal(err)
	}
	policy, err := auth.ParsePolicy([]byte(`{"policies":[
		{"role":"admin","resources":["*"]},
		{"role":"reader","resources":["search_entities","get_status"]}
	]}`))
	if err != nil {
		t.Fatal(err)
	}

	facade, err := NewServer(NewServerRequest{
		Config:        Config{Listen: "127.0.0.1:0"},
		Memory:        svc,
		Authenticator: auth.NewAuthenticator(true, ring),
		Policy:        policy,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(facade.(*server).buildMux())
	t.Cleanup(ts.Close)
	return ts
}

func connectSession(t *testing.T, ts *httptest.Server, token string) *mcpsdk.ClientSession {
	t.Helper()
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "engramd-test-client", Version: "0.0.1"}, nil)
	transport := &mcpsdk.StreamableClientTransport{
		Endpoint:   ts.URL + "/mcp",
		HTTPClient: &http.Client{Timeout: 10 * time.Second, Transport: &bearerTransport{token: token}},
	}
	cs, err := client.Connect(context.Background(), transport, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callToolObject(ctx context.Context, t *testing.T, cs *mcpsdk.ClientSession, name string, args map[string]any) map[string]any {
	t.Helper()
	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call tool %s: %v", name, err)
	}
	if res.IsError {
		t.Fatalf("tool %s returned error result: %+v", name, res.Content)
	}
	obj, err := decodeToolResult(res)
	if err != nil {
		t.Fatalf("decode tool %s result: %v", name, err)
	}
	return obj
}

func decodeToolResult(res *mcpsdk.CallToolResult) (map[string]any, error) {
	if res.StructuredContent != nil {
		raw, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return nil, err
		}
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if len(res.Content) == 0 {
		return map[string]any{}, nil
	}
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	if !ok {
		return nil, fmt.Errorf("unexpected content type %T", res.Content[0])
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func TestEndToEndIngestAndQuery(t *testing.T) {
	ts := startE2EServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cs := connectSession(t, ts, "admin-token")

	tools, err := cs.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools.Tools) != 9 {
		t.Fatalf("got %d tools, want 9", len(tools.Tools))
	}

	added := callToolObject(ctx, t, cs, "add_content", map[string]any{
		"name":      "trip report",
		"content":   "Alice visited Oslo with Bob Larsen.",
		"namespace": "travel",
		"id":        "trip-report-1",
	})
	if added["status"] != "queued for processing" {
		t.Fatalf("add_content status = %v", added["status"])
	}
	if added["task_id"] != "trip-report-1" {
		t.Fatalf("task_id = %v, want the caller-supplied id", added["task_id"])
	}

	deadline := time.Now().Add(10 * time.Second)
	var found bool
	for time.Now().Before(deadline) {
		res := callToolObject(ctx, t, cs, "search_entities", map[string]any{
			"query":      "alice",
			"namespaces": []string{"travel"},
		})
		if ents, ok := res["entities"].([]any); ok && len(ents) > 0 {
			found = true
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !found {
		t.Fatal("entity never appeared after async ingestion")
	}

	status := callToolObject(ctx, t, cs, "get_status", map[string]any{})
	if status["graph_reachable"] != true {
		t.Fatalf("get_status = %v", status)
	}
}

func TestEndToEndAuthorizationDenied(t *testing.T) {
	ts := startE2EServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cs := connectSession(t, ts, "reader-token")

	// Discovery works for any holder of a session.
	if _, err := cs.ListTools(ctx, &mcpsdk.ListToolsParams{}); err != nil {
		t.Fatalf("list tools: %v", err)
	}

	// Granted resource succeeds.
	callToolObject(ctx, t, cs, "get_status", map[string]any{})

	// Ungranted resource is rejected before the handler runs.
	_, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "clear_namespace",
		Arguments: map[string]any{},
	})
	if err == nil {
		t.Fatal("expected authorization error")
	}
	if !strings.Contains(err.Error(), "not permitted") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEndToEndUnauthenticatedToolCall(t *testing.T) {
	ts := startE2EServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cs := connectSession(t, ts, "")

	// tools/list is permissive even without credentials.
	if _, err := cs.ListTools(ctx, &mcpsdk.ListToolsParams{}); err != nil {
		t.Fatalf("list tools: %v", err)
	}

	_, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "get_status",
		Arguments: map[string]any{},
	})
	if err == nil {
		t.Fatal("expected authentication error")
	}
	if !strings.Contains(err.Error(), "authentication required") {
		t.Fatalf("unexpected error: %v", err)
	}
}
