package mcp

import (
	"context"
	"net/http"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/engramd/internal/auth"
	"pkt.systems/pslog"
)

func newGateServer(t *testing.T, authEnabled bool) *server {
	t.Helper()
	ring := auth.NewKeyring()
	if err := ring.Add("admin-token", auth.Principal{UserID: "alice", Role: "admin"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ring.Add("reader-token", auth.Principal{UserID: "bob", Role: "reader"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ring.Add("ghost-token", auth.Principal{UserID: "carol", Role: "ghost"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ring.Add("roleless-token", auth.Principal{UserID: "dave"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	policy, err := auth.ParsePolicy([]byte(`{
		"policies": [
			{"role": "admin", "resources": ["*"]},
			{"role": "reader", "resources": ["search_entities", "get_status"]}
		]
	}`))
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	return &server{
		authn:   auth.NewAuthenticator(authEnabled, ring),
		policy:  policy,
		authLog: pslog.NoopLogger(),
	}
}

type nextRecorder struct {
	called    bool
	principal *auth.Principal
}

func (n *nextRecorder) handler() mcpsdk.MethodHandler {
	return func(ctx context.Context, _ string, _ mcpsdk.Request) (mcpsdk.Result, error) {
		n.called = true
		if p, ok := auth.PrincipalFrom(ctx); ok {
			n.principal = &p
		}
		return nil, nil
	}
}

func callRequest(tool, token string) *mcpsdk.CallToolRequest {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", token)
	}
	req := &mcpsdk.CallToolRequest{
		Params: &mcpsdk.CallToolParamsRaw{Name: tool},
	}
	req.Extra = &mcpsdk.RequestExtra{Header: header}
	return req
}

func listRequest(token string) *mcpsdk.ListToolsRequest {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", token)
	}
	req := &mcpsdk.ListToolsRequest{Params: &mcpsdk.ListToolsParams{}}
	req.Extra = &mcpsdk.RequestExtra{Header: header}
	return req
}

func TestAuthenticationStrictOnToolsCall(t *testing.T) {
	s := newGateServer(t, true)
	cases := []struct {
		name    string
		token   string
		wantErr bool
		user    string
	}{
		{name: "valid token", token: "Bearer admin-token", user: "alice"},
		{name: "missing header", token: "", wantErr: true},
		{name: "malformed header", token: "admin-token", wantErr: true},
		{name: "unknown token", token: "Bearer wrong", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &nextRecorder{}
			mw := s.authenticationMiddleware(rec.handler())
			_, err := mw(context.Background(), methodToolsCall, callRequest("get_status", tc.token))
			if tc.wantErr {
				if err != auth.ErrUnauthenticated {
					t.Fatalf("err = %v, want ErrUnauthenticated", err)
				}
				if rec.called {
					t.Fatalf("next handler ran despite rejection")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !rec.called || rec.principal == nil || rec.principal.UserID != tc.user {
				t.Fatalf("principal not attached: called=%v principal=%+v", rec.called, rec.principal)
			}
		})
	}
}

func TestAuthenticationRejectsHeaderlessTransport(t *testing.T) {
	s := newGateServer(t, true)
	rec := &nextRecorder{}
	mw := s.authenticationMiddleware(rec.handler())
	req := &mcpsdk.CallToolRequest{Params: &mcpsdk.CallToolParamsRaw{Name: "get_status"}}
	// No Extra at all: the transport never surfaced HTTP headers.
	if _, err := mw(context.Background(), methodToolsCall, req); err != auth.ErrUnauthenticated {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if rec.called {
		t.Fatal("next handler ran without credentials")
	}
}

func TestAuthenticationPermissiveOnDiscovery(t *testing.T) {
	s := newGateServer(t, true)
	for _, method := range []string{methodToolsList, methodInitialize} {
		for _, token := range []string{"", "Bearer invalid", "garbage"} {
			rec := &nextRecorder{}
			mw := s.authenticationMiddleware(rec.handler())
			if _, err := mw(context.Background(), method, listRequest(token)); err != nil {
				t.Fatalf("%s with token %q: %v", method, token, err)
			}
			if !rec.called {
				t.Fatalf("%s with token %q: next handler not invoked", method, token)
			}
			if rec.principal != nil {
				t.Fatalf("%s with token %q: rejected credential yielded principal %+v", method, token, rec.principal)
			}
		}
	}
	// A valid token still attaches the principal on the permissive path.
	rec := &nextRecorder{}
	mw := s.authenticationMiddleware(rec.handler())
	if _, err := mw(context.Background(), methodToolsList, listRequest("Bearer reader-token")); err != nil {
		t.Fatalf("tools/list with valid token: %v", err)
	}
	if rec.principal == nil || rec.principal.UserID != "bob" {
		t.Fatalf("valid token on discovery path lost principal: %+v", rec.principal)
	}
}

func TestAuthenticationIgnoresOtherMethods(t *testing.T) {
	s := newGateServer(t, true)
	rec := &nextRecorder{}
	mw := s.authenticationMiddleware(rec.handler())
	if _, err := mw(context.Background(), "ping", listRequest("garbage")); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !rec.called {
		t.Fatalf("ping blocked by authentication")
	}
}

func TestAuthenticationDisabled(t *testing.T) {
	s := newGateServer(t, false)
	rec := &nextRecorder{}
	mw := s.authenticationMiddleware(rec.handler())
	if _, err := mw(context.Background(), methodToolsCall, callRequest("get_status", "")); err != nil {
		t.Fatalf("disabled auth rejected call: %v", err)
	}
	if !rec.called || rec.principal != nil {
		t.Fatalf("disabled auth: called=%v principal=%+v", rec.called, rec.principal)
	}
}

func TestAuthorizationPolicy(t *testing.T) {
	s := newGateServer(t, true)
	cases := []struct {
		name      string
		principal *auth.Principal
		tool      string
		wantErr   bool
	}{
		{name: "wildcard role", principal: &auth.Principal{UserID: "alice", Role: "admin"}, tool: "delete_content_item"},
		{name: "explicit grant", principal: &auth.Principal{UserID: "bob", Role: "reader"}, tool: "search_entities"},
		{name: "explicit deny", principal: &auth.Principal{UserID: "bob", Role: "reader"}, tool: "delete_content_item", wantErr: true},
		{name: "unknown role", principal: &auth.Principal{UserID: "carol", Role: "ghost"}, tool: "get_status", wantErr: true},
		{name: "empty role", principal: &auth.Principal{UserID: "dave"}, tool: "get_status", wantErr: true},
		{name: "no principal", principal: nil, tool: "delete_content_item"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &nextRecorder{}
			mw := s.authorizationMiddleware(rec.handler())
			ctx := context.Background()
			if tc.principal != nil {
				ctx = auth.WithPrincipal(ctx, *tc.principal)
			}
			_, err := mw(ctx, methodToolsCall, callRequest(tc.tool, ""))
			if tc.wantErr {
				if err != auth.ErrForbidden {
					t.Fatalf("err = %v, want ErrForbidden", err)
				}
				if rec.called {
					t.Fatalf("next handler ran despite denial")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !rec.called {
				t.Fatalf("next handler not invoked")
			}
		})
	}
}

func TestAuthorizationFailsOpenOnUnextractableToolName(t *testing.T) {
	s := newGateServer(t, true)
	rec := &nextRecorder{}
	mw := s.authorizationMiddleware(rec.handler())
	ctx := auth.WithPrincipal(context.Background(), auth.Principal{UserID: "carol", Role: "ghost"})
	// tools/call carrying a request shape the gate cannot inspect.
	if _, err := mw(ctx, methodToolsCall, listRequest("")); err != nil {
		t.Fatalf("unextractable tool name must pass: %v", err)
	}
	if !rec.called {
		t.Fatalf("next handler not invoked")
	}
	// Same for a call request without params.
	rec = &nextRecorder{}
	mw = s.authorizationMiddleware(rec.handler())
	req := &mcpsdk.CallToolRequest{}
	req.Extra = &mcpsdk.RequestExtra{Header: http.Header{}}
	if _, err := mw(ctx, methodToolsCall, req); err != nil {
		t.Fatalf("nil params must pass: %v", err)
	}
	if !rec.called {
		t.Fatalf("next handler not invoked")
	}
}

func TestAuthorizationSkipsNonCallMethods(t *testing.T) {
	s := newGateServer(t, true)
	rec := &nextRecorder{}
	mw := s.authorizationMiddleware(rec.handler())
	ctx := auth.WithPrincipal(context.Background(), auth.Principal{UserID: "carol", Role: "ghost"})
	if _, err := mw(ctx, methodToolsList, listRequest("")); err != nil {
		t.Fatalf("tools/list must bypass authorization: %v", err)
	}
	if !rec.called {
		t.Fatalf("next handler not invoked")
	}
}

func TestGateChain(t *testing.T) {
	s := newGateServer(t, true)
	rec := &nextRecorder{}
	chained := s.authenticationMiddleware(s.authorizationMiddleware(rec.handler()))

	// Valid token, allowed tool.
	if _, err := chained(context.Background(), methodToolsCall, callRequest("search_entities", "Bearer reader-token")); err != nil {
		t.Fatalf("allowed call failed: %v", err)
	}
	if !rec.called {
		t.Fatalf("handler not reached")
	}
	// Valid token, forbidden tool.
	rec = &nextRecorder{}
	chained = s.authenticationMiddleware(s.authorizationMiddleware(rec.handler()))
	if _, err := chained(context.Background(), methodToolsCall, callRequest("clear_namespace", "Bearer reader-token")); err != auth.ErrForbidden {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	// No token: authentication rejects before authorization runs.
	rec = &nextRecorder{}
	chained = s.authenticationMiddleware(s.authorizationMiddleware(rec.handler()))
	if _, err := chained(context.Background(), methodToolsCall, callRequest("search_entities", "")); err != auth.ErrUnauthenticated {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}
