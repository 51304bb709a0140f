package mcp

import (
	"context"
	"net/http"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/engramd/internal/auth"
)

const (
	methodInitialize = "initialize"
	methodToolsList  = "tools/list"
	methodToolsCall  = "tools/call"
)

// tracingMiddleware wraps every inbound MCP request in a server span.
// With no tracer provider configured the spans are no-ops.
func (s *server) tracingMiddleware() mcpsdk.Middleware {
	tracer := otel.Tracer("pkt.systems/engramd/mcp")
	return func(next mcpsdk.MethodHandler) mcpsdk.MethodHandler {
		return func(ctx context.Context, method string, req mcpsdk.Request) (mcpsdk.Result, error) {
			ctx, span := tracer.Start(ctx, "mcp."+method, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
			if tool := toolCallName(req); tool != "" {
				span.SetAttributes(attribute.String("mcp.tool", tool))
			}
			res, err := next(ctx, method, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return res, err
		}
	}
}

// authenticationMiddleware resolves bearer credentials for the three
// protocol surfaces. tools/call is strict: a rejected credential aborts
// the call. tools/list and initialize are permissive: a rejection is
// logged and the request proceeds without a principal, keeping
// discovery and the handshake open. All other methods pass untouched.
func (s *server) authenticationMiddleware(next mcpsdk.MethodHandler) mcpsdk.MethodHandler {
	return func(ctx context.Context, method string, req mcpsdk.Request) (mcpsdk.Result, error) {
		switch method {
		case methodInitialize, methodToolsList, methodToolsCall:
		default:
			return next(ctx, method, req)
		}
		res := s.authn.Authenticate(requestHeader(req))
		switch res.State {
		case auth.StateNotApplicable:
			return next(ctx, method, req)
		case auth.StateAuthenticated:
			s.authLog.Debug("mcp.auth.accepted",
				"method", method,
				"user_id", res.Principal.UserID,
				"role", res.Principal.Role,
				"token_prefix", res.TokenPrefix)
			return next(auth.WithPrincipal(ctx, res.Principal), method, req)
		}
		if method == methodToolsCall {
			// The reason stays server-side; callers get the generic error.
			s.authLog.Warn("mcp.auth.rejected",
				"method", method,
				"reason", res.Reason,
				"token_prefix", res.TokenPrefix)
			return nil, auth.ErrUnauthenticated
		}
		s.authLog.Debug("mcp.auth.permissive_pass",
			"method", method,
			"reason", res.Reason,
			"token_prefix", res.TokenPrefix)
		return next(ctx, method, req)
	}
}

// authorizationMiddleware checks the policy table on tools/call. Calls
// without a principal pass through: either authentication is disabled
// or the method was reached permissively, and the policy binds roles,
// not anonymous traffic. An unextractable tool name also passes, since
// denying it would turn a decoding quirk into a lockout.
func (s *server) authorizationMiddleware(next mcpsdk.MethodHandler) mcpsdk.MethodHandler {
	return func(ctx context.Context, method string, req mcpsdk.Request) (mcpsdk.Result, error) {
		if method != methodToolsCall {
			return next(ctx, method, req)
		}
		principal, ok := auth.PrincipalFrom(ctx)
		if !ok {
			return next(ctx, method, req)
		}
		tool := toolCallName(req)
		if tool == "" {
			s.authLog.Debug("mcp.authz.tool_name_unextractable", "user_id", principal.UserID)
			return next(ctx, method, req)
		}
		if !s.policy.Allowed(principal.Role, tool) {
			s.authLog.Warn("mcp.authz.denied",
				"user_id", principal.UserID,
				"role", principal.Role,
				"role_known", s.policy.KnownRole(principal.Role),
				"tool", tool)
			return nil, auth.ErrForbidden
		}
		s.authLog.Debug("mcp.authz.allowed",
			"user_id", principal.UserID,
			"role", principal.Role,
			"tool", tool)
		return next(ctx, method, req)
	}
}

func requestHeader(req mcpsdk.Request) http.Header {
	if req == nil {
		return nil
	}
	extra := req.GetExtra()
	if extra == nil {
		return nil
	}
	return extra.Header
}

func toolCallName(req mcpsdk.Request) string {
	call, ok := req.(*mcpsdk.CallToolRequest)
	if !ok || call == nil || call.Params == nil {
		return ""
	}
	return strings.TrimSpace(call.Params.Name)
}
