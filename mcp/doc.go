// Package mcp exposes the engramd memory operations as MCP tools over
// the streamable HTTP transport. Every inbound call passes through two
// receiving middlewares: bearer-token authentication against the
// keyring, then role-based authorization against the policy table.
// tools/call enforces both; tools/list and initialize authenticate
// permissively so discovery stays open to unauthenticated clients.
package mcp
