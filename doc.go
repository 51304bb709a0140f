// Package engramd assembles the engramd daemon: an MCP server exposing
// a namespace-partitioned knowledge graph with asynchronous ingestion.
// The root package owns configuration and wiring; the moving parts live
// in internal/ (auth, graph, ingest, memory) and mcp/.
package engramd
