// Package api defines the wire types shared by the engramd server, its
// MCP tools, and the export/import tooling. Field comments double as the
// JSON contract documentation.
package api

import "time"

// ContentKind classifies how a content item's body is interpreted during
// entity extraction.
type ContentKind string

const (
	// KindText treats the body as free-form prose.
	KindText ContentKind = "text"
	// KindStructured treats the body as a JSON document.
	KindStructured ContentKind = "structured"
	// KindConversational treats the body as "speaker: line" turns.
	KindConversational ContentKind = "conversational"
)

// ParseContentKind maps a caller-supplied kind string to a ContentKind.
// Unknown values fall back to KindText; the second return reports whether
// the input was recognized so callers can log the fallback.
func ParseContentKind(s string) (ContentKind, bool) {
	switch ContentKind(s) {
	case KindText, KindStructured, KindConversational:
		return ContentKind(s), true
	case "":
		return KindText, true
	default:
		return KindText, false
	}
}

// ContentItem is an ingested piece of source content. Items are the
// provenance anchors of the graph: entities and relationships extracted
// from an item reference it by ID.
type ContentItem struct {
	// ID uniquely identifies the item across all namespaces.
	ID string `json:"id"`
	// Namespace scopes the item to one graph partition.
	Namespace string `json:"namespace"`
	// Name is the caller-supplied label for the item.
	Name string `json:"name"`
	// Body is the raw content, interpreted per Kind.
	Body string `json:"body"`
	// Kind classifies the body for extraction.
	Kind ContentKind `json:"kind"`
	// Description is optional free-form context for the item.
	Description string `json:"description,omitempty"`
	// CreatedAt is when the item was ingested.
	CreatedAt time.Time `json:"created_at"`
}

// Entity is a node in the knowledge graph.
type Entity struct {
	// ID uniquely identifies the entity across all namespaces.
	ID string `json:"id"`
	// Namespace scopes the entity to one graph partition.
	Namespace string `json:"namespace"`
	// Name is the canonical entity name.
	Name string `json:"name"`
	// Labels are optional classification tags.
	Labels []string `json:"labels,omitempty"`
	// Summary is a short description of the entity.
	Summary string `json:"summary,omitempty"`
	// Attributes carries provider-specific metadata. Embedding vectors
	// are stripped before results cross the API boundary.
	Attributes map[string]string `json:"attributes,omitempty"`
	// CreatedAt is when the entity was first extracted.
	CreatedAt time.Time `json:"created_at"`
}

// Relationship is an edge between two entities.
type Relationship struct {
	// ID uniquely identifies the relationship across all namespaces.
	ID string `json:"id"`
	// Namespace scopes the relationship to one graph partition.
	Namespace string `json:"namespace"`
	// SourceID and TargetID reference the connected entities.
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	// Name is the relationship predicate.
	Name string `json:"name"`
	// Fact is the sentence the relationship was extracted from.
	Fact string `json:"fact,omitempty"`
	// ContentID references the item the relationship was extracted from.
	ContentID string `json:"content_id,omitempty"`
	// CreatedAt is when the relationship was extracted.
	CreatedAt time.Time `json:"created_at"`
}

// QueueStats is a point-in-time snapshot of the ingestion queue.
type QueueStats struct {
	// QueuedTasks counts tasks waiting across all namespaces.
	QueuedTasks int `json:"queued_tasks"`
	// ActiveNamespaces counts namespaces with queued or running work.
	ActiveNamespaces int `json:"active_namespaces"`
	// InFlight counts namespaces with a task currently running.
	InFlight int `json:"in_flight"`
	// BusyWorkers counts pool workers currently executing a task.
	BusyWorkers int `json:"busy_workers"`
	// Workers is the configured pool size.
	Workers int `json:"workers"`
}

// Status is the get_status report.
type Status struct {
	// Version is the running server version.
	Version string `json:"version"`
	// InstanceID identifies this server process.
	InstanceID string `json:"instance_id"`
	// GraphReachable reports backing-store connectivity.
	GraphReachable bool `json:"graph_reachable"`
	// GraphError carries the connectivity failure when unreachable.
	GraphError string `json:"graph_error,omitempty"`
	// Namespaces lists the namespaces known to the graph.
	Namespaces []string `json:"namespaces,omitempty"`
	// Queue is the ingestion queue snapshot.
	Queue QueueStats `json:"queue"`
	// Uptime is a human-readable process uptime.
	Uptime string `json:"uptime"`
	// MemoryRSS is the human-readable resident set size.
	MemoryRSS string `json:"memory_rss,omitempty"`
}

// GraphExport is the export file format produced by the export command
// and consumed by import.
type GraphExport struct {
	// Namespace names the exported partition.
	Namespace string `json:"namespace"`
	// ExportedAt is when the export was taken.
	ExportedAt time.Time `json:"exported_at"`
	Content    []ContentItem  `json:"content"`
	Entities   []Entity       `json:"entities"`
	Relations  []Relationship `json:"relationships"`
	// Mentions maps content item IDs to the entity IDs extracted from
	// them, preserving orphan tracking across an export/import cycle.
	Mentions map[string][]string `json:"mentions,omitempty"`
}
