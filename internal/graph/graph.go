// Package graph defines the knowledge-graph engine contract. Engines
// persist content items, extracted entities, and relationships,
// partitioned by namespace. The reference implementation lives in the
// redistore subpackage.
package graph

import (
	"context"
	"errors"

	"pkt.systems/engramd/api"
)

// ErrNotFound is returned when a lookup or delete names an id the
// engine does not hold.
var ErrNotFound = errors.New("not found")

// Batch is one ingestion write: the content item plus everything
// extracted from it. Engines apply the batch atomically where the
// backing store allows.
type Batch struct {
	Content       api.ContentItem
	Entities      []api.Entity
	Relationships []api.Relationship
}

// Query selects graph records. An empty Namespaces slice means all
// known namespaces. Limit caps the result count; engines apply a
// default when it is zero or negative. EntityType narrows entity
// searches to entities carrying that label; CenterEntityID narrows
// relationship searches to edges touching that entity. Both are
// ignored by the operations they do not apply to.
type Query struct {
	Text           string
	Namespaces     []string
	Limit          int
	EntityType     string
	CenterEntityID string
}

// DefaultQueryLimit applies when a query does not cap its results.
const DefaultQueryLimit = 20

// Engine is the persistence contract for the knowledge graph.
type Engine interface {
	// Apply writes one ingestion batch.
	Apply(ctx context.Context, batch Batch) error
	// SearchEntities returns entities matching the query text.
	SearchEntities(ctx context.Context, q Query) ([]api.Entity, error)
	// SearchRelationships returns relationships whose name or fact
	// matches the query text.
	SearchRelationships(ctx context.Context, q Query) ([]api.Relationship, error)
	// ListContent returns content items, newest first.
	ListContent(ctx context.Context, q Query) ([]api.ContentItem, error)
	// GetRelationship fetches one relationship by id across namespaces.
	GetRelationship(ctx context.Context, id string) (api.Relationship, error)
	// DeleteContent removes a content item and any entities that are no
	// longer referenced by remaining content.
	DeleteContent(ctx context.Context, id string) error
	// DeleteRelationship removes one relationship by id.
	DeleteRelationship(ctx context.Context, id string) error
	// ClearNamespaces removes every record in the given namespaces. An
	// empty slice clears the whole graph.
	ClearNamespaces(ctx context.Context, namespaces []string) error
	// ListNamespaces returns the namespaces holding data, sorted.
	ListNamespaces(ctx context.Context) ([]string, error)
	// Ping verifies backing-store connectivity.
	Ping(ctx context.Context) error
	// Close releases engine resources.
	Close() error
}
