// Package extract turns ingested content into graph candidates. The
// Extractor interface is the seam for provider-backed implementations;
// Heuristic is the built-in extractor that needs no external service.
package extract

import (
	"context"

	"pkt.systems/engramd/api"
)

// Extraction is the set of graph candidates produced from one content
// item. Entity ids are candidates only; the graph engine deduplicates
// by name and remaps relationship endpoints accordingly.
type Extraction struct {
	Entities      []api.Entity
	Relationships []api.Relationship
}

// Extractor produces graph candidates from a content item.
type Extractor interface {
	Extract(ctx context.Context, item api.ContentItem) (Extraction, error)
}
