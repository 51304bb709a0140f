// Package ingest implements the asynchronous ingestion pipeline: a
// namespace-partitioned task queue feeding a bounded worker pool.
// Tasks within a namespace run strictly in submission order with at
// most one in flight; independent namespaces proceed in parallel up to
// the pool size.
package ingest

import (
	"time"

	"pkt.systems/engramd/api"
)

// Task is one queued ingestion request.
type Task struct {
	// ID is assigned at submission and becomes the content item id.
	ID string
	// Namespace selects the ordering lane.
	Namespace string
	// Name labels the content item.
	Name string
	// Body is the raw content.
	Body string
	// Kind classifies the body for extraction.
	Kind api.ContentKind
	// Description is optional caller-supplied context.
	Description string
	// EnqueuedAt is when the task entered the queue.
	EnqueuedAt time.Time

	// seq orders tasks globally; assigned by the queue.
	seq uint64
}
