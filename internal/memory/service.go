// Package memory is the operation layer behind the MCP tools. Service
// owns no transport concerns; it validates arguments, talks to the
// graph engine, and feeds the ingestion queue. All collaborators are
// injected so tests can swap any of them.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"pkt.systems/engramd/api"
	"pkt.systems/engramd/internal/extract"
	"pkt.systems/engramd/internal/graph"
	"pkt.systems/engramd/internal/ingest"
	"pkt.systems/engramd/internal/logfields"
	"pkt.systems/engramd/namespaces"
	"pkt.systems/pslog"
)

// Config assembles a Service.
type Config struct {
	Engine           graph.Engine
	Extractor        extract.Extractor
	Queue            *ingest.Queue
	DefaultNamespace string
	Logger           pslog.Logger
}

// Service implements the memory operations.
type Service struct {
	engine     graph.Engine
	extractor  extract.Extractor
	queue      *ingest.Queue
	pool       *ingest.Pool
	defaultNS  string
	logger     pslog.Logger
	instanceID string
	startedAt  time.Time
}

// New validates cfg and returns the service.
func New(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("memory: engine required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("memory: extractor required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("memory: queue required")
	}
	defaultNS, err := namespaces.Normalize(cfg.DefaultNamespace, namespaces.Default)
	if err != nil {
		return nil, fmt.Errorf("memory: default namespace: %w", err)
	}
	return &Service{
		engine:     cfg.Engine,
		extractor:  cfg.Extractor,
		queue:      cfg.Queue,
		defaultNS:  defaultNS,
		logger:     logfields.WithSubsystem(cfg.Logger, "memory"),
		instanceID: uuid.NewString(),
		startedAt:  time.Now(),
	}, nil
}

// SubmitRequest is one add_content submission. ID is optional; when
// set the content item is stored under that id instead of a generated
// one, so callers can make resubmissions idempotent.
type SubmitRequest struct {
	ID          string
	Namespace   string
	Name        string
	Body        string
	Kind        string
	Description string
}

// SubmitContent validates the request and enqueues an ingestion task.
// It returns the task id, which doubles as the content item id once the
// task lands. An unrecognized kind falls back to text with a warning
// rather than failing the submission.
func (s *Service) SubmitContent(_ context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.Name) == "" {
		return "", fmt.Errorf("name required")
	}
	if strings.TrimSpace(req.Body) == "" {
		return "", fmt.Errorf("content required")
	}
	ns, err := namespaces.Normalize(req.Namespace, s.defaultNS)
	if err != nil {
		return "", err
	}
	kind, known := api.ParseContentKind(req.Kind)
	if !known {
		s.logger.Warn("memory.submit.kind_fallback",
			"namespace", ns,
			"requested_kind", req.Kind,
			"kind", string(kind))
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = xid.New().String()
	}
	s.queue.Enqueue(ingest.Task{
		ID:          id,
		Namespace:   ns,
		Name:        strings.TrimSpace(req.Name),
		Body:        req.Body,
		Kind:        kind,
		Description: strings.TrimSpace(req.Description),
		EnqueuedAt:  time.Now(),
	})
	return id, nil
}

// IngestTask is the worker entry point: extract graph candidates from
// the task body and apply them to the engine.
func (s *Service) IngestTask(ctx context.Context, task ingest.Task) error {
	item := api.ContentItem{
		ID:          task.ID,
		Namespace:   task.Namespace,
		Name:        task.Name,
		Body:        task.Body,
		Kind:        task.Kind,
		Description: task.Description,
		CreatedAt:   time.Now().UTC(),
	}
	extraction, err := s.extractor.Extract(ctx, item)
	if err != nil {
		return fmt.Errorf("extract %s: %w", task.ID, err)
	}
	batch := graph.Batch{
		Content:       item,
		Entities:      extraction.Entities,
		Relationships: extraction.Relationships,
	}
	if err := s.engine.Apply(ctx, batch); err != nil {
		return fmt.Errorf("apply %s: %w", task.ID, err)
	}
	return nil
}

func (s *Service) query(text string, nss []string, limit int) (graph.Query, error) {
	normalized, err := namespaces.NormalizeAll(nss, s.defaultNS)
	if err != nil {
		return graph.Query{}, err
	}
	return graph.Query{Text: text, Namespaces: normalized, Limit: limit}, nil
}

// EntitySearch selects entities. An empty Namespaces slice searches
// everything; a non-empty EntityType keeps only entities carrying that
// label.
type EntitySearch struct {
	Text       string
	Namespaces []string
	Limit      int
	EntityType string
}

// SearchEntities runs an entity search.
func (s *Service) SearchEntities(ctx context.Context, req EntitySearch) ([]api.Entity, error) {
	q, err := s.query(req.Text, req.Namespaces, req.Limit)
	if err != nil {
		return nil, err
	}
	q.EntityType = strings.TrimSpace(req.EntityType)
	return s.engine.SearchEntities(ctx, q)
}

// RelationshipSearch selects relationships. A non-empty CenterEntityID
// keeps only edges with that entity as source or target.
type RelationshipSearch struct {
	Text           string
	Namespaces     []string
	Limit          int
	CenterEntityID string
}

// SearchRelationships runs a relationship search.
func (s *Service) SearchRelationships(ctx context.Context, req RelationshipSearch) ([]api.Relationship, error) {
	q, err := s.query(req.Text, req.Namespaces, req.Limit)
	if err != nil {
		return nil, err
	}
	q.CenterEntityID = strings.TrimSpace(req.CenterEntityID)
	return s.engine.SearchRelationships(ctx, q)
}

// ContentItems lists ingested content, newest first.
func (s *Service) ContentItems(ctx context.Context, nss []string, limit int) ([]api.ContentItem, error) {
	q, err := s.query("", nss, limit)
	if err != nil {
		return nil, err
	}
	return s.engine.ListContent(ctx, q)
}

// Relationship fetches one relationship by id.
func (s *Service) Relationship(ctx context.Context, id string) (api.Relationship, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return api.Relationship{}, fmt.Errorf("relationship id required")
	}
	return s.engine.GetRelationship(ctx, id)
}

// DeleteContentItem removes a content item and its orphaned entities.
func (s *Service) DeleteContentItem(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("content id required")
	}
	return s.engine.DeleteContent(ctx, id)
}

// DeleteRelationship removes one relationship by id.
func (s *Service) DeleteRelationship(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("relationship id required")
	}
	return s.engine.DeleteRelationship(ctx, id)
}

// ClearNamespaces wipes the given namespaces and returns the set it
// cleared. An empty slice clears the default namespace only; wiping the
// whole graph requires naming every namespace explicitly.
func (s *Service) ClearNamespaces(ctx context.Context, nss []string) ([]string, error) {
	normalized, err := namespaces.NormalizeAll(nss, s.defaultNS)
	if err != nil {
		return nil, err
	}
	if len(normalized) == 0 {
		normalized = []string{s.defaultNS}
	}
	if err := s.engine.ClearNamespaces(ctx, normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// Namespaces lists the namespaces known to the graph.
func (s *Service) Namespaces(ctx context.Context) ([]string, error) {
	return s.engine.ListNamespaces(ctx)
}

// DefaultNamespace returns the configured fallback namespace.
func (s *Service) DefaultNamespace() string {
	return s.defaultNS
}
