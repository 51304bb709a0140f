package redistore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pkt.systems/engramd/api"
	"pkt.systems/engramd/internal/graph"
)

// Apply writes one ingestion batch. Entities deduplicate by canonical
// name within the namespace; relationship endpoints are remapped to the
// surviving entity ids. The queue guarantees a single in-flight task
// per namespace, so the read-then-write sequence here never races
// against another writer in the same namespace.
func (s *Store) Apply(ctx context.Context, batch graph.Batch) error {
	item := batch.Content
	if item.ID == "" || item.Namespace == "" {
		return fmt.Errorf("apply: content id and namespace required")
	}
	ns := item.Namespace

	// Resolve entity ids against the existing name index.
	remap := make(map[string]string, len(batch.Entities))
	fresh := make([]api.Entity, 0, len(batch.Entities))
	for _, ent := range batch.Entities {
		canonical := canonicalName(ent.Name)
		if canonical == "" {
			continue
		}
		existing, err := s.client.Get(ctx, entityNameKey(ns, canonical)).Result()
		switch {
		case err == nil:
			remap[ent.ID] = existing
		case err == redis.Nil:
			remap[ent.ID] = ent.ID
			fresh = append(fresh, ent)
		default:
			return fmt.Errorf("apply: resolve entity %q: %w", ent.Name, err)
		}
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, nsSetKey(), ns)

	pipe.HSet(ctx, contentKey(ns, item.ID), contentFields(item))
	pipe.ZAdd(ctx, contentIndexKey(ns), redis.Z{Score: float64(item.CreatedAt.UnixNano()), Member: item.ID})
	pipe.HSet(ctx, contentLocKey(), item.ID, ns)

	for _, ent := range fresh {
		canonical := canonicalName(ent.Name)
		fields, err := entityFields(ent)
		if err != nil {
			return fmt.Errorf("apply: encode entity %q: %w", ent.Name, err)
		}
		pipe.HSet(ctx, entityKey(ns, ent.ID), fields)
		pipe.ZAdd(ctx, entityIndexKey(ns), redis.Z{Score: float64(ent.CreatedAt.UnixNano()), Member: ent.ID})
		pipe.Set(ctx, entityNameKey(ns, canonical), ent.ID, 0)
		for _, tok := range tokenize(ent.Name + " " + ent.Summary) {
			pipe.SAdd(ctx, entityTokKey(ns, tok), ent.ID)
		}
	}
	for _, ent := range batch.Entities {
		id, ok := remap[ent.ID]
		if !ok {
			continue
		}
		pipe.SAdd(ctx, mentionsKey(ns, id), item.ID)
		pipe.SAdd(ctx, contentEntsKey(ns, item.ID), id)
	}

	for _, rel := range batch.Relationships {
		src, ok := remap[rel.SourceID]
		if !ok {
			src = rel.SourceID
		}
		dst, ok := remap[rel.TargetID]
		if !ok {
			dst = rel.TargetID
		}
		rel.SourceID, rel.TargetID = src, dst
		rel.ContentID = item.ID
		pipe.HSet(ctx, relKey(ns, rel.ID), relFields(rel))
		pipe.ZAdd(ctx, relIndexKey(ns), redis.Z{Score: float64(rel.CreatedAt.UnixNano()), Member: rel.ID})
		pipe.SAdd(ctx, relByContentKey(ns, item.ID), rel.ID)
		pipe.HSet(ctx, relLocKey(), rel.ID, ns)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	s.logger.Debug("graph.apply.committed",
		"namespace", ns,
		"content_id", item.ID,
		"entities", len(batch.Entities),
		"relationships", len(batch.Relationships))
	return nil
}

func contentFields(item api.ContentItem) map[string]any {
	return map[string]any{
		"name":        item.Name,
		"body":        item.Body,
		"kind":        string(item.Kind),
		"description": item.Description,
		"created_at":  item.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func entityFields(ent api.Entity) (map[string]any, error) {
	labels, err := json.Marshal(ent.Labels)
	if err != nil {
		return nil, err
	}
	attrs, err := json.Marshal(ent.Attributes)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"name":       ent.Name,
		"labels":     string(labels),
		"summary":    ent.Summary,
		"attrs":      string(attrs),
		"created_at": ent.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func relFields(rel api.Relationship) map[string]any {
	return map[string]any{
		"source":     rel.SourceID,
		"target":     rel.TargetID,
		"name":       rel.Name,
		"fact":       rel.Fact,
		"content_id": rel.ContentID,
		"created_at": rel.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
