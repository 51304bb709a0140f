package redistore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pkt.systems/engramd/api"
)

// Export snapshots one namespace into the portable export format. The
// snapshot carries everything needed to rebuild the namespace verbatim,
// including the content-to-entity mention links the orphan cleanup in
// DeleteContent depends on.
func (s *Store) Export(ctx context.Context, ns string) (api.GraphExport, error) {
	out := api.GraphExport{
		Namespace:  ns,
		ExportedAt: time.Now().UTC(),
		Mentions:   map[string][]string{},
	}

	contentIDs, err := s.client.ZRange(ctx, contentIndexKey(ns), 0, -1).Result()
	if err != nil {
		return api.GraphExport{}, fmt.Errorf("export: content index: %w", err)
	}
	for _, id := range contentIDs {
		item, err := s.readContent(ctx, ns, id)
		if err != nil {
			return api.GraphExport{}, fmt.Errorf("export: content %s: %w", id, err)
		}
		out.Content = append(out.Content, item)
		ents, err := s.client.SMembers(ctx, contentEntsKey(ns, id)).Result()
		if err != nil {
			return api.GraphExport{}, fmt.Errorf("export: content entities %s: %w", id, err)
		}
		if len(ents) > 0 {
			out.Mentions[id] = ents
		}
	}

	entityIDs, err := s.client.ZRange(ctx, entityIndexKey(ns), 0, -1).Result()
	if err != nil {
		return api.GraphExport{}, fmt.Errorf("export: entity index: %w", err)
	}
	for _, id := range entityIDs {
		ent, err := s.readEntity(ctx, ns, id)
		if err != nil {
			return api.GraphExport{}, fmt.Errorf("export: entity %s: %w", id, err)
		}
		out.Entities = append(out.Entities, ent)
	}

	relIDs, err := s.client.ZRange(ctx, relIndexKey(ns), 0, -1).Result()
	if err != nil {
		return api.GraphExport{}, fmt.Errorf("export: relationship index: %w", err)
	}
	for _, id := range relIDs {
		rel, err := s.readRelationship(ctx, ns, id)
		if err != nil {
			return api.GraphExport{}, fmt.Errorf("export: relationship %s: %w", id, err)
		}
		out.Relations = append(out.Relations, rel)
	}

	s.logger.Info("graph.export.completed",
		"namespace", ns,
		"content", len(out.Content),
		"entities", len(out.Entities),
		"relationships", len(out.Relations))
	return out, nil
}

// Import rebuilds a namespace from an export snapshot. Derived indexes
// (name dedupe keys, search token sets, mention sets) are reconstructed
// from the snapshot rather than trusted from the source instance.
func (s *Store) Import(ctx context.Context, snapshot api.GraphExport) error {
	ns := snapshot.Namespace
	if ns == "" {
		return fmt.Errorf("import: snapshot namespace required")
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, nsSetKey(), ns)

	for _, item := range snapshot.Content {
		if item.ID == "" {
			return fmt.Errorf("import: content item without id")
		}
		item.Namespace = ns
		pipe.HSet(ctx, contentKey(ns, item.ID), contentFields(item))
		pipe.ZAdd(ctx, contentIndexKey(ns), redis.Z{Score: float64(item.CreatedAt.UnixNano()), Member: item.ID})
		pipe.HSet(ctx, contentLocKey(), item.ID, ns)
	}

	for _, ent := range snapshot.Entities {
		if ent.ID == "" {
			return fmt.Errorf("import: entity without id")
		}
		fields, err := entityFields(ent)
		if err != nil {
			return fmt.Errorf("import: encode entity %q: %w", ent.Name, err)
		}
		pipe.HSet(ctx, entityKey(ns, ent.ID), fields)
		pipe.ZAdd(ctx, entityIndexKey(ns), redis.Z{Score: float64(ent.CreatedAt.UnixNano()), Member: ent.ID})
		if canonical := canonicalName(ent.Name); canonical != "" {
			pipe.Set(ctx, entityNameKey(ns, canonical), ent.ID, 0)
		}
		for _, tok := range tokenize(ent.Name + " " + ent.Summary) {
			pipe.SAdd(ctx, entityTokKey(ns, tok), ent.ID)
		}
	}

	for contentID, entIDs := range snapshot.Mentions {
		for _, entID := range entIDs {
			pipe.SAdd(ctx, contentEntsKey(ns, contentID), entID)
			pipe.SAdd(ctx, mentionsKey(ns, entID), contentID)
		}
	}

	for _, rel := range snapshot.Relations {
		if rel.ID == "" {
			return fmt.Errorf("import: relationship without id")
		}
		pipe.HSet(ctx, relKey(ns, rel.ID), relFields(rel))
		pipe.ZAdd(ctx, relIndexKey(ns), redis.Z{Score: float64(rel.CreatedAt.UnixNano()), Member: rel.ID})
		if rel.ContentID != "" {
			pipe.SAdd(ctx, relByContentKey(ns, rel.ContentID), rel.ID)
		}
		pipe.HSet(ctx, relLocKey(), rel.ID, ns)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	s.logger.Info("graph.import.completed",
		"namespace", ns,
		"content", len(snapshot.Content),
		"entities", len(snapshot.Entities),
		"relationships", len(snapshot.Relations))
	return nil
}
