package redistore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pkt.systems/engramd/internal/graph"
)

// DeleteContent removes a content item, the relationships extracted
// from it, and any entities left without a remaining mention.
func (s *Store) DeleteContent(ctx context.Context, id string) error {
	ns, err := s.client.HGet(ctx, contentLocKey(), id).Result()
	if err == redis.Nil {
		return graph.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locate content: %w", err)
	}

	relIDs, err := s.client.SMembers(ctx, relByContentKey(ns, id)).Result()
	if err != nil {
		return fmt.Errorf("delete content %s: relationships: %w", id, err)
	}
	entIDs, err := s.client.SMembers(ctx, contentEntsKey(ns, id)).Result()
	if err != nil {
		return fmt.Errorf("delete content %s: entities: %w", id, err)
	}

	// An entity is orphaned when this item is its only remaining mention.
	orphans := make([]string, 0, len(entIDs))
	survivors := make([]string, 0, len(entIDs))
	for _, entID := range entIDs {
		mentions, err := s.client.SMembers(ctx, mentionsKey(ns, entID)).Result()
		if err != nil {
			return fmt.Errorf("delete content %s: mentions of %s: %w", id, entID, err)
		}
		orphaned := true
		for _, m := range mentions {
			if m != id {
				orphaned = false
				break
			}
		}
		if orphaned {
			orphans = append(orphans, entID)
		} else {
			survivors = append(survivors, entID)
		}
	}

	pipe := s.client.TxPipeline()
	for _, relID := range relIDs {
		pipe.Del(ctx, relKey(ns, relID))
		pipe.ZRem(ctx, relIndexKey(ns), relID)
		pipe.HDel(ctx, relLocKey(), relID)
	}
	pipe.Del(ctx, relByContentKey(ns, id))
	for _, entID := range orphans {
		ent, err := s.readEntity(ctx, ns, entID)
		if err == nil {
			canonical := canonicalName(ent.Name)
			pipe.Del(ctx, entityNameKey(ns, canonical))
			for _, tok := range tokenize(ent.Name + " " + ent.Summary) {
				pipe.SRem(ctx, entityTokKey(ns, tok), entID)
			}
		}
		pipe.Del(ctx, entityKey(ns, entID))
		pipe.ZRem(ctx, entityIndexKey(ns), entID)
		pipe.Del(ctx, mentionsKey(ns, entID))
	}
	for _, entID := range survivors {
		pipe.SRem(ctx, mentionsKey(ns, entID), id)
	}
	pipe.Del(ctx, contentEntsKey(ns, id))
	pipe.Del(ctx, contentKey(ns, id))
	pipe.ZRem(ctx, contentIndexKey(ns), id)
	pipe.HDel(ctx, contentLocKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete content %s: %w", id, err)
	}
	s.logger.Info("graph.content.deleted",
		"namespace", ns,
		"content_id", id,
		"relationships_removed", len(relIDs),
		"entities_removed", len(orphans))
	return nil
}

// DeleteRelationship removes one relationship by id.
func (s *Store) DeleteRelationship(ctx context.Context, id string) error {
	ns, err := s.client.HGet(ctx, relLocKey(), id).Result()
	if err == redis.Nil {
		return graph.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locate relationship: %w", err)
	}
	rel, err := s.readRelationship(ctx, ns, id)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, relKey(ns, id))
	pipe.ZRem(ctx, relIndexKey(ns), id)
	if rel.ContentID != "" {
		pipe.SRem(ctx, relByContentKey(ns, rel.ContentID), id)
	}
	pipe.HDel(ctx, relLocKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete relationship %s: %w", id, err)
	}
	s.logger.Info("graph.relationship.deleted", "namespace", ns, "relationship_id", id)
	return nil
}

// ClearNamespaces removes every record in the given namespaces. An
// empty slice clears all known namespaces.
func (s *Store) ClearNamespaces(ctx context.Context, namespaces []string) error {
	if len(namespaces) == 0 {
		all, err := s.ListNamespaces(ctx)
		if err != nil {
			return err
		}
		namespaces = all
	}
	for _, ns := range namespaces {
		if err := s.clearNamespace(ctx, ns); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) clearNamespace(ctx context.Context, ns string) error {
	contentIDs, err := s.client.ZRange(ctx, contentIndexKey(ns), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("clear %s: content index: %w", ns, err)
	}
	relIDs, err := s.client.ZRange(ctx, relIndexKey(ns), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("clear %s: relationship index: %w", ns, err)
	}

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, nsPattern(ns), 256).Result()
		if err != nil {
			return fmt.Errorf("clear %s: scan: %w", ns, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("clear %s: delete keys: %w", ns, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	pipe := s.client.TxPipeline()
	if len(contentIDs) > 0 {
		pipe.HDel(ctx, contentLocKey(), contentIDs...)
	}
	if len(relIDs) > 0 {
		pipe.HDel(ctx, relLocKey(), relIDs...)
	}
	pipe.SRem(ctx, nsSetKey(), ns)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear %s: %w", ns, err)
	}
	s.logger.Info("graph.namespace.cleared",
		"namespace", ns,
		"content_removed", len(contentIDs),
		"relationships_removed", len(relIDs))
	return nil
}
