package redistore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pkt.systems/engramd/api"
	"pkt.systems/engramd/internal/graph"
)

func (s *Store) resolveNamespaces(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	return s.ListNamespaces(ctx)
}

func queryLimit(q graph.Query) int {
	if q.Limit > 0 {
		return q.Limit
	}
	return graph.DefaultQueryLimit
}

// SearchEntities intersects the per-token entity index. An empty query
// text returns the most recently created entities instead. A non-empty
// EntityType keeps only entities carrying that label.
func (s *Store) SearchEntities(ctx context.Context, q graph.Query) ([]api.Entity, error) {
	nss, err := s.resolveNamespaces(ctx, q.Namespaces)
	if err != nil {
		return nil, err
	}
	limit := queryLimit(q)
	tokens := tokenize(q.Text)
	var out []api.Entity
	for _, ns := range nss {
		var ids []string
		if len(tokens) == 0 {
			ids, err = s.client.ZRevRange(ctx, entityIndexKey(ns), 0, int64(limit-1)).Result()
		} else {
			keys := make([]string, len(tokens))
			for i, tok := range tokens {
				keys[i] = entityTokKey(ns, tok)
			}
			ids, err = s.client.SInter(ctx, keys...).Result()
		}
		if err != nil {
			return nil, fmt.Errorf("search entities in %s: %w", ns, err)
		}
		for _, id := range ids {
			ent, err := s.readEntity(ctx, ns, id)
			if err == graph.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, err
			}
			if !hasLabel(ent.Labels, q.EntityType) {
				continue
			}
			out = append(out, ent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchRelationships scans the recent relationship window per
// namespace and keeps edges whose name or fact contains every query
// token. A non-empty CenterEntityID keeps only edges with that entity
// as source or target. The window bounds scan cost on large
// namespaces.
func (s *Store) SearchRelationships(ctx context.Context, q graph.Query) ([]api.Relationship, error) {
	nss, err := s.resolveNamespaces(ctx, q.Namespaces)
	if err != nil {
		return nil, err
	}
	limit := queryLimit(q)
	tokens := tokenize(q.Text)
	var out []api.Relationship
	for _, ns := range nss {
		ids, err := s.client.ZRevRange(ctx, relIndexKey(ns), 0, relScanWindow-1).Result()
		if err != nil {
			return nil, fmt.Errorf("search relationships in %s: %w", ns, err)
		}
		for _, id := range ids {
			rel, err := s.readRelationship(ctx, ns, id)
			if err == graph.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, err
			}
			if !matchesTokens(rel.Name+" "+rel.Fact, tokens) {
				continue
			}
			if q.CenterEntityID != "" && rel.SourceID != q.CenterEntityID && rel.TargetID != q.CenterEntityID {
				continue
			}
			out = append(out, rel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListContent returns content items newest first.
func (s *Store) ListContent(ctx context.Context, q graph.Query) ([]api.ContentItem, error) {
	nss, err := s.resolveNamespaces(ctx, q.Namespaces)
	if err != nil {
		return nil, err
	}
	limit := queryLimit(q)
	var out []api.ContentItem
	for _, ns := range nss {
		ids, err := s.client.ZRevRange(ctx, contentIndexKey(ns), 0, int64(limit-1)).Result()
		if err != nil {
			return nil, fmt.Errorf("list content in %s: %w", ns, err)
		}
		for _, id := range ids {
			item, err := s.readContent(ctx, ns, id)
			if err == graph.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetRelationship resolves id through the global locator.
func (s *Store) GetRelationship(ctx context.Context, id string) (api.Relationship, error) {
	ns, err := s.client.HGet(ctx, relLocKey(), id).Result()
	if err == redis.Nil {
		return api.Relationship{}, graph.ErrNotFound
	}
	if err != nil {
		return api.Relationship{}, fmt.Errorf("locate relationship: %w", err)
	}
	return s.readRelationship(ctx, ns, id)
}

func hasLabel(labels []string, want string) bool {
	if want == "" {
		return true
	}
	for _, l := range labels {
		if strings.EqualFold(l, want) {
			return true
		}
	}
	return false
}

func matchesTokens(text string, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	text = strings.ToLower(text)
	for _, tok := range tokens {
		if !strings.Contains(text, tok) {
			return false
		}
	}
	return true
}

func (s *Store) readContent(ctx context.Context, ns, id string) (api.ContentItem, error) {
	fields, err := s.client.HGetAll(ctx, contentKey(ns, id)).Result()
	if err != nil {
		return api.ContentItem{}, fmt.Errorf("read content %s: %w", id, err)
	}
	if len(fields) == 0 {
		return api.ContentItem{}, graph.ErrNotFound
	}
	kind, _ := api.ParseContentKind(fields["kind"])
	return api.ContentItem{
		ID:          id,
		Namespace:   ns,
		Name:        fields["name"],
		Body:        fields["body"],
		Kind:        kind,
		Description: fields["description"],
		CreatedAt:   parseTime(fields["created_at"]),
	}, nil
}

func (s *Store) readEntity(ctx context.Context, ns, id string) (api.Entity, error) {
	fields, err := s.client.HGetAll(ctx, entityKey(ns, id)).Result()
	if err != nil {
		return api.Entity{}, fmt.Errorf("read entity %s: %w", id, err)
	}
	if len(fields) == 0 {
		return api.Entity{}, graph.ErrNotFound
	}
	var labels []string
	if raw := fields["labels"]; raw != "" && raw != "null" {
		_ = json.Unmarshal([]byte(raw), &labels)
	}
	var attrs map[string]string
	if raw := fields["attrs"]; raw != "" && raw != "null" {
		_ = json.Unmarshal([]byte(raw), &attrs)
	}
	return api.Entity{
		ID:         id,
		Namespace:  ns,
		Name:       fields["name"],
		Labels:     labels,
		Summary:    fields["summary"],
		Attributes: stripEmbeddings(attrs),
		CreatedAt:  parseTime(fields["created_at"]),
	}, nil
}

func (s *Store) readRelationship(ctx context.Context, ns, id string) (api.Relationship, error) {
	fields, err := s.client.HGetAll(ctx, relKey(ns, id)).Result()
	if err != nil {
		return api.Relationship{}, fmt.Errorf("read relationship %s: %w", id, err)
	}
	if len(fields) == 0 {
		return api.Relationship{}, graph.ErrNotFound
	}
	return api.Relationship{
		ID:        id,
		Namespace: ns,
		SourceID:  fields["source"],
		TargetID:  fields["target"],
		Name:      fields["name"],
		Fact:      fields["fact"],
		ContentID: fields["content_id"],
		CreatedAt: parseTime(fields["created_at"]),
	}, nil
}

// stripEmbeddings drops embedding vectors before results cross the API
// boundary; they are provider internals and can be very large.
func stripEmbeddings(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if strings.Contains(strings.ToLower(k), "embedding") {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
