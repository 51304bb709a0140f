// Package redistore implements the graph engine on plain Redis data
// structures: hashes for records, sorted sets for recency, sets for the
// token and mention indexes. It targets any Redis-protocol server,
// which covers FalkorDB deployments that expose the standard keyspace.
package redistore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pkt.systems/engramd/internal/graph"
	"pkt.systems/engramd/internal/logfields"
	"pkt.systems/pslog"
)

const (
	keyPrefix     = "kg:"
	dialTimeout   = 2 * time.Second
	relScanWindow = 512
)

// Store is a Redis-backed graph engine.
type Store struct {
	client *redis.Client
	logger pslog.Logger
}

var _ graph.Engine = (*Store)(nil)

// New connects to the Redis server at url ("redis://host:port/db") and
// verifies connectivity before returning.
func New(ctx context.Context, url string, logger pslog.Logger) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse graph url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("graph store unreachable at %s: %w", opts.Addr, err)
	}
	return &Store{
		client: client,
		logger: logfields.WithSubsystem(logger, "graph.redistore"),
	}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, logger pslog.Logger) *Store {
	return &Store{
		client: client,
		logger: logfields.WithSubsystem(logger, "graph.redistore"),
	}
}

// Ping verifies backend connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// ListNamespaces returns the namespaces holding data, sorted.
func (s *Store) ListNamespaces(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, nsSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

func nsSetKey() string { return keyPrefix + "namespaces" }

func contentKey(ns, id string) string      { return keyPrefix + ns + ":content:" + id }
func contentIndexKey(ns string) string     { return keyPrefix + ns + ":content.index" }
func contentEntsKey(ns, id string) string  { return keyPrefix + ns + ":content.entities:" + id }
func contentLocKey() string                { return keyPrefix + "content.loc" }
func entityKey(ns, id string) string       { return keyPrefix + ns + ":entity:" + id }
func entityIndexKey(ns string) string      { return keyPrefix + ns + ":entity.index" }
func entityNameKey(ns, name string) string { return keyPrefix + ns + ":entity.name:" + name }
func entityTokKey(ns, tok string) string   { return keyPrefix + ns + ":entity.tok:" + tok }
func mentionsKey(ns, id string) string     { return keyPrefix + ns + ":entity.mentions:" + id }
func relKey(ns, id string) string          { return keyPrefix + ns + ":rel:" + id }
func relIndexKey(ns string) string         { return keyPrefix + ns + ":rel.index" }
func relByContentKey(ns, id string) string { return keyPrefix + ns + ":rel.bycontent:" + id }
func relLocKey() string                    { return keyPrefix + "rel.loc" }

func nsPattern(ns string) string { return keyPrefix + ns + ":*" }

// canonicalName is the dedupe key for entities within a namespace.
func canonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// tokenize lowercases text and splits it into index tokens, dropping
// single-character fragments.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
