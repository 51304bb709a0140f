package graph

import (
	"context"

	"pkt.systems/engramd/api"
)

// Limit wraps engine with a global admission semaphore of size n.
// Engine concurrency is bounded independently of how many workers or
// request handlers call in, matching backing stores that degrade under
// unbounded parallel queries. n < 1 returns engine unchanged.
func Limit(engine Engine, n int) Engine {
	if n < 1 {
		return engine
	}
	return &limited{inner: engine, slots: make(chan struct{}, n)}
}

type limited struct {
	inner Engine
	slots chan struct{}
}

func (l *limited) acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limited) release() {
	<-l.slots
}

func (l *limited) Apply(ctx context.Context, batch Batch) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return l.inner.Apply(ctx, batch)
}

func (l *limited) SearchEntities(ctx context.Context, q Query) ([]api.Entity, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.SearchEntities(ctx, q)
}

func (l *limited) SearchRelationships(ctx context.Context, q Query) ([]api.Relationship, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.SearchRelationships(ctx, q)
}

func (l *limited) ListContent(ctx context.Context, q Query) ([]api.ContentItem, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.ListContent(ctx, q)
}

func (l *limited) GetRelationship(ctx context.Context, id string) (api.Relationship, error) {
	if err := l.acquire(ctx); err != nil {
		return api.Relationship{}, err
	}
	defer l.release()
	return l.inner.GetRelationship(ctx, id)
}

func (l *limited) DeleteContent(ctx context.Context, id string) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return l.inner.DeleteContent(ctx, id)
}

func (l *limited) DeleteRelationship(ctx context.Context, id string) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return l.inner.DeleteRelationship(ctx, id)
}

func (l *limited) ClearNamespaces(ctx context.Context, namespaces []string) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return l.inner.ClearNamespaces(ctx, namespaces)
}

func (l *limited) ListNamespaces(ctx context.Context) ([]string, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.ListNamespaces(ctx)
}

func (l *limited) Ping(ctx context.Context) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return l.inner.Ping(ctx)
}

func (l *limited) Close() error {
	return l.inner.Close()
}
