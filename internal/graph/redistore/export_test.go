package redistore

import (
	"context"
	"testing"
	"time"

	"pkt.systems/engramd/api"
	"pkt.systems/engramd/internal/graph"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := src.Apply(ctx, testBatch("exported", "c1", at)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	snapshot, err := src.Export(ctx, "exported")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if snapshot.Namespace != "exported" {
		t.Fatalf("Namespace = %q", snapshot.Namespace)
	}
	if len(snapshot.Content) != 1 || len(snapshot.Entities) != 2 || len(snapshot.Relations) != 1 {
		t.Fatalf("snapshot sizes = %d content, %d entities, %d relationships",
			len(snapshot.Content), len(snapshot.Entities), len(snapshot.Relations))
	}
	if got := snapshot.Mentions["c1"]; len(got) != 2 {
		t.Fatalf("Mentions[c1] = %v", got)
	}

	dst := newTestStore(t)
	if err := dst.Import(ctx, snapshot); err != nil {
		t.Fatalf("Import: %v", err)
	}

	items, err := dst.ListContent(ctx, graph.Query{Namespaces: []string{"exported"}})
	if err != nil {
		t.Fatalf("ListContent: %v", err)
	}
	if len(items) != 1 || items[0].ID != "c1" {
		t.Fatalf("imported content = %+v", items)
	}

	ents, err := dst.SearchEntities(ctx, graph.Query{Text: "alice", Namespaces: []string{"exported"}})
	if err != nil {
		t.Fatalf("SearchEntities: %v", err)
	}
	if len(ents) != 1 || ents[0].Name != "Alice" {
		t.Fatalf("imported entity search = %+v", ents)
	}

	rel, err := dst.GetRelationship(ctx, "c1-r1")
	if err != nil {
		t.Fatalf("GetRelationship: %v", err)
	}
	if rel.Namespace != "exported" || rel.Name != "met" {
		t.Fatalf("imported relationship = %+v", rel)
	}

	// Orphan tracking must survive the round trip.
	if err := dst.DeleteContent(ctx, "c1"); err != nil {
		t.Fatalf("DeleteContent: %v", err)
	}
	ents, err = dst.SearchEntities(ctx, graph.Query{Text: "alice", Namespaces: []string{"exported"}})
	if err != nil {
		t.Fatalf("SearchEntities after delete: %v", err)
	}
	if len(ents) != 0 {
		t.Fatalf("orphaned entities survived delete: %+v", ents)
	}
}

func TestImportRequiresNamespace(t *testing.T) {
	store := newTestStore(t)
	if err := store.Import(context.Background(), api.GraphExport{}); err == nil {
		t.Fatal("expected error for snapshot without namespace")
	}
}
