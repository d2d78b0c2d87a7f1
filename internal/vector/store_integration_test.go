package vector_test

import (
	"context"
	"testing"

	"github.com/wayfare-app/wayfare/internal/testutil"
	"github.com/wayfare-app/wayfare/internal/vector"
)

func setupStore(t *testing.T) (*vector.Store, func()) {
	t.Helper()

	tdb, cleanup := testutil.SetupPostgres(t)
	store, err := vector.New(tdb.Pool, &testutil.WordEmbedder{Dimension: 768}, nil)
	if err != nil {
		cleanup()
		t.Fatalf("creating store: %v", err)
	}
	return store, cleanup
}

func TestStoreIndexAndSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	docs := map[string]string{
		"post-1": "sunrise hike above the alpine lake",
		"post-2": "street food market in bangkok at night",
		"post-3": "packing list for an alpine hike",
	}
	for id, text := range docs {
		if err := store.IndexText(ctx, vector.NamespaceRawText, id, text); err != nil {
			t.Fatalf("IndexText(%s): %v", id, err)
		}
	}

	hits, err := store.Search(ctx, vector.NamespaceRawText, "alpine hike", 2)
	if err != nil {
		t.Fatalf("Search(): %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	for _, h := range hits {
		if h.ContentID == "post-2" {
			t.Errorf("unrelated document ranked in top 2: %+v", hits)
		}
	}
	if hits[0].Similarity < hits[1].Similarity {
		t.Errorf("hits not ordered by similarity: %+v", hits)
	}
}

func TestStoreNamespaceIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.IndexText(ctx, vector.NamespaceRawText, "post-1", "coastal road trip in portugal"); err != nil {
		t.Fatal(err)
	}
	if err := store.IndexText(ctx, vector.NamespaceImageDescription, "post-2", "coastal cliffs at golden hour"); err != nil {
		t.Fatal(err)
	}

	hits, err := store.Search(ctx, vector.NamespaceImageDescription, "coastal", 10)
	if err != nil {
		t.Fatalf("Search(): %v", err)
	}
	for _, h := range hits {
		if h.ContentID != "post-2" {
			t.Errorf("search leaked across namespaces: %+v", h)
		}
	}
}

func TestStoreReindexAppendsRows(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	for range 2 {
		if err := store.IndexText(ctx, vector.NamespaceRawText, "post-1", "desert stargazing guide"); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := store.Search(ctx, vector.NamespaceRawText, "desert stargazing", 10)
	if err != nil {
		t.Fatalf("Search(): %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("len(hits) = %d, want 2 rows for re-indexed content", len(hits))
	}
}

func TestStoreIndexImage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	data := []byte("fake image bytes")
	err := store.IndexImage(ctx, vector.NamespaceImageVector, "post-9", "https://cdn.example.com/9.jpg", data, "image/jpeg")
	if err != nil {
		t.Fatalf("IndexImage(): %v", err)
	}

	// The test embedder maps bytes and text identically, so the stored
	// vector is findable with the matching text query.
	hits, err := store.Search(ctx, vector.NamespaceImageVector, "fake image bytes", 1)
	if err != nil {
		t.Fatalf("Search(): %v", err)
	}
	if len(hits) != 1 || hits[0].ContentID != "post-9" {
		t.Errorf("hits = %+v, want the indexed image row", hits)
	}
	if hits[0].Content != "https://cdn.example.com/9.jpg" {
		t.Errorf("hit content = %q, want image source URL", hits[0].Content)
	}
}
