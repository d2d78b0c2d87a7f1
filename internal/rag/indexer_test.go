package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"go.uber.org/goleak"

	"github.com/wayfare-app/wayfare/internal/gateway"
	"github.com/wayfare-app/wayfare/internal/log"
	"github.com/wayfare-app/wayfare/internal/media"
	"github.com/wayfare-app/wayfare/internal/vector"
	"github.com/wayfare-app/wayfare/internal/work"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type record struct {
	ns        vector.Namespace
	contentID string
	content   string
}

// fakeStore records writes and fails selected namespaces.
type fakeStore struct {
	mu      sync.Mutex
	records []record
	failNS  map[vector.Namespace]error
}

func (f *fakeStore) IndexText(ctx context.Context, ns vector.Namespace, contentID, text string) error {
	return f.add(ns, contentID, text)
}

func (f *fakeStore) IndexImage(ctx context.Context, ns vector.Namespace, contentID, source string, data []byte, mimeType string) error {
	return f.add(ns, contentID, source)
}

func (f *fakeStore) add(ns vector.Namespace, contentID, content string) error {
	if err := f.failNS[ns]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record{ns: ns, contentID: contentID, content: content})
	return nil
}

func (f *fakeStore) byNamespace(ns vector.Namespace) []record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []record
	for _, r := range f.records {
		if r.ns == ns {
			out = append(out, r)
		}
	}
	return out
}

type fakeFetcher struct {
	media map[string]media.Media
}

func (f *fakeFetcher) FetchAll(ctx context.Context, urls []string) map[string]media.Media {
	out := make(map[string]media.Media)
	for _, u := range urls {
		if m, ok := f.media[u]; ok {
			out[u] = m
		}
	}
	return out
}

type fakeChat struct {
	mu    sync.Mutex
	resp  *gateway.Response
	calls int
}

func (f *fakeChat) Chat(ctx context.Context, system string, parts []*ai.Part) *gateway.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.resp
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestIndexer(store *fakeStore, fetcher *fakeFetcher, chat *fakeChat, pool *work.Pool) *Indexer {
	return &Indexer{
		store:    store,
		fetcher:  fetcher,
		describe: chat,
		pool:     pool,
		logger:   log.NewNop(),
	}
}

func TestIndexStoresAllThreeKinds(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{media: map[string]media.Media{
		"https://cdn.example.com/a.jpg": {Data: []byte("img-a"), ContentType: "image/jpeg"},
	}}
	chat := &fakeChat{resp: &gateway.Response{Text: "a turquoise alpine lake at sunrise"}}

	pool := work.NewPool(context.Background(), 2, log.NewNop())
	ix := newTestIndexer(store, fetcher, chat, pool)

	ix.Index("post-1", "sunrise at the lake", []string{"https://cdn.example.com/a.jpg"})
	pool.Close()

	if got := store.byNamespace(vector.NamespaceRawText); len(got) != 1 || got[0].content != "sunrise at the lake" {
		t.Errorf("raw text records = %+v, want the post text", got)
	}
	if got := store.byNamespace(vector.NamespaceImageVector); len(got) != 1 || got[0].content != "https://cdn.example.com/a.jpg" {
		t.Errorf("image vector records = %+v, want one per image", got)
	}
	if got := store.byNamespace(vector.NamespaceImageDescription); len(got) != 1 || got[0].content != "a turquoise alpine lake at sunrise" {
		t.Errorf("description records = %+v, want model description", got)
	}
}

func TestIndexImageFailureLeavesSiblings(t *testing.T) {
	store := &fakeStore{failNS: map[vector.Namespace]error{
		vector.NamespaceImageVector: errors.New("embedding quota exceeded"),
	}}
	fetcher := &fakeFetcher{media: map[string]media.Media{
		"https://cdn.example.com/a.jpg": {Data: []byte("img-a"), ContentType: "image/jpeg"},
	}}
	chat := &fakeChat{resp: &gateway.Response{Text: "a night market"}}

	pool := work.NewPool(context.Background(), 2, log.NewNop())
	ix := newTestIndexer(store, fetcher, chat, pool)

	ix.Index("post-2", "street food tour", []string{"https://cdn.example.com/a.jpg"})
	pool.Close()

	store.mu.Lock()
	total := len(store.records)
	store.mu.Unlock()
	if total != 2 {
		t.Fatalf("records = %d, want exactly 2 surviving siblings", total)
	}
	if got := store.byNamespace(vector.NamespaceRawText); len(got) != 1 {
		t.Error("text record missing after image failure")
	}
	if got := store.byNamespace(vector.NamespaceImageDescription); len(got) != 1 {
		t.Error("description record missing after image failure")
	}
}

func TestIndexSkipsEmptyText(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{}
	chat := &fakeChat{}

	pool := work.NewPool(context.Background(), 2, log.NewNop())
	ix := newTestIndexer(store, fetcher, chat, pool)

	ix.Index("post-3", "   ", nil)
	pool.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.records) != 0 {
		t.Errorf("records = %+v, want none for blank content", store.records)
	}
	if chat.callCount() != 0 {
		t.Error("model called with no images")
	}
}

func TestIndexDescribeFailureKeepsImageVectors(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{media: map[string]media.Media{
		"https://cdn.example.com/a.jpg": {Data: []byte("img-a"), ContentType: "image/jpeg"},
	}}
	chat := &fakeChat{resp: nil} // generation failed

	pool := work.NewPool(context.Background(), 2, log.NewNop())
	ix := newTestIndexer(store, fetcher, chat, pool)

	ix.Index("post-4", "", []string{"https://cdn.example.com/a.jpg"})
	pool.Close()

	if got := store.byNamespace(vector.NamespaceImageVector); len(got) != 1 {
		t.Errorf("image vector records = %+v, want one despite describe failure", got)
	}
	if got := store.byNamespace(vector.NamespaceImageDescription); len(got) != 0 {
		t.Errorf("description records = %+v, want none", got)
	}
}

func TestIndexUnfetchableMediaDegradesToText(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{} // every fetch fails
	chat := &fakeChat{}

	pool := work.NewPool(context.Background(), 2, log.NewNop())
	ix := newTestIndexer(store, fetcher, chat, pool)

	ix.Index("post-5", "glacier hike", []string{"https://cdn.example.com/gone.jpg"})
	pool.Close()

	if got := store.byNamespace(vector.NamespaceRawText); len(got) != 1 {
		t.Error("text record missing")
	}
	if chat.callCount() != 0 {
		t.Error("model called with no fetched images")
	}
}

func TestIndexConcurrentContentIDs(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{}
	chat := &fakeChat{}

	pool := work.NewPool(context.Background(), 4, log.NewNop())
	ix := newTestIndexer(store, fetcher, chat, pool)

	const n = 10
	for i := range n {
		ix.Index(fmt.Sprintf("post-%d", i), fmt.Sprintf("content %d", i), nil)
	}
	pool.Close()

	got := store.byNamespace(vector.NamespaceRawText)
	if len(got) != n {
		t.Fatalf("records = %d, want %d", len(got), n)
	}
	seen := make(map[string]string)
	for _, r := range got {
		seen[r.contentID] = r.content
	}
	for i := range n {
		id := fmt.Sprintf("post-%d", i)
		if seen[id] != fmt.Sprintf("content %d", i) {
			t.Errorf("record for %s = %q, cross-content corruption", id, seen[id])
		}
	}
}
