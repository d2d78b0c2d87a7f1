package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/wayfare-app/wayfare/internal/gateway"
	"github.com/wayfare-app/wayfare/internal/log"
	"github.com/wayfare-app/wayfare/internal/media"
	"github.com/wayfare-app/wayfare/internal/vector"
)

// fakeSearcher serves canned hits per namespace and records queries.
type fakeSearcher struct {
	hits    map[vector.Namespace][]vector.Hit
	err     error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, ns vector.Namespace, query string, topK int) ([]vector.Hit, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[ns], nil
}

// recordingChat captures the last user content sent to the model.
type recordingChat struct {
	resp     *gateway.Response
	calls    int
	lastUser string
}

func (f *recordingChat) Chat(ctx context.Context, system string, parts []*ai.Part) *gateway.Response {
	f.calls++
	if len(parts) > 0 {
		f.lastUser = parts[0].Text
	}
	return f.resp
}

func newTestResolver(store *fakeSearcher, fetcher *fakeFetcher, describe, answer *recordingChat) *Resolver {
	return &Resolver{
		store:    store,
		fetcher:  fetcher,
		describe: describe,
		answer:   answer,
		logger:   log.NewNop(),
		topK:     defaultTopK,
	}
}

func TestResolveEmptyQueryShortCircuits(t *testing.T) {
	store := &fakeSearcher{}
	describe := &recordingChat{}
	answer := &recordingChat{}
	r := newTestResolver(store, &fakeFetcher{}, describe, answer)

	got, err := r.Resolve(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got.ContentIDs) != 0 {
		t.Errorf("ContentIDs = %v, want empty", got.ContentIDs)
	}
	if describe.calls != 0 || answer.calls != 0 {
		t.Error("model called for empty query")
	}
	if len(store.queries) != 0 {
		t.Error("vector store queried for empty query")
	}
}

func TestResolveTextQuery(t *testing.T) {
	store := &fakeSearcher{hits: map[vector.Namespace][]vector.Hit{
		vector.NamespaceRawText: {
			{ContentID: "post-9", Content: "waterfall day trip from Kyoto", Similarity: 0.91},
		},
		vector.NamespaceImageDescription: {
			{ContentID: "post-3", Content: "a forest waterfall", Similarity: 0.74},
		},
	}}
	answer := &recordingChat{resp: &gateway.Response{Text: `{"contentIds": ["post-9"]}`}}
	r := newTestResolver(store, &fakeFetcher{}, &recordingChat{}, answer)

	got, err := r.Resolve(context.Background(), Query{Text: "waterfalls near Kyoto"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got.ContentIDs) != 1 || got.ContentIDs[0] != "post-9" {
		t.Errorf("ContentIDs = %v, want [post-9]", got.ContentIDs)
	}

	for _, q := range store.queries {
		if q != "Query: waterfalls near Kyoto" {
			t.Errorf("search query = %q, want combined form", q)
		}
	}
	if len(store.queries) != 2 {
		t.Errorf("searched %d namespaces, want 2", len(store.queries))
	}
	if !strings.Contains(answer.lastUser, "post-9") || !strings.Contains(answer.lastUser, "post-3") {
		t.Errorf("answer prompt missing retrieved context: %q", answer.lastUser)
	}
}

func TestResolveImageQueryCombinesDescription(t *testing.T) {
	store := &fakeSearcher{hits: map[vector.Namespace][]vector.Hit{
		vector.NamespaceRawText: {{ContentID: "post-1", Content: "temple gardens", Similarity: 0.8}},
	}}
	fetcher := &fakeFetcher{media: map[string]media.Media{
		"https://cdn.example.com/q.jpg": {Data: []byte("img"), ContentType: "image/jpeg"},
	}}
	describe := &recordingChat{resp: &gateway.Response{Text: "a zen garden with raked gravel"}}
	answer := &recordingChat{resp: &gateway.Response{Text: `{"contentIds": ["post-1"]}`}}
	r := newTestResolver(store, fetcher, describe, answer)

	got, err := r.Resolve(context.Background(), Query{Text: "quiet places", ImageURL: "https://cdn.example.com/q.jpg"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got.ContentIDs) != 1 {
		t.Fatalf("ContentIDs = %v, want one hit", got.ContentIDs)
	}

	want := "Query: quiet places Query Image Description: a zen garden with raked gravel"
	if store.queries[0] != want {
		t.Errorf("search query = %q, want %q", store.queries[0], want)
	}
}

func TestResolveImageOnlyQueryOmitsEmptyTextSlot(t *testing.T) {
	store := &fakeSearcher{hits: map[vector.Namespace][]vector.Hit{
		vector.NamespaceRawText: {{ContentID: "post-1", Content: "temple gardens", Similarity: 0.8}},
	}}
	fetcher := &fakeFetcher{media: map[string]media.Media{
		"https://cdn.example.com/q.jpg": {Data: []byte("img"), ContentType: "image/jpeg"},
	}}
	describe := &recordingChat{resp: &gateway.Response{Text: "a zen garden with raked gravel"}}
	answer := &recordingChat{resp: &gateway.Response{Text: `{"contentIds": ["post-1"]}`}}
	r := newTestResolver(store, fetcher, describe, answer)

	_, err := r.Resolve(context.Background(), Query{ImageURL: "https://cdn.example.com/q.jpg"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	want := "Query Image Description: a zen garden with raked gravel"
	if store.queries[0] != want {
		t.Errorf("search query = %q, want %q", store.queries[0], want)
	}
}

func TestResolveImageFetchFailureDegradesToText(t *testing.T) {
	store := &fakeSearcher{hits: map[vector.Namespace][]vector.Hit{
		vector.NamespaceRawText: {{ContentID: "post-1", Content: "temple gardens", Similarity: 0.8}},
	}}
	describe := &recordingChat{}
	answer := &recordingChat{resp: &gateway.Response{Text: `{"contentIds": []}`}}
	r := newTestResolver(store, &fakeFetcher{}, describe, answer)

	_, err := r.Resolve(context.Background(), Query{Text: "temples", ImageURL: "https://cdn.example.com/gone.jpg"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if describe.calls != 0 {
		t.Error("describe called for unfetchable image")
	}
	if store.queries[0] != "Query: temples" {
		t.Errorf("search query = %q, want text-only form", store.queries[0])
	}
}

func TestResolveDescribeFailureSurfaces(t *testing.T) {
	fetcher := &fakeFetcher{media: map[string]media.Media{
		"https://cdn.example.com/q.jpg": {Data: []byte("img"), ContentType: "image/jpeg"},
	}}
	describe := &recordingChat{resp: nil}
	r := newTestResolver(&fakeSearcher{}, fetcher, describe, &recordingChat{})

	_, err := r.Resolve(context.Background(), Query{ImageURL: "https://cdn.example.com/q.jpg"})
	if !errors.Is(err, gateway.ErrGeneration) {
		t.Fatalf("Resolve() error = %v, want ErrGeneration", err)
	}
}

func TestResolveNoHitsSkipsAnswerCall(t *testing.T) {
	answer := &recordingChat{}
	r := newTestResolver(&fakeSearcher{}, &fakeFetcher{}, &recordingChat{}, answer)

	got, err := r.Resolve(context.Background(), Query{Text: "anything"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got.ContentIDs) != 0 {
		t.Errorf("ContentIDs = %v, want empty", got.ContentIDs)
	}
	if answer.calls != 0 {
		t.Error("answer model called with no retrieved context")
	}
}

func TestResolveAnswerFailureSurfaces(t *testing.T) {
	store := &fakeSearcher{hits: map[vector.Namespace][]vector.Hit{
		vector.NamespaceRawText: {{ContentID: "post-1", Content: "x", Similarity: 0.5}},
	}}
	r := newTestResolver(store, &fakeFetcher{}, &recordingChat{}, &recordingChat{resp: nil})

	_, err := r.Resolve(context.Background(), Query{Text: "q"})
	if !errors.Is(err, gateway.ErrGeneration) {
		t.Fatalf("Resolve() error = %v, want ErrGeneration", err)
	}
}

func TestResolveMalformedAnswerSurfaces(t *testing.T) {
	store := &fakeSearcher{hits: map[vector.Namespace][]vector.Hit{
		vector.NamespaceRawText: {{ContentID: "post-1", Content: "x", Similarity: 0.5}},
	}}
	answer := &recordingChat{resp: &gateway.Response{Text: "not json"}}
	r := newTestResolver(store, &fakeFetcher{}, &recordingChat{}, answer)

	_, err := r.Resolve(context.Background(), Query{Text: "q"})
	if !errors.Is(err, gateway.ErrGeneration) {
		t.Fatalf("Resolve() error = %v, want ErrGeneration", err)
	}
}

func TestResolveDropsUnknownAndDuplicateIDs(t *testing.T) {
	store := &fakeSearcher{hits: map[vector.Namespace][]vector.Hit{
		vector.NamespaceRawText: {
			{ContentID: "post-1", Content: "a", Similarity: 0.9},
			{ContentID: "post-2", Content: "b", Similarity: 0.8},
		},
	}}
	answer := &recordingChat{resp: &gateway.Response{
		Text: `{"contentIds": ["post-2", "made-up", "post-2", "post-1"]}`,
	}}
	r := newTestResolver(store, &fakeFetcher{}, &recordingChat{}, answer)

	got, err := r.Resolve(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	want := []string{"post-2", "post-1"}
	if len(got.ContentIDs) != len(want) {
		t.Fatalf("ContentIDs = %v, want %v", got.ContentIDs, want)
	}
	for i := range want {
		if got.ContentIDs[i] != want[i] {
			t.Errorf("ContentIDs = %v, want %v in model order", got.ContentIDs, want)
		}
	}
}

func TestResolveContentFilteredAnswerReturnsEmpty(t *testing.T) {
	store := &fakeSearcher{hits: map[vector.Namespace][]vector.Hit{
		vector.NamespaceRawText: {{ContentID: "post-1", Content: "x", Similarity: 0.5}},
	}}
	answer := &recordingChat{resp: &gateway.Response{FinishReason: gateway.FinishContentFilter}}
	r := newTestResolver(store, &fakeFetcher{}, &recordingChat{}, answer)

	got, err := r.Resolve(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got.ContentIDs) != 0 {
		t.Errorf("ContentIDs = %v, want empty for filtered answer", got.ContentIDs)
	}
}
