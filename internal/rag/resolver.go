package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/wayfare-app/wayfare/internal/gateway"
	"github.com/wayfare-app/wayfare/internal/log"
	"github.com/wayfare-app/wayfare/internal/media"
	"github.com/wayfare-app/wayfare/internal/vector"
)

// answerTemperature gives the resolver room to rank loosely-matching
// content while the JSON format keeps output parseable.
const answerTemperature = 0.8

// defaultTopK is retrieved per namespace before merging.
const defaultTopK = 5

const answerSystemPrompt = `You match a travel search query against
retrieved content snippets. Using ONLY the provided context, select the
content ids that answer the query, best match first. Respond with JSON:
{"contentIds": ["id", ...]}. If nothing in the context matches, respond
with {"contentIds": []}.`

// Query is one content search request. At least one field must be set;
// an empty query resolves to an empty Result without a model call.
type Query struct {
	Text     string
	ImageURL string
}

// Result is an ordered list of matching content ids, best match first.
type Result struct {
	ContentIDs []string
}

// searcher is the slice of the vector store the resolver reads from.
type searcher interface {
	Search(ctx context.Context, ns vector.Namespace, query string, topK int) ([]vector.Hit, error)
}

// Resolver answers content queries with retrieval-augmented generation.
// Unlike the Indexer, resolution is synchronous and user-facing: model
// failures surface to the caller.
type Resolver struct {
	store    searcher
	fetcher  batchFetcher
	describe chatter
	answer   chatter
	logger   log.Logger
	topK     int
}

// NewResolver builds the describe and answer handles on gw.
func NewResolver(gw *gateway.Gateway, store *vector.Store, fetcher *media.Fetcher, logger log.Logger) (*Resolver, error) {
	describe, err := gw.Handle(gateway.Options{Temperature: describeTemperature})
	if err != nil {
		return nil, fmt.Errorf("building describe handle: %w", err)
	}
	answer, err := gw.Handle(gateway.Options{
		Temperature:    answerTemperature,
		ResponseFormat: gateway.FormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("building answer handle: %w", err)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Resolver{
		store:    store,
		fetcher:  fetcher,
		describe: describe,
		answer:   answer,
		logger:   logger,
		topK:     defaultTopK,
	}, nil
}

// Resolve retrieves content matching q. An empty query returns an empty
// Result without touching the model.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Result, error) {
	description, err := r.describeQueryImage(ctx, q.ImageURL)
	if err != nil {
		return Result{}, err
	}

	combined := combineQuery(q.Text, description)
	if combined == "" {
		return Result{}, nil
	}

	hits, err := r.retrieve(ctx, combined)
	if err != nil {
		return Result{}, err
	}
	if len(hits) == 0 {
		return Result{}, nil
	}

	return r.selectIDs(ctx, combined, hits)
}

// describeQueryImage fetches the query image, if any, and asks the model
// for a description to fold into the retrieval query.
func (r *Resolver) describeQueryImage(ctx context.Context, imageURL string) (string, error) {
	if imageURL == "" {
		return "", nil
	}

	fetched := r.fetcher.FetchAll(ctx, []string{imageURL})
	m, ok := fetched[imageURL]
	if !ok {
		// Fetch failures degrade: resolve on text alone.
		r.logger.Warn("query image fetch failed, resolving without it", "url", imageURL)
		return "", nil
	}

	resp := r.describe.Chat(ctx, describeSystemPrompt, []*ai.Part{gateway.MediaPart(m.ContentType, m.Data)})
	if resp == nil {
		return "", fmt.Errorf("describing query image: %w", gateway.ErrGeneration)
	}
	return resp.Text, nil
}

// combineQuery merges the text and image description into the retrieval
// query string.
func combineQuery(text, description string) string {
	text = strings.TrimSpace(text)
	description = strings.TrimSpace(description)
	switch {
	case text != "" && description != "":
		return fmt.Sprintf("Query: %s Query Image Description: %s", text, description)
	case description != "":
		return "Query Image Description: " + description
	case text != "":
		return "Query: " + text
	}
	return ""
}

// retrieve queries the text and image-description namespaces and merges
// the hits by descending similarity.
func (r *Resolver) retrieve(ctx context.Context, query string) ([]vector.Hit, error) {
	var merged []vector.Hit
	for _, ns := range []vector.Namespace{vector.NamespaceRawText, vector.NamespaceImageDescription} {
		hits, err := r.store.Search(ctx, ns, query, r.topK)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", ns, err)
		}
		merged = append(merged, hits...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	return merged, nil
}

// selectIDs asks the model which retrieved ids answer the query and
// parses its JSON reply. Ids the model invents are dropped.
func (r *Resolver) selectIDs(ctx context.Context, query string, hits []vector.Hit) (Result, error) {
	var b strings.Builder
	b.WriteString("Context:\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "- id: %s\n  content: %s\n", h.ContentID, h.Content)
	}
	b.WriteString("\n")
	b.WriteString(query)

	resp := r.answer.Chat(ctx, answerSystemPrompt, []*ai.Part{ai.NewTextPart(b.String())})
	if resp == nil {
		return Result{}, fmt.Errorf("selecting content ids: %w", gateway.ErrGeneration)
	}
	if resp.FinishReason == gateway.FinishContentFilter {
		r.logger.Warn("query answer blocked by content filter")
		return Result{}, nil
	}

	var parsed struct {
		ContentIDs []string `json:"contentIds"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return Result{}, fmt.Errorf("%w: parsing model answer: %w", gateway.ErrGeneration, err)
	}

	known := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		known[h.ContentID] = struct{}{}
	}

	ids := make([]string, 0, len(parsed.ContentIDs))
	seen := make(map[string]struct{}, len(parsed.ContentIDs))
	for _, id := range parsed.ContentIDs {
		if _, ok := known[id]; !ok {
			r.logger.Warn("model returned id outside retrieved context, dropping", "content_id", id)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return Result{ContentIDs: ids}, nil
}
