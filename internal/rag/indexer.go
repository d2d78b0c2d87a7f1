package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/wayfare-app/wayfare/internal/gateway"
	"github.com/wayfare-app/wayfare/internal/log"
	"github.com/wayfare-app/wayfare/internal/media"
	"github.com/wayfare-app/wayfare/internal/vector"
	"github.com/wayfare-app/wayfare/internal/work"
)

// describeTemperature keeps image descriptions factual and stable.
const describeTemperature = 0.1

const describeSystemPrompt = `Describe the attached images for a travel
content search index. Mention the location type, prominent subjects,
activities and atmosphere. Be factual and concise; do not speculate
beyond what is visible.`

// indexStore is the slice of the vector store the indexer writes to.
type indexStore interface {
	IndexText(ctx context.Context, ns vector.Namespace, contentID, text string) error
	IndexImage(ctx context.Context, ns vector.Namespace, contentID, source string, data []byte, mimeType string) error
}

// batchFetcher retrieves media URLs, degrading to a partial map.
type batchFetcher interface {
	FetchAll(ctx context.Context, urls []string) map[string]media.Media
}

// chatter is the single-shot model call used for image descriptions.
type chatter interface {
	Chat(ctx context.Context, system string, parts []*ai.Part) *gateway.Response
}

// dispatcher detaches indexing work from the calling request.
type dispatcher interface {
	Go(name string, fn work.Task)
}

// Indexer embeds newly created content into the vector store in the
// background. Index returns immediately; callers never observe indexing
// failures.
type Indexer struct {
	store    indexStore
	fetcher  batchFetcher
	describe chatter
	pool     dispatcher
	logger   log.Logger
}

// NewIndexer builds the image-description handle on gw and returns an
// Indexer dispatching onto pool.
func NewIndexer(gw *gateway.Gateway, store *vector.Store, fetcher *media.Fetcher, pool *work.Pool, logger log.Logger) (*Indexer, error) {
	handle, err := gw.Handle(gateway.Options{Temperature: describeTemperature})
	if err != nil {
		return nil, fmt.Errorf("building describe handle: %w", err)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Indexer{
		store:    store,
		fetcher:  fetcher,
		describe: handle,
		pool:     pool,
		logger:   logger,
	}, nil
}

// Index dispatches embedding of contentID's text and media and returns
// immediately. Three steps run per dispatch — raw text, per-image
// vectors, and a model-written description of the images — each with its
// own failure boundary, so one failing step never blocks the others.
func (ix *Indexer) Index(contentID, text string, mediaURLs []string) {
	ix.pool.Go("index "+contentID, func(ctx context.Context) error {
		ix.step(ctx, contentID, "text", func(ctx context.Context) error {
			return ix.indexText(ctx, contentID, text)
		})

		images := ix.fetchImages(ctx, mediaURLs)
		if len(images) == 0 {
			return nil
		}

		ix.step(ctx, contentID, "image vectors", func(ctx context.Context) error {
			return ix.indexImageVectors(ctx, contentID, images)
		})
		ix.step(ctx, contentID, "image description", func(ctx context.Context) error {
			return ix.indexImageDescription(ctx, contentID, images)
		})
		return nil
	})
}

// step is one isolated failure boundary: errors and panics are logged
// and swallowed so sibling steps still run.
func (ix *Indexer) step(ctx context.Context, contentID, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			ix.logger.Error("indexing step panicked", "content_id", contentID, "step", name, "panic", r)
		}
	}()
	if err := fn(ctx); err != nil {
		ix.logger.Error("indexing step failed", "content_id", contentID, "step", name, "error", err)
	}
}

func (ix *Indexer) indexText(ctx context.Context, contentID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return ix.store.IndexText(ctx, vector.NamespaceRawText, contentID, text)
}

// fetchImages retrieves the media batch, keeping URL order for stable
// model input. Fetch failures already degrade to a partial map.
func (ix *Indexer) fetchImages(ctx context.Context, urls []string) []fetchedImage {
	if len(urls) == 0 {
		return nil
	}
	fetched := ix.fetcher.FetchAll(ctx, urls)

	images := make([]fetchedImage, 0, len(fetched))
	for _, url := range urls {
		m, ok := fetched[url]
		if !ok {
			continue
		}
		images = append(images, fetchedImage{url: url, media: m})
	}
	return images
}

type fetchedImage struct {
	url   string
	media media.Media
}

func (ix *Indexer) indexImageVectors(ctx context.Context, contentID string, images []fetchedImage) error {
	var failed int
	for _, img := range images {
		err := ix.store.IndexImage(ctx, vector.NamespaceImageVector, contentID, img.url, img.media.Data, img.media.ContentType)
		if err != nil {
			failed++
			ix.logger.Warn("image embedding failed", "content_id", contentID, "url", img.url, "error", err)
		}
	}
	if failed == len(images) {
		return fmt.Errorf("all %d image embeddings failed", failed)
	}
	return nil
}

func (ix *Indexer) indexImageDescription(ctx context.Context, contentID string, images []fetchedImage) error {
	parts := make([]*ai.Part, 0, len(images))
	for _, img := range images {
		parts = append(parts, gateway.MediaPart(img.media.ContentType, img.media.Data))
	}

	resp := ix.describe.Chat(ctx, describeSystemPrompt, parts)
	if resp == nil {
		return fmt.Errorf("describing images: %w", gateway.ErrGeneration)
	}
	if resp.Text == "" {
		ix.logger.Warn("empty image description, skipping", "content_id", contentID, "finish_reason", resp.FinishReason)
		return nil
	}
	return ix.store.IndexText(ctx, vector.NamespaceImageDescription, contentID, resp.Text)
}
