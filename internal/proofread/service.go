// Package proofread streams model-revised drafts of user text.
package proofread

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"

	"github.com/wayfare-app/wayfare/internal/gateway"
	"github.com/wayfare-app/wayfare/internal/log"
	"github.com/wayfare-app/wayfare/internal/stream"
)

// temperature balances faithfulness to the draft against fluency fixes.
const temperature = 0.5

const systemPrompt = `You are an editor for a travel content platform.
Proofread the user's draft: fix spelling, grammar and punctuation, and
smooth awkward phrasing. Preserve the author's voice, tone and meaning.
Return only the corrected text with no preamble or commentary.`

// streamer is the slice of the model gateway the service needs.
type streamer interface {
	ChatStream(ctx context.Context, system string, parts []*ai.Part, onToken func(context.Context, string) error) (*gateway.Response, error)
}

// Service proofreads drafts by streaming tokens from the model.
// Safe for concurrent use.
type Service struct {
	chat   streamer
	logger log.Logger
}

// NewService builds the proofreading call handle on gw.
func NewService(gw *gateway.Gateway, logger log.Logger) (*Service, error) {
	handle, err := gw.Handle(gateway.Options{Temperature: temperature})
	if err != nil {
		return nil, fmt.Errorf("building proofread handle: %w", err)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{chat: handle, logger: logger}, nil
}

// Stream starts a proofreading generation for text and returns a stream
// of revised-text tokens. The generation runs in its own goroutine;
// cancelling the stream aborts the model call. Consumers read tokens via
// Recv until a terminal error.
func (s *Service) Stream(ctx context.Context, text string) (*stream.Stream, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty draft", gateway.ErrGeneration)
	}

	genCtx, cancel := context.WithCancel(ctx)
	st := stream.New(stream.DefaultBuffer, cancel)

	go func() {
		_, err := s.chat.ChatStream(genCtx, systemPrompt, []*ai.Part{ai.NewTextPart(text)}, func(cbCtx context.Context, token string) error {
			return st.Emit(cbCtx, token)
		})
		if err != nil {
			if errors.Is(err, stream.ErrCancelled) || genCtx.Err() != nil {
				s.logger.Debug("proofread stream cancelled")
				return
			}
			s.logger.Error("proofread generation failed", "error", err)
			st.Fail(err)
			return
		}
		st.Complete()
	}()

	return st, nil
}
