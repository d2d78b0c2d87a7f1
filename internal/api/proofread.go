package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wayfare-app/wayfare/internal/log"
	"github.com/wayfare-app/wayfare/internal/stream"
)

// proofreader starts a token stream for a draft.
type proofreader interface {
	Stream(ctx context.Context, text string) (*stream.Stream, error)
}

// proofreadHandler serves the SSE proofreading endpoint.
//
// Request body: {"text": "..."}
// Response: Server-Sent Events stream.
//
// Event types:
//   - chunk: partial revised text {"text": "..."}
//   - done:  full revised text {"text": "..."}
//   - error: terminal failure {"code": "...", "message": "..."}
type proofreadHandler struct {
	svc    proofreader
	logger log.Logger
}

type proofreadRequest struct {
	Text string `json:"text"`
}

// sseChunkData is the payload for "chunk" and "done" events.
type sseChunkData struct {
	Text string `json:"text"`
}

// sseErrorData is the payload for "error" events.
type sseErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *proofreadHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var req proofreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEvent(w, flusher, "error", sseErrorData{Code: "INVALID_REQUEST", Message: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeEvent(w, flusher, "error", sseErrorData{Code: "MISSING_TEXT", Message: "text is required"})
		return
	}

	ctx := r.Context()

	st, err := h.svc.Stream(ctx, req.Text)
	if err != nil {
		h.logger.Error("proofread stream start failed", "error", err)
		writeEvent(w, flusher, "error", sseErrorData{Code: sseErrorCode(err), Message: err.Error()})
		return
	}
	// Cancel propagates a consumer disconnect upstream; after a normal
	// terminal event it is a no-op.
	defer st.Cancel()

	var full strings.Builder
	for {
		tok, err := st.Recv(ctx)
		switch {
		case err == nil:
			full.WriteString(tok)
			writeEvent(w, flusher, "chunk", sseChunkData{Text: tok})

		case errors.Is(err, stream.ErrDone):
			writeEvent(w, flusher, "done", sseChunkData{Text: full.String()})
			h.logger.Debug("proofread stream completed", "response_len", full.Len())
			return

		case errors.Is(err, context.Canceled), errors.Is(err, stream.ErrCancelled):
			h.logger.Debug("proofread client disconnected")
			return

		default:
			h.logger.Error("proofread stream failed", "error", err)
			writeEvent(w, flusher, "error", sseErrorData{Code: sseErrorCode(err), Message: err.Error()})
			return
		}
	}
}

// writeEvent writes one SSE event and flushes it to the client.
func writeEvent[T any](w http.ResponseWriter, flusher http.Flusher, event string, data T) {
	payload, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// sseErrorCode is modelErrorCode in the SSE surface's uppercase casing.
func sseErrorCode(err error) string {
	return strings.ToUpper(modelErrorCode(err, "stream_error"))
}
