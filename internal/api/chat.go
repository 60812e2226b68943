package api

import (
	"net/http"
	"time"

	"github.com/esgpulse/esg-analytics/internal/analytics"
	"github.com/esgpulse/esg-analytics/internal/chat"
)

const uploadedMessage = "Document uploaded and processed successfully. You can now start chatting about it!"

type uploadResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId"`
	SessionID  string `json:"sessionId"`
	Message    string `json:"message"`
}

type sendMessageRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	Message   string `json:"message" validate:"required,max=4000"`
}

type sendMessageResponse struct {
	Success bool `json:"success"`
	*chat.Reply
}

// UploadForChat handles POST /api/v1/chat/upload: the PDF is converted to
// text, indexed under a new document ID and bound to a new chat session.
func (h *Handler) UploadForChat(w http.ResponseWriter, r *http.Request) {
	up, err := h.readPDF(w, r)
	if err != nil {
		h.writeFailure(w, r, err, "Failed to process document for chat")
		return
	}
	ctx := r.Context()

	extraction, err := h.svc.Reports.Extract(ctx, up.Filename, up.Data)
	if err != nil {
		h.writeFailure(w, r, err, "Failed to process document for chat")
		return
	}

	docID := newDocumentID()
	start := time.Now()
	chunks, err := h.svc.Indexer.Ingest(ctx, docID, extraction.Text, 0)
	if err != nil {
		h.writeFailure(w, r, err, "Failed to process document for chat")
		return
	}
	h.recordIngest("upload", len(chunks))
	h.track(ctx, analytics.IndexEvent(docID, "upload", len(chunks), time.Since(start)))

	session, err := h.svc.Chat.Start(ctx, docID)
	if err != nil {
		h.writeFailure(w, r, err, "Failed to process document for chat")
		return
	}
	h.writeJSON(w, http.StatusOK, uploadResponse{
		Success:    true,
		DocumentID: docID,
		SessionID:  session.ID,
		Message:    uploadedMessage,
	})
}

// SendMessage handles POST /api/v1/chat/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeFailure(w, r, err, "invalid chat message")
		return
	}

	start := time.Now()
	reply, err := h.svc.Chat.Send(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.writeFailure(w, r, err, "Failed to process message")
		return
	}
	h.track(r.Context(), analytics.QueryEvent(analytics.EventChatQuery,
		reply.Session.DocumentID, req.Message, reply.ChunkCount, reply.Outcome, time.Since(start)))
	h.writeJSON(w, http.StatusOK, sendMessageResponse{Success: true, Reply: reply})
}

// ListSessions handles GET /api/v1/chat/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.Chat.Sessions(r.Context())
	if err != nil {
		h.writeFailure(w, r, err, "Failed to fetch chat sessions")
		return
	}
	if sessions == nil {
		sessions = []chat.Summary{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": sessions})
}

// GetSession handles GET /api/v1/chat/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Chat.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeFailure(w, r, err, "Failed to fetch chat session")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "session": session})
}
