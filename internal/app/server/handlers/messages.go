package handlers

import (
	"net/http"
	"strconv"

	"github.com/arefin-aareef/talksy/internal/core/domain"
	"github.com/arefin-aareef/talksy/internal/core/services"
	"github.com/arefin-aareef/talksy/pkg/middleware"
)

type MessageHandler struct {
	msgSvc  services.IMessageService
	userSvc *services.UserService
}

func NewMessageHandler(m services.IMessageService, u *services.UserService) *MessageHandler {
	return &MessageHandler{msgSvc: m, userSvc: u}
}

type sendRequest struct {
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
}

// Send is the REST path of send-message. The message is delivered live to
// the receiver; there is no origin connection to acknowledge.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	var req sendRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, "message handler - send", err)
		return
	}
	sender, err := h.userSvc.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, r, "message handler - send", err)
		return
	}
	msg, err := h.msgSvc.SendMessage(r.Context(), sender.Identity(), nil, domain.SendMessageRequest{
		ReceiverID: req.Receiver,
		Content:    req.Content,
	})
	if err != nil {
		writeError(w, r, "message handler - send", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessage(msg))
}

func (h *MessageHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	convs, err := h.msgSvc.Conversations(r.Context(), userID)
	if err != nil {
		writeError(w, r, "message handler - conversations", err)
		return
	}
	out := make([]conversationResponse, 0, len(convs))
	for i := range convs {
		out = append(out, conversationResponse{
			User:        toPublicUser(&convs[i].Peer),
			LastMessage: toMessage(&convs[i].LastMessage),
			UnreadCount: convs[i].UnreadCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.msgSvc.History(r.Context(), userID, r.PathValue("userId"), page, limit)
	if err != nil {
		writeError(w, r, "message handler - conversation", err)
		return
	}
	out := make([]messageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, toMessage(&msgs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	err := h.msgSvc.MarkRead(r.Context(), userID, domain.MarkReadRequest{MessageID: r.PathValue("messageId")})
	if err != nil {
		writeError(w, r, "message handler - mark read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	n, err := h.msgSvc.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, r, "message handler - unread count", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	if err := h.msgSvc.Delete(r.Context(), r.PathValue("messageId"), userID); err != nil {
		writeError(w, r, "message handler - delete", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Message deleted"})
}
