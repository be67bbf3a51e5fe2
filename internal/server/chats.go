package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/practice-sem-2/messaging-service/internal/auth"
)

func (s *Server) CreateOrGetChat(w http.ResponseWriter, r *http.Request) {
	req := createChatRequest{}
	if !s.decode(w, r, &req) {
		return
	}

	chat, err := s.chats.CreateOrGetChat(r.Context(), auth.ClaimsFromContext(r.Context()), req.UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) ListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chats.GetUserChats(r.Context(), auth.ClaimsFromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	setPollInterval(w, s.opts.Poll.Chats)
	writeJSON(w, http.StatusOK, chatsResponse{
		Chats:          chats,
		PollIntervalMs: millis(s.opts.Poll.Chats),
	})
}

func (s *Server) GetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.chats.GetChat(r.Context(), auth.ClaimsFromContext(r.Context()), chi.URLParam(r, "chatID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) ListDirectMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.messages.ListDirect(r.Context(), auth.ClaimsFromContext(r.Context()), chi.URLParam(r, "chatID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	setPollInterval(w, s.opts.Poll.Messages)
	writeJSON(w, http.StatusOK, directMessagesResponse{
		Messages:       messages,
		PollIntervalMs: millis(s.opts.Poll.Messages),
	})
}

func (s *Server) SendDirectMessage(w http.ResponseWriter, r *http.Request) {
	req := sendMessageRequest{}
	if !s.decode(w, r, &req) {
		return
	}

	msg, err := s.messages.SendDirect(r.Context(), auth.ClaimsFromContext(r.Context()), chi.URLParam(r, "chatID"), SendRequestToModel(&req))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
