package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/practice-sem-2/messaging-service/internal/auth"
)

func (s *Server) CreateGroup(w http.ResponseWriter, r *http.Request) {
	req := createGroupRequest{}
	if !s.decode(w, r, &req) {
		return
	}

	group, err := s.groups.CreateGroup(r.Context(), auth.ClaimsFromContext(r.Context()), CreateGroupRequestToModel(&req))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.ListGroups(r.Context(), auth.ClaimsFromContext(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groupsResponse{Groups: groups})
}

func (s *Server) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.groups.GetGroup(r.Context(), auth.ClaimsFromContext(r.Context()), chi.URLParam(r, "groupID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) JoinGroup(w http.ResponseWriter, r *http.Request) {
	err := s.groups.JoinGroup(r.Context(), auth.ClaimsFromContext(r.Context()), chi.URLParam(r, "groupID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	err := s.groups.LeaveGroup(r.Context(), auth.ClaimsFromContext(r.Context()), chi.URLParam(r, "groupID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	err := s.groups.DeleteGroup(r.Context(), auth.ClaimsFromContext(r.Context()), chi.URLParam(r, "groupID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ListGroupMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.messages.ListGroup(r.Context(), auth.ClaimsFromContext(r.Context()), chi.URLParam(r, "groupID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	setPollInterval(w, s.opts.Poll.Messages)
	writeJSON(w, http.StatusOK, groupMessagesResponse{
		Messages:       messages,
		PollIntervalMs: millis(s.opts.Poll.Messages),
	})
}

func (s *Server) SendGroupMessage(w http.ResponseWriter, r *http.Request) {
	req := sendMessageRequest{}
	if !s.decode(w, r, &req) {
		return
	}

	msg, err := s.messages.SendGroup(r.Context(), auth.ClaimsFromContext(r.Context()), chi.URLParam(r, "groupID"), SendRequestToModel(&req))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
