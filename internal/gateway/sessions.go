package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/flemzord/cvchat/internal/chat"
	"github.com/flemzord/cvchat/internal/conversation"
	"github.com/flemzord/cvchat/internal/fallback"
	"github.com/flemzord/cvchat/internal/session"
	"github.com/flemzord/cvchat/internal/style"
	"github.com/go-chi/chi/v5"
)

type sessionCtxKey struct{}

// loadSession resolves the {id} URL parameter to a live session.
func (g *Gateway) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.sessions.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		ctx := context.WithValue(r.Context(), sessionCtxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *chat.Session {
	sess, _ := r.Context().Value(sessionCtxKey{}).(*chat.Session)
	return sess
}

type styleRequest struct {
	Style string `json:"style"`
}

type sessionResponse struct {
	ID       string      `json:"id"`
	Style    style.Style `json:"style,omitempty"`
	Greeting string      `json:"greeting,omitempty"`
}

func newSessionResponse(sess *chat.Session) sessionResponse {
	resp := sessionResponse{ID: sess.ID()}
	if st, ok := sess.Style(); ok {
		resp.Style = st
		resp.Greeting = sess.Greeting()
	}
	return resp
}

// handleCreateSession starts a session. The body is optional; an unknown
// style is answered in the developer style.
func (g *Gateway) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req styleRequest
		if r.ContentLength != 0 && !g.decodeBody(w, r, &req) {
			return
		}

		sess, err := g.sessions.Create(style.Style(req.Style))
		switch {
		case errors.Is(err, session.ErrMaxSessions):
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		case err != nil:
			g.logger.Error("creating session", "error", err)
			writeError(w, http.StatusInternalServerError, "could not create session")
			return
		}
		writeJSON(w, http.StatusCreated, newSessionResponse(sess))
	}
}

func (g *Gateway) handleSetStyle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req styleRequest
		if !g.decodeBody(w, r, &req) {
			return
		}
		sess := sessionFrom(r)
		sess.SetStyle(style.Style(req.Style))
		writeJSON(w, http.StatusOK, newSessionResponse(sess))
	}
}

type messageRequest struct {
	Text string `json:"text"`
}

func (g *Gateway) handleMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		if !g.decodeBody(w, r, &req) {
			return
		}

		reply, err := sessionFrom(r).Ask(r.Context(), req.Text)
		switch {
		case errors.Is(err, chat.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, conversation.ErrStyleNotSet):
			writeError(w, http.StatusConflict, "choose a conversation style first")
		case err != nil:
			g.logger.Error("answering message", "session", chi.URLParam(r, "id"), "error", err)
			writeError(w, http.StatusInternalServerError, "could not answer")
		default:
			writeJSON(w, http.StatusOK, reply)
		}
	}
}

func (g *Gateway) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionFrom(r).Stats())
	}
}

func (g *Gateway) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionFrom(r).History())
	}
}

func (g *Gateway) handleReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sessionFrom(r).Reset(); err != nil {
			g.logger.Error("resetting session", "error", err)
			writeError(w, http.StatusInternalServerError, "could not reset session")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleEndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.sessions.Delete(sessionFrom(r).ID())
		w.WriteHeader(http.StatusNoContent)
	}
}

type handoffRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Query string `json:"query"`
}

type handoffResponse struct {
	Mailto string `json:"mailto"`
}

func (g *Gateway) handleHandoff() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req handoffRequest
		if !g.decodeBody(w, r, &req) {
			return
		}

		link, err := sessionFrom(r).Handoff(req.Name, req.Email, req.Query)
		switch {
		case errors.Is(err, fallback.ErrInvalidName), errors.Is(err, fallback.ErrInvalidEmail):
			writeError(w, http.StatusBadRequest, err.Error())
		case err != nil:
			g.logger.Error("building handoff", "error", err)
			writeError(w, http.StatusInternalServerError, "could not build handoff")
		default:
			g.logger.Info("handoff prepared", "session", chi.URLParam(r, "id"), "email", req.Email)
			writeJSON(w, http.StatusOK, handoffResponse{Mailto: link})
		}
	}
}
