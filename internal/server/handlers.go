package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/logger"
)

type registerRequest struct {
	Name           string `json:"name"`
	CorrelationKey string `json:"correlationKey"`
}

type registerResponse struct {
	statusBody
	AccessToken string `json:"accessToken"`
	ShortID     string `json:"shortId"`
}

type uploadURLRequest struct {
	ContentType string `json:"contentType"`
}

type confirmResponse struct {
	statusBody
	ObjectURL string    `json:"objectUrl"`
	UpdatedAt time.Time `json:"updatedAt"`
	Created   bool      `json:"created"`
}

// handleRegister serves PUT /actors.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientAddr(r)) {
		writeStatus(w, http.StatusTooManyRequests, "too many registration attempts")
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.CorrelationKey) == "" {
		writeError(w, r, errs.New(errs.ErrKindInvalidInput, "name and correlationKey are required"))
		return
	}

	res, err := s.broker.RegisterActor(r.Context(), r.Header.Get(HeaderGlobalKey), req.Name, req.CorrelationKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{
		statusBody:  newStatus(http.StatusOK, "USER_ACCESS_TOKEN: "+res.AccessToken),
		AccessToken: res.AccessToken,
		ShortID:     res.Actor.ShortID,
	})
}

// handleGet serves GET /actors/{key}/objects[?dataType=].
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entries, err := s.broker.Get(r.Context(),
		r.Header.Get(HeaderGlobalKey), chi.URLParam(r, "key"), r.URL.Query().Get("dataType"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleRead serves GET /actors/{key}/objects/{tag}. With X-Modified-Since it
// answers 304 when the object has not changed since then.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	var asOf *time.Time
	if raw := r.Header.Get(HeaderModifiedSince); raw != "" {
		t, err := s.broker.ParseTimestamp(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		asOf = &t
	}

	res, err := s.broker.IssueReadCapability(r.Context(),
		chi.URLParam(r, "key"), r.Header.Get(HeaderUserKey), chi.URLParam(r, "tag"), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, res.Body)
}

// handleUploadURL serves PUT /actors/{key}/objects/{tag}/upload-url.
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	var req uploadURLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ContentType) == "" {
		writeError(w, r, errs.New(errs.ErrKindInvalidInput, "contentType is required"))
		return
	}

	c, err := s.broker.IssueWriteCapability(r.Context(),
		chi.URLParam(r, "key"), r.Header.Get(HeaderUserKey), chi.URLParam(r, "tag"), req.ContentType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Body())
}

// handleConfirm serves PUT /actors/{key}/objects/{tag}/confirm.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	rec, created, err := s.broker.ConfirmWrite(r.Context(),
		chi.URLParam(r, "key"), r.Header.Get(HeaderUserKey), chi.URLParam(r, "tag"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	msg := "upload confirmed"
	if !created {
		msg = "upload refreshed"
	}
	writeJSON(w, http.StatusOK, confirmResponse{
		statusBody: newStatus(http.StatusOK, msg),
		ObjectURL:  rec.ObjectURL,
		UpdatedAt:  rec.UpdatedAt,
		Created:    created,
	})
}

// handleDelete serves DELETE /actors/{key}/objects/{tag}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	if err := s.broker.DeleteObject(r.Context(), chi.URLParam(r, "key"), r.Header.Get(HeaderUserKey), tag); err != nil {
		writeError(w, r, err)
		return
	}
	writeStatus(w, http.StatusOK, "object "+strings.ToUpper(tag)+" deleted")
}

// handleListAll serves GET /objects?actorKind=&dataType=.
func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := s.broker.ListAll(r.Context(), q.Get("actorKind"), q.Get("dataType"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady pings every dependency with a short deadline.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	result := make(map[string]string, len(s.checks))
	code := http.StatusOK
	for name, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			logger.FromContext(r.Context()).WarnWith("readiness check failed", err, logger.Fields{"check": name})
			result[name] = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}
	writeJSON(w, code, result)
}
