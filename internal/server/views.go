package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/climate-studio/atlas/internal/store"
)

func (s *Server) handleListViews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter store.ViewFilter
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit: "+raw)
			return
		}
		filter.Limit = n
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid offset: "+raw)
			return
		}
		filter.Offset = n
	}

	views, err := s.views.ListViews(r.Context(), filter)
	if err != nil {
		s.log.Error("list views", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list views")
		return
	}
	if views == nil {
		views = []store.View{}
	}
	s.writeData(w, http.StatusOK, views)
}

func (s *Server) handleSaveView(w http.ResponseWriter, r *http.Request) {
	var v store.View
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid view payload")
		return
	}
	if strings.TrimSpace(v.Name) == "" {
		s.writeError(w, http.StatusBadRequest, "view name is required")
		return
	}
	v.ID = ""

	saved, err := s.views.SaveView(r.Context(), v)
	if err != nil {
		s.log.Error("save view", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to save view")
		return
	}
	s.writeData(w, http.StatusCreated, saved)
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := s.views.GetView(r.Context(), id)
	if errors.Is(err, store.ErrViewNotFound) {
		s.writeError(w, http.StatusNotFound, "view not found: "+id)
		return
	}
	if err != nil {
		s.log.Error("get view", zap.String("id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load view")
		return
	}
	s.writeData(w, http.StatusOK, v)
}

func (s *Server) handleUpdateView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var v store.View
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid view payload")
		return
	}
	v.ID = id

	saved, err := s.views.SaveView(r.Context(), v)
	if errors.Is(err, store.ErrViewNotFound) {
		s.writeError(w, http.StatusNotFound, "view not found: "+id)
		return
	}
	if err != nil {
		s.log.Error("update view", zap.String("id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to update view")
		return
	}
	s.writeData(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.views.DeleteView(r.Context(), id)
	if errors.Is(err, store.ErrViewNotFound) {
		s.writeError(w, http.StatusNotFound, "view not found: "+id)
		return
	}
	if err != nil {
		s.log.Error("delete view", zap.String("id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to delete view")
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"id": id})
}
