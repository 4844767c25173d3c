package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/DoyleJ11/captains-backend/internal/hub"
)

const HostTokenHeader = "X-Host-Token"

const maxTeams = 16

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createRequest struct {
	Teams []string `json:"teams"`
}

type createResponse struct {
	Code      string `json:"code"`
	HostToken string `json:"hostToken"`
}

func CreateSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if len(req.Teams) > maxTeams {
			http.Error(w, "too many teams", http.StatusBadRequest)
			return
		}
		for i, name := range req.Teams {
			req.Teams[i] = strings.TrimSpace(name)
			if req.Teams[i] == "" {
				http.Error(w, "team names must not be empty", http.StatusBadRequest)
				return
			}
		}

		token := uuid.NewString()
		for {
			code, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			_, err = h.Create(r.Context(), code, req.Teams, token)
			if errors.Is(err, hub.ErrSessionExists) {
				continue // collision on code, regenerate
			}
			if err != nil {
				http.Error(w, "failed to create session", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusCreated, createResponse{Code: code, HostToken: token})
			return
		}
	}
}

func GetSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.Get(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		v, err := s.View(r.Context())
		if err != nil {
			http.Error(w, "session unavailable", http.StatusGone)
			return
		}
		writeJSON(w, http.StatusOK, v.Snapshot)
	}
}

func DeleteSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		s, err := h.Get(r.Context(), code)
		if err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		if !s.Authorize(r.Header.Get(HostTokenHeader)) {
			http.Error(w, "invalid host token", http.StatusForbidden)
			return
		}
		if err := h.Remove(r.Context(), code); err != nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
