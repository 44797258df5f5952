// Package server exposes the score import pipeline over HTTP.
package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"rhythm-tracker/internal/importer"
	"rhythm-tracker/internal/lock"
	"rhythm-tracker/internal/logger"
	"rhythm-tracker/internal/mutation"
)

type Server struct {
	importer  *importer.Importer
	mutations *mutation.Service
	override  *logger.Override
	logger    zerolog.Logger
}

func New(imp *importer.Importer, mutations *mutation.Service, override *logger.Override, log zerolog.Logger) *Server {
	return &Server{
		importer:  imp,
		mutations: mutations,
		override:  override,
		logger:    log,
	}
}

// Handler builds the route table. Import type names are two-part
// ("file/batch-manual", "ir/direct-manual"), so the import route
// captures both segments.
func (s *Server) Handler() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /import/{class}/{name}", s.handleImport)
	mux.HandleFunc("GET /imports/{importID}", s.handleImportStatus)
	mux.HandleFunc("PATCH /scores/{scoreID}", s.handleUpdateScore)
	mux.HandleFunc("DELETE /scores/{scoreID}", s.handleDeleteScore)
	mux.HandleFunc("PUT /admin/log-level", s.handleLogLevel)

	return mux
}

type logLevelBody struct {
	Level       string `json:"level"`
	RevertAfter string `json:"revertAfter"`
}

// handleLogLevel temporarily overrides the global log level; it
// reverts on its own after the given duration.
func (s *Server) handleLogLevel(w http.ResponseWriter, r *http.Request) {
	var body logLevelBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	level, err := zerolog.ParseLevel(body.Level)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown log level")
		return
	}

	revertAfter, err := time.ParseDuration(body.RevertAfter)
	if err != nil || revertAfter <= 0 {
		writeError(w, http.StatusBadRequest, "revertAfter must be a positive duration")
		return
	}

	s.override.Set(level, revertAfter)
	s.logger.Info().
		Str("level", level.String()).
		Dur("revert_after", revertAfter).
		Msg("log level overridden")

	writeJSON(w, http.StatusOK, map[string]string{"level": level.String()})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-User-ID header")
		return
	}

	importType := r.PathValue("class") + "/" + r.PathValue("name")

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	// File uploads are deliberate user action; IR and API hooks are
	// automatic submissions.
	userIntent := r.PathValue("class") == "file"

	doc, err := s.importer.Import(r.Context(), userID, importType, payload, userIntent)
	switch {
	case errors.Is(err, lock.ErrLockExhausted):
		writeError(w, http.StatusConflict, "an import for this user is already in progress")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	importID := r.PathValue("importID")

	status, doc, err := s.importer.ImportStatus(r.Context(), importID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if status == "" {
		writeError(w, http.StatusNotFound, "no such import")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"import": doc,
	})
}

type scorePatchBody struct {
	Score   *int    `json:"score"`
	Lamp    *string `json:"lamp"`
	Comment *string `json:"comment"`
}

func (s *Server) handleUpdateScore(w http.ResponseWriter, r *http.Request) {
	var body scorePatchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed patch body")
		return
	}

	score, err := s.mutations.UpdateScore(r.Context(), r.PathValue("scoreID"), mutation.ScorePatch{
		Score:   body.Score,
		Lamp:    body.Lamp,
		Comment: body.Comment,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleDeleteScore(w http.ResponseWriter, r *http.Request) {
	if err := s.mutations.DeleteScore(r.Context(), r.PathValue("scoreID")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func userIDFrom(r *http.Request) (int, bool) {
	userID, err := strconv.Atoi(r.Header.Get("X-User-ID"))
	if err != nil || userID <= 0 {
		return 0, false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
