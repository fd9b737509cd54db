// Package rest serves everything that is not the event stream: uploads,
// downloads, the room inspection API, health and metrics.
package rest

import (
	"collab-lab/contract"
	"collab-lab/domain"
	cerrors "collab-lab/errors"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FileStore is the part of the room storage exposed over HTTP.
type FileStore interface {
	AcceptUpload(roomID domain.RoomID, filename string, content io.Reader) error
	StreamFile(roomID domain.RoomID, filename string) (io.ReadCloser, domain.FileInfo, error)
	ListFileInfos(roomID domain.RoomID) ([]domain.FileInfo, error)
}

type Config struct {
	AllowedOrigin  string
	MaxUploadBytes int64
}

type handler struct {
	log     *slog.Logger
	service contract.ISessionService
	files   FileStore
	cfg     Config
}

// NewRouter mounts ws (the websocket endpoint) under /ws next to the HTTP API.
func NewRouter(log *slog.Logger, service contract.ISessionService, files FileStore,
	ws http.Handler, gatherer prometheus.Gatherer, cfg Config) http.Handler {
	h := &handler{log: log, service: service, files: files, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors(cfg.AllowedOrigin))

	r.Handle("/ws", ws)
	r.Post("/upload", h.upload)
	r.Get("/download/{roomId}/{filename}", h.download)
	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", h.listRooms)
		r.Get("/{roomId}/files", h.roomFiles)
	})
	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// upload expects a multipart form with roomId and file. The room is told
// about the new file list once the file is stored.
func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid upload: %w", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	roomID := domain.RoomID(r.FormValue("roomId"))
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file: %w", err))
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if err := h.files.AcceptUpload(roomID, filename, file); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	h.service.FilesChanged(r.Context(), roomID)
	writeJSON(w, http.StatusCreated, map[string]string{"filename": filename})
}

func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(chi.URLParam(r, "roomId"))
	content, info, err := h.files.StreamFile(roomID, chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", info.MimeType)
	w.Header().Set("Content-Length", fmt.Sprint(info.Size))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name))
	if _, err := io.Copy(w, content); err != nil {
		h.log.Warn("Download interrupted", "room", roomID, "file", info.Name, "error", err)
	}
}

func (h *handler) listRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Rooms())
}

func (h *handler) roomFiles(w http.ResponseWriter, r *http.Request) {
	infos, err := h.files.ListFileInfos(domain.RoomID(chi.URLParam(r, "roomId")))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rooms": len(h.service.Rooms())})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, cerrors.ErrInvalidRoomID), errors.Is(err, cerrors.ErrInvalidFilename):
		return http.StatusBadRequest
	case errors.Is(err, cerrors.ErrFileNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
