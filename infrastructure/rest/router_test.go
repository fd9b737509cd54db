package rest

import (
	"bytes"
	"collab-lab/domain"
	"collab-lab/mocks"
	"collab-lab/storage"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	router  http.Handler
	service *mocks.MockISessionService
	storage *storage.RoomStorage
}

func newFixture(t *testing.T) fixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	roomStorage, err := storage.NewRoomStorage(t.TempDir(), log)
	require.NoError(t, err)
	service := mocks.NewMockISessionService(gomock.NewController(t))

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "collab_test_total", Help: "test"}))

	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	router := NewRouter(log, service, roomStorage, ws, reg, Config{AllowedOrigin: "*", MaxUploadBytes: 1 << 20})
	return fixture{router: router, service: service, storage: roomStorage}
}

func (f fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, roomID, filename, content string) *http.Request {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("roomId", roomID))
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestRouter_UploadThenDownload(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given the room is told about the new file
	f.service.EXPECT().FilesChanged(gomock.Any(), domain.RoomID("A1B2")).Times(1)

	// When a file is uploaded
	rec := f.do(multipartUpload(t, "A1B2", "notes.txt", "hello world"))
	req.Equal(http.StatusCreated, rec.Code)

	// Then it is listed and can be downloaded
	names, err := f.storage.ListFiles("A1B2")
	req.NoError(err)
	req.Equal([]string{"notes.txt"}, names)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/download/A1B2/notes.txt", nil))
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("hello world", rec.Body.String())
	req.True(strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	req.Contains(rec.Header().Get("Content-Disposition"), `filename="notes.txt"`)
}

func TestRouter_UploadRejectsBadRoom(t *testing.T) {
	f := newFixture(t)
	rec := f.do(multipartUpload(t, "../etc", "notes.txt", "x"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_UploadRejectsHiddenName(t *testing.T) {
	f := newFixture(t)
	rec := f.do(multipartUpload(t, "A1B2", "A1B2-exec-1", "x"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_DownloadMissing(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/download/A1B2/ghost.txt", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RoomsAndFiles(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.service.EXPECT().Rooms().Return([]domain.RoomSummary{{ID: "A1B2", Members: 2, CreatedAt: createdAt}})
	req.NoError(f.storage.AcceptUpload("A1B2", "data.json", strings.NewReader(`{"a":1}`)))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	req.Equal(http.StatusOK, rec.Code)
	var rooms []domain.RoomSummary
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &rooms))
	req.Len(rooms, 1)
	req.Equal(domain.RoomID("A1B2"), rooms[0].ID)
	req.Equal(2, rooms[0].Members)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/rooms/A1B2/files", nil))
	req.Equal(http.StatusOK, rec.Code)
	var files []domain.FileInfo
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &files))
	req.Len(files, 1)
	req.Equal("data.json", files[0].Name)
	req.Equal(int64(7), files[0].Size)
	req.Equal("application/json", files[0].MimeType)
}

func TestRouter_HealthMetricsAndWebsocket(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.service.EXPECT().Rooms().Return(nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`{"status":"ok","rooms":0}`, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), "collab_test_total")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/ws?roomId=A1B2&userName=alice", nil))
	req.Equal(http.StatusTeapot, rec.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodOptions, "/upload", nil))
	req.Equal(http.StatusNoContent, rec.Code)
	req.Equal("*", rec.Header().Get("Access-Control-Allow-Origin"))
}
