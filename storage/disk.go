// Package storage is the room-scoped file area: uploads, downloads and the
// throwaway workspaces used by code executions.
package storage

import (
	"collab-lab/domain"
	cerrors "collab-lab/errors"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const sniffSize = 512

// RoomStorage lays rooms out as <root>/<roomId>/<filename>. Entries whose
// name starts with the room id are private to the server (execution
// workspaces) and never listed or served.
type RoomStorage struct {
	root string
	log  *slog.Logger
}

func NewRoomStorage(root string, log *slog.Logger) (*RoomStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &RoomStorage{root: root, log: log}, nil
}

func (s *RoomStorage) CreateRoomStorage(roomID domain.RoomID) error {
	dir, err := s.roomDir(roomID)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// ListFiles returns the visible file names of the room, sorted.
func (s *RoomStorage) ListFiles(roomID domain.RoomID) ([]string, error) {
	infos, err := s.ListFileInfos(roomID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names, nil
}

// ListFileInfos is ListFiles with size and detected mime type.
func (s *RoomStorage) ListFileInfos(roomID domain.RoomID) ([]domain.FileInfo, error) {
	dir, err := s.roomDir(roomID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.FileInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	infos := make([]domain.FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || s.hidden(roomID, entry.Name()) {
			continue
		}
		info, err := s.fileInfo(filepath.Join(dir, entry.Name()))
		if err != nil {
			s.log.Debug("Skipping unreadable file", "room", roomID, "file", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b domain.FileInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos, nil
}

// AcceptUpload writes to a temporary file first so a half-written upload is
// never listed.
func (s *RoomStorage) AcceptUpload(roomID domain.RoomID, filename string, content io.Reader) error {
	path, err := s.filePath(roomID, filename)
	if err != nil {
		return err
	}
	if err := s.CreateRoomStorage(roomID); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), string(roomID)+"-upload-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	s.log.Info("File uploaded", "room", roomID, "file", filename)
	return nil
}

// StreamFile opens a visible file. The caller closes the reader.
func (s *RoomStorage) StreamFile(roomID domain.RoomID, filename string) (io.ReadCloser, domain.FileInfo, error) {
	path, err := s.filePath(roomID, filename)
	if err != nil {
		return nil, domain.FileInfo{}, err
	}
	info, err := s.fileInfo(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.FileInfo{}, cerrors.ErrFileNotFound
	}
	if err != nil {
		return nil, domain.FileInfo{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, domain.FileInfo{}, err
	}
	return file, info, nil
}

// NewWorkspace creates a directory private to one execution. The caller
// removes it.
func (s *RoomStorage) NewWorkspace(roomID domain.RoomID) (string, error) {
	dir, err := s.roomDir(roomID)
	if err != nil {
		return "", err
	}
	workspace := filepath.Join(dir, fmt.Sprintf("%s-exec-%s", roomID, uuid.NewString()))
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return "", err
	}
	return workspace, nil
}

func (s *RoomStorage) roomDir(roomID domain.RoomID) (string, error) {
	if !roomID.Valid() {
		return "", cerrors.ErrInvalidRoomID
	}
	return filepath.Join(s.root, string(roomID)), nil
}

func (s *RoomStorage) filePath(roomID domain.RoomID, filename string) (string, error) {
	dir, err := s.roomDir(roomID)
	if err != nil {
		return "", err
	}
	if filename == "" || filename == "." || filename == ".." ||
		filepath.Base(filename) != filename || strings.ContainsAny(filename, `/\`) ||
		s.hidden(roomID, filename) {
		return "", cerrors.ErrInvalidFilename
	}
	return filepath.Join(dir, filename), nil
}

func (s *RoomStorage) hidden(roomID domain.RoomID, name string) bool {
	return strings.HasPrefix(name, string(roomID))
}

func (s *RoomStorage) fileInfo(path string) (domain.FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return domain.FileInfo{}, err
	}
	if !stat.Mode().IsRegular() {
		return domain.FileInfo{}, fs.ErrNotExist
	}

	info := domain.FileInfo{
		Name:    stat.Name(),
		Size:    stat.Size(),
		ModTime: stat.ModTime().UTC(),
	}
	file, err := os.Open(path)
	if err != nil {
		return domain.FileInfo{}, err
	}
	defer file.Close()

	sniff := make([]byte, sniffSize)
	n, err := io.ReadFull(file, sniff)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.FileInfo{}, err
	}
	info.MimeType = mimetype.Detect(sniff[:n]).String()
	return info, nil
}
