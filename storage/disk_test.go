package storage

import (
	cerrors "collab-lab/errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) (*RoomStorage, string) {
	root := t.TempDir()
	s, err := NewRoomStorage(root, slog.Default())
	require.NoError(t, err)
	return s, root
}

func TestRoomStorage_UploadListAndStream(t *testing.T) {
	req := require.New(t)
	s, _ := newStorage(t)
	req.NoError(s.CreateRoomStorage("r1"))

	// Given two uploads
	req.NoError(s.AcceptUpload("r1", "notes.txt", strings.NewReader("hello notes")))
	req.NoError(s.AcceptUpload("r1", "a.py", strings.NewReader("print(1)\n")))

	// Then they are listed sorted
	names, err := s.ListFiles("r1")
	req.NoError(err)
	req.Equal([]string{"a.py", "notes.txt"}, names)

	// And can be streamed back
	reader, info, err := s.StreamFile("r1", "notes.txt")
	req.NoError(err)
	defer reader.Close()
	content, err := io.ReadAll(reader)
	req.NoError(err)
	req.Equal("hello notes", string(content))
	req.Equal(int64(len("hello notes")), info.Size)
	req.True(strings.HasPrefix(info.MimeType, "text/plain"))
}

func TestRoomStorage_HidesRoomPrefixedEntries(t *testing.T) {
	req := require.New(t)
	s, root := newStorage(t)
	req.NoError(s.CreateRoomStorage("r1"))
	req.NoError(s.AcceptUpload("r1", "visible.txt", strings.NewReader("x")))

	// Given an execution workspace and a stray room-prefixed file
	workspace, err := s.NewWorkspace("r1")
	req.NoError(err)
	req.DirExists(workspace)
	req.NoError(os.WriteFile(filepath.Join(root, "r1", "r1-main.py"), []byte("x"), 0o644))

	names, err := s.ListFiles("r1")
	req.NoError(err)
	req.Equal([]string{"visible.txt"}, names)

	_, _, err = s.StreamFile("r1", "r1-main.py")
	req.ErrorIs(err, cerrors.ErrInvalidFilename)
}

func TestRoomStorage_WorkspacesAreDistinct(t *testing.T) {
	req := require.New(t)
	s, _ := newStorage(t)
	req.NoError(s.CreateRoomStorage("r1"))

	first, err := s.NewWorkspace("r1")
	req.NoError(err)
	second, err := s.NewWorkspace("r1")
	req.NoError(err)
	req.NotEqual(first, second)
}

func TestRoomStorage_RejectsUnsafeNames(t *testing.T) {
	req := require.New(t)
	s, _ := newStorage(t)

	for _, name := range []string{"", ".", "..", "../escape.txt", "dir/file.txt", `dir\file.txt`} {
		err := s.AcceptUpload("r1", name, strings.NewReader("x"))
		req.ErrorIs(err, cerrors.ErrInvalidFilename, "name=%q", name)
	}

	err := s.CreateRoomStorage("../r1")
	req.ErrorIs(err, cerrors.ErrInvalidRoomID)
}

func TestRoomStorage_MissingFile(t *testing.T) {
	req := require.New(t)
	s, _ := newStorage(t)
	req.NoError(s.CreateRoomStorage("r1"))

	_, _, err := s.StreamFile("r1", "nope.txt")
	req.ErrorIs(err, cerrors.ErrFileNotFound)

	names, err := s.ListFiles("never-created")
	req.NoError(err)
	req.Empty(names)
}
