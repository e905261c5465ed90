package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestShipperShipsJobFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "job-1-example.org-2024-00000.warc.gz", "a")
	writeFile(t, dir, "job-1-example.org-2024-00001.warc.gz", "b")
	writeFile(t, dir, "job-2-example.org-2024-00000.warc.gz", "other job")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "job-1-dir"), 0o750))

	store := &fakeStore{}
	shipper := NewShipper(store, dir, "/archives/", zap.NewNop())

	uris, err := shipper.Ship(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, []string{
		"mem://archives/job-1-example.org-2024-00000.warc.gz",
		"mem://archives/job-1-example.org-2024-00001.warc.gz",
	}, uris)
	require.Equal(t, "a", store.objects["archives/job-1-example.org-2024-00000.warc.gz"])
	require.Equal(t, "application/warc", store.types["archives/job-1-example.org-2024-00001.warc.gz"])
}

func TestShipperNoFiles(t *testing.T) {
	t.Parallel()

	shipper := NewShipper(&fakeStore{}, t.TempDir(), "", nil)
	uris, err := shipper.Ship(context.Background(), "job-1")
	require.NoError(t, err)
	require.Empty(t, uris)
}

func TestShipperRejectsGlobIDs(t *testing.T) {
	t.Parallel()

	shipper := NewShipper(&fakeStore{}, t.TempDir(), "", nil)
	for _, id := range []string{"", "*", "a/b", "job?"} {
		_, err := shipper.Ship(context.Background(), id)
		require.Error(t, err, id)
	}
}

func TestShipperStopsOnUploadError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "job-1-a.warc.gz", "a")
	writeFile(t, dir, "job-1-b.warc.gz", "b")
	shipper := NewShipper(&fakeStore{err: errors.New("quota")}, dir, "", nil)

	uris, err := shipper.Ship(context.Background(), "job-1")
	require.ErrorContains(t, err, "quota")
	require.Empty(t, uris)
}

func TestContentType(t *testing.T) {
	t.Parallel()

	require.Equal(t, "application/warc", ContentType("a.warc.gz"))
	require.Equal(t, "application/warc", ContentType("a.warc"))
	require.Equal(t, "application/json", ContentType("a.json"))
	require.Equal(t, "application/octet-stream", ContentType("a.bin"))
}

func writeFile(t *testing.T, dir, name, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o600))
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	err     error
}

func (f *fakeStore) PutObject(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string]string{}
		f.types = map[string]string{}
	}
	f.objects[name] = string(data)
	f.types[name] = contentType
	return "mem://" + name, nil
}
