// Package storage ships finished archives from the worker destination
// directory to a blob store.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// BlobStore persists one object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error)
}

// Shipper uploads the files a job left in the destination directory.
type Shipper struct {
	store  BlobStore
	dir    string
	prefix string
	logger *zap.Logger
}

// NewShipper constructs a Shipper reading from dir. Object names are
// prefix/<file name>.
func NewShipper(store BlobStore, dir, prefix string, logger *zap.Logger) *Shipper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shipper{
		store:  store,
		dir:    dir,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Files lists the archive files written for jobID, sorted by name. Workers
// prefix every output file with the job id.
func (s *Shipper) Files(jobID string) ([]string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\*?[`) {
		return nil, fmt.Errorf("invalid job id %q", jobID)
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, jobID+"-*"))
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	files := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

// Ship uploads every archive file of jobID and returns the object URIs. It
// stops at the first failed upload.
func (s *Shipper) Ship(ctx context.Context, jobID string) ([]string, error) {
	files, err := s.Files(jobID)
	if err != nil {
		return nil, err
	}
	uris := make([]string, 0, len(files))
	for _, file := range files {
		uri, err := s.put(ctx, file)
		if err != nil {
			return uris, err
		}
		s.logger.Info("archive shipped", zap.String("job_id", jobID), zap.String("uri", uri))
		uris = append(uris, uri)
	}
	return uris, nil
}

func (s *Shipper) put(ctx context.Context, file string) (string, error) {
	f, err := os.Open(file) // #nosec G304 -- file comes from a glob inside the destination directory.
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Debug("close archive failed", zap.String("file", file), zap.Error(cerr))
		}
	}()
	name := filepath.Base(file)
	if s.prefix != "" {
		name = path.Join(s.prefix, name)
	}
	uri, err := s.store.PutObject(ctx, name, ContentType(file), f)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", file, err)
	}
	return uri, nil
}

// ContentType guesses the media type of a worker output file.
func ContentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".warc.gz"), strings.HasSuffix(name, ".warc"):
		return "application/warc"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
