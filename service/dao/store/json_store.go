package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

const (
	tempSuffix   = ".tmp"
	backupSuffix = ".bak"
)

// JSONStore persists a single collection of type T as one JSON document.
//
// Save writes a sibling temp file and moves it over the target, so readers
// never observe a partially written document. Load treats a missing,
// zero-length or unparsable document as an empty collection; an unparsable
// document is first copied aside with a .bak suffix.
type JSONStore[T any] struct {
	fs     afs.Service
	URL    string
	logger logrus.FieldLogger
	mu     sync.Mutex
}

// Option configures JSONStore
type Option func(o *options)

type options struct {
	logger logrus.FieldLogger
}

// WithLogger sets the logger used to report quarantined documents
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// NewJSONStore creates a store for the supplied document URL
func NewJSONStore[T any](fs afs.Service, URL string, opts ...Option) *JSONStore[T] {
	o := &options{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(o)
	}
	if fs == nil {
		fs = afs.New()
	}
	return &JSONStore[T]{fs: fs, URL: URL, logger: o.logger.WithField("store", URL)}
}

// Load returns the stored collection or the zero value of T when nothing usable is stored.
func (s *JSONStore[T]) Load(ctx context.Context) (T, error) {
	var ret T
	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.fs.Exists(ctx, s.URL)
	if err != nil {
		return ret, fmt.Errorf("failed to check %s: %w", s.URL, err)
	}
	if !exists {
		return ret, nil
	}
	data, err := s.fs.DownloadWithURL(ctx, s.URL)
	if err != nil {
		return ret, fmt.Errorf("failed to read %s: %w", s.URL, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ret, nil
	}
	if err = json.Unmarshal(data, &ret); err != nil {
		s.quarantine(ctx, err)
		var empty T
		return empty, nil
	}
	return ret, nil
}

func (s *JSONStore[T]) quarantine(ctx context.Context, cause error) {
	backupURL := s.URL + backupSuffix
	if err := s.fs.Copy(ctx, s.URL, backupURL); err != nil {
		s.logger.WithError(err).Error("failed to back up corrupt document")
	}
	s.logger.WithError(cause).WithField("backup", backupURL).Warn("corrupt document quarantined, starting empty")
}

// Save atomically replaces the stored document with v.
func (s *JSONStore[T]) Save(ctx context.Context, v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", s.URL, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.ensureParent(ctx); err != nil {
		return err
	}
	tempURL := s.URL + tempSuffix
	if err = s.fs.Upload(ctx, tempURL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", tempURL, err)
	}
	if err = s.fs.Move(ctx, tempURL, s.URL); err != nil {
		_ = s.fs.Delete(ctx, tempURL)
		return fmt.Errorf("failed to replace %s: %w", s.URL, err)
	}
	return nil
}

func (s *JSONStore[T]) ensureParent(ctx context.Context) error {
	parent, _ := url.Split(s.URL, file.Scheme)
	if parent == "" {
		return nil
	}
	exists, _ := s.fs.Exists(ctx, parent)
	if exists {
		return nil
	}
	if err := s.fs.Create(ctx, parent, file.DefaultDirOsMode, true); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", parent, err)
	}
	return nil
}
