// Package filesystem reads legal documents from a local directory tree.
//
// Walk enumerates every supported file once. Watch follows the tree with
// fsnotify and reports created, updated and deleted files.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/logger"
	"github.com/custodia-labs/legalvault/internal/normalisers"
)

// DefaultMaxFileSize is the largest file read into memory.
const DefaultMaxFileSize = 64 << 20

// ChangeType classifies a watched file event.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// Change is one watched file event. Document.Content is empty for deletes.
type Change struct {
	Type     ChangeType
	Document domain.SourceDocument
}

// Option configures a Connector.
type Option func(*Connector)

// WithMaxFileSize skips files larger than n bytes.
func WithMaxFileSize(n int64) Option {
	return func(c *Connector) {
		if n > 0 {
			c.maxFileSize = n
		}
	}
}

// WithMetadata attaches metadata to every document produced.
func WithMetadata(md map[string]any) Option {
	return func(c *Connector) {
		c.metadata = md
	}
}

// Connector enumerates and watches a directory tree.
type Connector struct {
	rootPath    string
	maxFileSize int64
	metadata    map[string]any

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// New creates a filesystem connector rooted at rootPath.
func New(rootPath string, opts ...Option) *Connector {
	c := &Connector{rootPath: rootPath, maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RootPath returns the watched directory.
func (c *Connector) RootPath() string {
	return c.rootPath
}

// Walk sends every supported file under the root as a source document.
// Unreadable or unsupported files are reported on the error channel and
// the walk continues. Both channels are closed when the walk ends.
func (c *Connector) Walk(ctx context.Context) (<-chan domain.SourceDocument, <-chan error) {
	docs := make(chan domain.SourceDocument)
	errs := make(chan error, 16)

	go func() {
		defer close(docs)
		defer close(errs)

		if err := c.validateRoot(); err != nil {
			errs <- err
			return
		}

		err := filepath.WalkDir(c.rootPath, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				c.report(ctx, errs, fmt.Errorf("walk %s: %w", path, err))
				return nil
			}
			if isHidden(d.Name()) && path != c.rootPath {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}

			doc, err := c.read(path)
			if err != nil {
				if !errors.Is(err, domain.ErrUnsupportedFormat) {
					c.report(ctx, errs, err)
				}
				return nil
			}
			select {
			case docs <- *doc:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.report(ctx, errs, err)
		}
	}()

	return docs, errs
}

// Collect walks the tree and returns every document read. The first read
// error fails the call.
func (c *Connector) Collect(ctx context.Context) ([]domain.SourceDocument, error) {
	docsCh, errsCh := c.Walk(ctx)
	var docs []domain.SourceDocument
	for doc := range docsCh {
		docs = append(docs, doc)
	}
	var errs []error
	for err := range errsCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return docs, errors.Join(errs...)
	}
	return docs, ctx.Err()
}

// Watch follows the tree until ctx is done or the connector is closed.
// New subdirectories are added as they appear.
func (c *Connector) Watch(ctx context.Context) (<-chan Change, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("connector is closed")
	}
	if err := c.validateRoot(); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := addTree(watcher, c.rootPath); err != nil {
		c.mu.Unlock()
		_ = watcher.Close()
		return nil, err
	}
	c.watcher = watcher
	c.mu.Unlock()

	changes := make(chan Change)
	go func() {
		defer close(changes)
		defer c.closeWatcher(watcher)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(info.Name()) {
						if err := addTree(watcher, event.Name); err != nil {
							logger.Warn("Cannot watch %s: %v", event.Name, err)
						}
						continue
					}
				}
				change := c.handleFsEvent(event)
				if change == nil {
					continue
				}
				select {
				case changes <- *change:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Watcher error on %s: %v", c.rootPath, err)
			}
		}
	}()

	return changes, nil
}

// handleFsEvent converts an fsnotify event into a change, or nil when the
// event is irrelevant.
func (c *Connector) handleFsEvent(event fsnotify.Event) *Change {
	if isHidden(filepath.Base(event.Name)) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		format, _ := normalisers.DetectFormat(event.Name, nil)
		return &Change{
			Type:     ChangeDeleted,
			Document: domain.SourceDocument{URI: event.Name, Format: format},
		}
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return nil
		}
		doc, err := c.read(event.Name)
		if err != nil {
			if !errors.Is(err, domain.ErrUnsupportedFormat) {
				logger.Warn("Skipping %s: %v", event.Name, err)
			}
			return nil
		}
		kind := ChangeUpdated
		if event.Has(fsnotify.Create) {
			kind = ChangeCreated
		}
		return &Change{Type: kind, Document: *doc}
	default:
		return nil
	}
}

// Close stops any running watch. It is safe to call more than once.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.watcher == nil {
		return nil
	}
	err := c.watcher.Close()
	c.watcher = nil
	return err
}

func (c *Connector) closeWatcher(w *fsnotify.Watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher == w {
		c.watcher = nil
	}
	_ = w.Close()
}

// read loads one file and declares its format.
func (c *Connector) read(path string) (*domain.SourceDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if _, err := normalisers.DetectFormat(path, nil); err != nil {
		return nil, err
	}
	if info.Size() > c.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", domain.ErrInvalidInput, path, info.Size(), c.maxFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	format, err := normalisers.DetectFormat(path, content)
	if err != nil {
		return nil, err
	}

	md := make(map[string]any, len(c.metadata)+3)
	for k, v := range c.metadata {
		md[k] = v
	}
	md["filename"] = filepath.Base(path)
	md["size"] = info.Size()
	md["modified_at"] = info.ModTime().UTC().Format(time.RFC3339)

	return &domain.SourceDocument{
		URI:      path,
		Format:   format,
		Content:  content,
		Metadata: md,
	}, nil
}

func (c *Connector) validateRoot() error {
	info, err := os.Stat(c.rootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("root path error: %s does not exist", c.rootPath)
		}
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path error: %s is not a directory", c.rootPath)
	}
	return nil
}

func (c *Connector) report(ctx context.Context, errs chan<- error, err error) {
	select {
	case errs <- err:
	case <-ctx.Done():
	default:
		logger.Warn("%v", err)
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
