package evidence

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/JaimeStill/tayyib/internal/metrics"
	"github.com/JaimeStill/tayyib/pkg/lifecycle"
)

// Previews tracks temporary files that back evidence previews.
// A handle is the preview file's base name within the preview directory,
// so handles persisted with a session remain resolvable after a restart.
type Previews struct {
	dir     string
	owned   bool
	mu      sync.Mutex
	open    map[string]struct{}
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPreviews creates a preview registry rooted at dir. An empty dir
// creates a private temporary directory that is removed on Close.
func NewPreviews(dir string, logger *slog.Logger, m *metrics.Metrics) (*Previews, error) {
	owned := false
	if dir == "" {
		d, err := os.MkdirTemp("", "tayyib-previews-*")
		if err != nil {
			return nil, fmt.Errorf("create preview dir: %w", err)
		}
		dir = d
		owned = true
	} else if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create preview dir: %w", err)
	}

	return &Previews{
		dir:     dir,
		owned:   owned,
		open:    make(map[string]struct{}),
		logger:  logger.With("system", "previews"),
		metrics: m,
	}, nil
}

// Start registers a shutdown hook that releases every open preview.
func (p *Previews) Start(lc *lifecycle.Coordinator) {
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := p.Close(); err != nil {
			p.logger.Error("preview cleanup failed", "error", err)
			return
		}
		p.logger.Info("previews released")
	})
}

// Dir returns the preview directory.
func (p *Previews) Dir() string {
	return p.dir
}

// Open writes data to a new preview file and returns its handle.
func (p *Previews) Open(filename string, data []byte) (string, error) {
	f, err := os.CreateTemp(p.dir, "preview-*"+filepath.Ext(filepath.Base(filename)))
	if err != nil {
		return "", fmt.Errorf("create preview: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write preview: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close preview: %w", err)
	}

	handle := filepath.Base(f.Name())

	p.mu.Lock()
	p.open[handle] = struct{}{}
	n := len(p.open)
	p.mu.Unlock()

	p.metrics.SetPreviewHandles(n)
	return handle, nil
}

// Path resolves a handle to its file path. Handles containing path
// separators are rejected.
func (p *Previews) Path(handle string) (string, bool) {
	if handle == "" || handle != filepath.Base(handle) {
		return "", false
	}
	path := filepath.Join(p.dir, handle)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Release removes the preview behind handle. Unknown or already
// released handles are ignored.
func (p *Previews) Release(handle string) error {
	if handle == "" || handle != filepath.Base(handle) {
		return nil
	}

	p.mu.Lock()
	delete(p.open, handle)
	n := len(p.open)
	p.mu.Unlock()
	p.metrics.SetPreviewHandles(n)

	err := os.Remove(filepath.Join(p.dir, handle))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release preview: %w", err)
	}
	return nil
}

// Len returns the number of previews opened by this process and not yet released.
func (p *Previews) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open)
}

// Close releases every open preview and removes an owned directory.
func (p *Previews) Close() error {
	p.mu.Lock()
	handles := make([]string, 0, len(p.open))
	for h := range p.open {
		handles = append(handles, h)
	}
	p.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := p.Release(h); err != nil {
			errs = append(errs, err)
		}
	}

	if p.owned {
		if err := os.RemoveAll(p.dir); err != nil {
			errs = append(errs, fmt.Errorf("remove preview dir: %w", err))
		}
	}
	return errors.Join(errs...)
}
