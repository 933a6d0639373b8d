package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/veilgate/veilgate/pkg/domain"
)

const reloadDebounce = 100 * time.Millisecond

// FileProvider serves configuration snapshots from a local file and
// republishes them when the file changes on disk.
type FileProvider struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	mu          sync.RWMutex
	config      Config
	snapshot    domain.Snapshot
	subscribers []chan domain.Snapshot
}

// NewFileProvider loads the file and starts watching its directory for
// changes. The initial load must succeed; later reload failures keep the
// previous snapshot and are logged.
func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &FileProvider{
		path:    absPath,
		logger:  logger,
		watcher: watcher,
		cancel:  cancel,
	}

	if err := p.load(); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, err
	}

	// Watch the directory, not the file: editors and config managers
	// replace files via rename, which detaches a file-level watch.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, fmt.Errorf("config: watch directory: %w", err)
	}

	go p.watchLoop(ctx)
	return p, nil
}

// Config returns the full configuration from the last successful load.
func (p *FileProvider) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// CurrentSnapshot returns the domain view of the current configuration.
func (p *FileProvider) CurrentSnapshot() domain.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Subscribe returns a channel that receives the current snapshot
// immediately and every later successful reload. Slow consumers drop
// intermediate snapshots rather than blocking reloads.
func (p *FileProvider) Subscribe() <-chan domain.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan domain.Snapshot, 1)
	p.subscribers = append(p.subscribers, ch)
	ch <- p.snapshot
	return ch
}

// Close stops the watcher. Subscriber channels stop receiving but are
// not closed, so late reads do not panic.
func (p *FileProvider) Close() error {
	p.cancel()
	return p.watcher.Close()
}

func (p *FileProvider) watchLoop(ctx context.Context) {
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Chmod) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if err := p.load(); err != nil {
						p.logger.Error("config reload failed, keeping previous snapshot",
							"path", p.path,
							"error", err,
						)
						return
					}
					p.logger.Info("configuration reloaded", "path", p.path)
				})
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", "error", err)
		}
	}
}

func (p *FileProvider) load() error {
	// #nosec G304 -- the path is operator-supplied at startup.
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", p.path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return err
	}
	snapshot := cfg.Snapshot()

	p.mu.Lock()
	p.config = cfg
	p.snapshot = snapshot
	subscribers := make([]chan domain.Snapshot, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
	return nil
}
