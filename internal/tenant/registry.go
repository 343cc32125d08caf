package tenant

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

var ErrUnknownTenant = errors.New("unknown tenant")

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Registry loads tenants lazily from <dir>/<name>.yaml.
type Registry struct {
	logger *slog.Logger
	dir    string
	read   func(name string) (*Tenant, error)

	group singleflight.Group

	mu     sync.RWMutex
	loaded map[string]*Tenant
	// bumped by every invalidation; a load started under an older epoch
	// is returned but not kept
	epoch uint64
}

func NewRegistry(logger *slog.Logger, dir string) *Registry {
	r := &Registry{logger: logger, dir: dir, loaded: map[string]*Tenant{}}
	r.read = r.load
	return r
}

// Get returns the cached snapshot or loads it. Concurrent loads of the same
// tenant share one read as long as no invalidation happened in between.
// Failed loads are not cached.
func (r *Registry) Get(name string) (*Tenant, error) {
	if !nameRe.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTenant, name)
	}
	r.mu.RLock()
	t, ok := r.loaded[name]
	epoch := r.epoch
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	// flights are per epoch so a caller never joins a read that an
	// invalidation has already made stale
	key := name + "@" + strconv.FormatUint(epoch, 10)
	v, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.RLock()
		t, ok := r.loaded[name]
		r.mu.RUnlock()
		if ok {
			return t, nil
		}
		t, err := r.read(name)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.epoch == epoch {
			r.loaded[name] = t
		}
		r.mu.Unlock()
		r.logger.Info("tenant loaded", "tenant", name, "services", len(t.services))
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tenant), nil
}

func (r *Registry) load(name string) (*Tenant, error) {
	root, err := os.OpenRoot(r.dir)
	if err != nil {
		return nil, fmt.Errorf("open config dir: %w", err)
	}
	defer func() { _ = root.Close() }()
	f, err := root.Open(name + ".yaml")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTenant, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open tenant %q: %w", name, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(name, f)
}

// Invalidate drops a loaded tenant; the next Get reloads it. It reports
// whether the tenant was loaded.
func (r *Registry) Invalidate(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.loaded[name]
	delete(r.loaded, name)
	r.epoch++
	if ok {
		r.logger.Info("tenant invalidated", "tenant", name)
	}
	return ok
}

// InvalidateAll drops every loaded tenant.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.loaded)
	r.epoch++
}
