package s3parquet

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/docker/docker/pkg/locker"

	"github.com/adatao/ddf"
	ddferrors "github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/internal/pcache"
	"github.com/adatao/ddf/internal/util"
)

// Registry caches dataset discovery state by path, so repeated Opens of one
// path share a single piece inventory, source engine frame and piece record
// cache instead of re-listing and re-loading the dataset.
type Registry struct {
	klocks  *locker.Locker
	mu      sync.Mutex
	entries map[string]*registryEntry
}

// registryEntry is the per-path discovery state. Piece sub-paths are
// immutable once discovered; refreshing a path builds a replacement entry.
type registryEntry struct {
	// path is the dataset root. Opening a lone piece file roots the dataset
	// at the file's parent directory.
	path                  string
	pieceSubPaths         []string
	partitionedByDateOnly bool
	srcFrame              ddf.EngineFrame
	srcNRows              int64
	srcSchema             ddf.Schema
	pieceRecords          pcache.RecordCache
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		klocks:  locker.New(),
		entries: make(map[string]*registryEntry),
	}
}

// DefaultRegistry serves every Open whose Options carry no Registry.
var DefaultRegistry = NewRegistry()

func (r *Registry) lookup(key string) (*registryEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[key]
	return ent, ok
}

// resolve returns the entry for path, discovering the dataset on first use.
// Construction is serialized per path, so concurrent Opens of one path load
// it once.
func (r *Registry) resolve(ctx context.Context, path string, opts *Options) (*registryEntry, error) {
	r.klocks.Lock(path)
	defer r.klocks.Unlock(path)
	if ent, ok := r.lookup(path); ok && !opts.Refresh {
		if ent.srcFrame == nil {
			return nil, ddferrors.CorruptCacheEntryError{Path: path}
		}
		return ent, nil
	}
	ent, err := discover(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	old := r.entries[path]
	r.entries[path] = ent
	r.mu.Unlock()
	if old != nil && old.pieceRecords != nil {
		old.pieceRecords.Destroy()
	}
	return ent, nil
}

// Invalidate drops the entry for path, destroying its piece record cache.
func (r *Registry) Invalidate(path string) {
	r.mu.Lock()
	ent := r.entries[path]
	delete(r.entries, path)
	r.mu.Unlock()
	if ent != nil && ent.pieceRecords != nil {
		ent.pieceRecords.Destroy()
	}
}

// Reset drops every entry.
func (r *Registry) Reset() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()
	for _, ent := range entries {
		if ent.pieceRecords != nil {
			ent.pieceRecords.Destroy()
		}
	}
}

// Len returns the number of cached entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// discover lists the piece files under dsPath, loads the dataset through the
// engine and assembles a fresh registry entry.
func discover(ctx context.Context, dsPath string, opts *Options) (*registryEntry, error) {
	start := time.Now()
	infos, err := opts.Store.List(ctx, dsPath)
	if err != nil {
		return nil, err
	}
	root := dsPath
	var subPaths []string
	if len(infos) == 1 && infos[0].Path == dsPath {
		// the path names a lone piece file; root the dataset at its parent
		if !util.IsPiecePath(dsPath) {
			return nil, ddferrors.NoPiecesFoundError{Path: dsPath}
		}
		root = path.Dir(dsPath)
		subPaths = []string{path.Base(dsPath)}
	} else {
		for _, info := range infos {
			sub := strings.TrimPrefix(info.Path, root+"/")
			if util.IsPiecePath(sub) {
				subPaths = append(subPaths, sub)
			}
		}
		if len(subPaths) == 0 {
			return nil, ddferrors.NoPiecesFoundError{Path: dsPath}
		}
	}
	sort.Strings(subPaths)
	opts.Logger.Infof("Discovered %d piece(s) under %s  <%s>", len(subPaths), root, time.Since(start).Round(time.Millisecond))

	// load dsPath, not root: opening a lone piece file must not pull the
	// file's siblings into the frame
	msg := fmt.Sprintf("Loading %s by engine...", dsPath)
	opts.Logger.Infof(msg)
	start = time.Now()
	frame, err := opts.Engine.Load(ctx, dsPath, &ddf.LoadOptions{
		CoerceBinaryToString: true,
		ReadWorkers:          opts.ReadWorkers,
	})
	if err != nil {
		return nil, err
	}
	nRows, err := frame.Count(ctx)
	if err != nil {
		return nil, err
	}
	opts.Logger.Infof("%s done!  <%s>", msg, time.Since(start).Round(time.Millisecond))

	spillDir := filepath.Join(opts.TempDir, "cache", fmt.Sprintf("%016x", xxhash.Sum64String(root)))
	if err = os.MkdirAll(spillDir, 0755); err != nil {
		return nil, err
	}
	return &registryEntry{
		path:                  root,
		pieceSubPaths:         subPaths,
		partitionedByDateOnly: datePartitionedOnly(subPaths, opts.DCol),
		srcFrame:              frame,
		srcNRows:              nRows,
		srcSchema:             frame.Schema(),
		pieceRecords: pcache.NewLRU(&pcache.LRUConfig{
			InitialSize: opts.PieceCacheSize,
			DiskPath:    spillDir,
		}),
	}, nil
}

// datePartitionedOnly reports whether pieces sit one level deep under date
// partition directories.
func datePartitionedOnly(subPaths []string, dCol string) bool {
	if len(subPaths) == 0 {
		return false
	}
	sp := subPaths[0]
	return strings.HasPrefix(sp, dCol+"=") && strings.Count(sp, "/") == 1
}
