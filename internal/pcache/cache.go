package pcache

import (
	"container/list"
	"fmt"
	"log"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/cespare/xxhash/v2"
	"github.com/docker/docker/pkg/locker"
	"github.com/pierrec/lz4"
)

// lru is an LRU cache for piece records
type lru struct {
	config     *LRUConfig
	klocks     *locker.Locker // serializes disk loads per key
	mapLock    sync.Mutex
	pmap       map[string]*list.Element
	recentList *list.List // back is oldest, front is newest
	spilled    map[string]string
	maxSize    int
}

type cachedRecord struct {
	key   string
	value arrow.Record
}

// LRUConfig configures an LRU RecordCache
type LRUConfig struct {
	InitialSize int
	DiskPath    string
}

// NewLRU produces an LRU RecordCache
func NewLRU(config *LRUConfig) RecordCache {
	if config.InitialSize < 1 {
		log.Panicf("LRUConfig.InitialSize %d must be at least 1", config.InitialSize)
	}
	if config.DiskPath == "" {
		config.DiskPath = os.TempDir()
	}
	return &lru{
		config:     config,
		klocks:     locker.New(),
		pmap:       make(map[string]*list.Element),
		recentList: list.New(),
		spilled:    make(map[string]string),
		maxSize:    config.InitialSize,
	}
}

func (c *lru) Destroy() {
	c.mapLock.Lock()
	defer c.mapLock.Unlock()
	for e := c.recentList.Front(); e != nil; e = e.Next() {
		e.Value.(*cachedRecord).value.Release()
	}
	c.recentList.Init()
	c.pmap = make(map[string]*list.Element)
	for _, spillPath := range c.spilled {
		if err := os.Remove(spillPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Unable to remove spilled record %s", spillPath)
		}
	}
	c.spilled = make(map[string]string)
}

// Add inserts a record under key, evicting the least recently used record to
// disk when the cache is full. The cache holds its own reference.
func (c *lru) Add(key string, value arrow.Record) {
	value.Retain()
	c.mapLock.Lock()
	if old, ok := c.pmap[key]; ok {
		c.recentList.Remove(old)
		old.Value.(*cachedRecord).value.Release()
		delete(c.pmap, key)
	}
	e := c.recentList.PushFront(&cachedRecord{key: key, value: value})
	c.pmap[key] = e
	var evict *cachedRecord
	if c.recentList.Len() > c.maxSize {
		oldest := c.recentList.Back()
		c.recentList.Remove(oldest)
		evict = oldest.Value.(*cachedRecord)
		delete(c.pmap, evict.key)
	}
	c.mapLock.Unlock()
	if evict != nil {
		c.evictToDisk(evict)
	}
}

func (c *lru) tryMemory(key string) (arrow.Record, bool) {
	c.mapLock.Lock()
	defer c.mapLock.Unlock()
	e, ok := c.pmap[key]
	if !ok {
		return nil, false
	}
	c.recentList.MoveToFront(e)
	return e.Value.(*cachedRecord).value, true
}

// Get returns the record stored under key, reloading it from disk if it was
// evicted. The caller shares the cache's reference and must not release it.
func (c *lru) Get(key string) (arrow.Record, error) {
	if rec, ok := c.tryMemory(key); ok {
		return rec, nil
	}
	c.klocks.Lock(key)
	defer c.klocks.Unlock(key)
	// another caller may have finished loading while we waited
	if rec, ok := c.tryMemory(key); ok {
		return rec, nil
	}
	c.mapLock.Lock()
	spillPath, ok := c.spilled[key]
	if ok {
		delete(c.spilled, key)
	}
	c.mapLock.Unlock()
	if !ok {
		return nil, fmt.Errorf("Record %s is not in the cache", key)
	}
	rec, err := c.loadFromDisk(spillPath)
	if err != nil {
		return nil, err
	}
	c.Add(key, rec)
	rec.Release() // Add retained
	if out, ok := c.tryMemory(key); ok {
		return out, nil
	}
	return nil, fmt.Errorf("Record %s was evicted while loading", key)
}

// CurrentSize returns the number of records held in memory
func (c *lru) CurrentSize() int {
	c.mapLock.Lock()
	defer c.mapLock.Unlock()
	return c.recentList.Len()
}

// Resize scales the in-memory bound relative to the current number of cached
// records, evicting to disk as needed. Returns true if anything was evicted.
func (c *lru) Resize(frac float64) bool {
	c.mapLock.Lock()
	newMax := int(float64(c.recentList.Len()) * frac)
	if newMax < 1 {
		newMax = 1
	}
	c.maxSize = newMax
	var evicted []*cachedRecord
	for c.recentList.Len() > c.maxSize {
		oldest := c.recentList.Back()
		c.recentList.Remove(oldest)
		cr := oldest.Value.(*cachedRecord)
		delete(c.pmap, cr.key)
		evicted = append(evicted, cr)
	}
	c.mapLock.Unlock()
	for _, cr := range evicted {
		c.evictToDisk(cr)
	}
	return len(evicted) > 0
}

func (c *lru) spillFilePath(key string) string {
	return path.Join(c.config.DiskPath, strconv.FormatUint(xxhash.Sum64String(key), 16)+".arrow.lz4")
}

func (c *lru) evictToDisk(cr *cachedRecord) {
	defer cr.value.Release()
	spillPath := c.spillFilePath(cr.key)
	f, err := os.Create(spillPath)
	if err != nil {
		log.Printf("Unable to spill record %s: %v", cr.key, err)
		return
	}
	compressor := lz4.NewWriter(f)
	w := ipc.NewWriter(compressor, ipc.WithSchema(cr.value.Schema()))
	err = w.Write(cr.value)
	if err == nil {
		err = w.Close()
	}
	if err == nil {
		err = compressor.Close()
	}
	if err == nil {
		err = f.Close()
	} else {
		f.Close()
	}
	if err != nil {
		log.Printf("Unable to spill record %s: %v", cr.key, err)
		return
	}
	c.mapLock.Lock()
	c.spilled[cr.key] = spillPath
	c.mapLock.Unlock()
}

func (c *lru) loadFromDisk(spillPath string) (arrow.Record, error) {
	f, err := os.Open(spillPath)
	if err != nil {
		return nil, fmt.Errorf("Unable to load disk-swapped record %s: %w", spillPath, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Unable to close file %s", spillPath)
		}
		if err := os.Remove(spillPath); err != nil {
			log.Printf("Unable to remove file %s", spillPath)
		}
	}()
	decompressor := lz4.NewReader(f)
	r, err := ipc.NewReader(decompressor)
	if err != nil {
		return nil, fmt.Errorf("Unable to decompress disk-swapped record %s: %w", spillPath, err)
	}
	defer r.Release()
	if !r.Next() {
		if r.Err() != nil {
			return nil, r.Err()
		}
		return nil, fmt.Errorf("Disk-swapped record %s is empty", spillPath)
	}
	rec := r.Record()
	rec.Retain()
	return rec, nil
}
