package pcache

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// RecordCache is a bounded cache for materialized piece records. Records
// evicted from memory spill to disk as lz4-compressed Arrow IPC streams and
// are transparently reloaded on access.
type RecordCache interface {
	Destroy()
	Add(key string, value arrow.Record)
	Get(key string) (value arrow.Record, err error) // returns the record and marks it most recently used. Returns an error if absent.
	CurrentSize() int
	Resize(frac float64) bool // resize by a fraction RELATIVE TO THE CURRENT NUMBER OF ITEMS IN THE CACHE
}
