package ddf

import "context"

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	// Path is the object's full path, including the listing root.
	Path string
	Size int64
}

// ObjectStore abstracts the blob store holding dataset piece files. Paths use
// forward slashes; a "directory" is a shared path prefix. Implementations
// live under the storage subpackages.
type ObjectStore interface {
	// List returns every object under dir, recursively, in lexical order.
	List(ctx context.Context, dir string) ([]ObjectInfo, error)
	// Get returns one object's contents.
	Get(ctx context.Context, path string) ([]byte, error)
	// Copy duplicates one object.
	Copy(ctx context.Context, src string, dst string) error
	// Sync mirrors srcDir under dstDir. When del is true, objects under
	// dstDir with no counterpart under srcDir are removed.
	Sync(ctx context.Context, srcDir string, dstDir string, del bool) error
	// Delete removes dir and everything beneath it.
	Delete(ctx context.Context, dir string) error
	Exists(ctx context.Context, path string) (bool, error)
}
