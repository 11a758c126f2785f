// Package localfs provides an ObjectStore backed by the local filesystem.
// It is the default store for development and testing, and the reference
// implementation of the ObjectStore contract: forward-slash paths, recursive
// lexical listings, and prefix-as-directory semantics.
package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/adatao/ddf"
)

// Store reads and writes objects under ordinary filesystem paths.
type Store struct{}

// New returns a filesystem-backed Store.
func New() *Store {
	return &Store{}
}

var _ ddf.ObjectStore = (*Store)(nil)

// List returns every file under dir, recursively, in lexical path order.
// Listing a path which is itself a file returns that single file.
func (s *Store) List(ctx context.Context, dir string) ([]ddf.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []ddf.ObjectInfo{{Path: filepath.ToSlash(dir), Size: fi.Size()}}, nil
	}
	var infos []ddf.ObjectInfo
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		st, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, ddf.ObjectInfo{Path: filepath.ToSlash(path), Size: st.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// Get returns the contents of one file.
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.FromSlash(path))
}

// Copy duplicates src to dst, creating parent directories as needed.
func (s *Store) Copy(ctx context.Context, src string, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(filepath.FromSlash(src))
	if err != nil {
		return err
	}
	defer in.Close()
	dst = filepath.FromSlash(dst)
	if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Sync mirrors every file under srcDir to the same relative path under
// dstDir. When del is true, files under dstDir with no counterpart under
// srcDir are removed afterwards.
func (s *Store) Sync(ctx context.Context, srcDir string, dstDir string, del bool) error {
	srcs, err := s.List(ctx, srcDir)
	if err != nil {
		return err
	}
	synced := make(map[string]bool, len(srcs))
	for _, src := range srcs {
		rel, err := filepath.Rel(filepath.FromSlash(srcDir), filepath.FromSlash(src.Path))
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		synced[rel] = true
		if err = s.Copy(ctx, src.Path, dstDir+"/"+rel); err != nil {
			return err
		}
	}
	if !del {
		return nil
	}
	dsts, err := s.List(ctx, dstDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, dst := range dsts {
		rel, err := filepath.Rel(filepath.FromSlash(dstDir), filepath.FromSlash(dst.Path))
		if err != nil {
			return err
		}
		if !synced[filepath.ToSlash(rel)] {
			if err = os.Remove(filepath.FromSlash(dst.Path)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete removes dir and everything beneath it.
func (s *Store) Delete(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.RemoveAll(filepath.FromSlash(dir))
}

// Exists reports whether path names an existing file or directory.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := os.Stat(filepath.FromSlash(path)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
