package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()
	require.Nil(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.Nil(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestListRecursiveLexical(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "date=2016-07-12", "part-0.parquet"), "b")
	writeFile(t, filepath.Join(dir, "date=2016-07-11", "part-0.parquet"), "a")
	writeFile(t, filepath.Join(dir, "_SUCCESS"), "")

	infos, err := New().List(context.Background(), dir)
	require.Nil(t, err)
	require.Len(t, infos, 3)
	require.Equal(t, filepath.ToSlash(filepath.Join(dir, "_SUCCESS")), infos[0].Path)
	require.Equal(t, filepath.ToSlash(filepath.Join(dir, "date=2016-07-11", "part-0.parquet")), infos[1].Path)
	require.Equal(t, filepath.ToSlash(filepath.Join(dir, "date=2016-07-12", "part-0.parquet")), infos[2].Path)
	require.EqualValues(t, 1, infos[1].Size)
}

func TestListSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.parquet")
	writeFile(t, path, "xyz")

	infos, err := New().List(context.Background(), path)
	require.Nil(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, filepath.ToSlash(path), infos[0].Path)
	require.EqualValues(t, 3, infos[0].Size)
}

func TestListMissingDir(t *testing.T) {
	_, err := New().List(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NotNil(t, err)
}

func TestGetAndCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a", "x.txt")
	dst := filepath.Join(dir, "b", "c", "x.txt")
	writeFile(t, src, "hello")

	store := New()
	require.Nil(t, store.Copy(context.Background(), src, dst))
	data, err := store.Get(context.Background(), dst)
	require.Nil(t, err)
	require.Equal(t, "hello", string(data))
}

func TestSyncMirrorsAndDeletes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, filepath.Join(src, "keep.txt"), "k")
	writeFile(t, filepath.Join(src, "sub", "nested.txt"), "n")
	writeFile(t, filepath.Join(dst, "stale.txt"), "s")

	store := New()
	require.Nil(t, store.Sync(context.Background(), src, dst, true))

	infos, err := store.List(context.Background(), dst)
	require.Nil(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, filepath.ToSlash(filepath.Join(dst, "keep.txt")), infos[0].Path)
	require.Equal(t, filepath.ToSlash(filepath.Join(dst, "sub", "nested.txt")), infos[1].Path)
}

func TestSyncWithoutDeleteKeepsExtraneous(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(dst, "extra.txt"), "e")

	store := New()
	require.Nil(t, store.Sync(context.Background(), src, dst, false))

	infos, err := store.List(context.Background(), dst)
	require.Nil(t, err)
	require.Len(t, infos, 2)
}

func TestDeleteAndExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "d", "f.txt")
	writeFile(t, path, "x")

	store := New()
	ok, err := store.Exists(context.Background(), path)
	require.Nil(t, err)
	require.True(t, ok)

	require.Nil(t, store.Delete(context.Background(), filepath.Join(dir, "d")))
	ok, err = store.Exists(context.Background(), path)
	require.Nil(t, err)
	require.False(t, ok)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().List(ctx, t.TempDir())
	require.NotNil(t, err)
}
