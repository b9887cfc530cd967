package tempstore

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestStore_AllocateCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	s := New(dir)

	path, err := s.Allocate()
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.NoFileExists(t, path)
}

func TestStore_AllocateUnique(t *testing.T) {
	s := New(t.TempDir())

	var (
		mu    sync.Mutex
		seen  = make(map[string]struct{})
		wg    sync.WaitGroup
		paths = 64
	)
	for range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path, err := s.Allocate()
			assert.NoError(t, err)

			mu.Lock()
			seen[path] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, paths)
}

func TestStore_Save(t *testing.T) {
	s := New(t.TempDir())
	path, err := s.Allocate()
	require.NoError(t, err)

	n, err := s.Save(path, strings.NewReader("ID3 audio"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3 audio", string(data))
}

func TestStore_SaveRefusesExisting(t *testing.T) {
	s := New(t.TempDir())
	path, err := s.Allocate()
	require.NoError(t, err)

	_, err = s.Save(path, strings.NewReader("first"))
	require.NoError(t, err)

	_, err = s.Save(path, strings.NewReader("second"))
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestStore_SaveReadError(t *testing.T) {
	s := New(t.TempDir())
	path, err := s.Allocate()
	require.NoError(t, err)

	_, err = s.Save(path, io.MultiReader(strings.NewReader("partial"), failingReader{}))
	assert.ErrorContains(t, err, "connection reset")

	s.Release(path)
	assert.NoFileExists(t, path)
}

func TestStore_WaveformPath(t *testing.T) {
	s := New("uploads")
	assert.Equal(t, "uploads/abc.wav", s.WaveformPath("uploads/abc"))
}

func TestStore_ReleaseMissing(t *testing.T) {
	s := New(t.TempDir())

	assert.NotPanics(t, func() {
		s.Release(filepath.Join(s.Dir(), "missing"))
		s.Release("")
	})
}
