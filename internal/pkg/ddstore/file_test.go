package ddstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddprofile"
)

func readProfiles(t *testing.T, pattern string) []ddprofile.Column {
	paths, err := filepath.Glob(pattern)
	require.Nil(t, err)

	cols := make([]ddprofile.Column, 0)
	for _, path := range paths {
		f, err := os.Open(path)
		require.Nil(t, err)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var col ddprofile.Column
			require.Nil(t, json.Unmarshal(scanner.Bytes(), &col))
			cols = append(cols, col)
		}
		f.Close()
	}
	return cols
}

func TestHashPartition(t *testing.T) {
	bin := hashPartition("foo", 100)
	assert.Equal(t, bin, uint(0x63))
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := New(context.Background(), Config{Kind: File, Dir: dir, Bins: 4})
	require.Nil(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Write(context.Background(), testColumn(fmt.Sprintf("s%d", i), "c"))
			assert.Nil(t, err)
		}(i)
	}
	wg.Wait()

	require.Nil(t, store.TearDown(context.Background()))

	cols := readProfiles(t, filepath.Join(dir, "profiles-bin*-0.jsonl"))
	assert.Len(t, cols, 10)

	sources := make(map[string]bool)
	for _, col := range cols {
		sources[col.Source] = true
		assert.Equal(t, ddprofile.Integer, col.Type)
	}
	assert.Len(t, sources, 10)
	assert.True(t, store.(*FileStore).BytesWritten() > 0)
}

func TestFileStoreSourceInOneBin(t *testing.T) {
	dir := t.TempDir()
	store, err := New(context.Background(), Config{Kind: File, Dir: dir, Bins: 8})
	require.Nil(t, err)

	for _, c := range []string{"a", "b", "c"} {
		require.Nil(t, store.Write(context.Background(), testColumn("orders", c)))
	}
	require.Nil(t, store.Flush(context.Background()))

	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	require.Nil(t, err)
	assert.Len(t, paths, 1)
}

func TestFileStoreFlushGenerations(t *testing.T) {
	dir := t.TempDir()
	store, err := New(context.Background(), Config{Kind: File, Dir: dir, Bins: 1})
	require.Nil(t, err)

	require.Nil(t, store.Write(context.Background(), testColumn("s", "a")))
	require.Nil(t, store.Flush(context.Background()))
	require.Nil(t, store.Write(context.Background(), testColumn("s", "b")))
	require.Nil(t, store.TearDown(context.Background()))

	first := readProfiles(t, filepath.Join(dir, "profiles-bin0-0.jsonl"))
	second := readProfiles(t, filepath.Join(dir, "profiles-bin0-1.jsonl"))
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "a", first[0].Column)
	assert.Equal(t, "b", second[0].Column)
}
