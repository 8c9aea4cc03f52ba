package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// clock is a settable time source
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func TestRotator_New(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		suffix string
	}{
		{
			name:   "defaults",
			opts:   Options{},
			suffix: "tracks_2024-05-01.log",
		},
		{
			name:   "json lines",
			opts:   Options{Prefix: "tracks", Ext: "jsonl", UTC: true},
			suffix: "tracks_2024-05-01.jsonl",
		},
		{
			name:   "nested directory",
			opts:   Options{Prefix: "out", Ext: "msgpack", UTC: true},
			suffix: "out_2024-05-01.msgpack",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
			tt.opts.Dir = filepath.Join(t.TempDir(), "a", "b")

			r, err := newRotator(tt.opts, testLogger(), c.now)
			require.NoError(t, err)
			defer r.Close()

			assert.DirExists(t, tt.opts.Dir)
			assert.FileExists(t, r.CurrentFile())
			assert.Equal(t, tt.suffix, filepath.Base(r.CurrentFile()))
		})
	}
}

func TestRotator_Write(t *testing.T) {
	r, err := NewRotator(Options{Dir: t.TempDir(), Ext: "jsonl"}, testLogger())
	require.NoError(t, err)
	defer r.Close()

	data := "{\"address\":\"4840D6\"}\n"
	n, err := r.Write([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	content, err := os.ReadFile(r.CurrentFile())
	require.NoError(t, err)
	assert.Equal(t, data, string(content))
}

func TestRotator_RotatesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	c := &clock{t: time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)}

	r, err := newRotator(Options{Dir: dir, Prefix: "tracks", Ext: "jsonl", UTC: true}, testLogger(), c.now)
	require.NoError(t, err)

	_, err = r.Write([]byte("day one\n"))
	require.NoError(t, err)
	first := r.CurrentFile()

	c.set(time.Date(2024, 5, 2, 0, 1, 0, 0, time.UTC))
	_, err = r.Write([]byte("day two\n"))
	require.NoError(t, err)
	second := r.CurrentFile()
	assert.NotEqual(t, first, second)

	require.NoError(t, r.Close())

	// previous day is compressed once Close has waited for it
	assert.NoFileExists(t, first)
	gzFile, err := os.Open(first + ".gz")
	require.NoError(t, err)
	defer gzFile.Close()
	gzReader, err := gzip.NewReader(gzFile)
	require.NoError(t, err)
	defer gzReader.Close()
	decompressed, err := io.ReadAll(gzReader)
	require.NoError(t, err)
	assert.Equal(t, "day one\n", string(decompressed))

	content, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "day two\n", string(content))
}

func TestRotator_Files(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRotator(Options{Dir: dir, Prefix: "tracks", Ext: "jsonl"}, testLogger())
	require.NoError(t, err)
	defer r.Close()

	testFiles := []string{
		"tracks_2023-01-01.jsonl",
		"tracks_2023-01-02.jsonl.gz",
	}
	for _, name := range testFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other_2023-01-01.jsonl"), []byte("x"), 0644))

	files, err := r.Files()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range files {
		names[filepath.Base(f)] = true
	}
	for _, name := range testFiles {
		assert.True(t, names[name], "expected %s", name)
	}
	assert.False(t, names["other_2023-01-01.jsonl"])
	assert.Len(t, files, len(testFiles)+1)
}

func TestRotator_Cleanup(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRotator(Options{Dir: dir, Prefix: "tracks", Ext: "jsonl"}, testLogger())
	require.NoError(t, err)
	defer r.Close()

	oldFile := filepath.Join(dir, "tracks_2023-01-01.jsonl.gz")
	require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0644))
	oldTime := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))

	recentFile := filepath.Join(dir, "tracks_2023-12-31.jsonl")
	require.NoError(t, os.WriteFile(recentFile, []byte("recent"), 0644))

	require.NoError(t, r.Cleanup(5))
	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, recentFile)
	assert.FileExists(t, r.CurrentFile())

	assert.Error(t, r.Cleanup(0))
	assert.Error(t, r.Cleanup(-1))
}

func TestRotator_Close(t *testing.T) {
	r, err := NewRotator(Options{Dir: t.TempDir()}, testLogger())
	require.NoError(t, err)

	_, err = r.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Write([]byte("more"))
	assert.Error(t, err)
}

func TestRotator_ConcurrentWrites(t *testing.T) {
	r, err := NewRotator(Options{Dir: t.TempDir()}, testLogger())
	require.NoError(t, err)
	defer r.Close()

	const goroutines = 10
	const ops = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < ops; j++ {
				_, err := r.Write([]byte(fmt.Sprintf("goroutine-%d-op-%d\n", id, j)))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	content, err := os.ReadFile(r.CurrentFile())
	require.NoError(t, err)
	assert.Contains(t, string(content), "goroutine-0-op-0")
	assert.Contains(t, string(content), fmt.Sprintf("goroutine-%d-op-%d", goroutines-1, ops-1))
}
