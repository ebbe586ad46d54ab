package recorder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 5, 1, 14, 3, 7, 123456789, time.Local)

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "2025-05-01 14:03:07.123", FormatTimestamp(day))
}

func TestFlush(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, "gpt_4o", day)
	r.Record(day, filepath.Join(dir, "auth1_response_gpt_4o_20250501_140307.spec.txt"), "auth1.spec.txt")
	r.Record(day.Add(time.Minute), filepath.Join(dir, "error_saving_response_gpt_4o_20250501_140407.txt"), "")

	path, err := r.Flush()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "timestamps_gpt_4o_20250501.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "[\n    {\n        \"timestamp\""), string(data))
	assert.NotContains(t, string(data), `"source_file": ""`)

	var got []TimingEntry
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "auth1.spec.txt", got[0].SourceFile)
	assert.Equal(t, "2025-05-01 14:04:07.123", got[1].Timestamp)
}

func TestFlushEmptyAndRepeated(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, "m", day)

	path, err := r.Flush()
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "[]\n", string(data))

	r.Record(day, "out.txt", "in.txt")
	_, err = r.Flush()
	require.NoError(t, err)
	data, _ = os.ReadFile(path)
	assert.Contains(t, string(data), "out.txt")

	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1)
}

func TestFlushKeepsEarlierRunsOfTheDay(t *testing.T) {
	dir := t.TempDir()

	first := New(dir, "gpt_4o", day)
	first.Record(day, "a_response.txt", "a.txt")
	_, err := first.Flush()
	require.NoError(t, err)

	second := New(dir, "gpt_4o", day.Add(time.Hour))
	second.Record(day.Add(time.Hour), "b_response.txt", "b.txt")
	path, err := second.Flush()
	require.NoError(t, err)
	second.Record(day.Add(2*time.Hour), "c_response.txt", "c.txt")
	_, err = second.Flush()
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []TimingEntry
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 3)
	assert.Equal(t, "a.txt", got[0].SourceFile)
	assert.Equal(t, "b.txt", got[1].SourceFile)
	assert.Equal(t, "c.txt", got[2].SourceFile)
	assert.Len(t, second.Entries(), 2)
}

func TestFlushMovesUnreadableManifestAside(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, "gpt_4o", day)
	require.NoError(t, os.WriteFile(r.Path(), []byte("not json"), 0644))

	r.Record(day, "a_response.txt", "a.txt")
	path, err := r.Flush()
	require.NoError(t, err)

	old, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "not json", string(old))

	var got []TimingEntry
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got, 1)
}

func TestRecordConcurrent(t *testing.T) {
	r := New(t.TempDir(), "m", day)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(day, "o", "s")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}
