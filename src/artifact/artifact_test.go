package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbench/src/failure"
)

var fixed = time.Date(2025, 5, 1, 14, 3, 7, 0, time.Local)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(OutputDir(t.TempDir(), "claude_3_5_sonnet"), "claude_3_5_sonnet", WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	return s
}

func TestSplitName(t *testing.T) {
	tests := []struct{ in, base, ext string }{
		{"auth1.spec.txt", "auth1", ".spec.txt"},
		{"prompt.txt", "prompt", ".txt"},
		{"README", "README", ""},
		{".hidden", ".hidden", ""},
		{filepath.Join("prompts", "a.b.c"), "a", ".b.c"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			base, ext := SplitName(tt.in)
			assert.Equal(t, tt.base, base)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestSave(t *testing.T) {
	s := newStore(t)

	path, err := s.Save("auth1.spec.txt", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "auth1_response_claude_3_5_sonnet_20250501_140307.spec.txt", filepath.Base(path))
	assert.Equal(t, "output_claude_3_5_sonnet", filepath.Base(filepath.Dir(path)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}

func TestSaveNamesAreUniqueWithinTheSecond(t *testing.T) {
	s := newStore(t)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		path, err := s.Save("dir/auth1.spec.txt", "x")
		require.NoError(t, err)
		assert.False(t, seen[path], path)
		seen[path] = true
	}
	assert.True(t, seen[filepath.Join(s.Dir(), "auth1_response_claude_3_5_sonnet_20250501_140307_01.spec.txt")])
	assert.True(t, seen[filepath.Join(s.Dir(), "auth1_response_claude_3_5_sonnet_20250501_140307_02.spec.txt")])
}

func TestSaveDoesNotOverwriteEarlierRuns(t *testing.T) {
	s := newStore(t)
	old := filepath.Join(s.Dir(), "auth1_response_claude_3_5_sonnet_20250501_140307.spec.txt")
	require.NoError(t, os.WriteFile(old, []byte("previous"), 0644))

	path, err := s.Save("auth1.spec.txt", "new")
	require.NoError(t, err)
	assert.NotEqual(t, old, path)
	data, _ := os.ReadFile(old)
	assert.Equal(t, "previous", string(data))
}

func TestSaveReview(t *testing.T) {
	s := newStore(t)
	path, err := s.SaveReview("auth1.spec.txt", "dialog", "needs review")
	require.NoError(t, err)
	assert.Equal(t, "auth1_review_dialog_claude_3_5_sonnet_20250501_140307.spec.txt", filepath.Base(path))
}

func TestSaveSnapshotSharesReviewStem(t *testing.T) {
	s := newStore(t)
	note, err := s.SaveReview("auth1.spec.txt", "empty", "note")
	require.NoError(t, err)
	img, err := s.SaveSnapshot("auth1.spec.txt", "empty", []byte("\x89PNG"))
	require.NoError(t, err)

	assert.Equal(t, "auth1_review_empty_claude_3_5_sonnet_20250501_140307.png", filepath.Base(img))
	assert.Equal(t, "auth1_review_empty_claude_3_5_sonnet_20250501_140307.spec.txt", filepath.Base(note))
	data, err := os.ReadFile(img)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data)
}

func TestSaveFallsBackToErrorFile(t *testing.T) {
	s := newStore(t)
	stem := "bad_response_claude_3_5_sonnet_20250501_140307"
	s.used[stem+".txt"] = true
	for n := 1; n <= maxSuffix; n++ {
		s.used[fmt.Sprintf("%s_%02d.txt", stem, n)] = true
	}

	path, err := s.Save("bad.txt", "the content")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.Persist))
	assert.True(t, errors.Is(err, ErrNoFreeName))
	assert.Equal(t, "error_saving_response_claude_3_5_sonnet_20250501_140307.txt", filepath.Base(path))

	data, _ := os.ReadFile(path)
	assert.Contains(t, string(data), "the content")
	assert.Contains(t, string(data), "Error: ")
}

func TestSaveRemovesPartialFile(t *testing.T) {
	s := newStore(t)
	orig := writeContent
	t.Cleanup(func() { writeContent = orig })
	calls := 0
	writeContent = func(f *os.File, content string) error {
		calls++
		if calls == 1 {
			_, _ = f.WriteString(content[:3])
			return errors.New("disk full")
		}
		return orig(f, content)
	}

	path, err := s.Save("auth1.txt", "the content")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.Persist))
	assert.Equal(t, "error_saving_response_claude_3_5_sonnet_20250501_140307.txt", filepath.Base(path))

	_, statErr := os.Stat(filepath.Join(s.Dir(), "auth1_response_claude_3_5_sonnet_20250501_140307.txt"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}
