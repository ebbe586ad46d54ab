// Package artifact names and writes the per-prompt output files. Names are
// unique within a run even when two prompts share a base name and finish in
// the same second.
package artifact

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chatbench/src/failure"
)

const (
	fileTimeLayout = "20060102_150405"
	maxSuffix      = 99
)

var ErrNoFreeName = errors.New("no free file name")

// writeContent is replaced in tests to simulate a full disk.
var writeContent = func(f *os.File, content string) error {
	_, err := f.WriteString(content)
	return err
}

// OutputDir is <root>/output_<model>.
func OutputDir(root, model string) string {
	return filepath.Join(root, "output_"+model)
}

// SplitName splits a prompt file name at its first dot:
// "auth1.spec.txt" gives "auth1" and ".spec.txt".
func SplitName(name string) (base, ext string) {
	name = filepath.Base(name)
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i], name[i:]
	}
	return name, ""
}

type Store struct {
	dir   string
	model string
	now   func() time.Time

	mu   sync.Mutex
	used map[string]bool
}

type Option func(*Store)

// WithClock replaces time.Now for file-name timestamps.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// NewStore creates dir if needed.
func NewStore(dir, model string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, failure.New(failure.Persist, "create output dir", err)
	}
	s := &Store{dir: dir, model: model, now: time.Now, used: map[string]bool{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

// Save writes a response as <base>_response_<model>_<ts>[_NN]<ext>. When that
// fails the content goes to an error file instead; the returned path is then
// the error file and the error wraps failure.Persist.
func (s *Store) Save(source, content string) (string, error) {
	base, ext := SplitName(source)
	path, err := s.create(fmt.Sprintf("%s_response_%s_%s", base, s.model, s.stamp()), ext, content)
	if err == nil {
		return path, nil
	}
	log.Printf("Artifact: saving response for %s failed: %v", source, err)
	errPath, errFileErr := s.SaveError(err, content)
	if errFileErr != nil {
		return "", failure.New(failure.Persist, "save", errors.Join(err, errFileErr))
	}
	return errPath, failure.New(failure.Persist, "save", err)
}

// SaveReview writes a note flagging a prompt whose capture was not usable as
// <base>_review_<class>_<model>_<ts>[_NN]<ext>.
func (s *Store) SaveReview(source, class, note string) (string, error) {
	base, ext := SplitName(source)
	path, err := s.create(fmt.Sprintf("%s_review_%s_%s_%s", base, class, s.model, s.stamp()), ext, note)
	if err != nil {
		return "", failure.New(failure.Persist, "save review", err)
	}
	return path, nil
}

// SaveSnapshot writes a screen image taken for a review note as
// <base>_review_<class>_<model>_<ts>[_NN].png.
func (s *Store) SaveSnapshot(source, class string, png []byte) (string, error) {
	base, _ := SplitName(source)
	path, err := s.create(fmt.Sprintf("%s_review_%s_%s_%s", base, class, s.model, s.stamp()), ".png", string(png))
	if err != nil {
		return "", failure.New(failure.Persist, "save snapshot", err)
	}
	return path, nil
}

// SaveError writes error_saving_response_<model>_<ts>[_NN].txt holding the
// cause and the content that could not be saved.
func (s *Store) SaveError(cause error, content string) (string, error) {
	body := fmt.Sprintf("Error: %v\n\nContent:\n%s", cause, content)
	return s.create(fmt.Sprintf("error_saving_response_%s_%s", s.model, s.stamp()), ".txt", body)
}

func (s *Store) stamp() string { return s.now().Format(fileTimeLayout) }

// create writes content to the first free name among stem+ext, stem_01+ext
// and so on. Files left by earlier runs are never overwritten.
func (s *Store) create(stem, ext, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for n := 0; n <= maxSuffix; n++ {
		name := stem + ext
		if n > 0 {
			name = fmt.Sprintf("%s_%02d%s", stem, n, ext)
		}
		if s.used[name] {
			continue
		}
		path := filepath.Join(s.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			s.used[name] = true
			continue
		}
		if err != nil {
			return "", err
		}
		s.used[name] = true
		err = writeContent(f, content)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("%w for %s%s", ErrNoFreeName, stem, ext)
}
