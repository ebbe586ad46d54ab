// Package recorder keeps the per-item timing manifest: when each prompt was
// committed and where its response was written.
package recorder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimestampLayout renders a millisecond timestamp: 2025-05-01 14:03:07.123.
const TimestampLayout = "2006-01-02 15:04:05.000"

type TimingEntry struct {
	Timestamp  string `json:"timestamp"`
	OutputFile string `json:"output_file"`
	SourceFile string `json:"source_file,omitempty"`
}

func FormatTimestamp(t time.Time) string { return t.Format(TimestampLayout) }

// Recorder is an append-only list of TimingEntry values. It is safe for
// concurrent use.
type Recorder struct {
	mu      sync.Mutex
	dir     string
	model   string
	started time.Time
	entries []TimingEntry

	// earlier holds the entries of previous runs found in the manifest on
	// the first flush.
	earlier []TimingEntry
	loaded  bool
}

func New(dir, model string, started time.Time) *Recorder {
	return &Recorder{dir: dir, model: model, started: started}
}

// Record appends an entry for a prompt committed at sent.
func (r *Recorder) Record(sent time.Time, outputFile, sourceFile string) TimingEntry {
	e := TimingEntry{
		Timestamp:  FormatTimestamp(sent),
		OutputFile: outputFile,
		SourceFile: sourceFile,
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return e
}

func (r *Recorder) Entries() []TimingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TimingEntry(nil), r.entries...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Path is timestamps_<model>_<YYYYMMDD>.json inside the output directory.
func (r *Recorder) Path() string {
	return filepath.Join(r.dir, fmt.Sprintf("timestamps_%s_%s.json", r.model, r.started.Format("20060102")))
}

// Flush writes the entries of earlier runs on the same day followed by every
// entry recorded so far to Path. It may be called more than once.
func (r *Recorder) Flush() (string, error) {
	path := r.Path()

	r.mu.Lock()
	if !r.loaded {
		earlier, err := readManifest(path)
		if err != nil {
			r.mu.Unlock()
			return "", err
		}
		r.earlier = earlier
		r.loaded = true
	}
	entries := make([]TimingEntry, 0, len(r.earlier)+len(r.entries))
	entries = append(entries, r.earlier...)
	entries = append(entries, r.entries...)
	r.mu.Unlock()

	data, err := MarshalIndent(entries)
	if err != nil {
		return "", fmt.Errorf("encode timings: %w", err)
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("write timings: %w", err)
	}
	return path, nil
}

// readManifest loads an existing manifest. A file that does not decode is
// moved aside to <path>.bak rather than overwritten.
func readManifest(path string) ([]TimingEntry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read timings: %w", err)
	}
	var entries []TimingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		if err := os.Rename(path, path+".bak"); err != nil {
			return nil, fmt.Errorf("keep unreadable timings: %w", err)
		}
		return nil, nil
	}
	return entries, nil
}

// MarshalIndent encodes v as JSON with four-space indentation and without
// HTML escaping, so code fragments stay readable.
func MarshalIndent(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFileAtomic writes data to a temporary sibling and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
