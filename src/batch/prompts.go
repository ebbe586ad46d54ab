package batch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// LoadPrompts reads every regular file in dir matching one of globs, sorted
// by name. Unreadable files are logged and skipped.
func LoadPrompts(dir string, globs []string) ([]PromptItem, error) {
	if len(globs) == 0 {
		globs = []string{"*.txt"}
	}
	seen := map[string]bool{}
	var paths []string
	for _, g := range globs {
		matches, err := filepath.Glob(filepath.Join(dir, g))
		if err != nil {
			return nil, fmt.Errorf("prompt glob %q: %w", g, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)

	items := make([]PromptItem, 0, len(paths))
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			log.Printf("Batch: skipping prompt %s: %v", p, err)
			continue
		}
		items = append(items, PromptItem{SourcePath: p, Content: string(data)})
	}
	return items, nil
}
