package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultResultsDir creates and returns a fresh dated output directory under
// base, of the form results/2026-08-28_000, incrementing the suffix until an
// unused name is found.
func DefaultResultsDir(base string) (string, error) {
	root := filepath.Join(base, "results")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}

	today := time.Now().Format("2006-01-02")
	for i := 0; i < 1000; i++ {
		dir := filepath.Join(root, fmt.Sprintf("%s_%03d", today, i))
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free results directory under %s", root)
}
