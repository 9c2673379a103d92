package batch

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Metanome/eeg-preprocppl/internal/runlog"
)

// CleanStaleOutputs deletes previously produced output files in dir older
// than maxAge. Only files carrying the cleaned-output suffix are touched;
// anything else in the directory is left alone. Returns the number of files
// removed. A missing directory is not an error.
func CleanStaleOutputs(dir string, maxAge time.Duration, log *runlog.Log) (int, error) {
	if log == nil {
		log = runlog.Discard()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !staleCandidate(name) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			log.Printf("[batch] could not remove stale output %s: %v", name, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("[batch] removed %d stale output file(s) from %s", removed, dir)
	}
	return removed, nil
}

// staleCandidate reports whether name looks like a pipeline output: the
// cleaned suffix on the stem, allowing for raw-format JSON sidecars named
// <base>_cleaned.raw.json.
func staleCandidate(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	stem = strings.TrimSuffix(stem, ".raw")
	return strings.HasSuffix(stem, cleanedSuffix)
}
