package importer

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/claude/repform/internal/models"
)

var recordingSuffixes = []string{".ndjson", ".ndjson.gz"}

// IsRecording reports whether name looks like a landmark recording.
func IsRecording(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range recordingSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// FindRecordings returns every recording under dir, sorted by path.
// Hidden directories are not descended into.
func FindRecordings(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsRecording(d.Name()) {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// ExerciseFromName extracts an exercise hint from a file name of the form
// "<exercise>_<anything>.ndjson". Names without a recognized prefix return
// Unknown, which leaves the exercise to auto-detection.
func ExerciseFromName(name string) models.ExerciseKind {
	base := filepath.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return models.Unknown
	}
	kind, err := models.ParseExerciseKind(prefix)
	if err != nil {
		return models.Unknown
	}
	return kind
}
