package session

import "github.com/claude/repform/internal/models"

// faultSet keeps the first fault of each category in arrival order.
type faultSet []models.Fault

func (fs faultSet) add(faults ...models.Fault) faultSet {
	for _, f := range faults {
		if !fs.has(f.Category) {
			fs = append(fs, f)
		}
	}
	return fs
}

func (fs faultSet) has(category string) bool {
	for _, f := range fs {
		if f.Category == category {
			return true
		}
	}
	return false
}
