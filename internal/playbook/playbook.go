package playbook

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ValidExtensions are the recognized playbook file extensions
var ValidExtensions = []string{
	".yaml",
	".yml",
}

// FileMeta describes a playbook file on disk.
type FileMeta struct {
	Path     string
	Name     string
	Size     int64
	Modified time.Time
}

// IsPlaybookFile returns true if the file has a valid playbook extension
func IsPlaybookFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, valid := range ValidExtensions {
		if ext == valid {
			return true
		}
	}
	return false
}

// Index walks dir and returns metadata for every playbook file beneath it,
// sorted by relative path. A missing directory yields an empty index.
func Index(dir string) ([]FileMeta, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []FileMeta

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip hidden files and directories (e.g. .git)
		if path != dir && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() || !IsPlaybookFile(path) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		base := filepath.Base(path)
		files = append(files, FileMeta{
			Path:     rel,
			Name:     strings.TrimSuffix(base, filepath.Ext(base)),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}
