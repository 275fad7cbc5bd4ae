package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Disk stores files directly under a root directory.
type Disk struct {
	root  string
	owner string
}

// NewDisk creates root when it is missing. owner is reported for every
// listed file.
func NewDisk(root, owner string) (*Disk, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create %q: %w", abs, err)
	}
	return &Disk{root: abs, owner: owner}, nil
}

func (d *Disk) Root() string {
	return d.root
}

// Create truncates or creates <root>/<name>.
func (d *Disk) Create(_ context.Context, name string) (io.WriteCloser, error) {
	f, err := os.OpenFile(filepath.Join(d.root, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// List reports the regular files under root, sorted by name.
func (d *Disk) List(_ context.Context) ([]FileStatus, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}

	files := make([]FileStatus, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if os.IsNotExist(err) {
			// removed while listing
			continue
		}
		if err != nil {
			return nil, err
		}
		files = append(files, newFileStatus(e.Name(), info.Size(), info.ModTime(), d.owner))
	}
	return files, nil
}
