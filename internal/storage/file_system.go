package storage

import (
	"io"
	fspkg "io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidName is returned for container or blob names that cannot be stored as a path element.
var ErrInvalidName = errors.New("invalid name")

type fs struct {
	workspace string
}

// NewFileSystem returns a new File System backend.
func NewFileSystem(workspace string) Backend {
	return &fs{
		workspace: workspace,
	}
}

func (b *fs) Name() string {
	return "file_system"
}

func (b *fs) Reader(container, id string) (io.ReadCloser, error) {
	path, err := b.path(container, id)
	if err != nil {
		return nil, err
	}

	rc, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open file")
	}
	return rc, nil
}

func (b *fs) Writer(container, id string) (io.WriteCloser, error) {
	path, err := b.path(container, id)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "could not create container directory")
	}

	wc, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not create file")
	}
	return &syncer{File: wc}, nil
}

func (b *fs) Blobs() ([]Blob, error) {
	var blobs []Blob

	err := filepath.WalkDir(b.workspace, func(path string, d fspkg.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == b.workspace {
				return fspkg.SkipDir
			}
			return err
		}

		if d.IsDir() || strings.HasSuffix(path, ".DS_Store") {
			return nil
		}

		rel, err := filepath.Rel(b.workspace, path)
		if err != nil {
			return err
		}

		dir, name := filepath.Split(rel)
		dir = filepath.Clean(dir)
		if dir == "." || strings.ContainsRune(dir, filepath.Separator) {
			return nil // Not a blob
		}

		container, err := url.PathUnescape(dir)
		if err != nil {
			return nil // Not a blob
		}
		id, err := url.PathUnescape(name)
		if err != nil {
			return nil // Not a blob
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		blobs = append(blobs, Blob{
			Container:  container,
			ID:         id,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})

	return blobs, errors.Wrap(err, "could not list blobs")
}

func (b *fs) RemoveAll(container string) error {
	dir, err := b.dir(container)
	if err != nil {
		return err
	}

	err = os.RemoveAll(dir)
	return errors.Wrap(err, "could not delete container directory")
}

func (b *fs) Remove(container, id string) error {
	path, err := b.path(container, id)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "could not delete file")
	}
	return nil
}

func (b *fs) Cleanup() error {
	// Find empty directories.
	//
	stats := map[string]int{}
	err := filepath.Walk(b.workspace, func(path string, info fspkg.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == b.workspace {
				return filepath.SkipDir
			}
			return err
		}

		if info.IsDir() {
			if path == b.workspace {
				return nil
			}
			stats[path] = 0
			return nil
		}

		if strings.HasSuffix(path, ".DS_Store") {
			return nil
		}

		for dir := filepath.Dir(path); dir != b.workspace && strings.HasPrefix(dir, b.workspace); dir = filepath.Dir(dir) {
			stats[dir]++
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "cleanup")
	}

	// Remove empty directories.
	//
	for dirname, count := range stats {
		if count == 0 {
			os.RemoveAll(dirname)
		}
	}
	return nil
}

func (b *fs) dir(container string) (string, error) {
	name, err := segment(container)
	if err != nil {
		return "", errors.Wrap(err, "invalid container")
	}
	return filepath.Join(b.workspace, name), nil
}

func (b *fs) path(container, id string) (string, error) {
	dir, err := b.dir(container)
	if err != nil {
		return "", err
	}

	name, err := segment(id)
	if err != nil {
		return "", errors.Wrap(err, "invalid blob identifier")
	}
	return filepath.Join(dir, name), nil
}

// segment escapes s into a single path element.
// Distinct values always give distinct elements.
func segment(s string) (string, error) {
	switch s {
	case "", ".", "..":
		return "", ErrInvalidName
	}
	return url.PathEscape(s), nil
}

// syncer flushes the file to disk on Close.
type syncer struct {
	*os.File
}

func (f *syncer) Close() error {
	if err := f.File.Sync(); err != nil {
		f.File.Close()
		return errors.Wrap(err, "could not sync file")
	}
	return f.File.Close()
}
