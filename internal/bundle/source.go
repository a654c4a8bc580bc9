// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package bundle supplies script bundles to a bridge: it discovers versioned
// bundles on disk, remembers which one was installed and watches for newer
// ones. The bridge never learns where a bundle came from.
package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Source is one readable bundle.
type Source interface {
	// Open returns the bundle bytes. The caller closes the reader.
	Open() (io.ReadCloser, error)
	// Version orders sources; a higher version supersedes a lower one.
	Version() uint64
	// Name identifies the source in logs and the installed record.
	Name() string
}

// File is a bundle stored in a single file.
type File struct {
	path    string
	version uint64
	sha256  string // expected digest, empty when unverified
}

// NewFile returns a source reading path at the given version.
func NewFile(path string, version uint64) *File {
	return &File{path: path, version: version}
}

// Fallback returns the source used when no bundle has ever been installed.
// It always has version 0.
func Fallback(path string) *File {
	return NewFile(path, 0)
}

func (f *File) Version() uint64 { return f.version }
func (f *File) Name() string    { return filepath.Base(f.path) }
func (f *File) Path() string    { return f.path }

// Open reads the file. A file with an expected digest is read fully and
// rejected with ErrChecksumMismatch when its content differs.
func (f *File) Open() (io.ReadCloser, error) {
	if f.sha256 == "" {
		return os.Open(f.path)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	got, err := digest(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if got != f.sha256 {
		return nil, fmt.Errorf("%w: %s (expected %s..., got %s...)",
			ErrChecksumMismatch, f.Name(), f.sha256[:16], got[:16])
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// bundleNameRegex matches versioned bundle files such as bundle-42.js.
var bundleNameRegex = regexp.MustCompile(`^bundle-(\d+)\.js$`)

// IsBundleName reports whether name is a versioned bundle file name.
func IsBundleName(name string) bool {
	return bundleNameRegex.MatchString(name)
}

// Dir discovers versioned bundles in a directory.
type Dir struct {
	path   string
	verify bool
}

// NewDir returns a directory source. When verify is set only bundles listed
// in checksums.sha256 are offered and each is checked on Open.
func NewDir(path string, verify bool) *Dir {
	return &Dir{path: path, verify: verify}
}

func (d *Dir) Path() string { return d.path }

// List returns the bundles in the directory in ascending version order.
// A missing directory holds no bundles.
func (d *Dir) List() ([]*File, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read bundle directory: %w", err)
	}

	var sums Checksums
	if d.verify {
		if sums, err = LoadChecksums(d.path); err != nil {
			return nil, err
		}
	}

	var files []*File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := bundleNameRegex.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		v, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		f := NewFile(filepath.Join(d.path, e.Name()), v)
		if d.verify {
			h, ok := sums.Lookup(e.Name())
			if !ok {
				continue
			}
			f.sha256 = h
		}
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// Latest returns the highest-versioned bundle, or ErrNoBundle.
func (d *Dir) Latest() (*File, error) {
	files, err := d.List()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoBundle
	}
	return files[len(files)-1], nil
}

// Find returns the bundle with exactly the given version, or ErrNoBundle.
func (d *Dir) Find(version uint64) (*File, error) {
	files, err := d.List()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.version == version {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: version %d", ErrNoBundle, version)
}
