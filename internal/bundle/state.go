// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bundle

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/aplane-algo/scriptbridge/internal/fsutil"
)

// Installed records the bundle most recently loaded successfully.
type Installed struct {
	Version     uint64    `cbor:"1,keyasint"`
	Name        string    `cbor:"2,keyasint"`
	SHA256      string    `cbor:"3,keyasint"`
	InstalledAt time.Time `cbor:"4,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("bundle: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// StateStore persists the Installed record as CBOR.
type StateStore struct {
	path string
}

// NewStateStore returns a store backed by the file at path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

func (s *StateStore) Path() string { return s.path }

// Load returns the record, or nil when nothing was ever installed.
func (s *StateStore) Load() (*Installed, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read installed record: %w", err)
	}
	var rec Installed
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return &rec, nil
}

// Save replaces the record.
func (s *StateStore) Save(rec Installed) error {
	data, err := cborEncMode.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode installed record: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("failed to write installed record: %w", err)
	}
	return nil
}
