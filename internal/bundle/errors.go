// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bundle

import "errors"

var (
	// ErrNoBundle indicates no source could supply a bundle
	ErrNoBundle = errors.New("no bundle available")

	// ErrNoChecksums indicates the checksums.sha256 file is missing
	ErrNoChecksums = errors.New("checksums.sha256 file not found")

	// ErrInvalidChecksumsFormat indicates the checksums file is malformed
	ErrInvalidChecksumsFormat = errors.New("invalid checksums file format")

	// ErrChecksumMismatch indicates a bundle's hash doesn't match the expected value
	ErrChecksumMismatch = errors.New("checksum verification failed")

	// ErrInvalidState indicates the installed-bundle record cannot be decoded
	ErrInvalidState = errors.New("invalid installed-bundle record")
)
