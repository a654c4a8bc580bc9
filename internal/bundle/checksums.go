// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bundle

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ChecksumsFile is the name of the optional digest list in a bundle directory.
const ChecksumsFile = "checksums.sha256"

// checksumLineRegex matches "<64-hex-chars>  <filename>" format.
// One or two spaces between hash and filename (sha256sum uses two).
var checksumLineRegex = regexp.MustCompile(`^([a-fA-F0-9]{64})\s{1,2}\*?(.+)$`)

// Checksums maps bundle file names to lowercase hex SHA256 digests.
type Checksums map[string]string

// LoadChecksums reads and parses the checksums file in dir.
func LoadChecksums(dir string) (Checksums, error) {
	f, err := os.Open(filepath.Join(dir, ChecksumsFile))
	if os.IsNotExist(err) {
		return nil, ErrNoChecksums
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open checksums file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseChecksums(f)
}

// ParseChecksums parses sha256sum output. Blank lines and # comments are skipped.
func ParseChecksums(r io.Reader) (Checksums, error) {
	sums := make(Checksums)
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		m := checksumLineRegex.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%w: line %d: %q", ErrInvalidChecksumsFormat, lineNum, line)
		}
		sums[normalizeName(m[2])] = strings.ToLower(m[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading checksums file: %w", err)
	}
	if len(sums) == 0 {
		return nil, fmt.Errorf("%w: no entries found", ErrInvalidChecksumsFormat)
	}
	return sums, nil
}

// Lookup returns the digest listed for name.
func (c Checksums) Lookup(name string) (string, bool) {
	h, ok := c[normalizeName(name)]
	return h, ok
}

// normalizeName removes a leading "./" and normalizes path separators.
func normalizeName(name string) string {
	return strings.TrimPrefix(filepath.ToSlash(name), "./")
}

// digest returns the lowercase hex SHA256 of r.
func digest(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
