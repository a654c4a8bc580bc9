// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// Loader executes a bundle. *bridge.Bridge satisfies it.
type Loader interface {
	LoadBundle(r io.Reader) error
}

// Provisioner chooses which bundle to load into a fresh engine.
type Provisioner struct {
	// Dir holds versioned bundles. Nil means only Fallback is used.
	Dir *Dir
	// Fallback is tried last. Nil means there is none.
	Fallback Source
	// State remembers the last successful install. Nil disables the record.
	State *StateStore
	// Log receives provisioning decisions. Nil means no logging.
	Log *zap.Logger

	now func() time.Time
}

func (p *Provisioner) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

func (p *Provisioner) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now().UTC()
}

// Candidates lists the sources Install would try, in order: the latest
// bundle when it supersedes the record, the recorded bundle, then the
// fallback.
func (p *Provisioner) Candidates() ([]Source, error) {
	var rec *Installed
	if p.State != nil {
		var err error
		if rec, err = p.State.Load(); err != nil {
			// A corrupt record only loses the preference for the old version.
			p.logger().Warn("ignoring installed-bundle record", zap.Error(err))
			rec = nil
		}
	}

	var out []Source
	seen := make(map[uint64]bool)
	add := func(s Source) {
		if s == nil || seen[s.Version()] {
			return
		}
		seen[s.Version()] = true
		out = append(out, s)
	}

	if p.Dir != nil {
		latest, err := p.Dir.Latest()
		switch {
		case errors.Is(err, ErrNoBundle):
		case err != nil:
			return nil, err
		case rec == nil || latest.Version() > rec.Version:
			add(latest)
		}

		if rec != nil && rec.Version > 0 {
			if f, err := p.Dir.Find(rec.Version); err == nil {
				add(f)
			} else {
				p.logger().Warn("installed bundle no longer available",
					zap.Uint64("version", rec.Version), zap.Error(err))
			}
		}
	}
	if p.Fallback != nil {
		add(p.Fallback)
	}
	return out, nil
}

// Install loads the best available bundle into l. On failure it moves on to
// the next candidate. The record is updated only after a successful load.
func (p *Provisioner) Install(l Loader) (Installed, error) {
	candidates, err := p.Candidates()
	if err != nil {
		return Installed{}, err
	}
	if len(candidates) == 0 {
		return Installed{}, ErrNoBundle
	}

	log := p.logger()
	var errs []error
	for _, src := range candidates {
		sum, err := load(l, src)
		if err != nil {
			log.Warn("bundle failed to load",
				zap.String("name", src.Name()), zap.Uint64("version", src.Version()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		rec := Installed{
			Version:     src.Version(),
			Name:        src.Name(),
			SHA256:      sum,
			InstalledAt: p.clock(),
		}
		if p.State != nil {
			if err := p.State.Save(rec); err != nil {
				log.Warn("bundle loaded but record not saved", zap.Error(err))
			}
		}
		log.Info("bundle installed", zap.String("name", rec.Name), zap.Uint64("version", rec.Version))
		return rec, nil
	}
	return Installed{}, fmt.Errorf("%w: %w", ErrNoBundle, errors.Join(errs...))
}

// load streams src into l while hashing what was read.
func load(l Loader, src Source) (string, error) {
	rc, err := src.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	h := sha256.New()
	if err := l.LoadBundle(io.TeeReader(rc, h)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
