// Package archive moves processed exports out of the staging directory.
//
// Moves use os.Rename where the backup directory shares a filesystem with
// staging. Across filesystems the file is copied to a temporary name, synced,
// renamed into place and only then removed from staging, so an interruption
// leaves at worst a stray temporary file and never loses the source.
package archive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const partialSuffix = ".partial"

// removeSource is replaced in tests.
var removeSource = os.Remove

// Options configure an Archiver.
type Options struct {
	BackupDir string
	FailedDir string // optional

	Attempts int           // tries per backup move (default 1)
	Backoff  time.Duration // pause between tries

	Now func() time.Time
}

// Archiver moves, sets aside and deletes staging files.
type Archiver struct {
	backupDir string
	failedDir string
	attempts  int
	backoff   time.Duration
	now       func() time.Time
}

// New creates an Archiver. Directories are created on first use.
func New(opts Options) *Archiver {
	a := &Archiver{
		backupDir: opts.BackupDir,
		failedDir: opts.FailedDir,
		attempts:  opts.Attempts,
		backoff:   opts.Backoff,
		now:       opts.Now,
	}
	if a.attempts <= 0 {
		a.attempts = 1
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Archive moves path into the backup directory and returns the new path. It
// retries failed moves; a source that disappears is not retried.
func (a *Archiver) Archive(path string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		dst, err := a.move(path, a.backupDir)
		if err == nil {
			return dst, nil
		}
		lastErr = err
		if errors.Is(err, os.ErrNotExist) {
			break
		}

		slog.Warn("backup move failed",
			"file", filepath.Base(path),
			"attempt", attempt,
			"max_attempts", a.attempts,
			"error", err,
		)
		if attempt < a.attempts && a.backoff > 0 {
			time.Sleep(a.backoff)
		}
	}
	return "", fmt.Errorf("move to %s: %w", a.backupDir, lastErr)
}

// SetAside moves path into the failed directory. It reports false without
// touching the file when no failed directory is configured.
func (a *Archiver) SetAside(path string) (string, bool, error) {
	if a.failedDir == "" {
		return "", false, nil
	}
	dst, err := a.move(path, a.failedDir)
	if err != nil {
		return "", false, fmt.Errorf("move to %s: %w", a.failedDir, err)
	}
	return dst, true, nil
}

// Discard deletes path. A file that is already gone is not an error.
func (a *Archiver) Discard(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (a *Archiver) move(src, dir string) (string, error) {
	if _, err := os.Lstat(src); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	dst := a.destination(dir, filepath.Base(src))
	err := os.Rename(src, dst)
	if err == nil {
		return dst, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", err
	}

	if err := copyAcross(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// destination picks a free name in dir, adding a timestamp before the
// extension when name is taken.
func (a *Archiver) destination(dir, name string) string {
	dst := filepath.Join(dir, name)
	if _, err := os.Lstat(dst); errors.Is(err, os.ErrNotExist) {
		return dst
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	stamp := a.now().UTC().Format("20060102T150405.000000000")
	return filepath.Join(dir, stem+"."+stamp+ext)
}

// copyAcross copies src to dst through a synced temporary file, then removes
// src. It does not observe cancellation.
func copyAcross(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp := dst + partialSuffix
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return err
	}

	// dst is complete. A source that cannot be removed stays behind as a
	// duplicate; reporting failure here would back it up a second time.
	in.Close()
	if rmErr := removeSource(src); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		slog.Warn("source left in place after copy",
			"path", src,
			"destination", dst,
			"error", rmErr,
		)
	}
	return nil
}
