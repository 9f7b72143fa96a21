// Package exchange obsługuje protokół wymiany z 1C: sesje, upload plików
// po kawałkach, routing do katalogów importu i rozpakowywanie archiwów.
package exchange

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLockNotAcquired – nie udało się zdobyć blokady w zadanym czasie.
var ErrLockNotAcquired = errors.New("exchange: lock not acquired")

const lockRetryDelay = 100 * time.Millisecond

// FileLock to między-procesowa blokada na atomowym O_CREATE|O_EXCL.
// Kto pierwszy utworzy plik-marker, ten ma blokadę. Bez gwarancji
// kolejności dla czekających.
type FileLock struct {
	path string
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Acquire próbuje utworzyć marker; na EEXIST ponawia co lockRetryDelay
// aż do timeoutu.
func (l *FileLock) Acquire(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		_ = os.MkdirAll(filepath.Dir(l.path), 0o755)
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("filelock %s: %w", l.path, err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("filelock %s: %w", l.path, ErrLockNotAcquired)
		}
		time.Sleep(lockRetryDelay)
	}
}

// Release usuwa marker; "już go nie ma" nie jest błędem.
func (l *FileLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filelock release %s: %w", l.path, err)
	}
	return nil
}

// WithLock to wariant scope'owany: release gwarantowany na każdej ścieżce
// wyjścia, także przy panice w fn.
func (l *FileLock) WithLock(timeout time.Duration, fn func() error) error {
	if err := l.Acquire(timeout); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
