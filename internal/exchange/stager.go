package exchange

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ErrPayloadTooLarge – plik przekroczył limit z configa; żaden bajt ponad
// limit nie ląduje na dysku.
var ErrPayloadTooLarge = errors.New("exchange: payload too large")

// ChunkedFileStager dokleja kolejne kawałki body do pliku sesji.
// 1C wysyła duże pliki w wielu requestach mode=file, więc append i nic
// więcej – bez truncate, bez ponownego czytania.
type Stager struct {
	log       zerolog.Logger
	tempRoot  string // <media>/1c_temp
	sessionID string
	limit     int64
	lockWait  time.Duration
}

func NewStager(log zerolog.Logger, tempRoot, sessionID string, limit int64, lockWait time.Duration) *Stager {
	return &Stager{
		log:       log.With().Str("sessid", sessionID).Logger(),
		tempRoot:  tempRoot,
		sessionID: sessionID,
		limit:     limit,
		lockWait:  lockWait,
	}
}

func (s *Stager) Dir() string {
	return filepath.Join(s.tempRoot, s.sessionID)
}

// Path zwraca ścieżkę stagingu dla nazwy pliku, obciętej do base name –
// żadnych "../" z zewnątrz.
func (s *Stager) Path(filename string) string {
	return filepath.Join(s.Dir(), filepath.Base(filename))
}

func (s *Stager) lockFor(filename string) *FileLock {
	return NewFileLock(s.Path(filename) + ".lock")
}

// StagedWriter trzyma jeden otwarty uchwyt na czas requestu i pilnuje
// sumarycznego limitu bajtów.
type StagedWriter struct {
	f       *os.File
	lock    *FileLock
	limit   int64
	written int64 // rozmiar pliku łącznie z poprzednimi requestami
}

// OpenForWrite otwiera plik w trybie append pod blokadą per-plik.
// Zwraca ErrLockNotAcquired gdy ktoś inny właśnie pisze ten sam plik.
func (s *Stager) OpenForWrite(filename string) (*StagedWriter, error) {
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("stager mkdir: %w", err)
	}
	lock := s.lockFor(filename)
	if err := lock.Acquire(s.lockWait); err != nil {
		return nil, err
	}

	path := s.Path(filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("stager open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		_ = lock.Release()
		return nil, err
	}
	return &StagedWriter{f: f, lock: lock, limit: s.limit, written: fi.Size()}, nil
}

// Write dopisuje kawałek. Limit sprawdzany PRZED zapisem – plik nigdy nie
// przekracza file_limit.
func (w *StagedWriter) Write(p []byte) (int, error) {
	if w.written+int64(len(p)) > w.limit {
		return 0, ErrPayloadTooLarge
	}
	n, err := w.f.Write(p)
	w.written += int64(n)
	return n, err
}

// BytesWritten to łączny rozmiar pliku po dotychczasowych zapisach.
func (w *StagedWriter) BytesWritten() int64 { return w.written }

func (w *StagedWriter) Close() error {
	err := w.f.Close()
	if rerr := w.lock.Release(); err == nil {
		err = rerr
	}
	return err
}

// AppendChunk – wygodny wariant "jeden request, jeden kawałek": otwiera,
// kopiuje w blokach chunkSize i zamyka. Zwraca łączny rozmiar pliku.
func (s *Stager) AppendChunk(filename string, r io.Reader, chunkSize int) (int64, error) {
	w, err := s.OpenForWrite(filename)
	if err != nil {
		return 0, err
	}
	defer w.Close()

	buf := make([]byte, chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return w.BytesWritten(), werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return w.BytesWritten(), fmt.Errorf("stager read body: %w", rerr)
		}
	}
	return w.BytesWritten(), nil
}

// FileSize zwraca bieżący rozmiar zestage'owanego pliku.
func (s *Stager) FileSize(filename string) (int64, error) {
	fi, err := os.Stat(s.Path(filename))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// CleanupSession kasuje wszystko z tempa sesji (start nowego init).
// Best-effort: pojedyncze błędy tylko logujemy. Zwraca ile skasowano.
func (s *Stager) CleanupSession() (int, error) {
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("stager cleanup: %w", err)
	}
	deleted := 0
	for _, e := range entries {
		p := filepath.Join(s.Dir(), e.Name())
		if err := os.RemoveAll(p); err != nil {
			s.log.Warn().Err(err).Str("path", p).Msg("cleanup: nie mogę skasować")
			continue
		}
		deleted++
	}
	return deleted, nil
}
