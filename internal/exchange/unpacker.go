package exchange

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// ErrZipSlip – wpis archiwum wychodzi poza katalog docelowy.
var ErrZipSlip = errors.New("exchange: zip entry escapes extraction root")

// Unpacker rozpakowuje archiwa z eksportu 1C do katalogu importu i
// przepuszcza każdy wypakowany plik przez routing.
type Unpacker struct {
	log    zerolog.Logger
	router *Router
}

func NewUnpacker(log zerolog.Logger, router *Router) *Unpacker {
	return &Unpacker{log: log, router: router}
}

// Unpack wypakowuje zip do extractRoot z walidacją Zip-Slip: każdy wpis
// musi po resolve zostać pod extractRoot, inaczej całość kończy się błędem.
// Wpisy wypakowane wcześniej NIE są wycofywane (ekstrakcja nie jest
// transakcyjna – świadome ograniczenie). Źródłowy zip kasowany best-effort.
func (u *Unpacker) Unpack(zipPath, extractRoot string) (int, error) {
	rc, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, fmt.Errorf("unpack open %s: %w", zipPath, err)
	}
	defer rc.Close()

	rootAbs, err := filepath.Abs(extractRoot)
	if err != nil {
		return 0, err
	}

	extracted := 0
	for _, entry := range rc.File {
		dst, err := safeJoin(rootAbs, entry.Name)
		if err != nil {
			return extracted, fmt.Errorf("%s: %w", entry.Name, err)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return extracted, err
			}
			continue
		}
		if err := extractEntry(entry, dst); err != nil {
			return extracted, fmt.Errorf("unpack %s: %w", entry.Name, err)
		}
		extracted++

		// routing wypakowanego pliku tymi samymi regułami co upload
		if u.router.ShouldRoute(entry.Name) {
			if _, err := u.router.MoveFrom(dst, entry.Name); err != nil {
				u.log.Warn().Err(err).Str("entry", entry.Name).Msg("routing po rozpakowaniu nieudany")
			}
		}
	}

	if err := os.Remove(zipPath); err != nil {
		u.log.Warn().Err(err).Str("zip", zipPath).Msg("nie mogę skasować źródłowego zipa")
	}
	u.log.Info().Str("zip", filepath.Base(zipPath)).Int("entries", extracted).Msg("archiwum rozpakowane")
	return extracted, nil
}

// safeJoin łączy root z nazwą wpisu i sprawdza, że wynik nie ucieka
// ponad root (ochrona przed Zip-Slip).
func safeJoin(rootAbs, name string) (string, error) {
	dst := filepath.Join(rootAbs, filepath.FromSlash(name))
	dstAbs, err := filepath.Abs(dst)
	if err != nil {
		return "", err
	}
	if dstAbs != rootAbs && !strings.HasPrefix(dstAbs, rootAbs+string(os.PathSeparator)) {
		return "", ErrZipSlip
	}
	return dstAbs, nil
}

func extractEntry(entry *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := entry.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
