package exchange

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrSourceNotFound – plik do przeniesienia nie istnieje w stagingu.
var ErrSourceNotFound = errors.New("exchange: source file not found")

// Tabela routingu: prefiks nazwy XML → podkatalog w 1c_import/<sess>/.
// Kolejność od najdłuższego prefiksu – propertiesGoods musi wygrać z
// prefiksem products/properties itd.
var xmlRoutes = []struct {
	prefix string
	dir    string
}{
	{"propertiesOffers", "propertiesOffers"},
	{"propertiesGoods", "propertiesGoods"},
	{"import_files", "import_files"},
	{"priceLists", "priceLists"},
	{"contragents", "contragents"},
	{"storages", "storages"},
	{"offers", "offers"},
	{"prices", "prices"},
	{"groups", "groups"},
	{"goods", "goods"},
	{"rests", "rests"},
	{"units", "units"},
	// konwencje nazw z typowych eksportów CommerceML
	{"import", "goods"},
	{"offer", "offers"},
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true,
}

// Router klasyfikuje pliki po nazwie i przenosi je z tempa sesji do
// katalogu importu.
type Router struct {
	tempRoot   string // <media>/1c_temp
	importRoot string // <media>/1c_import
	sessionID  string
}

func NewRouter(tempRoot, importRoot, sessionID string) *Router {
	return &Router{tempRoot: tempRoot, importRoot: importRoot, sessionID: sessionID}
}

func (r *Router) ImportDir() string {
	return filepath.Join(r.importRoot, r.sessionID)
}

// ShouldRoute: zipy zostają w stagingu do rozpakowania, reszta się routuje.
func (r *Router) ShouldRoute(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) != ".zip"
}

// RouteFile to czysta klasyfikacja nazwa→podkatalog. Pusty string = root
// katalogu importu (nierozpoznany XML).
func (r *Router) RouteFile(filename string) string {
	name := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(name))

	if imageExts[ext] {
		// 1C potrafi przysłać obrazek już ze ścieżką import_files/... –
		// wtedy bez zagnieżdżania drugi raz, ląduje w goods.
		if strings.HasPrefix(filename, "import_files/") || strings.HasPrefix(filename, "import_files\\") {
			return "goods"
		}
		return "import_files"
	}
	if ext != ".xml" {
		return ""
	}
	for _, route := range xmlRoutes {
		if strings.HasPrefix(name, route.prefix) {
			return route.dir
		}
	}
	return ""
}

// MoveToImport przenosi zestage'owany plik do wyliczonego podkatalogu,
// tworząc katalogi po drodze.
func (r *Router) MoveToImport(filename string) (string, error) {
	src := filepath.Join(r.tempRoot, r.sessionID, filepath.Base(filename))
	return r.MoveFrom(src, filename)
}

// MoveFrom klasyfikuje i przenosi plik z dowolnego źródła (staging albo
// świeżo rozpakowany wpis z zipa) do podkatalogu importu.
func (r *Router) MoveFrom(src, filename string) (string, error) {
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSourceNotFound, src)
		}
		return "", err
	}

	sub := r.RouteFile(filename)
	dstDir := r.ImportDir()
	if sub != "" {
		dstDir = filepath.Join(dstDir, sub)
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("router mkdir %s: %w", dstDir, err)
	}

	dst := filepath.Join(dstDir, filepath.Base(filename))
	if err := os.Rename(src, dst); err != nil {
		// rename przez granicę filesystemu – kopiuj i kasuj
		if cerr := copyFile(src, dst); cerr != nil {
			return "", fmt.Errorf("router move %s: %w", filename, cerr)
		}
		_ = os.Remove(src)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
