// internal/config/config.go
package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config aplikacji: serwer wymiany 1C + importer katalogu.
type Config struct {
	ListenAddr string `json:"listen_addr"` // np. ":8085"

	// Dane logowania, którymi przedstawia się 1C (Basic Auth na checkauth).
	ExchangeLogin    string `json:"exchange_login"`
	ExchangePassword string `json:"exchange_password"`
	CookieName       string `json:"cookie_name"` // nazwa "ciasteczka" zwracana w checkauth

	// Katalog mediów: pod nim 1c_temp/ i 1c_import/.
	MediaRoot string `json:"media_root"`

	FileLimitBytes  int64 `json:"file_limit_bytes"`  // limit pojedynczego pliku w wymianie
	ChunkSizeBytes  int   `json:"chunk_size_bytes"`  // rozmiar odczytu body przy uploadzie
	LockTimeoutSec  int   `json:"lock_timeout_sec"`  // timeout na FileLock
	StaleSessionMin int   `json:"stale_session_min"` // po ilu minutach import uznajemy za martwy

	// Import w trybie async leci przez kolejkę workera, sync – inline w requeście.
	AsyncImport bool `json:"async_import"`

	// Baza: sqlite (czysty Go, domyślnie), sqlite-cgo, mysql, postgres.
	DBDriver string `json:"db_driver"`
	DBDSN    string `json:"db_dsn"` // dla sqlite: ścieżka pliku

	// Blokada "jeden import naraz": file (domyślnie) albo redis.
	LockBackend string `json:"lock_backend"`
	RedisAddr   string `json:"redis_addr,omitempty"`
}

func LoadOrCreate(path string) (*Config, bool, error) {
	// upewnij się, że katalog istnieje
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(path, cfg); err != nil {
				return nil, false, fmt.Errorf("błąd zapisu domyślnego configa: %w", err)
			}
			return cfg, true, nil
		}
		return nil, false, fmt.Errorf("błąd otwierania configa: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, false, fmt.Errorf("błąd parsowania configa: %w", err)
	}
	cfg.fillDefaults()
	return &cfg, false, nil
}

func Default() *Config {
	cfg := &Config{
		ListenAddr:       ":8085",
		ExchangeLogin:    "onec",
		ExchangePassword: "changeme",
		MediaRoot:        "./media",
		DBDSN:            "onec2www.db",
	}
	cfg.fillDefaults()
	return cfg
}

func (c *Config) fillDefaults() {
	if c.CookieName == "" {
		c.CookieName = "onec_exchange"
	}
	if c.FileLimitBytes <= 0 {
		c.FileLimitBytes = 100 << 20 // 100 MB, tyle deklarujemy w init
	}
	if c.ChunkSizeBytes <= 0 {
		c.ChunkSizeBytes = 64 << 10
	}
	if c.LockTimeoutSec <= 0 {
		c.LockTimeoutSec = 10
	}
	if c.StaleSessionMin <= 0 {
		c.StaleSessionMin = 120 // 2h – po tym czasie reaper ubija wiszący import
	}
	if c.DBDriver == "" {
		c.DBDriver = "sqlite"
	}
	if c.LockBackend == "" {
		c.LockBackend = "file"
	}
}

func Save(path string, cfg *Config) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
