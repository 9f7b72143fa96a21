package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/bartek5186/onec2www/internal/catalog"
	"github.com/bartek5186/onec2www/internal/commerceml"
	conf "github.com/bartek5186/onec2www/internal/config"
	"github.com/bartek5186/onec2www/internal/db"
	"github.com/bartek5186/onec2www/internal/exchange"
	"github.com/bartek5186/onec2www/internal/importer"
	"github.com/bartek5186/onec2www/internal/lockservice"
	logs "github.com/bartek5186/onec2www/internal/logs"
	"github.com/bartek5186/onec2www/internal/worker"
)

var ver = "1.0.0"

func usage() {
	fmt.Fprintf(os.Stderr, `onec2www %s — wymiana katalogu z 1C (CommerceML)

Użycie:
  onec2www serve [-config plik]
  onec2www import [-config plik] [-dry-run] <katalog-danych>
`, ver)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "import":
		runImport(os.Args[2:])
	default:
		usage()
	}
}

// bootstrap wspólny dla obu komend: config, logi, baza, store, locker.
type app struct {
	cfg    *conf.Config
	log    zerolog.Logger
	store  *catalog.Store
	orch   *importer.Orchestrator
	worker *worker.Worker
}

func bootstrap(cfgPath string, async bool) (*app, func(), error) {
	cfg, firstRun, err := conf.LoadOrCreate(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log := logs.New(filepath.Join(filepath.Dir(cfgPath), "app.log"), true)
	if firstRun {
		log.Info().Str("path", cfgPath).Msg("utworzono domyślną konfigurację")
	}

	dbh, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	if err := dbh.Migrate(); err != nil {
		return nil, nil, fmt.Errorf("db migrate: %w", err)
	}
	log.Info().Str("driver", dbh.Driver).Msg("baza gotowa")

	var locker lockservice.Locker
	switch cfg.LockBackend {
	case "redis":
		locker = lockservice.NewRedisLocker(cfg.RedisAddr)
	default:
		locker = lockservice.NewFileLocker(filepath.Join(cfg.MediaRoot, "locks"))
	}

	store := catalog.NewStore(dbh.DB)
	parser := commerceml.NewParser(log)

	var w *worker.Worker
	if async && cfg.AsyncImport {
		w = worker.New(log)
	}
	orch := importer.NewOrchestrator(log, store, parser, locker, w, importer.Options{
		MediaRoot: cfg.MediaRoot,
		StaleMin:  cfg.StaleSessionMin,
		LockWait:  time.Duration(cfg.LockTimeoutSec) * time.Second,
		Async:     async && cfg.AsyncImport,
	})

	closeFn := func() {
		if sqlDB, err := dbh.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return &app{cfg: cfg, log: log, store: store, orch: orch, worker: w}, closeFn, nil
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "config.json", "ścieżka do pliku konfiguracji")
	_ = fs.Parse(args)

	a, closeDB, err := bootstrap(*cfgPath, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "błąd startu:", err)
		os.Exit(1)
	}
	defer closeDB()
	log := a.log

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if a.worker != nil {
		a.worker.Start(ctx)
		defer a.worker.Stop()
	}

	h := exchange.NewHandler(log, exchange.Options{
		Login:      a.cfg.ExchangeLogin,
		Password:   a.cfg.ExchangePassword,
		CookieName: a.cfg.CookieName,
		MediaRoot:  a.cfg.MediaRoot,
		FileLimit:  a.cfg.FileLimitBytes,
		ChunkSize:  a.cfg.ChunkSizeBytes,
		LockWait:   time.Duration(a.cfg.LockTimeoutSec) * time.Second,
	}, a.orch)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	h.Register(engine)

	srv := &http.Server{Addr: a.cfg.ListenAddr, Handler: engine}
	go func() {
		log.Info().Str("addr", a.cfg.ListenAddr).Msgf("onec2www %s — serwer wymiany działa", ver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("serwer HTTP padł")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("zamykanie serwera")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	cfgPath := fs.String("config", "config.json", "ścieżka do pliku konfiguracji")
	dryRun := fs.Bool("dry-run", false, "waliduj strukturę bez zapisu do bazy")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
	}
	dataDir := fs.Arg(0)

	a, closeDB, err := bootstrap(*cfgPath, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, "błąd startu:", err)
		os.Exit(1)
	}
	defer closeDB()

	fmt.Printf("onec2www %s — import katalogu z %s\n", ver, dataDir)
	if *dryRun {
		fmt.Println("tryb dry-run: baza nie będzie zmieniana")
	}

	sess, err := a.orch.ImportDir(dataDir, *dryRun)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import nieudany:", err)
		os.Exit(1)
	}

	fmt.Println(sess.Report)
	fmt.Printf("status: %s  created=%d updated=%d skipped=%d errors=%d\n",
		sess.Status, sess.Created, sess.Updated, sess.Skipped, sess.Errors)
	if sess.Status == db.ImportFailed {
		os.Exit(1)
	}
}
