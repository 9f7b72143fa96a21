package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bartek5186/onec2www/internal/catalog"
	"github.com/bartek5186/onec2www/internal/commerceml"
	"github.com/bartek5186/onec2www/internal/db"
	"github.com/bartek5186/onec2www/internal/exchange"
	"github.com/bartek5186/onec2www/internal/lockservice"
	"github.com/bartek5186/onec2www/internal/worker"
)

// importLockName – globalny lock "jeden import naraz", niezależny od
// blokady wiersza w bazie.
const importLockName = "catalog_import"

// Nazwa pliku-markera trybu dry-run w korzeniu katalogu importu.
const dryRunMarker = ".dry_run"

// ErrImportInProgress zgłasza wejście CLI, gdy inny import (CLI albo
// z wymiany) trzyma lock lub sesję in_progress.
var ErrImportInProgress = errors.New("importer: inny import już trwa")

// Options konfigurują orchestrator.
type Options struct {
	MediaRoot string
	StaleMin  int
	LockWait  time.Duration
	Async     bool
	DryRun    bool
}

// Orchestrator spina cały cykl importu: zgarnia pliki ze stagingu,
// rozpakowuje zipy, odpala parser i reconciler, prowadzi ImportSession.
// Implementuje exchange.ImportTrigger.
type Orchestrator struct {
	log    zerolog.Logger
	store  *catalog.Store
	parser *commerceml.Parser
	locker lockservice.Locker
	worker *worker.Worker
	opts   Options

	mu   sync.Mutex
	done map[string]bool // sesje wymiany już zaimportowane w tym procesie
}

func NewOrchestrator(log zerolog.Logger, store *catalog.Store, parser *commerceml.Parser, locker lockservice.Locker, w *worker.Worker, opts Options) *Orchestrator {
	if opts.StaleMin <= 0 {
		opts.StaleMin = 120
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 5 * time.Second
	}
	return &Orchestrator{
		log:    log.With().Str("component", "orchestrator").Logger(),
		store:  store,
		parser: parser,
		locker: locker,
		worker: w,
		opts:   opts,
		done:   make(map[string]bool),
	}
}

func (o *Orchestrator) tempRoot() string   { return filepath.Join(o.opts.MediaRoot, "1c_temp") }
func (o *Orchestrator) importRoot() string { return filepath.Join(o.opts.MediaRoot, "1c_import") }

// TriggerExchange odpala import dla sesji wymiany 1C. Idempotentny:
// trwający import zwraca already_in_progress, zamknięty already_complete.
func (o *Orchestrator) TriggerExchange(sessionID string) (string, error) {
	o.mu.Lock()
	if o.done[sessionID] {
		o.mu.Unlock()
		return "already_complete", nil
	}
	o.mu.Unlock()

	if n, err := o.store.ImportSessions.ReapStale(o.opts.StaleMin); err != nil {
		o.log.Warn().Err(err).Msg("reap przeterminowanych sesji nieudany")
	} else if n > 0 {
		o.log.Info().Int64("reaped", n).Msg("przeterminowane sesje oznaczone failed")
	}

	ctx := context.Background()
	if err := o.locker.Acquire(ctx, importLockName, o.opts.LockWait); err != nil {
		if errors.Is(err, lockservice.ErrLockHeld) {
			return "already_in_progress", nil
		}
		return "", fmt.Errorf("importer: lock: %w", err)
	}

	// drugi trigger mógł czekać na locku, aż pierwszy domknie tę samą
	// sesję – sprawdź done jeszcze raz już pod lockiem
	o.mu.Lock()
	if o.done[sessionID] {
		o.mu.Unlock()
		_ = o.locker.Release(ctx, importLockName)
		return "already_complete", nil
	}
	o.mu.Unlock()

	sess, alreadyRunning, err := o.store.ImportSessions.Claim(db.KindCatalog)
	if err != nil {
		_ = o.locker.Release(ctx, importLockName)
		return "", err
	}
	if alreadyRunning {
		_ = o.locker.Release(ctx, importLockName)
		return "already_in_progress", nil
	}

	run := func() error {
		defer func() { _ = o.locker.Release(context.Background(), importLockName) }()
		if err := o.runExchange(sess, sessionID); err != nil {
			o.log.Error().Err(err).Uint("session", sess.ID).Msg("import zakończony błędem")
			return err
		}
		o.mu.Lock()
		o.done[sessionID] = true
		o.mu.Unlock()
		return nil
	}

	if o.opts.Async && o.worker != nil &&
		o.worker.Enqueue(worker.Job{SessionID: sessionID, Run: func() { _ = run() }}) {
		o.log.Info().Str("exchange_session", sessionID).Msg("import zlecony do workera")
		return "success", nil
	}
	// tryb synchroniczny: 1C dostaje failure, gdy import poległ w tym
	// samym requeście
	if err := run(); err != nil {
		return "", err
	}
	return "success", nil
}

// runExchange: transfer ze stagingu → rozpakowanie → pipeline. Każdy błąd
// top-level ląduje w MarkFailed, ale plik I/O dzieje się już poza
// transakcją z Claim.
func (o *Orchestrator) runExchange(sess *db.ImportSession, sessionID string) error {
	router := exchange.NewRouter(o.tempRoot(), o.importRoot(), sessionID)
	importDir := router.ImportDir()

	if err := o.transferStaged(router, sessionID); err != nil {
		_ = o.store.ImportSessions.MarkFailed(sess.ID, err.Error())
		return err
	}
	if err := o.unpackArchives(router, importDir); err != nil {
		_ = o.store.ImportSessions.MarkFailed(sess.ID, err.Error())
		return err
	}

	dryRun := o.opts.DryRun
	if _, err := os.Stat(filepath.Join(o.importRoot(), dryRunMarker)); err == nil {
		dryRun = true
	}
	if dryRun {
		_ = o.store.ImportSessions.AppendReport(sess.ID, "dry-run: pliki przeniesione i rozpakowane, baza nietknięta")
		_ = o.store.ImportSessions.MarkCompleted(sess.ID)
		o.log.Info().Str("dir", importDir).Msg("dry-run zakończony")
		return nil
	}

	if err := o.runPipeline(sess, importDir); err != nil {
		_ = o.store.ImportSessions.MarkFailed(sess.ID, err.Error())
		return err
	}
	return nil
}

// transferStaged zgarnia resztki ze stagingu sesji (głównie zipy, bo XML-e
// routują się przy uploadzie) do katalogu importu i sprząta temp.
func (o *Orchestrator) transferStaged(router *exchange.Router, sessionID string) error {
	tempDir := filepath.Join(o.tempRoot(), sessionID)
	entries, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return nil // nic nie zostało w stagingu
	}
	if err != nil {
		return fmt.Errorf("importer: staging %s: %w", tempDir, err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		if _, err := router.MoveToImport(e.Name()); err != nil {
			return fmt.Errorf("importer: transfer %s: %w", e.Name(), err)
		}
		o.log.Debug().Str("file", e.Name()).Msg("przeniesiony ze stagingu")
	}
	_ = os.RemoveAll(tempDir)
	return nil
}

// unpackArchives rozpakowuje wszystkie zipy w katalogu importu; wpisy
// routują się tak samo jak pliki z uploadu.
func (o *Orchestrator) unpackArchives(router *exchange.Router, importDir string) error {
	unpacker := exchange.NewUnpacker(o.log, router)
	var zips []string
	err := filepath.WalkDir(importDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.ToLower(filepath.Ext(path)) == ".zip" {
			zips = append(zips, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("importer: skan zipów: %w", err)
	}
	sort.Strings(zips)
	for _, z := range zips {
		n, err := unpacker.Unpack(z, importDir)
		if err != nil {
			return fmt.Errorf("importer: unpack %s: %w", filepath.Base(z), err)
		}
		o.log.Info().Str("zip", filepath.Base(z)).Int("entries", n).Msg("zip rozpakowany")
	}
	return nil
}

// ImportDir to wejście CLI: importuje z gotowego katalogu (bez protokołu
// wymiany). Waliduje obecność wymaganych podkatalogów przed startem.
// Ta sama dyscyplina co trigger z wymiany: lock + Claim, jeden import
// naraz w całym systemie.
func (o *Orchestrator) ImportDir(dataDir string, dryRun bool) (*db.ImportSession, error) {
	required := []string{"goods", "offers", "prices", "rests", "priceLists"}
	var missing []string
	for _, sub := range required {
		if fi, err := os.Stat(filepath.Join(dataDir, sub)); err != nil || !fi.IsDir() {
			missing = append(missing, sub)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("importer: katalog %s bez wymaganych podkatalogów: %s", dataDir, strings.Join(missing, ", "))
	}

	if n, err := o.store.ImportSessions.ReapStale(o.opts.StaleMin); err != nil {
		o.log.Warn().Err(err).Msg("reap przeterminowanych sesji nieudany")
	} else if n > 0 {
		o.log.Info().Int64("reaped", n).Msg("przeterminowane sesje oznaczone failed")
	}

	ctx := context.Background()
	if err := o.locker.Acquire(ctx, importLockName, o.opts.LockWait); err != nil {
		if errors.Is(err, lockservice.ErrLockHeld) {
			return nil, ErrImportInProgress
		}
		return nil, fmt.Errorf("importer: lock: %w", err)
	}
	defer func() { _ = o.locker.Release(ctx, importLockName) }()

	sess, alreadyRunning, err := o.store.ImportSessions.Claim(db.KindCatalog)
	if err != nil {
		return nil, err
	}
	if alreadyRunning {
		return nil, ErrImportInProgress
	}
	if dryRun {
		_ = o.store.ImportSessions.AppendReport(sess.ID, "dry-run: walidacja struktury ok, baza nietknięta")
		_ = o.store.ImportSessions.MarkCompleted(sess.ID)
		return o.store.ImportSessions.ByID(sess.ID)
	}
	if err := o.runPipeline(sess, dataDir); err != nil {
		_ = o.store.ImportSessions.MarkFailed(sess.ID, err.Error())
		return nil, err
	}
	return o.store.ImportSessions.ByID(sess.ID)
}

// runPipeline wykonuje cztery etapy scalania w sztywnej kolejności.
// Pliki w obrębie typu idą posortowane po nazwie – eksporty segmentowane
// (goods_1.xml, goods_2.xml) muszą zachować porządek.
func (o *Orchestrator) runPipeline(sess *db.ImportSession, dir string) error {
	if err := o.store.ImportSessions.MarkInProgress(sess.ID); err != nil {
		return err
	}
	rec := NewReconciler(o.log, o.store)
	report := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		o.log.Info().Uint("session", sess.ID).Msg(line)
		_ = o.store.ImportSessions.AppendReport(sess.ID, line)
	}

	// etap 1: typy cen (priceLists + ПакетПредложений w offers)
	ptFiles := append(xmlFiles(dir, "priceLists"), xmlFiles(dir, "offers")...)
	ptCount := 0
	for _, f := range ptFiles {
		recs, err := o.parser.ParsePriceTypes(f)
		if err != nil {
			rec.Stats.Errors++
			o.log.Error().Err(err).Str("file", f).Msg("parse typów cen nieudany")
			continue
		}
		rec.UpsertPriceTypes(recs)
		ptCount += len(recs)
	}
	report("typy cen: %d rekordów z %d plików", ptCount, len(ptFiles))

	// etap 2a: drzewo kategorii (Классификатор siedzi w plikach goods)
	catFiles := append(xmlFiles(dir, "goods"), xmlFiles(dir, "groups")...)
	catCount := 0
	for _, f := range catFiles {
		recs, err := o.parser.ParseCategories(f)
		if err != nil {
			rec.Stats.Errors++
			o.log.Error().Err(err).Str("file", f).Msg("parse kategorii nieudany")
			continue
		}
		rec.BuildCategoryTree(recs)
		catCount += len(recs)
	}
	report("kategorie: %d węzłów, %d odrzuconych cykli", catCount, rec.Stats.CyclesRejected)

	// etap 2b: placeholdery towarów
	goodsFiles := xmlFiles(dir, "goods")
	goodsCount := 0
	for _, f := range goodsFiles {
		recs, err := o.parser.ParseGoods(f)
		if err != nil {
			rec.Stats.Errors++
			o.log.Error().Err(err).Str("file", f).Msg("parse towarów nieudany")
			continue
		}
		rec.CreatePlaceholders(recs)
		goodsCount += len(recs)
	}
	report("towary: %d rekordów, %d utworzonych, %d pominiętych", goodsCount, rec.Stats.Created, rec.Stats.Skipped)

	// etap 3: wzbogacanie z ofert
	offerFiles := xmlFiles(dir, "offers")
	offerCount := 0
	for _, f := range offerFiles {
		recs, err := o.parser.ParseOffers(f)
		if err != nil {
			rec.Stats.Errors++
			o.log.Error().Err(err).Str("file", f).Msg("parse ofert nieudany")
			continue
		}
		rec.EnrichFromOffers(recs)
		offerCount += len(recs)
	}
	report("oferty: %d rekordów", offerCount)

	// etap 4: ceny i stany
	for _, f := range append(xmlFiles(dir, "prices"), offerFiles...) {
		recs, err := o.parser.ParsePrices(f)
		if err != nil {
			rec.Stats.Errors++
			o.log.Error().Err(err).Str("file", f).Msg("parse cen nieudany")
			continue
		}
		rec.ApplyPrices(recs)
	}
	for _, f := range append(xmlFiles(dir, "rests"), offerFiles...) {
		recs, err := o.parser.ParseStock(f)
		if err != nil {
			rec.Stats.Errors++
			o.log.Error().Err(err).Str("file", f).Msg("parse stanów nieudany")
			continue
		}
		rec.AccumulateStock(recs)
	}
	rec.FlushStock()
	report("ceny i stany zastosowane")

	sess.Created = rec.Stats.Created
	sess.Updated = rec.Stats.Updated
	sess.Skipped = rec.Stats.Skipped
	sess.Errors = rec.Stats.Errors
	sess.AttributesLinked = rec.Stats.AttributesLinked
	sess.AttributesSkip = rec.Stats.AttributesSkip
	sess.CyclesRejected = rec.Stats.CyclesRejected
	if err := o.store.ImportSessions.SaveStats(sess); err != nil {
		return err
	}
	report("podsumowanie: created=%d updated=%d skipped=%d errors=%d attrs=%d/%d",
		rec.Stats.Created, rec.Stats.Updated, rec.Stats.Skipped, rec.Stats.Errors,
		rec.Stats.AttributesLinked, rec.Stats.AttributesSkip)

	return o.store.ImportSessions.MarkCompleted(sess.ID)
}

// xmlFiles listuje XML-e z podkatalogu posortowane po nazwie.
func xmlFiles(dir, sub string) []string {
	entries, err := os.ReadDir(filepath.Join(dir, sub))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ".xml" {
			continue
		}
		out = append(out, filepath.Join(dir, sub, e.Name()))
	}
	sort.Strings(out)
	return out
}
