// internal/worker/worker.go
package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Job to jedno zadanie importu odpalane w tle.
type Job struct {
	SessionID string
	Run       func()
}

// Worker wykonuje zadania importu asynchronicznie, jedno na raz – import
// i tak trzyma globalny lock, równoległość nic by nie dała. Kolejka jest
// buforowana; pełna kolejka odrzuca zgłoszenie zamiast blokować handler
// HTTP (1C czeka na szybki plaintext).
type Worker struct {
	log     zerolog.Logger
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	queue   chan Job
}

const queueDepth = 8

func New(log zerolog.Logger) *Worker {
	return &Worker{
		log:   log.With().Str("component", "worker").Logger(),
		queue: make(chan Job, queueDepth),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	w.mu.Unlock()

	w.log.Info().Msg("worker: start")
	go w.loop(ctx)
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.log.Info().Msg("worker: stop")
}

func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Enqueue dorzuca zadanie do kolejki. false = kolejka pełna albo worker
// nie wystartował; wołający decyduje czy to błąd.
func (w *Worker) Enqueue(j Job) bool {
	if !w.IsRunning() {
		return false
	}
	select {
	case w.queue <- j:
		return true
	default:
		w.log.Warn().Str("session", j.SessionID).Msg("kolejka pełna, zadanie odrzucone")
		return false
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker: koniec pętli")
			return
		case j := <-w.queue:
			w.log.Info().Str("session", j.SessionID).Msg("worker: zadanie start")
			j.Run()
			w.log.Info().Str("session", j.SessionID).Msg("worker: zadanie koniec")
		}
	}
}
