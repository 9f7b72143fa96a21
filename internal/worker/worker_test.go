package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/onec2www/internal/worker"
)

func TestWorker_RunsJobs(t *testing.T) {
	w := worker.New(zerolog.Nop())
	w.Start(context.Background())
	defer w.Stop()

	done := make(chan string, 2)
	require.True(t, w.Enqueue(worker.Job{SessionID: "a", Run: func() { done <- "a" }}))
	require.True(t, w.Enqueue(worker.Job{SessionID: "b", Run: func() { done <- "b" }}))

	// jeden wykonawca – kolejność zgłoszeń zachowana
	assert.Equal(t, "a", <-done)
	assert.Equal(t, "b", <-done)
}

func TestWorker_EnqueueBeforeStart(t *testing.T) {
	w := worker.New(zerolog.Nop())
	assert.False(t, w.Enqueue(worker.Job{SessionID: "x", Run: func() {}}))
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	w := worker.New(zerolog.Nop())
	w.Start(context.Background())
	assert.True(t, w.IsRunning())

	w.Stop()
	assert.False(t, w.IsRunning())
	w.Stop() // drugi Stop nie może panikować ani wisieć
}

func TestWorker_StopWaitsForJob(t *testing.T) {
	w := worker.New(zerolog.Nop())
	w.Start(context.Background())

	started := make(chan struct{})
	finished := false
	require.True(t, w.Enqueue(worker.Job{SessionID: "long", Run: func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished = true
	}}))

	<-started
	w.Stop()
	assert.True(t, finished, "Stop czeka na trwające zadanie")
}
