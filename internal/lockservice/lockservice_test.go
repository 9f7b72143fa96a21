package lockservice_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/onec2www/internal/lockservice"
)

func TestFileLocker_MutualExclusion(t *testing.T) {
	l := lockservice.NewFileLocker(t.TempDir())
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "import", 100*time.Millisecond))

	err := l.Acquire(ctx, "import", 100*time.Millisecond)
	assert.ErrorIs(t, err, lockservice.ErrLockHeld)

	require.NoError(t, l.Release(ctx, "import"))
	assert.NoError(t, l.Acquire(ctx, "import", 100*time.Millisecond))
	_ = l.Release(ctx, "import")
}

func TestFileLocker_DifferentNamesIndependent(t *testing.T) {
	l := lockservice.NewFileLocker(t.TempDir())
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "a", 100*time.Millisecond))
	assert.NoError(t, l.Acquire(ctx, "b", 100*time.Millisecond))
	_ = l.Release(ctx, "a")
	_ = l.Release(ctx, "b")
}
