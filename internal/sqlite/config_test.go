package sqlite_test

import (
	"testing"

	"github.com/avernar/ckpt/internal/sqlite"
	"github.com/avernar/ckpt/internal/testing/require"
)

func TestOptionValidation(t *testing.T) {
	require.PanicWithError(t, "URI can't be blank", func() {
		_ = sqlite.WithURI(" ")
	})

	require.PanicWithError(t, "workers can't be < 1", func() {
		_ = sqlite.WithWorkers(0)
	})
}
