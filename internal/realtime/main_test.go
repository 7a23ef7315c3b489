package realtime

import (
	"os"
	"testing"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/observability/metrics"
)

// Emit counts every broadcast through the curried metric vectors, so the test
// binary curries them the same way main does.
func TestMain(m *testing.M) {
	metrics.MustRegister("auth")
	os.Exit(m.Run())
}
