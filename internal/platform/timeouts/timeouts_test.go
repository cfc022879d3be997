package timeouts

import (
	"testing"
	"time"
)

func TestTimeoutsArePositive(t *testing.T) {
	for name, d := range map[string]time.Duration{"telemetry": TelemetryShutdown, "store": StoreBusy} {
		if d <= 0 {
			t.Fatalf("%s timeout = %v, want positive", name, d)
		}
	}
}
