// Package timeouts defines shared timeout constants used by credrank runs.
package timeouts

import "time"

// TelemetryShutdown limits how long span export may block process exit.
const TelemetryShutdown = 5 * time.Second

// StoreBusy is how long SQLite waits on a locked ledger database before
// failing the write.
const StoreBusy = 5 * time.Second
