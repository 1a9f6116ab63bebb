// Package trace registers a "sqlite-trace" database/sql driver that wraps
// modernc.org/sqlite and logs every statement through slog:
//
//	import _ "github.com/hazyhaar/matrixcalc/trace"
//	db, _ := dbopen.Open("history.db", dbopen.WithTrace())
//
// Levels are adaptive: Debug for ordinary statements, Warn above the slow
// threshold, Error on failure. The request trace id is read from the context
// via kit.GetTraceID so SQL lines correlate with HTTP request lines.
package trace

import (
	"database/sql"
	"sync/atomic"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the name the tracing driver registers under.
const DriverName = "sqlite-trace"

var slowThreshold atomic.Int64

// SetSlowThreshold changes the duration above which statements log at Warn.
// Default: 100ms.
func SetSlowThreshold(d time.Duration) { slowThreshold.Store(int64(d)) }

func init() {
	slowThreshold.Store(int64(100 * time.Millisecond))
	sql.Register(DriverName, &TracingDriver{
		Driver: &sqlite.Driver{},
	})
}
