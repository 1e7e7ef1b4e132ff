package conversation

import (
	"time"

	"go.opentelemetry.io/otel"
)

const instrumentationName = "github.com/BaSui01/roundtable/conversation"

var tracer = otel.Tracer(instrumentationName)

// Turn outcome labels reported to Metrics.
const (
	TurnStatusSuccess  = "success"
	TurnStatusCooldown = "cooldown"
	TurnStatusBusy     = "generating"
	TurnStatusUpstream = "upstream_error"
	TurnStatusLockLost = "lock_lost"
	TurnStatusStore    = "store_error"
)

// Metrics 是编排层上报的指标，internal/metrics.Collector 满足该接口
type Metrics interface {
	RecordTurn(status string, duration time.Duration)
	RecordArchive(trigger string)
	RecordLockReclaim()
}

type nopMetrics struct{}

func (nopMetrics) RecordTurn(string, time.Duration) {}
func (nopMetrics) RecordArchive(string)             {}
func (nopMetrics) RecordLockReclaim()               {}
