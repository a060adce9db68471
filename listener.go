package tiercache

import (
	"context"
	"time"

	"github.com/hupe1980/tiercache/internal/similarity"
	"github.com/hupe1980/tiercache/internal/tier"
)

// indexListener mirrors tier contents into the similarity index and reports
// removals to metrics and logs. It runs under tier locks and must not call
// back into a tier.
type indexListener struct {
	index   *similarity.Index
	metrics MetricsCollector
	logger  *Logger
}

var _ tier.Listener = (*indexListener)(nil)

func (l *indexListener) Stored(k tier.Kind, key, queryText string, expiresAt time.Time) {
	l.index.Add(key, queryText, int(k), expiresAt)
}

func (l *indexListener) Removed(k tier.Kind, key string, reason tier.RemovalReason) {
	l.index.Remove(key, int(k))

	t := Tier(k)
	switch reason {
	case tier.Evicted:
		l.logger.LogEviction(context.Background(), t, key)
	case tier.Corrupted:
		l.logger.LogCorruption(context.Background(), t, key)
	case tier.Deleted:
		return
	}
	l.metrics.RecordEviction(t, reason.String())
}

func (l *indexListener) Cleared(k tier.Kind) {
	l.index.ClearTier(int(k))
}
