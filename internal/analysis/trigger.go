// ABOUTME: Trigger - fire-and-forget bridge from finished exchanges to analysis
// ABOUTME: Bounded queue, single worker, hard failure isolation from the chat loop

package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/knowledge-gateway/internal/dedupe"
	"github.com/2389/knowledge-gateway/internal/metrics"
)

// Notification describes one completed exchange worth analyzing.
type Notification struct {
	ConversationID string
	ContextID      string
	MessageCount   int
}

// Analyzer performs the actual knowledge extraction for a notification.
type Analyzer interface {
	Analyze(ctx context.Context, n Notification) error
}

// Trigger accepts exchange-completed notifications and runs analysis in the
// background. Notify never blocks and never fails: a full queue drops the
// notification, an analyzer error or panic is logged and swallowed. Nothing
// that happens here can break the chat loop.
type Trigger struct {
	analyzer Analyzer
	queue    chan Notification
	seen     *dedupe.Cache
	metrics  *metrics.Metrics
	timeout  time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewTrigger starts the background worker. queueSize bounds how many
// notifications may be pending; runTimeout bounds one analysis run.
func NewTrigger(analyzer Analyzer, queueSize int, runTimeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if runTimeout <= 0 {
		runTimeout = 2 * time.Minute
	}

	t := &Trigger{
		analyzer: analyzer,
		queue:    make(chan Notification, queueSize),
		seen:     dedupe.New(10*time.Minute, 1024),
		metrics:  m,
		timeout:  runTimeout,
		logger:   logger.With("component", "analysis-trigger"),
	}
	t.wg.Go(t.worker)
	return t
}

// Notify enqueues an exchange for analysis. Exchanges with fewer than two
// messages carry no user/assistant pair and are skipped. Duplicate
// notifications for the same conversation state are suppressed.
func (t *Trigger) Notify(n Notification) {
	if n.MessageCount < 2 {
		t.logger.Debug("skipping analysis, not enough messages",
			"conversation_id", n.ConversationID, "messages", n.MessageCount)
		return
	}

	key := fmt.Sprintf("%s:%d", n.ConversationID, n.MessageCount)
	if t.seen.CheckAndMark(key) {
		t.logger.Debug("skipping analysis, duplicate notification", "key", key)
		return
	}

	select {
	case t.queue <- n:
	default:
		t.logger.Warn("analysis queue full, dropping notification",
			"conversation_id", n.ConversationID)
		if t.metrics != nil {
			t.metrics.AnalysisRuns.WithLabelValues("dropped").Inc()
		}
	}
}

// Close stops accepting work and waits for the in-flight run to finish.
func (t *Trigger) Close() {
	t.closeOnce.Do(func() {
		close(t.queue)
		t.wg.Wait()
		t.seen.Close()
	})
}

func (t *Trigger) worker() {
	for n := range t.queue {
		t.run(n)
	}
}

// run executes one analysis with panic recovery. Whatever goes wrong in
// extraction stays here.
func (t *Trigger) run(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("analysis panicked",
				"conversation_id", n.ConversationID, "panic", r)
			if t.metrics != nil {
				t.metrics.AnalysisRuns.WithLabelValues("panic").Inc()
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	if err := t.analyzer.Analyze(ctx, n); err != nil {
		t.logger.Error("analysis failed",
			"conversation_id", n.ConversationID, "error", err)
		if t.metrics != nil {
			t.metrics.AnalysisRuns.WithLabelValues("error").Inc()
		}
		return
	}

	if t.metrics != nil {
		t.metrics.AnalysisRuns.WithLabelValues("ok").Inc()
	}
}
