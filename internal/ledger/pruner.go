package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	prunedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_pruned_records_total",
		Help: "History records deleted after their ttl passed.",
	})
	pruneErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_prune_errors_total",
		Help: "Failed prune runs.",
	})
)

// Expirer deletes up to limit records whose ttl is below nowEpoch.
type Expirer interface {
	DeleteExpired(ctx context.Context, nowEpoch int64, limit int) (int64, error)
}

// Pruner drops expired history on a cron schedule.
type Pruner struct {
	repo      Expirer
	clock     notification.Clock
	batchSize int
	maxRounds int
	log       *zap.Logger

	parser cron.Parser
	mu     sync.Mutex
	c      *cron.Cron
}

func NewPruner(repo Expirer, clock notification.Clock, batchSize int, log *zap.Logger) *Pruner {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if clock == nil {
		clock = notification.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pruner{
		repo:      repo,
		clock:     clock,
		batchSize: batchSize,
		maxRounds: 100,
		log:       log.With(zap.String("component", "ledger.pruner")),
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// PruneOnce deletes expired rows batch by batch until a short batch comes back.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	now := p.clock.Now().Unix()
	var total int64
	for i := 0; i < p.maxRounds; i++ {
		n, err := p.repo.DeleteExpired(ctx, now, p.batchSize)
		total += n
		if err != nil {
			pruneErrors.Inc()
			return total, fmt.Errorf("prune history: %w", err)
		}
		if n < int64(p.batchSize) {
			break
		}
	}
	prunedRecords.Add(float64(total))
	return total, nil
}

// Start schedules PruneOnce; the returned error only reports a bad spec.
func (p *Pruner) Start(ctx context.Context, spec string) error {
	sched, err := p.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse prune schedule %q: %w", spec, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c != nil {
		p.c.Stop()
	}
	p.c = cron.New(cron.WithParser(p.parser), cron.WithLocation(time.UTC))
	p.c.Schedule(sched, cron.FuncJob(func() {
		start := time.Now()
		n, err := p.PruneOnce(ctx)
		if err != nil {
			p.log.Warn("prune failed", zap.Int64("deleted", n), zap.Error(err))
			return
		}
		p.log.Info("prune done", zap.Int64("deleted", n), zap.Duration("elapsed", time.Since(start)))
	}))
	p.c.Start()
	p.log.Info("pruner started", zap.String("schedule", spec))
	return nil
}

// Stop halts scheduling and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	c := p.c
	p.c = nil
	p.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
