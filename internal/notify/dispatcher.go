package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leozw/pulse-monitor/internal/db"
	"github.com/leozw/pulse-monitor/internal/metrics"
)

type Options struct {
	QueueSize     int
	Workers       int
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

func (o *Options) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 100
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Burst <= 0 {
		o.Burst = 5
	}
}

// Dispatcher queues notifications and delivers them from background
// workers. Enqueueing never blocks; a full queue drops the notification.
type Dispatcher struct {
	notifier  Notifier
	opts      Options
	limiter   *rate.Limiter
	queue     chan *Notification
	collector *metrics.Collector
	logger    *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewDispatcher(notifier Notifier, opts Options, collector *metrics.Collector, logger *zap.Logger) *Dispatcher {
	opts.setDefaults()

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &Dispatcher{
		notifier:  notifier,
		opts:      opts,
		limiter:   rate.NewLimiter(limit, opts.Burst),
		queue:     make(chan *Notification, opts.QueueSize),
		collector: collector,
		logger:    logger,
	}
}

// Start launches the delivery workers. They exit when ctx is cancelled or
// Close has drained the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}

	d.logger.Info("Notification dispatcher started",
		zap.String("channel", d.notifier.Name()),
		zap.Int("workers", d.opts.Workers),
		zap.Int("queue_size", d.opts.QueueSize),
	)
}

// Dispatch formats an alert and queues it.
func (d *Dispatcher) Dispatch(alert *db.Alert, monitor *db.Monitor) bool {
	name := ""
	if monitor != nil {
		name = monitor.Name
	}
	n, err := FormatAlert(alert, name)
	if err != nil {
		d.logger.Error("Failed to format alert notification",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		return false
	}
	return d.Enqueue(n)
}

// Enqueue queues n without blocking and reports whether it was accepted.
func (d *Dispatcher) Enqueue(n *Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("Notification dropped, dispatcher closed", zap.String("subject", n.Subject))
		return false
	}

	select {
	case d.queue <- n:
		return true
	default:
		d.collector.RecordNotificationDropped()
		d.logger.Warn("Notification queue full, dropping",
			zap.String("subject", n.Subject),
			zap.Int("queue_size", d.opts.QueueSize),
		)
		return false
	}
}

// Close stops accepting notifications and waits for queued ones to be
// delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-d.queue:
			if !ok {
				return
			}
			if err := d.limiter.Wait(ctx); err != nil {
				d.logger.Warn("Notification abandoned", zap.String("subject", n.Subject), zap.Error(err))
				return
			}
			d.deliver(ctx, id, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, worker int, n *Notification) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	channel := d.notifier.Name()
	start := time.Now()
	err := d.notifier.Deliver(ctx, n)
	took := time.Since(start)

	if err != nil {
		d.collector.RecordNotification(channel, "failed", took)
		d.logger.Error("Failed to deliver notification",
			zap.Int("worker", worker),
			zap.String("channel", channel),
			zap.String("subject", n.Subject),
			zap.Error(err),
		)
		return
	}

	d.collector.RecordNotification(channel, "sent", took)
	d.logger.Debug("Notification delivered",
		zap.String("channel", channel),
		zap.String("subject", n.Subject),
		zap.Duration("took", took),
	)
}

// Channels assembles the configured notifiers. The log channel is always
// present so alerts are never silently discarded.
func Channels(logger *zap.Logger, webhookURL string, smtp SMTPConfig) Notifier {
	out := Multi{NewLog(logger)}
	if w := NewWebhook(webhookURL); w != nil {
		out = append(out, w)
	}
	if e := NewEmail(smtp); e != nil {
		out = append(out, e)
	}
	return out
}
