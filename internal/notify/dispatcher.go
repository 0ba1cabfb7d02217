package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const sendTimeout = 10 * time.Second

// Dispatcher decouples notification delivery from the request path. Enqueue
// never blocks: when the buffer is full the notification is dropped and
// logged, because a slow notifier must not hold up or fail a booking.
type Dispatcher struct {
	notifier Notifier
	ch       chan Notification
	log      zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(notifier Notifier, size int, log zerolog.Logger) *Dispatcher {
	if size <= 0 {
		size = 64
	}

	d := &Dispatcher{
		notifier: notifier,
		ch:       make(chan Notification, size),
		log:      log,
		done:     make(chan struct{}),
	}

	go d.run()
	return d
}

// Enqueue hands a notification to the background worker. The return value
// reports whether the dispatch was actually attempted, which callers use to
// decide whether to stamp confirmation bookkeeping.
func (d *Dispatcher) Enqueue(n Notification) bool {
	select {
	case d.ch <- n:
		return true
	default:
		d.log.Warn().
			Str("kind", string(n.Kind)).
			Str("appointment_id", n.AppointmentID.String()).
			Msg("notification queue full, dropping")
		return false
	}
}

// Close stops the worker after draining queued notifications.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.ch)
	})
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for n := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := d.notifier.Send(ctx, n); err != nil {
			// Delivery failure is swallowed here. Retry, if wanted,
			// belongs to the notifier implementation.
			d.log.Error().
				Err(err).
				Str("kind", string(n.Kind)).
				Str("appointment_id", n.AppointmentID.String()).
				Msg("notification send failed")
		}
		cancel()
	}
}
