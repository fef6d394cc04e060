package pipeline

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"fuelwatch/ingestion/internal/domain"
	"fuelwatch/ingestion/internal/metrics"
)

// ArtifactStore is the storage collaborator surface the emitter needs.
type ArtifactStore interface {
	InsertSession(ctx context.Context, sess *domain.OperatingSession) error
	UpdateSession(ctx context.Context, sess *domain.OperatingSession) error
	InsertFillEvent(ctx context.Context, ev *domain.FuelFillEvent) error
	InsertActivity(ctx context.Context, entry *domain.ActivityLogEntry) error
}

// FillDeduper backstops replayed fill detections across restarts.
type FillDeduper interface {
	CheckFillDedup(ctx context.Context, plate string, fillTime time.Time) (bool, error)
	SetFillDedup(ctx context.Context, plate string, fillTime time.Time) error
}

// ActivityPublisher pushes activity entries to live subscribers.
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, entry *domain.ActivityLogEntry) error
}

type opKind int

const (
	opSessionInsert opKind = iota
	opSessionUpdate
	opFillInsert
	opActivityInsert
)

type persistOp struct {
	kind     opKind
	session  *domain.OperatingSession
	fill     *domain.FuelFillEvent
	activity *domain.ActivityLogEntry
}

// Emitter translates state-machine and detector outputs into persisted
// rows. Writes are asynchronous and fire-and-log: a failed write is
// retried once, then counted lost. Ingestion never blocks on storage.
type Emitter struct {
	ch    chan persistOp
	store ArtifactStore
	dedup FillDeduper
	pub   ActivityPublisher
}

func NewEmitter(store ArtifactStore, dedup FillDeduper, pub ActivityPublisher, queueSize int) *Emitter {
	return &Emitter{
		ch:    make(chan persistOp, queueSize),
		store: store,
		dedup: dedup,
		pub:   pub,
	}
}

// Run drains the persistence queue until the context is cancelled and
// the queue is closed. Call Close after the producers have stopped.
func (e *Emitter) Run(ctx context.Context) {
	for {
		select {
		case op, ok := <-e.ch:
			if !ok {
				return
			}
			e.persist(context.Background(), op)
		case <-ctx.Done():
			// Drain what is already queued before giving up.
			for {
				select {
				case op, ok := <-e.ch:
					if !ok {
						return
					}
					e.persist(context.Background(), op)
				default:
					return
				}
			}
		}
	}
}

// Close stops the writer loop once the queue drains.
func (e *Emitter) Close() {
	close(e.ch)
}

// SessionOpened persists a freshly opened session.
func (e *Emitter) SessionOpened(sess *domain.OperatingSession) {
	c := *sess
	e.enqueue(persistOp{kind: opSessionInsert, session: &c})
}

// SessionUpdated persists the running mutation of an open session.
func (e *Emitter) SessionUpdated(sess *domain.OperatingSession) {
	c := *sess
	e.enqueue(persistOp{kind: opSessionUpdate, session: &c})
}

// SessionClosed persists the final state of a closed session.
func (e *Emitter) SessionClosed(sess *domain.OperatingSession) {
	c := *sess
	e.enqueue(persistOp{kind: opSessionUpdate, session: &c})
}

// FillDetected persists a finalized fill event.
func (e *Emitter) FillDetected(ev *domain.FuelFillEvent) {
	c := *ev
	e.enqueue(persistOp{kind: opFillInsert, fill: &c})
}

// Activity persists one append-only activity entry and publishes it for
// live consumers.
func (e *Emitter) Activity(entry *domain.ActivityLogEntry) {
	c := *entry
	e.enqueue(persistOp{kind: opActivityInsert, activity: &c})
}

func (e *Emitter) enqueue(op persistOp) {
	select {
	case e.ch <- op:
	default:
		metrics.WritesLost.Add(1)
		log.Warn("persistence queue full, dropping write")
	}
}

func (e *Emitter) persist(ctx context.Context, op persistOp) {
	switch op.kind {
	case opSessionInsert:
		e.withRetry(ctx, "session insert", op.session.Plate, func(ctx context.Context) error {
			return e.store.InsertSession(ctx, op.session)
		})
	case opSessionUpdate:
		e.withRetry(ctx, "session update", op.session.Plate, func(ctx context.Context) error {
			return e.store.UpdateSession(ctx, op.session)
		})
	case opFillInsert:
		e.persistFill(ctx, op.fill)
	case opActivityInsert:
		e.withRetry(ctx, "activity insert", op.activity.Plate, func(ctx context.Context) error {
			return e.store.InsertActivity(ctx, op.activity)
		})
		if e.pub != nil {
			if err := e.pub.PublishActivity(ctx, op.activity); err != nil {
				log.WithError(err).WithField("plate", op.activity.Plate).
					Warn("activity publish failed")
			}
		}
	}
}

func (e *Emitter) persistFill(ctx context.Context, ev *domain.FuelFillEvent) {
	if e.dedup != nil {
		dup, err := e.dedup.CheckFillDedup(ctx, ev.Plate, ev.FillTime)
		if err != nil {
			log.WithError(err).WithField("plate", ev.Plate).Warn("fill dedup check failed")
		} else if dup {
			log.WithFields(log.Fields{
				"plate":     ev.Plate,
				"fill_time": ev.FillTime,
			}).Info("duplicate fill event skipped")
			return
		}
	}
	e.withRetry(ctx, "fill insert", ev.Plate, func(ctx context.Context) error {
		return e.store.InsertFillEvent(ctx, ev)
	})
	if e.dedup != nil {
		if err := e.dedup.SetFillDedup(ctx, ev.Plate, ev.FillTime); err != nil {
			log.WithError(err).WithField("plate", ev.Plate).Warn("fill dedup set failed")
		}
	}
}

// withRetry makes one bounded retry after a short pause, then counts the
// write as lost. A lost write degrades data, never the stream.
func (e *Emitter) withRetry(ctx context.Context, what, plate string, fn func(ctx context.Context) error) {
	err := fn(ctx)
	if err == nil {
		return
	}
	metrics.WriteRetries.Add(1)
	log.WithError(err).WithField("plate", plate).Warnf("%s failed, retrying", what)
	time.Sleep(500 * time.Millisecond)
	if err := fn(ctx); err != nil {
		metrics.WritesLost.Add(1)
		log.WithError(err).WithField("plate", plate).Errorf("%s permanently failed", what)
	}
}
