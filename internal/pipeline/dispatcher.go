package pipeline

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"fuelwatch/ingestion/internal/config"
	"fuelwatch/ingestion/internal/domain"
	"fuelwatch/ingestion/internal/fueling"
	"fuelwatch/ingestion/internal/ingest"
	"fuelwatch/ingestion/internal/metrics"
	"fuelwatch/ingestion/internal/resolver"
	"fuelwatch/ingestion/internal/session"
)

// Dispatcher routes normalized samples to per-vehicle workers. Each
// plate gets exactly one worker and one bounded queue, so per-vehicle
// ordering holds and no vehicle's processing can block another's.
type Dispatcher struct {
	cfg      *config.Config
	machine  *session.Machine
	resolver *resolver.Resolver
	emitter  *Emitter
	snaps    SnapshotWriter

	mu     sync.Mutex
	queues map[string]chan *domain.TelemetrySample
	wg     sync.WaitGroup
	closed bool
}

func NewDispatcher(cfg *config.Config, machine *session.Machine, res *resolver.Resolver, emitter *Emitter, snaps SnapshotWriter) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		machine:  machine,
		resolver: res,
		emitter:  emitter,
		snaps:    snaps,
		queues:   make(map[string]chan *domain.TelemetrySample),
	}
}

// HandleRaw normalizes one inbound payload and routes it. Malformed
// samples are counted and dropped; nothing here is fatal.
func (d *Dispatcher) HandleRaw(payload []byte) {
	metrics.SamplesReceived.Add(1)

	sample, err := ingest.Normalize(payload, time.Now())
	if err != nil {
		metrics.MalformedSamples.Add(1)
		log.WithError(err).Debug("dropping malformed sample")
		return
	}
	d.Dispatch(sample)
}

// Dispatch routes a normalized sample to its vehicle's worker, spawning
// the worker on the plate's first sample. The send never blocks: a full
// queue drops the sample and counts it.
func (d *Dispatcher) Dispatch(sample *domain.TelemetrySample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	ch, ok := d.queues[sample.Plate]
	if !ok {
		ch = make(chan *domain.TelemetrySample, d.cfg.VehicleQueueSize)
		d.queues[sample.Plate] = ch
		d.spawn(sample.Plate, ch)
	}

	// The send stays under the lock so Close cannot close the queue
	// mid-send. It never blocks, so holding the lock here is safe.
	select {
	case ch <- sample:
	default:
		metrics.QueueDrops.Add(1)
		log.WithField("plate", sample.Plate).Warn("vehicle queue full, dropping sample")
	}
}

func (d *Dispatcher) spawn(plate string, ch chan *domain.TelemetrySample) {
	w := &vehicleWorker{
		plate:      plate,
		ch:         ch,
		state:      &domain.VehicleState{Plate: plate},
		machine:    d.machine,
		resolver:   d.resolver,
		emitter:    d.emitter,
		snaps:      d.snaps,
		sweepEvery: time.Duration(d.cfg.SweepIntervalSec) * time.Second,
	}
	w.detector = fueling.NewDetector(fueling.Config{
		MinLiters:       d.cfg.FillMinLiters,
		MinPctOfTank:    d.cfg.FillMinPctOfTank,
		DefaultCapacity: d.cfg.TankCapacityLiters,
		LevelWindow:     time.Duration(d.cfg.LevelWindowMinutes) * time.Minute,
		MergeWindow:     time.Duration(d.cfg.MergeWindowMinutes) * time.Minute,
		Company:         d.cfg.CompanyName,
	}, plate)
	w.detector.OnDetect = w.creditFill

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		w.run()
	}()

	log.WithField("plate", plate).Info("started vehicle worker")
}

// Close stops accepting samples, lets every worker drain its queue and
// flush buffered detections, then returns.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	for _, ch := range d.queues {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
