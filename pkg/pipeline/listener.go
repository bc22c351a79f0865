package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"hivewatch/pkg/bus"
	"hivewatch/pkg/feature"
	"hivewatch/pkg/scaling"
	"hivewatch/pkg/structlog"
	"hivewatch/pkg/telemetry"
)

// Scorer scores one normalized vector. Satisfied by model.Scorer; tests
// substitute fixtures.
type Scorer interface {
	Score(vec feature.Vector) (float64, error)
}

// Runtime is the immutable inference state one event is processed against:
// the scaling registry and the scorer loaded from the same artifact bundle.
// A reload swaps the whole Runtime atomically, never a part of it.
type Runtime struct {
	Scaling *scaling.Registry
	Scorer  Scorer
}

// Config carries the listener's startup options, read once.
type Config struct {
	Threshold float64 // alert when score is strictly greater
	Workers   int
}

// Listener drives the per-event pipeline: consume, classify, normalize,
// score, decide, emit. One consumption loop feeds a bounded worker pool;
// work is partitioned by device hash so one device's events stay in order on
// a single worker. Cross-device ordering is not guaranteed.
type Listener struct {
	cfg       Config
	runtime   atomic.Pointer[Runtime]
	consumer  bus.Consumer
	publisher bus.Publisher
	log       *structlog.Logger
	now       func() time.Time
}

// NewListener builds a listener around a loaded runtime.
func NewListener(cfg Config, rt *Runtime, consumer bus.Consumer, publisher bus.Publisher, log *structlog.Logger) *Listener {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	l := &Listener{
		cfg:       cfg,
		consumer:  consumer,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
	l.runtime.Store(rt)
	return l
}

// Swap atomically replaces the inference state. Used by hot reload;
// in-flight events keep the runtime they started with.
func (l *Listener) Swap(rt *Runtime) { l.runtime.Store(rt) }

// Run consumes until the context is canceled. In-flight events finish their
// state machine before Run returns; transport errors back off with a bounded
// delay and never stall the loop forever.
func (l *Listener) Run(ctx context.Context) error {
	chans := make([]chan bus.Message, l.cfg.Workers)
	var wg sync.WaitGroup
	for i := range chans {
		chans[i] = make(chan bus.Message, 16)
		wg.Add(1)
		go func(ch chan bus.Message) {
			defer wg.Done()
			// Detached context: shutdown stops intake, not in-flight work.
			finish := context.WithoutCancel(ctx)
			for msg := range ch {
				l.finish(finish, msg)
			}
		}(chans[i])
	}

	backoff := 100 * time.Millisecond
	for {
		msg, err := l.consumer.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, bus.ErrClosed) {
				break
			}
			l.log.Error("transport consume failed", structlog.Fields{"error": err.Error(), "backoff": backoff.String()})
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			if backoff *= 2; backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
			continue
		}
		backoff = 100 * time.Millisecond
		eventsConsumed.Inc()
		chans[deviceShard(msg.Key, l.cfg.Workers)] <- msg
	}

	for _, ch := range chans {
		close(ch)
	}
	wg.Wait()
	return nil
}

// finish runs one event to a terminal state and acknowledges it. There is no
// event-level retry: an ack follows drop and emit alike.
func (l *Listener) finish(ctx context.Context, msg bus.Message) {
	res := l.Process(ctx, msg)
	l.observe(res)
	if err := l.consumer.Ack(ctx, msg.ID); err != nil {
		l.log.Error("transport ack failed", structlog.Fields{"id": msg.ID, "error": err.Error()})
	}
}

// Process runs the full state machine for one event and reports the result.
// Exported so tests can drive single events without a transport.
func (l *Listener) Process(ctx context.Context, msg bus.Message) Result {
	rt := l.runtime.Load()
	res := Result{State: StateReceived, Device: msg.Key}
	if res.Device == "" {
		res.Device = telemetry.UnknownDevice
	}

	rec, err := telemetry.Decode(msg.Key, msg.Value)
	if err != nil {
		res.Dropped = true
		res.Err = err
		if errors.Is(err, telemetry.ErrUnknownPayload) {
			res.Reason = "unknown_payload"
		} else {
			res.Reason = "decode"
		}
		return res
	}
	res.State = StateClassified
	res.Modality = rec.Modality()

	vec, err := feature.Normalize(rec, rt.Scaling.ForModality(rec.Modality()))
	if err != nil {
		res.Dropped = true
		res.Reason = "normalize"
		res.Err = err
		return res
	}
	res.State = StateNormalized

	score, err := rt.Scorer.Score(vec)
	if err != nil {
		res.Dropped = true
		res.Reason = "score"
		res.Err = err
		return res
	}
	res.State = StateScored
	res.Score = score

	res.State = StateDecided
	// Strictly greater: a score exactly at the threshold is not anomalous.
	if score <= l.cfg.Threshold {
		res.State = StateSuppressed
		return res
	}

	alert := &AlertEvent{
		Device:       res.Device,
		Timestamp:    l.now().UTC().Format(time.RFC3339),
		AnomalyScore: score,
		DataType:     rec.Modality(),
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		res.Dropped = true
		res.Reason = "publish"
		res.Err = err
		return res
	}
	if err := l.publisher.Publish(ctx, bus.Message{Key: alert.Device, Value: payload}); err != nil {
		res.Dropped = true
		res.Reason = "publish"
		res.Err = err
		return res
	}
	res.State = StateEmitted
	res.Alert = alert
	return res
}

// observe logs and counts one result. Drops are always logged with enough
// context to diagnose; nothing is swallowed silently.
func (l *Listener) observe(res Result) {
	if res.Dropped {
		eventsDropped.WithLabelValues(res.Reason).Inc()
		fields := structlog.Fields{
			"device":   res.Device,
			"modality": string(res.Modality),
			"reason":   res.Reason,
			"state":    string(res.State),
		}
		if res.Err != nil {
			fields["error"] = res.Err.Error()
		}
		if res.Reason == "unknown_payload" {
			l.log.Warn("event dropped", fields)
		} else {
			l.log.Error("event dropped", fields)
		}
		return
	}

	scoreObserved.Observe(res.Score)
	switch res.State {
	case StateEmitted:
		alertsEmitted.WithLabelValues(string(res.Modality)).Inc()
		l.log.Info("anomaly alert emitted", structlog.Fields{
			"device":   res.Device,
			"modality": string(res.Modality),
			"score":    res.Score,
		})
	case StateSuppressed:
		eventsSuppressed.Inc()
		l.log.Debug("event below threshold", structlog.Fields{
			"device":   res.Device,
			"modality": string(res.Modality),
			"score":    res.Score,
		})
	}
}

func deviceShard(key string, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(workers))
}
