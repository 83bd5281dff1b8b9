// Package stats emits one statistics record per successful render.
package stats

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Record describes one completed render
type Record struct {
	Path       string     `json:"path"`
	Args       url.Values `json:"args"`
	RenderTime float64    `json:"rendertime"` // seconds
	RSS        uint64     `json:"rss"`        // peak resident set size, KiB
}

// Sink receives stats records
type Sink interface {
	Emit(rec Record) error
}

// MemorySampler reports the peak resident memory of the process in KiB
type MemorySampler interface {
	PeakRSS() uint64
}

// Counter is notified for every emitted record
type Counter interface {
	RecordStatsRecord()
}

// ZapSink writes each record as a JSON message on the stats logger
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Emit(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal stats record: %w", err)
	}
	s.logger.Info(string(line))
	return nil
}

// Recorder builds records and hands them to the sink. Failures are logged
// and never reach the caller.
type Recorder struct {
	sink    Sink
	sampler MemorySampler
	counter Counter
	logger  *zap.Logger
}

// NewRecorder accepts a nil sampler (rss reported as 0) and a nil counter
func NewRecorder(sink Sink, sampler MemorySampler, counter Counter, logger *zap.Logger) *Recorder {
	return &Recorder{
		sink:    sink,
		sampler: sampler,
		counter: counter,
		logger:  logger,
	}
}

// Record emits the record for one successful render
func (r *Recorder) Record(path string, args url.Values, renderTime time.Duration) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Stats recorder panicked", zap.String("path", path), zap.Any("panic", p))
		}
	}()

	rec := Record{
		Path:       path,
		Args:       args,
		RenderTime: renderTime.Seconds(),
	}
	if r.sampler != nil {
		rec.RSS = r.sampler.PeakRSS()
	}
	if rec.Args == nil {
		rec.Args = url.Values{}
	}

	if err := r.sink.Emit(rec); err != nil {
		r.logger.Warn("Failed to emit stats record", zap.String("path", path), zap.Error(err))
		return
	}
	if r.counter != nil {
		r.counter.RecordStatsRecord()
	}
}
