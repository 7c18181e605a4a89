// Package stream disaggregates mains readings consumed from Kafka and
// publishes the per-appliance predictions.
//
// Readings are buffered per meter. When a meter has a full window its
// readings are decoded as one series and the prediction is written keyed by
// the meter id. Offsets are committed per partition only up to the first
// message that is still buffered, so a restart never skips a reading that
// has not produced a prediction.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/hadz2damax/NILM/src/disaggregate"
	"github.com/hadz2damax/NILM/src/metrics"
)

// Reader is the consuming side of a kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Writer is the producing side of a kafka.Writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Reading is one mains power sample of a meter.
type Reading struct {
	MeterID   string    `json:"meterId"`
	Timestamp time.Time `json:"timestamp"`
	Power     float64   `json:"power"`
}

type Prediction struct {
	ID      string              `json:"id"`
	MeterID string              `json:"meterId"`
	From    time.Time           `json:"from"`
	To      time.Time           `json:"to"`
	Table   *disaggregate.Table `json:"table"`
}

type window struct {
	readings []Reading
	msgs     []*inflight
}

// inflight is a fetched message that may not be committed until done.
type inflight struct {
	msg  kafka.Message
	done bool
}

// Processor decodes readings into per-meter windows. It is not safe for
// concurrent use.
type Processor struct {
	reader  Reader
	writer  Writer
	dis     disaggregate.Disaggregator
	size    int
	metrics *metrics.Metrics

	windows map[string]*window
	// pending holds each partition's fetched messages in offset order.
	pending map[int][]*inflight
}

// NewProcessor decodes every size readings of a meter at once.
func NewProcessor(r Reader, w Writer, dis disaggregate.Disaggregator, size int, m *metrics.Metrics) *Processor {
	if size < 1 {
		size = 1
	}
	return &Processor{
		reader:  r,
		writer:  w,
		dis:     dis,
		size:    size,
		metrics: m,
		windows: make(map[string]*window),
		pending: make(map[int][]*inflight),
	}
}

// Run consumes until ctx is cancelled. Partial windows are dropped on exit
// and neither their messages nor any later ones on the same partition are
// committed, so they are read again after a restart.
func (p *Processor) Run(ctx context.Context) error {
	log.WithFields(log.Fields{
		"WINDOW": p.size,
	}).Info("STREAM: CONSUMING MAINS READINGS")
	for {
		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream: fetch: %w", err)
		}
		if err := p.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg kafka.Message) error {
	in := &inflight{msg: msg}
	p.pending[msg.Partition] = append(p.pending[msg.Partition], in)

	var r Reading
	if err := json.Unmarshal(msg.Value, &r); err != nil || r.MeterID == "" {
		log.WithFields(log.Fields{
			"OFFSET":    msg.Offset,
			"PARTITION": msg.Partition,
			"ERROR":     err,
		}).Warn("STREAM: DISCARDING MALFORMED READING")
		p.metrics.StreamMessage("malformed")
		in.done = true
		return p.commit(ctx)
	}
	p.metrics.StreamMessage("ok")

	w := p.windows[r.MeterID]
	if w == nil {
		w = &window{}
		p.windows[r.MeterID] = w
	}
	w.readings = append(w.readings, r)
	w.msgs = append(w.msgs, in)
	if len(w.readings) < p.size {
		return nil
	}

	delete(p.windows, r.MeterID)
	return p.flush(ctx, r.MeterID, w)
}

func (p *Processor) flush(ctx context.Context, meter string, w *window) error {
	series := disaggregate.Series{
		Index:  make([]time.Time, len(w.readings)),
		Values: make([]float64, len(w.readings)),
	}
	for i, r := range w.readings {
		series.Index[i] = r.Timestamp
		series.Values[i] = r.Power
	}

	table, err := p.dis.Disaggregate(series)
	if errors.Is(err, disaggregate.ErrNotTrained) {
		return fmt.Errorf("stream: %w", err)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"METER": meter,
			"ERROR": err,
		}).Warn("STREAM: FAILED TO DISAGGREGATE WINDOW")
		p.metrics.StreamMessage("failed")
		return p.finish(ctx, w)
	}

	value, err := json.Marshal(Prediction{
		ID:      uuid.NewString(),
		MeterID: meter,
		From:    w.readings[0].Timestamp,
		To:      w.readings[len(w.readings)-1].Timestamp,
		Table:   table,
	})
	if err != nil {
		return fmt.Errorf("stream: encode prediction: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(meter), Value: value}); err != nil {
		return fmt.Errorf("stream: publish prediction for %s: %w", meter, err)
	}
	p.metrics.StreamWindow()

	log.WithFields(log.Fields{
		"METER":    meter,
		"READINGS": len(w.readings),
	}).Debug("STREAM: PUBLISHED PREDICTION")
	return p.finish(ctx, w)
}

func (p *Processor) finish(ctx context.Context, w *window) error {
	for _, in := range w.msgs {
		in.done = true
	}
	return p.commit(ctx)
}

// commit advances every partition past its leading run of done messages.
// Kafka offsets are a watermark, so committing a message also commits every
// earlier one on its partition.
func (p *Processor) commit(ctx context.Context) error {
	partitions := make([]int, 0, len(p.pending))
	for part := range p.pending {
		partitions = append(partitions, part)
	}
	sort.Ints(partitions)

	var ready []kafka.Message
	for _, part := range partitions {
		queue := p.pending[part]
		n := 0
		for n < len(queue) && queue[n].done {
			n++
		}
		if n == 0 {
			continue
		}
		ready = append(ready, queue[n-1].msg)
		if n == len(queue) {
			delete(p.pending, part)
		} else {
			p.pending[part] = queue[n:]
		}
	}
	if len(ready) == 0 {
		return nil
	}
	if err := p.reader.CommitMessages(ctx, ready...); err != nil {
		return fmt.Errorf("stream: commit: %w", err)
	}
	return nil
}

// NewKafkaReader joins group on topic, starting from the oldest offset when
// the group has none.
func NewKafkaReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}

// NewKafkaWriter hashes message keys so each meter's predictions stay on one
// partition, in order.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}
