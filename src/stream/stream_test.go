package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hadz2damax/NILM/src/disaggregate"
)

type fakeReader struct {
	queue     []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

type fakeWriter struct {
	written []kafka.Message
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.written = append(w.written, msgs...)
	return nil
}

func reading(t *testing.T, offset int64, meter string, minute int, power float64) kafka.Message {
	t.Helper()
	value, err := json.Marshal(Reading{
		MeterID:   meter,
		Timestamp: time.Date(2024, 1, 1, 0, minute, 0, 0, time.UTC),
		Power:     power,
	})
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Offset: offset, Value: value}
}

func trainedMean(t *testing.T) *disaggregate.Mean {
	t.Helper()
	m := disaggregate.NewMean()
	if err := m.PartialFit([]disaggregate.ApplianceTrain{{Name: "fridge", Chunks: [][]float64{{100}}}}); err != nil {
		t.Fatal(err)
	}
	return m
}

func offsets(msgs []kafka.Message) string {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Offset
	}
	return fmt.Sprint(out)
}

func TestProcessorPublishesFullWindows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{cancel: cancel, queue: []kafka.Message{
		reading(t, 0, "m1", 0, 150),
		reading(t, 1, "m2", 0, 90),
		{Offset: 2, Value: []byte("not json")},
		reading(t, 3, "m1", 1, 160),
	}}
	w := &fakeWriter{}
	p := NewProcessor(r, w, trainedMean(t), 2, nil)

	if err := p.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if len(w.written) != 1 {
		t.Fatalf("wrote %d predictions, want 1", len(w.written))
	}
	if string(w.written[0].Key) != "m1" {
		t.Fatalf("key = %q, want m1", w.written[0].Key)
	}
	var pred Prediction
	if err := json.Unmarshal(w.written[0].Value, &pred); err != nil {
		t.Fatal(err)
	}
	if pred.MeterID != "m1" || pred.ID == "" {
		t.Fatalf("prediction = %+v", pred)
	}
	if got := pred.Table.Power["fridge"]; len(got) != 2 || got[1] != 100 {
		t.Fatalf("fridge = %v", got)
	}
	if !pred.To.After(pred.From) {
		t.Fatalf("window %v..%v", pred.From, pred.To)
	}

	// m2's partial window at offset 1 holds the partition back: only m1's
	// first reading is committed, even though offsets 2 and 3 are done.
	if got := offsets(r.committed); got != "[0]" {
		t.Fatalf("committed offsets = %s, want [0]", got)
	}
}

func TestProcessorCommitsPastWindowOnceItFlushes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{cancel: cancel, queue: []kafka.Message{
		reading(t, 0, "m1", 0, 150),
		reading(t, 1, "m2", 0, 90),
		{Offset: 2, Value: []byte("not json")},
		reading(t, 3, "m1", 1, 160),
		reading(t, 4, "m2", 1, 95),
		reading(t, 5, "m1", 2, 170),
	}}
	w := &fakeWriter{}
	if err := NewProcessor(r, w, trainedMean(t), 2, nil).Run(ctx); err != nil {
		t.Fatal(err)
	}

	if len(w.written) != 2 {
		t.Fatalf("wrote %d predictions, want 2", len(w.written))
	}
	// m2 completing releases everything up to offset 4. m1's third reading
	// starts a new partial window and stays uncommitted.
	if got := offsets(r.committed); got != "[0 4]" {
		t.Fatalf("committed offsets = %s, want [0 4]", got)
	}
}

func TestProcessorCommitsPartitionsIndependently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	onPartition := func(msg kafka.Message, partition int) kafka.Message {
		msg.Partition = partition
		return msg
	}
	r := &fakeReader{cancel: cancel, queue: []kafka.Message{
		onPartition(reading(t, 10, "m2", 0, 90), 1),
		onPartition(reading(t, 20, "m1", 0, 150), 0),
		onPartition(reading(t, 21, "m1", 1, 160), 0),
	}}
	if err := NewProcessor(r, &fakeWriter{}, trainedMean(t), 2, nil).Run(ctx); err != nil {
		t.Fatal(err)
	}

	if len(r.committed) != 1 {
		t.Fatalf("committed %d messages, want 1", len(r.committed))
	}
	if got := r.committed[0]; got.Partition != 0 || got.Offset != 21 {
		t.Fatalf("committed partition %d offset %d, want partition 0 offset 21", got.Partition, got.Offset)
	}
}

func TestProcessorStopsWhenNotTrained(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{cancel: cancel, queue: []kafka.Message{reading(t, 0, "m1", 0, 1)}}
	p := NewProcessor(r, &fakeWriter{}, disaggregate.NewMean(), 1, nil)

	err := p.Run(ctx)
	if !errors.Is(err, disaggregate.ErrNotTrained) {
		t.Fatalf("err = %v, want ErrNotTrained", err)
	}
	if len(r.committed) != 0 {
		t.Fatal("window committed without a prediction")
	}
}

func TestProcessorRejectsReadingWithoutMeter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{cancel: cancel, queue: []kafka.Message{{Offset: 5, Value: []byte(`{"power": 3}`)}}}
	w := &fakeWriter{}
	if err := NewProcessor(r, w, trainedMean(t), 1, nil).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(w.written) != 0 || offsets(r.committed) != "[5]" {
		t.Fatalf("written = %d, committed = %s", len(w.written), offsets(r.committed))
	}
}
