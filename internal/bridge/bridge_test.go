package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radwatch/gmcbridge/internal/detector"
	"github.com/radwatch/gmcbridge/internal/metrics"
	"github.com/radwatch/gmcbridge/internal/models"
)

// scriptedPoller returns readings (or errors) in sequence, one per cycle.
type scriptedPoller struct {
	readings []int
	errs     []error
	calls    int
}

func (p *scriptedPoller) ReadCPM() (int, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return 0, p.errs[i]
	}
	return p.readings[i], nil
}

type published struct {
	topic   string
	payload interface{}
}

type capturePublisher struct {
	messages []published
	err      error
}

func (c *capturePublisher) Publish(topic string, payload interface{}) error {
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, published{topic: topic, payload: payload})
	return nil
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestBridge(t *testing.T, poller Poller, publisher Publisher, windowSize, maxCPM int, maxJump, factor float64) (*Bridge, *metrics.Metrics) {
	t.Helper()
	state, err := detector.NewState(windowSize, maxCPM, maxJump, factor)
	require.NoError(t, err)

	m := metrics.New()
	topics := Topics{CPM: "geiger/cpm", DoseRate: "geiger/usvh"}
	return New(poller, publisher, state, topics, newTestLogger(), m), m
}

func TestRunCycleEndToEnd(t *testing.T) {
	// WINDOW_SIZE=3, MAX_CPM=1000, MAX_CPM_JUMP=5.0, CPM_TO_USVH=153.0,
	// poll sequence [20, 22, 19, 5000, 21]: the spike is rejected, every
	// other cycle publishes to both topics.
	poller := &scriptedPoller{readings: []int{20, 22, 19, 5000, 21}}
	publisher := &capturePublisher{}
	b, m := newTestBridge(t, poller, publisher, 3, 1000, 5.0, 153.0)

	for i := 0; i < 5; i++ {
		err := b.RunCycle(context.Background())
		require.NoError(t, err)
	}

	// 4 publishing cycles, two topics each.
	require.Len(t, publisher.messages, 8)

	// The rejected cycle produced no message at all.
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SamplesRejected))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SamplesAccepted))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.Publishes))

	// Final cycle: window holds [22, 19, 21] after 20 was evicted.
	last := publisher.messages[6]
	assert.Equal(t, "geiger/cpm", last.topic)
	cpmAgg, ok := last.payload.(models.CPMAggregate)
	require.True(t, ok)
	assert.Equal(t, 21, cpmAgg.Value)
	assert.Equal(t, 19, cpmAgg.Min)
	assert.Equal(t, 22, cpmAgg.Max)
	assert.InDelta(t, 20.67, cpmAgg.Avg, 1e-9)

	lastDose := publisher.messages[7]
	assert.Equal(t, "geiger/usvh", lastDose.topic)
	doseAgg, ok := lastDose.payload.(models.DoseAggregate)
	require.True(t, ok)
	assert.InDelta(t, 0.1373, doseAgg.Value, 1e-9)
	assert.InDelta(t, 0.1242, doseAgg.Min, 1e-9)
	assert.InDelta(t, 0.1438, doseAgg.Max, 1e-9)
}

func TestRunCyclePollFailure(t *testing.T) {
	pollErr := errors.New("read timeout")
	poller := &scriptedPoller{
		readings: []int{0, 25},
		errs:     []error{pollErr, nil},
	}
	publisher := &capturePublisher{}
	b, m := newTestBridge(t, poller, publisher, 10, 100000, 5.0, 153.0)

	// Failed poll: no publish, no state mutation, error surfaced.
	err := b.RunCycle(context.Background())
	assert.ErrorIs(t, err, pollErr)
	assert.Empty(t, publisher.messages)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollFailures))

	// The loop keeps going: next cycle publishes normally.
	err = b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, publisher.messages, 2)
}

func TestRunCycleRejectionPublishesNothing(t *testing.T) {
	poller := &scriptedPoller{readings: []int{10, 10000}}
	publisher := &capturePublisher{}
	b, m := newTestBridge(t, poller, publisher, 10, 100000, 5.0, 153.0)

	require.NoError(t, b.RunCycle(context.Background()))
	require.Len(t, publisher.messages, 2)

	// 10000 > 10*5.0: rejected, and notably not an error.
	require.NoError(t, b.RunCycle(context.Background()))
	assert.Len(t, publisher.messages, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SamplesRejected))
}

func TestRunCyclePublishFailureIsNotFatal(t *testing.T) {
	poller := &scriptedPoller{readings: []int{30}}
	publisher := &capturePublisher{err: errors.New("not connected")}
	b, m := newTestBridge(t, poller, publisher, 10, 100000, 5.0, 153.0)

	err := b.RunCycle(context.Background())
	assert.Error(t, err)

	// The sample was still accepted; only delivery was lost.
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SamplesAccepted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PublishFailures))
}

func TestRunCycleCancelledContext(t *testing.T) {
	poller := &scriptedPoller{readings: []int{30}}
	publisher := &capturePublisher{}
	b, _ := newTestBridge(t, poller, publisher, 10, 100000, 5.0, 153.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, poller.calls)
	assert.Empty(t, publisher.messages)
}
