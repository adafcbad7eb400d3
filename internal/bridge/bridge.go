// Package bridge implements the publish cycle: poll the detector, decode,
// validate, update the rolling windows and publish the aggregate snapshots.
// One cycle runs per scheduler tick, strictly sequentially.
package bridge

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/radwatch/gmcbridge/internal/detector"
	"github.com/radwatch/gmcbridge/internal/metrics"
	"github.com/radwatch/gmcbridge/internal/models"
)

// Poller reads one decoded CPM value from the detector. Transport and
// decode failures are the same error to us: the cycle is skipped either way.
type Poller interface {
	ReadCPM() (int, error)
}

// Publisher sends one JSON payload to a topic.
type Publisher interface {
	Publish(topic string, payload interface{}) error
}

// Topics names the two telemetry destinations.
type Topics struct {
	CPM      string
	DoseRate string
}

// Bridge drives one poll-validate-aggregate-publish cycle per tick. All
// detector state is owned here and mutated by RunCycle only.
type Bridge struct {
	poller    Poller
	publisher Publisher
	state     *detector.State
	topics    Topics
	logger    *logrus.Logger
	metrics   *metrics.Metrics

	// warnLimiter keeps a flapping device or a noise burst from flooding
	// the log with one warning per second.
	warnLimiter *rate.Limiter
}

// New creates a bridge around already-constructed collaborators.
func New(poller Poller, publisher Publisher, state *detector.State, topics Topics, logger *logrus.Logger, m *metrics.Metrics) *Bridge {
	return &Bridge{
		poller:      poller,
		publisher:   publisher,
		state:       state,
		topics:      topics,
		logger:      logger,
		metrics:     m,
		warnLimiter: rate.NewLimiter(rate.Limit(1), 10),
	}
}

// RunCycle executes one full cycle. Poll failures and validation
// rejections skip the cycle without publishing and without mutating
// detector state; a rejected sample therefore produces no message at all
// rather than a stale repeat. Publish failures are logged and counted but
// never stop the loop.
func (b *Bridge) RunCycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.metrics.Polls.Inc()

	cpm, err := b.poller.ReadCPM()
	if err != nil {
		b.metrics.PollFailures.Inc()
		if b.warnLimiter.Allow() {
			b.logger.WithError(err).Warn("Poll failed, skipping cycle")
		}
		return err
	}

	if !b.state.Observe(cpm) {
		b.metrics.SamplesRejected.Inc()
		if b.warnLimiter.Allow() {
			b.logger.WithField("cpm", cpm).Warn("Reading rejected by validator, skipping cycle")
		}
		return nil
	}
	b.metrics.SamplesAccepted.Inc()

	cpmStats, ok := b.state.SnapshotCPM()
	if !ok {
		// Cannot happen right after an accepted sample; guard anyway.
		return nil
	}
	doseStats, ok := b.state.SnapshotDose()
	if !ok {
		return nil
	}

	cpmAgg := models.CPMAggregate{
		Value: cpmStats.Value,
		Min:   cpmStats.Min,
		Avg:   round(cpmStats.Avg, 2),
		Max:   cpmStats.Max,
	}
	doseAgg := models.DoseAggregate{
		Value: round(doseStats.Value, 4),
		Min:   round(doseStats.Min, 4),
		Avg:   round(doseStats.Avg, 4),
		Max:   round(doseStats.Max, 4),
	}

	b.metrics.CPM.Set(float64(cpmStats.Value))
	b.metrics.DoseRate.Set(doseStats.Value)

	var firstErr error
	if err := b.publishAggregate(b.topics.CPM, cpmAgg); err != nil {
		firstErr = err
	}
	if err := b.publishAggregate(b.topics.DoseRate, doseAgg); err != nil && firstErr == nil {
		firstErr = err
	}

	b.logger.WithFields(logrus.Fields{
		"cpm":  cpmStats.Value,
		"usvh": doseAgg.Value,
	}).Debug("Cycle complete")

	return firstErr
}

func (b *Bridge) publishAggregate(topic string, payload interface{}) error {
	if err := b.publisher.Publish(topic, payload); err != nil {
		b.metrics.PublishFailures.Inc()
		b.logger.WithError(err).WithField("topic", topic).Warn("Publish failed, dropping payload")
		return err
	}
	b.metrics.Publishes.Inc()
	return nil
}

// round rounds v to the given number of decimal places, matching the
// formatting the telemetry consumers expect.
func round(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}
