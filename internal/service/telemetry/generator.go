package telemetry

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/splax/trafficsim/internal/domain"
)

const (
	minDetections     = 5
	detectionSpread   = 20
	minConfidence     = 0.7
	confidenceSpread  = 0.3
	frameWidth        = 800
	frameHeight       = 600
	minBoxSide        = 50
	boxSideSpread     = 100
	cameraPoolSize    = 4
	metricDeltaSpread = 10
	metricDeltaOffset = 5
)

// RandomSource yields uniformly distributed values in [0, 1).
// *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithIDGenerator overrides how snapshot and detection identifiers are minted.
func WithIDGenerator(fn func() string) Option {
	return func(g *Generator) {
		if fn != nil {
			g.newID = fn
		}
	}
}

// WithPhaseDurations makes a light's countdown restart at the configured
// duration for its new status whenever it cycles. Statuses without an entry
// keep the countdown at zero.
func WithPhaseDurations(durations map[domain.SignalStatus]int) Option {
	return func(g *Generator) {
		if len(durations) == 0 {
			g.phaseDurations = nil
			return
		}
		g.phaseDurations = make(map[domain.SignalStatus]int, len(durations))
		for status, seconds := range durations {
			if seconds > 0 {
				g.phaseDurations[status] = seconds
			}
		}
	}
}

// Generator produces randomized snapshots of traffic telemetry.
// It is not safe for concurrent use unless the RandomSource is.
type Generator struct {
	random         RandomSource
	now            func() time.Time
	newID          func() string
	phaseDurations map[domain.SignalStatus]int
}

// NewGenerator builds a Generator. A nil random source falls back to a
// time-seeded math/rand source.
func NewGenerator(random RandomSource, opts ...Option) *Generator {
	if random == nil {
		random = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	g := &Generator{
		random: random,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a new snapshot. Lights and metrics evolve from previous, or
// from the seed set when previous is nil. previous is never modified.
func (g *Generator) Generate(previous *domain.Snapshot) domain.Snapshot {
	now := g.now().UTC()

	var (
		lights   []domain.TrafficLight
		metrics  []domain.IntersectionMetrics
		sequence uint64 = 1
	)
	if previous == nil {
		seed := SeedSnapshot(now)
		lights = seed.TrafficLights
		metrics = seed.Metrics
	} else {
		lights = previous.TrafficLights
		metrics = previous.Metrics
		sequence = previous.Sequence + 1
	}

	return domain.Snapshot{
		ID:                g.newID(),
		Sequence:          sequence,
		Timestamp:         now,
		VehicleDetections: g.detections(now),
		TrafficLights:     g.advanceLights(lights, now),
		Metrics:           g.perturbMetrics(metrics, now),
	}
}

func (g *Generator) detections(now time.Time) []domain.VehicleDetection {
	types := domain.VehicleTypes()
	count := g.intn(detectionSpread) + minDetections
	out := make([]domain.VehicleDetection, 0, count)
	for i := 0; i < count; i++ {
		d := domain.VehicleDetection{ID: "det-" + g.newID()}
		d.Type = types[g.intn(len(types))]
		d.Confidence = minConfidence + g.unit()*confidenceSpread
		if d.Confidence >= 1 {
			d.Confidence = math.Nextafter(1, 0)
		}
		d.BBox = domain.BoundingBox{
			X:      g.unit() * frameWidth,
			Y:      g.unit() * frameHeight,
			Width:  minBoxSide + g.unit()*boxSideSpread,
			Height: minBoxSide + g.unit()*boxSideSpread,
		}
		d.Timestamp = now
		d.CameraID = fmt.Sprintf("cam-%03d", g.intn(cameraPoolSize)+1)
		out = append(out, d)
	}
	return out
}

func (g *Generator) advanceLights(lights []domain.TrafficLight, now time.Time) []domain.TrafficLight {
	out := make([]domain.TrafficLight, len(lights))
	for i, light := range lights {
		next := light
		next.Countdown = max(0, light.Countdown-1)
		if light.Countdown <= 0 {
			next.Status = light.Status.Next()
			if seconds, ok := g.phaseDurations[next.Status]; ok {
				next.Countdown = seconds
			}
		}
		next.LastUpdated = now
		out[i] = next
	}
	return out
}

func (g *Generator) perturbMetrics(metrics []domain.IntersectionMetrics, now time.Time) []domain.IntersectionMetrics {
	out := make([]domain.IntersectionMetrics, len(metrics))
	for i, metric := range metrics {
		next := metric
		next.VehicleCount = max(0, metric.VehicleCount+g.delta())
		next.AvgWaitTime = max(0, metric.AvgWaitTime+g.delta())
		next.Timestamp = now
		out[i] = next
	}
	return out
}

// delta draws an integer in [-5, 4].
func (g *Generator) delta() int {
	return g.intn(metricDeltaSpread) - metricDeltaOffset
}

// unit draws from the random source, pinned to [0, 1).
func (g *Generator) unit() float64 {
	v := g.random.Float64()
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v >= 1:
		return math.Nextafter(1, 0)
	}
	return v
}

func (g *Generator) intn(n int) int {
	v := int(math.Floor(g.unit() * float64(n)))
	if v >= n {
		v = n - 1
	}
	return v
}
