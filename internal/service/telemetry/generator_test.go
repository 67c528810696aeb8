package telemetry

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/trafficsim/internal/domain"
)

var fixedNow = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

type constSource float64

func (c constSource) Float64() float64 { return float64(c) }

// scriptedSource replays values in order and then repeats fallback.
type scriptedSource struct {
	values   []float64
	fallback float64
	calls    int
}

func (s *scriptedSource) Float64() float64 {
	defer func() { s.calls++ }()
	if s.calls < len(s.values) {
		return s.values[s.calls]
	}
	return s.fallback
}

func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestGenerator(src RandomSource, opts ...Option) *Generator {
	base := []Option{WithClock(func() time.Time { return fixedNow }), WithIDGenerator(counterIDs())}
	return NewGenerator(src, append(base, opts...)...)
}

func TestGenerateFromSeedWithLowestDraws(t *testing.T) {
	gen := newTestGenerator(constSource(0))
	snap := gen.Generate(nil)

	require.Equal(t, uint64(1), snap.Sequence)
	require.Equal(t, fixedNow, snap.Timestamp)
	require.Len(t, snap.VehicleDetections, 5)
	for _, d := range snap.VehicleDetections {
		assert.Equal(t, domain.VehicleCar, d.Type)
		assert.InDelta(t, 0.7, d.Confidence, 1e-9)
		assert.Equal(t, domain.BoundingBox{X: 0, Y: 0, Width: 50, Height: 50}, d.BBox)
		assert.Equal(t, "cam-001", d.CameraID)
		assert.Equal(t, fixedNow, d.Timestamp)
	}

	require.Len(t, snap.TrafficLights, 4)
	wantCountdowns := []int{44, 29, 4, 59}
	wantStatus := []domain.SignalStatus{domain.SignalGreen, domain.SignalRed, domain.SignalYellow, domain.SignalGreen}
	for i, light := range snap.TrafficLights {
		assert.Equal(t, wantCountdowns[i], light.Countdown, light.ID)
		assert.Equal(t, wantStatus[i], light.Status, light.ID)
		assert.Equal(t, fixedNow, light.LastUpdated)
	}

	require.Len(t, snap.Metrics, 3)
	wantCounts := []int{151, 229, 84}
	wantWaits := []int{40, 62, 18}
	for i, m := range snap.Metrics {
		assert.Equal(t, wantCounts[i], m.VehicleCount, m.Intersection)
		assert.Equal(t, wantWaits[i], m.AvgWaitTime, m.Intersection)
	}
}

func TestGenerateWithHighestDraws(t *testing.T) {
	gen := newTestGenerator(constSource(0.999999))
	snap := gen.Generate(nil)

	require.Len(t, snap.VehicleDetections, 24)
	for _, d := range snap.VehicleDetections {
		assert.Equal(t, domain.VehicleBicycle, d.Type)
		assert.Equal(t, "cam-004", d.CameraID)
		assert.Less(t, d.Confidence, 1.0)
		assert.Less(t, d.BBox.X, 800.0)
		assert.Less(t, d.BBox.Y, 600.0)
		assert.Less(t, d.BBox.Width, 150.0)
	}
	// delta is +4 for every metric
	assert.Equal(t, 160, snap.Metrics[0].VehicleCount)
	assert.Equal(t, 49, snap.Metrics[0].AvgWaitTime)
}

func TestGeneratePinsOutOfRangeDraws(t *testing.T) {
	snap := newTestGenerator(constSource(1.5)).Generate(nil)
	require.Len(t, snap.VehicleDetections, 24)
	for _, d := range snap.VehicleDetections {
		assert.Less(t, d.Confidence, 1.0)
	}

	snap = newTestGenerator(constSource(-3)).Generate(nil)
	require.Len(t, snap.VehicleDetections, 5)
}

func TestLightAtZeroCyclesAndStaysAtZero(t *testing.T) {
	prev := &domain.Snapshot{
		Sequence: 7,
		TrafficLights: []domain.TrafficLight{
			{ID: "tl-a", Status: domain.SignalRed, Countdown: 0},
			{ID: "tl-b", Status: domain.SignalGreen, Countdown: 0},
			{ID: "tl-c", Status: domain.SignalYellow, Countdown: 0},
			{ID: "tl-d", Status: domain.SignalGreen, Countdown: 1},
		},
	}
	snap := newTestGenerator(constSource(0)).Generate(prev)

	require.Equal(t, uint64(8), snap.Sequence)
	assert.Equal(t, domain.SignalGreen, snap.TrafficLights[0].Status)
	assert.Equal(t, 0, snap.TrafficLights[0].Countdown)
	assert.Equal(t, domain.SignalYellow, snap.TrafficLights[1].Status)
	assert.Equal(t, domain.SignalRed, snap.TrafficLights[2].Status)
	// countdown reaches zero on this step, the status changes on the next
	assert.Equal(t, domain.SignalGreen, snap.TrafficLights[3].Status)
	assert.Equal(t, 0, snap.TrafficLights[3].Countdown)
}

func TestPhaseDurationsRestartCountdown(t *testing.T) {
	prev := &domain.Snapshot{
		TrafficLights: []domain.TrafficLight{
			{ID: "tl-a", Status: domain.SignalRed, Countdown: 0},
			{ID: "tl-b", Status: domain.SignalGreen, Countdown: 0},
			{ID: "tl-c", Status: domain.SignalYellow, Countdown: 12},
		},
	}
	gen := newTestGenerator(constSource(0), WithPhaseDurations(map[domain.SignalStatus]int{
		domain.SignalGreen: 45,
		domain.SignalRed:   30,
	}))
	snap := gen.Generate(prev)

	assert.Equal(t, domain.SignalGreen, snap.TrafficLights[0].Status)
	assert.Equal(t, 45, snap.TrafficLights[0].Countdown)
	// no yellow duration configured
	assert.Equal(t, domain.SignalYellow, snap.TrafficLights[1].Status)
	assert.Equal(t, 0, snap.TrafficLights[1].Countdown)
	assert.Equal(t, domain.SignalYellow, snap.TrafficLights[2].Status)
	assert.Equal(t, 11, snap.TrafficLights[2].Countdown)
}

func TestMetricsClampAtZero(t *testing.T) {
	prev := &domain.Snapshot{
		Metrics: []domain.IntersectionMetrics{
			{Intersection: "A", VehicleCount: 100, AvgWaitTime: 5, CongestionLevel: domain.CongestionHigh, Throughput: 300},
			{Intersection: "B", VehicleCount: 3, AvgWaitTime: 2, CongestionLevel: domain.CongestionLow, Throughput: 10},
		},
	}
	snap := newTestGenerator(constSource(0)).Generate(prev)

	a, b := snap.Metrics[0], snap.Metrics[1]
	assert.Equal(t, 95, a.VehicleCount)
	assert.Equal(t, 0, a.AvgWaitTime)
	assert.Equal(t, domain.CongestionHigh, a.CongestionLevel)
	assert.Equal(t, 300, a.Throughput)
	assert.Equal(t, fixedNow, a.Timestamp)
	assert.Equal(t, 0, b.VehicleCount)
	assert.Equal(t, 0, b.AvgWaitTime)
	assert.Equal(t, domain.CongestionLow, b.CongestionLevel)
}

func TestMetricDeltasAreDrawnSeparately(t *testing.T) {
	// count draw 0 yields five detections of seven draws each
	draws := make([]float64, 1+5*7)
	draws = append(draws, 0.95, 0.0)
	src := &scriptedSource{values: draws}
	prev := &domain.Snapshot{
		Metrics: []domain.IntersectionMetrics{{Intersection: "A", VehicleCount: 100, AvgWaitTime: 5}},
	}
	snap := newTestGenerator(src).Generate(prev)

	require.Len(t, snap.VehicleDetections, 5)
	assert.Equal(t, 104, snap.Metrics[0].VehicleCount)
	assert.Equal(t, 0, snap.Metrics[0].AvgWaitTime)
	assert.Equal(t, len(draws), src.calls)
}

func TestGenerateDoesNotMutatePrevious(t *testing.T) {
	gen := newTestGenerator(rand.New(rand.NewSource(3)))
	prev := gen.Generate(nil)
	before := prev.Clone()

	next := gen.Generate(&prev)

	require.Equal(t, before, prev)
	require.NotEqual(t, prev.ID, next.ID)
	require.Equal(t, prev.Sequence+1, next.Sequence)
}

func TestGenerateInvariantsHoldOverManySteps(t *testing.T) {
	gen := newTestGenerator(rand.New(rand.NewSource(42)))
	cameras := map[string]bool{"cam-001": true, "cam-002": true, "cam-003": true, "cam-004": true}
	seen := make(map[string]bool)

	var prev *domain.Snapshot
	for step := 0; step < 200; step++ {
		snap := gen.Generate(prev)
		require.False(t, seen[snap.ID], "duplicate snapshot id %s", snap.ID)
		seen[snap.ID] = true

		n := len(snap.VehicleDetections)
		require.GreaterOrEqual(t, n, 5)
		require.LessOrEqual(t, n, 24)
		for _, d := range snap.VehicleDetections {
			require.False(t, seen[d.ID], "duplicate detection id %s", d.ID)
			seen[d.ID] = true
			require.True(t, d.Type.Valid())
			require.GreaterOrEqual(t, d.Confidence, 0.7)
			require.Less(t, d.Confidence, 1.0)
			require.GreaterOrEqual(t, d.BBox.X, 0.0)
			require.Less(t, d.BBox.X, 800.0)
			require.GreaterOrEqual(t, d.BBox.Y, 0.0)
			require.Less(t, d.BBox.Y, 600.0)
			require.GreaterOrEqual(t, d.BBox.Width, 50.0)
			require.Less(t, d.BBox.Width, 150.0)
			require.GreaterOrEqual(t, d.BBox.Height, 50.0)
			require.Less(t, d.BBox.Height, 150.0)
			require.True(t, cameras[d.CameraID], "unexpected camera %s", d.CameraID)
		}

		require.Len(t, snap.TrafficLights, 4)
		for i, light := range snap.TrafficLights {
			require.GreaterOrEqual(t, light.Countdown, 0)
			require.True(t, light.Status.Valid())
			if prev != nil {
				old := prev.TrafficLights[i]
				require.Equal(t, old.ID, light.ID)
				if old.Countdown > 0 {
					require.Equal(t, old.Status, light.Status)
					require.Equal(t, old.Countdown-1, light.Countdown)
				} else {
					require.Equal(t, old.Status.Next(), light.Status)
				}
			}
		}

		require.Len(t, snap.Metrics, 3)
		for i, m := range snap.Metrics {
			require.GreaterOrEqual(t, m.VehicleCount, 0)
			require.GreaterOrEqual(t, m.AvgWaitTime, 0)
			if prev != nil {
				old := prev.Metrics[i]
				require.Equal(t, old.CongestionLevel, m.CongestionLevel)
				require.Equal(t, old.Throughput, m.Throughput)
				require.LessOrEqual(t, m.VehicleCount-old.VehicleCount, 4)
				require.GreaterOrEqual(t, m.AvgWaitTime, old.AvgWaitTime-5)
			}
		}
		prev = &snap
	}
}

func TestGenerateIsDeterministicForSameSeed(t *testing.T) {
	a := newTestGenerator(rand.New(rand.NewSource(99)))
	b := newTestGenerator(rand.New(rand.NewSource(99)))

	snapA := a.Generate(nil)
	snapB := b.Generate(nil)
	require.Equal(t, snapA, snapB)

	nextA := a.Generate(&snapA)
	nextB := b.Generate(&snapB)
	require.Equal(t, nextA, nextB)
}
