package localize

import (
	"context"
	"math"
	"testing"

	"social-nav/core/geometry"
	"social-nav/core/vectormap"
)

func TestInitializeProducesNParticles(t *testing.T) {
	f := New(WithParticleCount(50), WithSeed(42))
	f.InitializeWithMap(vectormap.New(nil), geometry.Point2{X: 0, Y: 0}, 0)
	if got := len(f.Particles()); got != 50 {
		t.Fatalf("Particles() has %d entries, want 50", got)
	}
}

func TestZeroMotionIsIdempotentInExpectation(t *testing.T) {
	f := New(WithParticleCount(30), WithSeed(7))
	f.InitializeWithMap(vectormap.New(nil), geometry.Point2{X: 1, Y: 2}, 0.3)
	before := append([]Particle(nil), f.Particles()...)

	f.ObserveOdometry(context.Background(), geometry.Point2{X: 1, Y: 2}, 0.3)

	after := f.Particles()
	for i := range before {
		if before[i].Loc != after[i].Loc || before[i].Angle != after[i].Angle {
			t.Fatalf("particle %d changed under zero-input odometry: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestFirstOdometryAfterInitializeIsResetOnly(t *testing.T) {
	f := New(WithParticleCount(10), WithSeed(4))
	f.InitializeWithMap(vectormap.New(nil), geometry.Point2{X: 0, Y: 0}, 0)
	before := append([]Particle(nil), f.Particles()...)

	// A small delta, well under motionResetThreshold, that would otherwise
	// apply a real (if tiny) noisy motion update to every particle.
	f.ObserveOdometry(context.Background(), geometry.Point2{X: 0.3, Y: 0}, 0.05)

	after := append([]Particle(nil), f.Particles()...)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("particle %d moved on the first post-Initialize odometry reading: %+v -> %+v", i, before[i], after[i])
		}
	}
	if f.prevOdomLoc != (geometry.Point2{X: 0.3, Y: 0}) || f.prevOdomAngle != 0.05 {
		t.Fatalf("odom snapshot was not seeded from the first reading")
	}

	// A second reading, now that odometry is initialized, must actually
	// propagate motion.
	f.ObserveOdometry(context.Background(), geometry.Point2{X: 0.6, Y: 0}, 0.05)
	moved := false
	for i := range after {
		if after[i] != f.particles[i] {
			moved = true
			break
		}
	}
	if !moved {
		t.Fatalf("second odometry reading did not move any particle")
	}
}

func TestOdometryJumpResetsWithoutTouchingParticles(t *testing.T) {
	f := New(WithParticleCount(10), WithSeed(3))
	f.InitializeWithMap(vectormap.New(nil), geometry.Point2{X: 0, Y: 0}, 0)
	before := append([]Particle(nil), f.Particles()...)

	f.ObserveOdometry(context.Background(), geometry.Point2{X: 2, Y: 0}, 0)

	after := f.Particles()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("particle %d mutated on a kidnapped-robot jump: %+v -> %+v", i, before[i], after[i])
		}
	}
	if f.prevOdomLoc != (geometry.Point2{X: 2, Y: 0}) {
		t.Fatalf("odom snapshot did not reset to the jumped location")
	}
}

func TestResampleResetsWeightsAndPreservesCount(t *testing.T) {
	f := New(WithParticleCount(20), WithSeed(5))
	f.InitializeWithMap(vectormap.New(nil), geometry.Point2{X: 0, Y: 0}, 0)
	for i := range f.particles {
		f.particles[i].LogWeight = float64(i) * 0.1
	}
	f.maxLogWeight = float64(len(f.particles)-1) * 0.1

	f.Resample(context.Background())

	if got := len(f.Particles()); got != 20 {
		t.Fatalf("Resample changed particle count to %d, want 20", got)
	}
	for _, p := range f.Particles() {
		if p.LogWeight != 0 {
			t.Fatalf("Resample left a nonzero LogWeight: %v", p.LogWeight)
		}
	}
	if f.maxLogWeight != 0 {
		t.Fatalf("Resample left maxLogWeight = %v, want 0", f.maxLogWeight)
	}
}

func TestResampleAbortsOnDegenerateWeights(t *testing.T) {
	f := New(WithParticleCount(5), WithSeed(9))
	f.InitializeWithMap(vectormap.New(nil), geometry.Point2{X: 0, Y: 0}, 0)
	for i := range f.particles {
		f.particles[i].LogWeight = -1e18
	}
	f.maxLogWeight = 0 // exp(-1e18 - 0) underflows every weight to 0

	before := append([]Particle(nil), f.Particles()...)
	f.Resample(context.Background())
	after := f.Particles()

	if len(before) != len(after) {
		t.Fatalf("degenerate resample changed particle count")
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("degenerate resample touched particle %d: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestObservationMatchExactlyLeavesWeightUnchanged(t *testing.T) {
	// A wall at x=5.2 puts the predicted range of the kept beams that face
	// it inside the (1.05*min, 0.95*max) gate. Feeding the particle's own
	// predicted ranges back as the observed scan makes delta_r = 0 for every
	// kept beam, so the log-weight increment must be exactly 0.
	m := vectormap.New([]geometry.Segment{
		geometry.NewSegment(geometry.Point2{X: 5.2, Y: -100}, geometry.Point2{X: 5.2, Y: 100}),
	})
	f := New(WithParticleCount(1), WithSeed(11))
	f.InitializeWithMap(m, geometry.Point2{X: 0, Y: 0}, 0)
	f.particles[0] = Particle{Loc: geometry.Point2{X: 0, Y: 0}, Angle: 0, LogWeight: 0}

	f.prevOdomLoc = geometry.Point2{X: 0.5, Y: 0}
	f.lastUpdateLoc = geometry.Point2{X: 0, Y: 0}

	rangeMax := 10.0
	ranges := make([]float64, 30)
	for i := range ranges {
		ranges[i] = rangeMax // beams that miss the wall read range_max and fall outside the gate
	}
	sensorLoc := geometry.Point2{X: f.sensorForwardOffset, Y: 0}
	predicted := f.GetPredictedPointCloud(m, f.particles[0].Loc, f.particles[0].Angle, len(ranges), 0.1, rangeMax, -math.Pi/2, math.Pi/2)
	for k := range predicted {
		ranges[k*f.beamSubsample] = geometry.EuclideanDistance(sensorLoc, predicted[k])
	}

	f.ObserveLaser(context.Background(), ranges, 0.1, rangeMax, -math.Pi/2, math.Pi/2)

	for _, p := range f.Particles() {
		if math.Abs(p.LogWeight) > 1e-6 {
			t.Fatalf("expected near-zero log weight update, got %v", p.LogWeight)
		}
	}
}

func TestWithMotionResetThresholdAppliesToOdometry(t *testing.T) {
	f := New(WithParticleCount(5), WithSeed(2), WithMotionResetThreshold(0.2))
	f.InitializeWithMap(vectormap.New(nil), geometry.Point2{X: 0, Y: 0}, 0)
	f.ObserveOdometry(context.Background(), geometry.Point2{X: 0, Y: 0}, 0) // seed odomInitialized

	before := append([]Particle(nil), f.Particles()...)
	f.ObserveOdometry(context.Background(), geometry.Point2{X: 0.5, Y: 0}, 0)
	after := f.Particles()

	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("particle %d moved, want a reset-only jump under the configured 0.2m threshold", i)
		}
	}
	if f.prevOdomLoc != (geometry.Point2{X: 0.5, Y: 0}) {
		t.Fatalf("odom snapshot did not reset to the jumped location")
	}
}

func TestWithBeamSubsampleFactorAppliesToPredictedCloud(t *testing.T) {
	f := New(WithBeamSubsampleFactor(2))
	m := vectormap.New(nil)
	points := f.GetPredictedPointCloud(m, geometry.Point2{X: 0, Y: 0}, 0, 10, 0.1, 10.0, -math.Pi/2, math.Pi/2)
	if got, want := len(points), 5; got != want {
		t.Fatalf("GetPredictedPointCloud returned %d points, want %d beams under a subsample factor of 2", got, want)
	}
}

func TestGetLocationWeightedMean(t *testing.T) {
	f := New(WithParticleCount(2), WithSeed(1))
	f.InitializeWithMap(vectormap.New(nil), geometry.Point2{X: 0, Y: 0}, 0)
	f.particles[0] = Particle{Loc: geometry.Point2{X: 0, Y: 0}, Angle: 0, LogWeight: 0}
	f.particles[1] = Particle{Loc: geometry.Point2{X: 10, Y: 0}, Angle: 0, LogWeight: 0}
	f.maxLogWeight = 0

	loc, _ := f.GetLocation()
	if math.Abs(loc.X-5) > 1e-9 {
		t.Fatalf("GetLocation() mean X = %v, want 5 (equal weights)", loc.X)
	}
}
