// Package localize implements Monte Carlo localization: a sequential
// importance-resampling particle filter that fuses wheel odometry with
// 2-D range-finder observations against a vector map. Proposal, weighting,
// and resampling follow the same single-instance-owns-its-state shape the
// game server uses for its own per-world RNG (see world_random.go),
// generalized from a game entity to a filter's internal particle set.
package localize

import (
	"context"
	"math"
	"math/rand"

	"social-nav/core/geometry"
	"social-nav/core/logging"
	"social-nav/core/vectormap"
)

// Defaults for every navconfig-tunable filter constant below. New() seeds a
// Filter with these; Options override individual ones so a caller wiring
// navconfig.Config can thread its values through without touching the ones
// it left at zero.
const (
	defaultParticleCount = 50

	defaultMotionK1 = 0.40
	defaultMotionK2 = 0.02
	defaultMotionK3 = 0.20
	defaultMotionK4 = 0.40

	defaultSigmaObsSquared = 1.0
	defaultDShort          = 0.5
	defaultDLong           = 0.5

	defaultInitStdLoc   = 0.25
	defaultInitStdAngle = math.Pi / 6

	defaultSensorForwardOffset = 0.2

	defaultMotionResetThreshold = 1.0
	defaultObsGateMin           = 0.10
	defaultObsGateMax           = 1.00

	defaultResamplePeriod = 6
	defaultBeamSubsample  = 10
)

// Particle is one pose hypothesis with its unnormalized log weight.
type Particle struct {
	Loc       geometry.Point2
	Angle     float64
	LogWeight float64
}

// Filter is a Monte Carlo localization instance. All fields are owned by
// the instance; the single-threaded contract means callers serialize
// ObserveOdometry, ObserveLaser, and Initialize against each other.
type Filter struct {
	particles []Particle
	n         int

	navMap *vectormap.Map

	initialized     bool
	odomInitialized bool
	prevOdomLoc     geometry.Point2
	prevOdomAngle   float64
	lastUpdateLoc   geometry.Point2

	maxLogWeight         float64
	updatesSinceResample int

	motionK1, motionK2, motionK3, motionK4 float64
	sigmaObsSquared, dShort, dLong         float64
	initStdLoc, initStdAngle               float64
	sensorForwardOffset                    float64
	motionResetThreshold                   float64
	obsGateMin, obsGateMax                 float64
	resamplePeriod                         int
	beamSubsample                          int

	rng       *rand.Rand
	publisher logging.Publisher
}

// Option configures a Filter at construction.
type Option func(*Filter)

// WithParticleCount overrides the default 50-particle set size.
func WithParticleCount(n int) Option {
	return func(f *Filter) { f.n = n }
}

// WithSeed makes the filter's noise and resampling draws reproducible.
func WithSeed(seed int64) Option {
	return func(f *Filter) { f.rng = rand.New(rand.NewSource(seed)) }
}

// WithPublisher routes diagnostic events to pub instead of discarding them.
func WithPublisher(pub logging.Publisher) Option {
	return func(f *Filter) { f.publisher = pub }
}

// WithObservationVariance overrides the beam-model variance sigma_obs^2,
// wiring navconfig.Config.ObservationVariance.
func WithObservationVariance(sigmaObsSquared float64) Option {
	return func(f *Filter) { f.sigmaObsSquared = sigmaObsSquared }
}

// WithClipDistances overrides the beam-model's short/long clip distances,
// wiring navconfig.Config.DShort/DLong.
func WithClipDistances(dShort, dLong float64) Option {
	return func(f *Filter) { f.dShort, f.dLong = dShort, dLong }
}

// WithMotionNoise overrides the motion model's k1..k4 coefficients, wiring
// navconfig.Config.MotionK1..MotionK4.
func WithMotionNoise(k1, k2, k3, k4 float64) Option {
	return func(f *Filter) { f.motionK1, f.motionK2, f.motionK3, f.motionK4 = k1, k2, k3, k4 }
}

// WithInitialSpread overrides the Gaussian spread of the initial particle
// set, wiring navconfig.Config.InitStdLoc/InitStdAngle.
func WithInitialSpread(stdLoc, stdAngle float64) Option {
	return func(f *Filter) { f.initStdLoc, f.initStdAngle = stdLoc, stdAngle }
}

// WithSensorForwardOffset overrides how far ahead of the pose the range
// sensor is mounted, wiring navconfig.Config.SensorForwardOffset.
func WithSensorForwardOffset(offset float64) Option {
	return func(f *Filter) { f.sensorForwardOffset = offset }
}

// WithMotionResetThreshold overrides the kidnapped-robot jump distance,
// wiring navconfig.Config.MotionResetThreshold.
func WithMotionResetThreshold(threshold float64) Option {
	return func(f *Filter) { f.motionResetThreshold = threshold }
}

// WithObservationGate overrides the min/max travel distance gating a laser
// update, wiring navconfig.Config.ObservationGateMin/Max.
func WithObservationGate(min, max float64) Option {
	return func(f *Filter) { f.obsGateMin, f.obsGateMax = min, max }
}

// WithResamplePeriod overrides how many observation updates elapse between
// resamples, wiring navconfig.Config.ResamplePeriod.
func WithResamplePeriod(period int) Option {
	return func(f *Filter) { f.resamplePeriod = period }
}

// WithBeamSubsampleFactor overrides which fraction of beams are evaluated
// per update, wiring navconfig.Config.BeamSubsampleFactor.
func WithBeamSubsampleFactor(factor int) Option {
	return func(f *Filter) { f.beamSubsample = factor }
}

// New builds an uninitialized Filter. Initialize must be called before any
// ObserveOdometry/ObserveLaser call has an effect.
func New(opts ...Option) *Filter {
	f := &Filter{
		n:         defaultParticleCount,
		rng:       rand.New(rand.NewSource(1)),
		publisher: logging.NopPublisher(),

		motionK1: defaultMotionK1,
		motionK2: defaultMotionK2,
		motionK3: defaultMotionK3,
		motionK4: defaultMotionK4,

		sigmaObsSquared: defaultSigmaObsSquared,
		dShort:          defaultDShort,
		dLong:           defaultDLong,

		initStdLoc:   defaultInitStdLoc,
		initStdAngle: defaultInitStdAngle,

		sensorForwardOffset: defaultSensorForwardOffset,

		motionResetThreshold: defaultMotionResetThreshold,
		obsGateMin:           defaultObsGateMin,
		obsGateMax:           defaultObsGateMax,

		resamplePeriod: defaultResamplePeriod,
		beamSubsample:  defaultBeamSubsample,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Filter) publish(ctx context.Context, typ logging.EventType, severity logging.Severity, extra map[string]any) {
	event := logging.Event{
		Type:     typ,
		Severity: severity,
		Category: logging.CategoryLocalization,
		Actor:    logging.EntityRef{ID: "filter", Kind: logging.EntityKindFilter},
	}
	for k, v := range extra {
		event = event.WithExtra(k, v)
	}
	f.publisher.Publish(ctx, event)
}

// Initialize loads mapFile, clears the particle set, resets odometry
// state, and draws N particles around (loc, angle).
func (f *Filter) Initialize(mapFile string, loc geometry.Point2, angle float64) error {
	m, err := vectormap.Load(mapFile)
	if err != nil {
		return err
	}
	f.InitializeWithMap(m, loc, angle)
	return nil
}

// InitializeWithMap is Initialize with an already-loaded map, useful for
// tests and callers that manage map lifetime themselves.
func (f *Filter) InitializeWithMap(m *vectormap.Map, loc geometry.Point2, angle float64) {
	f.navMap = m
	f.prevOdomLoc = loc
	f.prevOdomAngle = angle
	f.lastUpdateLoc = loc
	f.initialized = true
	f.odomInitialized = false
	f.maxLogWeight = 0
	f.updatesSinceResample = 0

	f.particles = make([]Particle, f.n)
	for i := range f.particles {
		f.particles[i] = Particle{
			Loc: geometry.Point2{
				X: loc.X + f.rng.NormFloat64()*f.initStdLoc,
				Y: loc.Y + f.rng.NormFloat64()*f.initStdLoc,
			},
			Angle:     angle + f.rng.NormFloat64()*f.initStdAngle,
			LogWeight: 0,
		}
	}
}

// Particles returns the current particle set. Callers must not mutate the
// returned slice's backing array.
func (f *Filter) Particles() []Particle {
	return f.particles
}

// ---------------------------------------------------------------- motion

func rotate(v geometry.Point2, theta float64) geometry.Point2 {
	sin, cos := math.Sincos(theta)
	return geometry.Point2{
		X: v.X*cos - v.Y*sin,
		Y: v.X*sin + v.Y*cos,
	}
}

// ObserveOdometry advances the proposal distribution from a new
// (odom_loc, odom_angle) reading. The first reading after Initialize is
// always reset-only, since prevOdomLoc/prevOdomAngle are the initial pose
// rather than a real prior odometry sample and have no meaningful delta to
// propagate. A translation of motionResetThreshold or more since the
// previous reading is treated as a kidnapped-robot jump: the odometry
// snapshot resets but no particle is touched.
func (f *Filter) ObserveOdometry(ctx context.Context, loc geometry.Point2, angle float64) {
	if !f.initialized {
		return
	}

	if !f.odomInitialized {
		f.prevOdomLoc = loc
		f.prevOdomAngle = angle
		f.odomInitialized = true
		return
	}

	deltaOdomAngle := geometry.AngleDiff(angle, f.prevOdomAngle)
	if math.Abs(angle-f.prevOdomAngle) > 2*math.Pi {
		f.publish(ctx, "filter.odometry.angle_anomaly", logging.SeverityWarn, map[string]any{"angle": angle})
	}

	translation := geometry.EuclideanDistance(loc, f.prevOdomLoc)
	if translation >= f.motionResetThreshold {
		f.prevOdomLoc = loc
		f.prevOdomAngle = angle
		f.publish(ctx, "filter.odometry.reset", logging.SeverityWarn, map[string]any{"translation": translation})
		return
	}

	deltaOdomLoc := loc.Sub(f.prevOdomLoc)

	for i := range f.particles {
		p := &f.particles[i]
		rotAngle := geometry.AngleDiff(p.Angle, f.prevOdomAngle)
		deltaMap := rotate(deltaOdomLoc, rotAngle)

		sigmaXY := f.motionK1*deltaMap.Norm() + f.motionK2*math.Abs(deltaOdomAngle)
		sigmaTheta := f.motionK3*deltaMap.Norm() + f.motionK4*math.Abs(deltaOdomAngle)

		noiseX := f.rng.NormFloat64() * sigmaXY
		noiseY := f.rng.NormFloat64() * sigmaXY
		noiseTheta := f.rng.NormFloat64() * sigmaTheta

		p.Loc = p.Loc.Add(deltaMap).Add(geometry.Point2{X: noiseX, Y: noiseY})
		p.Angle += deltaOdomAngle + noiseTheta
	}

	f.prevOdomLoc = loc
	f.prevOdomAngle = angle
}

// ---------------------------------------------------------------- sensor

// GetPredictedPointCloud ray-casts a subsampled fan of beams (every
// beamSubsample-th, matching the observation model) from a sensor mounted
// sensorForwardOffset ahead of (loc, angle) against m, returning the
// world-frame point each beam would report: the closest map intersection
// along the beam, or the range_max endpoint if no wall is hit. It is a
// method (not tied to the filter's own particle set or pose) so a
// visualizer or caller can request the predicted scan for any pose against
// any map, not only during a weight update, while still honoring this
// filter's configured sensor offset and beam subsampling.
func (f *Filter) GetPredictedPointCloud(m *vectormap.Map, loc geometry.Point2, angle float64, numBeams int, rangeMin, rangeMax, angleMin, angleMax float64) []geometry.Point2 {
	sensorLoc := loc.Add(geometry.Point2{X: f.sensorForwardOffset * math.Cos(angle), Y: f.sensorForwardOffset * math.Sin(angle)})

	var points []geometry.Point2
	if numBeams <= 1 {
		return points
	}
	step := (angleMax - angleMin) / float64(numBeams-1)

	for i := 0; i < numBeams; i += f.beamSubsample {
		beamAngle := angle + angleMin + step*float64(i)
		dir := geometry.Point2{X: math.Cos(beamAngle), Y: math.Sin(beamAngle)}
		near := sensorLoc.Add(dir.Scale(rangeMin))
		far := sensorLoc.Add(dir.Scale(rangeMax))
		ray := geometry.NewSegment(near, far)

		if point, ok := m.ClosestIntersection(ray); ok {
			points = append(points, point)
		} else {
			points = append(points, far)
		}
	}
	return points
}

// ObserveLaser is a beam-model weight update, gated on the robot having
// moved between obsGateMin and obsGateMax meters since the last processed
// scan. Every resamplePeriod-th update triggers a low-variance resample.
func (f *Filter) ObserveLaser(ctx context.Context, ranges []float64, rangeMin, rangeMax, angleMin, angleMax float64) {
	if !f.initialized {
		return
	}

	moved := geometry.EuclideanDistance(f.prevOdomLoc, f.lastUpdateLoc)
	if !(moved > f.obsGateMin && moved < f.obsGateMax) {
		return
	}

	numBeams := len(ranges)
	if numBeams == 0 {
		return
	}

	maxLog := math.Inf(-1)
	for i := range f.particles {
		p := &f.particles[i]
		predicted := f.GetPredictedPointCloud(f.navMap, p.Loc, p.Angle, numBeams, rangeMin, rangeMax, angleMin, angleMax)

		sensorLoc := p.Loc.Add(geometry.Point2{X: f.sensorForwardOffset * math.Cos(p.Angle), Y: f.sensorForwardOffset * math.Sin(p.Angle)})

		for k, beamIdx := 0, 0; beamIdx < numBeams; k, beamIdx = k+1, beamIdx+f.beamSubsample {
			if k >= len(predicted) {
				break
			}
			observed := ranges[beamIdx]
			if !(observed > 1.05*rangeMin && observed < 0.95*rangeMax) {
				continue
			}
			predictedRange := geometry.EuclideanDistance(sensorLoc, predicted[k])
			deltaR := observed - predictedRange
			if deltaR < -f.dShort {
				deltaR = -f.dShort
			} else if deltaR > f.dLong {
				deltaR = f.dLong
			}
			p.LogWeight += -(deltaR * deltaR) / f.sigmaObsSquared
		}
		if p.LogWeight > maxLog {
			maxLog = p.LogWeight
		}
	}
	f.maxLogWeight = maxLog
	f.lastUpdateLoc = f.prevOdomLoc

	f.updatesSinceResample++
	if f.updatesSinceResample >= f.resamplePeriod {
		f.Resample(ctx)
		f.updatesSinceResample = 0
	}
}

// ---------------------------------------------------------------- resample

// Resample performs low-variance resampling: a single random offset plus a
// fixed stride over the cumulative-weight axis, which has lower variance
// than independent multinomial sampling of the same particle set. A
// degenerate all-zero weight sum aborts the resample and leaves the
// particle set untouched.
func (f *Filter) Resample(ctx context.Context) {
	n := len(f.particles)
	if n == 0 {
		return
	}

	weights := make([]float64, n)
	cumulative := make([]float64, n)
	running := 0.0
	for i, p := range f.particles {
		w := math.Exp(p.LogWeight - f.maxLogWeight)
		weights[i] = w
		running += w
		cumulative[i] = running
	}

	total := cumulative[n-1]
	if total <= 0 {
		f.publish(ctx, "filter.resample.degenerate", logging.SeverityWarn, nil)
		return
	}

	step := total / float64(n)
	u := f.rng.Float64() * step

	resampled := make([]Particle, n)
	idx := 0
	for k := 0; k < n; k++ {
		target := u + float64(k)*step
		for idx < n-1 && cumulative[idx] < target {
			idx++
		}
		resampled[k] = f.particles[idx]
		resampled[k].LogWeight = 0
	}

	f.particles = resampled
	f.maxLogWeight = 0
}

// ---------------------------------------------------------------- estimate

func (f *Filter) weights() []float64 {
	w := make([]float64, len(f.particles))
	for i, p := range f.particles {
		w[i] = math.Exp(p.LogWeight - f.maxLogWeight)
	}
	return w
}

// GetLocation returns the weight-normalized mean location and the
// weight-normalized mean of raw angles. The angle mean is not a circular
// mean and is incorrect near the +-pi wrap; this is a preserved property
// of the estimator's contract, not an oversight. See
// GetLocationCircularMean for a wrap-safe alternative.
func (f *Filter) GetLocation() (geometry.Point2, float64) {
	w := f.weights()
	sumW := 0.0
	loc := geometry.Point2{}
	angle := 0.0
	for i, p := range f.particles {
		sumW += w[i]
		loc = loc.Add(p.Loc.Scale(w[i]))
		angle += p.Angle * w[i]
	}
	if sumW == 0 {
		return loc, angle
	}
	return loc.Scale(1 / sumW), angle / sumW
}

// GetLocationCircularMean is GetLocation with a circular mean over angle
// instead of a raw arithmetic mean, correct across the +-pi wrap. It is
// not the default estimator; callers that need wrap-safety must opt in
// explicitly.
func (f *Filter) GetLocationCircularMean() (geometry.Point2, float64) {
	w := f.weights()
	sumW := 0.0
	loc := geometry.Point2{}
	sinSum, cosSum := 0.0, 0.0
	for i, p := range f.particles {
		sumW += w[i]
		loc = loc.Add(p.Loc.Scale(w[i]))
		sinSum += math.Sin(p.Angle) * w[i]
		cosSum += math.Cos(p.Angle) * w[i]
	}
	if sumW == 0 {
		return loc, 0
	}
	return loc.Scale(1 / sumW), math.Atan2(sinSum, cosSum)
}
