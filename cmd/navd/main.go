// Command navd wires the planner and localizer into a small demonstration
// loop and streams pose, path, and particle-cloud snapshots to any
// connected browser over a websocket, the same Hub/subscriber/broadcast
// shape the game server uses to stream player state.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"social-nav/core/geometry"
	"social-nav/core/localize"
	"social-nav/core/logging"
	"social-nav/core/logging/sinks"
	"social-nav/core/navconfig"
	"social-nav/core/planner"
	"social-nav/core/vectormap"
)

const writeWait = 5 * time.Second

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// snapshot is the wire message pushed to every connected subscriber once
// per simulation tick.
type snapshot struct {
	Type       string     `json:"type"`
	ServerTime int64      `json:"serverTime"`
	Pose       poseWire   `json:"pose"`
	Path       []wirePt   `json:"path"`
	Particles  []wirePt   `json:"particles"`
	NeedReplan bool       `json:"needReplan"`
	Draws      []drawCall `json:"draws"`
}

type poseWire struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

type wirePt struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// drawCall is one planner.Visualizer primitive flattened for the wire, the
// same crosses/arcs/points/lines DrawGlobalPath, DrawSocialCosts,
// DrawFrontier, DrawNodeNeighbors, and DrawInvalidNodes emit.
type drawCall struct {
	Kind       string  `json:"kind"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	X2         float64 `json:"x2,omitempty"`
	Y2         float64 `json:"y2,omitempty"`
	Size       float64 `json:"size,omitempty"`
	AngleStart float64 `json:"angleStart,omitempty"`
	AngleEnd   float64 `json:"angleEnd,omitempty"`
	Color      uint32  `json:"color"`
}

// wsVisualizer buffers one tick's worth of planner draw calls for the
// broadcast snapshot, mirroring the way Hub buffers subscriber state
// between ticks rather than pushing on every individual mutation.
type wsVisualizer struct {
	mu    sync.Mutex
	calls []drawCall
}

func newWSVisualizer() *wsVisualizer {
	return &wsVisualizer{}
}

func (v *wsVisualizer) DrawCross(loc geometry.Point2, size float64, colorRGB uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, drawCall{Kind: "cross", X: loc.X, Y: loc.Y, Size: size, Color: colorRGB})
}

func (v *wsVisualizer) DrawArc(loc geometry.Point2, radius, angleStart, angleEnd float64, colorRGB uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, drawCall{Kind: "arc", X: loc.X, Y: loc.Y, Size: radius, AngleStart: angleStart, AngleEnd: angleEnd, Color: colorRGB})
}

func (v *wsVisualizer) DrawPoint(loc geometry.Point2, colorRGB uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, drawCall{Kind: "point", X: loc.X, Y: loc.Y, Color: colorRGB})
}

func (v *wsVisualizer) DrawLine(a, b geometry.Point2, colorRGB uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, drawCall{Kind: "line", X: a.X, Y: a.Y, X2: b.X, Y2: b.Y, Color: colorRGB})
}

// drain returns the calls buffered since the last drain and clears the
// buffer, so each broadcast snapshot only carries one tick's draws.
func (v *wsVisualizer) drain() []drawCall {
	v.mu.Lock()
	defer v.mu.Unlock()
	calls := v.calls
	v.calls = nil
	return calls
}

// Hub fans out snapshots to connected subscribers and owns the navigation
// core: one planner, one filter, one map.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber
	nextID      int

	cfg      navconfig.Config
	navMap   *vectormap.Map
	planner  *planner.Planner
	filter   *localize.Filter
	visual   *wsVisualizer
	robotLoc geometry.Point2
	robotAng float64
	goal     geometry.Point2
}

func newHub(cfg navconfig.Config, m *vectormap.Map, router *logging.Router) *Hub {
	pub := logging.Publisher(logging.NopPublisher())
	if router != nil {
		pub = router
	}

	vis := newWSVisualizer()
	pl := planner.New(cfg.Resolution, m,
		planner.WithPublisher(pub),
		planner.WithVisualizer(vis),
		planner.WithCushionHalfWidth(cfg.CushionHalfWidth),
		planner.WithSocialDistanceCutoff(cfg.SocialDistanceCutoff),
		planner.WithDeadEndRadiusFactor(cfg.DeadEndRadiusFactor),
		planner.WithReplanRadius(cfg.ReplanRadius),
	)
	f := localize.New(
		localize.WithParticleCount(cfg.ParticleCount),
		localize.WithSeed(cfg.RandomSeed),
		localize.WithPublisher(pub),
		localize.WithObservationVariance(cfg.ObservationVariance),
		localize.WithClipDistances(cfg.DShort, cfg.DLong),
		localize.WithMotionNoise(cfg.MotionK1, cfg.MotionK2, cfg.MotionK3, cfg.MotionK4),
		localize.WithInitialSpread(cfg.InitStdLoc, cfg.InitStdAngle),
		localize.WithSensorForwardOffset(cfg.SensorForwardOffset),
		localize.WithMotionResetThreshold(cfg.MotionResetThreshold),
		localize.WithObservationGate(cfg.ObservationGateMin, cfg.ObservationGateMax),
		localize.WithResamplePeriod(cfg.ResamplePeriod),
		localize.WithBeamSubsampleFactor(cfg.BeamSubsampleFactor),
	)
	f.InitializeWithMap(m, geometry.Point2{}, 0)

	return &Hub{
		subscribers: make(map[string]*subscriber),
		cfg:         cfg,
		navMap:      m,
		planner:     pl,
		filter:      f,
		visual:      vis,
	}
}

func (h *Hub) subscribe(conn *websocket.Conn) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := fmt.Sprintf("sub-%d", h.nextID)
	h.subscribers[id] = &subscriber{conn: conn}
	return id
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, id)
}

func (h *Hub) broadcast(snap snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("navd: failed to marshal snapshot: %v", err)
		return
	}

	h.mu.Lock()
	subs := make(map[string]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		sub.mu.Lock()
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := sub.conn.WriteMessage(websocket.TextMessage, data)
		sub.mu.Unlock()
		if err != nil {
			log.Printf("navd: dropping subscriber %s: %v", id, err)
			h.unsubscribe(id)
		}
	}
}

// step advances a scripted odometry/scan cycle by one tick: the robot
// walks up to 0.2 m toward the planner's current target node, odometry
// reports that motion
// exactly (no simulated slip), and the scan is synthesized from the true
// map so the filter has something consistent to converge against.
func (h *Hub) step(ctx context.Context) snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.planner.Path()) == 0 {
		h.planner.InitializeMap(h.robotLoc)
		h.planner.GetGlobalPath(ctx, h.goal)
		h.planner.DrawFrontier()
	}

	target := h.planner.GetClosestPathNode(h.robotLoc)
	if target != nil {
		step := 0.2
		dir := target.Loc.Sub(h.robotLoc)
		if d := dir.Norm(); d > step {
			dir = dir.Scale(step / d)
		}
		h.robotLoc = h.robotLoc.Add(dir)
		if dir.Norm() > 1e-9 {
			h.robotAng = math.Atan2(dir.Y, dir.X)
		}
	}

	h.filter.ObserveOdometry(ctx, h.robotLoc, h.robotAng)

	numBeams := 180
	ranges := make([]float64, numBeams)
	predicted := h.filter.GetPredictedPointCloud(h.navMap, h.robotLoc, h.robotAng, numBeams, 0.1, 10.0, -math.Pi/2, math.Pi/2)
	for i := range ranges {
		ranges[i] = 10.0
	}
	sensorLoc := h.robotLoc.Add(geometry.Point2{X: h.cfg.SensorForwardOffset * math.Cos(h.robotAng), Y: h.cfg.SensorForwardOffset * math.Sin(h.robotAng)})
	for k, beamIdx := 0, 0; beamIdx < numBeams && k < len(predicted); k, beamIdx = k+1, beamIdx+h.cfg.BeamSubsampleFactor {
		ranges[beamIdx] = geometry.EuclideanDistance(sensorLoc, predicted[k])
	}
	h.filter.ObserveLaser(ctx, ranges, 0.1, 10.0, -math.Pi/2, math.Pi/2)

	if h.planner.NeedsReplan() {
		h.planner.Replan(ctx, h.robotLoc, h.robotLoc)
		h.planner.DrawFrontier()
	}

	h.planner.DrawGlobalPath()
	h.planner.DrawSocialCosts()
	h.planner.DrawInvalidNodes()
	if target != nil {
		h.planner.DrawNodeNeighbors(target)
	}

	loc, angle := h.filter.GetLocation()
	pathWire := make([]wirePt, 0, len(h.planner.Path()))
	for _, p := range h.planner.PathLocs() {
		pathWire = append(pathWire, wirePt{X: p.X, Y: p.Y})
	}
	particleWire := make([]wirePt, 0, len(h.filter.Particles()))
	for _, p := range h.filter.Particles() {
		particleWire = append(particleWire, wirePt{X: p.Loc.X, Y: p.Loc.Y})
	}

	return snapshot{
		Type:       "snapshot",
		ServerTime: time.Now().UnixMilli(),
		Pose:       poseWire{X: loc.X, Y: loc.Y, Angle: angle},
		Path:       pathWire,
		Particles:  particleWire,
		NeedReplan: h.planner.NeedsReplan(),
		Draws:      h.visual.drain(),
	}
}

// run drives the demonstration loop until stop is closed.
func (h *Hub) run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.broadcast(h.step(ctx))
		}
	}
}

func main() {
	var (
		addr    string
		mapPath string
		goalX   float64
		goalY   float64
	)
	flag.StringVar(&addr, "addr", ":8080", "address to listen on")
	flag.StringVar(&mapPath, "map", "", "path to a map manifest (empty for an open field)")
	flag.Float64Var(&goalX, "goal-x", 10, "navigation goal x")
	flag.Float64Var(&goalY, "goal-y", 0, "navigation goal y")
	flag.Parse()

	var navMap *vectormap.Map
	if mapPath != "" {
		loaded, err := vectormap.Load(mapPath)
		if err != nil {
			log.Fatalf("navd: failed to load map %s: %v", mapPath, err)
		}
		navMap = loaded
	} else {
		navMap = vectormap.New(nil)
	}

	router, err := logging.NewRouter(logging.ClockFunc(time.Now), logging.DefaultConfig(), []logging.NamedSink{
		{Name: "console", Sink: sinks.NewConsoleSink(os.Stdout, logging.ConsoleConfig{UseColor: true})},
	})
	if err != nil {
		log.Fatalf("navd: failed to build logging router: %v", err)
	}
	defer router.Close(context.Background())

	cfg := navconfig.Default()
	hub := newHub(cfg, navMap, router)
	hub.goal = geometry.Point2{X: goalX, Y: goalY}

	stop := make(chan struct{})
	go hub.run(context.Background(), stop)
	defer close(stop)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("navd: upgrade failed: %v", err)
			return
		}
		id := hub.subscribe(conn)
		defer func() {
			hub.unsubscribe(id)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	log.Printf("navd listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("navd: server exited: %v", err)
	}
}
