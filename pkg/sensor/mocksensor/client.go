package mocksensor

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"lesstraveled/pkg/geo"
	"lesstraveled/pkg/model"
)

const (
	StageDriving = "DRIVING"
	StageParked  = "PARKED"
)

// Target receives the simulated drive. A session satisfies it.
type Target interface {
	Start()
	Stop(ctx context.Context) error
	Observe(ctx context.Context, sample model.LocationSample) (bool, error)
}

// Config holds the simulated route.
type Config struct {
	StartLat      float64
	StartLon      float64
	StartAlt      float64
	StartHeading  float64
	SpeedKmh      float64
	Interval      time.Duration // wall and simulated time between fixes
	TurnEvery     time.Duration // simulated time between heading changes; 0 drives straight
	DriveDuration time.Duration // simulated time per drive; 0 drives forever
	PauseDuration time.Duration // simulated time skipped between drives
	StartTime     time.Time     // simulated clock origin; zero means now
	Seed          int64
}

// Client walks a route and delivers fixes to a Target. The simulated clock
// advances by Interval per fix and jumps by PauseDuration between drives, so
// timestamps look like real driving without waiting in real time.
type Client struct {
	mu     sync.Mutex
	cfg    Config
	target Target
	rng    *rand.Rand
	logger *slog.Logger

	pos       geo.Point
	alt       float64
	heading   float64
	clock     time.Time
	stage     string
	stageAt   time.Time
	lastTurn  time.Time
	delivered int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewClient creates a client positioned at the start of the route.
func NewClient(cfg Config, target Target) *Client {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	start := cfg.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	start = start.UTC()

	return &Client{
		cfg:      cfg,
		target:   target,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		logger:   slog.With("component", "mocksensor"),
		pos:      geo.Point{Lat: cfg.StartLat, Lon: cfg.StartLon},
		alt:      cfg.StartAlt,
		heading:  cfg.StartHeading,
		clock:    start,
		stage:    StageParked,
		stageAt:  start,
		lastTurn: start,
		stopCh:   make(chan struct{}),
	}
}

// Run ticks until Close is called or ctx is done. It starts the first drive
// immediately.
func (c *Client) Run(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()

		c.Step(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.Step(ctx)
			}
		}
	}()
}

// Close stops the loop and waits for it to exit. The current drive is left
// to the target's owner.
func (c *Client) Close() error {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	c.wg.Wait()
	return nil
}

// Step advances the simulation by one tick.
func (c *Client) Step(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.stage {
	case StageParked:
		c.stage = StageDriving
		c.stageAt = c.clock
		c.lastTurn = c.clock
		c.target.Start()
		c.logger.Info("Simulated drive started", "lat", c.pos.Lat, "lon", c.pos.Lon, "heading", c.heading)
		c.deliver(ctx)

	case StageDriving:
		c.clock = c.clock.Add(c.cfg.Interval)
		c.advance()
		c.deliver(ctx)

		if c.cfg.DriveDuration > 0 && c.clock.Sub(c.stageAt) >= c.cfg.DriveDuration {
			if err := c.target.Stop(ctx); err != nil {
				c.logger.Warn("Failed to stop simulated drive", "error", err)
			}
			c.stage = StageParked
			c.clock = c.clock.Add(c.cfg.PauseDuration)
			c.stageAt = c.clock
			c.logger.Info("Simulated drive parked", "pause", c.cfg.PauseDuration)
		}
	}
}

func (c *Client) advance() {
	if c.cfg.TurnEvery > 0 && c.clock.Sub(c.lastTurn) >= c.cfg.TurnEvery {
		change := (c.rng.Float64() * 180) - 90 // -90 to +90 degrees
		c.heading = math.Mod(c.heading+change+360.0, 360.0)
		c.lastTurn = c.clock
	}

	distMeters := c.cfg.SpeedKmh / 3.6 * c.cfg.Interval.Seconds()
	if distMeters > 0 {
		c.pos = geo.DestinationPoint(c.pos, distMeters, c.heading)
	}
	// Gentle rolling terrain
	c.alt = c.cfg.StartAlt + 5*math.Sin(float64(c.delivered)/30)
}

func (c *Client) deliver(ctx context.Context) {
	s := model.NewSample(c.pos.Lat, c.pos.Lon, c.alt, c.clock)
	c.delivered++
	if _, err := c.target.Observe(ctx, s); err != nil {
		c.logger.Warn("Target rejected simulated fix", "error", err)
	}
}

// Stage returns DRIVING or PARKED.
func (c *Client) Stage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Position returns the current simulated position and heading.
func (c *Client) Position() (geo.Point, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos, c.heading
}

// Clock returns the simulated time.
func (c *Client) Clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}
