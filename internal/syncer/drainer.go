package syncer

import (
	"context"
	"log"
	"time"
)

// DefaultInterval is how often the background drainer fires.
const DefaultInterval = 60 * time.Second

// Drainer periodically triggers the engine's drain. It is a cancellable
// ticker: Stop shuts it down cleanly, and Tick drives a single pass so tests
// never wait on wall-clock time.
type Drainer struct {
	engine   *Engine
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewDrainer returns a stopped Drainer. A non-positive interval falls back to
// DefaultInterval.
func NewDrainer(engine *Engine, interval time.Duration) *Drainer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Drainer{
		engine:   engine,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the ticker loop.
func (d *Drainer) Start() {
	go d.run()
}

// Stop signals the loop and waits for it to exit.
func (d *Drainer) Stop() {
	close(d.stop)
	<-d.done
}

// Tick runs one drain pass.
func (d *Drainer) Tick(ctx context.Context) DrainResult {
	res, err := d.engine.Drain(ctx)
	if err != nil {
		log.Printf("[drainer] drain: %v", err)
	}
	return res
}

func (d *Drainer) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.Tick(context.Background())
		}
	}
}
