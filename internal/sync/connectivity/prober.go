package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
)

// DefaultProbeInterval is used when the prober is given no interval.
const DefaultProbeInterval = 30 * time.Second

// Prober feeds a Monitor from periodic HTTP checks of a health URL. Any
// response below 500 counts as online; transport errors count as offline.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client
	monitor  *Monitor

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
	log    *logging.Logger
}

// NewProber creates a prober for url that reports into monitor.
func NewProber(url string, interval time.Duration, monitor *Monitor) *Prober {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	timeout := interval / 2
	if timeout > 10*time.Second {
		timeout = 10 * time.Second
	}
	return &Prober{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		monitor:  monitor,
		log:      logging.Component("prober"),
	}
}

// Start begins probing in the background. Calling Start twice is a no-op.
func (p *Prober) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return
	}
	p.active = true
	p.stopCh = make(chan struct{})

	p.wg.Add(1)
	go p.run(p.stopCh)

	p.log.Info("Connectivity prober started", map[string]interface{}{
		"url":      p.url,
		"interval": p.interval.String(),
	})
}

// Stop halts probing and waits for the loop to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Prober) run(stopCh chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.monitor.SetOnline(p.Probe(context.Background()))
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.monitor.SetOnline(p.Probe(context.Background()))
		}
	}
}

// Probe performs a single check.
func (p *Prober) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.log.Warn("Invalid probe URL", map[string]interface{}{"url": p.url})
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("Probe failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
