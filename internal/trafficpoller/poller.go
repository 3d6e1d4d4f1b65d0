package trafficpoller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fibermap/core-go/internal/enrichment/snmp"
	"fibermap/core-go/internal/metrics"
	"fibermap/core-go/internal/sqlcgen"
)

// Queries is the minimal DB interface the poller needs.
// *sqlcgen.Queries satisfies this.
type Queries interface {
	ListActiveDevices(ctx context.Context) ([]sqlcgen.TopologyDevice, error)
	InsertBandwidthSample(ctx context.Context, arg sqlcgen.InsertBandwidthSampleParams) error
}

// CounterReader reads interface octet counters; *snmp.Client satisfies this.
type CounterReader interface {
	ReadCounters(ctx context.Context, target snmp.Target, ifIndex int) (snmp.Counters, error)
	WalkInterfaces(ctx context.Context, target snmp.Target) (map[int]snmp.InterfaceInfo, error)
}

type Options struct {
	Interval   time.Duration
	Workers    int
	MaxRuntime time.Duration
	SNMP       snmp.Config
}

// Poller samples each active device's uplink and writes the bandwidth samples
// the topology layout reads.
type Poller struct {
	log        zerolog.Logger
	q          Queries
	reader     CounterReader
	interval   time.Duration
	workers    int
	maxRuntime time.Duration
	metrics    *metrics.Metrics

	mu       sync.Mutex
	last     map[string]snmp.Counters
	ifByName map[string]int
}

func New(log zerolog.Logger, q Queries, reader CounterReader, opts Options, m *metrics.Metrics) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	maxRuntime := opts.MaxRuntime
	if maxRuntime <= 0 || maxRuntime > interval {
		maxRuntime = interval
	}
	if reader == nil {
		reader = snmp.NewClient(opts.SNMP)
	}
	return &Poller{
		log:        log,
		q:          q,
		reader:     reader,
		interval:   interval,
		workers:    workers,
		maxRuntime: maxRuntime,
		metrics:    m,
		last:       make(map[string]snmp.Counters),
		ifByName:   make(map[string]int),
	}
}

func (p *Poller) Run(ctx context.Context) {
	if p == nil || p.q == nil {
		return
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := p.runOnce(ctx); err != nil {
			consecutiveFailures++
			p.log.Warn().Err(err).Int("failures", consecutiveFailures).Msg("traffic poll failed")
		} else {
			consecutiveFailures = 0
		}

		timer.Reset(backoffDuration(p.interval, consecutiveFailures))
	}
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = time.Minute
	}
	if failures <= 0 {
		return base
	}

	// Exponential-ish backoff: base * 2^failures, capped.
	if failures > 4 {
		failures = 4
	}
	d := base * time.Duration(1<<failures)
	if d > 15*time.Minute {
		return 15 * time.Minute
	}
	return d
}

type pollStats struct {
	Targets int
	Polled  int
	Sampled int
	Failed  int
}

type pollTarget struct {
	deviceID string
	parentID *string
	address  string
	ifIndex  int
	ifName   string
}

func (p *Poller) runOnce(ctx context.Context) (pollStats, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.maxRuntime)
	defer cancel()

	devices, err := p.q.ListActiveDevices(ctx)
	if err != nil {
		p.metrics.ObserveTrafficPoll("error", time.Since(start))
		return pollStats{}, err
	}

	targets := make([]pollTarget, 0, len(devices))
	for _, d := range devices {
		if d.MgmtIP == nil || strings.TrimSpace(*d.MgmtIP) == "" {
			continue
		}
		t := pollTarget{
			deviceID: d.ID,
			parentID: d.ParentDeviceID,
			address:  strings.TrimSpace(*d.MgmtIP),
		}
		if t.parentID != nil && (*t.parentID == "" || *t.parentID == d.ID) {
			t.parentID = nil
		}
		switch {
		case d.UplinkIfIndex != nil:
			t.ifIndex = int(*d.UplinkIfIndex)
		case d.UplinkIfName != nil && strings.TrimSpace(*d.UplinkIfName) != "":
			t.ifName = strings.TrimSpace(*d.UplinkIfName)
		default:
			continue
		}
		targets = append(targets, t)
	}

	var polled, sampled, failed int32
	jobs := make(chan pollTarget, p.workers*2)
	wg := sync.WaitGroup{}

	worker := func() {
		defer wg.Done()
		for t := range jobs {
			target := snmp.Target{ID: t.deviceID, Address: t.address}
			if t.ifIndex == 0 {
				idx, err := p.resolveIfIndex(ctx, target, t.ifName)
				if err != nil {
					atomic.AddInt32(&failed, 1)
					p.log.Debug().Err(err).Str("device_id", t.deviceID).Str("if_name", t.ifName).Msg("uplink interface lookup failed")
					continue
				}
				t.ifIndex = idx
			}
			c, err := p.reader.ReadCounters(ctx, target, t.ifIndex)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				p.log.Debug().Err(err).Str("device_id", t.deviceID).Str("addr", t.address).Msg("snmp counter read failed")
				continue
			}
			atomic.AddInt32(&polled, 1)

			rx, tx, ok := p.observe(t.deviceID, c)
			if !ok {
				continue
			}
			if err := p.store(ctx, t, rx, tx, c.ReadAt); err != nil {
				atomic.AddInt32(&failed, 1)
				p.log.Warn().Err(err).Str("device_id", t.deviceID).Msg("store bandwidth sample failed")
				continue
			}
			atomic.AddInt32(&sampled, 1)
		}
	}

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go worker()
	}

feed:
	for _, t := range targets {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- t:
		}
	}
	close(jobs)
	wg.Wait()

	stats := pollStats{
		Targets: len(targets),
		Polled:  int(polled),
		Sampled: int(sampled),
		Failed:  int(failed),
	}
	p.metrics.ObserveTrafficPoll("ok", time.Since(start))
	p.log.Debug().
		Int("targets", stats.Targets).
		Int("polled", stats.Polled).
		Int("sampled", stats.Sampled).
		Int("failed", stats.Failed).
		Dur("duration", time.Since(start)).
		Msg("traffic poll complete")
	return stats, nil
}

// resolveIfIndex maps an uplink interface name to its ifIndex, walking the
// agent's interface table on first use.
func (p *Poller) resolveIfIndex(ctx context.Context, target snmp.Target, name string) (int, error) {
	key := target.Address + "|" + name
	p.mu.Lock()
	idx, ok := p.ifByName[key]
	p.mu.Unlock()
	if ok {
		return idx, nil
	}

	ifaces, err := p.reader.WalkInterfaces(ctx, target)
	if err != nil {
		return 0, err
	}
	for _, ii := range ifaces {
		if ii.Name != nil && strings.EqualFold(*ii.Name, name) {
			p.mu.Lock()
			p.ifByName[key] = ii.IfIndex
			p.mu.Unlock()
			return ii.IfIndex, nil
		}
	}
	return 0, fmt.Errorf("interface %q not found on %s", name, target.Address)
}

// observe records c as the latest reading for the device and returns the rate
// since the previous one.
func (p *Poller) observe(deviceID string, c snmp.Counters) (int64, int64, bool) {
	p.mu.Lock()
	prev, seen := p.last[deviceID]
	p.last[deviceID] = c
	p.mu.Unlock()
	if !seen {
		return 0, 0, false
	}
	return Rate(prev, c)
}

func (p *Poller) store(ctx context.Context, t pollTarget, rx, tx int64, at time.Time) error {
	if err := p.q.InsertBandwidthSample(ctx, sqlcgen.InsertBandwidthSampleParams{
		DeviceID:  t.deviceID,
		RxBps:     rx,
		TxBps:     tx,
		SampledAt: at,
	}); err != nil {
		return err
	}
	if t.parentID == nil {
		return nil
	}
	// The uplink of the child carries the parent to child link.
	return p.q.InsertBandwidthSample(ctx, sqlcgen.InsertBandwidthSampleParams{
		DeviceID:     t.deviceID,
		PeerDeviceID: t.parentID,
		RxBps:        rx,
		TxBps:        tx,
		SampledAt:    at,
	})
}

// Rate converts two counter readings into bits per second. It reports false
// when the readings cannot be compared: no elapsed time, an agent restart, or
// a counter that went backwards.
func Rate(prev, cur snmp.Counters) (rxBps, txBps int64, ok bool) {
	elapsed := cur.ReadAt.Sub(prev.ReadAt).Seconds()
	if prev.ReadAt.IsZero() || elapsed <= 0 {
		return 0, 0, false
	}
	if cur.Uptime < prev.Uptime {
		return 0, 0, false
	}
	if cur.InOctets < prev.InOctets || cur.OutOctets < prev.OutOctets {
		return 0, 0, false
	}
	rx := float64(cur.InOctets-prev.InOctets) * 8 / elapsed
	tx := float64(cur.OutOctets-prev.OutOctets) * 8 / elapsed
	return int64(rx), int64(tx), true
}
