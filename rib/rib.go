// Package rib implements the routing table: the Bellman-Ford style
// relaxation under split horizon with poisoned reverse, the three
// interacting per-entry timers (TIMEOUT, GARBAGE, and the periodic
// UPDATE driver), and the single-writer discipline (a mutex held for
// the duration of every mutating call) that lets those three sources
// of mutation — inbound advertisements, route timeouts, and the
// periodic tick — observe a consistent table.
package rib

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ellacalder/cosc364-rip-assignment/config"
	"github.com/ellacalder/cosc364-rip-assignment/metrics"
	"github.com/ellacalder/cosc364-rip-assignment/timer"
	"github.com/ellacalder/cosc364-rip-assignment/wire"
)

// Infinity is the RIP "unreachable" metric, reserved for poisoned
// routes and mirrored from wire so callers need only import one
// package's worth of constants when working with a Table.
const Infinity = wire.Infinity

// Entry is one row of the routing table.
type Entry struct {
	Destination uint32
	Metric      uint32
	NextHop     uint32 // 0 for the self-entry
	ChangeFlag  bool   // reserved for triggered-update bookkeeping; not read by this package
	Timer       *timer.Timer
}

// EntryView is the read-only, timer-resolved projection of an Entry
// used for the human-readable snapshot and for tests.
type EntryView struct {
	Destination  uint32
	Metric       uint32
	NextHop      uint32
	TimerKind    string
	TimerElapsed time.Duration
}

// Transport sends an encoded advertisement to a neighbor. The daemon
// package implements this over a UDP socket; tests implement it in
// memory.
type Transport interface {
	Send(neighbor config.Neighbor, frame []byte) error
}

// Options configures a Table's timing and observability. Zero-value
// durations fall back to the RIP defaults from spec.md §3.
type Options struct {
	Timeout           time.Duration
	GarbageCollection time.Duration
	UpdateInterval    time.Duration
	Logger            zerolog.Logger
	Metrics           *metrics.Collector
}

const (
	defaultTimeout           = 30 * time.Second
	defaultGarbageCollection = 20 * time.Second
	defaultUpdateInterval    = 5 * time.Second
)

// Table is the in-memory routing table for one node. The zero value is
// not usable; construct with New.
type Table struct {
	mu sync.Mutex

	selfID    uint32
	neighbors map[uint32]config.Neighbor
	entries   map[uint32]*Entry

	timeout           time.Duration
	garbageCollection time.Duration
	updateInterval    time.Duration

	transport   Transport
	updateTimer *timer.Timer

	logger  zerolog.Logger
	metrics *metrics.Collector
}

// New builds a Table for selfID with one entry per configured
// neighbor, arms a TIMEOUT timer for each of those neighbor entries,
// and arms the initial periodic-update timer. It does not send
// anything until the first periodic tick fires or SendPeriodic is
// called directly.
func New(selfID uint32, neighbors []config.Neighbor, transport Transport, opts Options) *Table {
	t := &Table{
		selfID:            selfID,
		neighbors:         make(map[uint32]config.Neighbor, len(neighbors)),
		entries:           make(map[uint32]*Entry, len(neighbors)+1),
		timeout:           orDefault(opts.Timeout, defaultTimeout),
		garbageCollection: orDefault(opts.GarbageCollection, defaultGarbageCollection),
		updateInterval:    orDefault(opts.UpdateInterval, defaultUpdateInterval),
		transport:         transport,
		logger:            opts.Logger,
		metrics:           opts.Metrics,
	}

	t.entries[selfID] = &Entry{Destination: selfID, Metric: 0, NextHop: 0}

	for _, n := range neighbors {
		t.neighbors[n.ID] = n
		dest := n.ID
		e := &Entry{Destination: n.ID, Metric: n.Cost, NextHop: n.ID}
		e.Timer = timer.Schedule(t.timeout, timer.Timeout, func() { t.fireTimeout(dest, e.Timer) })
		t.entries[dest] = e
	}

	t.updateTimer = timer.Schedule(t.jitteredInterval(), timer.Update, t.fireUpdate)

	t.reportRouteCount()
	t.render("startup")
	return t
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (t *Table) jitteredInterval() time.Duration {
	lo := float64(t.updateInterval) * 0.8
	hi := float64(t.updateInterval) * 1.2
	return time.Duration(lo + rand.Float64()*(hi-lo))
}

// ApplyAdvertisement implements the decision table of spec.md §4.3.
// The sender must already be present in the table (its cost is used
// to relax the advertised metrics); advertisements from a sender the
// table has no route to at all are rejected outright rather than
// accepted at an assumed cost of zero (the stricter resolution of the
// "unknown sender" open question — see DESIGN.md).
func (t *Table) ApplyAdvertisement(senderID uint32, entries []wire.Entry) {
	t.mu.Lock()

	senderRoute, known := t.entries[senderID]
	if !known {
		t.mu.Unlock()
		t.logger.Warn().Uint32("sender", senderID).Msg("rejected advertisement from unknown sender")
		t.incr(func(c *metrics.Collector) { c.AdvertisementsRejected.Inc() })
		return
	}
	costVia := senderRoute.Metric

	for _, adv := range entries {
		if adv.Destination == t.selfID {
			continue
		}
		t.applyEntry(senderID, costVia, adv)
	}

	t.mu.Unlock()
	t.incr(func(c *metrics.Collector) { c.AdvertisementsReceived.Inc() })
	t.reportRouteCount()
	t.render("advertisement applied")
}

// applyEntry applies one advertised ⟨destination, metric⟩ pair. Must
// be called with t.mu held.
func (t *Table) applyEntry(senderID, costVia uint32, adv wire.Entry) {
	newMetric := adv.Metric + costVia
	if newMetric > Infinity {
		newMetric = Infinity
	}

	route, exists := t.entries[adv.Destination]

	switch {
	case !exists:
		if newMetric < Infinity {
			t.insertLocked(adv.Destination, newMetric, senderID)
		}

	case senderID == adv.Destination:
		// The sender is reporting about itself: refresh its liveness
		// without touching the stored metric.
		t.resetTimeoutLocked(route)

	case senderID == route.NextHop && route.Metric < Infinity && adv.Metric >= Infinity:
		t.poisonLocked(route)

	case senderID == route.NextHop && adv.Metric < Infinity:
		// Covers both a genuinely changed metric and a same-metric
		// re-advertisement from the current next hop: the resolution
		// of "does an unchanged metric still refresh TIMEOUT" is to
		// always refresh it (see DESIGN.md, Q3).
		route.Metric = newMetric
		t.resetTimeoutLocked(route)

	case senderID != route.NextHop && newMetric < route.Metric:
		route.NextHop = senderID
		route.Metric = newMetric
		t.resetTimeoutLocked(route)

	default:
		// no-op
	}
}

func (t *Table) insertLocked(dest, metric, nextHop uint32) {
	e := &Entry{Destination: dest, Metric: metric, NextHop: nextHop}
	e.Timer = timer.Schedule(t.timeout, timer.Timeout, func() { t.fireTimeout(dest, e.Timer) })
	t.entries[dest] = e
}

func (t *Table) resetTimeoutLocked(route *Entry) {
	if route.Timer.Kind() == timer.Timeout {
		route.Timer.Reset(t.timeout, timer.Timeout)
		return
	}
	// A poisoned route's timer carries the GARBAGE callback; replace it
	// with a fresh TIMEOUT timer rather than relabelling it.
	route.Timer.Cancel()
	dest := route.Destination
	var tm *timer.Timer
	tm = timer.Schedule(t.timeout, timer.Timeout, func() { t.fireTimeout(dest, tm) })
	route.Timer = tm
}

func (t *Table) poisonLocked(route *Entry) {
	route.Metric = Infinity
	dest := route.Destination
	route.Timer.Cancel()
	route.Timer = timer.Schedule(t.garbageCollection, timer.Garbage, func() { t.fireGarbage(dest, route.Timer) })
}

// fireTimeout is the TIMEOUT callback installed on every non-self
// entry's timer. It tolerates the cancellation race described in
// spec.md §5: if the entry is gone, or its timer has since been
// replaced, this firing is stale and is a no-op.
func (t *Table) fireTimeout(destination uint32, fired *timer.Timer) {
	t.mu.Lock()
	route, ok := t.entries[destination]
	if !ok || route.Timer != fired {
		t.mu.Unlock()
		return
	}
	route.Metric = Infinity
	route.Timer.Cancel()
	route.Timer = timer.Schedule(t.garbageCollection, timer.Garbage, func() { t.fireGarbage(destination, route.Timer) })
	t.mu.Unlock()

	t.incr(func(c *metrics.Collector) { c.Timeouts.Inc() })
	t.logger.Info().Uint32("destination", destination).Msg("route timed out, poisoning")
	t.reportRouteCount()
	t.render("route timed out")

	// Triggered update: neighbors learn of the loss within one TIMEOUT
	// rather than waiting for the next periodic tick (spec.md §4.3,
	// §9 "Triggered updates").
	t.SendPeriodic()
}

// fireGarbage is the GARBAGE callback. Same staleness tolerance as
// fireTimeout.
func (t *Table) fireGarbage(destination uint32, fired *timer.Timer) {
	t.mu.Lock()
	route, ok := t.entries[destination]
	if !ok || route.Timer != fired {
		t.mu.Unlock()
		return
	}
	delete(t.entries, destination)
	t.mu.Unlock()

	t.incr(func(c *metrics.Collector) { c.GarbageCollections.Inc() })
	t.logger.Info().Uint32("destination", destination).Msg("garbage-collected route")
	t.reportRouteCount()
	t.render("route garbage collected")
}

// fireUpdate is the periodic UPDATE timer's callback.
func (t *Table) fireUpdate() {
	t.SendPeriodic()
}

// SendPeriodic builds one neighbor-specific advertisement per
// configured neighbor and transmits it via the table's Transport, then
// reschedules the next periodic tick at a jittered UPDATE interval.
// It is called both by the periodic UPDATE timer and, as a triggered
// update, directly from fireTimeout.
func (t *Table) SendPeriodic() {
	t.mu.Lock()
	snapshot := make([]wire.TableEntry, 0, len(t.entries))
	for _, e := range t.entries {
		snapshot = append(snapshot, wire.TableEntry{
			Destination: e.Destination,
			Metric:      e.Metric,
			NextHop:     e.NextHop,
		})
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Destination < snapshot[j].Destination })

	neighbors := make([]config.Neighbor, 0, len(t.neighbors))
	for _, n := range t.neighbors {
		neighbors = append(neighbors, n)
	}
	selfID := t.selfID
	t.mu.Unlock()

	for _, n := range neighbors {
		frame := wire.Encode(selfID, snapshot, n.ID, n.Cost)
		if err := t.transport.Send(n, frame); err != nil {
			t.logger.Warn().Err(err).Uint32("neighbor", n.ID).Msg("failed to send advertisement")
			continue
		}
		t.incr(func(c *metrics.Collector) { c.AdvertisementsSent.Inc() })
	}

	t.render("periodic update sent")
	t.rescheduleUpdate()
}

func (t *Table) rescheduleUpdate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updateTimer.Reset(t.jitteredInterval(), timer.Update)
}

// Snapshot returns the table sorted by destination, for logging and
// tests. It never returns the internal *Entry pointers.
func (t *Table) Snapshot() []EntryView {
	t.mu.Lock()
	defer t.mu.Unlock()

	views := make([]EntryView, 0, len(t.entries))
	for _, e := range t.entries {
		v := EntryView{Destination: e.Destination, Metric: e.Metric, NextHop: e.NextHop}
		if e.Timer != nil {
			v.TimerKind = e.Timer.Kind().String()
			v.TimerElapsed = e.Timer.Elapsed()
		} else {
			v.TimerKind = "-"
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Destination < views[j].Destination })
	return views
}

func (t *Table) incr(f func(*metrics.Collector)) {
	if t.metrics != nil {
		f(t.metrics)
	}
}

func (t *Table) reportRouteCount() {
	if t.metrics == nil {
		return
	}
	t.mu.Lock()
	n := len(t.entries)
	t.mu.Unlock()
	t.metrics.RouteCount.Set(float64(n))
}

func (t *Table) render(reason string) {
	if t.logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	t.logger.Debug().Str("reason", reason).Str("table", FormatTable(t.selfID, t.Snapshot())).Msg("routing table snapshot")
}

// FormatTable renders the sorted entry views as the fixed-width table
// spec.md §6 describes: ⟨destination, metric, next_hop, timer_kind,
// timer_elapsed_seconds⟩, one row per line.
func FormatTable(selfID uint32, views []EntryView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- router %d ---\n", selfID)
	fmt.Fprintf(&b, "%-11s | %6s | %8s | %s\n", "destination", "metric", "next hop", "timer")
	for _, v := range views {
		timer := v.TimerKind
		if v.TimerKind != "-" {
			timer = fmt.Sprintf("%s %.2fs", v.TimerKind, v.TimerElapsed.Seconds())
		}
		fmt.Fprintf(&b, "%-11d | %6d | %8d | %s\n", v.Destination, v.Metric, v.NextHop, timer)
	}
	return b.String()
}
