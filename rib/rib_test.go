package rib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ellacalder/cosc364-rip-assignment/config"
	"github.com/ellacalder/cosc364-rip-assignment/timer"
	"github.com/ellacalder/cosc364-rip-assignment/wire"
)

// recordingTransport captures every frame SendPeriodic hands it, in
// send order and paired with the neighbor it was addressed to, so tests
// can inspect what would have gone on the wire without a real socket.
type recordingTransport struct {
	sent []sentFrame
}

type sentFrame struct {
	neighbor config.Neighbor
	frame    []byte
}

func (r *recordingTransport) Send(n config.Neighbor, frame []byte) error {
	r.sent = append(r.sent, sentFrame{neighbor: n, frame: frame})
	return nil
}

func newTestTable(t *testing.T, selfID uint32, neighbors []config.Neighbor) (*Table, *recordingTransport) {
	t.Helper()
	tr := &recordingTransport{}
	tbl := New(selfID, neighbors, tr, Options{
		Timeout:           50 * time.Millisecond,
		GarbageCollection: 50 * time.Millisecond,
		UpdateInterval:    time.Hour, // keep the periodic tick out of the way of these tests
	})
	return tbl, tr
}

func findEntry(views []EntryView, dest uint32) (EntryView, bool) {
	for _, v := range views {
		if v.Destination == dest {
			return v, true
		}
	}
	return EntryView{}, false
}

// S1: direct neighbor learned on startup.
func TestDirectNeighborLearnedOnStartup(t *testing.T) {
	tbl, _ := newTestTable(t, 1, []config.Neighbor{{SendPort: 5002, Cost: 3, ID: 2}})

	self, ok := findEntry(tbl.Snapshot(), 1)
	require.True(t, ok)
	require.EqualValues(t, 0, self.Metric)
	require.EqualValues(t, 0, self.NextHop)

	neighbor, ok := findEntry(tbl.Snapshot(), 2)
	require.True(t, ok)
	require.EqualValues(t, 3, neighbor.Metric)
	require.EqualValues(t, 2, neighbor.NextHop)
	require.Equal(t, "TIMEOUT", neighbor.TimerKind)
}

// S2: transitive route via neighbor.
func TestTransitiveRouteViaNeighbor(t *testing.T) {
	tbl, _ := newTestTable(t, 1, []config.Neighbor{{SendPort: 5002, Cost: 3, ID: 2}})

	tbl.ApplyAdvertisement(2, []wire.Entry{{Destination: 3, Metric: 4}})

	route, ok := findEntry(tbl.Snapshot(), 3)
	require.True(t, ok)
	require.EqualValues(t, 7, route.Metric)
	require.EqualValues(t, 2, route.NextHop)
	require.Equal(t, "TIMEOUT", route.TimerKind)
}

// S3: split horizon with poisoned reverse.
func TestSplitHorizonWithPoisonedReverse(t *testing.T) {
	tbl, tr := newTestTable(t, 1, []config.Neighbor{{SendPort: 5002, Cost: 3, ID: 2}})
	tbl.ApplyAdvertisement(2, []wire.Entry{{Destination: 3, Metric: 4}})

	tbl.SendPeriodic()
	require.Len(t, tr.sent, 1)

	_, decoded, err := wire.Decode(tr.sent[0].frame)
	require.NoError(t, err)

	var dest1, dest3 *wire.Entry
	for i := range decoded {
		switch decoded[i].Destination {
		case 1:
			dest1 = &decoded[i]
		case 3:
			dest3 = &decoded[i]
		}
	}
	require.NotNil(t, dest1)
	require.NotNil(t, dest3)
	require.EqualValues(t, 3, dest1.Metric, "self entry should advertise the direct cost to neighbor 2")
	require.EqualValues(t, wire.Infinity, dest3.Metric, "route via neighbor 2 must be poisoned back to neighbor 2")
}

// S4: timeout triggers poisoning and a triggered update.
func TestTimeoutTriggersPoisoning(t *testing.T) {
	tbl, tr := newTestTable(t, 1, []config.Neighbor{
		{SendPort: 5002, Cost: 3, ID: 2},
		{SendPort: 5003, Cost: 2, ID: 4},
	})
	// learn route 3 later than the neighbor entries were armed, so its
	// own TIMEOUT expires after neighbor 2's does
	time.Sleep(25 * time.Millisecond)
	tbl.ApplyAdvertisement(2, []wire.Entry{{Destination: 3, Metric: 4}})

	require.Eventually(t, func() bool {
		route, ok := findEntry(tbl.Snapshot(), 2)
		return ok && route.Metric == Infinity && route.TimerKind == "GARBAGE"
	}, time.Second, 5*time.Millisecond)

	route, ok := findEntry(tbl.Snapshot(), 3)
	require.True(t, ok, "transitive route should still exist pending its own timeout")
	require.EqualValues(t, 7, route.Metric, "a neighbor timeout must not directly poison transitive routes through it")

	require.Eventually(t, func() bool { return len(tr.sent) > 0 }, time.Second, 5*time.Millisecond)
	_, decoded, err := wire.Decode(tr.sent[len(tr.sent)-1].frame)
	require.NoError(t, err)
	found := false
	for _, e := range decoded {
		if e.Destination == 2 && e.Metric == wire.Infinity {
			found = true
		}
	}
	require.True(t, found, "triggered update must advertise the poisoned neighbor as unreachable")
}

// S5: garbage expiry removes the entry.
func TestGarbageExpiryRemovesEntry(t *testing.T) {
	tbl, _ := newTestTable(t, 1, []config.Neighbor{{SendPort: 5002, Cost: 3, ID: 2}})

	require.Eventually(t, func() bool {
		_, ok := findEntry(tbl.Snapshot(), 2)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

// S6: a strictly better path is adopted.
func TestBetterPathAdoption(t *testing.T) {
	tbl, _ := newTestTable(t, 1, []config.Neighbor{
		{SendPort: 5002, Cost: 3, ID: 2},
		{SendPort: 5003, Cost: 2, ID: 4},
	})
	tbl.ApplyAdvertisement(2, []wire.Entry{{Destination: 3, Metric: 4}})

	require.EqualValues(t, 7, mustFind(t, tbl, 3).Metric)

	tbl.ApplyAdvertisement(4, []wire.Entry{{Destination: 3, Metric: 3}})

	route := mustFind(t, tbl, 3)
	require.EqualValues(t, 5, route.Metric)
	require.EqualValues(t, 4, route.NextHop)
}

func mustFind(t *testing.T, tbl *Table, dest uint32) EntryView {
	t.Helper()
	v, ok := findEntry(tbl.Snapshot(), dest)
	require.True(t, ok)
	return v
}

func TestUnknownSenderRejected(t *testing.T) {
	tbl, _ := newTestTable(t, 1, []config.Neighbor{{SendPort: 5002, Cost: 3, ID: 2}})

	tbl.ApplyAdvertisement(99, []wire.Entry{{Destination: 3, Metric: 4}})

	_, ok := findEntry(tbl.Snapshot(), 3)
	require.False(t, ok, "advertisement from an unrecognized sender must be dropped wholesale")
}

func TestSelfDestinationIgnored(t *testing.T) {
	tbl, _ := newTestTable(t, 1, []config.Neighbor{{SendPort: 5002, Cost: 3, ID: 2}})

	tbl.ApplyAdvertisement(2, []wire.Entry{{Destination: 1, Metric: 7}})

	self := mustFind(t, tbl, 1)
	require.EqualValues(t, 0, self.Metric)
	require.EqualValues(t, 0, self.NextHop)
}

func TestRefreshFromNextHopResetsTimeoutEvenAtSameMetric(t *testing.T) {
	tbl, _ := newTestTable(t, 1, []config.Neighbor{{SendPort: 5002, Cost: 3, ID: 2}})
	tbl.ApplyAdvertisement(2, []wire.Entry{{Destination: 3, Metric: 4}})

	before := mustFind(t, tbl, 3).TimerElapsed
	time.Sleep(20 * time.Millisecond)
	tbl.ApplyAdvertisement(2, []wire.Entry{{Destination: 3, Metric: 4}})
	after := mustFind(t, tbl, 3).TimerElapsed

	require.Less(t, after, before+10*time.Millisecond, "re-advertising the same metric from the current next hop must still reset the TIMEOUT timer")
}

func TestWorseMetricFromOtherNeighborIsNoop(t *testing.T) {
	tbl, _ := newTestTable(t, 1, []config.Neighbor{
		{SendPort: 5002, Cost: 3, ID: 2},
		{SendPort: 5003, Cost: 9, ID: 4},
	})
	tbl.ApplyAdvertisement(2, []wire.Entry{{Destination: 3, Metric: 4}})

	tbl.ApplyAdvertisement(4, []wire.Entry{{Destination: 3, Metric: 1}}) // new_metric = 1+9 = 10, worse than 7

	route := mustFind(t, tbl, 3)
	require.EqualValues(t, 7, route.Metric)
	require.EqualValues(t, 2, route.NextHop)
}

func TestEntryInvariants(t *testing.T) {
	tbl, _ := newTestTable(t, 1, []config.Neighbor{{SendPort: 5002, Cost: 3, ID: 2}})
	tbl.ApplyAdvertisement(2, []wire.Entry{{Destination: 3, Metric: 4}})

	seen := map[uint32]bool{}
	for _, v := range tbl.Snapshot() {
		require.False(t, seen[v.Destination], "destination uniqueness (I1)")
		seen[v.Destination] = true
		require.True(t, v.Metric <= Infinity, "metric bound (P3)")
		if v.Destination == 1 {
			require.EqualValues(t, 0, v.Metric)
		} else {
			require.NotEqual(t, "-", v.TimerKind, "every non-self entry must carry exactly one timer (I2)")
		}
	}
}

func TestPoisonedEntryCarriesGarbageTimer(t *testing.T) {
	// directly exercise fireTimeout's I3 transition without waiting
	// out the real TIMEOUT window
	tr := &recordingTransport{}
	tbl := New(1, []config.Neighbor{{SendPort: 5002, Cost: 3, ID: 2}}, tr, Options{
		Timeout:           10 * time.Millisecond,
		GarbageCollection: time.Hour,
		UpdateInterval:    time.Hour,
	})

	require.Eventually(t, func() bool {
		v := mustFind(t, tbl, 2)
		return v.Metric == Infinity && v.TimerKind == timer.Garbage.String()
	}, time.Second, 5*time.Millisecond)
}
