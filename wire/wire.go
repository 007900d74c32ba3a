// Package wire implements the advertisement frame format: a 4-byte
// header followed by one 20-byte entry per advertised route, matching
// RIPv2 response framing closely enough for this implementation to
// interoperate with itself.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Command byte values. The original router this protocol is modeled
// on emits 0x01 (the RFC1058/RIPv2 "request" value) and validates
// against 0x01 only; this codec standardizes on emitting 0x02
// ("response") but accepts either on decode, so it interoperates with
// a peer built against either reading of the source.
const (
	CommandRequest  byte = 0x01
	CommandResponse byte = 0x02
)

const version byte = 0x02

const addressFamilyID uint16 = 0x0002

const (
	headerLen = 4
	entryLen  = 20
)

// MinNodeID and MaxNodeID bound every node identifier: self ID,
// neighbor ID, sender ID, and destination ID alike.
const (
	MinNodeID = 1
	MaxNodeID = 64000
)

// Infinity is the RIP metric value denoting an unreachable destination.
const Infinity = 16

// MaxDatagramSize is the size of the buffer the daemon reads each
// inbound datagram into, sufficient for roughly 50 routes per datagram.
// Decode itself does not enforce it.
const MaxDatagramSize = 1024

// Entry is a single advertised ⟨destination, metric⟩ pair as read off
// the wire. Decode ignores the reserved subnet-mask and next-hop slots.
type Entry struct {
	Destination uint32
	Metric      uint32
}

// TableEntry is the subset of routing-table state Encode needs to
// render one route into an outgoing frame. NextHop == 0 identifies the
// self-entry, matching the routing table's convention.
type TableEntry struct {
	Destination uint32
	Metric      uint32
	NextHop     uint32
}

// ValidationError reports which ordered decode rule failed, and the
// offending value where that is meaningful.
type ValidationError struct {
	Rule string
	Got  uint32
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("wire: invalid advertisement: %s (got %d)", e.Rule, e.Got)
}

// Encode renders a routing-table snapshot into a datagram addressed
// (logically) to neighborID, applying split horizon with poisoned
// reverse: any entry whose next hop is neighborID is advertised as
// Infinity, and the self-entry is advertised at the direct link cost
// to that neighbor rather than its stored metric of 0.
//
// Entry order follows the order of entries as given; callers that want
// deterministic frames (tests, snapshot diffing) should pass entries
// pre-sorted by destination.
func Encode(senderID uint32, entries []TableEntry, neighborID uint32, directCostToNeighbor uint32) []byte {
	buf := new(bytes.Buffer)

	buf.WriteByte(CommandResponse)
	buf.WriteByte(version)
	writeUint16(buf, uint16(senderID))

	for _, e := range entries {
		writeUint16(buf, addressFamilyID)
		writeUint16(buf, 0) // route tag, unused
		writeUint32(buf, e.Destination)
		writeUint32(buf, 0) // reserved: subnet mask
		writeUint32(buf, 0) // reserved: next hop

		metric := e.Metric
		switch {
		case e.NextHop == neighborID:
			metric = Infinity
		case e.NextHop == 0:
			metric = directCostToNeighbor
		}
		writeUint32(buf, metric)
	}

	return buf.Bytes()
}

// Decode validates and parses an inbound datagram, applying the
// ordered checks below; the first failing check is returned.
//
//  1. length is at least a header and a whole number of entries
//  2. command byte is 0x01 or 0x02
//  3. version byte is 0x02
//  4. sender identifier is in [MinNodeID, MaxNodeID]
//  5. every entry's address family is 0x0002
//  6. every entry's metric is in [1, Infinity]
func Decode(data []byte) (senderID uint16, entries []Entry, err error) {
	if len(data) < headerLen || (len(data)-headerLen)%entryLen != 0 {
		return 0, nil, &ValidationError{Rule: "frame length", Got: uint32(len(data))}
	}

	command := data[0]
	if command != CommandRequest && command != CommandResponse {
		return 0, nil, &ValidationError{Rule: "command byte", Got: uint32(command)}
	}

	if data[1] != version {
		return 0, nil, &ValidationError{Rule: "version byte", Got: uint32(data[1])}
	}

	sender := binary.BigEndian.Uint16(data[2:4])
	if sender < MinNodeID || sender > MaxNodeID {
		return 0, nil, &ValidationError{Rule: "sender identifier", Got: uint32(sender)}
	}

	count := (len(data) - headerLen) / entryLen
	entries = make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		start := headerLen + i*entryLen
		family := binary.BigEndian.Uint16(data[start : start+2])
		if family != addressFamilyID {
			return 0, nil, &ValidationError{Rule: "address family", Got: uint32(family)}
		}
		dest := binary.BigEndian.Uint32(data[start+4 : start+8])
		metric := binary.BigEndian.Uint32(data[start+16 : start+20])
		if metric < 1 || metric > Infinity {
			return 0, nil, &ValidationError{Rule: "metric", Got: metric}
		}
		entries = append(entries, Entry{Destination: dest, Metric: metric})
	}

	return sender, entries, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
