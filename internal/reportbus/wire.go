// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package reportbus

import (
	"encoding/binary"

	"grimm.is/flywall/internal/lop"
)

// Field presence tags. The wire format is length-prefixed and
// field-presence-bitmasked rather than real protobuf (spec.md §6
// describes an OpenSync-internal shape, not protobuf proper), so this
// hand-rolled encoder is the format itself, not a stand-in for one.
const (
	hostDSCPPresent uint8 = 1 << 0
	hostIfRole      uint8 = 1 << 1

	sampleMin      uint8 = 1 << 0
	sampleMax      uint8 = 1 << 1
	sampleAvg      uint8 = 1 << 2
	sampleLast     uint8 = 1 << 3
	sampleNumPkts  uint8 = 1 << 4
	sampleHasStamp uint8 = 1 << 5
)

// dscpState mirrors spec.md §6's Host.dscp_type: {PRESENT, MISSING} or
// absent (DSCP reporting not enabled for the stream).
type dscpState int

const (
	dscpAbsent dscpState = iota
	dscpMissing
	dscpPresent
)

func classifyDSCP(v uint8) (dscpState, uint8) {
	switch v {
	case lop.DSCPNone:
		return dscpAbsent, 0
	case lop.DSCPMissing:
		return dscpMissing, 0
	default:
		return dscpPresent, v
	}
}

// EncodeReport builds one length-prefixed Report frame: a 4-byte
// big-endian total length followed by the node id, host count, and each
// Host/Sample in turn.
func EncodeReport(nodeID string, hosts []*lop.Host) []byte {
	var body []byte
	body = appendString(body, nodeID)
	body = appendUvarint(body, uint64(len(hosts)))
	for _, h := range hosts {
		body = appendHost(body, h)
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	return frame
}

func appendHost(buf []byte, h *lop.Host) []byte {
	state, dscpVal := classifyDSCP(h.Key.DSCP)

	var flags uint8
	if state != dscpAbsent {
		flags |= hostDSCPPresent
	}
	if h.IfRole != "" {
		flags |= hostIfRole
	}

	buf = append(buf, flags)
	buf = append(buf, h.Key.MAC[:]...)
	buf = appendString(buf, h.Key.IfName)
	if flags&hostIfRole != 0 {
		buf = appendString(buf, h.IfRole)
	}
	if state != dscpAbsent {
		isMissing := uint8(0)
		if state == dscpMissing {
			isMissing = 1
		}
		buf = append(buf, isMissing, dscpVal)
	}
	buf = appendUint64(buf, h.TimestampMs)
	buf = appendUvarint(buf, uint64(len(h.Samples)))
	for _, s := range h.Samples {
		buf = appendSample(buf, s)
	}
	return buf
}

func appendSample(buf []byte, s lop.Sample) []byte {
	var flags uint8
	if s.Min != nil {
		flags |= sampleMin
	}
	if s.Max != nil {
		flags |= sampleMax
	}
	avg, avgOK := s.AvgMs()
	if avgOK {
		flags |= sampleAvg
	}
	if s.Last != nil {
		flags |= sampleLast
	}
	if s.NumPkts != nil {
		flags |= sampleNumPkts
	}
	if s.TimestampMs != 0 {
		flags |= sampleHasStamp
	}

	buf = append(buf, flags)
	if s.Min != nil {
		buf = appendUint32(buf, *s.Min)
	}
	if s.Max != nil {
		buf = appendUint32(buf, *s.Max)
	}
	if avgOK {
		buf = appendUint32(buf, avg)
	}
	if s.Last != nil {
		buf = appendUint32(buf, *s.Last)
	}
	if s.NumPkts != nil {
		buf = appendUint32(buf, *s.NumPkts)
	}
	if flags&sampleHasStamp != 0 {
		buf = appendUint64(buf, s.TimestampMs)
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = appendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}
