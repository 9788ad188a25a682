// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ble encodes BLE advertising data payloads for the two fixed
// layouts the node advertises under: a general-purpose OpenSync beacon
// and an Apple iBeacon-compatible proximity beacon. Both are packed,
// little-endian byte layouts (Bluetooth Core Specification, Vol 3, Part
// C, Section 11) with no framing beyond the AD structure length/type
// octets, so they're built with encoding/binary rather than any BLE
// stack library.
package ble

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	adTypeServiceUUID16Complete = 0x03
	adTypeManufacturerData      = 0xFF

	generalBeaconVersion = 0x05
	serialNumLen         = 12
	pairingTokenLen      = 4

	proximityBeaconType = 0x1502
	proximityUUIDLen    = 16

	// MaxGeneralLen is the maximum size of a General advertising payload:
	// the service UUID AD (4 bytes) plus the manufacturer data AD (24
	// bytes), leaving room under the stack's 28-byte budget after the
	// auto-prepended Flags AD element.
	MaxGeneralLen = 28

	// ProximityLen is the exact size of a Proximity (iBeacon) advertising
	// payload: 1-byte length prefix, 1-byte AD type, then 25 bytes of
	// manufacturer-specific data (company id, beacon type, UUID, major,
	// minor, measured power).
	ProximityLen = 27
)

// GeneralBeacon is the OpenSync general-purpose advertising payload: one
// 16-bit service UUID followed by manufacturer-specific data carrying the
// node's identity and connectivity status.
type GeneralBeacon struct {
	ServiceUUID  uint16
	CompanyID    uint16
	SerialNumber string // exactly 12 ASCII characters
	MsgType      uint8
	Status       uint8
	PairingToken [pairingTokenLen]byte
}

// Encode packs the beacon into its wire layout. The result is always
// MaxGeneralLen bytes (no trailing-zero trimming needed: every field in
// this layout is fixed-width).
func (b GeneralBeacon) Encode() ([]byte, error) {
	if len(b.SerialNumber) != serialNumLen {
		return nil, fmt.Errorf("ble: serial number must be %d characters, got %d", serialNumLen, len(b.SerialNumber))
	}

	var buf bytes.Buffer

	// Complete List of 16-bit Service UUIDs AD structure.
	buf.WriteByte(1 + 2) // len = type(1) + uuid(2)
	buf.WriteByte(adTypeServiceUUID16Complete)
	binary.Write(&buf, binary.LittleEndian, b.ServiceUUID)

	// Manufacturer Specific Data AD structure.
	mfdData := encodeGeneralPayload(b)
	buf.WriteByte(byte(1 + 2 + len(mfdData))) // len = type(1) + cid(2) + payload
	buf.WriteByte(adTypeManufacturerData)
	binary.Write(&buf, binary.LittleEndian, b.CompanyID)
	buf.Write(mfdData)

	out := buf.Bytes()
	if len(out) != MaxGeneralLen {
		return nil, fmt.Errorf("ble: encoded general beacon is %d bytes, expected %d", len(out), MaxGeneralLen)
	}
	return out, nil
}

func encodeGeneralPayload(b GeneralBeacon) []byte {
	var buf bytes.Buffer
	buf.WriteByte(generalBeaconVersion)
	buf.WriteString(b.SerialNumber)
	buf.WriteByte(b.MsgType)
	buf.WriteByte(b.Status)
	buf.WriteByte(0) // rfu
	buf.Write(b.PairingToken[:])
	return buf.Bytes()
}

// ProximityBeacon is the Apple iBeacon-compatible advertising payload.
type ProximityBeacon struct {
	CompanyID     uint16 // normally 0x004C (Apple, Inc.)
	ProximityUUID [proximityUUIDLen]byte
	Major         uint16
	Minor         uint16
	MeasuredPower int8
}

// Encode packs the beacon into its wire layout: always exactly
// ProximityLen bytes.
func (b ProximityBeacon) Encode() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(0x1A) // length: type+company+beacon_type+uuid+major+minor+power = 26
	buf.WriteByte(adTypeManufacturerData)
	binary.Write(&buf, binary.LittleEndian, b.CompanyID)
	binary.Write(&buf, binary.LittleEndian, uint16(proximityBeaconType))
	buf.Write(b.ProximityUUID[:])
	binary.Write(&buf, binary.LittleEndian, b.Major)
	binary.Write(&buf, binary.LittleEndian, b.Minor)
	buf.WriteByte(byte(b.MeasuredPower))

	out := buf.Bytes()
	if len(out) != ProximityLen {
		return nil, fmt.Errorf("ble: encoded proximity beacon is %d bytes, expected %d", len(out), ProximityLen)
	}
	return out, nil
}
