// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ble

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneralBeaconEncodeLength(t *testing.T) {
	b := GeneralBeacon{
		ServiceUUID:  0xFEAA,
		CompanyID:    0x05AC,
		SerialNumber: "ABCDEF123456",
		MsgType:      0x00,
		Status:       0x01,
		PairingToken: [4]byte{0xDE, 0xAD, 0xBE, 0xEF},
	}

	out, err := b.Encode()
	require.NoError(t, err)
	require.Len(t, out, MaxGeneralLen)

	// Service UUID AD structure header.
	require.Equal(t, byte(3), out[0])
	require.Equal(t, byte(adTypeServiceUUID16Complete), out[1])
	require.Equal(t, byte(0xAA), out[2]) // little-endian low byte
	require.Equal(t, byte(0xFE), out[3])

	// Manufacturer data AD structure header.
	require.Equal(t, byte(23), out[4])
	require.Equal(t, byte(adTypeManufacturerData), out[5])
	require.Equal(t, byte(0xAC), out[6])
	require.Equal(t, byte(0x05), out[7])

	// Payload: version, serial, msg_type, status, rfu, token.
	require.Equal(t, byte(generalBeaconVersion), out[8])
	require.Equal(t, "ABCDEF123456", string(out[9:21]))
	require.Equal(t, byte(0x00), out[21])
	require.Equal(t, byte(0x01), out[22])
	require.Equal(t, byte(0x00), out[23]) // rfu
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, out[24:28])
}

func TestGeneralBeaconEncodeRejectsWrongSerialLength(t *testing.T) {
	b := GeneralBeacon{SerialNumber: "short"}
	_, err := b.Encode()
	require.Error(t, err)
}

func TestProximityBeaconEncodeLength(t *testing.T) {
	b := ProximityBeacon{
		CompanyID:     0x004C,
		ProximityUUID: [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10},
		Major:         1,
		Minor:         2,
		MeasuredPower: -59,
	}

	out, err := b.Encode()
	require.NoError(t, err)
	require.Len(t, out, ProximityLen)

	require.Equal(t, byte(0x1A), out[0])
	require.Equal(t, byte(adTypeManufacturerData), out[1])
	require.Equal(t, byte(0x4C), out[2])
	require.Equal(t, byte(0x00), out[3])
	require.Equal(t, byte(0x02), out[4]) // beacon_type low byte (0x1502)
	require.Equal(t, byte(0x15), out[5])
	require.Equal(t, b.ProximityUUID[:], out[6:22])
	require.Equal(t, byte(0x01), out[22]) // major low byte
	require.Equal(t, byte(0x02), out[24]) // minor low byte
	require.Equal(t, byte(0xC5), out[26], "measured power -59 as two's complement byte")
}
