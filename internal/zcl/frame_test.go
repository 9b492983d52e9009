package zcl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte{0x19, 0x2a, 0x00, 0x01, 0x00, 0x00, 0x05, 0x00, 0x00})
	require.NoError(t, err)
	assert.True(t, f.IsClusterCommand())
	assert.True(t, f.ServerToClient())
	assert.Equal(t, uint8(0x2a), f.SequenceNumber)
	assert.Equal(t, uint8(0x00), f.CommandID)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x05, 0x00, 0x00}, f.Payload)
}

func TestParseFrame_ManufacturerSpecific(t *testing.T) {
	raw := []byte{0x1d, 0x5f, 0x11, 0x07, 0x01, 0xaa}
	f, err := ParseFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x115f), f.ManufacturerCode)
	assert.Equal(t, uint8(0x07), f.SequenceNumber)
	assert.Equal(t, uint8(0x01), f.CommandID)
	assert.Equal(t, raw, f.Bytes())
}

func TestParseFrame_Short(t *testing.T) {
	_, err := ParseFrame([]byte{0x19, 0x01})
	assert.ErrorIs(t, err, ErrShortFrame)
	_, err = ParseFrame([]byte{0x1d, 0x5f, 0x11, 0x07})
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestIEEE(t *testing.T) {
	assert.Equal(t, "0x00158d0001a2b3c4", FormatIEEE(0x00158d0001a2b3c4))
	v, err := ParseIEEE("0x00158D0001A2B3C4")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x00158d0001a2b3c4), v)
	v, err = ParseIEEE("00158d0001a2b3c4")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x00158d0001a2b3c4), v)
}
