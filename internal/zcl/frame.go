package zcl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrShortFrame = errors.New("zcl frame too short")

// Frame control bits
const (
	FCProfileCommand          uint8 = 0x00
	FCClusterCommand          uint8 = 0x01
	FCManufacturerSpecific    uint8 = 0x04
	FCDirectionClientToServer uint8 = 0x00
	FCDirectionServerToClient uint8 = 0x08
	FCDisableDefaultResponse  uint8 = 0x10
)

// Profile and cluster ids
const (
	ProfileHomeAutomation uint16 = 0x0104
	ClusterIASZone        uint16 = 0x0500
)

// Frame is a ZCL frame: header followed by the command payload
type Frame struct {
	FrameControl     uint8
	ManufacturerCode uint16
	SequenceNumber   uint8
	CommandID        uint8
	Payload          []byte
}

// ParseFrame decodes the ZCL header from an APS payload
func ParseFrame(b []byte) (Frame, error) {
	var f Frame
	if len(b) < 3 {
		return f, ErrShortFrame
	}
	f.FrameControl = b[0]
	i := 1
	if f.FrameControl&FCManufacturerSpecific != 0 {
		if len(b) < 5 {
			return f, ErrShortFrame
		}
		f.ManufacturerCode = binary.LittleEndian.Uint16(b[1:3])
		i = 3
	}
	f.SequenceNumber = b[i]
	f.CommandID = b[i+1]
	f.Payload = append([]byte(nil), b[i+2:]...)
	return f, nil
}

// Bytes encodes the frame
func (f Frame) Bytes() []byte {
	out := []byte{f.FrameControl}
	if f.FrameControl&FCManufacturerSpecific != 0 {
		out = binary.LittleEndian.AppendUint16(out, f.ManufacturerCode)
	}
	out = append(out, f.SequenceNumber, f.CommandID)
	return append(out, f.Payload...)
}

func (f Frame) IsClusterCommand() bool { return f.FrameControl&0x03 == FCClusterCommand }
func (f Frame) ServerToClient() bool   { return f.FrameControl&FCDirectionServerToClient != 0 }

// Indication is a received APS data indication carrying a ZCL frame
type Indication struct {
	SrcIEEE     uint64
	SrcEndpoint uint8
	ProfileID   uint16
	ClusterID   uint16
	Frame       Frame
}

// ApsRequest is an outgoing APS data request
type ApsRequest struct {
	DstIEEE     string `json:"dst_ieee"`
	DstEndpoint uint8  `json:"dst_endpoint"`
	SrcEndpoint uint8  `json:"src_endpoint"`
	ProfileID   uint16 `json:"profile"`
	ClusterID   uint16 `json:"cluster"`
	ASDU        []byte `json:"asdu"`
}

// FormatIEEE renders an extended address as 16 hex digits
func FormatIEEE(addr uint64) string {
	return fmt.Sprintf("0x%016x", addr)
}

// ParseIEEE accepts an extended address with or without 0x prefix
func ParseIEEE(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	return strconv.ParseUint(s, 16, 64)
}
