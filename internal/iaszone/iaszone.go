package iaszone

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"meshgate/internal/resource"
	"meshgate/internal/utils"
	"meshgate/internal/zcl"

	"github.com/rs/zerolog"
)

// Server to client commands
const (
	CmdStatusChangeNotification uint8 = 0x00
	CmdZoneEnrollRequest        uint8 = 0x01
)

// CmdZoneEnrollResponse is the client to server answer to an enroll request
const CmdZoneEnrollResponse uint8 = 0x00

// Zone status flags
const (
	StatusAlarm1        uint16 = 0x0001
	StatusAlarm2        uint16 = 0x0002
	StatusTamper        uint16 = 0x0004
	StatusBattery       uint16 = 0x0008
	StatusSupervision   uint16 = 0x0010
	StatusRestoreRep    uint16 = 0x0020
	StatusTrouble       uint16 = 0x0040
	StatusACMains       uint16 = 0x0080
	StatusTest          uint16 = 0x0100
	StatusBatteryDefect uint16 = 0x0200
)

// EnrollZoneID is the zone id handed out in enroll responses
const EnrollZoneID uint8 = 100

// AttributeWriter is the attribute store the handler updates
type AttributeWriter interface {
	UpdateAttribute(address string, v resource.Value) (bool, error)
	Attribute(address string) (resource.Value, bool)
}

// FrameSender sends APS data requests
type FrameSender interface {
	SendFrame(ctx context.Context, req zcl.ApsRequest) error
}

// Handler processes IAS Zone cluster indications
type Handler struct {
	attrs    AttributeWriter
	sender   FrameSender
	index    *SensorIndex
	endpoint uint8
	now      func() time.Time
	log      *zerolog.Logger
}

// NewHandler creates a handler answering from the given local endpoint
func NewHandler(attrs AttributeWriter, sender FrameSender, index *SensorIndex, endpoint uint8) *Handler {
	if endpoint == 0 {
		endpoint = 0x01
	}
	return &Handler{
		attrs:    attrs,
		sender:   sender,
		index:    index,
		endpoint: endpoint,
		now:      time.Now,
		log:      utils.Logger("iaszone"),
	}
}

// HandleIndication handles one IAS Zone frame. Profile-wide frames and
// frames not sent by a zone server are ignored.
func (h *Handler) HandleIndication(ctx context.Context, ind zcl.Indication) error {
	if !ind.Frame.IsClusterCommand() || !ind.Frame.ServerToClient() {
		return nil
	}
	switch ind.Frame.CommandID {
	case CmdStatusChangeNotification:
		return h.statusChange(ind)
	case CmdZoneEnrollRequest:
		return h.enrollRequest(ctx, ind)
	}
	return nil
}

func (h *Handler) statusChange(ind zcl.Indication) error {
	p := ind.Frame.Payload
	if len(p) < 6 {
		return fmt.Errorf("status change notification: %w", zcl.ErrShortFrame)
	}
	zoneStatus := binary.LittleEndian.Uint16(p[0:2])
	zoneID := p[3]
	delay := binary.LittleEndian.Uint16(p[4:6])
	h.log.Debug().Uint16("status", zoneStatus).Uint8("zone", zoneID).Uint16("delay", delay).Msg("IAS zone status change")

	id, ok := h.index.Lookup(ind.SrcIEEE, ind.SrcEndpoint)
	if !ok {
		h.log.Debug().Str("ieee", zcl.FormatIEEE(ind.SrcIEEE)).Uint8("endpoint", ind.SrcEndpoint).Msg("no sensor for IAS zone")
		return nil
	}
	base := "/sensors/" + id + "/"

	presence := zoneStatus&(StatusAlarm1|StatusAlarm2) != 0
	if _, err := h.attrs.UpdateAttribute(base+"state/presence", resource.Bool(presence)); err != nil {
		return err
	}
	if _, err := h.attrs.UpdateAttribute(base+"state/lastupdated", resource.String(utils.FormatTime(h.now()))); err != nil {
		return err
	}
	if v, ok := h.attrs.Attribute(base + "config/reachable"); !ok || !v.Bool() {
		if _, err := h.attrs.UpdateAttribute(base+"config/reachable", resource.Bool(true)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) enrollRequest(ctx context.Context, ind zcl.Indication) error {
	if p := ind.Frame.Payload; len(p) >= 4 {
		h.log.Debug().
			Str("zone_type", fmt.Sprintf("0x%04X", binary.LittleEndian.Uint16(p[0:2]))).
			Str("manufacturer", fmt.Sprintf("0x%04X", binary.LittleEndian.Uint16(p[2:4]))).
			Msg("IAS zone enroll request")
	}
	return h.sendEnrollResponse(ctx, ind)
}

// EnrollResponse builds the enroll response frame for a request
func EnrollResponse(req zcl.Frame) zcl.Frame {
	return zcl.Frame{
		FrameControl:   zcl.FCClusterCommand | zcl.FCDirectionClientToServer | zcl.FCDisableDefaultResponse,
		SequenceNumber: req.SequenceNumber,
		CommandID:      CmdZoneEnrollResponse,
		Payload:        []byte{0x00, EnrollZoneID}, // success
	}
}

func (h *Handler) sendEnrollResponse(ctx context.Context, ind zcl.Indication) error {
	req := zcl.ApsRequest{
		DstIEEE:     zcl.FormatIEEE(ind.SrcIEEE),
		DstEndpoint: ind.SrcEndpoint,
		SrcEndpoint: h.endpoint,
		ProfileID:   ind.ProfileID,
		ClusterID:   ind.ClusterID,
		ASDU:        EnrollResponse(ind.Frame).Bytes(),
	}
	if err := h.sender.SendFrame(ctx, req); err != nil {
		h.log.Info().Err(err).Msg("IAS zone failed to send enroll response")
		return err
	}
	return nil
}
