// Package protocol implements the typed message layer of the hub's BLE
// protocol. Every message is a type id byte followed by fixed-width fields
// (little-endian) and, for the variable-length messages, a trailing blob.
// Each request id has exactly one response id; ConsoleNotification is
// unsolicited and has none.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ID identifies a message variant on the wire.
type ID byte

const (
	IDInfoRequest             ID = 0x00
	IDInfoResponse            ID = 0x01
	IDClearSlotRequest        ID = 0x0A
	IDClearSlotResponse       ID = 0x0B
	IDStartFileUploadRequest  ID = 0x0C
	IDStartFileUploadResponse ID = 0x0D
	IDTransferChunkRequest    ID = 0x10
	IDTransferChunkResponse   ID = 0x11
	IDProgramFlowRequest      ID = 0x1E
	IDProgramFlowResponse     ID = 0x1F
	IDConsoleNotification     ID = 0x21
)

// MaxFileNameLen is the protocol's limit on upload file names, excluding
// the NUL terminator.
const MaxFileNameLen = 31

// statusAck is the hub's "accepted" status byte; anything else is a NACK.
const statusAck = 0x00

var (
	// ErrUnknownType indicates a type id outside the known message set.
	ErrUnknownType = errors.New("protocol: unknown message type")
	// ErrFieldTooLarge indicates a field exceeding its wire-format limit.
	ErrFieldTooLarge = errors.New("protocol: field too large")
	// ErrMalformed indicates a well-framed message whose payload does not
	// match its variant's layout.
	ErrMalformed = errors.New("protocol: malformed message")
)

// Message is one wire message variant.
type Message interface {
	ID() ID
}

// InfoRequest asks the hub for its capabilities. It must be the first
// message of every session.
type InfoRequest struct{}

func (InfoRequest) ID() ID { return IDInfoRequest }

// InfoResponse is the handshake reply. MaxPacketSize bounds a single BLE
// write; MaxChunkSize bounds a single file-transfer chunk.
type InfoResponse struct {
	Version       uint16
	Capabilities  uint32
	MaxPacketSize uint16
	MaxChunkSize  uint16
}

func (InfoResponse) ID() ID { return IDInfoResponse }

// ClearSlotRequest erases whatever program occupies a slot.
type ClearSlotRequest struct {
	Slot uint8
}

func (ClearSlotRequest) ID() ID { return IDClearSlotRequest }

// ClearSlotResponse acknowledges a ClearSlotRequest.
type ClearSlotResponse struct {
	Accepted bool
}

func (ClearSlotResponse) ID() ID { return IDClearSlotResponse }

// StartFileUploadRequest opens a transfer of a named program into a slot.
// CRC is the checksum of the entire file, computed up front.
type StartFileUploadRequest struct {
	Name string
	Slot uint8
	CRC  uint32
}

func (StartFileUploadRequest) ID() ID { return IDStartFileUploadRequest }

// StartFileUploadResponse accepts or rejects an upload (e.g. slot busy).
type StartFileUploadResponse struct {
	Accepted bool
}

func (StartFileUploadResponse) ID() ID { return IDStartFileUploadResponse }

// TransferChunkRequest carries one chunk of an open transfer together with
// the running checksum over everything sent so far.
type TransferChunkRequest struct {
	RunningCRC uint32
	Payload    []byte
}

func (TransferChunkRequest) ID() ID { return IDTransferChunkRequest }

// TransferChunkResponse acknowledges one chunk. A NACK aborts the transfer.
type TransferChunkResponse struct {
	Accepted bool
}

func (TransferChunkResponse) ID() ID { return IDTransferChunkResponse }

// ProgramFlowRequest starts (Stop=false) or stops (Stop=true) the program
// in a slot. A start triggers the hub's startup sound.
type ProgramFlowRequest struct {
	Stop bool
	Slot uint8
}

func (ProgramFlowRequest) ID() ID { return IDProgramFlowRequest }

// ProgramFlowResponse acknowledges a ProgramFlowRequest.
type ProgramFlowResponse struct {
	Accepted bool
}

func (ProgramFlowResponse) ID() ID { return IDProgramFlowResponse }

// ConsoleNotification carries one line of print() output from the hub. It
// may arrive at any time, including while a request is pending.
type ConsoleNotification struct {
	Text string
}

func (ConsoleNotification) ID() ID { return IDConsoleNotification }

// ResponseID returns the response variant paired with a request id, and
// false for ids that are not requests.
func ResponseID(id ID) (ID, bool) {
	switch id {
	case IDInfoRequest:
		return IDInfoResponse, true
	case IDClearSlotRequest:
		return IDClearSlotResponse, true
	case IDStartFileUploadRequest:
		return IDStartFileUploadResponse, true
	case IDTransferChunkRequest:
		return IDTransferChunkResponse, true
	case IDProgramFlowRequest:
		return IDProgramFlowResponse, true
	default:
		return 0, false
	}
}

// Serialize encodes a message into its wire payload (unframed).
func Serialize(m Message) ([]byte, error) {
	buf := []byte{byte(m.ID())}
	switch msg := m.(type) {
	case InfoRequest:
		return buf, nil
	case InfoResponse:
		buf = binary.LittleEndian.AppendUint16(buf, msg.Version)
		buf = binary.LittleEndian.AppendUint32(buf, msg.Capabilities)
		buf = binary.LittleEndian.AppendUint16(buf, msg.MaxPacketSize)
		buf = binary.LittleEndian.AppendUint16(buf, msg.MaxChunkSize)
		return buf, nil
	case ClearSlotRequest:
		return append(buf, msg.Slot), nil
	case ClearSlotResponse:
		return append(buf, statusByte(msg.Accepted)), nil
	case StartFileUploadRequest:
		if len(msg.Name) > MaxFileNameLen {
			return nil, fmt.Errorf("%w: file name %d bytes, max %d", ErrFieldTooLarge, len(msg.Name), MaxFileNameLen)
		}
		if bytes.IndexByte([]byte(msg.Name), 0) >= 0 {
			return nil, fmt.Errorf("%w: file name contains NUL", ErrMalformed)
		}
		buf = append(buf, msg.Name...)
		buf = append(buf, 0)
		buf = append(buf, msg.Slot)
		buf = binary.LittleEndian.AppendUint32(buf, msg.CRC)
		return buf, nil
	case StartFileUploadResponse:
		return append(buf, statusByte(msg.Accepted)), nil
	case TransferChunkRequest:
		if len(msg.Payload) > 0xFFFF {
			return nil, fmt.Errorf("%w: chunk payload %d bytes", ErrFieldTooLarge, len(msg.Payload))
		}
		buf = binary.LittleEndian.AppendUint32(buf, msg.RunningCRC)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(msg.Payload)))
		buf = append(buf, msg.Payload...)
		return buf, nil
	case TransferChunkResponse:
		return append(buf, statusByte(msg.Accepted)), nil
	case ProgramFlowRequest:
		return append(buf, boolByte(msg.Stop), msg.Slot), nil
	case ProgramFlowResponse:
		return append(buf, statusByte(msg.Accepted)), nil
	case ConsoleNotification:
		return append(buf, msg.Text...), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
}

// Deserialize decodes a wire payload, dispatching on the leading type id.
func Deserialize(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	id, body := ID(data[0]), data[1:]
	switch id {
	case IDInfoRequest:
		return InfoRequest{}, nil
	case IDInfoResponse:
		if len(body) != 10 {
			return nil, fmt.Errorf("%w: info response is %d bytes, want 10", ErrMalformed, len(body))
		}
		return InfoResponse{
			Version:       binary.LittleEndian.Uint16(body[0:2]),
			Capabilities:  binary.LittleEndian.Uint32(body[2:6]),
			MaxPacketSize: binary.LittleEndian.Uint16(body[6:8]),
			MaxChunkSize:  binary.LittleEndian.Uint16(body[8:10]),
		}, nil
	case IDClearSlotRequest:
		if len(body) != 1 {
			return nil, fmt.Errorf("%w: clear slot request", ErrMalformed)
		}
		return ClearSlotRequest{Slot: body[0]}, nil
	case IDClearSlotResponse:
		return decodeStatus(body, func(ok bool) Message { return ClearSlotResponse{Accepted: ok} })
	case IDStartFileUploadRequest:
		nul := bytes.IndexByte(body, 0)
		if nul < 0 || nul > MaxFileNameLen || len(body) != nul+1+1+4 {
			return nil, fmt.Errorf("%w: start file upload request", ErrMalformed)
		}
		return StartFileUploadRequest{
			Name: string(body[:nul]),
			Slot: body[nul+1],
			CRC:  binary.LittleEndian.Uint32(body[nul+2:]),
		}, nil
	case IDStartFileUploadResponse:
		return decodeStatus(body, func(ok bool) Message { return StartFileUploadResponse{Accepted: ok} })
	case IDTransferChunkRequest:
		if len(body) < 6 {
			return nil, fmt.Errorf("%w: transfer chunk request", ErrMalformed)
		}
		size := int(binary.LittleEndian.Uint16(body[4:6]))
		if len(body) != 6+size {
			return nil, fmt.Errorf("%w: chunk size %d, payload %d", ErrMalformed, size, len(body)-6)
		}
		payload := make([]byte, size)
		copy(payload, body[6:])
		return TransferChunkRequest{
			RunningCRC: binary.LittleEndian.Uint32(body[0:4]),
			Payload:    payload,
		}, nil
	case IDTransferChunkResponse:
		return decodeStatus(body, func(ok bool) Message { return TransferChunkResponse{Accepted: ok} })
	case IDProgramFlowRequest:
		if len(body) != 2 {
			return nil, fmt.Errorf("%w: program flow request", ErrMalformed)
		}
		return ProgramFlowRequest{Stop: body[0] != 0, Slot: body[1]}, nil
	case IDProgramFlowResponse:
		return decodeStatus(body, func(ok bool) Message { return ProgramFlowResponse{Accepted: ok} })
	case IDConsoleNotification:
		return ConsoleNotification{Text: string(body)}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, byte(id))
	}
}

func decodeStatus(body []byte, build func(bool) Message) (Message, error) {
	if len(body) != 1 {
		return nil, fmt.Errorf("%w: status response is %d bytes, want 1", ErrMalformed, len(body))
	}
	return build(body[0] == statusAck), nil
}

func statusByte(accepted bool) byte {
	if accepted {
		return statusAck
	}
	return 0xFF
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
