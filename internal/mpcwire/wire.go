package mpcwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic identifies a Torua MPC engine frame. The value spells "MPCE" read
// most-significant byte first; encoded little-endian on the wire its bytes
// are "ECPM".
const Magic uint32 = 0x4D504345

// Version is the only wire version this codec understands.
const Version uint16 = 0x0001

// MaxBodySize bounds a single frame's body per spec.md §3.
const MaxBodySize uint32 = 1024 * 1024

// HeaderSize is the fixed, packed, little-endian header length in bytes.
const HeaderSize = 4 + 2 + 2 + 4 + 4 + 8 + 8

// MessageType discriminates the body of a Coordinator<->Node frame.
type MessageType uint16

// Message types understood by the node wire router. New phases are added
// here, never by repurposing an existing value.
const (
	MessageTypePing MessageType = iota
	MessageTypeKeyGenPhase1
	MessageTypeKeyGenPhase2
	MessageTypeKeyGenPhase3
	MessageTypeKeyGenPhase4
	MessageTypeKeyGenPhase5
	MessageTypeECDSAPhase1
	MessageTypeECDSAPhase2
	MessageTypeECDSAPhase3
	MessageTypeECDSAPhase4
	MessageTypeECDSAPhase5
	MessageTypeEdDSAPhase1
	MessageTypeEdDSAPhase2
	MessageTypeEdDSAPhase3
	MessageTypeEdDSAPhase4
	MessageTypeEdDSAPhase5
	maxMessageType // sentinel, always last
)

// IsValid reports whether t is within the router's dispatch range.
func (t MessageType) IsValid() bool {
	return t < maxMessageType
}

// ValidationResult classifies the outcome of validating a frame, mirroring
// the taxonomy spec.md §4.3/§8 requires.
type ValidationResult uint8

const (
	OK ValidationResult = iota
	InvalidMagic
	InvalidVersion
	BodyTooLarge
	BodySizeMismatch
	InvalidMessageType
	ChecksumMismatch
	CorruptedData
)

func (v ValidationResult) String() string {
	switch v {
	case OK:
		return "OK"
	case InvalidMagic:
		return "invalid magic number"
	case InvalidVersion:
		return "invalid version"
	case BodyTooLarge:
		return "body too large"
	case BodySizeMismatch:
		return "body size mismatch"
	case InvalidMessageType:
		return "invalid message type"
	case ChecksumMismatch:
		return "checksum mismatch"
	case CorruptedData:
		return "corrupted data"
	default:
		return "unknown validation result"
	}
}

// Header is the fixed 32-byte frame header. Field order and widths are
// byte-exact with spec.md §3: magic, version, message_type, body_length,
// checksum, timestamp, request_id, all little-endian.
type Header struct {
	Magic       uint32
	Version     uint16
	MessageType MessageType
	BodyLength  uint32
	Checksum    uint32
	Timestamp   uint64
	RequestID   uint64
}

// ValidateBasic checks the fields a header can validate on its own, before
// the body has been read.
func (h Header) ValidateBasic() ValidationResult {
	if h.Magic != Magic {
		return InvalidMagic
	}
	if h.Version != Version {
		return InvalidVersion
	}
	if h.BodyLength > MaxBodySize {
		return BodyTooLarge
	}
	return OK
}

// Message is a decoded frame: header plus body.
type Message struct {
	Header Header
	Body   []byte
}

// NewMessage builds a frame for type with the given body, computing
// BodyLength and Checksum. Timestamp and RequestID are left for the caller
// to set (the coordinator client assigns RequestID; callers that don't
// demultiplex responses, like the node's unsolicited pushes, may leave it
// zero).
func NewMessage(t MessageType, body []byte) Message {
	return Message{
		Header: Header{
			Magic:       Magic,
			Version:     Version,
			MessageType: t,
			BodyLength:  uint32(len(body)),
			Checksum:    Checksum(body),
		},
		Body: body,
	}
}

// Checksum computes the XOR-of-little-endian-4-byte-chunks checksum of
// data, zero-extending a trailing partial chunk. This is not a
// cryptographic checksum — spec.md §9 notes it exists only to catch silent
// corruption under TLS, not to defend against a malicious peer.
func Checksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		var chunk [4]byte
		copy(chunk[:], data[i:])
		sum ^= binary.LittleEndian.Uint32(chunk[:])
	}
	return sum
}

// Validate runs the full frame validation spec.md §4.3 describes: header
// fields, message type range, body length agreement, and checksum.
func (m Message) Validate() ValidationResult {
	if r := m.Header.ValidateBasic(); r != OK {
		return r
	}
	if !m.Header.MessageType.IsValid() {
		return InvalidMessageType
	}
	if uint32(len(m.Body)) != m.Header.BodyLength {
		return BodySizeMismatch
	}
	if Checksum(m.Body) != m.Header.Checksum {
		return ChecksumMismatch
	}
	return OK
}

// EncodeHeader packs h into its 32-byte wire form.
func EncodeHeader(h Header) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.MessageType))
	binary.LittleEndian.PutUint32(buf[8:12], h.BodyLength)
	binary.LittleEndian.PutUint32(buf[12:16], h.Checksum)
	binary.LittleEndian.PutUint64(buf[16:24], h.Timestamp)
	binary.LittleEndian.PutUint64(buf[24:32], h.RequestID)
	return buf
}

// DecodeHeader unpacks a 32-byte wire header. The caller must still call
// ValidateBasic (and, once the body is read, Message.Validate) — decoding
// never itself rejects malformed fields.
func DecodeHeader(buf [HeaderSize]byte) Header {
	return Header{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint16(buf[4:6]),
		MessageType: MessageType(binary.LittleEndian.Uint16(buf[6:8])),
		BodyLength:  binary.LittleEndian.Uint32(buf[8:12]),
		Checksum:    binary.LittleEndian.Uint32(buf[12:16]),
		Timestamp:   binary.LittleEndian.Uint64(buf[16:24]),
		RequestID:   binary.LittleEndian.Uint64(buf[24:32]),
	}
}

// Encode writes m's header followed by its body to w.
func Encode(w io.Writer, m Message) error {
	hdr := EncodeHeader(m.Header)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("mpcwire: write header: %w", err)
	}
	if len(m.Body) > 0 {
		if _, err := w.Write(m.Body); err != nil {
			return fmt.Errorf("mpcwire: write body: %w", err)
		}
	}
	return nil
}

// Decode reads one frame from r: exactly HeaderSize bytes, then exactly
// BodyLength bytes once the header passes basic validation. It returns the
// decoded message and its ValidationResult; on any non-OK result the
// caller (not this function) is responsible for closing the connection per
// spec.md §4.3.
func Decode(r io.Reader) (Message, ValidationResult, error) {
	var hdrBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return Message{}, CorruptedData, err
	}
	hdr := DecodeHeader(hdrBuf)

	if r := hdr.ValidateBasic(); r != OK {
		return Message{Header: hdr}, r, nil
	}
	if !hdr.MessageType.IsValid() {
		return Message{Header: hdr}, InvalidMessageType, nil
	}

	body := make([]byte, hdr.BodyLength)
	if hdr.BodyLength > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Message{Header: hdr}, CorruptedData, err
		}
	}

	msg := Message{Header: hdr, Body: body}
	if r := msg.Validate(); r != OK {
		return msg, r, nil
	}
	return msg, OK, nil
}
