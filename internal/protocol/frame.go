package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"unicode/utf8"

	"github.com/WillBeesOn/game-client-server/internal/byteorder"
	"github.com/WillBeesOn/game-client-server/internal/debug"
)

const (
	// ClientHeaderSize is u32 sequence number + u16 message type.
	ClientHeaderSize = 6
	// ServerHeaderSize is u16 status code + u16 message type.
	ServerHeaderSize = 4

	// MaxBodySize caps a declared body length. A peer declaring more is
	// either corrupt or hostile; the stream cannot be resynchronized and
	// the connection should be dropped.
	MaxBodySize = 64 << 10
)

var (
	ErrChecksum      = errors.New("payload checksum mismatch")
	ErrBodySize      = errors.New("declared body size exceeds available bytes")
	ErrBytesToString = errors.New("payload is not valid utf-8")
	ErrDeserialize   = errors.New("could not deserialize payload")
)

// StatusForError maps a decode failure to the status code the peer should
// see in the ProtocolError reply.
func StatusForError(err error) StatusCode {
	switch {
	case errors.Is(err, ErrChecksum), errors.Is(err, ErrBodySize):
		return StatusDataIntegrityError
	case errors.Is(err, ErrBytesToString):
		return StatusDataParseError
	case errors.Is(err, ErrDeserialize):
		return StatusMalformedBody
	default:
		return StatusUnexpectedError
	}
}

// EncodeClientHeader builds the client→server header: [u32 seq][u16 type].
func EncodeClientHeader(seq uint32, msgType MessageType) []byte {
	buf := bytes.Buffer{}
	buf.Write(byteorder.Htonl(seq))
	buf.Write(byteorder.Htons(uint16(msgType)))

	data := buf.Bytes()
	debug.Assert(len(data) == ClientHeaderSize)

	return data
}

// EncodeServerHeader builds the server→client header: [u16 status][u16 type].
func EncodeServerHeader(status StatusCode, msgType MessageType) []byte {
	buf := bytes.Buffer{}
	buf.Write(byteorder.Htons(uint16(status)))
	buf.Write(byteorder.Htons(uint16(msgType)))

	data := buf.Bytes()
	debug.Assert(len(data) == ServerHeaderSize)

	return data
}

// DecodeClientHeader splits off the client header, returning the sequence
// number, message type and remaining bytes.
func DecodeClientHeader(data []byte) (uint32, MessageType, []byte) {
	debug.Assert(len(data) >= ClientHeaderSize)

	seq := byteorder.Ntohl(data[0:4])
	msgType := MessageTypeFromWire(byteorder.Ntohs(data[4:6]))
	return seq, msgType, data[ClientHeaderSize:]
}

// DecodeServerHeader splits off the server header, returning the status code,
// message type and remaining bytes.
func DecodeServerHeader(data []byte) (StatusCode, MessageType, []byte) {
	debug.Assert(len(data) >= ServerHeaderSize)

	status := StatusCodeFromWire(byteorder.Ntohs(data[0:2]))
	msgType := MessageTypeFromWire(byteorder.Ntohs(data[2:4]))
	return status, msgType, data[ServerHeaderSize:]
}

// EncodeBody frames a payload: [u32 len][u32 crc32][len bytes]. An empty
// payload encodes as 4 zero bytes and nothing else. The checksum guards
// against a partial or corrupted read being silently misinterpreted as valid
// JSON.
func EncodeBody(payload []byte) []byte {
	if len(payload) == 0 {
		return byteorder.Htonl(0)
	}

	buf := bytes.Buffer{}
	buf.Write(byteorder.Htonl(uint32(len(payload))))
	buf.Write(byteorder.Htonl(crc32.ChecksumIEEE(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

// DecodePayload validates a framed body and extracts the payload bytes. A
// zero-length body yields nil. The length+checksum two-level framing lets a
// receiver skip a body it cannot parse without losing stream sync.
func DecodePayload(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrBodySize
	}
	size := byteorder.Ntohl(data[0:4])
	if size == 0 {
		return nil, nil
	}

	remainder := data[4:]
	if len(remainder) < 4 || uint32(len(remainder)-4) < size {
		return nil, ErrBodySize
	}
	remoteChecksum := byteorder.Ntohl(remainder[0:4])
	payload := remainder[4 : 4+size]

	if remoteChecksum != crc32.ChecksumIEEE(payload) {
		return nil, ErrChecksum
	}
	if !utf8.Valid(payload) {
		return nil, ErrBytesToString
	}
	return payload, nil
}

// DecodeJSON validates a framed body and deserializes its JSON payload
// into T.
func DecodeJSON[T any](data []byte) (T, error) {
	var out T

	payload, err := DecodePayload(data)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrDeserialize, err)
	}
	return out, nil
}

// readBody reads one framed body off the stream, returning the raw framed
// bytes (length prefix, checksum and payload) for DecodePayload to validate.
func readBody(r io.Reader) ([]byte, error) {
	sizeBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, sizeBytes); err != nil {
		return nil, fmt.Errorf("could not read body size: %w", err)
	}
	size := byteorder.Ntohl(sizeBytes)
	if size == 0 {
		return sizeBytes, nil
	}
	if size > MaxBodySize {
		return nil, fmt.Errorf("%w: declared %d, max %d", ErrBodySize, size, MaxBodySize)
	}

	rest := make([]byte, 4+size)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("could not read body: %w", err)
	}
	return append(sizeBytes, rest...), nil
}

// ClientFrame is one complete client→server wire message.
type ClientFrame struct {
	Seq  uint32
	Type MessageType
	// Body is the raw framed body (length, checksum, payload); validate
	// and extract with DecodePayload or DecodeJSON.
	Body []byte
}

// ReadClientFrame reads one complete client→server message off the stream.
// Errors are transport-fatal except ErrBodySize, which the caller may answer
// before dropping the connection.
func ReadClientFrame(r io.Reader) (*ClientFrame, error) {
	header := make([]byte, ClientHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("could not read client header: %w", err)
	}
	seq, msgType, _ := DecodeClientHeader(header)

	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	return &ClientFrame{Seq: seq, Type: msgType, Body: body}, nil
}

// ServerFrame is one complete server→client wire message.
type ServerFrame struct {
	Status StatusCode
	Type   MessageType
	Body   []byte
}

// ReadServerFrame reads one complete server→client message off the stream.
func ReadServerFrame(r io.Reader) (*ServerFrame, error) {
	header := make([]byte, ServerHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("could not read server header: %w", err)
	}
	status, msgType, _ := DecodeServerHeader(header)

	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	return &ServerFrame{Status: status, Type: msgType, Body: body}, nil
}

// MissingIDs enumerates the sequence numbers a gap spans, inclusive of both
// the expected and the received id. When received is behind expected the gap
// wraps through the top of the u32 range.
func MissingIDs(expected, received uint32) []uint32 {
	missing := []uint32{}
	if received >= expected {
		for id := expected; ; id++ {
			missing = append(missing, id)
			if id == received {
				break
			}
		}
	} else {
		for id := expected; ; id++ {
			missing = append(missing, id)
			if id == ^uint32(0) {
				break
			}
		}
		for id := uint32(0); ; id++ {
			missing = append(missing, id)
			if id == received {
				break
			}
		}
	}
	return missing
}

// NextSeq increments a sequence number, wrapping u32::MAX to 0.
func NextSeq(seq uint32) uint32 {
	if seq == ^uint32(0) {
		return 0
	}
	return seq + 1
}
