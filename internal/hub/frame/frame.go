// Package frame implements the byte-stuffed delimiter framing used on the
// hub's BLE link. A frame carries exactly one serialized message; the three
// reserved control bytes never appear in a stuffed body except in their
// structural roles, so a receiver can find frame boundaries by scanning for
// the end delimiter alone.
package frame

import "errors"

// Reserved control bytes.
const (
	StartByte  = 0x01 // optional start-of-frame marker
	EndByte    = 0x02 // mandatory end-of-frame delimiter
	EscapeByte = 0x03 // escape marker for reserved bytes in the body

	// escapeXOR is applied to a reserved byte after the escape marker so
	// the escaped form itself contains no reserved bytes.
	escapeXOR = 0x20
)

var (
	// ErrTruncated indicates the end delimiter is missing.
	ErrTruncated = errors.New("frame: truncated frame")
	// ErrInvalidEscape indicates an escape sequence that does not resolve
	// to a reserved byte, or a bare reserved byte inside the body.
	ErrInvalidEscape = errors.New("frame: invalid escape sequence")
)

// Encode stuffs payload and appends the end delimiter. The returned frame
// contains no reserved bytes outside their structural roles.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+2)
	for _, b := range payload {
		switch b {
		case StartByte, EndByte, EscapeByte:
			out = append(out, EscapeByte, b^escapeXOR)
		default:
			out = append(out, b)
		}
	}
	return append(out, EndByte)
}

// Decode reverses Encode. It tolerates an optional leading start marker and
// requires the trailing end delimiter. A correctly encoded frame always
// round-trips to the original payload.
func Decode(data []byte) ([]byte, error) {
	if len(data) == 0 || data[len(data)-1] != EndByte {
		return nil, ErrTruncated
	}
	body := data[: len(data)-1 : len(data)-1]
	if len(body) > 0 && body[0] == StartByte {
		body = body[1:]
	}

	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case EscapeByte:
			i++
			if i >= len(body) {
				return nil, ErrInvalidEscape
			}
			b := body[i] ^ escapeXOR
			if b != StartByte && b != EndByte && b != EscapeByte {
				return nil, ErrInvalidEscape
			}
			out = append(out, b)
		case StartByte, EndByte:
			// Reserved bytes must be escaped inside the body.
			return nil, ErrInvalidEscape
		default:
			out = append(out, body[i])
		}
	}
	return out, nil
}
