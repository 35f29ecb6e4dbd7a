package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeAppendsDelimiter(t *testing.T) {
	got := Encode([]byte{0x41, 0x42})
	want := []byte{0x41, 0x42, EndByte}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = %x, want %x", got, want)
	}
}

func TestEncodeEscapesReservedBytes(t *testing.T) {
	got := Encode([]byte{StartByte, EndByte, EscapeByte})
	want := []byte{
		EscapeByte, StartByte ^ 0x20,
		EscapeByte, EndByte ^ 0x20,
		EscapeByte, EscapeByte ^ 0x20,
		EndByte,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode(reserved) = %x, want %x", got, want)
	}
}

func TestEncodedFrameHasNoBareReservedBytes(t *testing.T) {
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	encoded := Encode(payload)
	body := encoded[:len(encoded)-1]
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case EscapeByte:
			i++ // escaped byte may be anything non-reserved
		case StartByte, EndByte:
			t.Fatalf("bare reserved byte 0x%02x at offset %d", body[i], i)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0x00},
		{StartByte},
		{EndByte},
		{EscapeByte},
		{StartByte, EndByte, EscapeByte, StartByte},
		[]byte("print('DONE:3')"),
	}
	// All 256 byte values, repeated past a typical chunk size.
	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i)
	}
	cases = append(cases, big)

	for _, payload := range cases {
		got, err := Decode(Encode(payload))
		if err != nil {
			t.Fatalf("Decode(Encode(%x)) error = %v", payload, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("round trip mismatch: got %x, want %x", got, payload)
		}
	}
}

func TestDecodeAcceptsLeadingStartMarker(t *testing.T) {
	payload := []byte{0x0C, 0x41}
	framed := append([]byte{StartByte}, Encode(payload)...)
	got, err := Decode(framed)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Decode() = %x, want %x", got, payload)
	}
}

func TestDecodeTruncated(t *testing.T) {
	for _, data := range [][]byte{nil, {}, {0x41}, {0x41, 0x42}} {
		if _, err := Decode(data); !errors.Is(err, ErrTruncated) {
			t.Errorf("Decode(%x) error = %v, want ErrTruncated", data, err)
		}
	}
}

func TestDecodeInvalidEscape(t *testing.T) {
	cases := [][]byte{
		{EscapeByte, 0x41, EndByte},      // resolves to 0x61, not reserved
		{0x41, EscapeByte, EndByte},      // dangling escape before delimiter
		{0x41, StartByte, 0x42, EndByte}, // bare start marker inside body
	}
	for _, data := range cases {
		if _, err := Decode(data); !errors.Is(err, ErrInvalidEscape) {
			t.Errorf("Decode(%x) error = %v, want ErrInvalidEscape", data, err)
		}
	}
}

func TestCRCChunkingEquivalence(t *testing.T) {
	data := make([]byte, 1500)
	for i := range data {
		data[i] = byte(i * 7)
	}
	whole := ChecksumCRC(data)

	for _, chunkSize := range []int{1, 13, 512, 1499, 1500, 4000} {
		running := uint32(0)
		for i := 0; i < len(data); i += chunkSize {
			end := i + chunkSize
			if end > len(data) {
				end = len(data)
			}
			running = UpdateCRC(running, data[i:end])
		}
		if running != whole {
			t.Errorf("chunkSize %d: folded crc = %08x, want %08x", chunkSize, running, whole)
		}
	}
}

func TestCRCEmpty(t *testing.T) {
	if got := ChecksumCRC(nil); got != 0 {
		t.Errorf("ChecksumCRC(nil) = %08x, want 0", got)
	}
	if got := UpdateCRC(0, nil); got != 0 {
		t.Errorf("UpdateCRC(0, nil) = %08x, want 0", got)
	}
}
