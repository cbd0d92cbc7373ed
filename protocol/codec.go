package protocol

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// ErrStringTooLong is returned when a string exceeds the length prefix's range.
var ErrStringTooLong = errors.New("protocol: string exceeds length prefix range")

// Writer accumulates a single outbound message body in little-endian byte
// order: a MessageCode byte followed by positional fields. Strings are
// length-prefixed with a u8 (WriteString8, up to 255 bytes) or a u16
// (WriteString16, up to 65535 bytes), whichever the caller picks for the
// field; raw byte fields carry no length and run to the end of the message.
type Writer struct {
	buf []byte
}

// NewWriter starts a message with the given code as its first byte.
func NewWriter(code MessageCode) *Writer {
	return &Writer{buf: []byte{byte(code)}}
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteByte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

func (w *Writer) WriteUint32(v uint32) *Writer {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

func (w *Writer) WriteUint64(v uint64) *Writer {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

// WriteString8 writes a length-prefixed string with a u8 length (<=255 bytes).
func (w *Writer) WriteString8(s string) *Writer {
	if len(s) > math.MaxUint8 {
		panic(ErrStringTooLong)
	}
	w.buf = append(w.buf, byte(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// WriteString16 writes a length-prefixed string with a u16 length (<=65535 bytes).
func (w *Writer) WriteString16(s string) *Writer {
	if len(s) > math.MaxUint16 {
		panic(ErrStringTooLong)
	}
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(s)))
	w.buf = append(w.buf, tmp[:]...)
	w.buf = append(w.buf, s...)
	return w
}

// WriteBytes8 writes a length-prefixed byte string with a u8 length, used for
// fixed-size hash fields (str8 hash in the wire tables).
func (w *Writer) WriteBytes8(b []byte) *Writer {
	if len(b) > math.MaxUint8 {
		panic(ErrStringTooLong)
	}
	w.buf = append(w.buf, byte(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

// WriteRaw appends bytes with no length prefix; only valid as the last field
// of a message (sendFileData's "raw bytes to end of message").
func (w *Writer) WriteRaw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// WriteFixed appends exactly len(b) bytes with no length prefix, for
// fields whose size is fixed by the protocol rather than carried on the
// wire (the 16-byte connect signatures).
func (w *Writer) WriteFixed(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Reader parses the positional fields of one message body (the MessageCode
// byte must already have been consumed by the caller to dispatch).
type Reader struct {
	buf    []byte
	cursor int
}

func NewReader(body []byte) *Reader {
	return &Reader{buf: body}
}

func (r *Reader) remaining() int { return len(r.buf) - r.cursor }

func (r *Reader) require(n int) error {
	if r.remaining() < n {
		return errors.Wrapf(io.ErrUnexpectedEOF, "protocol: need %d bytes, have %d", n, r.remaining())
	}
	return nil
}

func (r *Reader) ReadByte() (byte, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	b := r.buf[r.cursor]
	r.cursor++
	return b, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.cursor:])
	r.cursor += 4
	return v, nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.require(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.cursor:])
	r.cursor += 8
	return v, nil
}

func (r *Reader) ReadString8() (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if err := r.require(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.cursor : r.cursor+int(n)])
	r.cursor += int(n)
	return s, nil
}

func (r *Reader) ReadString16() (string, error) {
	if err := r.require(2); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint16(r.buf[r.cursor:])
	r.cursor += 2
	if err := r.require(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.cursor : r.cursor+int(n)])
	r.cursor += int(n)
	return s, nil
}

func (r *Reader) ReadBytes8() ([]byte, error) {
	n, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if err := r.require(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.cursor:r.cursor+int(n)])
	r.cursor += int(n)
	return out, nil
}

// ReadRaw returns every byte from the cursor to the end of the message body.
func (r *Reader) ReadRaw() []byte {
	out := r.buf[r.cursor:]
	r.cursor = len(r.buf)
	return out
}

// ReadFixed reads exactly n bytes with no length prefix (the counterpart
// of WriteFixed).
func (r *Reader) ReadFixed(n int) ([]byte, error) {
	if err := r.require(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.cursor:r.cursor+n])
	r.cursor += n
	return out, nil
}
