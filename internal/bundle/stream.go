package bundle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxStringLength bounds null-terminated strings read from a bundle
const maxStringLength = 64 * 1024

var errStringTooLong = errors.New("string exceeds maximum length")

// readString reads a null-terminated string of at most maxLen bytes.
// Invalid UTF-8 is replaced rather than rejected.
func readString(r io.Reader, maxLen int) (string, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &singleByteReader{r: r}
	}

	var sb strings.Builder
	for {
		c, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
		if c == 0 {
			break
		}
		if sb.Len() >= maxLen {
			return "", errStringTooLong
		}
		sb.WriteByte(c)
	}

	return strings.ToValidUTF8(sb.String(), "\uFFFD"), nil
}

type singleByteReader struct {
	r   io.Reader
	buf [1]byte
}

func (s *singleByteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(s.r, s.buf[:]); err != nil {
		return 0, err
	}
	return s.buf[0], nil
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func writeString(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return err
	}
	_, err := w.Write([]byte{0})
	return err
}

func writeUint16(w io.Writer, v uint16) error {
	_, err := w.Write(binary.BigEndian.AppendUint16(nil, v))
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	_, err := w.Write(binary.BigEndian.AppendUint32(nil, v))
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	_, err := w.Write(binary.BigEndian.AppendUint64(nil, v))
	return err
}

// alignUp rounds pos up to the next multiple of n, n being a power of two
func alignUp(pos, n int64) int64 {
	return (pos + n - 1) &^ (n - 1)
}

func position(s io.Seeker) (int64, error) {
	return s.Seek(0, io.SeekCurrent)
}

// alignRead skips the stream forward to the next alignment boundary
func alignRead(s io.Seeker) error {
	pos, err := position(s)
	if err != nil {
		return err
	}
	_, err = s.Seek(alignUp(pos, alignment), io.SeekStart)
	return err
}

// alignWrite pads the stream with zero bytes up to the next alignment boundary
func alignWrite(w io.WriteSeeker) error {
	pos, err := position(w)
	if err != nil {
		return err
	}

	pad := alignUp(pos, alignment) - pos
	if pad == 0 {
		return nil
	}

	var zeros [alignment]byte
	_, err = w.Write(zeros[:pad])
	return err
}

// writeBuffer is an in-memory io.WriteSeeker
type writeBuffer struct {
	buf []byte
	pos int64
}

func (b *writeBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.buf)) {
		if end > int64(cap(b.buf)) {
			grown := make([]byte, end, max(end, 2*int64(cap(b.buf))))
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *writeBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.pos + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("seek: negative position %d", abs)
	}
	b.pos = abs
	return abs, nil
}

func (b *writeBuffer) Bytes() []byte {
	return b.buf
}
