package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxFrameSize bounds a single frame payload.
const DefaultMaxFrameSize = 64 * 1024

const headerSize = 4

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// FrameReader reads length-prefixed frames: a 4-byte big-endian payload
// length followed by the payload.
type FrameReader struct {
	r       *bufio.Reader
	maxSize uint32
}

func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameReader{r: bufio.NewReader(r), maxSize: uint32(maxSize)}
}

// ReadFrame returns io.EOF when the peer closed cleanly between frames and
// io.ErrUnexpectedEOF when it closed mid-frame.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(fr.r, header[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(header[:])
	if n > fr.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, fr.maxSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// FrameWriter writes length-prefixed frames. It is safe for concurrent use;
// each frame is written with a single Write call.
type FrameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

func (fw *FrameWriter) WriteFrame(payload []byte) error {
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(buf)
	return err
}

// WriteMessage encodes m and writes it as one frame.
func (fw *FrameWriter) WriteMessage(m Message) error {
	payload, err := Encode(m)
	if err != nil {
		return err
	}
	return fw.WriteFrame(payload)
}
