package bolt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// maxChunkSize is the largest payload a single chunk can carry; larger
// messages are split across multiple chunks by chunkWriter.
const maxChunkSize = 0xFFFF

// chunkWriter splits a message into u16-length-prefixed chunks terminated
// by a single zero-length chunk, per spec.md §4.6. Chunking is orthogonal
// to PackStream: this layer never looks at message contents.
type chunkWriter struct {
	w io.Writer
}

func newChunkWriter(w io.Writer) *chunkWriter { return &chunkWriter{w: w} }

// WriteMessage writes msg as one or more length-prefixed chunks followed
// by a zero-length terminator chunk.
func (c *chunkWriter) WriteMessage(msg []byte) error {
	for len(msg) > 0 {
		n := len(msg)
		if n > maxChunkSize {
			n = maxChunkSize
		}
		if err := c.writeChunk(msg[:n]); err != nil {
			return err
		}
		msg = msg[n:]
	}
	return c.writeChunk(nil)
}

func (c *chunkWriter) writeChunk(payload []byte) error {
	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(payload)))
	if _, err := c.w.Write(header[:]); err != nil {
		return fmt.Errorf("bolt: writing chunk header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := c.w.Write(payload); err != nil {
		return fmt.Errorf("bolt: writing chunk payload: %w", err)
	}
	return nil
}

// chunkReader reassembles chunks into complete message byte sequences.
type chunkReader struct {
	r io.Reader
}

func newChunkReader(r io.Reader) *chunkReader { return &chunkReader{r: r} }

// ReadMessage reads chunks until a zero-length terminator and returns the
// concatenated message bytes.
func (c *chunkReader) ReadMessage() ([]byte, error) {
	var buf bytes.Buffer
	for {
		var header [2]byte
		if _, err := io.ReadFull(c.r, header[:]); err != nil {
			return nil, fmt.Errorf("bolt: reading chunk header: %w", err)
		}
		size := binary.BigEndian.Uint16(header[:])
		if size == 0 {
			return buf.Bytes(), nil
		}
		n, err := io.CopyN(&buf, c.r, int64(size))
		if err != nil || n != int64(size) {
			return nil, fmt.Errorf("bolt: reading chunk payload (%d bytes): %w", size, err)
		}
	}
}
