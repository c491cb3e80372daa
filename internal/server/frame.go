package server

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/zeusync/envsim/internal/core/world"
	"github.com/zeusync/envsim/pkg/generic"
)

const FrameSnapshot = "snapshot"

// Frame is the message streamed to view clients.
type Frame struct {
	Type     string          `json:"type"`
	Tick     uint64          `json:"tick"`
	Digest   uint64          `json:"digest"`
	Snapshot *world.Snapshot `json:"snapshot"`
}

type frameEncoder struct {
	buffers *generic.Pool[*bytes.Buffer]
}

func newFrameEncoder() *frameEncoder {
	return &frameEncoder{
		buffers: generic.NewPool(
			func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 4096)) },
			func(b *bytes.Buffer) { b.Reset() },
		),
	}
}

// encode returns a JSON frame for snap. The result is owned by the caller.
func (e *frameEncoder) encode(snap *world.Snapshot) ([]byte, error) {
	buf := e.buffers.Get()
	defer e.buffers.Put(buf)

	frame := Frame{Type: FrameSnapshot, Tick: snap.Tick, Digest: snap.Digest(), Snapshot: snap}
	if err := json.NewEncoder(buf).Encode(frame); err != nil {
		return nil, err
	}
	return bytes.Clone(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// WriteFrame writes payload with a 4-byte big-endian length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed payload of at most limit bytes.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if limit > 0 && int(n) > limit {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
