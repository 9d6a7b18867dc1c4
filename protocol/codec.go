package protocol

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/docker/go-units"
	"github.com/vmihailenco/msgpack/v5"
)

// LengthPrefixSize is the size of the little-endian length that precedes
// every message payload.
const LengthPrefixSize = 8

// DefaultMaxMessageSize bounds a single payload when no limit is given.
const DefaultMaxMessageSize = 16 * units.MiB

var ErrMessageTooLarge = errors.New("message exceeds size limit")

// WriteMessage encodes msg as MessagePack and writes it behind an 8-byte
// little-endian length in a single Write call.
func WriteMessage(w io.Writer, msg any) error {
	payload, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.LittleEndian.PutUint64(buf, uint64(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message and decodes it into msg. A stream
// that ends before the length prefix yields io.EOF; one that ends inside
// the frame yields io.ErrUnexpectedEOF. limit <= 0 means
// DefaultMaxMessageSize.
func ReadMessage(r io.Reader, msg any, limit int64) error {
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}

	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}

	n := binary.LittleEndian.Uint64(prefix[:])
	if n > uint64(limit) {
		return fmt.Errorf("%w: %s > %s", ErrMessageTooLarge,
			units.BytesSize(float64(n)), units.BytesSize(float64(limit)))
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}

	if err := msgpack.Unmarshal(payload, msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// ReadMessageContext is ReadMessage on a connection that gives up when ctx
// is done. r normally wraps conn (for buffering); cancellation expires
// conn's read deadline, which unblocks any pending read on r.
func ReadMessageContext(ctx context.Context, conn net.Conn, r io.Reader, msg any, limit int64) error {
	if r == nil {
		r = conn
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Unix(1, 0))
	})
	err := ReadMessage(r, msg, limit)
	if !stop() {
		// The deadline was expired by cancellation; report that instead of
		// the resulting i/o timeout.
		return ctx.Err()
	}
	return err
}
