package protocol

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrBadHeader = errors.New("handshake header mismatch")
	ErrBadAck    = errors.New("handshake not acknowledged")
)

// WriteHeader writes HeaderID to w.
func WriteHeader(w io.Writer) error {
	if _, err := io.WriteString(w, HeaderID); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// ReadHeader reads HeaderIDLen bytes and checks them against HeaderID.
func ReadHeader(r io.Reader) error {
	var buf [HeaderIDLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if string(buf[:]) != HeaderID {
		return fmt.Errorf("%w: got %q", ErrBadHeader, buf[:])
	}
	return nil
}

// ReadAck reads the server's single-byte acknowledgement.
func ReadAck(r io.Reader) error {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if buf[0] != AckReady {
		return fmt.Errorf("%w: got %d", ErrBadAck, buf[0])
	}
	return nil
}
