package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/danderson/finn"
	"go.uber.org/zap"
)

// DefaultMaxMessageSize is the largest message a Conn accepts, unless
// configured otherwise.
const DefaultMaxMessageSize = 16 << 20

// ErrMessageTooLarge is returned for messages that exceed a Conn's
// maximum message size.
var ErrMessageTooLarge = errors.New("message too large")

// A Message is one FINN payload received from a Conn.
type Message struct {
	Header finn.Header
	// Payload is the complete serialized payload, header included.
	Payload []byte
}

// Conn exchanges whole FINN payloads over a Transport.
//
// Concurrent reads and concurrent writes are safe, though the order
// of concurrently written messages is unspecified.
type Conn struct {
	t Transport

	// MaxMessageSize bounds the size of payloads in either direction.
	// If zero, DefaultMaxMessageSize is used.
	MaxMessageSize int
	// Recorder, if not nil, records every message sent and received.
	Recorder *Recorder

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewConn returns a Conn that runs over t.
func NewConn(t Transport) *Conn {
	return &Conn{t: t}
}

// Dial connects to the FINN endpoint at the given Unix socket path.
func Dial(ctx context.Context, path string) (*Conn, error) {
	t, err := DialUnix(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("connecting to %q: %w", path, err)
	}
	return NewConn(t), nil
}

// Close closes the underlying transport.
func (c *Conn) Close() error {
	return c.t.Close()
}

// PeerIsKernel reports whether the peer runs with kernel privileges.
func (c *Conn) PeerIsKernel() (bool, error) {
	return c.t.PeerIsKernel()
}

// Files returns n files received alongside earlier messages.
func (c *Conn) Files(n int) ([]*os.File, error) {
	return c.t.GetFiles(n)
}

func (c *Conn) maxSize() int {
	if c.MaxMessageSize > 0 {
		return c.MaxMessageSize
	}
	return DefaultMaxMessageSize
}

// checkHeader checks that h describes a payload Conn may carry.
func (c *Conn) checkHeader(h *finn.Header) error {
	if err := h.Valid(math.MaxInt); err != nil {
		return err
	}
	if h.PayloadSize > uint64(c.maxSize()) {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, h.PayloadSize, c.maxSize())
	}
	return nil
}

// WriteMessage writes one serialized payload, optionally with files
// attached.
func (c *Conn) WriteMessage(payload []byte, files ...*os.File) error {
	h, err := finn.ParseHeader(payload)
	if err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := c.checkHeader(&h); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if h.PayloadSize != uint64(len(payload)) {
		return fmt.Errorf("writing message: header declares %d bytes, payload has %d", h.PayloadSize, len(payload))
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.t.WriteWithFiles(payload, files); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if c.Recorder != nil {
		if err := c.Recorder.Record(Sent, payload); err != nil {
			zap.L().Warn("transport: recording sent message", zap.Error(err))
		}
	}
	return nil
}

// ReadMessage reads the next payload.
//
// ReadMessage returns io.EOF if the peer closed the connection
// cleanly between messages.
func (c *Conn) ReadMessage() (*Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	var hdr [finn.HeaderSize]byte
	if _, err := io.ReadFull(c.t, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading message header: %w", err)
	}
	h, err := finn.ParseHeader(hdr[:])
	if err != nil {
		return nil, fmt.Errorf("reading message header: %w", err)
	}
	if err := c.checkHeader(&h); err != nil {
		return nil, fmt.Errorf("reading message header: %w", err)
	}

	payload := make([]byte, h.PayloadSize)
	copy(payload, hdr[:])
	if _, err := io.ReadFull(c.t, payload[finn.HeaderSize:]); err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}
	zap.L().Debug("transport: received message",
		zap.Uint64("interface", h.Interface),
		zap.Uint64("message", h.Message),
		zap.Uint64("size", h.PayloadSize))
	if c.Recorder != nil {
		if err := c.Recorder.Record(Received, payload); err != nil {
			zap.L().Warn("transport: recording received message", zap.Error(err))
		}
	}
	return &Message{
		Header:  h,
		Payload: payload,
	}, nil
}

// Decode deserializes m into a new parameter block of the type
// registered for m's interface and message. Byte buffers in the
// result alias m.Payload.
func (m *Message) Decode() (any, error) {
	ret, err := finn.New(m.Header.Interface, m.Header.Message)
	if err != nil {
		return nil, err
	}
	if _, err := finn.DeserializeDown(m.Payload, ret); err != nil {
		return nil, err
	}
	return ret, nil
}
