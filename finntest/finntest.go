// Package finntest provides helpers for testing code that speaks
// FINN, including an in-process FINN endpoint to run calls against.
package finntest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/danderson/finn"
	"github.com/danderson/finn/transport"
	"github.com/kr/pretty"
)

// A Request is one call received by a Server.
type Request struct {
	Header finn.Header
	// Params is the decoded parameter block, a pointer to the type
	// registered for the request's interface and message.
	Params any
	// KernelOrigin reports whether the caller runs with kernel
	// privileges.
	KernelOrigin bool
}

// A Handler runs a control call. It returns the parameter block to
// send back, usually req.Params updated in place.
type Handler func(ctx context.Context, req *Request) (any, error)

// Server is an in-process FINN endpoint for tests.
type Server struct {
	t       *testing.T
	l       *transport.Listener
	handler Handler
	log     bool

	ctx     context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	stopped chan struct{}
}

// New starts a FINN endpoint dedicated to the calling test, which
// answers calls with handler.
//
// If logTraffic is true, the server logs every call it handles using
// t.Logf.
func New(t *testing.T, handler Handler, logTraffic bool) *Server {
	l, err := transport.ListenUnix(filepath.Join(t.TempDir(), "finn.sock"))
	if err != nil {
		t.Fatalf("listening on test socket: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ret := &Server{
		t:       t,
		l:       l,
		handler: handler,
		log:     logTraffic,
		ctx:     ctx,
		stop:    cancel,
		stopped: make(chan struct{}),
	}
	t.Cleanup(ret.close)

	go func() {
		defer close(ret.stopped)
		ret.acceptLoop()
	}()

	return ret
}

func (s *Server) acceptLoop() {
	for {
		t, err := s.l.Accept(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.Printf("finntest: accept failed: %v", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(transport.NewConn(t))
		}()
	}
}

func (s *Server) serve(c *transport.Conn) {
	defer c.Close()
	context.AfterFunc(s.ctx, func() { c.Close() })

	kernel, err := c.PeerIsKernel()
	if err != nil {
		kernel = false
	}
	for {
		m, err := c.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logf("finntest: reading request: %v", err)
			}
			return
		}
		reply, err := s.handle(m, kernel)
		if err != nil {
			s.logf("finntest: handling %v: %v", m.Header, err)
			return
		}
		if err := c.WriteMessage(reply); err != nil {
			s.logf("finntest: writing reply: %v", err)
			return
		}
	}
}

func (s *Server) handle(m *transport.Message, kernel bool) ([]byte, error) {
	params, err := m.Decode()
	if err != nil {
		return nil, err
	}
	req := &Request{
		Header:       m.Header,
		Params:       params,
		KernelOrigin: kernel,
	}
	if s.log {
		s.logf("finntest: request %v\n%# v", m.Header, pretty.Formatter(params))
	}
	reply, err := s.handler(s.ctx, req)
	if err != nil {
		return nil, err
	}
	if s.log {
		s.logf("finntest: reply\n%# v", pretty.Formatter(reply))
	}
	return serialize(m.Header.Interface, m.Header.Message, reply, finn.Up)
}

func (s *Server) logf(msg string, args ...any) {
	select {
	case <-s.stopped:
		// The test may be over, t.Logf would panic.
		log.Printf(msg, args...)
	default:
		s.t.Logf(msg, args...)
	}
}

func (s *Server) close() {
	s.stop()
	s.l.Close()
	timeout := time.After(10 * time.Second)
	select {
	case <-s.stopped:
	case <-timeout:
		log.Print("finntest: timed out waiting for server to stop")
	}
	s.wg.Wait()
}

// Socket returns the path to the server's unix socket.
func (s *Server) Socket() string {
	return s.l.Path()
}

// MustConn returns a connection to the server. It causes an immediate
// test failure with t.Fatal if it is unable to connect.
func (s *Server) MustConn(t *testing.T) *transport.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ret, err := transport.Dial(ctx, s.Socket())
	if err != nil {
		t.Fatalf("connecting to test server: %v", err)
	}
	t.Cleanup(func() { ret.Close() })
	return ret
}

// Call runs the control call cmd with parameter block params over c,
// and copies the reply back into params.
//
// As with any reply, params's slices must already have room for the
// reply's buffers.
func Call(c *transport.Conn, cmd uint32, params any) error {
	iface, msg := finn.SplitCommand(cmd)
	req, err := serialize(uint64(iface), uint64(msg), params, finn.Down)
	if err != nil {
		return err
	}
	if err := c.WriteMessage(req); err != nil {
		return err
	}
	m, err := c.ReadMessage()
	if err != nil {
		return err
	}
	if m.Header.Interface != uint64(iface) || m.Header.Message != uint64(msg) {
		return fmt.Errorf("reply for %v, want interface 0x%06x message 0x%02x", m.Header, iface, msg)
	}
	if _, err := finn.DeserializeUp(m.Payload, params); err != nil {
		return err
	}
	return nil
}

func serialize(iface, msg uint64, params any, dir finn.Direction) ([]byte, error) {
	size := finn.GetSerializedSize(iface, msg, params)
	if size == 0 {
		// Serialize into a header sized buffer to get the error.
		var hdr [finn.HeaderSize]byte
		_, err := finn.Serialize(iface, msg, params, hdr[:], dir)
		if err == nil {
			err = errors.New("cannot compute payload size")
		}
		return nil, err
	}
	ret := make([]byte, size)
	if _, err := finn.Serialize(iface, msg, params, ret, dir); err != nil {
		return nil, err
	}
	return ret, nil
}

// MustSerialize returns the FINN encoding of params as the parameter
// block for cmd. It causes an immediate test failure with t.Fatal if
// serialization fails.
func MustSerialize(t testing.TB, cmd uint32, params any, dir finn.Direction) []byte {
	t.Helper()
	iface, msg := finn.SplitCommand(cmd)
	ret, err := serialize(uint64(iface), uint64(msg), params, dir)
	if err != nil {
		t.Fatalf("serializing %T: %v", params, err)
	}
	return ret
}

// RoundTrip serializes params and deserializes the result into a new
// parameter block of the same type, which it returns.
//
// Up direction replies deserialize into preallocated buffers, so
// RoundTrip sizes the new block's slices to match params before
// serializing, which may release them.
func RoundTrip(t testing.TB, cmd uint32, params any, dir finn.Direction) any {
	t.Helper()
	ret := reflect.New(reflect.TypeOf(params).Elem())
	if dir == finn.Up {
		presize(ret.Elem(), reflect.ValueOf(params).Elem())
	}
	bs := MustSerialize(t, cmd, params, dir)
	if _, err := finn.Deserialize(bs, ret.Interface(), dir); err != nil {
		t.Fatalf("deserializing %T: %v\n%s", params, err, Hexdump(bs))
	}
	return ret.Interface()
}

// presize allocates slices in dst with the same lengths as those in
// src, recursively.
func presize(dst, src reflect.Value) {
	switch src.Kind() {
	case reflect.Struct:
		for i := range src.NumField() {
			if dst.Type().Field(i).IsExported() {
				presize(dst.Field(i), src.Field(i))
			}
		}
	case reflect.Array:
		for i := range src.Len() {
			presize(dst.Index(i), src.Index(i))
		}
	case reflect.Slice:
		if src.IsNil() {
			return
		}
		dst.Set(reflect.MakeSlice(src.Type(), src.Len(), src.Len()))
		for i := range src.Len() {
			presize(dst.Index(i), src.Index(i))
		}
	case reflect.Interface:
		if src.IsNil() {
			return
		}
		v := src.Elem()
		if v.Kind() == reflect.Pointer {
			n := reflect.New(v.Type().Elem())
			presize(n.Elem(), v.Elem())
			dst.Set(n)
			return
		}
		n := reflect.New(v.Type()).Elem()
		presize(n, v)
		dst.Set(n)
	}
}

// Hexdump returns a hex dump of bs, for test failure messages.
func Hexdump(bs []byte) string {
	return hex.Dump(bs)
}
