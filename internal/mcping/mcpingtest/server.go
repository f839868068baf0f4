// Package mcpingtest provides an in-process Server List Ping responder for
// tests and local smoke runs.
package mcpingtest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/9-FS/minecraft-server-status/internal/mcping"
)

// Behavior selects how the server answers a status request.
type Behavior int

const (
	// Respond sends the configured status JSON.
	Respond Behavior = iota
	// HangUp closes the connection after reading the request without answering.
	HangUp
	// Garbage answers with bytes that are not a valid packet.
	Garbage
	// WrongPacket answers with a packet id other than 0x00.
	WrongPacket
	// Stall reads the request and never answers.
	Stall
)

// Handshake is a decoded handshake packet as received by the server.
type Handshake struct {
	Protocol  int32
	Host      string
	Port      uint16
	NextState int32
}

// Server is a minimal status responder bound to a TCP listener.
type Server struct {
	ln   net.Listener
	done chan struct{}
	wg   sync.WaitGroup

	mu         sync.Mutex
	status     string
	behavior   Behavior
	handshakes []Handshake
}

// Listen starts a server on addr ("127.0.0.1:0" picks a free port).
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mcpingtest: listen %s: %w", addr, err)
	}
	s := &Server{
		ln:     ln,
		done:   make(chan struct{}),
		status: `{"version":{"name":"1.21","protocol":767},"players":{"max":20,"online":0},"description":"test"}`,
	}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Players is a convenience for building a status JSON document.
func Players(online, maxPlayers int, names ...string) string {
	type player struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	}
	doc := map[string]any{
		"version":     map[string]any{"name": "1.21", "protocol": 767},
		"description": map[string]any{"text": "A Minecraft Server"},
	}
	players := map[string]any{"max": maxPlayers, "online": online}
	if len(names) > 0 {
		sample := make([]player, len(names))
		for i, n := range names {
			sample[i] = player{Name: n, ID: fmt.Sprintf("00000000-0000-0000-0000-%012d", i)}
		}
		players["sample"] = sample
	}
	doc["players"] = players
	b, _ := json.Marshal(doc)
	return string(b)
}

// SetStatus replaces the JSON document sent to clients.
func (s *Server) SetStatus(doc string) {
	s.mu.Lock()
	s.status = doc
	s.mu.Unlock()
}

// SetBehavior switches how subsequent connections are answered.
func (s *Server) SetBehavior(b Behavior) {
	s.mu.Lock()
	s.behavior = b
	s.mu.Unlock()
}

// Handshakes returns a copy of every handshake received so far.
func (s *Server) Handshakes() []Handshake {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Handshake(nil), s.handshakes...)
}

// Addr returns the listener address as "host:port".
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Host returns the listener IP.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listener port.
func (s *Server) Port() uint16 {
	_, p, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.ParseUint(p, 10, 16)
	return uint16(n)
}

// Close stops accepting, releases stalled connections and waits for all
// handlers to return.
func (s *Server) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	r := bufio.NewReader(conn)

	id, payload, err := mcping.ReadPacket(r)
	if err != nil || id != 0x00 {
		return
	}
	hs, err := decodeHandshake(payload)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.handshakes = append(s.handshakes, hs)
	behavior := s.behavior
	status := s.status
	s.mu.Unlock()

	if hs.NextState != 1 {
		return
	}

	if id, _, err := mcping.ReadPacket(r); err != nil || id != 0x00 {
		return
	}

	switch behavior {
	case HangUp:
		return
	case Garbage:
		_, _ = conn.Write([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
		return
	case WrongPacket:
		_ = mcping.WritePacket(conn, 0x05, mcping.AppendString(nil, status))
		return
	case Stall:
		<-s.done
		return
	}

	if err := mcping.WritePacket(conn, 0x00, mcping.AppendString(nil, status)); err != nil {
		return
	}

	// Echo an optional ping, then let the client hang up.
	id, payload, err = mcping.ReadPacket(r)
	if err != nil || id != 0x01 {
		return
	}
	_ = mcping.WritePacket(conn, 0x01, payload)
}

func decodeHandshake(payload []byte) (Handshake, error) {
	var hs Handshake
	br := bytes.NewReader(payload)
	var err error
	if hs.Protocol, err = mcping.ReadVarInt(br); err != nil {
		return hs, err
	}
	if hs.Host, err = mcping.ReadString(br); err != nil {
		return hs, err
	}
	var port [2]byte
	if _, err := io.ReadFull(br, port[:]); err != nil {
		return hs, err
	}
	hs.Port = binary.BigEndian.Uint16(port[:])
	if hs.NextState, err = mcping.ReadVarInt(br); err != nil {
		return hs, err
	}
	return hs, nil
}
