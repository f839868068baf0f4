// Package mcping implements the client side of the Minecraft Java edition
// Server List Ping: handshake, status request and status response decoding.
package mcping

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultPort is used when neither the caller nor an SRV record names one.
	DefaultPort uint16 = 25565

	// ProtocolVersion is sent in the handshake. Servers answer status
	// requests regardless of the version a client announces.
	ProtocolVersion int32 = 47

	DefaultTimeout = 5 * time.Second

	packetHandshake int32 = 0x00
	packetStatus    int32 = 0x00
	stateStatus     int32 = 1
)

// Resolver is the subset of *net.Resolver used for SRV lookups.
type Resolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// Dialer is the subset of *net.Dialer used to open connections.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Client performs Server List Ping status requests. The zero value is usable
// and applies DefaultTimeout without SRV lookups.
type Client struct {
	Timeout   time.Duration
	SRVLookup bool
	Resolver  Resolver // nil = net.DefaultResolver
	Dialer    Dialer   // nil = &net.Dialer{}
}

// Player is one entry of the status response's player sample.
type Player struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Response is the decoded status JSON plus the measured round trip.
type Response struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int      `json:"max"`
		Online int      `json:"online"`
		Sample []Player `json:"sample"`
	} `json:"players"`
	Description json.RawMessage `json:"description,omitempty"`
	Favicon     string          `json:"favicon,omitempty"`

	// Latency is the time between sending the status request and receiving
	// the complete response.
	Latency time.Duration `json:"-"`
}

// Status connects to host:port, requests the server status and decodes the
// response. A port of 0 means "look up SRV if enabled, else DefaultPort".
// Exactly one connection is made and there are no retries.
func (c *Client) Status(ctx context.Context, host string, port uint16) (*Response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	host, port = c.resolve(ctx, host, port)
	addr := net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))

	conn, err := c.dialer().DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mcping: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// Unblock reads at once if the caller cancels.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	var hs []byte
	hs = AppendVarInt(hs, ProtocolVersion)
	hs = AppendString(hs, host)
	hs = AppendUint16(hs, port)
	hs = AppendVarInt(hs, stateStatus)
	if err := WritePacket(conn, packetHandshake, hs); err != nil {
		return nil, fmt.Errorf("mcping: write handshake to %s: %w", addr, err)
	}

	start := time.Now()
	if err := WritePacket(conn, packetStatus, nil); err != nil {
		return nil, fmt.Errorf("mcping: write status request to %s: %w", addr, err)
	}

	id, payload, err := ReadPacket(bufio.NewReader(conn))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s closed the connection before responding", ErrProtocol, addr)
		}
		return nil, fmt.Errorf("mcping: read status from %s: %w", addr, err)
	}
	latency := time.Since(start)
	if id != packetStatus {
		return nil, fmt.Errorf("%w: unexpected packet id 0x%02x from %s", ErrProtocol, id, addr)
	}

	body, err := ReadString(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("mcping: decode status from %s: %w", addr, truncated(err))
	}

	resp, err := DecodeResponse([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("mcping: decode status from %s: %w", addr, err)
	}
	resp.Latency = latency
	return resp, nil
}

// DecodeResponse parses the status JSON. Negative player counts are rejected.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: invalid status json: %v", ErrProtocol, err)
	}
	if resp.Players.Online < 0 || resp.Players.Max < 0 {
		return nil, fmt.Errorf("%w: negative player count (%d/%d)", ErrProtocol, resp.Players.Online, resp.Players.Max)
	}
	return &resp, nil
}

// resolve applies the SRV lookup and the default port. Missing SRV records
// are normal and fall back silently; other DNS failures surface later when
// dialing the plain host.
func (c *Client) resolve(ctx context.Context, host string, port uint16) (string, uint16) {
	if port != 0 {
		return host, port
	}
	if !c.SRVLookup || isIPLiteral(host) {
		return host, DefaultPort
	}

	_, records, err := c.resolver().LookupSRV(ctx, "minecraft", "tcp", host)
	if err != nil || len(records) == 0 {
		log.Debug().Err(err).Str("host", host).Msg("no srv record, using default port")
		return host, DefaultPort
	}
	srvHost := strings.TrimSuffix(records[0].Target, ".")
	log.Debug().
		Str("host", host).
		Str("srv_target", srvHost).
		Uint16("srv_port", records[0].Port).
		Msg("resolved srv record")
	return srvHost, records[0].Port
}

func (c *Client) resolver() Resolver {
	if c.Resolver != nil {
		return c.Resolver
	}
	return net.DefaultResolver
}

func (c *Client) dialer() Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return &net.Dialer{}
}

func isIPLiteral(host string) bool {
	_, err := netip.ParseAddr(host)
	return err == nil
}
