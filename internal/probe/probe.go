// Package probe measures round-trip latency with a UDP echo exchange.
//
// The probe sends one 8-byte datagram carrying a monotonic timestamp
// (big-endian nanoseconds) to the echo port of the target and waits for the
// same bytes to come back. Any failure is reported as Unreachable.
package probe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"echoping/internal/address"
	"echoping/internal/models"
)

const (
	// EchoPort is the well-known UDP echo port.
	EchoPort = 7
	// PayloadSize is the size of both the request and the reply.
	PayloadSize = 8
)

var errMalformedReply = errors.New("malformed reply")

// epoch carries a monotonic clock reading; durations since it never jump
// with wall clock adjustments.
var epoch = time.Now()

func monotonicNanos() int64 {
	return int64(time.Since(epoch))
}

// Prober sends echo probes. The zero value targets EchoPort with no
// socket options.
type Prober struct {
	// Port is the destination UDP port.
	Port int
	// TTL and TOS are applied to the outgoing datagram when non-zero.
	TTL int
	TOS int
}

// New returns a prober targeting the standard echo port.
func New() *Prober {
	return &Prober{Port: EchoPort}
}

var defaultProber = New()

// Measure runs one probe with the default prober.
func Measure(ctx context.Context, target address.Address, timeout time.Duration) models.ProbeResult {
	return defaultProber.Measure(ctx, target, timeout)
}

// Measure performs a single exchange with target, waiting at most timeout
// for the reply. Cancelling ctx abandons the probe. It never retries.
func (p *Prober) Measure(ctx context.Context, target address.Address, timeout time.Duration) models.ProbeResult {
	rtt, err := p.exchange(ctx, target, timeout)
	if err != nil {
		return models.Unreachable
	}
	return models.Success(rtt)
}

func (p *Prober) exchange(ctx context.Context, target address.Address, timeout time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return 0, fmt.Errorf("open socket: %w", err)
	}
	defer conn.Close()

	if err := p.setOptions(conn); err != nil {
		return 0, fmt.Errorf("socket options: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("set deadline: %w", err)
	}
	// Pulling the deadline in unblocks the read as soon as ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	dst := target.UDPAddr(p.port())
	payload := make([]byte, PayloadSize)
	binary.BigEndian.PutUint64(payload, uint64(monotonicNanos()))
	if _, err := conn.WriteToUDP(payload, dst); err != nil {
		return 0, fmt.Errorf("send: %w", err)
	}

	// One spare byte so oversized replies are detected.
	buf := make([]byte, PayloadSize+1)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return 0, fmt.Errorf("receive: %w", err)
		}
		if !from.IP.Equal(dst.IP) || from.Port != dst.Port {
			continue
		}
		if n != PayloadSize {
			return 0, errMalformedReply
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		sent := int64(binary.BigEndian.Uint64(buf[:PayloadSize]))
		rtt := monotonicNanos() - sent
		if sent < 0 || rtt < 0 {
			return 0, errMalformedReply
		}
		return time.Duration(rtt), nil
	}
}

func (p *Prober) setOptions(conn *net.UDPConn) error {
	if p.TTL == 0 && p.TOS == 0 {
		return nil
	}
	c := ipv4.NewConn(conn)
	if p.TTL != 0 {
		if err := c.SetTTL(p.TTL); err != nil {
			return err
		}
	}
	if p.TOS != 0 {
		if err := c.SetTOS(p.TOS); err != nil {
			return err
		}
	}
	return nil
}

func (p *Prober) port() int {
	if p.Port <= 0 {
		return EchoPort
	}
	return p.Port
}
