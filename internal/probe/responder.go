package probe

import (
	"errors"
	"fmt"
	"log"
	"net"
)

// Responder echoes every datagram back to its sender. It is the
// cooperating peer a probe needs on the target host.
type Responder struct {
	conn *net.UDPConn
}

// Listen binds a responder to addr, e.g. ":7" or "127.0.0.1:0".
func Listen(addr string) (*Responder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &Responder{conn: conn}, nil
}

// Addr returns the bound address.
func (r *Responder) Addr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Serve echoes datagrams until Close is called. It returns nil after Close.
func (r *Responder) Serve() error {
	buf := make([]byte, 64*1024)
	for {
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("echo receive: %w", err)
		}
		if _, err := r.conn.WriteToUDP(buf[:n], from); err != nil {
			log.Printf("echo reply to %s: %v", from, err)
		}
	}
}

// Close stops Serve and releases the socket.
func (r *Responder) Close() error {
	return r.conn.Close()
}
