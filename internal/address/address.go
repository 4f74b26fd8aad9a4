package address

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// ErrMalformed is returned when text is not a dotted-decimal IPv4 address.
var ErrMalformed = errors.New("malformed IPv4 address")

// Address is an IPv4 address as four ordered octets.
type Address [4]byte

// FromOctets builds an address from four integer octets. It reports false
// when any octet falls outside 0-255.
func FromOctets(octets [4]int) (Address, bool) {
	var a Address
	for i, v := range octets {
		if v < 0 || v > 255 {
			return Address{}, false
		}
		a[i] = byte(v)
	}
	return a, true
}

// Assemble parses four octet fields as typed by a user. Empty, partial,
// non-numeric or out of range fields yield false.
func Assemble(fields [4]string) (Address, bool) {
	var octets [4]int
	for i, field := range fields {
		v, err := strconv.Atoi(field)
		if err != nil {
			return Address{}, false
		}
		octets[i] = v
	}
	return FromOctets(octets)
}

// Disassemble renders the address as four decimal fields for redisplay.
func Disassemble(a Address) [4]string {
	var fields [4]string
	for i, b := range a {
		fields[i] = strconv.Itoa(int(b))
	}
	return fields
}

// Parse reads the canonical dotted-decimal form. Each part must be a plain
// decimal number in range; signs and surrounding spaces are rejected.
func Parse(s string) (Address, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return Address{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	var fields [4]string
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return Address{}, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
		fields[i] = p
	}
	a, ok := Assemble(fields)
	if !ok {
		return Address{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return a, nil
}

// String returns the octets joined by ".".
func (a Address) String() string {
	fields := Disassemble(a)
	return strings.Join(fields[:], ".")
}

// Netip converts the address to a netip.Addr.
func (a Address) Netip() netip.Addr {
	return netip.AddrFrom4(a)
}

// UDPAddr returns the UDP endpoint of the address on the given port.
func (a Address) UDPAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(a[0], a[1], a[2], a[3]), Port: port}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
