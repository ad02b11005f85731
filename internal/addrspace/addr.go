package addrspace

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// ErrInvalidRange is returned when a range bound or expression is not a valid
// IPv4 address range. It is a configuration error and aborts a scan before any
// work begins.
var ErrInvalidRange = errors.New("invalid IPv4 range")

// Range is an inclusive IPv4 range encoded as unsigned 32-bit integers.
type Range struct {
	Start uint32
	End   uint32
}

// FullRange covers the whole IPv4 space, 0.0.0.0 to 255.255.255.255.
func FullRange() Range {
	return Range{Start: 0, End: ^uint32(0)}
}

// Size returns the number of addresses in the range. It needs 64 bits since
// the full space holds 2^32 addresses.
func (r Range) Size() uint64 {
	return uint64(r.End) - uint64(r.Start) + 1
}

// Contains reports whether n lies within [Start, End].
func (r Range) Contains(n uint32) bool {
	return n >= r.Start && n <= r.End
}

func (r Range) String() string {
	return FormatAddr(r.Start) + "-" + FormatAddr(r.End)
}

// ParseAddr converts a dotted-quad IPv4 address to its big-endian integer form.
func ParseAddr(s string) (uint32, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidRange, s, err)
	}
	if !addr.Is4() {
		return 0, fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidRange, s)
	}
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// FormatAddr converts an integer back to dotted-quad notation.
func FormatAddr(n uint32) string {
	return netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}).String()
}

// ParseRange builds a Range from explicit start and end bounds.
func ParseRange(start, end string) (Range, error) {
	s, err := ParseAddr(start)
	if err != nil {
		return Range{}, err
	}
	e, err := ParseAddr(end)
	if err != nil {
		return Range{}, err
	}
	if s > e {
		return Range{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, start, end)
	}
	return Range{Start: s, End: e}, nil
}

// ParseExpression parses a combined range expression. Accepted forms are
// "a.b.c.d-e.f.g.h", a CIDR prefix such as "10.0.0.0/8", or a single address.
func ParseExpression(expr string) (Range, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Range{}, fmt.Errorf("%w: empty expression", ErrInvalidRange)
	}

	var ipr netipx.IPRange
	switch {
	case strings.Contains(expr, "/"):
		prefix, err := netip.ParsePrefix(expr)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %q: %v", ErrInvalidRange, expr, err)
		}
		ipr = netipx.RangeOfPrefix(prefix.Masked())
	case strings.Contains(expr, "-"):
		parsed, err := netipx.ParseIPRange(expr)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %q: %v", ErrInvalidRange, expr, err)
		}
		ipr = parsed
	default:
		return ParseRange(expr, expr)
	}

	if !ipr.IsValid() || !ipr.From().Is4() || !ipr.To().Is4() {
		return Range{}, fmt.Errorf("%w: %q is not an IPv4 range", ErrInvalidRange, expr)
	}
	return ParseRange(ipr.From().String(), ipr.To().String())
}
