package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// Result is the outcome of one reverse lookup. A miss is not an error: Found
// is false and Hostname is empty whatever the cause (timeout, NXDOMAIN,
// malformed answer or an echoed address).
type Result struct {
	IP       string
	Hostname string
	Found    bool
	Latency  time.Duration
	Server   string
	Err      error
}

// Config holds resolver configuration
type Config struct {
	// Servers are host:port DNS servers tried in order. When empty the
	// servers from ResolvConf are used, and failing that the system resolver.
	Servers    []string
	ResolvConf string
}

// Resolver performs PTR lookups
type Resolver struct {
	servers []string
	client  *dns.Client
	system  *net.Resolver
}

// NewResolver creates a new reverse resolver
func NewResolver(config Config) *Resolver {
	servers := config.Servers
	if len(servers) == 0 {
		path := config.ResolvConf
		if path == "" {
			path = "/etc/resolv.conf"
		}
		if cc, err := dns.ClientConfigFromFile(path); err == nil {
			for _, s := range cc.Servers {
				servers = append(servers, net.JoinHostPort(s, cc.Port))
			}
		} else {
			logrus.Debugf("No resolv.conf servers (%v), using system resolver", err)
		}
	}

	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		normalized = append(normalized, s)
	}

	return &Resolver{
		servers: normalized,
		client:  &dns.Client{Net: "udp"},
		system:  &net.Resolver{},
	}
}

// Servers returns the DNS servers queried, empty when the system resolver is used.
func (r *Resolver) Servers() []string {
	return append([]string(nil), r.servers...)
}

// Resolve looks up the PTR name of ip within timeout. Latency is measured
// around the whole lookup regardless of outcome.
func (r *Resolver) Resolve(ctx context.Context, ip string, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var name, server string
	var err error
	if len(r.servers) > 0 {
		name, server, err = r.lookupPTR(ctx, ip)
	} else {
		name, err = r.lookupSystem(ctx, ip)
	}
	latency := time.Since(start)

	hostname, found := Classify(ip, name)
	return Result{
		IP:       ip,
		Hostname: hostname,
		Found:    found,
		Latency:  latency,
		Server:   server,
		Err:      err,
	}
}

// Classify decides whether name is a real hit for ip. Resolvers that fail
// sometimes echo the queried address back as a name; that counts as a miss.
func Classify(ip, name string) (string, bool) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if name == "" || name == ip {
		return "", false
	}
	return name, true
}

func (r *Resolver) lookupPTR(ctx context.Context, ip string) (string, string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", "", fmt.Errorf("invalid address %q: %w", ip, err)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		if ctx.Err() != nil {
			break
		}
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil || resp == nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			return "", server, fmt.Errorf("%s: %s", server, dns.RcodeToString[resp.Rcode])
		}
		for _, answer := range resp.Answer {
			if ptr, ok := answer.(*dns.PTR); ok {
				return ptr.Ptr, server, nil
			}
		}
		return "", server, fmt.Errorf("%s: no PTR record", server)
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return "", "", fmt.Errorf("no response from any DNS server: %w", lastErr)
}

func (r *Resolver) lookupSystem(ctx context.Context, ip string) (string, error) {
	names, err := r.system.LookupAddr(ctx, ip)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no PTR record")
	}
	return names[0], nil
}
