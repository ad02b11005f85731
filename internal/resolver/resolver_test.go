package resolver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs a UDP DNS server answering PTR queries from names.
func startServer(t *testing.T, names map[string]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(req)
			q := req.Question[0]
			if ptr, ok := names[q.Name]; ok {
				m.Answer = append(m.Answer, &dns.PTR{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 60},
					Ptr: ptr,
				})
			} else {
				m.SetRcode(req, dns.RcodeNameError)
			}
			w.WriteMsg(m)
		}),
	}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestResolver_Resolve(t *testing.T) {
	addr := startServer(t, map[string]string{
		"1.0.0.10.in-addr.arpa.": "host-one.example.",
		"2.0.0.10.in-addr.arpa.": "10.0.0.2.",
	})
	r := NewResolver(Config{Servers: []string{addr}})
	ctx := context.Background()

	t.Run("returns the PTR name without the trailing dot", func(tt *testing.T) {
		res := r.Resolve(ctx, "10.0.0.1", time.Second)
		assert.True(tt, res.Found)
		assert.Equal(tt, "host-one.example", res.Hostname)
		assert.Equal(tt, addr, res.Server)
		assert.NoError(tt, res.Err)
	})

	t.Run("an echoed address is a miss", func(tt *testing.T) {
		res := r.Resolve(ctx, "10.0.0.2", time.Second)
		assert.False(tt, res.Found)
		assert.Empty(tt, res.Hostname)
	})

	t.Run("NXDOMAIN is a miss with latency recorded", func(tt *testing.T) {
		res := r.Resolve(ctx, "10.0.0.3", time.Second)
		assert.False(tt, res.Found)
		assert.Error(tt, res.Err)
		assert.Greater(tt, res.Latency, time.Duration(0))
	})
}

func TestResolver_Timeout(t *testing.T) {
	// a socket that never answers
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	r := NewResolver(Config{Servers: []string{pc.LocalAddr().String()}})
	start := time.Now()
	res := r.Resolve(context.Background(), "10.0.0.1", 200*time.Millisecond)

	assert.False(t, res.Found)
	assert.Error(t, res.Err)
	assert.GreaterOrEqual(t, res.Latency, 150*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		ip, name string
		want     string
		found    bool
	}{
		{"1.2.3.4", "host.example.", "host.example", true},
		{"1.2.3.4", "1.2.3.4", "", false},
		{"1.2.3.4", "1.2.3.4.", "", false},
		{"1.2.3.4", "", "", false},
		{"1.2.3.4", "  ", "", false},
	}
	for _, c := range cases {
		got, found := Classify(c.ip, c.name)
		assert.Equal(t, c.want, got, c.name)
		assert.Equal(t, c.found, found, c.name)
	}
}

func TestNewResolver_DefaultsPort(t *testing.T) {
	r := NewResolver(Config{Servers: []string{"9.9.9.9"}})
	assert.Equal(t, []string{"9.9.9.9:53"}, r.Servers())
}
