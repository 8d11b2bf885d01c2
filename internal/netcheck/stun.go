// Package netcheck reports whether the harness can reach its nodes and how
// the controller appears from outside its NAT.
package netcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

// DefaultSTUNTimeout bounds a single server query.
const DefaultSTUNTimeout = 3 * time.Second

// ServerResult is the answer of one STUN server.
type ServerResult struct {
	Server string
	Addr   string
	RTT    time.Duration
	Err    error
}

// Mapping is the controller's public address as seen by STUN servers.
type Mapping struct {
	Addr    string
	NAT     string
	Results []ServerResult // one per queried server, in query order
}

// Probe queries each STUN server in turn for the mapped address. The address
// belongs to the probe socket; data targets served from other sockets may
// map differently on symmetric NATs.
func Probe(ctx context.Context, servers []string, timeout time.Duration) (Mapping, error) {
	m := Mapping{NAT: NATTypeUnknown}
	if len(servers) == 0 {
		return m, errors.New("no STUN servers provided")
	}
	if timeout <= 0 {
		timeout = DefaultSTUNTimeout
	}

	addrs := make([]string, 0, len(servers))
	var lastErr error
	for _, server := range servers {
		res := queryServer(ctx, server, timeout)
		m.Results = append(m.Results, res)
		if res.Err != nil {
			lastErr = fmt.Errorf("stun %s: %w", server, res.Err)
			continue
		}
		addrs = append(addrs, res.Addr)
	}
	if len(addrs) == 0 {
		return m, lastErr
	}

	m.Addr = addrs[0]
	m.NAT = Classify(addrs)
	return m, nil
}

// Classify infers NAT type by comparing mapped addresses from multiple servers.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATTypeUnknown
	}
	for _, addr := range addrs[1:] {
		if addr != addrs[0] {
			return NATTypeSymmetric
		}
	}
	return NATTypeConeOrRestricted
}

// serverAddr turns "host", "host:port" or "stun:host:port" into a UDP address.
func serverAddr(server string) (string, error) {
	raw := strings.TrimSpace(server)
	if raw == "" {
		return "", errors.New("empty STUN server")
	}
	if !strings.HasPrefix(raw, "stun:") {
		raw = "stun:" + raw
	}
	uri, err := stun.ParseURI(raw)
	if err != nil {
		return "", err
	}
	port := uri.Port
	if port == 0 {
		port = stun.DefaultPort
	}
	return net.JoinHostPort(uri.Host, strconv.Itoa(port)), nil
}

// queryServer sends one binding request over a fresh UDP socket and times
// the matching response.
func queryServer(ctx context.Context, server string, timeout time.Duration) ServerResult {
	res := ServerResult{Server: server}
	addr, err := serverAddr(server)
	if err != nil {
		res.Err = err
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		res.Err = err
		return res
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req := stun.MustBuild(stun.TransactionID, stun.BindingRequest, stun.Fingerprint)
	start := time.Now()
	if _, err := conn.Write(req.Raw); err != nil {
		res.Err = err
		return res
	}

	buf := make([]byte, 1500)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				err = ctx.Err()
			case errors.Is(err, os.ErrDeadlineExceeded):
				err = context.DeadlineExceeded
			}
			res.Err = err
			return res
		}
		msg := &stun.Message{Raw: append([]byte(nil), buf[:n]...)}
		if err := msg.Decode(); err != nil || msg.TransactionID != req.TransactionID {
			continue
		}
		res.RTT = time.Since(start)
		if msg.Type.Class == stun.ClassErrorResponse {
			var code stun.ErrorCodeAttribute
			if err := code.GetFrom(msg); err != nil {
				res.Err = errors.New("binding error response")
			} else {
				res.Err = fmt.Errorf("binding error %d: %s", code.Code, code.Reason)
			}
			return res
		}
		var mapped stun.XORMappedAddress
		if err := mapped.GetFrom(msg); err != nil {
			res.Err = err
			return res
		}
		res.Addr = mapped.String()
		return res
	}
}
