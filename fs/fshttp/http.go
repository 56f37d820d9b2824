// Package fshttp contains the common http parts of the config, Transport and Client
package fshttp

import (
	"bytes"
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httputil"
	"regexp"
	"time"

	"github.com/sharepkg/sharepkg/fs"
	"golang.org/x/time/rate"
)

const (
	separatorReq  = ">>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>"
	separatorResp = "<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<<"
)

// A net.Conn that sets a deadline for every Read or Write operation
type timeoutConn struct {
	net.Conn
	timeout time.Duration
}

// create a timeoutConn using the timeout
func newTimeoutConn(conn net.Conn, timeout time.Duration) (c *timeoutConn, err error) {
	c = &timeoutConn{
		Conn:    conn,
		timeout: timeout,
	}
	err = c.nudgeDeadline()
	return
}

// Nudge the deadline for an idle timeout on by c.timeout if non-zero
func (c *timeoutConn) nudgeDeadline() (err error) {
	if c.timeout == 0 {
		return nil
	}
	when := time.Now().Add(c.timeout)
	return c.Conn.SetDeadline(when)
}

// readOrWrite bytes doing idle timeouts
func (c *timeoutConn) readOrWrite(f func([]byte) (int, error), b []byte) (n int, err error) {
	n, err = f(b)
	// Don't nudge if no bytes or an error
	if n == 0 || err != nil {
		return
	}
	// Nudge the deadline on successful Read or Write
	err = c.nudgeDeadline()
	return
}

// Read bytes doing idle timeouts
func (c *timeoutConn) Read(b []byte) (n int, err error) {
	return c.readOrWrite(c.Conn.Read, b)
}

// Write bytes doing idle timeouts
func (c *timeoutConn) Write(b []byte) (n int, err error) {
	return c.readOrWrite(c.Conn.Write, b)
}

// NewDialer creates a net.Dialer structure with Timeout and Keepalive
// set from the config
func NewDialer(ci *fs.ConfigInfo) *net.Dialer {
	return &net.Dialer{
		Timeout:   ci.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
}

// NewTransportCustom returns an http.RoundTripper with the correct timeouts.
// The customize function is called if set to give the caller an opportunity to
// customize any defaults in the Transport.
func NewTransportCustom(ci *fs.ConfigInfo, customize func(*http.Transport)) *Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = http.ProxyFromEnvironment
	t.MaxIdleConnsPerHost = 4
	t.MaxIdleConns = 8
	t.TLSHandshakeTimeout = ci.ConnectTimeout
	t.ResponseHeaderTimeout = ci.Timeout
	t.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: ci.InsecureSkipVerify,
	}
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		c, err := NewDialer(ci).DialContext(ctx, network, addr)
		if err != nil {
			return c, err
		}
		return newTimeoutConn(c, ci.Timeout)
	}
	t.IdleConnTimeout = 60 * time.Second

	// customize the transport if required
	if customize != nil {
		customize(t)
	}

	// Wrap that http.Transport in our own transport
	return newTransport(ci, t)
}

// NewTransport returns an http.RoundTripper with the correct timeouts
func NewTransport(ci *fs.ConfigInfo) *Transport {
	return NewTransportCustom(ci, nil)
}

// NewClient returns an http.Client with the correct timeouts
func NewClient(ci *fs.ConfigInfo) *http.Client {
	return &http.Client{
		Transport: NewTransport(ci),
	}
}

// Transport is our http Transport which wraps an http.RoundTripper
// * Sets the User Agent
// * Limits transactions per second
// * Does logging with credentials removed
// * Counts responses
type Transport struct {
	wrapped   http.RoundTripper
	dump      fs.DumpFlags
	userAgent string
	tpsBucket *rate.Limiter // for limiting number of http transactions per second
	metrics   *Metrics
}

// newTransport wraps the transport passed in and logs all
// roundtrips including the body if logBody is set.
func newTransport(ci *fs.ConfigInfo, transport http.RoundTripper) *Transport {
	t := &Transport{
		wrapped:   transport,
		dump:      ci.Dump,
		userAgent: ci.UserAgent,
		metrics:   DefaultMetrics,
	}
	if ci.TPSLimit > 0 {
		tpsBurst := ci.TPSLimitBurst
		if tpsBurst < 1 {
			tpsBurst = 1
		}
		t.tpsBucket = rate.NewLimiter(rate.Limit(ci.TPSLimit), tpsBurst)
		fs.Infof(nil, "Starting HTTP transaction limiter: max %g transactions/s with burst %d", ci.TPSLimit, tpsBurst)
	}
	return t
}

// Wrap returns a Transport from ci around an arbitrary round tripper.
// Used by tests to put the logging and metrics in front of an
// httptest server's transport.
func Wrap(ci *fs.ConfigInfo, rt http.RoundTripper) *Transport {
	return newTransport(ci, rt)
}

// SetMetrics sets the metrics the transport reports to
func (t *Transport) SetMetrics(m *Metrics) *Transport {
	t.metrics = m
	return t
}

// cleanAuth gets rid of one authBuf header within the first 4k
func cleanAuth(buf, authBuf []byte) []byte {
	// Find how much buffer to check
	n := 4096
	if len(buf) < n {
		n = len(buf)
	}
	// See if there is an Authorization: header
	i := bytes.Index(buf[:n], authBuf)
	if i < 0 {
		return buf
	}
	i += len(authBuf)
	// Overwrite the next 4 chars with 'X'
	for j := 0; i < len(buf) && j < 4; j++ {
		if buf[i] == '\n' {
			break
		}
		buf[i] = 'X'
		i++
	}
	// Snip out to the next '\n'
	j := bytes.IndexByte(buf[i:], '\n')
	if j < 0 {
		return buf[:i]
	}
	n = copy(buf[i:], buf[i+j:])
	return buf[:i+n]
}

var authBufs = [][]byte{
	[]byte("Authorization: "),
	[]byte("X-Esri-Authorization: "),
}

// token=... in a query string or url-encoded body, password=... in
// the generateToken body and name="token"/"password" multipart fields
// and "token":"..." in a generateToken response
var (
	tokenParam = regexp.MustCompile(`\b(token|password)=[^&\s]*`)
	tokenField = regexp.MustCompile(`(name="(?:token|password)"\r?\n\r?\n)[^\r\n]*`)
	tokenJSON  = regexp.MustCompile(`("token"\s*:\s*")[^"]*`)
)

// cleanAuths gets rid of all the possible credentials
func cleanAuths(buf []byte) []byte {
	for _, authBuf := range authBufs {
		buf = cleanAuth(buf, authBuf)
	}
	buf = tokenParam.ReplaceAll(buf, []byte("${1}=XXXX"))
	buf = tokenField.ReplaceAll(buf, []byte("${1}XXXX"))
	buf = tokenJSON.ReplaceAll(buf, []byte("${1}XXXX"))
	return buf
}

// RoundTrip implements the RoundTripper interface.
func (t *Transport) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	// Get transactions per second token first if limiting
	if t.tpsBucket != nil {
		tbErr := t.tpsBucket.Wait(req.Context())
		if tbErr != nil && tbErr != context.Canceled {
			fs.Errorf(nil, "HTTP token bucket error: %v", tbErr)
		}
	}
	// Force user agent
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	// Logf request
	if t.dump&(fs.DumpHeaders|fs.DumpBodies|fs.DumpAuth) != 0 {
		buf, _ := httputil.DumpRequestOut(req, t.dump&fs.DumpBodies != 0)
		if t.dump&fs.DumpAuth == 0 {
			buf = cleanAuths(buf)
		}
		fs.Debugf(nil, "%s", separatorReq)
		fs.Debugf(nil, "%s (req %p)", "HTTP REQUEST", req)
		fs.Debugf(nil, "%s", string(buf))
		fs.Debugf(nil, "%s", separatorReq)
	}
	// Do round trip
	start := time.Now()
	resp, err = t.wrapped.RoundTrip(req)
	// Logf response
	if t.dump&(fs.DumpHeaders|fs.DumpBodies|fs.DumpAuth) != 0 {
		fs.Debugf(nil, "%s", separatorResp)
		fs.Debugf(nil, "%s (req %p)", "HTTP RESPONSE", req)
		if err != nil {
			fs.Debugf(nil, "Error: %v", err)
		} else {
			buf, _ := httputil.DumpResponse(resp, t.dump&fs.DumpBodies != 0)
			if t.dump&fs.DumpAuth == 0 {
				buf = cleanAuths(buf)
			}
			fs.Debugf(nil, "%s", string(buf))
		}
		fs.Debugf(nil, "%s", separatorResp)
	}
	t.metrics.onResponse(req, resp, time.Since(start))
	return resp, err
}
