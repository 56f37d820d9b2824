package portal

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// request is a request as seen by the fake portal
type request struct {
	Method string
	Path   string // relative to /sharing/rest
	Header http.Header
	Values url.Values
	Files  map[string][]byte
	Names  map[string]string // file part name to file name
}

// route answers a request with a status code and a JSON body
type route func(req *request) (int, interface{})

// fakePortal is an httptest server speaking enough of the sharing API
// for the tests.  Every request is recorded.
type fakePortal struct {
	t        *testing.T
	mu       sync.Mutex
	ts       *httptest.Server
	routes   map[string]route
	requests []*request
	tokens   int // tokens handed out by generateToken
}

// newFakePortal starts a TLS fake portal with routes for signing in
// as alice
func newFakePortal(t *testing.T) *fakePortal {
	fp := &fakePortal{
		t:      t,
		routes: map[string]route{},
	}
	fp.handle("/generateToken", func(req *request) (int, interface{}) {
		fp.tokens++
		return 200, map[string]interface{}{
			"token":   "tok" + strconv.Itoa(fp.tokens),
			"expires": time.Now().Add(time.Hour).UnixNano() / int64(time.Millisecond),
			"ssl":     true,
		}
	})
	fp.handle("/portals/self", func(req *request) (int, interface{}) {
		return 200, map[string]interface{}{"id": "0123", "name": "Test", "portalName": "Test Portal"}
	})
	fp.handle("/community/self", func(req *request) (int, interface{}) {
		return 200, map[string]interface{}{"username": "alice"}
	})
	fp.ts = httptest.NewTLSServer(fp)
	t.Cleanup(fp.ts.Close)
	return fp
}

// handle sets the route for path
func (fp *fakePortal) handle(path string, fn route) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.routes[path] = fn
}

// script answers path with bodies in turn, repeating the last
func (fp *fakePortal) script(path string, bodies ...interface{}) {
	n := 0
	fp.handle(path, func(req *request) (int, interface{}) {
		body := bodies[n]
		if n < len(bodies)-1 {
			n++
		}
		return 200, body
	})
}

// ServeHTTP records the request and answers it from the routes
func (fp *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := &request{
		Method: r.Method,
		Path:   strings.TrimPrefix(r.URL.Path, restPath),
		Header: r.Header,
		Files:  map[string][]byte{},
		Names:  map[string]string{},
	}
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(64 << 20)
		if err == nil {
			for name, headers := range r.MultipartForm.File {
				f, openErr := headers[0].Open()
				require.NoError(fp.t, openErr)
				data, readErr := ioutil.ReadAll(f)
				require.NoError(fp.t, readErr)
				_ = f.Close()
				req.Files[name] = data
				req.Names[name] = headers[0].Filename
			}
		}
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		fp.t.Errorf("bad request to %s: %v", r.URL.Path, err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	req.Values = r.Form

	fp.mu.Lock()
	fp.requests = append(fp.requests, req)
	fn := fp.routes[req.Path]
	fp.mu.Unlock()

	if fn == nil {
		fp.t.Errorf("unexpected request %s %s", r.Method, req.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"no such path"}}`))
		return
	}
	status, body := fn(req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	switch x := body.(type) {
	case string:
		_, _ = w.Write([]byte(x))
	default:
		data, err := json.Marshal(x)
		require.NoError(fp.t, err)
		_, _ = w.Write(data)
	}
}

// calls returns the requests made to path
func (fp *fakePortal) calls(path string) (out []*request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	for _, req := range fp.requests {
		if req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

// total returns the number of requests made
func (fp *fakePortal) total() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return len(fp.requests)
}

// noSleep records nothing and doesn't wait
func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// newTestPortal makes a Portal talking to fp
func newTestPortal(ctx context.Context, t *testing.T, fp *fakePortal, opt Options) *Portal {
	opt.PortalURL = fp.ts.URL
	if opt.ChunkSize == 0 {
		opt.ChunkSize = defaultChunkSize
	}
	if opt.TokenExpiration == 0 {
		opt.TokenExpiration = defaultTokenExpiration
	}
	if opt.Referer == "" {
		opt.Referer = defaultReferer
	}
	p, err := NewPortalWithClient(ctx, opt, fp.ts.Client())
	require.NoError(t, err)
	p.setPacer(noSleep)
	p.searchDelay = time.Millisecond
	return p
}

// signedIn makes a Portal signed in as alice with default options
func signedIn(t *testing.T) (*Portal, *fakePortal) {
	ctx := context.Background()
	fp := newFakePortal(t)
	p := newTestPortal(ctx, t, fp, Options{})
	require.NoError(t, p.Login(ctx, "alice", "secret"))
	return p, fp
}

// portalError is an error envelope
func portalError(code int, message string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	}
}
