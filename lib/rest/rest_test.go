package rest

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/sharepkg/sharepkg/fs/fserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echo struct {
	Method      string            `json:"method"`
	Query       map[string]string `json:"query"`
	Form        map[string]string `json:"form"`
	ContentType string            `json:"contentType"`
	Encoding    string            `json:"encoding"`
}

func echoHandler(gzipped bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := echo{
			Method:      r.Method,
			Query:       map[string]string{},
			Form:        map[string]string{},
			ContentType: r.Header.Get("Content-Type"),
			Encoding:    r.Header.Get("Accept-Encoding"),
		}
		for k := range r.URL.Query() {
			out.Query[k] = r.URL.Query().Get(k)
		}
		if r.Method == "POST" {
			_ = r.ParseForm()
			for k := range r.PostForm {
				out.Form[k] = r.PostForm.Get(k)
			}
		}
		body, _ := json.Marshal(out)
		w.Header().Set("Content-Type", "application/json")
		if gzipped {
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			_, _ = gz.Write(body)
			_ = gz.Close()
			w.Header().Set("Content-Encoding", "gzip")
			body = buf.Bytes()
		}
		_, _ = w.Write(body)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(ts.Client()).SetRoot(ts.URL)
}

func tokenSigner(params url.Values) error {
	params.Set("token", "secret")
	return nil
}

func TestCallJSONGet(t *testing.T) {
	api := newTestClient(t, echoHandler(false)).SetSigner(tokenSigner)
	var out echo
	_, err := api.CallJSON(context.Background(), &Opts{
		Path:       "/search",
		Parameters: url.Values{"f": {"json"}, "q": {`title: "X"`}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "GET", out.Method)
	assert.Equal(t, "json", out.Query["f"])
	assert.Equal(t, `title: "X"`, out.Query["q"])
	assert.Equal(t, "secret", out.Query["token"])
	assert.Equal(t, "gzip", out.Encoding)
}

func TestCallJSONPostForm(t *testing.T) {
	api := newTestClient(t, echoHandler(false)).SetSigner(tokenSigner)
	form := url.Values{"f": {"json"}, "items": {"a,b"}}
	var out echo
	_, err := api.CallJSON(context.Background(), &Opts{
		Method: "POST",
		Path:   "/shareItems",
		Form:   form,
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "POST", out.Method)
	assert.Equal(t, FormContentType, out.ContentType)
	assert.Equal(t, "a,b", out.Form["items"])
	assert.Equal(t, "secret", out.Form["token"])
	assert.Empty(t, out.Query)
	// caller's form is not modified by the signer
	assert.Equal(t, "", form.Get("token"))
}

func TestCallNoSign(t *testing.T) {
	api := newTestClient(t, echoHandler(false)).SetSigner(tokenSigner)
	var out echo
	_, err := api.CallJSON(context.Background(), &Opts{
		Method: "POST",
		Path:   "/generateToken",
		Form:   url.Values{"username": {"u"}},
		NoSign: true,
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "", out.Form["token"])
	assert.Equal(t, "u", out.Form["username"])
}

func TestCallPreEncodedBodyNotSigned(t *testing.T) {
	api := newTestClient(t, echoHandler(false)).SetSigner(tokenSigner)
	var out echo
	_, err := api.CallJSON(context.Background(), &Opts{
		Method:      "POST",
		Path:        "/addPart",
		Body:        bytes.NewReader([]byte("raw")),
		ContentType: "application/octet-stream",
	}, &out)
	require.NoError(t, err)
	assert.Empty(t, out.Query)
	assert.Equal(t, "application/octet-stream", out.ContentType)
}

func TestCallJSONGzip(t *testing.T) {
	api := newTestClient(t, echoHandler(true))
	var out echo
	_, err := api.CallJSON(context.Background(), &Opts{
		Path:       "/portals/self",
		Parameters: url.Values{"f": {"json"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "json", out.Query["f"])
}

func TestCallJSONNotJSON(t *testing.T) {
	api := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	var out echo
	_, err := api.CallJSON(context.Background(), &Opts{Path: "/"}, &out)
	require.Error(t, err)
	assert.True(t, fserrors.Is(err, fserrors.TransportError))
	assert.Contains(t, err.Error(), "maintenance")
}

func TestCallHTTPError(t *testing.T) {
	api := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	resp, err := api.Call(context.Background(), &Opts{Path: "/"})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, fserrors.TransportError, fserrors.KindOf(err))

	api.SetErrorHandler(func(resp *http.Response) error {
		_, _ = ReadBody(resp)
		return fserrors.New(fserrors.ProtocolError, "custom")
	})
	_, err = api.Call(context.Background(), &Opts{Path: "/"})
	assert.Equal(t, fserrors.ProtocolError, fserrors.KindOf(err))

	resp, err = api.Call(context.Background(), &Opts{Path: "/", IgnoreStatus: true})
	require.NoError(t, err)
	body, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "gone")
}

func TestCallNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()
	api := NewClient(http.DefaultClient).SetRoot(ts.URL)
	_, err := api.Call(context.Background(), &Opts{Path: "/"})
	require.Error(t, err)
	assert.Equal(t, fserrors.TransportError, fserrors.KindOf(err))
}

func TestCallNoRoot(t *testing.T) {
	api := NewClient(http.DefaultClient)
	_, err := api.Call(context.Background(), &Opts{Path: "/"})
	assert.EqualError(t, err, "RootURL not set")
	_, err = api.Call(context.Background(), nil)
	assert.Error(t, err)
}

func TestURLJoin(t *testing.T) {
	base, err := url.Parse("https://www.example.com/sharing/rest/")
	require.NoError(t, err)
	for _, test := range []struct {
		path string
		want string
	}{
		{"search", "https://www.example.com/sharing/rest/search"},
		{"content/users/bob", "https://www.example.com/sharing/rest/content/users/bob"},
		{"/root", "https://www.example.com/root"},
	} {
		got, err := URLJoin(base, test.path)
		require.NoError(t, err)
		assert.Equal(t, test.want, got.String(), test.path)
	}
	assert.Equal(t, "a%20b", URLPathEscape("a b"))
}
