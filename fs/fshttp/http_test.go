package fshttp

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanAuth(t *testing.T) {
	for _, test := range []struct {
		in   string
		want string
	}{
		{"", ""},
		{"floo", "floo"},
		{"Authorization: ", "Authorization: "},
		{"Authorization: \n", "Authorization: \n"},
		{"Authorization: A", "Authorization: X"},
		{"Authorization: A\n", "Authorization: X\n"},
		{"Authorization: AAAA", "Authorization: XXXX"},
		{"Authorization: AAAAA\n", "Authorization: XXXX\n"},
		{"Authorization: AAAAAAAAA\nPotato: Help\n", "Authorization: XXXX\nPotato: Help\n"},
		{"Sausage: 1\nAuthorization: AAAAAAAAA\nPotato: Help\n", "Sausage: 1\nAuthorization: XXXX\nPotato: Help\n"},
	} {
		got := string(cleanAuth([]byte(test.in), authBufs[0]))
		assert.Equal(t, test.want, got, test.in)
	}
}

func TestCleanAuths(t *testing.T) {
	for _, test := range []struct {
		in   string
		want string
	}{
		{"", ""},
		{"floo", "floo"},
		{"Authorization: AAAAAAAAA\nPotato: Help\n", "Authorization: XXXX\nPotato: Help\n"},
		{"GET /sharing/rest/search?f=json&token=abc.def HTTP/1.1\n", "GET /sharing/rest/search?f=json&token=XXXX HTTP/1.1\n"},
		{"username=bob&password=hunter2&f=json", "username=bob&password=XXXX&f=json"},
		{"accessToken=keep", "accessToken=keep"},
		{"Content-Disposition: form-data; name=\"token\"\r\n\r\nsecret\r\n--b", "Content-Disposition: form-data; name=\"token\"\r\n\r\nXXXX\r\n--b"},
		{`{"token":"abc","expires":1}`, `{"token":"XXXX","expires":1}`},
	} {
		got := string(cleanAuths([]byte(test.in)))
		assert.Equal(t, test.want, got, test.in)
	}
}

func TestTransportUserAgentAndMetrics(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	ci := fs.NewConfig()
	ci.UserAgent = "sharepkg-test/1.0"
	ci.Dump = fs.DumpHeaders
	metrics := NewMetrics("test")
	tr := Wrap(ci, ts.Client().Transport).SetMetrics(metrics)
	client := &http.Client{Transport: tr}

	for _, path := range []string{"/ok", "/ok", "/missing"} {
		resp, err := client.Get(ts.URL + path + "?token=secret")
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	assert.Equal(t, "sharepkg-test/1.0", gotUA)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.StatusCode.WithLabelValues(u.Host, "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StatusCode.WithLabelValues(u.Host, "GET", "404")))
	assert.Len(t, metrics.Collectors(), 2)
	assert.Nil(t, (*Metrics)(nil).Collectors())
}

func TestTransportTPSLimit(t *testing.T) {
	ci := fs.NewConfig()
	ci.TPSLimit = 100
	ci.TPSLimitBurst = 0
	tr := NewTransport(ci)
	require.NotNil(t, tr.tpsBucket)
	assert.Equal(t, 1, tr.tpsBucket.Burst())

	tr = NewTransport(fs.NewConfig())
	assert.Nil(t, tr.tpsBucket)
}
