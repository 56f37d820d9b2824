package portal

import (
	"context"
	"testing"
	"time"

	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/config/configmap"
	"github.com/sharepkg/sharepkg/fs/fserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewSession(t *testing.T) {
	for _, test := range []struct {
		in     string
		base   string
		secure string
		err    bool
	}{
		{"", "https://www.arcgis.com/sharing/rest", "https://www.arcgis.com/sharing/rest", false},
		{"https://www.arcgis.com", "https://www.arcgis.com/sharing/rest", "https://www.arcgis.com/sharing/rest", false},
		{"http://gis.example.com/portal/", "http://gis.example.com/portal/sharing/rest", "https://gis.example.com/portal/sharing/rest", false},
		{"https://gis.example.com/portal/sharing/rest/", "https://gis.example.com/portal/sharing/rest", "https://gis.example.com/portal/sharing/rest", false},
		{"gis.example.com:7443/arcgis", "https://gis.example.com:7443/arcgis/sharing/rest", "https://gis.example.com:7443/arcgis/sharing/rest", false},
		{"ftp://gis.example.com", "", "", true},
		{"https://", "", "", true},
	} {
		s, err := newSession(test.in)
		if test.err {
			assert.True(t, fserrors.Is(err, fserrors.ValidationError), test.in)
			continue
		}
		require.NoError(t, err, test.in)
		assert.Equal(t, test.base, s.BaseURL(), test.in)
		assert.Equal(t, test.secure, s.SecureURL(), test.in)
	}
}

func TestSessionSSLSwitch(t *testing.T) {
	s, err := newSession("http://gis.example.com")
	require.NoError(t, err)
	s.setToken("a", time.Time{}, false)
	assert.Equal(t, "http://gis.example.com/sharing/rest", s.BaseURL())
	s.setToken("b", time.Time{}, true)
	assert.Equal(t, "https://gis.example.com/sharing/rest", s.BaseURL())
	assert.Equal(t, "b", s.Token())
}

func TestSessionValidFor(t *testing.T) {
	s, err := newSession("")
	require.NoError(t, err)
	assert.False(t, s.Valid())
	_, ok := s.ValidFor()
	assert.False(t, ok)

	s.setToken("a", time.Time{}, false)
	assert.True(t, s.Valid())
	_, ok = s.ValidFor()
	assert.False(t, ok)

	s.setToken("a", time.Now().Add(30*time.Minute+30*time.Second), false)
	minutes, ok := s.ValidFor()
	assert.True(t, ok)
	assert.Equal(t, 30, minutes)

	s.setToken("a", time.Now().Add(-time.Minute), false)
	assert.False(t, s.Valid())
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	fp := newFakePortal(t)
	p := newTestPortal(ctx, t, fp, Options{})
	require.NoError(t, p.Login(ctx, "alice", "secret"))

	gen := fp.calls("/generateToken")
	require.Len(t, gen, 1)
	assert.Equal(t, "POST", gen[0].Method)
	assert.Equal(t, "alice", gen[0].Values.Get("username"))
	assert.Equal(t, "secret", gen[0].Values.Get("password"))
	assert.Equal(t, "http://maps.esri.com", gen[0].Values.Get("referer"))
	assert.Equal(t, "600", gen[0].Values.Get("expiration"))
	assert.Equal(t, "json", gen[0].Values.Get("f"))
	assert.Equal(t, "", gen[0].Values.Get("token"))

	self := fp.calls("/community/self")
	require.Len(t, self, 1)
	assert.Equal(t, "tok1", self[0].Values.Get("token"))
	assert.Equal(t, "json", self[0].Values.Get("f"))
	assert.Equal(t, "http://maps.esri.com", self[0].Header.Get("Referer"))
	assert.Equal(t, "gzip", self[0].Header.Get("Accept-Encoding"))

	s := p.Session()
	assert.Equal(t, "tok1", s.Token())
	assert.Equal(t, "alice", s.Username())
	assert.Equal(t, "Test Portal", s.PortalName())
	assert.Equal(t, LoginPassword, s.Method())
	minutes, ok := s.ValidFor()
	assert.True(t, ok)
	assert.True(t, minutes >= 58 && minutes <= 60, "minutes %d", minutes)
	assert.True(t, s.Valid())
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()

	fp := newFakePortal(t)
	p := newTestPortal(ctx, t, fp, Options{})
	err := p.Login(ctx, "", "secret")
	assert.True(t, fserrors.Is(err, fserrors.AuthError))
	assert.Equal(t, 0, fp.total())

	fp.handle("/generateToken", func(req *request) (int, interface{}) {
		return 200, portalError(400, "Invalid username or password.")
	})
	err = p.Login(ctx, "alice", "wrong")
	assert.True(t, fserrors.Is(err, fserrors.AuthError))
	assert.Contains(t, err.Error(), "Invalid username or password.")
	assert.False(t, p.Session().Valid())

	fp.handle("/generateToken", func(req *request) (int, interface{}) {
		return 200, map[string]interface{}{"ssl": false}
	})
	err = p.Login(ctx, "alice", "secret")
	assert.True(t, fserrors.Is(err, fserrors.AuthError))
	assert.Equal(t, "", p.Session().Token())
}

func TestTokenLogin(t *testing.T) {
	ctx := context.Background()
	fp := newFakePortal(t)
	p := newTestPortal(ctx, t, fp, Options{})
	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: "minted",
		Expiry:      time.Now().Add(30*time.Minute + 30*time.Second),
	})
	require.NoError(t, p.TokenLogin(ctx, source))
	assert.Len(t, fp.calls("/generateToken"), 0)
	self := fp.calls("/portals/self")
	require.Len(t, self, 1)
	assert.Equal(t, "minted", self[0].Values.Get("token"))
	assert.Equal(t, LoginToken, p.Session().Method())
	assert.Equal(t, "alice", p.Session().Username())
	minutes, ok := p.Session().ValidFor()
	assert.True(t, ok)
	assert.Equal(t, 30, minutes)

	err := p.TokenLogin(ctx, oauth2.StaticTokenSource(&oauth2.Token{}))
	assert.True(t, fserrors.Is(err, fserrors.AuthError))
}

func TestLoginFromOptions(t *testing.T) {
	ctx := context.Background()
	fp := newFakePortal(t)
	p := newTestPortal(ctx, t, fp, Options{
		Token:        "minted",
		TokenExpires: time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, p.LoginFromOptions(ctx))
	assert.Equal(t, "minted", p.Session().Token())
	assert.Len(t, fp.calls("/generateToken"), 0)

	p = newTestPortal(ctx, t, fp, Options{Username: "alice", Password: "secret"})
	require.NoError(t, p.LoginFromOptions(ctx))
	assert.Equal(t, LoginPassword, p.Session().Method())
	assert.Len(t, fp.calls("/generateToken"), 1)
}

func TestNewPortalFromConfig(t *testing.T) {
	ctx := context.Background()
	m := configmap.Simple{
		"portal_url":    "https://gis.example.com/portal",
		"chunk_size":    "1M",
		"poll_interval": "250ms",
		"debug":         "true",
	}
	p, err := NewPortal(ctx, m)
	require.NoError(t, err)
	opt := p.Options()
	assert.Equal(t, fs.SizeSuffix(1<<20), opt.ChunkSize)
	assert.Equal(t, 250*time.Millisecond, opt.PollInterval)
	assert.Equal(t, 600, opt.TokenExpiration)
	assert.True(t, opt.Debug)
	assert.Equal(t, "portal gis.example.com/portal", p.String())

	_, err = NewPortal(ctx, configmap.Simple{"chunk_size": "0"})
	assert.True(t, fserrors.Is(err, fserrors.ValidationError))
	_, err = NewPortal(ctx, configmap.Simple{"poll_interval": "soon"})
	assert.True(t, fserrors.Is(err, fserrors.ValidationError))
}

func TestHelp(t *testing.T) {
	help := Help()
	names := map[string]OptionHelp{}
	for _, h := range help {
		names[h.Name] = h
		assert.NotEmpty(t, h.Help, h.Name)
	}
	assert.Equal(t, "10000000", names["chunk_size"].Default)
	assert.Equal(t, "https://www.arcgis.com", names["portal_url"].Default)
	assert.Equal(t, "1s", names["poll_interval"].Default)
}

func TestReauthenticateOnce(t *testing.T) {
	ctx := context.Background()
	p, fp := signedIn(t)
	fp.script("/content/items/abc",
		portalError(498, "Invalid token."),
		map[string]interface{}{"id": "abc", "title": "Roads"},
	)
	item, err := p.Item(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Roads", item.Title)

	calls := fp.calls("/content/items/abc")
	require.Len(t, calls, 2)
	assert.Equal(t, "tok1", calls[0].Values.Get("token"))
	assert.Equal(t, "tok2", calls[1].Values.Get("token"))
	assert.Len(t, fp.calls("/generateToken"), 2)
	assert.Equal(t, "tok2", p.Session().Token())
}

func TestReauthenticateBounded(t *testing.T) {
	ctx := context.Background()
	p, fp := signedIn(t)
	fp.script("/content/items/abc", portalError(498, "Invalid token."))
	_, err := p.Item(ctx, "abc")
	require.Error(t, err)
	assert.True(t, fserrors.Is(err, fserrors.AuthError))
	assert.Len(t, fp.calls("/content/items/abc"), 2)
	assert.Len(t, fp.calls("/generateToken"), 2)
}

func TestReauthenticateShortToken(t *testing.T) {
	ctx := context.Background()
	p, fp := signedIn(t)
	fp.handle("/generateToken", func(req *request) (int, interface{}) {
		return 200, map[string]interface{}{
			"token":   "short",
			"expires": time.Now().Add(2*time.Minute).UnixNano() / int64(time.Millisecond),
		}
	})
	fp.script("/content/items/abc", portalError(498, "Invalid token."))
	_, err := p.Item(ctx, "abc")
	assert.True(t, fserrors.Is(err, fserrors.AuthError))
	assert.Len(t, fp.calls("/content/items/abc"), 1)
}

func TestReauthenticateUntrackedExpiry(t *testing.T) {
	ctx := context.Background()
	fp := newFakePortal(t)
	p := newTestPortal(ctx, t, fp, Options{})
	require.NoError(t, p.TokenLogin(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "minted"})))
	fp.script("/content/items/abc", portalError(498, "Invalid token."))
	_, err := p.Item(ctx, "abc")
	assert.True(t, fserrors.Is(err, fserrors.AuthError))
	assert.Len(t, fp.calls("/content/items/abc"), 1)
}

func TestRetryBudget(t *testing.T) {
	ctx, ci := fs.AddConfig(context.Background())
	ci.LowLevelRetries = 2
	fp := newFakePortal(t)
	p := newTestPortal(ctx, t, fp, Options{})
	require.NoError(t, p.Login(ctx, "alice", "secret"))

	fp.script("/content/items/abc", portalError(500, "Item does not exist or is inaccessible."))
	_, err := p.Item(ctx, "abc")
	require.Error(t, err)
	assert.True(t, fserrors.Is(err, fserrors.ProtocolError))
	assert.Equal(t, 500, fserrors.Code(err))
	assert.Len(t, fp.calls("/content/items/abc"), 3)

	fp.script("/content/items/def", portalError(500, "not yet"), map[string]interface{}{"id": "def"})
	item, err := p.Item(ctx, "def")
	require.NoError(t, err)
	assert.Equal(t, "def", item.ID)
	assert.Len(t, fp.calls("/content/items/def"), 2)
}

func TestNoRetryByDefault(t *testing.T) {
	ctx := context.Background()
	p, fp := signedIn(t)
	fp.script("/content/items/abc", portalError(400, "bad"))
	_, err := p.Item(ctx, "abc")
	assert.True(t, fserrors.Is(err, fserrors.ProtocolError))
	assert.Len(t, fp.calls("/content/items/abc"), 1)
}

func TestTransportErrors(t *testing.T) {
	ctx := context.Background()
	p, fp := signedIn(t)

	fp.handle("/content/items/html", func(req *request) (int, interface{}) {
		return 502, "<html>Bad Gateway</html>"
	})
	_, err := p.Item(ctx, "html")
	assert.True(t, fserrors.Is(err, fserrors.TransportError))

	fp.handle("/content/items/json", func(req *request) (int, interface{}) {
		return 403, portalError(403, "You do not have permissions")
	})
	_, err = p.Item(ctx, "json")
	assert.True(t, fserrors.Is(err, fserrors.ProtocolError))
	assert.Equal(t, 403, fserrors.Code(err))

	fp.handle("/content/items/garbage", func(req *request) (int, interface{}) {
		return 200, "not json"
	})
	_, err = p.Item(ctx, "garbage")
	assert.True(t, fserrors.Is(err, fserrors.TransportError))

	fp.handle("/content/items/empty", func(req *request) (int, interface{}) {
		return 200, "{}"
	})
	_, err = p.Item(ctx, "empty")
	assert.True(t, fserrors.Is(err, fserrors.ProtocolError))
}

func TestCallCancelled(t *testing.T) {
	p, fp := signedIn(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Item(ctx, "abc")
	assert.Equal(t, context.Canceled, err)
	assert.Len(t, fp.calls("/content/items/abc"), 0)
}

func TestRedacted(t *testing.T) {
	got := redacted(map[string][]string{
		"token":    {"abc"},
		"password": {"hunter2"},
		"title":    {"Roads"},
	})
	assert.Equal(t, "password=XXXX&title=Roads&token=XXXX", got)
}
