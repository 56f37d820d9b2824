package portal

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sharepkg/sharepkg/backend/portal/api"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/fserrors"
	"github.com/sharepkg/sharepkg/lib/rest"
	"golang.org/x/oauth2"
)

// LoginMethod is how the session got its token
type LoginMethod int

// Login methods
const (
	LoginNone     LoginMethod = iota // not signed in
	LoginPassword                    // username and password
	LoginToken                       // token from an external signer
)

// String turns a LoginMethod into a string
func (m LoginMethod) String() string {
	switch m {
	case LoginPassword:
		return "password"
	case LoginToken:
		return "token"
	}
	return "none"
}

// Session holds the credentials and the current token.
//
// The token and expiry are only changed by Login, TokenLogin and the
// re-authentication in the call loop.
type Session struct {
	mu         sync.Mutex
	host       string // host and path of the portal, no trailing /
	protocol   string // http or https
	token      string
	expiry     time.Time // zero if not tracked
	username   string
	portalName string
	method     LoginMethod
	password   string
	source     oauth2.TokenSource
	debug      bool
}

// newSession parses the portal URL.  A URL without a scheme is
// assumed to be https.
func newSession(portalURL string) (*Session, error) {
	if portalURL == "" {
		portalURL = defaultPortalURL
	}
	if !strings.Contains(portalURL, "://") {
		portalURL = "https://" + portalURL
	}
	u, err := url.Parse(portalURL)
	if err != nil {
		return nil, fserrors.Wrapf(fserrors.ValidationError, err, "bad portal URL %q", portalURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fserrors.Newf(fserrors.ValidationError, "bad portal URL %q: scheme must be http or https", portalURL)
	}
	if u.Host == "" {
		return nil, fserrors.Newf(fserrors.ValidationError, "bad portal URL %q: no host", portalURL)
	}
	path := strings.TrimRight(u.Path, "/")
	path = strings.TrimSuffix(path, restPath)
	return &Session{
		host:     u.Host + path,
		protocol: u.Scheme,
	}, nil
}

// Host returns the host and path of the portal
func (s *Session) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// BaseURL returns the root of the REST API using the current protocol
func (s *Session) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocol + "://" + s.host + restPath
}

// SecureURL returns the root of the REST API over https
func (s *Session) SecureURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "https://" + s.host + restPath
}

// Token returns the current token or "" if not signed in
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Username returns the signed in user
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// PortalName returns the name the portal gave itself
func (s *Session) PortalName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portalName
}

// Method returns how the session signed in
func (s *Session) Method() LoginMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.method
}

// Expiry returns when the token expires, zero if not tracked
func (s *Session) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry
}

// ValidFor returns the whole minutes the token has left.  ok is false
// if no expiry is tracked.
func (s *Session) ValidFor() (minutes int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiry.IsZero() {
		return 0, false
	}
	return int(time.Until(s.expiry) / time.Minute), true
}

// Valid is true if there is a token which hasn't expired
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return false
	}
	return s.expiry.IsZero() || time.Now().Before(s.expiry)
}

// setToken stores a new token
func (s *Session) setToken(token string, expiry time.Time, ssl bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiry = expiry
	if ssl {
		s.protocol = "https"
	}
}

// sign adds f=json and the token to the parameters of a request
func (s *Session) sign(params url.Values) error {
	if params.Get("f") == "" {
		params.Set("f", "json")
	}
	if token := s.Token(); token != "" {
		params.Set("token", token)
	}
	return nil
}

// Login exchanges username and password for a token then reads the
// identity of the portal and the user.
func (p *Portal) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		fs.Errorf(p, "Can't sign in without a username and password")
		return fserrors.New(fserrors.AuthError, "username and password are required to sign in")
	}
	expiration := p.opt.TokenExpiration
	if expiration <= 0 {
		expiration = defaultTokenExpiration
	}
	form := url.Values{
		"username":   {username},
		"password":   {password},
		"referer":    {p.opt.Referer},
		"expiration": {strconv.Itoa(expiration)},
		"f":          {"json"},
	}
	var token api.TokenResponse
	err := p.call(ctx, func() (*rest.Opts, error) {
		return &rest.Opts{
			Method:  "POST",
			RootURL: p.sess.SecureURL(),
			Path:    "/generateToken",
			Form:    form,
			NoSign:  true,
		}, nil
	}, &token, callOptions{noReauth: true})
	if err != nil {
		fs.Errorf(p, "Failed to sign in as %q: %v", username, err)
		return fserrors.Wrap(fserrors.AuthError, err, "failed to sign in")
	}
	if token.Token == "" {
		fs.Errorf(p, "Sign in as %q returned no token", username)
		return fserrors.New(fserrors.AuthError, "portal returned no token")
	}
	var expiry time.Time
	if !token.Expires.IsZero() {
		expiry = time.Time(token.Expires).Add(-time.Second)
	}
	p.sess.setToken(token.Token, expiry, token.SSL)
	p.sess.mu.Lock()
	p.sess.method = LoginPassword
	p.sess.username = username
	p.sess.password = password
	p.sess.mu.Unlock()
	return p.information(ctx)
}

// TokenLogin takes the token from an external signer, for example
// the host application the tool runs inside.
func (p *Portal) TokenLogin(ctx context.Context, source oauth2.TokenSource) error {
	if source == nil {
		return fserrors.New(fserrors.AuthError, "no token source to sign in with")
	}
	token, err := source.Token()
	if err != nil {
		fs.Errorf(p, "Failed to get a token: %v", err)
		return fserrors.Wrap(fserrors.AuthError, err, "failed to get a token")
	}
	if token.AccessToken == "" {
		fs.Errorf(p, "Token source returned an empty token")
		return fserrors.New(fserrors.AuthError, "token source returned an empty token")
	}
	p.sess.setToken(token.AccessToken, token.Expiry, false)
	p.sess.mu.Lock()
	p.sess.method = LoginToken
	p.sess.source = source
	p.sess.mu.Unlock()
	return p.information(ctx)
}

// LoginFromOptions signs in with the token if one was configured,
// otherwise with the username and password.
func (p *Portal) LoginFromOptions(ctx context.Context) error {
	if p.opt.Token != "" {
		token := &oauth2.Token{AccessToken: p.opt.Token}
		if p.opt.TokenExpires > 0 {
			token.Expiry = time.Unix(p.opt.TokenExpires, 0)
		}
		if p.opt.Username != "" {
			p.sess.mu.Lock()
			p.sess.username = p.opt.Username
			p.sess.mu.Unlock()
		}
		return p.TokenLogin(ctx, oauth2.StaticTokenSource(token))
	}
	return p.Login(ctx, p.opt.Username, p.opt.Password)
}

// information reads the portal name and the signed in user
func (p *Portal) information(ctx context.Context) error {
	var self api.PortalSelf
	if err := p.selfCall(ctx, "/portals/self", &self); err != nil {
		return fserrors.Wrap(fserrors.AuthError, err, "failed to read portal information")
	}
	var user api.User
	if err := p.selfCall(ctx, "/community/self", &user); err != nil {
		return fserrors.Wrap(fserrors.AuthError, err, "failed to read user information")
	}
	p.sess.mu.Lock()
	p.sess.portalName = self.PortalName
	if p.sess.portalName == "" {
		p.sess.portalName = self.Name
	}
	if user.Username != "" {
		p.sess.username = user.Username
	}
	username := p.sess.username
	p.sess.mu.Unlock()
	if username == "" {
		fs.Errorf(p, "Signed in but the portal didn't say who as")
		return fserrors.New(fserrors.AuthError, "no username for the signed in user")
	}
	fs.Debugf(p, "Signed in to %q as %q", self.PortalName, username)
	return nil
}

// selfCall is a GET made while signing in which mustn't re-authenticate
func (p *Portal) selfCall(ctx context.Context, path string, response interface{}) error {
	return p.call(ctx, func() (*rest.Opts, error) {
		return &rest.Opts{Path: path}, nil
	}, response, callOptions{noReauth: true})
}

// reauthenticate signs in again the same way as before.  It fails if
// the new token isn't good for at least minValidFor minutes.
func (p *Portal) reauthenticate(ctx context.Context) error {
	p.sess.mu.Lock()
	method, username, password, source := p.sess.method, p.sess.username, p.sess.password, p.sess.source
	p.sess.mu.Unlock()
	var err error
	switch method {
	case LoginPassword:
		err = p.Login(ctx, username, password)
	case LoginToken:
		err = p.TokenLogin(ctx, source)
	default:
		return fserrors.New(fserrors.AuthError, "token expired and not signed in")
	}
	if err != nil {
		return fserrors.Wrap(fserrors.AuthError, err, "failed to sign in again")
	}
	minutes, ok := p.sess.ValidFor()
	if !ok || minutes < minValidFor {
		return fserrors.Newf(fserrors.AuthError, "token is valid for less than %d minutes after signing in again", minValidFor)
	}
	return nil
}
