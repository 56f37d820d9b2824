// Package portal provides a client for the sharing REST API of a
// content portal: sign in, chunked package upload, catalog
// operations and sharing.
package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
	"github.com/sharepkg/sharepkg/backend/portal/api"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/config/configmap"
	"github.com/sharepkg/sharepkg/fs/config/configstruct"
	"github.com/sharepkg/sharepkg/fs/fserrors"
	"github.com/sharepkg/sharepkg/fs/fshttp"
	"github.com/sharepkg/sharepkg/lib/multipart"
	"github.com/sharepkg/sharepkg/lib/pacer"
	"github.com/sharepkg/sharepkg/lib/rest"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultPortalURL       = "https://www.arcgis.com"
	restPath               = "/sharing/rest"
	defaultReferer         = "http://maps.esri.com"
	defaultTokenExpiration = 600 // minutes
	defaultChunkSize       = fs.SizeSuffix(10000000)
	defaultPollInterval    = time.Second
	searchRepeatDelay      = time.Second
	groupCacheExpiry       = time.Minute
	minValidFor            = 5 // minutes of validity needed after a re-login
)

// Options defines the configuration for the portal
type Options struct {
	PortalURL       string        `config:"portal_url"`
	Username        string        `config:"username"`
	Password        string        `config:"password"`
	Token           string        `config:"token"`
	TokenExpires    int64         `config:"token_expires"`    // seconds since the epoch, 0 if unknown
	TokenExpiration int           `config:"token_expiration"` // minutes asked for at login
	Referer         string        `config:"referer"`
	ChunkSize       fs.SizeSuffix `config:"chunk_size"`
	PollInterval    time.Duration `config:"poll_interval"`
	PollTimeout     time.Duration `config:"poll_timeout"`
	MinSleep        time.Duration `config:"min_sleep"`
	Debug           bool          `config:"debug"`
}

// DefaultOptions returns the options with their defaults filled in
func DefaultOptions() Options {
	return Options{
		PortalURL:       defaultPortalURL,
		TokenExpiration: defaultTokenExpiration,
		Referer:         defaultReferer,
		ChunkSize:       defaultChunkSize,
		PollInterval:    defaultPollInterval,
	}
}

// OptionHelp describes one option for the command line
type OptionHelp struct {
	Name    string
	Help    string
	Default string
}

// Help returns the help for each option, sorted by name
func Help() []OptionHelp {
	def := DefaultOptions()
	items, _ := configstruct.Items(&def)
	help := map[string]string{
		"portal_url":       "URL of the portal, e.g. https://myorg.maps.example.com/portal",
		"username":         "User name to sign in with",
		"password":         "Password to sign in with",
		"token":            "Token minted by a host application, used instead of a password",
		"token_expires":    "Expiry of --token in seconds since the epoch, 0 if unknown",
		"token_expiration": "Minutes of validity to ask for at sign in",
		"referer":          "Referer sent when generating a token",
		"chunk_size":       "Size of each uploaded part",
		"poll_interval":    "Time between item status checks",
		"poll_timeout":     "Give up waiting for item processing after this long, 0 to wait forever",
		"min_sleep":        "Minimum time between portal calls",
		"debug":            "Log every catalog change with its parameters",
	}
	out := make([]OptionHelp, 0, len(items))
	for _, item := range items {
		out = append(out, OptionHelp{
			Name:    item.Name,
			Help:    help[item.Name],
			Default: defaultString(item.Value),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func defaultString(v interface{}) string {
	if size, ok := v.(fs.SizeSuffix); ok {
		return fmt.Sprint(int64(size))
	}
	return fmt.Sprint(v)
}

// Portal is a connection to one portal for one signed in user
type Portal struct {
	opt    Options
	ci     *fs.ConfigInfo
	sess   *Session
	srv    *rest.Client
	pacer  *pacer.Pacer
	groups *cache.Cache // group title to id per user
	sleep  func(ctx context.Context, d time.Duration) error

	metrics     *Metrics
	searchDelay time.Duration
}

// NewPortal makes a Portal from the config in m.  It doesn't sign in.
func NewPortal(ctx context.Context, m configmap.Getter) (*Portal, error) {
	opt := DefaultOptions()
	if err := configstruct.Set(m, &opt); err != nil {
		return nil, fserrors.Wrap(fserrors.ValidationError, err, "bad portal config")
	}
	return NewPortalWithClient(ctx, opt, fshttp.NewClient(fs.GetConfig(ctx)))
}

// NewPortalWithClient makes a Portal from opt using client for the
// HTTP round trips.
func NewPortalWithClient(ctx context.Context, opt Options, client *http.Client) (*Portal, error) {
	if opt.ChunkSize <= 0 {
		return nil, fserrors.Newf(fserrors.ValidationError, "chunk size must be positive, got %v", opt.ChunkSize)
	}
	if opt.PollInterval < 0 {
		return nil, fserrors.Newf(fserrors.ValidationError, "poll interval can't be negative, got %v", opt.PollInterval)
	}
	sess, err := newSession(opt.PortalURL)
	if err != nil {
		return nil, err
	}
	sess.debug = opt.Debug
	ci := fs.GetConfig(ctx)
	p := &Portal{
		opt:         opt,
		ci:          ci,
		sess:        sess,
		srv:         rest.NewClient(client),
		groups:      cache.New(groupCacheExpiry, 2*groupCacheExpiry),
		sleep:       pacer.Sleep,
		metrics:     DefaultMetrics,
		searchDelay: searchRepeatDelay,
	}
	p.srv.SetErrorHandler(errorHandler)
	p.srv.SetSigner(sess.sign)
	if opt.Referer != "" {
		// tokens made for a referer are only honoured with it
		p.srv.SetHeader("Referer", opt.Referer)
	}
	p.setPacer(pacer.Sleep)
	return p, nil
}

// setPacer makes the pacer for the call loop.  Each call can use its
// retry budget plus one try after re-authentication.
func (p *Portal) setPacer(sleep func(ctx context.Context, d time.Duration) error) {
	p.sleep = sleep
	p.pacer = pacer.New(
		pacer.RetriesOption(p.ci.LowLevelRetries+2),
		pacer.RetrySleepOption(p.ci.RetrySleep),
		pacer.MinSleepOption(p.opt.MinSleep),
		pacer.SleepOption(sleep),
	)
}

// SetMetrics sets where the upload metrics are counted
func (p *Portal) SetMetrics(m *Metrics) *Portal {
	p.metrics = m
	return p
}

// Options returns a copy of the options in use
func (p *Portal) Options() Options {
	return p.opt
}

// Session returns the session of the portal
func (p *Portal) Session() *Session {
	return p.sess
}

// String converts this Portal to a string
func (p *Portal) String() string {
	return "portal " + p.sess.Host()
}

// errorHandler parses a non 2xx response.  A JSON error object is a
// ProtocolError, anything else a TransportError.
func errorHandler(resp *http.Response) error {
	body, err := rest.ReadBody(resp)
	if err != nil {
		return fserrors.Wrap(fserrors.TransportError, err, "error reading error out of body")
	}
	var envelope api.Envelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		if envelope.Error.Code == 0 {
			envelope.Error.Code = resp.StatusCode
		}
		return envelope.Error.Classified()
	}
	return fserrors.Newf(fserrors.TransportError, "HTTP error %v (%v) returned body: %q", resp.StatusCode, resp.Status, truncate(body, 256))
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// callOptions tune a single call
type callOptions struct {
	noReauth bool // a 498 is returned as an AuthError without signing in again
}

// call makes one logical request to the portal decoding the payload
// into response.
//
// build is run before every try so that bodies are rebuilt with the
// current token.  A 498 causes one re-authentication and one more
// try.  Other portal errors and retriable network errors are retried
// while the low level retry budget lasts.
func (p *Portal) call(ctx context.Context, build func() (*rest.Opts, error), response interface{}, co callOptions) error {
	remaining := p.ci.LowLevelRetries
	reauthed := false
	return p.pacer.Call(ctx, func() (bool, error) {
		opts, err := build()
		if err != nil {
			return false, err
		}
		if opts.RootURL == "" {
			opts.RootURL = p.sess.BaseURL()
		}
		p.logMutation(opts)
		result := api.Result{Payload: response}
		_, err = p.srv.CallJSON(ctx, opts, &result)
		if err == nil {
			switch {
			case result.Err != nil:
				err = result.Err.Classified()
			case result.Empty:
				err = fserrors.Newf(fserrors.ProtocolError, "empty response from %s", opts.Path)
			}
		}
		if err == nil {
			return false, nil
		}
		if fserrors.ContextError(ctx, &err) {
			return false, err
		}
		if fserrors.Code(err) == api.CodeTokenExpired {
			if co.noReauth {
				return false, err
			}
			if reauthed {
				return false, fserrors.Wrap(fserrors.AuthError, err, "token rejected again after signing in")
			}
			reauthed = true
			fs.Infof(p, "Token expired, signing in again")
			if authErr := p.reauthenticate(ctx); authErr != nil {
				return false, authErr
			}
			return true, err
		}
		if remaining > 0 && (fserrors.Is(err, fserrors.ProtocolError) || fserrors.ShouldRetry(err)) {
			remaining--
			fs.Debugf(p, "Retrying %s after error: %v", opts.Path, err)
			return true, err
		}
		return false, err
	})
}

// callJSON makes a GET (form == nil) or url-encoded POST to path
func (p *Portal) callJSON(ctx context.Context, path string, params url.Values, form url.Values, response interface{}) error {
	return p.call(ctx, func() (*rest.Opts, error) {
		opts := &rest.Opts{
			Method:     "GET",
			Path:       path,
			Parameters: params,
		}
		if form != nil {
			opts.Method = "POST"
			opts.Form = form
		}
		return opts, nil
	}, response, callOptions{})
}

// callMultipart POSTs fields and files as multipart/form-data to
// path.  The body is rebuilt for each try with the current token.
func (p *Portal) callMultipart(ctx context.Context, path string, fields multipart.Fields, files []multipart.File, response interface{}) error {
	return p.call(ctx, func() (*rest.Opts, error) {
		all := append(multipart.Fields(nil), fields...)
		all.Set("f", "json")
		if token := p.sess.Token(); token != "" {
			all.Set("token", token)
		}
		body, err := multipart.Encode(all, files)
		if err != nil {
			return nil, fserrors.Wrap(fserrors.ValidationError, err, "failed to encode multipart body")
		}
		length := body.ContentLength()
		return &rest.Opts{
			Method:        "POST",
			Path:          path,
			Body:          body.Reader(),
			ContentType:   body.ContentType(),
			ContentLength: &length,
		}, nil
	}, response, callOptions{})
}

// logMutation logs POSTs with their parameters if debug is set
func (p *Portal) logMutation(opts *rest.Opts) {
	if !p.opt.Debug || opts.Method != "POST" {
		return
	}
	if opts.Form != nil {
		fs.Logf(p, "POST %s %s", opts.Path, redacted(opts.Form))
	} else {
		fs.Logf(p, "POST %s (multipart)", opts.Path)
	}
}

// redacted encodes form with the credentials hidden
func redacted(form url.Values) string {
	out := url.Values{}
	for k, vs := range form {
		if k == "token" || k == "password" {
			out.Set(k, "XXXX")
			continue
		}
		out[k] = vs
	}
	return out.Encode()
}

// userPath returns content/users/{user}[/{folder}] for the signed in
// user
func (p *Portal) userPath(folderID string) (string, error) {
	username := p.sess.Username()
	if username == "" {
		return "", fserrors.New(fserrors.AuthError, "not signed in")
	}
	path := "/content/users/" + rest.URLPathEscape(username)
	if folderID != "" {
		path += "/" + rest.URLPathEscape(folderID)
	}
	return path, nil
}

// itemPath returns the path of an action on an item of the user
func (p *Portal) itemPath(folderID, itemID, action string) (string, error) {
	if itemID == "" {
		return "", fserrors.New(fserrors.ValidationError, "empty item id")
	}
	path, err := p.userPath(folderID)
	if err != nil {
		return "", err
	}
	return path + "/items/" + rest.URLPathEscape(itemID) + "/" + action, nil
}

// Check the interfaces are satisfied
var (
	_ fmt.Stringer = (*Portal)(nil)
)
