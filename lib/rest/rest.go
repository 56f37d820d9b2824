// Package rest implements a simple REST wrapper
//
// All methods are safe for concurrent calling.
package rest

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/fserrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FormContentType is the content type of url-encoded POST bodies
const FormContentType = "application/x-www-form-urlencoded; charset=UTF-8"

// Client contains the info to sustain the API
type Client struct {
	mu           sync.RWMutex
	c            *http.Client
	rootURL      string
	errorHandler func(resp *http.Response) error
	headers      map[string]string
	signer       ParamSignerFn
}

// NewClient takes an http.Client and makes a new api instance
func NewClient(c *http.Client) *Client {
	api := &Client{
		c:            c,
		errorHandler: defaultErrorHandler,
		headers:      make(map[string]string),
	}
	return api
}

// ReadBody reads resp.Body into result, closing the body.  A gzip
// encoded body is decompressed.
func ReadBody(resp *http.Response) (result []byte, err error) {
	defer fs.CheckClose(resp.Body, &err)
	var in io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		var gz *gzip.Reader
		gz, err = gzip.NewReader(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open gzip body")
		}
		defer fs.CheckClose(gz, &err)
		in = gz
	}
	return ioutil.ReadAll(in)
}

// defaultErrorHandler doesn't attempt to parse the http body, just
// returns it in the error message closing resp.Body
func defaultErrorHandler(resp *http.Response) (err error) {
	body, err := ReadBody(resp)
	if err != nil {
		return fserrors.Wrap(fserrors.TransportError, err, "error reading error out of body")
	}
	return fserrors.Newf(fserrors.TransportError, "HTTP error %v (%v) returned body: %q", resp.StatusCode, resp.Status, body)
}

// SetErrorHandler sets the handler to decode an error response when
// the HTTP status code is not 2xx.  The handler should close resp.Body.
func (api *Client) SetErrorHandler(fn func(resp *http.Response) error) *Client {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.errorHandler = fn
	return api
}

// SetRoot sets the default RootURL.  You can override this on a per
// call basis using the RootURL field in Opts.
func (api *Client) SetRoot(RootURL string) *Client {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.rootURL = RootURL
	return api
}

// SetHeader sets a header for all requests
func (api *Client) SetHeader(key, value string) *Client {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.headers[key] = value
	return api
}

// ParamSignerFn adds credentials to the parameters of an outgoing
// request
type ParamSignerFn func(params url.Values) error

// SetSigner sets a signer for all requests.  It is called with the
// query parameters of a GET or the form of a POST.  Requests with a
// pre-encoded Body are not signed.
func (api *Client) SetSigner(signer ParamSignerFn) *Client {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.signer = signer
	return api
}

// Opts contains parameters for Call, CallJSON, etc.
type Opts struct {
	Method        string // GET, POST, etc.
	Path          string // relative to RootURL
	RootURL       string // override RootURL passed into SetRoot()
	Body          io.Reader
	ContentType   string
	ContentLength *int64
	ExtraHeaders  map[string]string
	IgnoreStatus  bool       // if set then we don't check error status or parse error body
	Parameters    url.Values // any parameters for the final URL
	Form          url.Values // if set, url-encoded as the body of a POST
	NoSign        bool       // if set the signer isn't called
}

// DecodeJSON decodes resp.Body into result
func DecodeJSON(resp *http.Response, result interface{}) (err error) {
	body, err := ReadBody(resp)
	if err != nil {
		return fserrors.Wrap(fserrors.TransportError, err, "failed to read response")
	}
	if err = json.Unmarshal(body, result); err != nil {
		return fserrors.Wrapf(fserrors.TransportError, err, "response is not valid JSON: %q", truncate(body, 256))
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// signed returns a copy of params with the signer applied
func (api *Client) signed(params url.Values) (url.Values, error) {
	out := url.Values{}
	for k, vs := range params {
		out[k] = append([]string(nil), vs...)
	}
	if api.signer != nil {
		if err := api.signer(out); err != nil {
			return nil, errors.Wrap(err, "signer failed")
		}
	}
	return out, nil
}

// Call makes the call and returns the http.Response
//
// if err == nil then resp.Body will need to be closed
//
// if err != nil then resp.Body will have been closed
//
// it will return resp if at all possible, even if err is set
func (api *Client) Call(ctx context.Context, opts *Opts) (resp *http.Response, err error) {
	api.mu.RLock()
	defer api.mu.RUnlock()
	if opts == nil {
		return nil, errors.New("call() called with nil opts")
	}
	url := api.rootURL
	if opts.RootURL != "" {
		url = opts.RootURL
	}
	if url == "" {
		return nil, errors.New("RootURL not set")
	}
	url += opts.Path
	params := opts.Parameters
	body := opts.Body
	contentType := opts.ContentType
	sign := !opts.NoSign && body == nil
	if opts.Form != nil {
		form := opts.Form
		if sign {
			if form, err = api.signed(form); err != nil {
				return nil, err
			}
			sign = false
		}
		body = strings.NewReader(form.Encode())
		contentType = FormContentType
	}
	if sign && (params != nil || api.signer != nil) {
		if params, err = api.signed(params); err != nil {
			return nil, err
		}
	}
	if len(params) > 0 {
		url += "?" + params.Encode()
	}
	method := opts.Method
	if method == "" {
		method = "GET"
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	headers := make(map[string]string)
	// Set default headers
	for k, v := range api.headers {
		headers[k] = v
	}
	headers["Accept-Encoding"] = "gzip"
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	if opts.ContentLength != nil {
		req.ContentLength = *opts.ContentLength
	}
	// Set any extra headers
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	// Now set the headers
	for k, v := range headers {
		if k != "" && v != "" {
			req.Header.Set(k, v)
		}
	}
	c := api.c
	errorHandler := api.errorHandler
	api.mu.RUnlock()
	resp, err = c.Do(req)
	api.mu.RLock()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fserrors.Wrapf(fserrors.TransportError, err, "%s %s failed", method, opts.Path)
	}
	if !opts.IgnoreStatus {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err = errorHandler(resp)
			if err == nil || err.Error() == "" {
				// replace empty errors with something
				err = fserrors.Newf(fserrors.TransportError, "http error %d: %v", resp.StatusCode, resp.Status)
			}
			return resp, err
		}
	}
	return resp, nil
}

// CallJSON runs Call and decodes the body as a JSON object into
// response (if not nil)
//
// If response is not nil then the response will be JSON decoded into
// it and resp.Body will be closed.
//
// If response is nil then resp.Body is left for the caller to close.
//
// It will return resp if at all possible, even if err is set
func (api *Client) CallJSON(ctx context.Context, opts *Opts, response interface{}) (resp *http.Response, err error) {
	resp, err = api.Call(ctx, opts)
	if err != nil {
		return resp, err
	}
	if response == nil {
		return resp, nil
	}
	err = DecodeJSON(resp, response)
	return resp, err
}
