package portal

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/sharepkg/sharepkg/backend/portal/api"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/fserrors"
)

// ShareRequest says who to share items with
type ShareRequest struct {
	Items    []string // item ids
	Groups   []string // group ids
	Everyone bool     // share with the public
	Org      bool     // share with the organisation
}

// HasScope is true if the request shares with anyone
func (r *ShareRequest) HasScope() bool {
	return len(r.Groups) > 0 || r.Everyone || r.Org
}

// ShareItems shares the items.  Sharing with everyone always shares
// with the organisation too.
//
// A request with no items or no scope does nothing and returns nil.
// Otherwise the per item results are returned and the caller must
// check them, e.g. with Err.
func (p *Portal) ShareItems(ctx context.Context, req ShareRequest) (*api.BulkResponse, error) {
	if len(req.Items) == 0 || !req.HasScope() {
		fs.Warnf(p, "Not sharing: need items and at least one of groups, everyone or org")
		return nil, nil
	}
	for _, item := range req.Items {
		if item == "" {
			return nil, fserrors.New(fserrors.ValidationError, "can't share an empty item id")
		}
	}
	org := req.Org || req.Everyone
	path, err := p.userPath("")
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"everyone": {strconv.FormatBool(req.Everyone)},
		"org":      {strconv.FormatBool(org)},
		"items":    {strings.Join(req.Items, ",")},
	}
	if len(req.Groups) > 0 {
		form.Set("groups", strings.Join(req.Groups, ","))
	}
	var resp api.BulkResponse
	if err = p.callJSON(ctx, path+"/shareItems", nil, form, &resp); err != nil {
		return nil, err
	}
	if p.opt.Debug {
		fs.Logf(p, "Shared %d items: %d failed", len(req.Items), len(resp.Failed()))
	}
	return &resp, nil
}
