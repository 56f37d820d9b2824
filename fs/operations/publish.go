// Package operations does the multi step work of publishing a package
// to a portal
package operations

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/sharepkg/sharepkg/backend/portal"
	"github.com/sharepkg/sharepkg/backend/portal/api"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/fserrors"
)

// Stage is a step of publishing a package
type Stage string

// The stages of Publish in the order they run
const (
	StageCheckPackage   Stage = "check package"
	StageResolveFolder  Stage = "resolve folder"
	StageSearchExisting Stage = "search existing"
	StageCreateNew      Stage = "create new"
	StageUpdateExisting Stage = "update existing"
	StageUploadChunks   Stage = "upload chunks"
	StageCommit         Stage = "commit"
	StagePollStatus     Stage = "poll status"
	StageMoveFolder     Stage = "move folder"
	StageUpdateMetadata Stage = "update metadata"
	StageShare          Stage = "share"
	StageDone           Stage = "done"
)

// PublishError is returned when a stage of Publish fails.  Message is
// meant for the user, Err has the details.
type PublishError struct {
	Stage   Stage
	Message string
	Err     error
}

// Error satisfies the error interface
func (e *PublishError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *PublishError) Unwrap() error {
	return e.Err
}

// Cause returns the underlying error for pkg/errors
func (e *PublishError) Cause() error {
	return e.Err
}

// Portal is the part of a portal.Portal Publish needs
type Portal interface {
	Session() *portal.Session
	FindOrCreateFolder(ctx context.Context, name string) (string, error)
	Search(ctx context.Context, opt portal.SearchOptions) ([]api.Item, error)
	CreateItem(ctx context.Context, filePath string, opt portal.UploadOptions) (string, error)
	BeginUpdate(ctx context.Context, itemID, filePath string, opt portal.UploadOptions) error
	UploadParts(ctx context.Context, itemID, filePath string, opt portal.UploadOptions) (int, error)
	Commit(ctx context.Context, itemID string) error
	WaitForStatus(ctx context.Context, itemID string) error
	MoveItems(ctx context.Context, folderID string, items []string) (*api.BulkResponse, error)
	UpdateItem(ctx context.Context, itemID string, md portal.Metadata, folderID, title string) error
	ResolveGroups(ctx context.Context, titles []string) ([]string, error)
	ItemGroups(ctx context.Context, itemID string) ([]string, error)
	ShareItems(ctx context.Context, req portal.ShareRequest) (*api.BulkResponse, error)
}

// PublishOptions control Publish
type PublishOptions struct {
	Path     string // the package file
	Folder   string // title of the folder to publish into, "" for the root
	Title    string // title of the item, the file name without extension if not set
	ItemType string // overrides the type worked out from the extension
	Metadata portal.Metadata
	Groups   []string // titles of the groups to share with
	Everyone bool
	Org      bool

	// Overwrite replaces the data of an existing item of the same
	// title and type instead of creating a new one
	Overwrite bool

	// MaintainMetadata takes the metadata and the sharing from the
	// existing item instead of from the fields above
	MaintainMetadata bool

	// Progress is called as the parts are uploaded
	Progress func(sent, total int64)
}

// PublishResult describes a published package
type PublishResult struct {
	ItemID   string
	FolderID string
	Created  bool // a new item was made rather than an existing one updated
	Moved    bool
	Parts    int
	Shared   *api.BulkResponse // nil if not shared
}

// publish holds the state of one Publish
type publish struct {
	p        Portal
	opt      PublishOptions
	name     string // file name of the package for logging
	title    string
	itemType string
	folderID string
	existing *api.Item
	result   PublishResult
}

// String is used for log prefixes
func (pub *publish) String() string {
	return pub.name
}

// fail makes a PublishError for stage
func fail(stage Stage, err error, message string) error {
	return &PublishError{Stage: stage, Message: message, Err: err}
}

// Publish uploads the package at opt.Path to the portal then applies
// the metadata and sharing.  Any failure stops the remaining stages
// and is returned as a *PublishError.
func Publish(ctx context.Context, p Portal, opt PublishOptions) (*PublishResult, error) {
	pub := &publish{
		p:    p,
		opt:  opt,
		name: filepath.Base(opt.Path),
	}
	var err error
	pub.itemType, err = portal.ResolveItemType(opt.Path, opt.ItemType)
	if err != nil {
		return nil, fail(StageCheckPackage, err, "Can't publish "+pub.name)
	}
	pub.title = opt.Title
	if pub.title == "" {
		pub.title = strings.TrimSuffix(pub.name, filepath.Ext(pub.name))
	}
	for _, step := range []func(context.Context) error{
		pub.resolveFolder,
		pub.searchExisting,
		pub.upload,
		pub.move,
		pub.updateMetadata,
		pub.share,
	} {
		if err = step(ctx); err != nil {
			return nil, err
		}
	}
	fs.Logf(pub, "Published as item %v%v%v", fs.LogValue("itemID", pub.result.ItemID),
		fs.LogValueHide("created", pub.result.Created), fs.LogValueHide("parts", pub.result.Parts))
	return &pub.result, nil
}

func (pub *publish) resolveFolder(ctx context.Context) (err error) {
	pub.folderID, err = pub.p.FindOrCreateFolder(ctx, pub.opt.Folder)
	if err != nil {
		return fail(StageResolveFolder, err, "Couldn't find or create the folder "+quote(pub.opt.Folder))
	}
	pub.result.FolderID = pub.folderID
	return nil
}

// searchExisting looks for an item of the same title and type owned
// by the user.  One in the destination folder is preferred.
func (pub *publish) searchExisting(ctx context.Context) error {
	if !pub.opt.Overwrite && !pub.opt.MaintainMetadata {
		return nil
	}
	items, err := pub.p.Search(ctx, portal.SearchOptions{
		Title:    pub.title,
		ItemType: pub.itemType,
		Owner:    pub.p.Session().Username(),
	})
	if err != nil {
		return fail(StageSearchExisting, err, "Couldn't search for an existing package")
	}
	var matches []api.Item
	for i := range items {
		if portal.SameItem(&items[i], pub.title, pub.itemType) {
			matches = append(matches, items[i])
		} else {
			fs.Debugf(pub, "Ignoring search result %s %q of type %q", items[i].ID, items[i].Title, items[i].Type)
		}
	}
	for i := range matches {
		if matches[i].OwnerFolder == pub.folderID {
			pub.existing = &matches[i]
			break
		}
	}
	if pub.existing == nil && len(matches) > 0 {
		pub.existing = &matches[0]
	}
	if pub.existing == nil {
		if pub.opt.MaintainMetadata {
			return fail(StageSearchExisting, fserrors.Newf(fserrors.NotFoundError, "no %s called %q", pub.itemType, pub.title),
				"existing package not found — check the folder or disable maintain-metadata")
		}
		fs.Debugf(pub, "No existing %s called %q", pub.itemType, pub.title)
		return nil
	}
	fs.Infof(pub, "Found existing item %s (access %s)", pub.existing.ID, pub.existing.Access)
	return nil
}

// upload creates or updates the item then sends the data
func (pub *publish) upload(ctx context.Context) (err error) {
	opt := portal.UploadOptions{
		ItemType: pub.itemType,
		Title:    pub.title,
		Progress: pub.opt.Progress,
	}
	var itemID string
	if pub.opt.Overwrite && pub.existing != nil {
		itemID = pub.existing.ID
		opt.FolderID = pub.existing.OwnerFolder
		if err = pub.p.BeginUpdate(ctx, itemID, pub.opt.Path, opt); err != nil {
			return fail(StageUpdateExisting, err, "Couldn't update the existing package")
		}
	} else {
		opt.FolderID = pub.folderID
		if itemID, err = pub.p.CreateItem(ctx, pub.opt.Path, opt); err != nil {
			return fail(StageCreateNew, err, "Couldn't create the package on the portal")
		}
		pub.result.Created = true
	}
	pub.result.ItemID = itemID
	if pub.result.Parts, err = pub.p.UploadParts(ctx, itemID, pub.opt.Path, opt); err != nil {
		return fail(StageUploadChunks, err, "Couldn't upload the package")
	}
	if err = pub.p.Commit(ctx, itemID); err != nil {
		return fail(StageCommit, err, "Couldn't commit the package")
	}
	if err = pub.p.WaitForStatus(ctx, itemID); err != nil {
		return fail(StagePollStatus, err, "The portal couldn't process the package")
	}
	fs.Infof(pub, "Uploaded %d parts to item %s", pub.result.Parts, itemID)
	return nil
}

// move puts an updated item into the destination folder if it was
// found elsewhere
func (pub *publish) move(ctx context.Context) error {
	if pub.result.Created || pub.existing == nil || pub.existing.OwnerFolder == pub.folderID {
		return nil
	}
	if _, err := pub.p.MoveItems(ctx, pub.folderID, []string{pub.result.ItemID}); err != nil {
		return fail(StageMoveFolder, err, "Couldn't move the package to the folder "+quote(pub.opt.Folder))
	}
	pub.result.Moved = true
	return nil
}

// metadata returns the metadata to set.  In maintain mode it is that
// of the existing item, otherwise the caller's.
func (pub *publish) metadata() portal.Metadata {
	if pub.opt.MaintainMetadata {
		return portal.MetadataFromItem(pub.existing)
	}
	return pub.opt.Metadata
}

func (pub *publish) updateMetadata(ctx context.Context) error {
	md := pub.metadata()
	if md.IsZero() {
		fs.Debugf(pub, "No metadata to set")
		return nil
	}
	if err := pub.p.UpdateItem(ctx, pub.result.ItemID, md, pub.folderID, ""); err != nil {
		return fail(StageUpdateMetadata, err, "Couldn't set the package metadata")
	}
	return nil
}

// shareRequest returns the sharing scope.  In maintain mode it comes
// from the access and the groups of the existing item, otherwise from
// the caller.
func (pub *publish) shareRequest(ctx context.Context) (req portal.ShareRequest, err error) {
	req.Items = []string{pub.result.ItemID}
	if pub.opt.MaintainMetadata {
		switch pub.existing.Access {
		case api.AccessPublic:
			req.Everyone = true
		case api.AccessOrg:
			req.Org = true
		case api.AccessPrivate, "":
			return req, nil
		}
		// shared, org and public items may also be in groups
		req.Groups, err = pub.p.ItemGroups(ctx, pub.existing.ID)
		return req, err
	}
	req.Everyone = pub.opt.Everyone
	req.Org = pub.opt.Org
	req.Groups, err = pub.p.ResolveGroups(ctx, pub.opt.Groups)
	return req, err
}

func (pub *publish) share(ctx context.Context) error {
	req, err := pub.shareRequest(ctx)
	if err != nil {
		return fail(StageShare, err, "Couldn't find the groups to share with")
	}
	if !req.HasScope() {
		fs.Debugf(pub, "Not sharing")
		return nil
	}
	resp, err := pub.p.ShareItems(ctx, req)
	if err == nil && resp != nil {
		err = resp.Err(fserrors.ShareError, "share")
	}
	if err != nil {
		return fail(StageShare, err, "Could not set sharing properties")
	}
	pub.result.Shared = resp
	return nil
}

func quote(folder string) string {
	if folder == "" {
		return "(root)"
	}
	return `"` + folder + `"`
}

// Check the interfaces are satisfied
var (
	_ Portal = (*portal.Portal)(nil)
	_ error  = (*PublishError)(nil)
)
