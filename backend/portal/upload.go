package portal

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sharepkg/sharepkg/backend/portal/api"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/fserrors"
	"github.com/sharepkg/sharepkg/lib/multipart"
)

// UploadOptions control AddItem and UpdateItemFile
type UploadOptions struct {
	FolderID string // folder to create the item in, "" for the root
	ItemType string // overrides the type worked out from the extension
	Title    string // defaults to the file name

	// Progress is called after each part with the bytes sent so far
	// and the size of the file
	Progress func(sent, total int64)
}

// AddItem uploads the package at filePath as a new item and waits for
// the portal to process it.  It returns the id of the new item.
func (p *Portal) AddItem(ctx context.Context, filePath string, opt UploadOptions) (itemID string, err error) {
	itemID, err = p.CreateItem(ctx, filePath, opt)
	if err != nil {
		return "", err
	}
	return itemID, p.upload(ctx, itemID, filePath, opt)
}

// CreateItem makes the placeholder item which the parts of the package
// at filePath are uploaded into.  It returns the id of the new item.
func (p *Portal) CreateItem(ctx context.Context, filePath string, opt UploadOptions) (itemID string, err error) {
	itemType, err := ResolveItemType(filePath, opt.ItemType)
	if err != nil {
		return "", err
	}
	if _, err = packageSize(filePath); err != nil {
		return "", err
	}
	path, err := p.userPath(opt.FolderID)
	if err != nil {
		return "", err
	}
	fileName := filepath.Base(filePath)
	var fields multipart.Fields
	fields.Add("multipart", "true")
	fields.Add("filename", fileName)
	fields.Add("type", itemType)
	fields.Add("title", titleOf(fileName, opt.Title))
	var added api.AddItemResponse
	err = p.callMultipart(ctx, path+"/addItem", fields, nil, &added)
	if err != nil {
		if strings.Contains(err.Error(), "Item already exists") {
			return "", fserrors.Wrap(fserrors.UploadError, err, "An item with this name already exists")
		}
		return "", fserrors.Wrap(fserrors.UploadError, err, "failed to create the item")
	}
	if added.ID == "" {
		return "", fserrors.New(fserrors.ProtocolError, "addItem returned no item id")
	}
	fs.Infof(p, "Created item %s for %q (%s)", added.ID, fileName, itemType)
	return added.ID, nil
}

// UpdateItemFile replaces the data of an existing item with the
// package at filePath using the same part protocol as AddItem.
func (p *Portal) UpdateItemFile(ctx context.Context, itemID, filePath string, opt UploadOptions) error {
	if err := p.BeginUpdate(ctx, itemID, filePath, opt); err != nil {
		return err
	}
	return p.upload(ctx, itemID, filePath, opt)
}

// BeginUpdate tells the portal that the data of an existing item is
// about to be replaced by the parts of the package at filePath.
func (p *Portal) BeginUpdate(ctx context.Context, itemID, filePath string, opt UploadOptions) error {
	itemType, err := ResolveItemType(filePath, opt.ItemType)
	if err != nil {
		return err
	}
	if _, err = packageSize(filePath); err != nil {
		return err
	}
	path, err := p.itemPath(opt.FolderID, itemID, "update")
	if err != nil {
		return err
	}
	fileName := filepath.Base(filePath)
	var fields multipart.Fields
	fields.Add("multipart", "true")
	fields.Add("filename", fileName)
	fields.Add("type", itemType)
	if opt.Title != "" {
		fields.Add("title", opt.Title)
	}
	var resp api.SuccessResponse
	if err = p.callMultipart(ctx, path, fields, nil, &resp); err != nil {
		return fserrors.Wrap(fserrors.UploadError, err, "failed to start updating the item")
	}
	if !resp.Success {
		return fserrors.Newf(fserrors.UploadError, "portal refused to update item %s", itemID)
	}
	fs.Infof(p, "Replacing the data of item %s with %q", itemID, fileName)
	return nil
}

// upload sends the parts, commits and waits for processing
func (p *Portal) upload(ctx context.Context, itemID, filePath string, opt UploadOptions) error {
	parts, err := p.UploadParts(ctx, itemID, filePath, opt)
	if err != nil {
		return err
	}
	fs.Debugf(p, "Sent %d parts of item %s", parts, itemID)
	if err = p.Commit(ctx, itemID); err != nil {
		return err
	}
	return p.WaitForStatus(ctx, itemID)
}

// packageSize checks filePath is a non empty regular file
func packageSize(filePath string) (int64, error) {
	fi, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fserrors.Newf(fserrors.ValidationError, "the file %s was not found", filePath)
		}
		return 0, fserrors.Wrap(fserrors.ValidationError, err, "can't read package")
	}
	if !fi.Mode().IsRegular() {
		return 0, fserrors.Newf(fserrors.ValidationError, "%s is not a file", filePath)
	}
	if fi.Size() == 0 {
		return 0, fserrors.Newf(fserrors.UploadError, "%s is empty", filePath)
	}
	return fi.Size(), nil
}

// titleOf returns title or the file name without its extension
func titleOf(fileName, title string) string {
	if title != "" {
		return title
	}
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}

// UploadParts streams the package at filePath in chunks of the
// configured size, one addPart per chunk with part numbers from 1.  It
// returns the number of parts sent.
func (p *Portal) UploadParts(ctx context.Context, itemID, filePath string, opt UploadOptions) (parts int, err error) {
	itemType, err := ResolveItemType(filePath, opt.ItemType)
	if err != nil {
		return 0, err
	}
	size, err := packageSize(filePath)
	if err != nil {
		return 0, err
	}
	path, err := p.itemPath("", itemID, "addPart")
	if err != nil {
		return 0, err
	}
	in, err := os.Open(filePath)
	if err != nil {
		return 0, fserrors.Wrap(fserrors.UploadError, err, "failed to open package")
	}
	defer fs.CheckClose(in, &err)

	fileName := filepath.Base(filePath)
	buf := make([]byte, int(p.opt.ChunkSize))
	var sent int64
	for partNum := 1; ; partNum++ {
		n, readErr := io.ReadFull(in, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return parts, fserrors.Wrap(fserrors.UploadError, readErr, "failed to read package")
		}
		var fields multipart.Fields
		fields.Add("partNum", strconv.Itoa(partNum))
		fields.Add("title", fileName)
		fields.Add("itemType", "file")
		fields.Add("type", itemType)
		files := []multipart.File{{
			Name:        "file",
			FileName:    fileName,
			ContentType: multipart.DefaultContentType,
			Content:     buf[:n],
		}}
		var resp api.SuccessResponse
		if err = p.callMultipart(ctx, path, fields, files, &resp); err != nil {
			return parts, fserrors.Wrapf(fserrors.UploadError, err, "failed to upload part %d", partNum)
		}
		parts++
		sent += int64(n)
		p.metrics.onPart(n)
		fs.Debugf(p, "Sent part %d of item %s (%d/%d bytes)", partNum, itemID, sent, size)
		if opt.Progress != nil {
			opt.Progress(sent, size)
		}
		if readErr == io.ErrUnexpectedEOF {
			break
		}
	}
	return parts, nil
}

// Commit asks the portal to assemble the parts of an item
func (p *Portal) Commit(ctx context.Context, itemID string) error {
	path, err := p.itemPath("", itemID, "commit")
	if err != nil {
		return err
	}
	var resp api.SuccessResponse
	if err = p.callJSON(ctx, path, nil, url.Values{}, &resp); err != nil {
		return fserrors.Wrap(fserrors.UploadError, err, "failed to commit the item")
	}
	if !resp.Success {
		return fserrors.Newf(fserrors.UploadError, "portal refused to commit item %s", itemID)
	}
	return nil
}

// ItemStatus reads the processing status of an item
func (p *Portal) ItemStatus(ctx context.Context, itemID string) (*api.StatusResponse, error) {
	path, err := p.itemPath("", itemID, "status")
	if err != nil {
		return nil, err
	}
	var status api.StatusResponse
	if err = p.callJSON(ctx, path, nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// WaitForStatus polls the status of an item until the portal stops
// processing it.  A failed item is an UploadError.
//
// It waits forever unless ctx is cancelled or poll_timeout is set.
func (p *Portal) WaitForStatus(ctx context.Context, itemID string) error {
	pollCtx := ctx
	if p.opt.PollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, p.opt.PollTimeout)
		defer cancel()
	}
	timedOut := func(err error) error {
		if ctx.Err() == nil && pollCtx.Err() != nil {
			return fserrors.Wrapf(fserrors.UploadError, pollCtx.Err(), "gave up waiting for item %s to be processed after %v", itemID, p.opt.PollTimeout)
		}
		return err
	}
	for {
		status, err := p.ItemStatus(pollCtx, itemID)
		if err != nil {
			return timedOut(err)
		}
		switch {
		case status.Status == api.StatusFailed:
			p.metrics.onStatus(string(status.Status))
			e := &fserrors.Error{
				Kind:    fserrors.UploadError,
				Message: "Failed in processing the file on the portal",
			}
			if status.StatusMessage != "" {
				e.Details = []string{status.StatusMessage}
			}
			return e
		case status.Status.Pending():
			fs.Debugf(p, "Item %s is %s", itemID, status.Status)
			if err = p.sleep(pollCtx, p.opt.PollInterval); err != nil {
				return timedOut(err)
			}
		default:
			p.metrics.onStatus(string(status.Status))
			fs.Infof(p, "Item %s processed: %s", itemID, status.Status)
			return nil
		}
	}
}
