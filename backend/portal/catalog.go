package portal

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/sharepkg/sharepkg/backend/portal/api"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/fserrors"
	"github.com/sharepkg/sharepkg/lib/multipart"
	"github.com/sharepkg/sharepkg/lib/rest"
	"golang.org/x/text/unicode/norm"
)

// sameTitle compares titles after unicode normalisation so a title
// typed on one system matches the one the portal stored.
func sameTitle(a, b string) bool {
	return norm.NFC.String(strings.TrimSpace(a)) == norm.NFC.String(strings.TrimSpace(b))
}

// SameItem reports whether item has exactly the title and type given.
// Searches match titles as text so their results need checking.
func SameItem(item *api.Item, title, itemType string) bool {
	return sameTitle(item.Title, title) && item.Type == itemType
}

// UserContent reads the items and folders in the root of a user's
// content.  An empty username means the signed in user.
func (p *Portal) UserContent(ctx context.Context, username string) (*api.UserContent, error) {
	if username == "" {
		username = p.sess.Username()
	}
	if username == "" {
		return nil, fserrors.New(fserrors.AuthError, "not signed in")
	}
	var content api.UserContent
	err := p.callJSON(ctx, "/content/users/"+rest.URLPathEscape(username), nil, nil, &content)
	if err != nil {
		return nil, err
	}
	return &content, nil
}

// User reads a user.  An empty username means the signed in user.
func (p *Portal) User(ctx context.Context, username string) (*api.User, error) {
	if username == "" {
		username = p.sess.Username()
	}
	if username == "" {
		return nil, fserrors.New(fserrors.AuthError, "not signed in")
	}
	var user api.User
	err := p.callJSON(ctx, "/community/users/"+rest.URLPathEscape(username), nil, nil, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Item reads the details of an item
func (p *Portal) Item(ctx context.Context, itemID string) (*api.Item, error) {
	if itemID == "" {
		return nil, fserrors.New(fserrors.ValidationError, "empty item id")
	}
	var item api.Item
	err := p.callJSON(ctx, "/content/items/"+rest.URLPathEscape(itemID), nil, nil, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ItemData reads the data document of an item, e.g. the JSON of a
// web map.  Items stored as files have no document and give a
// ProtocolError.
func (p *Portal) ItemData(ctx context.Context, itemID string) (map[string]interface{}, error) {
	if itemID == "" {
		return nil, fserrors.New(fserrors.ValidationError, "empty item id")
	}
	data := map[string]interface{}{}
	err := p.callJSON(ctx, "/content/items/"+rest.URLPathEscape(itemID)+"/data", nil, nil, &data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ListFolders returns the folders of the signed in user as title to
// id.  It is read fresh every time.
func (p *Portal) ListFolders(ctx context.Context) (map[string]string, error) {
	content, err := p.UserContent(ctx, "")
	if err != nil {
		return nil, err
	}
	folders := make(map[string]string, len(content.Folders))
	for _, folder := range content.Folders {
		folders[folder.Title] = folder.ID
	}
	return folders, nil
}

// CreateFolder makes a folder and returns its id
func (p *Portal) CreateFolder(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fserrors.New(fserrors.ValidationError, "empty folder name")
	}
	path, err := p.userPath("")
	if err != nil {
		return "", err
	}
	var resp api.CreateFolderResponse
	if err = p.callJSON(ctx, path+"/createFolder", nil, url.Values{"title": {name}}, &resp); err != nil {
		return "", err
	}
	if resp.Folder.ID == "" {
		return "", fserrors.Newf(fserrors.ProtocolError, "creating folder %q returned no id", name)
	}
	fs.Infof(p, "Created folder %q (%s)", name, resp.Folder.ID)
	return resp.Folder.ID, nil
}

// lookupFolder finds name in folders
func lookupFolder(folders map[string]string, name string) (string, bool) {
	if id, ok := folders[name]; ok {
		return id, true
	}
	for title, id := range folders {
		if sameTitle(title, name) {
			return id, true
		}
	}
	return "", false
}

// FindOrCreateFolder returns the id of the folder called name,
// creating it if it doesn't exist.  An empty name is the root folder
// which has the id "".
func (p *Portal) FindOrCreateFolder(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	folders, err := p.ListFolders(ctx)
	if err != nil {
		return "", err
	}
	if id, ok := lookupFolder(folders, name); ok {
		return id, nil
	}
	createdID, err := p.CreateFolder(ctx, name)
	if err != nil {
		return "", err
	}
	folders, err = p.ListFolders(ctx)
	if err != nil {
		return "", err
	}
	if id, ok := lookupFolder(folders, name); ok {
		return id, nil
	}
	fs.Debugf(p, "Folder %q not listed yet, using id %s from create", name, createdID)
	return createdID, nil
}

// SearchOptions describe a search.  The non empty fields are ANDed.
type SearchOptions struct {
	Title    string
	ItemType string
	Group    string
	Owner    string
	ID       string
	Name     string
	Num      int // max results, 10 if not set
	Repeat   int // search up to this many times while nothing is found
}

// Query returns the search query or "" if no fields are set
func (o *SearchOptions) Query() string {
	var parts []string
	for _, field := range []struct {
		label string
		value string
	}{
		{"title", o.Title},
		{"type", o.ItemType},
		{"group", o.Group},
		{"owner", o.Owner},
		{"id", o.ID},
		{"name", o.Name},
	} {
		if field.value != "" {
			parts = append(parts, fmt.Sprintf(`%s: "%s"`, field.label, field.value))
		}
	}
	return strings.Join(parts, " AND ")
}

var errNoResults = errors.New("no search results")

// Search finds items.  With no fields set it returns nothing without
// calling the portal.  Results without an id are dropped.
func (p *Portal) Search(ctx context.Context, opt SearchOptions) (items []api.Item, err error) {
	query := opt.Query()
	if query == "" {
		fs.Debugf(p, "Search with no fields, not searching")
		return nil, nil
	}
	num := opt.Num
	if num <= 0 {
		num = 10
	}
	params := url.Values{
		"q":   {query},
		"num": {strconv.Itoa(num)},
	}
	if p.opt.Debug {
		fs.Logf(p, "Searching for '%s'", query)
	}
	search := func() error {
		var resp api.SearchResponse
		if err := p.callJSON(ctx, "/search", params, nil, &resp); err != nil {
			return err
		}
		items = items[:0]
		if resp.Total > 0 {
			for _, item := range resp.Results {
				if item.ID != "" {
					items = append(items, item)
				}
			}
		}
		if len(items) == 0 {
			return errNoResults
		}
		return nil
	}
	attempts := opt.Repeat
	if attempts < 1 {
		attempts = 1
	}
	err = retry.Do(search,
		retry.Attempts(uint(attempts)),
		retry.Delay(p.searchDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return err == errNoResults
		}),
	)
	if err == errNoResults {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	if p.opt.Debug {
		fs.Logf(p, "Search found %d items", len(items))
	}
	return items, nil
}

// SearchIDs is Search returning only the item ids
func (p *Portal) SearchIDs(ctx context.Context, opt SearchOptions) ([]string, error) {
	items, err := p.Search(ctx, opt)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// MoveItems moves items into a folder.  An empty folder id is the
// root folder.
func (p *Portal) MoveItems(ctx context.Context, folderID string, items []string) (*api.BulkResponse, error) {
	if len(items) == 0 {
		return nil, fserrors.New(fserrors.ValidationError, "no items to move")
	}
	for _, item := range items {
		if item == "" {
			return nil, fserrors.New(fserrors.ValidationError, "can't move an empty item id, a previous step may have failed")
		}
	}
	path, err := p.userPath("")
	if err != nil {
		return nil, err
	}
	folder := folderID
	if folder == "" {
		folder = "/"
	}
	form := url.Values{
		"folder": {folder},
		"items":  {strings.Join(items, ",")},
	}
	var resp api.BulkResponse
	if err = p.callJSON(ctx, path+"/moveItems", nil, form, &resp); err != nil {
		return nil, err
	}
	return &resp, resp.Err(fserrors.ProtocolError, "move")
}

// Metadata are the descriptive fields of an item.  Empty fields are
// left as they are.
type Metadata struct {
	Snippet           string
	Description       string
	Tags              []string
	AccessInformation string
	LicenseInfo       string
	Thumbnail         string // path of an image file, optional
}

// IsZero is true if no fields are set
func (md *Metadata) IsZero() bool {
	return md.Snippet == "" && md.Description == "" && len(md.Tags) == 0 &&
		md.AccessInformation == "" && md.LicenseInfo == "" && md.Thumbnail == ""
}

// MetadataFromItem copies the descriptive fields of an item
func MetadataFromItem(item *api.Item) Metadata {
	return Metadata{
		Snippet:           item.Snippet,
		Description:       item.Description,
		Tags:              append([]string(nil), item.Tags...),
		AccessInformation: item.AccessInformation,
		LicenseInfo:       item.LicenseInfo,
	}
}

// fields returns the update fields in wire order
func (md *Metadata) fields() (fields multipart.Fields) {
	add := func(name, value string) {
		if value != "" {
			fields.Add(name, value)
		}
	}
	add("snippet", md.Snippet)
	add("description", md.Description)
	add("tags", strings.Join(md.Tags, ","))
	add("accessInformation", md.AccessInformation)
	add("licenseInfo", md.LicenseInfo)
	return fields
}

// UpdateItem sets the metadata and optionally the title of an item.
// With a thumbnail the update is sent as multipart, otherwise it is
// url-encoded.
func (p *Portal) UpdateItem(ctx context.Context, itemID string, md Metadata, folderID, title string) error {
	path, err := p.itemPath(folderID, itemID, "update")
	if err != nil {
		return err
	}
	fields := md.fields()
	if title != "" {
		fields.Add("title", title)
	}
	var resp api.SuccessResponse
	if md.Thumbnail != "" {
		content, err := ioutil.ReadFile(md.Thumbnail)
		if err != nil {
			return fserrors.Wrap(fserrors.ValidationError, err, "failed to read thumbnail")
		}
		fileName := filepath.Base(md.Thumbnail)
		files := []multipart.File{{
			Name:        "thumbnail",
			FileName:    fileName,
			ContentType: multipart.GuessContentType(fileName, "", content),
			Content:     content,
		}}
		err = p.callMultipart(ctx, path, fields, files, &resp)
		if err != nil {
			return err
		}
	} else {
		form := url.Values{}
		for _, field := range fields {
			form.Add(field.Name, field.Value)
		}
		if err = p.callJSON(ctx, path, nil, form, &resp); err != nil {
			return err
		}
	}
	if !resp.Success {
		return fserrors.Newf(fserrors.ProtocolError, "portal refused to update item %s", itemID)
	}
	return nil
}

// DeleteOptions say which item to delete.  Either ID or Title and
// ItemType must be set.
type DeleteOptions struct {
	ID       string
	FolderID string // folder of the item if known
	Title    string
	ItemType string
	Repeat   int // passed to the search for Title and ItemType
}

// Delete removes an item.  An item given by title and type is found
// with a search of the user's items then its folder is read from the
// item details.
func (p *Portal) Delete(ctx context.Context, opt DeleteOptions) error {
	itemID, folderID := opt.ID, opt.FolderID
	if itemID == "" {
		if opt.Title == "" || opt.ItemType == "" {
			return fserrors.New(fserrors.ValidationError, "need an item id or a title and type to delete")
		}
		items, err := p.Search(ctx, SearchOptions{
			Title:    opt.Title,
			ItemType: opt.ItemType,
			Owner:    p.sess.Username(),
			Repeat:   opt.Repeat,
		})
		if err != nil {
			return err
		}
		for i := range items {
			if SameItem(&items[i], opt.Title, opt.ItemType) {
				itemID = items[i].ID
				break
			}
		}
		if itemID == "" {
			return fserrors.Newf(fserrors.NotFoundError, "no %s called %q to delete", opt.ItemType, opt.Title)
		}
		item, err := p.Item(ctx, itemID)
		if err != nil {
			return err
		}
		folderID = item.OwnerFolder
	}
	path, err := p.itemPath(folderID, itemID, "delete")
	if err != nil {
		return err
	}
	var resp api.SuccessResponse
	if err = p.callJSON(ctx, path, nil, url.Values{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fserrors.Newf(fserrors.ProtocolError, "portal refused to delete item %s", itemID)
	}
	fs.Infof(p, "Deleted item %s", itemID)
	return nil
}

// ListGroups returns the groups of the signed in user as title to id.
// The answer is cached for a minute.
func (p *Portal) ListGroups(ctx context.Context) (map[string]string, error) {
	username := p.sess.Username()
	if cached, ok := p.groups.Get(username); ok {
		return cached.(map[string]string), nil
	}
	user, err := p.User(ctx, username)
	if err != nil {
		return nil, err
	}
	groups := make(map[string]string, len(user.Groups))
	for _, group := range user.Groups {
		groups[group.Title] = group.ID
	}
	p.groups.SetDefault(username, groups)
	return groups, nil
}

// ItemGroups returns the ids of the groups an item is shared with
func (p *Portal) ItemGroups(ctx context.Context, itemID string) ([]string, error) {
	if itemID == "" {
		return nil, fserrors.New(fserrors.ValidationError, "empty item id")
	}
	var groups api.ItemGroups
	err := p.callJSON(ctx, "/content/items/"+rest.URLPathEscape(itemID)+"/groups", nil, nil, &groups)
	if err != nil {
		return nil, err
	}
	return groups.IDs(), nil
}

// SplitGroups splits a list of group titles separated by ; or ,
func SplitGroups(in string) (groups []string) {
	for _, group := range strings.FieldsFunc(in, func(r rune) bool { return r == ';' || r == ',' }) {
		if group = strings.TrimSpace(group); group != "" {
			groups = append(groups, group)
		}
	}
	return groups
}

// ResolveGroups turns group titles into ids.  Titles which aren't
// groups of the user are skipped with a warning.  If none of them are
// found it is a NotFoundError.
func (p *Portal) ResolveGroups(ctx context.Context, titles []string) ([]string, error) {
	if len(titles) == 0 {
		return nil, nil
	}
	groups, err := p.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, title := range titles {
		id, ok := groups[title]
		if !ok {
			for groupTitle, groupID := range groups {
				if sameTitle(groupTitle, title) {
					id, ok = groupID, true
					break
				}
			}
		}
		if !ok {
			fs.Warnf(p, "Not a group of %s: %q", p.sess.Username(), title)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fserrors.Newf(fserrors.NotFoundError, "none of the groups %q were found", strings.Join(titles, ";"))
	}
	return ids, nil
}

// PublishService publishes a hosted service from a Service Definition
// or Tile Package item.
func (p *Portal) PublishService(ctx context.Context, itemID, itemType string) ([]api.PublishedService, error) {
	if itemID == "" {
		return nil, fserrors.New(fserrors.ValidationError, "empty item id")
	}
	fileType := "tilePackage"
	if itemType == "Service Definition" {
		fileType = "serviceDefinition"
	}
	path, err := p.userPath("")
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"itemId":   {itemID},
		"filetype": {fileType},
	}
	var resp api.PublishResponse
	if err = p.callJSON(ctx, path+"/publish", nil, form, &resp); err != nil {
		return nil, err
	}
	for _, service := range resp.Services {
		if service.Error != nil {
			return resp.Services, service.Error.Classified()
		}
	}
	if len(resp.Services) == 0 {
		return nil, fserrors.Newf(fserrors.ProtocolError, "publishing item %s made no services", itemID)
	}
	return resp.Services, nil
}
