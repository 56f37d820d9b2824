// Package api has type definitions for the portal sharing REST API
//
// Every response may be an error envelope instead of the payload, so
// responses are decoded through Result which separates the two.
package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sharepkg/sharepkg/fs/fserrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CodeTokenExpired is the error code the portal uses for an invalid or
// expired token
const CodeTokenExpired = 498

// Time is a portal timestamp, sent as milliseconds since the epoch
type Time time.Time

// UnmarshalJSON turns JSON into a Time
func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = Time{}
		return nil
	}
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*t = Time(time.Unix(0, int64(ms)*int64(time.Millisecond)))
	return nil
}

// MarshalJSON turns a Time into JSON
func (t Time) MarshalJSON() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(time.Time(t).UnixNano()/int64(time.Millisecond), 10)), nil
}

// IsZero is true if the time wasn't set
func (t Time) IsZero() bool {
	return time.Time(t).IsZero()
}

// Error is the error object the portal returns in place of a payload
type Error struct {
	Code        int      `json:"code"`
	Message     string   `json:"message"`
	MessageCode string   `json:"messageCode,omitempty"`
	Details     []string `json:"details,omitempty"`
}

// Error returns a string for the error and satisfies the error interface
func (e *Error) Error() string {
	out := fmt.Sprintf("portal error %d: %s", e.Code, e.Message)
	if e.MessageCode != "" {
		out += " [" + e.MessageCode + "]"
	}
	if details := e.uniqueDetails(); len(details) > 0 {
		out += ". Details: " + strings.Join(details, "; ")
	}
	return out
}

// uniqueDetails returns the details which don't repeat the message
func (e *Error) uniqueDetails() (details []string) {
	for _, detail := range e.Details {
		if detail != "" && detail != e.Message {
			details = append(details, detail)
		}
	}
	return details
}

// Check Error satisfies the error interface
var _ error = (*Error)(nil)

// Classified turns the portal error into a ProtocolError, or an
// AuthError for an expired token
func (e *Error) Classified() error {
	kind := fserrors.ProtocolError
	if e.Code == CodeTokenExpired {
		kind = fserrors.AuthError
	}
	message := e.Message
	if message == "" {
		message = "portal returned an error"
	}
	if e.MessageCode != "" {
		message += " [" + e.MessageCode + "]"
	}
	return &fserrors.Error{
		Kind:    kind,
		Message: message,
		Code:    e.Code,
		Details: e.uniqueDetails(),
	}
}

// Envelope is the part of every response which may carry an error
type Envelope struct {
	Error *Error `json:"error,omitempty"`
}

// Result decodes a response which is either an error envelope or the
// payload.  Set Payload to a pointer to the expected response type
// before decoding.
type Result struct {
	Payload interface{}
	Err     *Error // set if the response was an error
	Empty   bool   // set if the response was null or {}
}

// UnmarshalJSON decodes the envelope then the payload
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		r.Empty = true
		return nil
	}
	if errData, ok := raw["error"]; ok {
		var e Error
		if err := json.Unmarshal(errData, &e); err != nil {
			return err
		}
		r.Err = &e
		return nil
	}
	if status, ok := raw["status"]; ok && string(status) == `"error"` {
		r.Err = &Error{Message: "portal reported status error"}
		return nil
	}
	if r.Payload == nil {
		return nil
	}
	return json.Unmarshal(data, r.Payload)
}

// TokenResponse is returned from generateToken
type TokenResponse struct {
	Token   string `json:"token"`
	Expires Time   `json:"expires"`
	SSL     bool   `json:"ssl"`
}

// PortalSelf is returned from portals/self
type PortalSelf struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PortalName string `json:"portalName"`
	URLKey     string `json:"urlKey"`
	AllSSL     bool   `json:"allSSL"`
}

// Group is a group the user belongs to
type Group struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Owner string `json:"owner"`
}

// ItemGroups is returned from content/items/{id}/groups and lists
// the groups an item is shared with by the role the user has in them
type ItemGroups struct {
	Admin  []Group `json:"admin"`
	Member []Group `json:"member"`
	Other  []Group `json:"other"`
}

// IDs returns the ids of all the groups
func (g *ItemGroups) IDs() (ids []string) {
	for _, list := range [][]Group{g.Admin, g.Member, g.Other} {
		for _, group := range list {
			ids = append(ids, group.ID)
		}
	}
	return ids
}

// User is returned from community/self and community/users/{user}
type User struct {
	Username string  `json:"username"`
	FullName string  `json:"fullName"`
	OrgID    string  `json:"orgId"`
	Role     string  `json:"role"`
	Groups   []Group `json:"groups"`
}

// Folder is a folder in the user's content
type Folder struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Username string `json:"username"`
	Created  Time   `json:"created"`
}

// Item is a catalogued item
type Item struct {
	ID                string   `json:"id"`
	Owner             string   `json:"owner"`
	OwnerFolder       string   `json:"ownerFolder"`
	Title             string   `json:"title"`
	Type              string   `json:"type"`
	Name              string   `json:"name"`
	Access            string   `json:"access"`
	Snippet           string   `json:"snippet"`
	Description       string   `json:"description"`
	Tags              []string `json:"tags"`
	AccessInformation string   `json:"accessInformation"`
	LicenseInfo       string   `json:"licenseInfo"`
	Thumbnail         string   `json:"thumbnail"`
	Size              int64    `json:"size"`
	Created           Time     `json:"created"`
	Modified          Time     `json:"modified"`
}

// Item access levels
const (
	AccessPrivate = "private"
	AccessShared  = "shared"
	AccessOrg     = "org"
	AccessPublic  = "public"
)

// UserContent is returned from content/users/{user}[/{folder}]
type UserContent struct {
	Username      string   `json:"username"`
	CurrentFolder *Folder  `json:"currentFolder"`
	Items         []Item   `json:"items"`
	Folders       []Folder `json:"folders"`
}

// CreateFolderResponse is returned from createFolder
type CreateFolderResponse struct {
	Success bool   `json:"success"`
	Folder  Folder `json:"folder"`
}

// AddItemResponse is returned from addItem
type AddItemResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Folder  string `json:"folder"`
}

// SuccessResponse is returned from addPart, commit, update and delete
type SuccessResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	ItemID  string `json:"itemId"`
}

// ItemStatus is the processing state of an uploaded item
type ItemStatus string

// Item processing states
const (
	StatusUploading  ItemStatus = "uploading"
	StatusProcessing ItemStatus = "processing"
	StatusPartial    ItemStatus = "partial"
	StatusFailed     ItemStatus = "failed"
	StatusCompleted  ItemStatus = "completed"
)

// Pending is true while the portal is still working on the item
func (s ItemStatus) Pending() bool {
	return s == StatusProcessing || s == StatusPartial
}

// StatusResponse is returned from items/{id}/status
type StatusResponse struct {
	ItemID        string     `json:"itemId"`
	Status        ItemStatus `json:"status"`
	StatusMessage string     `json:"statusMessage"`
}

// SearchResponse is returned from search
type SearchResponse struct {
	Query     string `json:"query"`
	Total     int    `json:"total"`
	Start     int    `json:"start"`
	Num       int    `json:"num"`
	NextStart int    `json:"nextStart"`
	Results   []Item `json:"results"`
}

// ItemResult is the outcome for one item of a bulk operation
type ItemResult struct {
	ItemID        string   `json:"itemId"`
	Success       bool     `json:"success"`
	Error         *Error   `json:"error,omitempty"`
	NotSharedWith []string `json:"notSharedWith,omitempty"`
}

// PublishedService is one service created by publish
type PublishedService struct {
	Type          string `json:"type"`
	ServiceURL    string `json:"serviceurl"`
	ServiceItemID string `json:"serviceItemId"`
	JobID         string `json:"jobId"`
	Size          int64  `json:"size"`
	Error         *Error `json:"error,omitempty"`
}

// PublishResponse is returned from publish
type PublishResponse struct {
	Services []PublishedService `json:"services"`
}

// BulkResponse is returned from moveItems and shareItems
type BulkResponse struct {
	Results       []ItemResult `json:"results"`
	NotSharedWith []string     `json:"notSharedWith,omitempty"`
}

// Failed returns the results which didn't succeed
func (b *BulkResponse) Failed() (failed []ItemResult) {
	for _, r := range b.Results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err returns an error of kind describing the items which failed, or nil
// if they all succeeded.  The first failure's message is the main
// message, the rest go in the details.
func (b *BulkResponse) Err(kind fserrors.Kind, what string) error {
	failed := b.Failed()
	if len(failed) == 0 {
		return nil
	}
	e := &fserrors.Error{Kind: kind}
	for i, r := range failed {
		message := "unknown error"
		if r.Error != nil && r.Error.Message != "" {
			message = r.Error.Message
		}
		line := fmt.Sprintf("%s %s: %s", what, r.ItemID, message)
		if i == 0 {
			e.Message = line
			if r.Error != nil {
				e.Code = r.Error.Code
			}
		} else {
			e.Details = append(e.Details, line)
		}
	}
	return e
}
