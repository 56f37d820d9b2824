// Package multipart builds multipart/form-data request bodies
//
// The body is built in memory so its length is known up front.  The
// portal parses the encoding strictly so the layout is fixed: fields
// in the order given, then files, each part closed by CRLF and the
// whole body closed by the final boundary.
package multipart

import (
	"bytes"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const crlf = "\r\n"

// DefaultContentType is used for file parts whose type can't be
// worked out
const DefaultContentType = "application/octet-stream"

// Field is a simple name value form field
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered list of form fields.  The order is the wire
// order.
type Fields []Field

// Add appends a field
func (fields *Fields) Add(name, value string) {
	*fields = append(*fields, Field{Name: name, Value: value})
}

// Set replaces the value of the first field called name or appends
// it
func (fields *Fields) Set(name, value string) {
	for i := range *fields {
		if (*fields)[i].Name == name {
			(*fields)[i].Value = value
			return
		}
	}
	fields.Add(name, value)
}

// Get returns the value of the first field called name
func (fields Fields) Get(name string) string {
	for _, f := range fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// File is a file form part
type File struct {
	Name        string // form field name
	FileName    string // file name sent in the Content-Disposition
	ContentType string // if empty it is guessed
	Content     []byte
}

// Body is an encoded multipart/form-data body
type Body struct {
	Boundary string
	Data     []byte
}

// ContentType returns the value for the Content-Type header
func (b *Body) ContentType() string {
	return "multipart/form-data; boundary=" + b.Boundary
}

// ContentLength returns the value for the Content-Length header
func (b *Body) ContentLength() int64 {
	return int64(len(b.Data))
}

// Reader returns a fresh reader over the body
func (b *Body) Reader() *bytes.Reader {
	return bytes.NewReader(b.Data)
}

// NewBoundary returns a random boundary token
func NewBoundary() string {
	return strings.Replace(uuid.New().String(), "-", "", -1)
}

// Encode encodes fields and files with a random boundary
func Encode(fields Fields, files []File) (*Body, error) {
	return EncodeWithBoundary(NewBoundary(), fields, files)
}

// EncodeWithBoundary encodes fields and files using boundary
func EncodeWithBoundary(boundary string, fields Fields, files []File) (*Body, error) {
	if boundary == "" {
		return nil, errors.New("empty multipart boundary")
	}
	var buf bytes.Buffer
	for _, f := range fields {
		if f.Name == "" {
			return nil, errors.New("multipart field with empty name")
		}
		fmt.Fprintf(&buf, "--%s%s", boundary, crlf)
		fmt.Fprintf(&buf, "Content-Disposition: form-data; name=\"%s\"%s", escapeQuotes(f.Name), crlf)
		buf.WriteString(crlf)
		buf.WriteString(f.Value)
		buf.WriteString(crlf)
	}
	for _, f := range files {
		if f.Name == "" {
			return nil, errors.New("multipart file with empty name")
		}
		fmt.Fprintf(&buf, "--%s%s", boundary, crlf)
		fmt.Fprintf(&buf, "Content-Disposition: form-data; name=\"%s\"; filename=\"%s\"%s", escapeQuotes(f.Name), escapeQuotes(f.FileName), crlf)
		fmt.Fprintf(&buf, "Content-Type: %s%s", GuessContentType(f.FileName, f.ContentType, f.Content), crlf)
		buf.WriteString(crlf)
		buf.Write(f.Content)
		buf.WriteString(crlf)
	}
	fmt.Fprintf(&buf, "--%s--%s", boundary, crlf)
	return &Body{Boundary: boundary, Data: buf.Bytes()}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// GuessContentType returns explicit if set, otherwise the type
// registered for the extension of fileName, otherwise the sniffed type
// of content.
func GuessContentType(fileName, explicit string, content []byte) string {
	if explicit != "" {
		return explicit
	}
	if ext := path.Ext(fileName); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return t
		}
	}
	if len(content) > 0 {
		return mimetype.Detect(content).String()
	}
	return DefaultContentType
}
