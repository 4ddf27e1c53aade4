package nparam

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"os"

	"github.com/pkg/errors"
)

// UploadFile is a file received in a multipart form.  Small files
// are held in memory; larger ones are spooled to a temporary file
// that is removed when the FormData is closed.
type UploadFile struct {
	Filename string
	Header   textproto.MIMEHeader
	Size     int64
	data     []byte
	path     string
	closed   bool
}

// ContentType is the part's declared content type
func (f *UploadFile) ContentType() string { return f.Header.Get("Content-Type") }

// Open returns a reader for the file content
func (f *UploadFile) Open() (io.ReadCloser, error) {
	if f.closed {
		return nil, errors.Errorf("upload %s is closed", f.Filename)
	}
	if f.path == "" {
		return io.NopCloser(bytes.NewReader(f.data)), nil
	}
	fh, err := os.Open(f.path)
	return fh, errors.Wrapf(err, "open spooled upload %s", f.Filename)
}

// Bytes reads the whole file
func (f *UploadFile) Bytes() ([]byte, error) {
	if f.closed {
		return nil, errors.Errorf("upload %s is closed", f.Filename)
	}
	if f.path == "" {
		return f.data, nil
	}
	b, err := os.ReadFile(f.path)
	return b, errors.Wrapf(err, "read spooled upload %s", f.Filename)
}

// InMemory is true when the file was not spooled to disk
func (f *UploadFile) InMemory() bool { return f.path == "" }

func (f *UploadFile) remove() error {
	f.closed = true
	f.data = nil
	if f.path == "" {
		return nil
	}
	err := os.Remove(f.path)
	f.path = ""
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// FormData is a parsed form body
type FormData struct {
	Values url.Values
	Files  map[string][]*UploadFile
}

// Len is the number of keys in the form
func (f *FormData) Len() int {
	return len(f.Values) + len(f.Files)
}

// Get returns the first value for key
func (f *FormData) Get(key string) string { return f.Values.Get(key) }

// GetAll returns every value for key
func (f *FormData) GetAll(key string) []string { return f.Values[key] }

// File returns the first file uploaded as key
func (f *FormData) File(key string) *UploadFile {
	if files := f.Files[key]; len(files) > 0 {
		return files[0]
	}
	return nil
}

// Close removes spooled files
func (f *FormData) Close() error {
	var first error
	for _, files := range f.Files {
		for _, file := range files {
			if err := file.remove(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// FormError is returned by ParseForm when a form is malformed or
// exceeds its limits
type FormError struct {
	Reason string
	err    error
}

func (e *FormError) Error() string {
	if e.err != nil {
		return e.Reason + ": " + e.err.Error()
	}
	return e.Reason
}

func (e *FormError) Unwrap() error { return e.err }

// ParseForm reads a multipart/form-data or
// application/x-www-form-urlencoded body within the limits of meta.
func ParseForm(body io.Reader, contentType string, meta *FormMeta) (*FormData, error) {
	if meta == nil {
		meta = Form()
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, &FormError{Reason: "invalid content type", err: err}
	}
	switch mediaType {
	case "multipart/form-data":
		boundary := params["boundary"]
		if boundary == "" {
			return nil, &FormError{Reason: "missing multipart boundary"}
		}
		return parseMultipart(multipart.NewReader(body, boundary), meta)
	case "application/x-www-form-urlencoded":
		limit := meta.MaxPartSize * int64(meta.MaxFields)
		raw, err := io.ReadAll(io.LimitReader(body, limit+1))
		if err != nil {
			return nil, &FormError{Reason: "cannot read form", err: err}
		}
		if int64(len(raw)) > limit {
			return nil, &FormError{Reason: "form too large"}
		}
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, &FormError{Reason: "invalid url-encoded form", err: err}
		}
		if len(values) > meta.MaxFields {
			return nil, &FormError{Reason: "too many fields"}
		}
		return &FormData{Values: values, Files: map[string][]*UploadFile{}}, nil
	}
	return nil, &FormError{Reason: "unsupported form content type " + mediaType}
}

func parseMultipart(mr *multipart.Reader, meta *FormMeta) (_ *FormData, err error) {
	form := &FormData{
		Values: url.Values{},
		Files:  map[string][]*UploadFile{},
	}
	defer func() {
		if err != nil {
			_ = form.Close()
		}
	}()
	var fields, files int
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return form, nil
		}
		if err != nil {
			return nil, &FormError{Reason: "malformed multipart body", err: err}
		}
		name := part.FormName()
		if name == "" {
			_ = part.Close()
			continue
		}
		if part.FileName() == "" {
			fields++
			if fields > meta.MaxFields {
				return nil, &FormError{Reason: "too many fields"}
			}
			value, err := io.ReadAll(io.LimitReader(part, meta.MaxPartSize+1))
			if err != nil {
				return nil, &FormError{Reason: "cannot read field " + name, err: err}
			}
			if int64(len(value)) > meta.MaxPartSize {
				return nil, &FormError{Reason: "field " + name + " exceeds the part size limit"}
			}
			form.Values.Add(name, string(value))
			continue
		}
		files++
		if files > meta.MaxFiles {
			return nil, &FormError{Reason: "too many files"}
		}
		upload, err := spool(part, meta.MaxMemory)
		if err != nil {
			return nil, err
		}
		form.Files[name] = append(form.Files[name], upload)
	}
}

func spool(part *multipart.Part, maxMemory int64) (*UploadFile, error) {
	upload := &UploadFile{
		Filename: part.FileName(),
		Header:   part.Header,
	}
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, part, maxMemory+1)
	if err != nil && err != io.EOF {
		return nil, &FormError{Reason: "cannot read file " + upload.Filename, err: err}
	}
	if n <= maxMemory {
		upload.data = buf.Bytes()
		upload.Size = n
		return upload, nil
	}
	tmp, err := os.CreateTemp("", "nhttp-upload-")
	if err != nil {
		return nil, errors.Wrap(err, "create spool file")
	}
	upload.path = tmp.Name()
	size, err := io.Copy(tmp, io.MultiReader(&buf, part))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = upload.remove()
		return nil, &FormError{Reason: "cannot spool file " + upload.Filename, err: err}
	}
	upload.Size = size
	return upload, nil
}
