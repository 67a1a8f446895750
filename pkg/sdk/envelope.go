package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader carries the per-call request id.
const RequestIDHeader = "X-Request-Id"

// Envelope describes one outbound call. It is built per call and discarded afterwards.
type Envelope struct {
	Method string
	Path   string
	// Body is JSON-encoded when non-nil.
	Body any
	// File, when set, sends a multipart/form-data body instead of Body.
	File   *FileUpload
	Header http.Header
	// Public marks endpoints that do not require the session credential (auth and health).
	// A 401 from a public endpoint is a rejected input, not an expired session.
	Public bool
}

// FileUpload is a single multipart file part.
type FileUpload struct {
	Field    string
	Filename string
	Content  io.Reader
}

func (e Envelope) request(ctx context.Context, base *url.URL) (*http.Request, string, error) {
	method := e.Method
	if method == "" {
		method = http.MethodGet
	}

	ref, err := url.Parse(e.Path)
	if err != nil {
		return nil, "", fmt.Errorf("invalid path %q: %w", e.Path, err)
	}
	if hasDotSegment(ref.Path) {
		return nil, "", fmt.Errorf("invalid path %q: dot segments are not allowed", e.Path)
	}
	target := base.JoinPath(ref.EscapedPath())
	target.RawQuery = ref.RawQuery

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case e.File != nil:
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		field := e.File.Field
		if field == "" {
			field = "file"
		}
		part, err := mw.CreateFormFile(field, e.File.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
		}
		if _, err := io.Copy(part, e.File.Content); err != nil {
			return nil, "", fmt.Errorf("failed to read upload %s: %w", e.File.Filename, err)
		}
		if err := mw.Close(); err != nil {
			return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
		}
		body = buf
		contentType = mw.FormDataContentType()
	case e.Body != nil:
		data, err := json.Marshal(e.Body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target.String(), body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range e.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set(RequestIDHeader, requestID)
	}
	return req, requestID, nil
}

// hasDotSegment reports whether p contains a "." or ".." segment, which JoinPath would
// collapse into a different endpoint.
func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
