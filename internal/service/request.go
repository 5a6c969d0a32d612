package service

import (
	"io"
	"net/http"
)

// Request is the protocol-neutral view of an inbound request.
type Request struct {
	Method     string
	Path       string
	Header     *FieldMap
	Body       []byte
	RemoteAddr string
}

// NewRequest creates a request with an empty field map.
func NewRequest(method, path string) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Header: NewFieldMap(),
	}
}

// FromHTTP converts r, reading its body fully. The Host field is carried into
// the field map so downstream filters find it like any other header.
func FromHTTP(r *http.Request) (*Request, error) {
	req := &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Header:     FromHTTPHeader(r.Header),
		RemoteAddr: r.RemoteAddr,
	}
	if r.Host != "" && len(req.Header.Values("Host")) == 0 {
		req.Header.Set("Host", r.Host)
	}

	if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		req.Body = body
	}

	return req, nil
}

// Response is the protocol-neutral outcome of a successful call.
type Response struct {
	Status int
	Header *FieldMap
	Body   []byte
}

// NewResponse creates a response with the given status and body.
func NewResponse(status int, body []byte) *Response {
	return &Response{
		Status: status,
		Header: NewFieldMap(),
		Body:   body,
	}
}

// Text creates a 200 plain-text response.
func Text(body string) *Response {
	resp := NewResponse(http.StatusOK, []byte(body))
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return resp
}

// WriteTo writes resp onto w. A zero status is written as 200.
func (resp *Response) WriteTo(w http.ResponseWriter) error {
	if resp.Header != nil {
		dst := w.Header()
		for _, key := range resp.Header.Keys() {
			for _, v := range resp.Header.Values(key) {
				dst.Add(key, v)
			}
		}
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	_, err := w.Write(resp.Body)
	return err
}
