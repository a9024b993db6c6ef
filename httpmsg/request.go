package httpmsg

import (
	"bytes"
)

// Header is one request header line. Headers keep insertion order.
type Header struct {
	Key   string
	Value string
}

// Request is an outbound HTTP/1.1 request. No Content-Length is added on
// serialization; callers that send a body add it themselves.
type Request struct {
	Method  string
	Path    string
	Host    string
	Headers []Header
	Body    []byte
}

// NewRequest creates a request without headers or body.
func NewRequest(method, path, host string) *Request {
	return &Request{Method: method, Path: path, Host: host}
}

// AddHeader appends a header and returns r for chaining.
func (r *Request) AddHeader(key, value string) *Request {
	r.Headers = append(r.Headers, Header{Key: key, Value: value})
	return r
}

// Serialize returns the wire form of r.
func (r *Request) Serialize() []byte {
	return Serialize(r.Method, r.Path, r.Host, r.Headers, r.Body)
}

// Serialize writes the request line, the Host header, headers in order, a
// blank line and the body verbatim.
func Serialize(method, path, host string, headers []Header, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString(method + " " + path + " HTTP/1.1\r\n")
	b.WriteString("Host: " + host + "\r\n")
	for _, h := range headers {
		b.WriteString(h.Key + ": " + h.Value + "\r\n")
	}
	b.WriteString("\r\n")
	b.Write(body)
	return b.Bytes()
}
