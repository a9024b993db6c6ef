// Package httpmsg builds the HTTP/1.1 requests sent through the modem and
// recognizes complete responses in the reassembled TCP stream.
package httpmsg

import (
	"bytes"
	"strconv"
	"strings"
)

// State is a step of the response parser. Transitions only move forward.
type State int

const (
	LookingForStart State = iota
	LookingForContentLength
	LookingForBlankLine
	ReadingBody
	Done
)

func (s State) String() string {
	switch s {
	case LookingForStart:
		return "LookingForStart"
	case LookingForContentLength:
		return "LookingForContentLength"
	case LookingForBlankLine:
		return "LookingForBlankLine"
	case ReadingBody:
		return "ReadingBody"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

const contentLength = "content-length:"

// Response is a complete response found in the stream. Header holds the
// status line and header lines with their terminators, without the blank
// separator line. Body is exactly Content-Length bytes.
type Response struct {
	Status int
	Header []byte
	Body   []byte
}

// Get returns the value of the first header line named name, compared
// case-insensitively, or "" when absent.
func (r Response) Get(name string) string {
	for line := range strings.SplitSeq(string(r.Header), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(key), name) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

type parser struct {
	state  State
	length int
	resp   Response
}

// ParseResponse scans stream for a response framed by Content-Length and
// reports whether it is complete. Incomplete and malformed input are not
// told apart: both yield an empty Response and false, so callers keep
// polling.
//
// Input is split on '\n'. A trailing partial line only counts while the
// body is being read. A Content-Length of 0 completes at the blank line.
func ParseResponse(stream []byte) (Response, bool) {
	p := parser{}
	rest := stream
	for len(rest) > 0 && p.state != Done {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			if p.state == ReadingBody {
				p.body(rest)
			}
			break
		}
		if !p.line(rest[:i+1]) {
			return Response{}, false
		}
		rest = rest[i+1:]
	}
	if p.state != Done {
		return Response{}, false
	}
	return p.resp, true
}

// line consumes one '\n' terminated line and returns false when the
// stream can no longer form a response.
func (p *parser) line(line []byte) bool {
	blank := isBlank(line)

	switch p.state {
	case LookingForStart:
		if blank {
			return true
		}
		if code, ok := statusCode(line); ok {
			p.resp.Status = code
		}
		p.state = LookingForContentLength
		return p.header(line)

	case LookingForContentLength:
		if blank {
			// headers ended without a length
			return false
		}
		return p.header(line)

	case LookingForBlankLine:
		if !blank {
			p.resp.Header = append(p.resp.Header, line...)
			return true
		}
		if p.length == 0 {
			p.resp.Body = []byte{}
			p.state = Done
			return true
		}
		p.state = ReadingBody
		return true

	case ReadingBody:
		p.body(line)
	}
	return true
}

// header records a header line and looks for the length.
func (p *parser) header(line []byte) bool {
	p.resp.Header = append(p.resp.Header, line...)
	text := strings.TrimRight(string(line), "\r\n")
	if len(text) < len(contentLength) || !strings.EqualFold(text[:len(contentLength)], contentLength) {
		return true
	}
	n, err := strconv.Atoi(strings.TrimSpace(text[len(contentLength):]))
	if err != nil || n < 0 {
		return false
	}
	p.length = n
	p.state = LookingForBlankLine
	return true
}

func (p *parser) body(b []byte) {
	p.resp.Body = append(p.resp.Body, b...)
	if len(p.resp.Body) >= p.length {
		p.resp.Body = p.resp.Body[:p.length]
		p.state = Done
	}
}

func isBlank(line []byte) bool {
	return len(line) == 1 || (len(line) == 2 && line[0] == '\r')
}

// statusCode parses "HTTP/1.1 200 OK".
func statusCode(line []byte) (int, bool) {
	text := strings.TrimRight(string(line), "\r\n")
	if !strings.HasPrefix(text, "HTTP/") {
		return 0, false
	}
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return 0, false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return code, true
}
