package esp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"i4.energy/across/atlink/at"
	"i4.energy/across/atlink/httpmsg"
	"i4.energy/across/atlink/ipd"
	"i4.energy/across/atlink/modem"
)

// ErrNoResponse is returned by ResultFrom when the artifacts do not hold a
// parsed response.
var ErrNoResponse = errors.New("no http response in artifacts")

// Target is the remote end of a TCP link.
type Target struct {
	Host string
	Port int
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Result is the HTTP response captured by a Fetch sequence.
type Result struct {
	Status int    `json:"status" yaml:"status"`
	Header string `json:"header" yaml:"header"`
	Body   string `json:"body" yaml:"body"`
}

// Fetch opens a TCP link to target, sends req and waits until a complete
// response has arrived inside the +IPD chunks, then closes the link.
//
// The modem appends a CRLF to every payload, so the announced length
// counts two more bytes than the serialized request.
func Fetch(target Target, req *httpmsg.Request) []modem.Command {
	payload := req.Serialize()
	return []modem.Command{
		{
			Payload: fmt.Appendf(nil, at.CmdStartTCP, target.Host, target.Port),
			Expect:  []byte(at.OK),
			Error:   []byte(at.ERROR),
			Timeout: ConnectTimeout,
		},
		{
			Payload: fmt.Appendf(nil, at.CmdSend, len(payload)+len(at.CRLF)),
			Expect:  []byte(at.Prompt),
			Error:   []byte(at.ERROR),
		},
		{
			Payload:   payload,
			Error:     []byte(at.SendFail),
			Until:     responseComplete,
			Transform: responseArtifacts,
			Timeout:   ResponseTimeout,
		},
		{
			Payload: []byte(at.CmdClose),
			Until:   finalResult,
		},
	}
}

func responseComplete(buf []byte) bool {
	_, ok := httpmsg.ParseResponse(ipd.Reassemble(buf))
	return ok
}

func responseArtifacts(buf []byte) map[string]string {
	resp, ok := httpmsg.ParseResponse(ipd.Reassemble(buf))
	if !ok {
		return nil
	}
	return map[string]string{
		KeyStatus: strconv.Itoa(resp.Status),
		KeyHeader: string(resp.Header),
		KeyBody:   string(resp.Body),
	}
}

// finalResult accepts either outcome; the server may have closed the link
// already.
func finalResult(buf []byte) bool {
	return bytes.Contains(buf, []byte(at.OK)) || bytes.Contains(buf, []byte(at.ERROR))
}

// ResultFrom extracts the response captured by Fetch.
func ResultFrom(artifacts modem.Artifacts) (Result, error) {
	status, ok := artifacts[KeyStatus]
	if !ok {
		return Result{}, ErrNoResponse
	}
	code, err := strconv.Atoi(status)
	if err != nil {
		return Result{}, fmt.Errorf("parse status %q: %w", status, err)
	}
	return Result{
		Status: code,
		Header: artifacts[KeyHeader],
		Body:   artifacts[KeyBody],
	}, nil
}

// Station is the address information read by Address.
type Station struct {
	IP  string `json:"ip" yaml:"ip"`
	MAC string `json:"mac" yaml:"mac"`
}

// StationFrom extracts the address captured by Address or Join.
func StationFrom(artifacts modem.Artifacts) Station {
	return Station{IP: artifacts[KeyIP], MAC: artifacts[KeyMAC]}
}
