// Package esp holds the command sequences that drive an ESP8266 running the
// stock AT firmware: reset, joining an access point, querying the station
// address and fetching an HTTP resource over a single TCP link.
package esp

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/atlink/at"
	"i4.energy/across/atlink/modem"
)

// Artifact keys written by the sequences of this package.
const (
	KeyIP     = "ip"
	KeyMAC    = "mac"
	KeyAPIP   = "ap_ip"
	KeyAPMAC  = "ap_mac"
	KeyStatus = "status"
	KeyHeader = "header"
	KeyBody   = "body"
)

const (
	ResetTimeout   = 5 * time.Second
	JoinTimeout    = 20 * time.Second
	ConnectTimeout = 10 * time.Second
	// ResponseTimeout bounds the wait for a complete HTTP response.
	ResponseTimeout = 15 * time.Second

	// settle gives the firmware time to drop the boot banner after ready.
	settle = 100 * time.Millisecond
)

// Reset restarts the module and turns command echo off.
func Reset() []modem.Command {
	return []modem.Command{
		{
			Payload: []byte(at.CmdReset),
			Expect:  []byte(at.Ready),
			Timeout: ResetTimeout,
		},
		withDelay(modem.Cmd(at.CmdEchoOff), settle),
	}
}

// InitCommands are run once when the modem is opened.
func InitCommands() []modem.Command {
	return append(Reset(), modem.Cmd(at.CmdStationMode))
}

// Join switches to station mode, associates with the access point and reads
// back the station address.
func Join(ssid, password string) []modem.Command {
	cmds := []modem.Command{
		modem.Cmd(at.CmdStationMode),
		{
			Payload: fmt.Appendf(nil, at.CmdJoinAP, quote(ssid), quote(password)),
			Expect:  []byte(at.OK),
			Error:   []byte(at.FAIL),
			Timeout: JoinTimeout,
		},
	}
	return append(cmds, Address()...)
}

// Address queries the station IP and MAC into the ip and mac artifacts.
func Address() []modem.Command {
	cmd := modem.Cmd(at.CmdAddress)
	cmd.Transform = parseAddress
	return []modem.Command{cmd}
}

// parseAddress reads lines such as
//
//	+CIFSR:STAIP,"192.168.1.20"
//	+CIFSR:STAMAC,"5c:cf:7f:01:02:03"
func parseAddress(buf []byte) map[string]string {
	out := map[string]string{}
	for _, line := range at.Lines(buf) {
		rest, ok := strings.CutPrefix(line.Text, at.UrcCIFSRPrefix)
		if !ok {
			continue
		}
		kind, value, ok := strings.Cut(rest, ",")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch kind {
		case "STAIP":
			out[KeyIP] = value
		case "STAMAC":
			out[KeyMAC] = value
		case "APIP":
			out[KeyAPIP] = value
		case "APMAC":
			out[KeyAPMAC] = value
		}
	}
	return out
}

func withDelay(cmd modem.Command, d time.Duration) modem.Command {
	cmd.Delay = d
	return cmd
}

// quote escapes the characters the AT parser treats specially inside a
// quoted argument.
func quote(s string) string {
	if !strings.ContainsAny(s, `",\`) {
		return s
	}
	var b bytes.Buffer
	for _, r := range s {
		if r == '"' || r == ',' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
