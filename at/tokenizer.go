package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input by CRLF line endings and also recognizes the
// AT+CIPSEND input prompt ("> "), which the modem sends without a
// line terminator.
//
// Important: This splitter assumes "No Echo" mode (ATE0). With echo enabled
// the echoed command shows up as a data line ahead of the response.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// 1. Match send prompt, with or without its trailing space
	if bytes.HasPrefix(data, []byte(Prompt+" ")) {
		return len(Prompt) + 1, data[0:len(Prompt)], nil
	}
	if atEOF && bytes.Equal(data, []byte(Prompt)) {
		return len(Prompt), data, nil
	}

	// 2. Match standard line ending with CRLF
	if i := bytes.Index(data, []byte(CRLF)); i >= 0 {
		return i + len(CRLF), data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	if line == Prompt {
		return TypePrompt
	}

	// Direct matches for final results
	switch line {
	case OK, ERROR, FAIL, SendOK, SendFail:
		return TypeFinal
	case Ready, Connect, Closed, AlreadyConnected:
		return TypeURC
	}

	// Prefix matches
	switch {
	case strings.HasPrefix(line, UrcWifiPrefix),
		strings.HasPrefix(line, UrcRecvPrefix),
		strings.HasPrefix(line, UrcIPD),
		strings.HasPrefix(line, Busy[:4]):
		return TypeURC
	case len(line) > 2 && line[1] == ',' && (line[2:] == Connect || line[2:] == Closed):
		// multi-connection mode: "0,CONNECT", "3,CLOSED"
		return TypeURC
	default:
		return TypeData
	}
}

// Line is one classified token of modem output.
type Line struct {
	Text string
	Type ResponseType
}

// Lines tokenizes a snapshot of the receive buffer and classifies every
// non-empty token. Chunk payloads are not stripped, so +IPD data shows up
// as URC and data lines.
func Lines(buf []byte) []Line {
	var lines []Line
	scanner := bufio.NewScanner(bytes.NewReader(buf))
	scanner.Buffer(make([]byte, 0, 256), len(buf)+1)
	scanner.Split(Splitter)
	for scanner.Scan() {
		token := scanner.Text()
		if token == "" {
			continue
		}
		lines = append(lines, Line{Text: token, Type: Classify(token)})
	}
	return lines
}
