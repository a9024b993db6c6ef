package at

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = ">"

	// Response Codes
	OK       = "OK"
	ERROR    = "ERROR"
	FAIL     = "FAIL"
	Ready    = "ready"
	SendOK   = "SEND OK"
	SendFail = "SEND FAIL"
	Busy     = "busy p..."

	// Connection status lines
	Connect          = "CONNECT"
	Closed           = "CLOSED"
	AlreadyConnected = "ALREADY CONNECTED"

	// URCs (Unsolicited Result Codes)
	UrcWifiPrefix  = "WIFI "
	UrcRecvPrefix  = "Recv "
	UrcIPD         = "+IPD,"
	UrcCIFSRPrefix = "+CIFSR:"
)

// ESP8266 AT commands
const (
	CmdAt          = "AT"
	CmdReset       = "AT+RST"
	CmdEchoOff     = "ATE0"
	CmdStationMode = "AT+CWMODE=1"
	CmdJoinAP      = `AT+CWJAP="%s","%s"`
	CmdAddress     = "AT+CIFSR"
	CmdStartTCP    = `AT+CIPSTART="TCP","%s",%d`
	CmdSend        = "AT+CIPSEND=%d"
	CmdClose       = "AT+CIPCLOSE"
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR, FAIL, SEND OK, SEND FAIL
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CIFSR: ...)
	TypePrompt                     // CIPSEND input prompt
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypePrompt:
		return "prompt"
	default:
		return "data"
	}
}
