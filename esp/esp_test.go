package esp_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"i4.energy/across/atlink/esp"
	"i4.energy/across/atlink/httpmsg"
	"i4.energy/across/atlink/modem"
)

const pollInterval = 15 * time.Millisecond

type harness struct {
	transport *modem.TestTransport
	clock     *modem.ManualClock
	driver    *modem.Driver
}

func newHarness(script *modem.Script) *harness {
	h := &harness{
		transport: modem.NewTestTransport(),
		clock:     &modem.ManualClock{},
	}
	h.transport.SetResponder(script.Respond)
	h.driver = modem.NewDriver(h.transport, modem.Config{Clock: h.clock, PollInterval: pollInterval})
	return h
}

// run enqueues seq and polls until it is done.
func (h *harness) run(t *testing.T, seq *modem.Sequence) {
	t.Helper()
	if err := h.driver.Enqueue(seq); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	h.pump(t, seq)
}

// pump polls until seq is done or the poll budget is spent.
func (h *harness) pump(t *testing.T, seq *modem.Sequence) {
	t.Helper()
	for i := 0; i < 500 && !seq.Done(); i++ {
		h.clock.Advance(pollInterval)
		h.driver.Poll()
	}
	if !seq.Done() {
		t.Fatalf("sequence %s stalled at command %d, writes=%q", seq.Name(), seq.Cursor(), h.transport.Written())
	}
}

func chunk(s string) string {
	return fmt.Sprintf("+IPD,%d:%s", len(s), s)
}

func TestReset(t *testing.T) {
	script := modem.NewScript().
		Expect("AT+RST", "\r\nOK\r\n\r\n ets Jan  8 2013,rst cause:2, boot mode:(3,6)\r\n\r\nready\r\n").
		Expect("ATE0", "ATE0\r\n\r\nOK\r\n")
	h := newHarness(script)

	seq := modem.NewSequence("reset", esp.Reset(), nil)
	h.run(t, seq)

	if !seq.Completed() {
		t.Fatalf("expected completed reset, err=%v", seq.Err())
	}
	if got := h.transport.Written(); len(got) != 2 || got[0] != "AT+RST\r\n" || got[1] != "ATE0\r\n" {
		t.Errorf("unexpected writes %q", got)
	}
	if len(esp.InitCommands()) != 3 {
		t.Errorf("init must reset and select station mode")
	}
}

func TestJoin(t *testing.T) {
	t.Run("success reads the address", func(t *testing.T) {
		script := modem.NewScript().
			Expect("AT+CWMODE=1", "\r\nOK\r\n").
			Expect(`AT+CWJAP="home\,net","p\"w"`, "WIFI CONNECTED\r\nWIFI GOT IP\r\n\r\nOK\r\n").
			Expect("AT+CIFSR", "+CIFSR:STAIP,\"192.168.1.20\"\r\n+CIFSR:STAMAC,\"5c:cf:7f:01:02:03\"\r\n\r\nOK\r\n")
		h := newHarness(script)

		var station esp.Station
		seq := modem.NewSequence("join", esp.Join("home,net", `p"w`), func(_ *modem.Driver, a modem.Artifacts) {
			station = esp.StationFrom(a)
		})
		h.run(t, seq)

		if !seq.Completed() {
			t.Fatalf("expected completion, err=%v writes=%q", seq.Err(), h.transport.Written())
		}
		if station.IP != "192.168.1.20" || station.MAC != "5c:cf:7f:01:02:03" {
			t.Errorf("unexpected station %+v", station)
		}
	})

	t.Run("wrong password aborts", func(t *testing.T) {
		script := modem.NewScript().
			Expect("AT+CWMODE=1", "\r\nOK\r\n").
			Expect("AT+CWJAP", "+CWJAP:2\r\n\r\nFAIL\r\n")
		h := newHarness(script)

		called := false
		seq := modem.NewSequence("join", esp.Join("net", "bad"), func(*modem.Driver, modem.Artifacts) { called = true })
		h.run(t, seq)

		if !seq.Aborted() || !errors.Is(seq.Err(), modem.ErrModemError) {
			t.Fatalf("expected abort with ErrModemError, got %v", seq.Err())
		}
		if called {
			t.Error("callback must not run")
		}
		if n := len(h.transport.Written()); n != 2 {
			t.Errorf("no command may follow the failed join, writes=%d", n)
		}
	})
}

func TestAddressSoftAP(t *testing.T) {
	script := modem.NewScript().Expect("AT+CIFSR",
		"+CIFSR:APIP,\"192.168.4.1\"\r\n+CIFSR:APMAC,\"5e:cf:7f:01:02:03\"\r\n+CIFSR:STAIP,\"0.0.0.0\"\r\n\r\nOK\r\n")
	h := newHarness(script)

	seq := modem.NewSequence("address", esp.Address(), nil)
	h.run(t, seq)

	a := seq.Artifacts()
	want := map[string]string{esp.KeyAPIP: "192.168.4.1", esp.KeyAPMAC: "5e:cf:7f:01:02:03", esp.KeyIP: "0.0.0.0"}
	for k, v := range want {
		if a[k] != v {
			t.Errorf("artifact %s = %q, want %q", k, a[k], v)
		}
	}
	if _, ok := a[esp.KeyMAC]; ok {
		t.Error("station mac was not reported")
	}
}

func TestFetch(t *testing.T) {
	target := esp.Target{Host: "example.org", Port: 80}
	req := httpmsg.NewRequest("GET", "/", "example.org").AddHeader("Connection", "close")
	send := fmt.Sprintf("AT+CIPSEND=%d", len(req.Serialize())+2)

	t.Run("response in one go", func(t *testing.T) {
		response := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello"
		script := modem.NewScript().
			Expect(`AT+CIPSTART="TCP","example.org",80`, "CONNECT\r\n\r\nOK\r\n").
			Expect(send, "\r\nOK\r\n> ").
			Expect("GET / HTTP/1.1", "\r\nRecv 58 bytes\r\n\r\nSEND OK\r\n\r\n"+chunk(response)+"CLOSED\r\n").
			Expect("AT+CIPCLOSE", "\r\nERROR\r\n")
		h := newHarness(script)

		var result esp.Result
		var resultErr error
		seq := modem.NewSequence("fetch", esp.Fetch(target, req), func(_ *modem.Driver, a modem.Artifacts) {
			result, resultErr = esp.ResultFrom(a)
		})
		h.run(t, seq)

		if !seq.Completed() {
			t.Fatalf("expected completion, err=%v writes=%q", seq.Err(), h.transport.Written())
		}
		if !script.Done() {
			t.Errorf("script not fully played, writes=%q", h.transport.Written())
		}
		if resultErr != nil {
			t.Fatalf("unexpected error: %v", resultErr)
		}
		if result.Status != 200 || result.Body != "hello" {
			t.Errorf("unexpected result %+v", result)
		}
		if result.Header != "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n" {
			t.Errorf("unexpected header %q", result.Header)
		}
		if got := h.transport.Written()[2]; got != string(req.Serialize())+"\r\n" {
			t.Errorf("request written as %q", got)
		}
	})

	t.Run("response split across chunks and polls", func(t *testing.T) {
		head := "HTTP/1.1 404 Not Found\r\nContent-Len"
		tail := "gth: 9\r\n\r\nnot found"
		script := modem.NewScript().
			Expect("AT+CIPSTART", "CONNECT\r\n\r\nOK\r\n").
			Expect("AT+CIPSEND", "\r\nOK\r\n> ").
			Expect("GET /", "\r\nSEND OK\r\n\r\n"+chunk(head)).
			Expect("AT+CIPCLOSE", "CLOSED\r\n\r\nOK\r\n")
		h := newHarness(script)

		seq := modem.NewSequence("fetch", esp.Fetch(target, req), nil)
		if err := h.driver.Enqueue(seq); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 20; i++ {
			h.clock.Advance(pollInterval)
			h.driver.Poll()
		}
		if seq.Cursor() != 2 {
			t.Fatalf("expected to wait for the response, cursor=%d", seq.Cursor())
		}

		h.transport.Receive("\r\n" + chunk(tail[:4]))
		h.transport.Receive("\r\n" + chunk(tail[4:]) + "\r\n")
		h.pump(t, seq)

		result, err := esp.ResultFrom(seq.Artifacts())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Status != 404 || result.Body != "not found" {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("send failure aborts", func(t *testing.T) {
		script := modem.NewScript().
			Expect("AT+CIPSTART", "CONNECT\r\n\r\nOK\r\n").
			Expect("AT+CIPSEND", "\r\nOK\r\n> ").
			Expect("GET /", "\r\nSEND FAIL\r\n")
		h := newHarness(script)

		seq := modem.NewSequence("fetch", esp.Fetch(target, req), nil)
		h.run(t, seq)
		if !errors.Is(seq.Err(), modem.ErrModemError) {
			t.Errorf("expected ErrModemError, got %v", seq.Err())
		}
	})

	t.Run("connect error aborts", func(t *testing.T) {
		script := modem.NewScript().Expect("AT+CIPSTART", "DNS Fail\r\n\r\nERROR\r\n")
		h := newHarness(script)

		seq := modem.NewSequence("fetch", esp.Fetch(target, req), nil)
		h.run(t, seq)
		if !seq.Aborted() || len(h.transport.Written()) != 1 {
			t.Errorf("expected abort after CIPSTART, writes=%q", h.transport.Written())
		}
	})
}

func TestResultFrom(t *testing.T) {
	if _, err := esp.ResultFrom(modem.Artifacts{}); !errors.Is(err, esp.ErrNoResponse) {
		t.Errorf("expected ErrNoResponse, got %v", err)
	}
	if _, err := esp.ResultFrom(modem.Artifacts{esp.KeyStatus: "ok"}); err == nil {
		t.Error("expected status parse error")
	}
	r, err := esp.ResultFrom(modem.Artifacts{esp.KeyStatus: "0", esp.KeyBody: "x"})
	if err != nil || r.Status != 0 || r.Body != "x" {
		t.Errorf("unexpected result %+v, %v", r, err)
	}
}

func TestTargetString(t *testing.T) {
	if got := (esp.Target{Host: "10.0.0.1", Port: 8080}).String(); got != "10.0.0.1:8080" {
		t.Errorf("got %q", got)
	}
}
