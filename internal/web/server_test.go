package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/switch-node/internal/gpio"
	"github.com/sweeney/switch-node/internal/status"
)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		DeviceID:    "hall",
		DeviceType:  "END_DEVICE",
		Endpoint:    1,
		LongPressMs: 5000,
		KeyPollMs:   100,
		RejoinMs:    10000,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		Prefix:      "switch-node/hall",
		HTTPPort:    "80",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getStatus(t *testing.T, ts *httptest.Server) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.UpdateDevice(status.Device{
		NetworkState: "END_DEVICE",
		Keys:         0x01,
		Press:        "PRESSED",
		OnOff:        true,
		NextSeq:      4,
		Counts:       status.Counts{Presses: 5, Reports: 4},
	})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.NetworkState != "END_DEVICE" {
		t.Errorf("NetworkState: got %q, want END_DEVICE", sj.Status.NetworkState)
	}
	if !sj.Status.OnNetwork {
		t.Error("expected OnNetwork=true")
	}
	if sj.Status.Keys != "0x01" {
		t.Errorf("Keys: got %q, want 0x01", sj.Status.Keys)
	}
	if !sj.Status.OnOff {
		t.Error("expected OnOff=true")
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Prefix != "switch-node/hall" {
		t.Errorf("MQTT.Prefix: got %q", sj.Status.MQTT.Prefix)
	}
	if sj.Status.Counts.Presses != 5 {
		t.Errorf("Counts.Presses: got %d, want 5", sj.Status.Counts.Presses)
	}
	if sj.Status.Config.LongPressMs != 5000 {
		t.Errorf("Config.LongPressMs: got %d, want 5000", sj.Status.Config.LongPressMs)
	}
}

func TestJSONUnknownStateBeforeStart(t *testing.T) {
	ts, _ := newTestServer(t)
	sj := getStatus(t, ts)

	if sj.Status.NetworkState != "UNKNOWN" {
		t.Errorf("NetworkState before start: got %q, want UNKNOWN", sj.Status.NetworkState)
	}
	if sj.Status.Ready {
		t.Error("expected Ready=false before start")
	}
	if sj.Status.Commissioning != nil {
		t.Error("expected no commissioning block before any notification")
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	sj := getStatus(t, ts)
	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.UpdateDevice(status.Device{
		NetworkState: "NWK_DISC",
		Blinking:     true,
		Commissioning: &status.Commissioning{
			Stage:     "FORMATION",
			Status:    "SUCCESS",
			Remaining: "STEERING",
			At:        time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC),
		},
	})
	tr.SetPower(false, 2950)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"Switch Node hall", "NWK_DISC", "blinking", "FORMATION", "2950mV"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(string(body), "mqtt.min.js") {
		t.Error("live script rendered without a websocket broker")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestHTMLLiveScriptUsesSystemTopic(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := status.NewTracker(start, status.Config{Prefix: "switch-node/hall", WSBroker: "ws://broker:9001"})
	ts := httptest.NewServer(New(":0", tr).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	// the prefix is JS-escaped inside the script; the suffix is literal
	if !strings.Contains(string(body), `hall/system"`) {
		t.Error("live script should subscribe to the system topic")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	if getStatus(t, ts).Status.Ready {
		t.Error("expected Ready=false initially")
	}

	tr.UpdateDevice(status.Device{NetworkState: "END_DEVICE", OnOff: true})
	tr.SetMQTTConnected(true)

	sj := getStatus(t, ts)
	if !sj.Status.Ready {
		t.Error("expected Ready=true after update")
	}
	if !sj.Status.OnOff {
		t.Error("expected OnOff=true after update")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}

func TestKeysEndpointDisabledByDefault(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.PostForm(ts.URL+"/keys", url.Values{"mask": {"1"}})
	if err != nil {
		t.Fatalf("POST /keys: %v", err)
	}
	resp.Body.Close()

	// falls through to the index handler, which rejects the path
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestKeysEndpointSetsMask(t *testing.T) {
	keys := gpio.NewFakeKeys()
	edges := make(chan struct{}, 2)
	keys.OnEdge(func() { edges <- struct{}{} })
	ts, _ := newTestServer(t, WithKeySetter(keys))

	resp, err := http.PostForm(ts.URL+"/keys", url.Values{"mask": {"0x03"}})
	if err != nil {
		t.Fatalf("POST /keys: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", resp.StatusCode)
	}
	got, _ := keys.ReadKeys()
	if got != gpio.KeySW1|gpio.KeySW2 {
		t.Errorf("mask: got %v, want 0x03", got)
	}
	if n := len(edges); n != 1 {
		t.Errorf("edges: got %d, want 1", n)
	}
}

func TestKeysEndpointRejectsBadInput(t *testing.T) {
	ts, _ := newTestServer(t, WithKeySetter(gpio.NewFakeKeys()))

	resp, err := http.Get(ts.URL + "/keys")
	if err != nil {
		t.Fatalf("GET /keys: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status: got %d, want 405", resp.StatusCode)
	}

	resp, err = http.PostForm(ts.URL+"/keys", url.Values{"mask": {"0x1ff"}})
	if err != nil {
		t.Fatalf("POST /keys: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("POST status: got %d, want 400", resp.StatusCode)
	}
}
