package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/switch-node/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"orUnknown": orUnknown,
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Switch Node</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Switch Node {{.Config.DeviceID}}{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Device</h2>
<table>
<tr><th>Network</th><td id="nwk-state" class="{{if .Device.OnNetwork}}on{{else}}unknown{{end}}">{{orUnknown .Device.NetworkState}}</td></tr>
<tr><th>On/Off</th><td id="on-off" class="{{if .Device.OnOff}}on{{else}}off{{end}}">{{onOff .Device.OnOff}}</td></tr>
<tr><th>Keys</th><td>{{printf "0x%02x" .Device.Keys}} ({{orUnknown .Device.Press}})</td></tr>
<tr><th>LED</th><td>{{if .Device.Blinking}}blinking{{else}}steady{{end}}</td></tr>
<tr><th>Battery</th><td>{{orUnknown .Device.Battery}}{{if .BatteryMV}} ({{.BatteryMV}}mV){{end}}</td></tr>
<tr><th>Asleep</th><td>{{if .Asleep}}yes{{else}}no{{end}}</td></tr>
<tr><th>Next sequence</th><td>{{.Device.NextSeq}}</td></tr>
<tr><th>Ready</th><td>{{if .Started}}yes{{else}}no{{end}}</td></tr>
</table>

{{with .Device.Commissioning}}<h2>Commissioning</h2>
<table>
<tr><th>Stage</th><td>{{.Stage}}</td></tr>
<tr><th>Status</th><td>{{.Status}}</td></tr>
<tr><th>Remaining</th><td>{{.Remaining}}</td></tr>
<tr><th>At</th><td>{{.At.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
</table>
{{end}}
<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Prefix</th><td>{{.Config.Prefix}}</td></tr>
{{if .Network}}<tr><th>Host network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Presses</th><td>{{.Device.Counts.Presses}}</td></tr>
<tr><th>Long presses</th><td>{{.Device.Counts.LongPresses}}</td></tr>
<tr><th>Reports</th><td>{{.Device.Counts.Reports}}</td></tr>
<tr><th>Report errors</th><td>{{.Device.Counts.ReportErrors}}</td></tr>
<tr><th>Rejoins</th><td>{{.Device.Counts.Rejoins}}</td></tr>
<tr><th>Leaves</th><td>{{.Device.Counts.Leaves}}</td></tr>
<tr><th>Commands</th><td>{{.Device.Counts.Commands}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Type</th><td>{{.Config.DeviceType}} (endpoint {{.Config.Endpoint}})</td></tr>
<tr><th>Long press</th><td>{{.Config.LongPressMs}}ms</td></tr>
<tr><th>Key poll</th><td>{{.Config.KeyPollMs}}ms</td></tr>
<tr><th>Rejoin</th><td>{{.Config.RejoinMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.Config.Prefix}}/system";
  var dot = document.getElementById("live-dot");
  var nwkEl = document.getElementById("nwk-state");
  var onOffEl = document.getElementById("on-off");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.status) {
        nwkEl.textContent = msg.status.network_state;
        nwkEl.className = msg.status.on_network ? "on" : "unknown";
        onOffEl.textContent = msg.status.on_off ? "ON" : "OFF";
        onOffEl.className = msg.status.on_off ? "on" : "off";
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
