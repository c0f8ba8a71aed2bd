package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/fridge-sensor/internal/logic"
	"github.com/sweeney/fridge-sensor/internal/status"
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
	"tenths": logic.FormatTenths,
	"humidity": func(v uint) string {
		return logic.FormatTenths(int(v))
	},
	"kind": func(err error) string {
		return string(logic.KindOf(err))
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Fridge Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.error { color: red; }
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
<h1>Fridge Sensor{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Readings</h2>
<table>
{{- if .HasReading}}
{{- with .Last.Refrigerator}}
<tr><th>Refrigerator</th><td id="refrigerator" class="{{if .OK}}ok{{else}}error{{end}}">{{if .OK}}{{tenths .Reading.TemperatureTenths}}°C {{humidity .Reading.HumidityTenths}}%{{else}}Data Error ({{kind .Err}}){{end}}</td></tr>
{{- end}}
{{- with .Last.Freezer}}
<tr><th>Freezer</th><td id="freezer" class="{{if .OK}}ok{{else}}error{{end}}">{{if .OK}}{{tenths .Reading.TemperatureTenths}}°C {{humidity .Reading.HumidityTenths}}%{{else}}Data Error ({{kind .Err}}){{end}}</td></tr>
{{- end}}
<tr><th>Sampled</th><td id="sampled">{{.Last.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{- else}}
<tr><th>Refrigerator</th><td id="refrigerator" class="unknown">waiting</td></tr>
<tr><th>Freezer</th><td id="freezer" class="unknown">waiting</td></tr>
{{- end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Upload</th><td>{{if .Config.UploadURL}}{{.Config.UploadURL}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} — {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Rounds</th><td>{{.Stats.Rounds}}</td></tr>
<tr><th>Overruns</th><td>{{.Stats.Overruns}}</td></tr>
<tr><th>Sink errors</th><td>{{.Stats.SinkErrors}}</td></tr>
<tr><th>Refrigerator ok / failed</th><td>{{.Stats.Refrigerator.OK}} / {{.Stats.Refrigerator.Failures}}</td></tr>
<tr><th>Freezer ok / failed</th><td>{{.Stats.Freezer.OK}} / {{.Stats.Freezer.Failures}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>Last round</th><td>{{.LastRound.Milliseconds}}ms</td></tr>
<tr><th>Threshold</th><td>{{.Config.ThresholdUs}}µs</td></tr>
<tr><th>Pins</th><td>REF {{.Config.PinRefrigerator}}, FRZ {{.Config.PinFreezer}}</td></tr>
<tr><th>LCD</th><td>{{if .Config.LCD}}enabled{{else}}disabled{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "fridge/sensor/readings";
  var dot = document.getElementById("live-dot");
  var refEl = document.getElementById("refrigerator");
  var frzEl = document.getElementById("freezer");

  function setChannel(el, ch) {
    if (ch.temperature === null) {
      el.textContent = "Data Error (" + ch.error + ")";
      el.className = "error";
      return;
    }
    el.textContent = ch.temperature.toFixed(1) + "°C " + ch.humidity.toFixed(1) + "%";
    el.className = "ok";
  }

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
      if (msg.fridge) {
        setChannel(refEl, msg.fridge.refrigerator);
        setChannel(frzEl, msg.fridge.freezer);
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
