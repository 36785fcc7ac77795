package tcc

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

// scriptedTransport serves canned portal responses in order and records what
// was sent, so tests exercise the real client plumbing without any network.
type scriptedTransport struct {
	t     *testing.T
	steps []scriptStep
	calls []recordedCall
}

type scriptStep struct {
	method string
	path   string
	status int
	body   string

	// finalPath simulates a redirect: it becomes the effective URL path of
	// the response. Defaults to path.
	finalPath string
}

type recordedCall struct {
	method string
	path   string
	body   string
}

func (tr *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tr.t.Helper()

	var body string
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		body = string(b)
	}
	tr.calls = append(tr.calls, recordedCall{method: req.Method, path: req.URL.Path, body: body})

	if len(tr.steps) == 0 {
		tr.t.Fatalf("unexpected request %s %s", req.Method, req.URL.Path)
	}
	step := tr.steps[0]
	tr.steps = tr.steps[1:]
	if req.Method != step.method || req.URL.Path != step.path {
		tr.t.Fatalf("expected %s %s, got %s %s", step.method, step.path, req.Method, req.URL.Path)
	}

	status := step.status
	if status == 0 {
		status = http.StatusOK
	}
	finalReq := req.Clone(req.Context())
	if step.finalPath != "" {
		u := *req.URL
		u.Path = step.finalPath
		finalReq.URL = &u
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(step.body)),
		Request:    finalReq,
	}, nil
}

func newTestSession(t *testing.T, steps ...scriptStep) (*Session, *scriptedTransport) {
	t.Helper()
	tr := &scriptedTransport{t: t, steps: steps}
	s, err := NewSession("user@example.com", "hunter2",
		WithHTTPClient(&http.Client{Transport: tr}))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s, tr
}

const loginPageHTML = `<html><body>
<form action="/portal/" method="post">
	<input name="UserName"/><input name="Password" type="password"/>
	<a href="/portal/forgotpassword">Forgot Password?</a>
</form></body></html>`

const locationsPageHTML = `<html><body>
<div class="location" data-id="123456">
	<div class="location-name">
		Home
	</div>
</div>
<div class="location" data-id="654321">
	<div class="location-name">
		Cabin
	</div>
</div>
</body></html>`

const locationsMismatchHTML = `<html><body>
<div class="location" data-id="111"></div>
<div class="location" data-id="222">
	<div class="location-name">
		First
	</div>
</div>
<div class="location" data-id="333">
	<div class="location-name">
		Second
	</div>
</div>
</body></html>`

// zoneRowHTML renders one listing-table row the way the portal does. temp
// and humidity are cell strings; "--" marks an unavailable reading.
func zoneRowHTML(id int, name, status, temp, humidity, alerts string) string {
	return fmt.Sprintf(`
<tr data-id="%d" class="zone-row">
	<td><div class="location-name">%s</div></td>
	<td><div class="%sIcon" style=""></div></td>
	<td><div class="readings">%s&deg;<br/>%s%%</div></td>
	<td class="alert">%s</td>
</tr>`, id, name, status, temp, humidity, alerts)
}

func pageLinkHTML(locationID, page int) string {
	return fmt.Sprintf(`<div class='pageNumber'><a href='/portal/%d/Zones/page%d'>%d</a></div>`,
		locationID, page, page)
}

const detailJSON = `{
	"success": 1,
	"deviceLive": true,
	"communicationLost": false,
	"latestData": {
		"uiData": {
			"DispTemperature": 72.0,
			"DispTemperatureAvailable": true,
			"DisplayUnits": "F",
			"GatewayIsLost": false,
			"IndoorHumidity": 45,
			"IndoorHumiditySensorAvailable": true,
			"IndoorHumiditySensorNotFault": true,
			"OutdoorTemperature": 88,
			"OutdoorTemperatureAvailable": true,
			"OutdoorTemperatureSensorNotFault": true,
			"OutdoorHumidity": 60,
			"OutdoorHumidityAvailable": false,
			"OutdoorSensorNotFault": true,
			"CoolSetpoint": 75,
			"StatusCool": 0,
			"HeatSetpoint": 68,
			"StatusHeat": 0,
			"CoolNextPeriod": 30,
			"HeatNextPeriod": 34,
			"SwitchCoolAllowed": true,
			"SwitchHeatAllowed": true,
			"SystemSwitchPosition": 3
		},
		"fanData": {"fanMode": 0, "fanIsRunning": true},
		"hasFan": true,
		"canControlHumidification": false,
		"alerts": ""
	}
}`
