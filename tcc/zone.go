package tcc

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

// Reading is a numeric sensor value paired with whether the portal considers
// it valid. An unavailable reading has a zero Value; callers must check
// Available instead of treating zero as data.
type Reading struct {
	Value     int
	Available bool
}

// Zone is one thermostat. A Zone is created the first time its ID is seen
// (from a listing row or an explicit GetZone) and is unique within its
// Session; data from later listings and detail loads merges into the same
// instance.
//
// Fields load lazily: reading anything beyond the identifiers triggers one
// detail fetch if that field hasn't been supplied yet. Writes stage locally
// and reach the portal only through SubmitChanges (or Session.Close).
type Zone struct {
	session    *Session
	id         int
	page       int
	locationID int

	dirty  bool
	loaded map[string]bool

	name       string
	runStatus  string
	rawAlerts  string
	deviceLive bool
	commLost   bool

	ui                       uiData
	fan                      fanData
	hasFan                   bool
	canControlHumidification bool

	dispTemperature    Reading
	indoorHumidity     Reading
	outdoorTemperature Reading
	outdoorHumidity    Reading
	coolSetpoint       Reading
	heatSetpoint       Reading
	displayUnits       string

	hold           bool
	coolNextPeriod int
	heatNextPeriod int

	alerts []*Alert
}

// detailFieldNames is every field a CheckDataSession response supplies. A
// successful detail load marks them all, so one load satisfies every reader.
var detailFieldNames = []string{
	"name", "runStatus", "gatewayIsLost", "deviceLive", "communicationLost",
	"displayUnits", "dispTemperature", "indoorHumidity",
	"outdoorTemperature", "outdoorHumidity",
	"coolSetpoint", "heatSetpoint", "coolNextPeriod", "heatNextPeriod",
	"hold", "systemSwitchPosition", "hasFan", "fanIsRunning",
	"canControlHumidification", "alerts",
}

func newZone(s *Session, id int) *Zone {
	return &Zone{session: s, id: id, loaded: map[string]bool{}}
}

func (z *Zone) markLoaded(names ...string) {
	for _, n := range names {
		z.loaded[n] = true
	}
}

// ensure makes field readable, fetching details at most once. A detail
// response the portal declines surfaces as a ParseError so readers fail
// loudly instead of returning stale zeroes.
func (z *Zone) ensure(field string) error {
	if z.loaded[field] {
		return nil
	}
	ok, err := z.LoadDetails()
	if err != nil {
		return err
	}
	if !ok {
		return &ParseError{Reason: "portal declined the data session"}
	}
	return nil
}

// ID returns the portal-assigned device ID. Never triggers a load.
func (z *Zone) ID() int {
	return z.id
}

// LocationID returns the owning location's ID, or zero if this zone has only
// been referenced by ID so far. Never triggers a load.
func (z *Zone) LocationID() int {
	return z.locationID
}

// Page returns which listing page this zone appeared on, or zero.
func (z *Zone) Page() int {
	return z.page
}

// Dirty reports whether local changes are waiting for SubmitChanges.
func (z *Zone) Dirty() bool {
	return z.dirty
}

// Name returns the zone's display name.
func (z *Zone) Name() (string, error) {
	if err := z.ensure("name"); err != nil {
		return "", err
	}
	return z.name, nil
}

// RunStatus returns the equipment run status token from the listing
// ("Cool", "Heat", "Off", ...). Empty when the zone was never listed and the
// detail load couldn't map the equipment output status.
func (z *Zone) RunStatus() (string, error) {
	if err := z.ensure("runStatus"); err != nil {
		return "", err
	}
	return z.runStatus, nil
}

// GatewayIsLost reports whether the portal has lost contact with the zone's
// gateway.
func (z *Zone) GatewayIsLost() (bool, error) {
	if err := z.ensure("gatewayIsLost"); err != nil {
		return false, err
	}
	return z.ui.GatewayIsLost, nil
}

// DeviceLive reports the portal's live flag for this device.
func (z *Zone) DeviceLive() (bool, error) {
	if err := z.ensure("deviceLive"); err != nil {
		return false, err
	}
	return z.deviceLive, nil
}

// CommunicationLost reports whether the portal flagged the device as out of
// communication.
func (z *Zone) CommunicationLost() (bool, error) {
	if err := z.ensure("communicationLost"); err != nil {
		return false, err
	}
	return z.commLost, nil
}

// DisplayUnits returns "F" or "C", or empty when the display temperature is
// unavailable.
func (z *Zone) DisplayUnits() (string, error) {
	if err := z.ensure("displayUnits"); err != nil {
		return "", err
	}
	return z.displayUnits, nil
}

// DispTemperature returns the indoor display temperature in DisplayUnits.
func (z *Zone) DispTemperature() (Reading, error) {
	if err := z.ensure("dispTemperature"); err != nil {
		return Reading{}, err
	}
	return z.dispTemperature, nil
}

// IndoorHumidity returns the indoor relative humidity percentage.
func (z *Zone) IndoorHumidity() (Reading, error) {
	if err := z.ensure("indoorHumidity"); err != nil {
		return Reading{}, err
	}
	return z.indoorHumidity, nil
}

// OutdoorTemperature returns the outdoor temperature in DisplayUnits, when
// an outdoor sensor is present and healthy.
func (z *Zone) OutdoorTemperature() (Reading, error) {
	if err := z.ensure("outdoorTemperature"); err != nil {
		return Reading{}, err
	}
	return z.outdoorTemperature, nil
}

// OutdoorHumidity returns the outdoor relative humidity percentage.
func (z *Zone) OutdoorHumidity() (Reading, error) {
	if err := z.ensure("outdoorHumidity"); err != nil {
		return Reading{}, err
	}
	return z.outdoorHumidity, nil
}

// CoolSetpoint returns the cooling setpoint. Unavailable when the system
// cannot switch to cooling.
func (z *Zone) CoolSetpoint() (Reading, error) {
	if err := z.ensure("coolSetpoint"); err != nil {
		return Reading{}, err
	}
	return z.coolSetpoint, nil
}

// HeatSetpoint returns the heating setpoint. Unavailable when the system
// cannot switch to heating.
func (z *Zone) HeatSetpoint() (Reading, error) {
	if err := z.ensure("heatSetpoint"); err != nil {
		return Reading{}, err
	}
	return z.heatSetpoint, nil
}

// Hold reports whether a temporary hold is in effect.
func (z *Zone) Hold() (bool, error) {
	if err := z.ensure("hold"); err != nil {
		return false, err
	}
	return z.hold, nil
}

// CoolNextPeriod returns the next scheduled cooling period marker (quarter
// hours since midnight).
func (z *Zone) CoolNextPeriod() (int, error) {
	if err := z.ensure("coolNextPeriod"); err != nil {
		return 0, err
	}
	return z.coolNextPeriod, nil
}

// HeatNextPeriod returns the next scheduled heating period marker.
func (z *Zone) HeatNextPeriod() (int, error) {
	if err := z.ensure("heatNextPeriod"); err != nil {
		return 0, err
	}
	return z.heatNextPeriod, nil
}

// SystemSwitchPosition returns the raw system switch position code.
func (z *Zone) SystemSwitchPosition() (int, error) {
	if err := z.ensure("systemSwitchPosition"); err != nil {
		return 0, err
	}
	return z.ui.SystemSwitchPosition, nil
}

// HasFan reports whether the zone controls a fan.
func (z *Zone) HasFan() (bool, error) {
	if err := z.ensure("hasFan"); err != nil {
		return false, err
	}
	return z.hasFan, nil
}

// FanIsRunning reports whether the fan is currently running.
func (z *Zone) FanIsRunning() (bool, error) {
	if err := z.ensure("fanIsRunning"); err != nil {
		return false, err
	}
	return z.fan.FanIsRunning, nil
}

// CanControlHumidification reports whether humidification controls exist.
func (z *Zone) CanControlHumidification() (bool, error) {
	if err := z.ensure("canControlHumidification"); err != nil {
		return false, err
	}
	return z.canControlHumidification, nil
}

// Alerts returns the zone's current alerts.
func (z *Zone) Alerts() ([]*Alert, error) {
	if err := z.ensure("alerts"); err != nil {
		return nil, err
	}
	return z.alerts, nil
}

// HasAlerts reports whether any alerts are outstanding.
func (z *Zone) HasAlerts() (bool, error) {
	alerts, err := z.Alerts()
	if err != nil {
		return false, err
	}
	return len(alerts) > 0, nil
}

// fieldValue maps a field name to its current value, without loading. The
// second result distinguishes "unknown name" from a legitimately zero value.
func (z *Zone) fieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return z.id, true
	case "locationId":
		return z.locationID, true
	case "name":
		return z.name, true
	case "runStatus":
		return z.runStatus, true
	case "gatewayIsLost":
		return z.ui.GatewayIsLost, true
	case "deviceLive":
		return z.deviceLive, true
	case "communicationLost":
		return z.commLost, true
	case "displayUnits":
		return z.displayUnits, true
	case "dispTemperature":
		return z.dispTemperature, true
	case "indoorHumidity":
		return z.indoorHumidity, true
	case "outdoorTemperature":
		return z.outdoorTemperature, true
	case "outdoorHumidity":
		return z.outdoorHumidity, true
	case "coolSetpoint":
		return z.coolSetpoint, true
	case "heatSetpoint":
		return z.heatSetpoint, true
	case "coolNextPeriod":
		return z.coolNextPeriod, true
	case "heatNextPeriod":
		return z.heatNextPeriod, true
	case "hold":
		return z.hold, true
	case "systemSwitchPosition":
		return z.ui.SystemSwitchPosition, true
	case "hasFan":
		return z.hasFan, true
	case "fanIsRunning":
		return z.fan.FanIsRunning, true
	case "canControlHumidification":
		return z.canControlHumidification, true
	case "alerts":
		return z.alerts, true
	}
	return nil, false
}

// Field looks a field up by name. Unknown names are a NotFoundError; known
// names other than the identifiers load the zone's details on first access.
func (z *Zone) Field(name string) (any, error) {
	if name == "id" || name == "locationId" {
		v, _ := z.fieldValue(name)
		return v, nil
	}
	if _, known := z.fieldValue(name); !known {
		return nil, &NotFoundError{What: "zone field " + name}
	}
	if err := z.ensure(name); err != nil {
		return nil, err
	}
	v, _ := z.fieldValue(name)
	return v, nil
}

// Set writes a field by name. Names outside the writable subset are ignored
// without error; a caller can only detect this by reading back.
func (z *Zone) Set(name string, value any) error {
	switch name {
	case "coolSetpoint":
		v, ok := toInt(value)
		if !ok {
			return &ValidationError{Field: name, Reason: "a numeric setpoint is required"}
		}
		return z.SetCoolSetpoint(v)
	case "heatSetpoint":
		v, ok := toInt(value)
		if !ok {
			return &ValidationError{Field: name, Reason: "a numeric setpoint is required"}
		}
		return z.SetHeatSetpoint(v)
	case "coolNextPeriod":
		v, ok := toInt(value)
		if !ok {
			return &ValidationError{Field: name, Reason: "a numeric period marker is required"}
		}
		return z.SetCoolNextPeriod(v)
	case "heatNextPeriod":
		v, ok := toInt(value)
		if !ok {
			return &ValidationError{Field: name, Reason: "a numeric period marker is required"}
		}
		return z.SetHeatNextPeriod(v)
	case "hold":
		v, ok := value.(bool)
		if !ok {
			return &ValidationError{Field: name, Reason: "hold must be a bool"}
		}
		return z.SetHold(v)
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(math.Round(n)), true
	}
	return 0, false
}

// SetCoolSetpoint stages a new cooling setpoint. Setting the current value
// is a no-op; an actual change also engages the hold, since a setpoint that
// isn't held would be overwritten at the next schedule period.
func (z *Zone) SetCoolSetpoint(v int) error {
	if err := z.ensure("coolSetpoint"); err != nil {
		return err
	}
	if z.coolSetpoint.Available && z.coolSetpoint.Value == v {
		return nil
	}
	z.coolSetpoint = Reading{Value: v, Available: true}
	z.hold = true
	z.dirty = true
	z.markLoaded("coolSetpoint", "hold")
	return nil
}

// SetHeatSetpoint stages a new heating setpoint; see SetCoolSetpoint.
func (z *Zone) SetHeatSetpoint(v int) error {
	if err := z.ensure("heatSetpoint"); err != nil {
		return err
	}
	if z.heatSetpoint.Available && z.heatSetpoint.Value == v {
		return nil
	}
	z.heatSetpoint = Reading{Value: v, Available: true}
	z.hold = true
	z.dirty = true
	z.markLoaded("heatSetpoint", "hold")
	return nil
}

// SetCoolNextPeriod stages a new next-cooling-period marker.
func (z *Zone) SetCoolNextPeriod(v int) error {
	if err := z.ensure("coolNextPeriod"); err != nil {
		return err
	}
	if z.coolNextPeriod == v {
		return nil
	}
	z.coolNextPeriod = v
	z.dirty = true
	return nil
}

// SetHeatNextPeriod stages a new next-heating-period marker.
func (z *Zone) SetHeatNextPeriod(v int) error {
	if err := z.ensure("heatNextPeriod"); err != nil {
		return err
	}
	if z.heatNextPeriod == v {
		return nil
	}
	z.heatNextPeriod = v
	z.dirty = true
	return nil
}

// SetHold stages the hold flag. Clearing it returns the zone to its
// schedule at the next SubmitChanges.
func (z *Zone) SetHold(v bool) error {
	if err := z.ensure("hold"); err != nil {
		return err
	}
	if z.hold == v {
		return nil
	}
	z.hold = v
	z.dirty = true
	return nil
}

// LoadDetails fetches the zone's full state. ok=false means the portal
// answered but declined the data session (a device that is offline or was
// removed); err covers transport and decoding failures.
func (z *Zone) LoadDetails() (bool, error) {
	resp, err := z.session.request(http.MethodGet, checkDataSessionPath+strconv.Itoa(z.id), requestOptions{
		headers: map[string]string{
			"X-Requested-With": "XMLHttpRequest",
			"Accept":           "*/*",
		},
	})
	if err != nil {
		return false, err
	}

	var body checkDataSessionResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return false, &ParseError{Reason: "data session response is not valid JSON: " + err.Error()}
	}
	if !bool(body.Success) {
		return false, nil
	}

	z.deviceLive = body.DeviceLive
	z.commLost = body.CommLost
	z.applyDetails(&body.LatestData)
	return true, nil
}

// applyListing merges one scraped listing row. Only the fields a row
// actually carries are marked loaded; everything else still defers to a
// detail load.
func (z *Zone) applyListing(row zoneListing) {
	z.page = row.page
	z.locationID = row.locationID
	z.name = row.name
	z.runStatus = row.runStatus
	z.dispTemperature = Reading{Value: row.temperature, Available: row.temperatureAvailable}
	z.indoorHumidity = Reading{Value: row.humidity, Available: row.humidityAvailable}
	z.rawAlerts = row.alerts
	z.alerts = parseAlerts(row.alerts, z)
	z.markLoaded("name", "runStatus", "dispTemperature", "indoorHumidity", "alerts")
}

// applyDetails merges a successful detail response and marks every
// detail-supplied field loaded, so no reader triggers a second fetch.
func (z *Zone) applyDetails(d *latestData) {
	z.ui = d.UIData
	z.fan = d.FanData
	z.hasFan = d.HasFan
	z.canControlHumidification = d.CanControlHumidification

	z.displayUnits = d.UIData.DisplayUnits
	z.hold = d.UIData.StatusCool == 1 || d.UIData.StatusHeat == 1
	z.coolNextPeriod = d.UIData.CoolNextPeriod
	z.heatNextPeriod = d.UIData.HeatNextPeriod

	if d.Alerts != "" {
		z.rawAlerts = d.Alerts
		z.alerts = parseAlerts(d.Alerts, z)
	}

	z.markLoaded(detailFieldNames...)
	z.normalize()
}

// normalize converts the raw value/flag pairs into Readings, zeroing any
// value whose availability or fault flags say it cannot be trusted.
// Setpoints are valid only while the matching switch mode is allowed.
func (z *Zone) normalize() {
	z.dispTemperature = reading(z.ui.DispTemperature, z.ui.DispTemperatureAvailable)
	if !z.dispTemperature.Available {
		z.displayUnits = ""
	}
	z.indoorHumidity = reading(z.ui.IndoorHumidity,
		z.ui.IndoorHumiditySensorAvailable && z.ui.IndoorHumiditySensorNotFault)
	z.outdoorTemperature = reading(z.ui.OutdoorTemperature,
		z.ui.OutdoorTemperatureAvailable && z.ui.OutdoorTemperatureSensorNotFault)
	z.outdoorHumidity = reading(z.ui.OutdoorHumidity,
		z.ui.OutdoorHumidityAvailable && z.ui.OutdoorSensorNotFault)
	z.coolSetpoint = reading(z.ui.CoolSetpoint, z.ui.SwitchCoolAllowed)
	z.heatSetpoint = reading(z.ui.HeatSetpoint, z.ui.SwitchHeatAllowed)
}

func reading(v float64, available bool) Reading {
	if !available {
		return Reading{}
	}
	return Reading{Value: int(math.Round(v)), Available: true}
}

// SubmitChanges pushes staged writes to the portal. It reports success; a
// clean zone succeeds without network activity. On any failure the dirty
// flag stays set so a later flush can retry.
func (z *Zone) SubmitChanges() bool {
	if !z.dirty {
		return true
	}

	status := 0
	if z.hold {
		status = 1
	}
	req := submitChangesRequest{
		DeviceID:       z.id,
		CoolNextPeriod: &z.coolNextPeriod,
		HeatNextPeriod: &z.heatNextPeriod,
		StatusCool:     status,
		StatusHeat:     status,
	}
	// Setpoints ride along only under a hold; null tells the portal to
	// follow the schedule.
	if z.hold {
		if z.coolSetpoint.Available {
			req.CoolSetpoint = &z.coolSetpoint.Value
		}
		if z.heatSetpoint.Available {
			req.HeatSetpoint = &z.heatSetpoint.Value
		}
	}

	resp, err := z.session.request(http.MethodPost, submitChangesPath, requestOptions{
		json: req,
		headers: map[string]string{
			"Referer":          z.session.baseURL + "/portal/Device/Control/" + strconv.Itoa(z.id),
			"Accept":           "application/json, text/javascript, */*; q=0.01",
			"X-Requested-With": "XMLHttpRequest",
		},
	})
	if err != nil {
		glog.Errorf("zone %d: submitting changes failed: %v", z.id, err)
		return false
	}
	if strings.TrimSpace(string(resp.body)) != submitSuccessBody {
		glog.Errorf("zone %d: portal did not accept changes: %q", z.id, strings.TrimSpace(string(resp.body)))
		return false
	}
	z.dirty = false
	return true
}
