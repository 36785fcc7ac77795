package tcc

import "bytes"

// Wire-format structs for the portal's JSON endpoints.

// jsonFlag accepts both the boolean and the 0/1 spellings the portal uses
// for its success flags.
type jsonFlag bool

func (f *jsonFlag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = jsonFlag(string(b) == "true" || string(b) == "1")
	return nil
}

type checkDataSessionResponse struct {
	Success    jsonFlag   `json:"success"`
	DeviceLive bool       `json:"deviceLive"`
	CommLost   bool       `json:"communicationLost"`
	LatestData latestData `json:"latestData"`
}

type latestData struct {
	UIData                   uiData  `json:"uiData"`
	FanData                  fanData `json:"fanData"`
	HasFan                   bool    `json:"hasFan"`
	CanControlHumidification bool    `json:"canControlHumidification"`
	Alerts                   string  `json:"alerts"`
}

type uiData struct {
	DispTemperature          float64 `json:"DispTemperature"`
	DispTemperatureAvailable bool    `json:"DispTemperatureAvailable"`
	DisplayUnits             string  `json:"DisplayUnits"`
	GatewayIsLost            bool    `json:"GatewayIsLost"`

	IndoorHumidity                float64 `json:"IndoorHumidity"`
	IndoorHumiditySensorAvailable bool    `json:"IndoorHumiditySensorAvailable"`
	IndoorHumiditySensorNotFault  bool    `json:"IndoorHumiditySensorNotFault"`
	IndoorHumidStatus             int     `json:"IndoorHumidStatus"`
	EquipmentOutputStatus         int     `json:"EquipmentOutputStatus"`

	OutdoorTemperature               float64 `json:"OutdoorTemperature"`
	OutdoorTemperatureAvailable      bool    `json:"OutdoorTemperatureAvailable"`
	OutdoorTemperatureSensorNotFault bool    `json:"OutdoorTemperatureSensorNotFault"`
	OutdoorTempStatus                int     `json:"OutdoorTempStatus"`
	OutdoorHumidity                  float64 `json:"OutdoorHumidity"`
	OutdoorHumidityAvailable         bool    `json:"OutdoorHumidityAvailable"`
	OutdoorSensorNotFault            bool    `json:"OutdoorSensorNotFault"`
	OutdoorHumidStatus               int     `json:"OutdoorHumidStatus"`

	CoolSetpoint        float64 `json:"CoolSetpoint"`
	CoolLowerSetptLimit float64 `json:"CoolLowerSetptLimit"`
	CoolUpperSetptLimit float64 `json:"CoolUpperSetptLimit"`
	ScheduleCoolSp      float64 `json:"ScheduleCoolSp"`
	StatusCool          int     `json:"StatusCool"`

	HeatSetpoint        float64 `json:"HeatSetpoint"`
	HeatLowerSetptLimit float64 `json:"HeatLowerSetptLimit"`
	HeatUpperSetptLimit float64 `json:"HeatUpperSetptLimit"`
	ScheduleHeatSp      float64 `json:"ScheduleHeatSp"`
	StatusHeat          int     `json:"StatusHeat"`

	CurrentSetpointStatus int     `json:"CurrentSetpointStatus"`
	Deadband              float64 `json:"Deadband"`
	DualSetpointStatus    bool    `json:"DualSetpointStatus"`
	SetpointChangeAllowed bool    `json:"SetpointChangeAllowed"`

	CoolNextPeriod         int  `json:"CoolNextPeriod"`
	HeatNextPeriod         int  `json:"HeatNextPeriod"`
	HoldUntilCapable       bool `json:"HoldUntilCapable"`
	IsInVacationHoldMode   bool `json:"IsInVacationHoldMode"`
	TemporaryHoldUntilTime int  `json:"TemporaryHoldUntilTime"`
	VacationHold           int  `json:"VacationHold"`
	VacationHoldCancelable bool `json:"VacationHoldCancelable"`
	VacationHoldUntilTime  int  `json:"VacationHoldUntilTime"`

	Commercial      bool `json:"Commercial"`
	ScheduleCapable bool `json:"ScheduleCapable"`

	SwitchAutoAllowed          bool `json:"SwitchAutoAllowed"`
	SwitchCoolAllowed          bool `json:"SwitchCoolAllowed"`
	SwitchHeatAllowed          bool `json:"SwitchHeatAllowed"`
	SwitchEmergencyHeatAllowed bool `json:"SwitchEmergencyHeatAllowed"`
	SwitchOffAllowed           bool `json:"SwitchOffAllowed"`
	SystemSwitchPosition       int  `json:"SystemSwitchPosition"`
}

type fanData struct {
	FanMode                      int  `json:"fanMode"`
	FanModeAutoAllowed           bool `json:"fanModeAutoAllowed"`
	FanModeOnAllowed             bool `json:"fanModeOnAllowed"`
	FanModeCirculateAllowed      bool `json:"fanModeCirculateAllowed"`
	FanModeFollowScheduleAllowed bool `json:"fanModeFollowScheduleAllowed"`
	FanIsRunning                 bool `json:"fanIsRunning"`
}

// submitChangesRequest is the control-screen write payload. Setpoints are
// null unless a hold is in effect; null means "follow the schedule".
type submitChangesRequest struct {
	CoolNextPeriod *int `json:"CoolNextPeriod"`
	CoolSetpoint   *int `json:"CoolSetpoint"`
	DeviceID       int  `json:"DeviceID"`
	FanMode        *int `json:"FanMode"`
	HeatNextPeriod *int `json:"HeatNextPeriod"`
	HeatSetpoint   *int `json:"HeatSetpoint"`
	StatusCool     int  `json:"StatusCool"`
	StatusHeat     int  `json:"StatusHeat"`
	SystemSwitch   *int `json:"SystemSwitch"`
}
