package tcc

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
)

// The portal renders timestamps without a zone; login always submits a zero
// UTC offset, so they are UTC by construction.
const alertTimeLayout = "1/2/2006 3:04:05 PM"

var (
	alertPattern   = regexp.MustCompile(`(?sU)<div class="alert-content">.*<span>\s*(.*([0-9]{1,2}/[0-9]{1,2}/[0-9]{4} [0-9]{1,2}:[0-9]{2}:[0-9]{2} [AP]M).*)\s*</span>(.*)</div>`)
	alertIDPattern = regexp.MustCompile(`AlertID" type="hidden" value="([0-9]+)"`)
)

// Alert is one notification attached to a Zone. Alerts are immutable once
// parsed; acknowledging one is a portal call, not a local mutation. Only
// alerts that arrived with a numeric acknowledgement reference can be
// acknowledged.
type Alert struct {
	zone           *Zone
	text           string
	dateTime       time.Time
	ref            int
	acknowledgable bool
}

// parseAlerts extracts a batch of alerts from one block of raw markup, as
// returned inside the zone listing and the detail response.
func parseAlerts(raw string, zone *Zone) []*Alert {
	matches := alertPattern.FindAllStringSubmatch(raw, -1)
	alerts := make([]*Alert, 0, len(matches))

	for _, m := range matches {
		when, _ := time.Parse(alertTimeLayout, m[2]) // no zone indicator: parsed as UTC
		a := &Alert{
			zone:     zone,
			text:     strings.TrimRight(strings.TrimSpace(m[1]), " .\t\n"),
			dateTime: when,
		}
		if idm := alertIDPattern.FindStringSubmatch(m[0]); idm != nil {
			if ref, err := strconv.Atoi(idm[1]); err == nil {
				a.ref = ref
				a.acknowledgable = true
			}
		}
		alerts = append(alerts, a)
	}
	return alerts
}

// Text returns the alert's message.
func (a *Alert) Text() string {
	return a.text
}

// Time returns the alert's timestamp in UTC.
func (a *Alert) Time() time.Time {
	return a.dateTime
}

// Acknowledgable reports whether the portal supplied an acknowledgement
// reference for this alert.
func (a *Alert) Acknowledgable() bool {
	return a.acknowledgable
}

func (a *Alert) String() string {
	return a.text
}

// Acknowledge dismisses the alert through the portal and waits for the
// result. It reports false with no network activity when the alert cannot
// be acknowledged.
func (a *Alert) Acknowledge() (bool, error) {
	if !a.acknowledgable {
		return false, nil
	}
	_, err := a.zone.session.request(http.MethodPost, acknowledgeAlertPath, requestOptions{
		form: url.Values{
			"DeviceID": {strconv.Itoa(a.zone.id)},
			"AlertID":  {strconv.Itoa(a.ref)},
		},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// AcknowledgeAsync fires the same acknowledgement without waiting for the
// result; failures are logged. The session gives no ordering guarantee
// between this and other in-flight calls against the same zone, so callers
// that care must serialize themselves.
func (a *Alert) AcknowledgeAsync() {
	if !a.acknowledgable {
		return
	}
	go func() {
		if _, err := a.Acknowledge(); err != nil {
			glog.Errorf("zone %d: acknowledging alert %d failed: %v", a.zone.id, a.ref, err)
		}
	}()
}
