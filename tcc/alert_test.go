package tcc

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alertFixture = `
<div class="alert-content">
	<img src="/images/alert.png"/><span>
		Low battery. 1/15/2026 3:04:05 PM.
	</span><form><input name="AlertID" type="hidden" value="77"/><button>Dismiss</button></form></div>
<div class="alert-content">
	<span>
		Filter change due. 2/3/2026 11:30:00 AM.
	</span><em>informational</em></div>`

func TestParseAlerts(t *testing.T) {
	s, _ := newTestSession(t)
	z := s.GetZone(42)

	alerts := parseAlerts(alertFixture, z)
	require.Len(t, alerts, 2)

	first := alerts[0]
	assert.Equal(t, "Low battery. 1/15/2026 3:04:05 PM", first.Text())
	assert.True(t, first.Time().Equal(time.Date(2026, 1, 15, 15, 4, 5, 0, time.UTC)))
	assert.Equal(t, time.UTC, first.Time().Location())
	assert.True(t, first.Acknowledgable())

	second := alerts[1]
	assert.Equal(t, "Filter change due. 2/3/2026 11:30:00 AM", second.Text())
	assert.True(t, second.Time().Equal(time.Date(2026, 2, 3, 11, 30, 0, 0, time.UTC)))
	assert.False(t, second.Acknowledgable())
}

func TestAcknowledgeNotAcknowledgable(t *testing.T) {
	s, tr := newTestSession(t)
	z := s.GetZone(42)

	alerts := parseAlerts(alertFixture, z)
	require.Len(t, alerts, 2)

	ok, err := alerts[1].Acknowledge()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, tr.calls, "an unacknowledgable alert must not touch the portal")
}

func TestAcknowledge(t *testing.T) {
	s, tr := newTestSession(t,
		scriptStep{method: http.MethodPost, path: "/portal/Device/AcknowledgeAlert", body: ""},
	)
	z := s.GetZone(42)

	alerts := parseAlerts(alertFixture, z)
	require.Len(t, alerts, 2)

	ok, err := alerts[0].Acknowledge()
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, tr.calls, 1)
	assert.Equal(t, "AlertID=77&DeviceID=42", tr.calls[0].body)
}

func TestZoneAlertsFromListing(t *testing.T) {
	s, tr := newTestSession(t)
	z := s.mergeZone(zoneListing{
		id: 9, page: 1, locationID: 123456, name: "Attic",
		alerts: alertFixture,
	})

	has, err := z.HasAlerts()
	require.NoError(t, err)
	assert.True(t, has)

	alerts, err := z.Alerts()
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
	assert.Empty(t, tr.calls, "listing-supplied alerts need no detail load")
}
