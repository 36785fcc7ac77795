package tcc

import (
	"regexp"
	"strconv"
)

// Everything in this file is tied to the portal's markup as served today.
// The patterns are deliberately literal: they match known page fragments,
// they do not parse HTML.

const (
	loginPageMarker       = "Forgot Password?"
	tooManyAttemptsMarker = "You have exceeded the maximum number of attempts."
	loginFailedMarker     = "Login was unsuccessful."
	submitSuccessBody     = `{"success":1}`
)

var (
	locationIDPattern   = regexp.MustCompile(`data-id="([0-9]+)"`)
	locationNamePattern = regexp.MustCompile(`<div class="location-name">\s+([^<\n]+)\s+</div>`)

	zoneRowPattern   = regexp.MustCompile(`(?sU)data-id="([0-9]+)".*<div class="location-name">([^<]+)<.*([0-9\-]{1,3})&deg.*([0-9\-]{1,3})%</div.*"alert">(.*)</td>`)
	runStatusPattern = regexp.MustCompile(`([A-Za-z0-9_]{4,7})Icon" style=""`)
	pageLinkPattern  = regexp.MustCompile(`'pageNumber'><a href='(/portal/[0-9]+/Zones/page([0-9]+))'>`)

	effectiveLocationPattern = regexp.MustCompile(`([0-9]+)`)
)

// zoneListing is one row scraped from a zone listing page. The run status is
// an opaque CSS-class token ("heat", "cool", "fanOn", ...); the temperature
// and humidity cells may hold "--" when the reading is unavailable, which is
// what the availability flags record.
type zoneListing struct {
	id         int
	page       int
	locationID int
	name       string
	runStatus  string

	temperature          int
	temperatureAvailable bool
	humidity             int
	humidityAvailable    bool

	alerts string
}

func scrapeZoneRows(html string, page, locationID int) []zoneListing {
	matches := zoneRowPattern.FindAllStringSubmatch(html, -1)
	rows := make([]zoneListing, 0, len(matches))

	for _, m := range matches {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		row := zoneListing{
			id:         id,
			page:       page,
			locationID: locationID,
			name:       m[2],
			alerts:     m[5],
		}
		if sm := runStatusPattern.FindStringSubmatch(m[0]); sm != nil {
			row.runStatus = sm[1]
		}
		row.temperature, row.temperatureAvailable = atoiCell(m[3])
		row.humidity, row.humidityAvailable = atoiCell(m[4])

		rows = append(rows, row)
	}
	return rows
}

// atoiCell converts a scraped table cell; a non-numeric cell ("--") means
// the reading is unavailable.
func atoiCell(s string) (int, bool) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
