package tcc

// Location is one site in the portal: typically a street address grouping
// one or more zones. Locations are created the first time an ID is seen and
// live for the life of the Session; re-references merge into the same
// instance instead of replacing it.
type Location struct {
	session *Session
	id      int
	name    string
}

// ID returns the portal-assigned location ID.
func (l *Location) ID() int {
	return l.id
}

// Name returns the display name scraped from the locations listing. Empty
// until the listing has been fetched.
func (l *Location) Name() string {
	return l.name
}

func (l *Location) String() string {
	return l.name
}

// Zones fetches the location's zones fresh from the portal.
func (l *Location) Zones() ([]*Zone, error) {
	return l.session.GetZonesByLocation(l, true)
}
