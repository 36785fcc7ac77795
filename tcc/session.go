// Package tcc is a client for the Total Connect Comfort web portal. The
// portal has no published API; this package drives the same endpoints the
// browser UI uses, scraping its markup and JSON into Locations, Zones and
// Alerts.
//
// One Session is the scope of one logged-in user. Authentication is lazy:
// nothing talks to the portal until a request needs to, and an expired
// session is re-established transparently in the middle of whatever call
// noticed it.
package tcc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/golang/glog"
	"golang.org/x/net/publicsuffix"
)

const defaultBaseURL = "https://www.mytotalconnectcomfort.com"

const (
	loginPath            = "/portal/"
	locationsPath        = "/portal/Locations"
	checkDataSessionPath = "/portal/Device/CheckDataSession/"
	submitChangesPath    = "/portal/Device/SubmitControlScreenChanges"
	acknowledgeAlertPath = "/portal/Device/AcknowledgeAlert"
)

// The portal rejects clients that don't look like a browser.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/74.0.3729.157 Safari/537.36"

// loginAttempts bounds how many times request() will try the login exchange
// before giving up with an AuthError.
const loginAttempts = 3

// Session owns the credentials, the cookie-bearing HTTP client, and the
// identity cache of every Location and Zone seen so far. Repeated lookups by
// the same ID always return the same instance, so partial data from
// different pages merges instead of forking.
type Session struct {
	email    string
	password string

	client  *http.Client
	baseURL string

	defaultLocationID int
	locations         map[int]*Location
	zones             map[int]*Zone
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithCookieJar supplies an external cookie store (e.g. a FileJar), letting
// portal logins persist between runs. Ignored if WithHTTPClient is also used.
func WithCookieJar(jar http.CookieJar) Option {
	return func(s *Session) {
		if s.client != nil {
			s.client.Jar = jar
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.client = c }
}

// WithBaseURL points the session at a different portal origin.
func WithBaseURL(u string) Option {
	return func(s *Session) { s.baseURL = strings.TrimSuffix(u, "/") }
}

// NewSession validates the credentials' shape and prepares a session. No
// network activity happens here; the first portal call performs the login.
func NewSession(email, password string, opts ...Option) (*Session, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, &ValidationError{Field: "email", Reason: "a valid login email address is required"}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("error creating cookie jar: %w", err)
	}

	s := &Session{
		email:     email,
		password:  password,
		baseURL:   defaultBaseURL,
		client:    &http.Client{Jar: jar, Timeout: 45 * time.Second},
		locations: map[int]*Location{},
		zones:     map[int]*Zone{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DefaultLocationID returns the location the portal redirected to at login,
// or the first location listed, whichever was seen last. Zero if neither has
// happened yet.
func (s *Session) DefaultLocationID() int {
	return s.defaultLocationID
}

type requestOptions struct {
	form    url.Values
	json    any
	headers map[string]string
}

// portalResponse is what the transport hands back: final status, body, and
// the effective URL after redirects.
type portalResponse struct {
	status       int
	body         []byte
	effectiveURL *url.URL
}

// do issues a single HTTP call with no authentication handling.
func (s *Session) do(method, path string, opt requestOptions) (*portalResponse, error) {
	var body io.Reader
	contentType := ""
	switch {
	case opt.form != nil:
		body = strings.NewReader(opt.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case opt.json != nil:
		b, err := json.Marshal(opt.json)
		if err != nil {
			return nil, fmt.Errorf("error marshaling json: %v", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json; charset=UTF-8"
	}

	req, err := http.NewRequest(method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("error building request for %s: %v", path, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range opt.headers {
		req.Header.Set(k, v)
	}

	glog.V(2).Infof("%s %s", method, path)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error on %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading body of %s: %w", path, err)
	}

	glog.V(2).Infof("%s %s -> %d (%d bytes)", method, path, resp.StatusCode, len(b))

	return &portalResponse{
		status:       resp.StatusCode,
		body:         b,
		effectiveURL: resp.Request.URL,
	}, nil
}

// request issues the call and guarantees the caller was authenticated by the
// time the final response came back. A response that turns out to be the
// portal's login page triggers the login exchange and a re-issue of the
// original call, at most loginAttempts times.
func (s *Session) request(method, path string, opt requestOptions) (*portalResponse, error) {
	resp, err := s.do(method, path, opt)
	if err != nil {
		return nil, err
	}
	if !bytes.Contains(resp.body, []byte(loginPageMarker)) {
		return resp, nil
	}

	glog.V(1).Infof("session is not authenticated; logging in for %s %s", method, path)

	var terminal error
	lastStatus := resp.status
	err = retry.Do(
		func() error {
			if lerr := s.login(); lerr != nil {
				terminal = lerr
				return retry.Unrecoverable(lerr)
			}
			r, derr := s.do(method, path, opt)
			if derr != nil {
				terminal = derr
				return retry.Unrecoverable(derr)
			}
			if bytes.Contains(r.body, []byte(loginPageMarker)) {
				lastStatus = r.status
				return fmt.Errorf("portal still served the login page")
			}
			resp = r
			return nil
		},
		retry.Attempts(loginAttempts),
		retry.Delay(250*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if terminal != nil {
			return nil, terminal
		}
		return nil, &AuthError{Reason: "could not log in", StatusCode: lastStatus}
	}
	return resp, nil
}

// login submits the credential form. timeOffset is deliberately zero so the
// server keeps all times in UTC. A successful login redirects to the default
// location's page; the numeric component of that effective URL seeds the
// default location ID.
func (s *Session) login() error {
	resp, err := s.do(http.MethodPost, loginPath, requestOptions{
		form: url.Values{
			"timeOffset": {"0"},
			"UserName":   {s.email},
			"Password":   {s.password},
			"RememberMe": {"false"},
		},
		headers: map[string]string{
			"Origin":                    s.baseURL + "/",
			"Referer":                   s.baseURL + loginPath,
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Cache-Control":             "no-cache",
			"Upgrade-Insecure-Requests": "1",
			"DNT":                       "1",
		},
	})
	if err != nil {
		return err
	}

	if bytes.Contains(resp.body, []byte(tooManyAttemptsMarker)) {
		return &AuthError{Reason: "too many login attempts", StatusCode: resp.status}
	}
	if bytes.Contains(resp.body, []byte(loginFailedMarker)) {
		return &AuthError{Reason: "login was not accepted", StatusCode: resp.status}
	}

	if m := effectiveLocationPattern.FindStringSubmatch(resp.effectiveURL.Path); m != nil {
		if id, aerr := strconv.Atoi(m[1]); aerr == nil {
			s.defaultLocationID = id
		}
	}
	return nil
}

// GetLocations returns the locations visible to this user. With reload, or
// on first use, it fetches the listing and scrapes the paired ID and name
// sequences; a pairing mismatch fails before anything is cached.
func (s *Session) GetLocations(reload bool) (map[int]*Location, error) {
	if !reload && len(s.locations) > 0 {
		return s.locations, nil
	}

	resp, err := s.request(http.MethodGet, locationsPath, requestOptions{})
	if err != nil {
		return nil, err
	}

	ids := locationIDPattern.FindAllSubmatch(resp.body, -1)
	names := locationNamePattern.FindAllSubmatch(resp.body, -1)
	if len(ids) != len(names) {
		return nil, &ParseError{Reason: fmt.Sprintf("locations listing has %d ids but %d names", len(ids), len(names))}
	}
	if len(ids) == 0 {
		return nil, &NotFoundError{What: "locations (they must be created through the web interface)"}
	}

	for i, m := range ids {
		id, aerr := strconv.Atoi(string(m[1]))
		if aerr != nil {
			return nil, &ParseError{Reason: "non-numeric location id " + string(m[1])}
		}
		s.getLocation(id, strings.TrimSpace(string(names[i][1])))
		if i == 0 {
			s.defaultLocationID = id
		}
	}
	return s.locations, nil
}

// GetLocation returns the one Location instance for id within this session,
// creating an empty entry on first reference.
func (s *Session) GetLocation(id int) *Location {
	return s.getLocation(id, "")
}

// DefaultLocation resolves the session's default location, fetching the
// listing first if no default is known yet.
func (s *Session) DefaultLocation() (*Location, error) {
	if s.defaultLocationID == 0 {
		if _, err := s.GetLocations(false); err != nil {
			return nil, err
		}
	}
	return s.GetLocation(s.defaultLocationID), nil
}

func (s *Session) getLocation(id int, name string) *Location {
	l, ok := s.locations[id]
	if !ok {
		l = &Location{session: s, id: id}
		s.locations[id] = l
	}
	if name != "" {
		l.name = name
	}
	return l
}

// GetZone returns the one Zone instance for id within this session, creating
// an unloaded entry on first reference.
func (s *Session) GetZone(id int) *Zone {
	z, ok := s.zones[id]
	if !ok {
		z = newZone(s, id)
		s.zones[id] = z
	}
	return z
}

// mergeZone folds a scraped listing row into the zone registry. An existing
// instance absorbs the row; identity is never duplicated.
func (s *Session) mergeZone(row zoneListing) *Zone {
	z := s.GetZone(row.id)
	z.applyListing(row)
	return z
}

// GetZonesByLocation returns the zones of one location. The location may be
// given as an int ID, a *Location, or nil for the session default. Without
// reload no network call happens: only zones already discovered by this
// session are returned.
func (s *Session) GetZonesByLocation(location any, reload bool) ([]*Zone, error) {
	var id int
	switch v := location.(type) {
	case nil:
		id = s.defaultLocationID
	case int:
		id = v
	case *Location:
		id = v.ID()
	default:
		return nil, fmt.Errorf("location must be an id or a *Location, got %T", location)
	}

	if reload {
		return s.loadZonesInLocation(id)
	}

	var zones []*Zone
	for _, z := range s.zones {
		if z.locationID == id {
			zones = append(zones, z)
		}
	}
	return zones, nil
}

// loadZonesInLocation fetches the location's first listing page, then every
// additional page that page advertises. Pages are not discovered
// recursively beyond what each fetched page links to.
func (s *Session) loadZonesInLocation(locationID int) ([]*Zone, error) {
	resp, err := s.request(http.MethodGet, fmt.Sprintf("/portal/%d/Zones", locationID), requestOptions{})
	if err != nil {
		return nil, err
	}

	var zones []*Zone
	seen := map[int]bool{}
	merge := func(rows []zoneListing) {
		for _, row := range rows {
			z := s.mergeZone(row)
			if !seen[row.id] {
				seen[row.id] = true
				zones = append(zones, z)
			}
		}
	}

	body := string(resp.body)
	merge(scrapeZoneRows(body, 1, locationID))

	for _, link := range pageLinkPattern.FindAllStringSubmatch(body, -1) {
		page, aerr := strconv.Atoi(link[2])
		if aerr != nil {
			continue
		}
		r, rerr := s.request(http.MethodGet, link[1], requestOptions{})
		if rerr != nil {
			return nil, rerr
		}
		merge(scrapeZoneRows(string(r.body), page, locationID))
	}
	return zones, nil
}

// Close flushes every zone that still has unconfirmed local changes. It is
// the explicit replacement for trusting garbage collection to push writes;
// flush failures are logged and reported, never panicked.
func (s *Session) Close() error {
	failed := 0
	for id, z := range s.zones {
		if !z.Dirty() {
			continue
		}
		if !z.SubmitChanges() {
			glog.Errorf("zone %d: could not flush pending changes on close", id)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d zone(s) still have unflushed changes", failed)
	}
	return nil
}
