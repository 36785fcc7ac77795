package tcc

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
)

// FileJar is a cookie jar persisted to a JSON file, so a portal login can
// survive between runs instead of burning a fresh login each time. A missing
// or unreadable file just starts an empty jar.
//
// It stores cookies per host and matches by name; that is all the portal's
// single-domain session cookies need.
type FileJar struct {
	path string

	mu    sync.Mutex
	hosts map[string][]storedCookie
}

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// NewFileJar opens (or initializes) a cookie jar backed by the given file.
func NewFileJar(path string) *FileJar {
	j := &FileJar{path: path, hosts: map[string][]storedCookie{}}

	b, err := os.ReadFile(path)
	if err != nil {
		// no file, or unreadable: start empty
		return j
	}
	if err = json.Unmarshal(b, &j.hosts); err != nil {
		// corrupted: start empty
		j.hosts = map[string][]storedCookie{}
	}
	return j
}

// SetCookies merges the response cookies into the jar and saves it.
func (j *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	stored := j.hosts[u.Host]
	for _, c := range cookies {
		sc := storedCookie{Name: c.Name, Value: c.Value, Path: c.Path, Expires: c.Expires}
		replaced := false
		for i := range stored {
			if stored[i].Name == c.Name {
				stored[i] = sc
				replaced = true
				break
			}
		}
		if !replaced {
			stored = append(stored, sc)
		}
	}
	j.hosts[u.Host] = stored
	j.save()
}

// Cookies returns the unexpired cookies stored for the URL's host.
func (j *FileJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []*http.Cookie
	now := time.Now()
	for _, sc := range j.hosts[u.Host] {
		if !sc.Expires.IsZero() && sc.Expires.Before(now) {
			continue
		}
		out = append(out, &http.Cookie{Name: sc.Name, Value: sc.Value, Path: sc.Path})
	}
	return out
}

// Cookie returns the stored cookie with the given name for host, if any.
func (j *FileJar) Cookie(host, name string) (*http.Cookie, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, sc := range j.hosts[host] {
		if sc.Name == name {
			return &http.Cookie{Name: sc.Name, Value: sc.Value, Path: sc.Path}, true
		}
	}
	return nil, false
}

func (j *FileJar) save() {
	b, err := json.Marshal(j.hosts)
	if err != nil {
		return
	}
	if err = os.WriteFile(j.path, b, 0600); err != nil {
		glog.Errorf("could not save cookie jar to %s: %v", j.path, err)
	}
}
