package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownProfile is returned by Resolve when no profile has the given name.
var ErrUnknownProfile = errors.New("unknown store profile")

// Profile describes one store connection. Collection names the table that
// holds ingested documents.
type Profile struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	AuthSource string `yaml:"authSource"`
	Collection string `yaml:"collection"`
	SSLMode    string `yaml:"sslmode"`
}

// Profiles is the parsed profiles file.
type Profiles struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadProfiles reads and validates the YAML profiles file at path.
func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes a profiles document.
func ParseProfiles(data []byte) (*Profiles, error) {
	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(p.Profiles) == 0 {
		return nil, errors.New("parse profiles: no profiles defined")
	}

	var errs []string
	for _, name := range p.Names() {
		prof := p.Profiles[name]
		if prof.Host == "" {
			errs = append(errs, fmt.Sprintf("%s: host is required", name))
		}
		if prof.Port < 0 || prof.Port > 65535 {
			errs = append(errs, fmt.Sprintf("%s: port (%d) must be 1-65535", name, prof.Port))
		}
		if prof.AuthSource == "" {
			errs = append(errs, fmt.Sprintf("%s: authSource is required", name))
		}
		if prof.Collection == "" {
			errs = append(errs, fmt.Sprintf("%s: collection is required", name))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("parse profiles:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return &p, nil
}

// Names returns the profile names in sorted order.
func (p *Profiles) Names() []string {
	names := make([]string, 0, len(p.Profiles))
	for name := range p.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the named profile.
func (p *Profiles) Resolve(name string) (Profile, error) {
	prof, ok := p.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return prof, nil
}

// ConnString builds a postgres connection URL. AuthSource is the database.
func (p Profile) ConnString() string {
	port := p.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(port)),
		Path:   "/" + p.AuthSource,
	}
	if p.Username != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.Username, p.Password)
		} else {
			u.User = url.User(p.Username)
		}
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{p.SSLMode}}.Encode()
	}
	return u.String()
}

// String masks the password so profiles can be logged.
func (p Profile) String() string {
	pw := ""
	if p.Password != "" {
		pw = "****"
	}
	return fmt.Sprintf("Profile{User: %q, Password: %q, Host: %q, Port: %d, DB: %q, Collection: %q}",
		p.Username, pw, p.Host, p.Port, p.AuthSource, p.Collection)
}
