// Package config parses endpoint URLs and loads the db_key -> Endpoint
// mapping file that tells the driver how to reach each physical database
// (spec.md §6).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when no mapping file is found while
// walking up from the starting directory.
var ErrConfigNotFound = errors.New("config: no configuration file found")

// ErrUnknownDBKey is returned by For when the mapping has no entry for a
// requested key and the caller has not set AllowMissing.
var ErrUnknownDBKey = errors.New("config: unknown db_key")

// ErrUnsupportedScheme is returned by ParseURL for a scheme other than
// neo4j/memgraph, with or without the +ssl/+ssc suffix.
var ErrUnsupportedScheme = errors.New("config: unsupported URL scheme")

// Endpoint is everything needed to dial and authenticate against one
// physical database, whether parsed from a driver URL or loaded from a
// db_key mapping file entry.
type Endpoint struct {
	Adapter    string // "neo4j" or "memgraph"
	Host       string
	Port       int
	Username   string
	Password   string
	Database   string
	Secure     bool
	VerifyCert bool
	Options    map[string]string
}

// ParseURL parses a driver URL of the form
// <scheme>://[user[:password]@]host[:port][/db][?opt=v&...].
// Scheme must be "neo4j" or "memgraph", optionally suffixed "+ssl"
// (TLS, verify certificate) or "+ssc" (TLS, self-signed allowed, no
// verification); a bare scheme is plaintext with verify_cert defaulted
// true for parity with the suffixed forms (spec.md §6 example 5).
func ParseURL(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("config: parsing URL: %w", err)
	}

	adapter, secure, verifyCert, err := splitScheme(u.Scheme)
	if err != nil {
		return Endpoint{}, err
	}

	ep := Endpoint{
		Adapter:    adapter,
		Host:       u.Hostname(),
		Secure:     secure,
		VerifyCert: verifyCert,
		Options:    map[string]string{},
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Endpoint{}, fmt.Errorf("config: invalid port %q: %w", portStr, err)
		}
		ep.Port = port
	} else {
		ep.Port = defaultPort
	}

	if u.User != nil {
		ep.Username = u.User.Username()
		ep.Password, _ = u.User.Password()
	}

	ep.Database = strings.TrimPrefix(u.Path, "/")

	for k, vs := range u.Query() {
		if len(vs) > 0 {
			ep.Options[k] = vs[0]
		}
	}

	return ep, nil
}

const defaultPort = 7687

func splitScheme(scheme string) (adapter string, secure, verifyCert bool, err error) {
	base, suffix, hasSuffix := strings.Cut(scheme, "+")
	switch base {
	case "neo4j", "memgraph":
		adapter = base
	default:
		return "", false, false, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}

	if !hasSuffix {
		return adapter, false, true, nil
	}
	switch suffix {
	case "ssl":
		return adapter, true, true, nil
	case "ssc":
		return adapter, true, false, nil
	default:
		return "", false, false, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// fileEndpoint mirrors one db_key entry in the mapping file's YAML shape.
type fileEndpoint struct {
	Adapter  string            `yaml:"adapter"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Database string            `yaml:"database"`
	SSL      bool              `yaml:"ssl,omitempty"`
	SSC      bool              `yaml:"ssc,omitempty"`
	Options  map[string]string `yaml:"options,omitempty"`
}

func (f fileEndpoint) toEndpoint() Endpoint {
	ep := Endpoint{
		Adapter:  f.Adapter,
		Host:     f.Host,
		Port:     f.Port,
		Username: f.Username,
		Password: f.Password,
		Database: f.Database,
		Options:  f.Options,
	}
	if ep.Port == 0 {
		ep.Port = defaultPort
	}
	switch {
	case f.SSC:
		ep.Secure, ep.VerifyCert = true, false
	case f.SSL:
		ep.Secure, ep.VerifyCert = true, true
	default:
		ep.Secure, ep.VerifyCert = false, true
	}
	return ep
}

// Mapping is a loaded db_key -> Endpoint configuration file.
type Mapping struct {
	// AllowMissing makes For return a zero Endpoint and no error for an
	// unknown key instead of ErrUnknownDBKey.
	AllowMissing bool

	entries map[string]Endpoint
}

// DefaultMappingNames are the filenames searched for by FindMapping.
var DefaultMappingNames = []string{".cymb.yaml", ".cymb.yml", "cymb.yaml", "cymb.yml"}

// FindMapping searches for a mapping file starting from dir and walking
// up to the filesystem root.
func FindMapping(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("config: resolving %q: %w", dir, err)
	}

	for d := absDir; ; {
		for _, name := range DefaultMappingNames {
			path := filepath.Join(d, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
		parent := filepath.Dir(d)
		if parent == d {
			return "", ErrConfigNotFound
		}
		d = parent
	}
}

// LoadMapping finds and loads the nearest mapping file walking up from
// dir. A missing file is not an error: it yields an empty Mapping, so
// that For("*") returns an empty set per spec.md §6.
func LoadMapping(dir string) (*Mapping, error) {
	path, err := FindMapping(dir)
	if errors.Is(err, ErrConfigNotFound) {
		return &Mapping{entries: map[string]Endpoint{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return LoadMappingFile(path)
}

// LoadMappingFile loads a mapping from a specific path.
func LoadMappingFile(path string) (*Mapping, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}

	var raw map[string]fileEndpoint
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}

	entries := make(map[string]Endpoint, len(raw))
	for key, fe := range raw {
		entries[key] = fe.toEndpoint()
	}
	return &Mapping{entries: entries}, nil
}

// For returns the Endpoint registered under key. The wildcard key "*"
// always succeeds, returning a zero Endpoint when the mapping has no
// entry for it (an empty mapping, per spec.md §6). Any other unknown key
// fails loudly with ErrUnknownDBKey unless AllowMissing is set.
func (m *Mapping) For(key string) (Endpoint, error) {
	if ep, ok := m.entries[key]; ok {
		return ep, nil
	}
	if key == "*" || m.AllowMissing {
		return Endpoint{}, nil
	}
	return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownDBKey, key)
}

// Keys returns the registered db_keys, for introspection (e.g. the
// cymb-console TUI's endpoint list).
func (m *Mapping) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}
