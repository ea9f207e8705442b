package proxy

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Endpoint is an outbound proxy. The zero value means a direct connection.
type Endpoint struct {
	Scheme   string
	Host     string
	Port     int
	Username string
	Password string
}

// Direct is the no-proxy sentinel.
var Direct = Endpoint{}

func (e Endpoint) IsDirect() bool {
	return e.Host == ""
}

func (e Endpoint) HasCredentials() bool {
	return e.Username != ""
}

// Server renders scheme://host:port without credentials, the form browser
// launchers expect.
func (e Endpoint) Server() string {
	if e.IsDirect() {
		return ""
	}
	return fmt.Sprintf("%s://%s", e.Scheme, net.JoinHostPort(e.Host, strconv.Itoa(e.Port)))
}

// URL renders the endpoint including credentials, for HTTP clients.
func (e Endpoint) URL() *url.URL {
	if e.IsDirect() {
		return nil
	}
	u := &url.URL{
		Scheme: e.Scheme,
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
	}
	if e.Username != "" {
		u.User = url.UserPassword(e.Username, e.Password)
	}
	return u
}

// String never includes the password, so endpoints are safe to log.
func (e Endpoint) String() string {
	if e.IsDirect() {
		return "direct"
	}
	if e.Username != "" {
		return fmt.Sprintf("%s://%s@%s", e.Scheme, e.Username, net.JoinHostPort(e.Host, strconv.Itoa(e.Port)))
	}
	return e.Server()
}

var supportedSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"socks5": true,
}

// Parse accepts scheme://[user:pass@]host:port with scheme http, https or
// socks5, a bare host:port (http assumed) or the literal "direct".
func Parse(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("empty proxy address")
	}
	if strings.EqualFold(raw, "direct") {
		return Direct, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid proxy %q: %w", raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if !supportedSchemes[scheme] {
		return Endpoint{}, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Endpoint{}, fmt.Errorf("proxy %q has no host", raw)
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("proxy %q has invalid port %q", raw, u.Port())
	}

	e := Endpoint{Scheme: scheme, Host: host, Port: port}
	if u.User != nil {
		e.Username = u.User.Username()
		e.Password, _ = u.User.Password()
	}
	return e, nil
}

// ParseList parses one proxy per line, skipping blank lines and # comments.
func ParseList(lines []string) ([]Endpoint, error) {
	var pool []Endpoint
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		pool = append(pool, e)
	}
	return pool, nil
}

func Read(r io.Reader) ([]Endpoint, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy list: %w", err)
	}
	return ParseList(lines)
}

func LoadFile(path string) ([]Endpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open proxy file: %w", err)
	}
	defer f.Close()

	return Read(f)
}
