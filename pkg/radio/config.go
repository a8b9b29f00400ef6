package radio

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DefaultPort is appended to bare host addresses.
const DefaultPort = "3000"

// ConnectionConfig identifies the device to talk to. It is an immutable value
// supplied by the caller; replacing it invalidates every piece of derived state.
type ConnectionConfig struct {
	Address    string // Host, host:port, or full http(s) URL.
	Credential string //nolint:gosec // API key supplied by the user, not a hardcoded secret.
}

// BaseURL returns the normalized base URL without a trailing slash. A bare
// host gets the http scheme and DefaultPort.
func (c ConnectionConfig) BaseURL() (string, error) {
	addr := strings.TrimSpace(c.Address)
	if addr == "" {
		return "", errors.New("radio: address is required")
	}

	if !strings.Contains(addr, "://") {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(strings.Trim(addr, "[]"), DefaultPort)
		}
		addr = "http://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("radio: parse address %q: %w", c.Address, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("radio: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("radio: address %q has no host", c.Address)
	}

	return strings.TrimRight(u.String(), "/"), nil
}

// Validate reports whether the config can produce a base URL.
func (c ConnectionConfig) Validate() error {
	_, err := c.BaseURL()
	return err
}

// String returns the address only, so configs can be logged without leaking
// the credential.
func (c ConnectionConfig) String() string { return c.Address }
