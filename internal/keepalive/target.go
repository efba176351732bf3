package keepalive

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

const (
	targetScheme   = "ic"
	targetUsername = "default"
	// DefaultPort is used when the target URI has no port.
	DefaultPort = 9080
)

// ErrInvalidTarget is returned for a target URI that cannot be used.
var ErrInvalidTarget = errors.New("invalid target")

// Target is a resolved heartbeat destination.
type Target struct {
	Host string
	Port int
	Key  string
}

// Addr returns host:port.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ParseTarget resolves a URI of the form ic://default[:key]@host[:port].
// The scheme must be ic and the username must be default; key and port are
// optional.
//
//	ic://default@127.0.0.1:9080
//	ic://default:password@49.15.34.11
func ParseTarget(uri string) (Target, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Target{}, fmt.Errorf("%w: invalid uri: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != targetScheme || u.User == nil || u.User.Username() != targetUsername {
		return Target{}, fmt.Errorf("%w: schema or username is illegal", ErrInvalidTarget)
	}
	host := u.Hostname()
	if host == "" {
		return Target{}, fmt.Errorf("%w: host is required", ErrInvalidTarget)
	}

	port := DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Target{}, fmt.Errorf("%w: invalid port %q", ErrInvalidTarget, p)
		}
	}

	key, _ := u.User.Password()
	return Target{Host: host, Port: port, Key: key}, nil
}
