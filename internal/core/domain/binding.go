package domain

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultPort          = 4000
	DefaultHostInterface = "0.0.0.0"
)

// ServerBinding is the interface and port the content server listens on.
// HostPort is where the port is published on the host; zero means Port.
type ServerBinding struct {
	Port          int    `json:"port"`
	HostInterface string `json:"host_interface"`
	HostPort      int    `json:"host_port"`
}

// DefaultBinding returns the binding every preview uses unless configured.
func DefaultBinding() ServerBinding {
	return ServerBinding{Port: DefaultPort, HostInterface: DefaultHostInterface, HostPort: DefaultPort}
}

// PublishedPort returns the host port the binding is published on.
func (b ServerBinding) PublishedPort() int {
	if b.HostPort == 0 {
		return b.Port
	}
	return b.HostPort
}

// Address is the listen address inside the container.
func (b ServerBinding) Address() string {
	return net.JoinHostPort(b.HostInterface, strconv.Itoa(b.Port))
}

// LocalURL is where the published preview answers from the host.
func (b ServerBinding) LocalURL() string {
	host := b.HostInterface
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(b.PublishedPort())) + "/"
}

func (b ServerBinding) Validate() error {
	if b.Port < 1 || b.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidSpec, b.Port)
	}
	if b.HostPort < 0 || b.HostPort > 65535 {
		return fmt.Errorf("%w: host port %d out of range", ErrInvalidSpec, b.HostPort)
	}
	if net.ParseIP(b.HostInterface) == nil {
		return fmt.Errorf("%w: host interface %q is not an IP address", ErrInvalidSpec, b.HostInterface)
	}
	return nil
}

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EnvironmentVariable is passed through to the served process.
type EnvironmentVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParseEnv parses NAME=value pairs, preserving order.
func ParseEnv(pairs []string) ([]EnvironmentVariable, error) {
	out := make([]EnvironmentVariable, 0, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("%w: env %q is not NAME=value", ErrInvalidSpec, p)
		}
		v := EnvironmentVariable{Name: name, Value: value}
		if err := v.Validate(); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e EnvironmentVariable) Validate() error {
	if !envNamePattern.MatchString(e.Name) {
		return fmt.Errorf("%w: invalid env name %q", ErrInvalidSpec, e.Name)
	}
	return nil
}

func (e EnvironmentVariable) String() string {
	return e.Name + "=" + e.Value
}
