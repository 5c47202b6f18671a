package transport

import (
	"strings"

	"github.com/docker/docker/opts"
	httperrors "github.com/nczempin/enginestream/errors"
)

const (
	DefaultUnixSocket = "/var/run/docker.sock"
	DefaultNamedPipe  = "//./pipe/docker_engine"

	defaultTLSHost = "tcp://localhost:2376"
)

// ParseHost turns a daemon address such as "unix:///var/run/docker.sock",
// "npipe:////./pipe/docker_engine", "tcp://10.0.0.5:2375" or
// "https://engine:2376" into a Descriptor. Missing hosts and ports are
// filled in the way the engine CLI does.
func ParseHost(host string) (Descriptor, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(host), "://")
	if !ok {
		return Descriptor{}, httperrors.NewInvalidArgumentError("host " + host + " has no scheme")
	}

	var (
		normalized string
		err        error
	)
	switch scheme = strings.ToLower(scheme); scheme {
	case "https":
		normalized, err = opts.ParseTCPAddr("tcp://"+rest, defaultTLSHost)
	case "http":
		normalized, err = opts.ParseHost(false, false, "tcp://"+rest)
	default:
		normalized, err = opts.ParseHost(false, false, scheme+"://"+rest)
	}
	if err != nil {
		return Descriptor{}, &httperrors.HttpError{
			Type:          httperrors.ErrorInvalidArgument,
			Message:       "invalid host " + host,
			UnderlyingErr: err,
		}
	}

	proto, addr, _ := strings.Cut(normalized, "://")
	switch proto {
	case "unix":
		return Descriptor{Kind: KindUnix, Address: addr}, nil
	case "npipe":
		return Descriptor{Kind: KindNamedPipe, Address: addr}, nil
	case "tcp":
		// anything after the authority is a base path the engine does not use
		if i := strings.IndexByte(addr, '/'); i >= 0 {
			addr = addr[:i]
		}
		if scheme == "https" {
			return Descriptor{Kind: KindTLS, Address: addr}, nil
		}
		return Descriptor{Kind: KindTCP, Address: addr}, nil
	default:
		return Descriptor{}, httperrors.NewInvalidArgumentError("unsupported host scheme " + scheme)
	}
}

// pipePath converts the slash form used in host URLs to a Win32 pipe name.
func pipePath(address string) string {
	return strings.ReplaceAll(address, "/", `\`)
}
