package transport

import "errors"

var (
	// ErrInvalidProxyAddress is returned for a proxy address that is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrNoProxy is returned by CheckConnection on a direct client.
	ErrNoProxy = errors.New("client is not configured with a proxy")

	// ErrProxyNotSOCKS5 is returned when the proxy does not speak SOCKS5.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when the proxy is unreachable.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")

	// ErrTorNotRunning is returned when a client is requested from a stopped daemon.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)

// ProxyStatus is the outcome of CheckConnection.
type ProxyStatus int

const (
	// ProxyStatusOK means the proxy completed a SOCKS5 greeting.
	ProxyStatusOK ProxyStatus = iota
	// ProxyStatusWrongType means something answered that is not SOCKS5.
	ProxyStatusWrongType
	// ProxyStatusCannotConnect means the TCP connection failed.
	ProxyStatusCannotConnect
	// ProxyStatusTimeout means the proxy did not answer in time.
	ProxyStatusTimeout
)

func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Err converts the status into the matching sentinel error, nil for OK.
func (s ProxyStatus) Err() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotSOCKS5
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
