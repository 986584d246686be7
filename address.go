package redisconn

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Transport selects the wire transport for a connection.
type Transport string

const (
	// TransportTCP is a plain TCP socket connection (redis:// scheme).
	TransportTCP Transport = "tcp"

	// TransportTLS is a TLS wrapped TCP socket connection (rediss:// scheme).
	TransportTLS Transport = "tcp-tls"

	// TransportUnix is a Unix domain socket connection (unix:// scheme).
	TransportUnix Transport = "unix-socket"
)

// DefaultPort is used when a TCP address does not name a port.
const DefaultPort = 6379

// ConnectionParams is the canonical set of connection parameters produced
// by address parsing. Exactly one of Host/Port or UnixSocketPath is
// populated, determined by Transport.
type ConnectionParams struct {
	Transport      Transport
	Host           string
	Port           int
	UnixSocketPath string
	Password       string
	Database       int

	// Options is pass-through configuration for the driver (encoding
	// overrides and the like), with deprecated aliases already normalized.
	Options map[string]string
}

// Servers splits an address specification into individual server addresses.
// A string is split on commas; a slice of strings is taken as-is. Anything
// else fails with ErrInvalidAddressSpec.
func Servers(location any) ([]string, error) {
	switch v := location.(type) {
	case string:
		return strings.Split(v, ","), nil
	case []string:
		return append([]string(nil), v...), nil
	default:
		return nil, fmt.Errorf("%w, got %T", ErrInvalidAddressSpec, location)
	}
}

// ParseAddress resolves a single address specification into connection
// parameters.
//
// Three URL schemes are supported:
//
//	redis://[:password@]host[:port][/db][?options]
//	rediss://[:password@]host[:port][/db][?options]
//	unix://[:password@]/path/to/socket.sock[?options]
//
// The database number is resolved from the first of: a db query parameter,
// a numeric path segment (redis/rediss only), the configured default. A
// non-numeric path segment is ignored, never an error.
//
// An address without a scheme is either host:port (the port must be an
// integer) or, with no colon, a bare Unix socket path.
//
// Query options are merged over caller-supplied options; on conflict the
// query value wins. When one query key is given several values, the first
// wins. The deprecated charset and errors options are renamed to encoding
// and encoding-errors, each emitting one warning through the parse logger.
func ParseAddress(addr string, opts ...ParseOption) (ConnectionParams, error) {
	cfg := DefaultParseConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if strings.Contains(addr, "://") {
		return parseURLAddress(addr, cfg)
	}
	return parsePlainAddress(addr, cfg)
}

// ParseAddresses resolves a list of address specifications, one
// ConnectionParams per address, for fan-out to multiple servers.
func ParseAddresses(addrs []string, opts ...ParseOption) ([]ConnectionParams, error) {
	out := make([]ConnectionParams, 0, len(addrs))
	for _, addr := range addrs {
		params, err := ParseAddress(addr, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, params)
	}
	return out, nil
}

func parseURLAddress(addr string, cfg *ParseConfig) (ConnectionParams, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return ConnectionParams{}, fmt.Errorf("parse address %q: %w", addr, err)
	}

	// First value wins when a key is repeated; later values are discarded.
	urlOptions := make(map[string]string)
	for name, values := range u.Query() {
		if len(values) > 0 {
			urlOptions[name] = values[0]
		}
	}

	options := mergeOptions(cfg.Options, urlOptions)
	normalizeAliases(options, cfg.Logger)

	params := ConnectionParams{Options: options}

	switch u.Scheme {
	case "redis", "rediss":
		params.Transport = TransportTCP
		if u.Scheme == "rediss" {
			params.Transport = TransportTLS
		}
		params.Host = u.Hostname()
		params.Port = DefaultPort
		if p := u.Port(); p != "" {
			n, perr := strconv.Atoi(p)
			if perr != nil {
				return ConnectionParams{}, &InvalidPortError{Port: p, Addr: addr}
			}
			params.Port = n
		}
	case "unix":
		params.Transport = TransportUnix
		params.UnixSocketPath = u.Path
	default:
		return ConnectionParams{}, &UnsupportedSchemeError{Scheme: u.Scheme, Addr: addr}
	}

	if pw, ok := userinfoPassword(u); ok {
		params.Password = pw
	} else if qp, ok := options["password"]; ok {
		params.Password = qp
	}
	delete(options, "password")

	params.Database = resolveDatabase(options, u.Path, params.Transport, cfg.DefaultDatabase)

	return params, nil
}

func parsePlainAddress(addr string, cfg *ParseConfig) (ConnectionParams, error) {
	options := mergeOptions(cfg.Options, nil)
	normalizeAliases(options, cfg.Logger)

	params := ConnectionParams{Options: options}
	if pw, ok := options["password"]; ok {
		params.Password = pw
	}
	delete(options, "password")
	delete(options, "db")
	params.Database = clampDatabase(cfg.DefaultDatabase)

	if i := strings.LastIndex(addr, ":"); i >= 0 {
		host, portStr := addr[:i], addr[i+1:]
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return ConnectionParams{}, &InvalidPortError{Port: portStr, Addr: addr}
		}
		params.Transport = TransportTCP
		params.Host = host
		params.Port = port
	} else {
		params.Transport = TransportUnix
		params.UnixSocketPath = addr
	}

	return params, nil
}

// resolveDatabase applies the database precedence rule: db query option,
// then a numeric path segment (TCP transports only), then the default.
// The db key is consumed either way; it never reaches the driver options.
func resolveDatabase(options map[string]string, urlPath string, transport Transport, def int) int {
	if raw, ok := options["db"]; ok {
		delete(options, "db")
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			return n
		}
	}

	if transport != TransportUnix {
		if seg := strings.ReplaceAll(urlPath, "/", ""); seg != "" {
			if n, err := strconv.Atoi(seg); err == nil && n >= 0 {
				return n
			}
		}
	}

	return clampDatabase(def)
}

func clampDatabase(db int) int {
	if db < 0 {
		return 0
	}
	return db
}

// normalizeAliases renames deprecated option keys to their current names,
// warning once per alias used. The alias value replaces any value already
// present under the canonical key.
func normalizeAliases(options map[string]string, logger *slog.Logger) {
	if v, ok := options["charset"]; ok {
		delete(options, "charset")
		options["encoding"] = v
		logger.Warn("deprecated option used",
			"option", "charset",
			"replacement", "encoding")
	}
	if v, ok := options["errors"]; ok {
		delete(options, "errors")
		options["encoding-errors"] = v
		logger.Warn("deprecated option used",
			"option", "errors",
			"replacement", "encoding-errors")
	}
}

func mergeOptions(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

func userinfoPassword(u *url.URL) (string, bool) {
	if u.User == nil {
		return "", false
	}
	return u.User.Password()
}

// Endpoint returns the dialable endpoint for the parameters: host:port for
// TCP transports, the socket path for Unix.
func (p ConnectionParams) Endpoint() string {
	if p.Transport == TransportUnix {
		return p.UnixSocketPath
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// ConnectionIdentifier derives the deterministic identifier a pool is
// registered under, from the combined connection and pool parameters. Equal
// parameter sets always yield equal identifiers, so proxies pointing at the
// same target share one pool.
func ConnectionIdentifier(params ConnectionParams, poolParams PoolParams) string {
	var b strings.Builder
	b.WriteString(string(params.Transport))
	b.WriteString("://")
	b.WriteString(params.Endpoint())
	fmt.Fprintf(&b, "/%d", params.Database)
	if params.Password != "" {
		fmt.Fprintf(&b, "#auth=%s", params.Password)
	}

	merged := mergeOptions(params.Options, poolParams)
	if len(merged) == 0 {
		return b.String()
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sep := "?"
	for _, k := range keys {
		fmt.Fprintf(&b, "%s%s=%s", sep, k, merged[k])
		sep = "&"
	}
	return b.String()
}
