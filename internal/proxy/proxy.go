// Package proxy turns the user's proxy preference into the egress
// configuration used by the downloader.
package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/blackwell-systems/reposync/internal/prefs"
)

// Kind is the transport-level proxy type.
type Kind int

const (
	KindNone Kind = iota
	KindHTTP
	KindSOCKS
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindSOCKS:
		return "socks"
	default:
		return "direct"
	}
}

// Config is a proxy endpoint. Host is kept as given and never resolved
// here; the zero value is NoProxy.
type Config struct {
	Kind Kind
	Host string
	Port int
}

// NoProxy routes connections directly.
var NoProxy = Config{}

// IsDirect reports whether c routes connections directly.
func (c Config) IsDirect() bool {
	return c.Kind == KindNone
}

// Address returns host:port, or "" for NoProxy.
func (c Config) Address() string {
	if c.IsDirect() {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) String() string {
	if c.IsDirect() {
		return "direct"
	}
	return c.Kind.String() + "://" + c.Address()
}

var (
	errEmptyHost   = errors.New("proxy host is empty")
	errPortRange   = errors.New("proxy port out of range")
	errUnknownKind = errors.New("unknown proxy type")
)

// Resolve builds the Config for pref. ProxyDirect always yields NoProxy.
func Resolve(pref prefs.ProxyPreference) (Config, error) {
	var kind Kind
	switch pref.Type {
	case prefs.ProxyDirect:
		return NoProxy, nil
	case prefs.ProxyHTTP:
		kind = KindHTTP
	case prefs.ProxySOCKS:
		kind = KindSOCKS
	default:
		return NoProxy, fmt.Errorf("%w: %d", errUnknownKind, int(pref.Type))
	}

	if pref.Host == "" {
		return NoProxy, errEmptyHost
	}
	if pref.Port < 0 || pref.Port > 65535 {
		return NoProxy, fmt.Errorf("%w: %d", errPortRange, pref.Port)
	}
	return Config{Kind: kind, Host: pref.Host, Port: pref.Port}, nil
}

// Slot holds the proxy used by the download subsystem.
type Slot interface {
	SetProxy(cfg Config)
}

// Controller publishes proxy preferences to a Slot.
type Controller struct {
	slot   Slot
	logger *slog.Logger
}

// NewController creates a Controller writing to slot.
func NewController(slot Slot, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{slot: slot, logger: logger}
}

// Apply resolves pref and stores the result in the slot. A preference that
// cannot be turned into a Config falls back to NoProxy.
func (c *Controller) Apply(pref prefs.ProxyPreference) Config {
	cfg, err := Resolve(pref)
	if err != nil {
		c.logger.Warn("invalid proxy preference, connecting directly",
			"type", pref.Type.String(),
			"host", pref.Host,
			"port", pref.Port,
			"error", err)
		cfg = NoProxy
	}
	c.slot.SetProxy(cfg)
	c.logger.Info("proxy applied", "proxy", cfg.String())
	return cfg
}
