// Package prefs holds user preferences and the stream they are published on.
package prefs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AutoSyncMode controls when the periodic repository sync may run.
type AutoSyncMode int

const (
	AutoSyncAlways AutoSyncMode = iota
	AutoSyncWifiOnly
	AutoSyncWifiPluggedIn
	AutoSyncNever
)

var autoSyncNames = map[AutoSyncMode]string{
	AutoSyncAlways:        "always",
	AutoSyncWifiOnly:      "wifi_only",
	AutoSyncWifiPluggedIn: "wifi_plugged_in",
	AutoSyncNever:         "never",
}

func (m AutoSyncMode) String() string {
	if s, ok := autoSyncNames[m]; ok {
		return s
	}
	return fmt.Sprintf("AutoSyncMode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m AutoSyncMode) MarshalText() ([]byte, error) {
	s, ok := autoSyncNames[m]
	if !ok {
		return nil, fmt.Errorf("unknown auto sync mode %d", int(m))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *AutoSyncMode) UnmarshalText(text []byte) error {
	want := strings.ToLower(strings.TrimSpace(string(text)))
	for mode, name := range autoSyncNames {
		if name == want {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("unknown auto sync mode %q (want always, wifi_only, wifi_plugged_in or never)", string(text))
}

// ProxyType selects how outgoing connections are routed.
type ProxyType int

const (
	ProxyDirect ProxyType = iota
	ProxyHTTP
	ProxySOCKS
)

var proxyTypeNames = map[ProxyType]string{
	ProxyDirect: "direct",
	ProxyHTTP:   "http",
	ProxySOCKS:  "socks",
}

func (t ProxyType) String() string {
	if s, ok := proxyTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ProxyType(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t ProxyType) MarshalText() ([]byte, error) {
	s, ok := proxyTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown proxy type %d", int(t))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ProxyType) UnmarshalText(text []byte) error {
	want := strings.ToLower(strings.TrimSpace(string(text)))
	for typ, name := range proxyTypeNames {
		if name == want {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("unknown proxy type %q (want direct, http or socks)", string(text))
}

// ProxyPreference is the user's declarative proxy choice. Host and Port are
// ignored for ProxyDirect.
type ProxyPreference struct {
	Type ProxyType
	Host string
	Port int
}

// Preferences is one snapshot of the user's settings.
type Preferences struct {
	UnstableUpdate  bool          `yaml:"unstable_update"`
	AutoSync        AutoSyncMode  `yaml:"auto_sync"`
	CleanUpInterval time.Duration `yaml:"clean_up_interval"`
	ProxyType       ProxyType     `yaml:"proxy_type"`
	ProxyHost       string        `yaml:"proxy_host"`
	ProxyPort       int           `yaml:"proxy_port"`
}

// Defaults returns the preferences used when nothing has been stored.
func Defaults() Preferences {
	return Preferences{
		UnstableUpdate:  false,
		AutoSync:        AutoSyncWifiOnly,
		CleanUpInterval: 12 * time.Hour,
		ProxyType:       ProxyDirect,
		ProxyHost:       "localhost",
		ProxyPort:       9050,
	}
}

// Proxy returns the proxy composite of p.
func (p Preferences) Proxy() ProxyPreference {
	return ProxyPreference{Type: p.ProxyType, Host: p.ProxyHost, Port: p.ProxyPort}
}

// Keys lists the names accepted by Set, in display order.
var Keys = []string{
	"unstable_update",
	"auto_sync",
	"clean_up_interval",
	"proxy_type",
	"proxy_host",
	"proxy_port",
}

// Set parses value and assigns it to the preference named key.
func (p *Preferences) Set(key, value string) error {
	switch key {
	case "unstable_update":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		p.UnstableUpdate = b
	case "auto_sync":
		return p.AutoSync.UnmarshalText([]byte(value))
	case "clean_up_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		p.CleanUpInterval = d
	case "proxy_type":
		return p.ProxyType.UnmarshalText([]byte(value))
	case "proxy_host":
		p.ProxyHost = value
	case "proxy_port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		p.ProxyPort = n
	default:
		return fmt.Errorf("unknown preference %q (valid: %s)", key, strings.Join(Keys, ", "))
	}
	return nil
}

// Get returns the text form of the preference named key.
func (p Preferences) Get(key string) (string, error) {
	switch key {
	case "unstable_update":
		return strconv.FormatBool(p.UnstableUpdate), nil
	case "auto_sync":
		return p.AutoSync.String(), nil
	case "clean_up_interval":
		return p.CleanUpInterval.String(), nil
	case "proxy_type":
		return p.ProxyType.String(), nil
	case "proxy_host":
		return p.ProxyHost, nil
	case "proxy_port":
		return strconv.Itoa(p.ProxyPort), nil
	default:
		return "", fmt.Errorf("unknown preference %q (valid: %s)", key, strings.Join(Keys, ", "))
	}
}
