package prefs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	p := Defaults()
	assert.False(t, p.UnstableUpdate)
	assert.Equal(t, AutoSyncWifiOnly, p.AutoSync)
	assert.Equal(t, 12*time.Hour, p.CleanUpInterval)
	assert.Equal(t, ProxyPreference{Type: ProxyDirect, Host: "localhost", Port: 9050}, p.Proxy())
}

func TestAutoSyncMode_Text(t *testing.T) {
	for mode, name := range autoSyncNames {
		text, err := mode.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, name, string(text))

		var got AutoSyncMode
		require.NoError(t, got.UnmarshalText([]byte(name)))
		assert.Equal(t, mode, got)
	}

	var m AutoSyncMode
	assert.Error(t, m.UnmarshalText([]byte("sometimes")))
}

func TestPreferences_SetGet(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  string
	}{
		{"unstable_update", "true", "true"},
		{"auto_sync", "wifi_plugged_in", "wifi_plugged_in"},
		{"clean_up_interval", "6h", "6h0m0s"},
		{"proxy_type", "SOCKS", "socks"},
		{"proxy_host", "10.0.0.1", "10.0.0.1"},
		{"proxy_port", "1080", "1080"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			p := Defaults()
			require.NoError(t, p.Set(tt.key, tt.value))
			got, err := p.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPreferences_SetInvalid(t *testing.T) {
	p := Defaults()
	assert.Error(t, p.Set("color", "blue"))
	assert.Error(t, p.Set("proxy_port", "many"))
	assert.Error(t, p.Set("clean_up_interval", "weekly"))
	assert.Error(t, p.Set("unstable_update", "perhaps"))
	assert.Equal(t, Defaults(), p)
}

func TestPreferences_YAML(t *testing.T) {
	p := Defaults()
	p.AutoSync = AutoSyncNever
	p.ProxyType = ProxyHTTP

	data, err := yaml.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), "auto_sync: never")
	assert.Contains(t, string(data), "proxy_type: http")

	got := Defaults()
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, p, got)
}
