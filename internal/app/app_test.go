package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackwell-systems/reposync/internal/syncsvc"
)

// setupEnv points every reposync path at a fresh temp dir and installs a
// fake brew executable. It returns the config dir.
func setupEnv(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", root)
	for _, key := range []string{"DB", "PREFS", "CACHE_DIR", "LOG_LEVEL", "LOG_FORMAT", "BREW_PREFIX"} {
		t.Setenv("REPOSYNC_"+key, "")
	}
	t.Setenv("REPOSYNC_LOG_LEVEL", "error")

	brew := filepath.Join(root, "brew")
	script := `#!/bin/sh
case "$1" in
info)
  cat <<'JSON'
{"formulae":[{"name":"git","revision":1,"installed":[{"version":"2.43.0"},{"version":"2.44.0"}]},
{"name":"jq","installed":[{"version":"1.7.1"}]}],
"casks":[{"token":"firefox","installed":"125.0"}]}
JSON
  ;;
list)
  printf 'git\njq\nfirefox\nwget\n'
  ;;
--prefix)
  echo /nonexistent
  ;;
esac
`
	if err := os.WriteFile(brew, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REPOSYNC_BREW_BIN", brew)

	return filepath.Join(root, "reposync")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCmd()
	if cmd.Use != "reposync" {
		t.Errorf("expected Use to be 'reposync', got '%s'", cmd.Use)
	}
	if cmd.Short == "" || cmd.Long == "" {
		t.Error("expected Short and Long descriptions to be set")
	}

	found := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		found[sub.Name()] = true
	}
	for _, want := range []string{"run", "scan", "status", "resync", "repo", "prefs"} {
		if !found[want] {
			t.Errorf("expected command '%s' to be registered", want)
		}
	}

	for _, f := range persistentFlags {
		if cmd.PersistentFlags().Lookup(f.flag) == nil {
			t.Errorf("expected --%s flag to be registered", f.flag)
		}
	}
}

func TestFlagOverridesEnvironment(t *testing.T) {
	dir := setupEnv(t)
	custom := filepath.Join(t.TempDir(), "custom.db")
	t.Setenv("REPOSYNC_DB", filepath.Join(dir, "env.db"))

	if _, err := execute(t, "--db", custom, "repo", "add", "main", "https://repo.example.com/main"); err != nil {
		t.Fatalf("repo add failed: %v", err)
	}
	if _, err := os.Stat(custom); err != nil {
		t.Errorf("expected database at flag path: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "env.db")); !os.IsNotExist(err) {
		t.Errorf("environment path should not be used when the flag is set")
	}
}

func TestRepoCommands(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "repo", "add", "main", "https://repo.example.com/main")
	if err != nil {
		t.Fatalf("repo add failed: %v", err)
	}
	if !strings.Contains(out, "Added repository main (id 1)") {
		t.Errorf("unexpected add output: %q", out)
	}

	if _, err := execute(t, "repo", "add", "main", "https://repo.example.com/other"); err == nil {
		t.Error("adding a duplicate name should fail")
	}
	if _, err := execute(t, "repo", "add", "bad", "ftp://repo.example.com"); err == nil {
		t.Error("adding a non-http address should fail")
	}

	out, err = execute(t, "repo", "list")
	if err != nil {
		t.Fatalf("repo list failed: %v", err)
	}
	if !strings.Contains(out, "main") || !strings.Contains(out, "pending") {
		t.Errorf("list should show the new repository as pending: %q", out)
	}

	if _, err := execute(t, "repo", "remove", "main"); err != nil {
		t.Fatalf("repo remove failed: %v", err)
	}
	if _, err := execute(t, "repo", "remove", "main"); err == nil || !strings.Contains(err.Error(), "no repository named") {
		t.Errorf("removing twice should report a missing repository, got %v", err)
	}
}

func TestRepoList_NotInitialized(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "repo", "list")
	if err == nil || !strings.Contains(err.Error(), "reposync scan") {
		t.Errorf("expected a hint to run scan, got %v", err)
	}
}

func TestPrefsCommands(t *testing.T) {
	dir := setupEnv(t)

	out, err := execute(t, "prefs", "show")
	if err != nil {
		t.Fatalf("prefs show failed: %v", err)
	}
	for _, want := range []string{"auto_sync", "wifi_only", "proxy_type", "direct"} {
		if !strings.Contains(out, want) {
			t.Errorf("defaults missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "prefs", "set", "clean_up_interval", "72h")
	if err != nil {
		t.Fatalf("prefs set failed: %v", err)
	}
	if !strings.Contains(out, "clean_up_interval = 72h0m0s") {
		t.Errorf("unexpected set output: %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "preferences.yaml")); err != nil {
		t.Errorf("preferences file not written: %v", err)
	}

	out, err = execute(t, "prefs", "show")
	if err != nil {
		t.Fatalf("prefs show failed: %v", err)
	}
	if !strings.Contains(out, "72h0m0s") {
		t.Errorf("saved value not shown:\n%s", out)
	}

	if _, err := execute(t, "prefs", "set", "auto_sync", "sometimes"); err == nil {
		t.Error("invalid value should fail")
	}
	if _, err := execute(t, "prefs", "set", "colour", "blue"); err == nil {
		t.Error("unknown key should fail")
	}
}

func TestScanAndStatus(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "scan")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	for _, want := range []string{"git", "2.44.0", "jq", "firefox", "3 packages recorded"} {
		if !strings.Contains(out, want) {
			t.Errorf("scan output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"Daemon:     stopped", "Proxy:      direct", "Installed:  3 packages", "1 new packages since last scan", "No repositories configured.", "No periodic jobs registered."} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestResync(t *testing.T) {
	dir := setupEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/main/index-v1.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte(`{"packages":{}}`))
	}))
	defer srv.Close()

	if _, err := execute(t, "repo", "add", "main", srv.URL+"/main"); err != nil {
		t.Fatalf("repo add failed: %v", err)
	}

	out, err := execute(t, "resync")
	if err != nil {
		t.Fatalf("resync failed: %v", err)
	}
	if !strings.Contains(out, "main") || strings.Contains(out, "pending") {
		t.Errorf("repository should be fresh after resync:\n%s", out)
	}

	data, err := os.ReadFile(filepath.Join(dir, "cache", syncsvc.IndexDir, "repo-1-index-v1.json"))
	if err != nil {
		t.Fatalf("index not cached: %v", err)
	}
	if string(data) != `{"packages":{}}` {
		t.Errorf("cached index = %q", data)
	}
}

func TestResync_Failure(t *testing.T) {
	setupEnv(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := execute(t, "repo", "add", "gone", srv.URL); err != nil {
		t.Fatalf("repo add failed: %v", err)
	}
	if _, err := execute(t, "resync"); err == nil || !strings.Contains(err.Error(), "1 repositories failed") {
		t.Errorf("expected a sync failure, got %v", err)
	}
}

func TestRunStop_NotRunning(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "run", "--stop", "--pid-file", filepath.Join(t.TempDir(), "none.pid"))
	if err != nil {
		t.Fatalf("run --stop failed: %v", err)
	}
	if !strings.Contains(out, "Daemon is not running") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestChildArgs(t *testing.T) {
	got := childArgs([]string{"--db", "/tmp/x.db", "run", "--daemon", "--daemon=true", "--log-file", "/tmp/l"})
	want := []string{"--db", "/tmp/x.db", "run", "--log-file", "/tmp/l"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("childArgs() = %v, want %v", got, want)
	}
}
