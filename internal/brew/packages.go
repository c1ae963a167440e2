package brew

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/blackwell-systems/reposync/internal/installed"
)

// ErrNotInstalled is returned by GetInfo for packages brew does not have installed.
var ErrNotInstalled = errors.New("package not installed")

// runFunc executes brew with args and returns its stdout.
type runFunc func(ctx context.Context, args ...string) ([]byte, error)

// Client queries Homebrew through its CLI. It implements
// installed.PackageManager.
type Client struct {
	bin string
	run runFunc
}

// NewClient returns a Client invoking bin ("brew" when empty).
func NewClient(bin string) *Client {
	if bin == "" {
		bin = "brew"
	}
	c := &Client{bin: bin}
	c.run = c.exec
	return c
}

func (c *Client) exec(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("brew %s failed: %w (stderr: %s)", args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("brew %s failed: %w", args[0], err)
	}
	return output, nil
}

// ListInstalled returns all installed formulae and casks.
func (c *Client) ListInstalled(ctx context.Context) ([]installed.PackageInfo, error) {
	output, err := c.run(ctx, "info", "--json=v2", "--installed")
	if err != nil {
		return nil, err
	}

	var listOutput brewListOutput
	if err := json.Unmarshal(output, &listOutput); err != nil {
		return nil, fmt.Errorf("failed to parse brew info output: %w", err)
	}
	return toPackageInfos(listOutput), nil
}

// GetInfo returns the installed package called name.
func (c *Client) GetInfo(ctx context.Context, name string) (installed.PackageInfo, error) {
	output, err := c.run(ctx, "info", "--json=v2", name)
	if err != nil {
		return installed.PackageInfo{}, err
	}

	var infoOutput brewListOutput
	if err := json.Unmarshal(output, &infoOutput); err != nil {
		return installed.PackageInfo{}, fmt.Errorf("failed to parse brew info output: %w", err)
	}

	for _, info := range toPackageInfos(infoOutput) {
		if info.Name == name {
			return info, nil
		}
	}
	return installed.PackageInfo{}, fmt.Errorf("%s: %w", name, ErrNotInstalled)
}

// toPackageInfos keeps only packages with an installed keg or cask.
func toPackageInfos(out brewListOutput) []installed.PackageInfo {
	var infos []installed.PackageInfo

	for _, formula := range out.Formulae {
		if len(formula.Installed) == 0 {
			continue
		}
		// The last keg is the newest installed version.
		keg := formula.Installed[len(formula.Installed)-1]
		infos = append(infos, installed.PackageInfo{
			Name:        formula.Name,
			Version:     keg.Version,
			VersionCode: formula.Revision,
		})
	}

	for _, cask := range out.Casks {
		if cask.Installed == "" {
			continue
		}
		infos = append(infos, installed.PackageInfo{
			Name:    cask.Token,
			Version: cask.Installed,
		})
	}

	return infos
}

// Prefix returns the Homebrew installation prefix.
func (c *Client) Prefix(ctx context.Context) (string, error) {
	output, err := c.run(ctx, "--prefix")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}
