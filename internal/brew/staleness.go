package brew

import (
	"bytes"
	"context"
	"strings"
)

// CheckStaleness compares known package names against the current
// `brew list` output and returns how many installed packages are missing
// from known. Returns (0, nil) silently if brew is not on PATH or the
// command fails; callers must not treat this as an error.
func (c *Client) CheckStaleness(ctx context.Context, known []string) (int, error) {
	out, err := c.run(ctx, "list", "-1")
	if err != nil {
		// brew not found or failed: degrade silently
		return 0, nil
	}

	// Build a set of known package names for O(1) lookup
	set := make(map[string]struct{}, len(known))
	for _, name := range known {
		set[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	newCount := 0
	for _, line := range bytes.Split(out, []byte{'\n'}) {
		name := strings.ToLower(strings.TrimSpace(string(line)))
		if name == "" {
			continue
		}
		if _, found := set[name]; !found {
			newCount++
		}
	}

	return newCount, nil
}
