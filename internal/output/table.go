// Package output provides terminal output utilities for reposync.
//
// This package includes:
//   - Table rendering for installed packages, repositories and jobs
//   - A spinner for long-running operations
//   - Human-readable formatting for dates and durations
//
// Tables use plain text with optional ANSI color. Color is emitted only when
// stdout is a terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/reposync/internal/installed"
	"github.com/blackwell-systems/reposync/internal/jobs"
	"github.com/blackwell-systems/reposync/internal/store"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderInstalledTable renders the installed registry. Items are expected in
// the order the store returns them.
func RenderInstalledTable(items []installed.Item) string {
	if len(items) == 0 {
		return "No installed packages recorded.\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-28s %-16s %-8s %s\n", "Package", "Version", "Code", "Signature")
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	for _, item := range items {
		sig := "-"
		if item.Signature != "" {
			sig = truncate(item.Signature, 16)
		}
		fmt.Fprintf(&sb, "%-28s %-16s %-8d %s\n",
			truncate(item.PackageName, 28),
			truncate(item.Version, 16),
			item.VersionCode,
			sig)
	}

	return sb.String()
}

// RenderRepositoryTable renders configured repositories with their freshness.
func RenderRepositoryTable(repos []*store.Repository) string {
	if len(repos) == 0 {
		return "No repositories configured.\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-4s %-16s %-36s %-9s %s\n", "ID", "Name", "Address", "Enabled", "Updated")
	sb.WriteString(strings.Repeat("─", 84))
	sb.WriteString("\n")

	for _, repo := range repos {
		enabled := colorize(colorGreen, fmt.Sprintf("%-9s", "yes"))
		if !repo.Enabled {
			enabled = colorize(colorGray, fmt.Sprintf("%-9s", "no"))
		}
		updated := formatRelativeTime(repo.UpdatedAt)
		if !repo.HasFreshnessMarker() {
			updated = colorize(colorYellow, "pending")
		}
		fmt.Fprintf(&sb, "%-4d %-16s %-36s %s %s\n",
			repo.ID,
			truncate(repo.Name, 16),
			truncate(repo.Address, 36),
			enabled,
			updated)
	}

	return sb.String()
}

// RenderJobTable renders registered periodic jobs and their next run window.
func RenderJobTable(registered []jobs.Job) string {
	if len(registered) == 0 {
		return "No periodic jobs registered.\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-9s %-8s %-10s %-20s %s\n", "Job", "Period", "Network", "Conditions", "Last Run")
	sb.WriteString(strings.Repeat("─", 70))
	sb.WriteString("\n")

	for _, job := range registered {
		fmt.Fprintf(&sb, "%-9s %-8s %-10s %-20s %s\n",
			job.ID.String(),
			formatDuration(job.Period),
			job.Constraints.Network.String(),
			formatConditions(job.Constraints),
			formatRelativeTime(job.LastRunAt))
	}

	return sb.String()
}

func formatConditions(c jobs.Constraints) string {
	var parts []string
	if c.RequiresCharging {
		parts = append(parts, "charging")
	}
	if c.RequiresBatteryNotLow {
		parts = append(parts, "battery")
	}
	if c.RequiresStorageNotLow {
		parts = append(parts, "storage")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

// formatDuration renders whole days or hours compactly, e.g. "12h" or "7d".
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "off"
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return d.String()
	}
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 30*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
