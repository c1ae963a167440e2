package installed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Item is one installed application as recorded in the local registry.
type Item struct {
	PackageName string
	Version     string
	VersionCode int64
	// Signature is the hex SHA-256 fingerprint of the first signer blob.
	// Empty when the package manager reports no signing data.
	Signature string
}

// PackageInfo is what a package manager reports for one installed package.
type PackageInfo struct {
	Name        string
	Version     string
	VersionCode int64
	Signatures  [][]byte
}

// ToItem converts package manager info into a registry item.
func (p PackageInfo) ToItem() Item {
	item := Item{
		PackageName: p.Name,
		Version:     p.Version,
		VersionCode: p.VersionCode,
	}
	if len(p.Signatures) > 0 && len(p.Signatures[0]) > 0 {
		sum := sha256.Sum256(p.Signatures[0])
		item.Signature = hex.EncodeToString(sum[:])
	}
	return item
}

// EventKind identifies a live package change.
type EventKind int

const (
	// EventAdded covers fresh installs as well as upgrades and reinstalls.
	EventAdded EventKind = iota
	// EventRemoved is fired when a package disappears.
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is a package change delivered by an event source.
type Event struct {
	Kind        EventKind
	PackageName string
}

// PackageManager enumerates installed packages and looks up single packages.
type PackageManager interface {
	ListInstalled(ctx context.Context) ([]PackageInfo, error)
	GetInfo(ctx context.Context, name string) (PackageInfo, error)
}

// Registry is the persistent store of installed items.
type Registry interface {
	PutInstalled(item Item) error
	PutAllInstalled(items []Item) error
	DeleteInstalled(packageName string) error
}
