// Package watcher turns Homebrew keg changes into package events.
//
// Homebrew installs every formula into <prefix>/Cellar/<name>/<version> and
// every cask into <prefix>/Caskroom/<token>/<version>. The Watcher observes
// both trees with fsnotify:
//   - a new <name> directory is an install
//   - a new or removed <version> directory under an existing <name> is an
//     upgrade, reinstall or cleanup, reported as an install so the mirror
//     refreshes its record
//   - a removed or renamed <name> directory is an uninstall
//
// Example usage:
//
//	w := watcher.New("/opt/homebrew", logger)
//	events := make(chan installed.Event)
//	go mirror.Run(ctx, events)
//	if err := w.Run(ctx, events); err != nil {
//		log.Fatal(err)
//	}
package watcher
