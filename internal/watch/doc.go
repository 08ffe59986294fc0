// Package watch is the consumer-facing boundary over the push
// channel. A Watcher tracks a symbol list, drives the shared
// connection manager, and merges partial live updates into the last
// known full snapshot of each symbol so descriptive fields survive.
//
// Loss of push connectivity degrades silently: while the channel is
// not delivering, a polling fallback refreshes the tracked symbols
// through the REST client, so consumers always see the freshest
// snapshot available.
package watch
