// Package tui is the terminal dashboard shown by `hifibridge serve`.
//
// The dashboard lists every zone in a table that refreshes whenever the
// aggregator applies a change, shows adapter status, and tails the log stream
// produced by logging.InitForTUI. Transport keys act on the selected zone.
package tui
