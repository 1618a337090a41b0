// Package viz renders run results for the terminal.
//
// Styles come from lipgloss and line plots from asciigraph:
//
//   - [Summary]: bordered panel with run metadata, acceptance and an energy sparkline
//   - [EnergyPlot]: per-step patch energy
//   - [Profile]: pair energy against separation
package viz
