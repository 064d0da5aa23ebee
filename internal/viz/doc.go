// Package viz renders command output for the terminal: lipgloss styles and
// tables, sparklines, and asciigraph line plots of run data.
package viz
