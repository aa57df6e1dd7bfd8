package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Styles for doctor and analyze output.
// lipgloss styles are value types and safe for concurrent use.
var (
	styleOK = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	styleBad = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	styleWarn = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	styleLabel = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255"))

	styleMuted = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

func reportGood(name, detail string) {
	fmt.Printf("%s %s  %s\n", styleOK.Render("ok"), styleLabel.Render(name), styleMuted.Render(detail))
}

func reportBad(name, detail string) {
	fmt.Printf("%s %s  %s\n", styleBad.Render("!!"), styleLabel.Render(name), detail)
}

func reportSkipped(name, detail string) {
	fmt.Printf("%s %s  %s\n", styleWarn.Render("--"), styleLabel.Render(name), styleMuted.Render(detail))
}
