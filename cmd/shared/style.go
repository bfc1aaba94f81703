package shared

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/yz4230/bluegreen/internal/entity"
)

var (
	Green  = lipgloss.Color("#10B981")
	Red    = lipgloss.Color("#EF4444")
	Yellow = lipgloss.Color("#F59E0B")
	Dim    = lipgloss.Color("#6B7280")

	Bold    = lipgloss.NewStyle().Bold(true)
	Healthy = lipgloss.NewStyle().Foreground(Green).Bold(true)
	Failed  = lipgloss.NewStyle().Foreground(Red).Bold(true)
	Warning = lipgloss.NewStyle().Foreground(Yellow)
	DimText = lipgloss.NewStyle().Foreground(Dim)

	TableHeader = lipgloss.NewStyle().Bold(true)
)

func OutcomeText(o entity.DeploymentOutcome) string {
	switch o {
	case entity.OutcomeSucceeded:
		return Healthy.Render(string(o))
	case entity.OutcomeRolledBack:
		return Warning.Render(string(o))
	case entity.OutcomeFailed:
		return Failed.Render(string(o))
	}
	return DimText.Render(string(o))
}

func SlotStatusText(s entity.SlotStatus) string {
	switch s {
	case entity.SlotHealthy:
		return Healthy.Render(string(s))
	case entity.SlotUnhealthy:
		return Failed.Render(string(s))
	case entity.SlotStarting, entity.SlotDraining:
		return Warning.Render(string(s))
	}
	return DimText.Render(string(s))
}

// PrintAttempt writes a human readable summary of a release attempt.
func PrintAttempt(w io.Writer, a *entity.DeploymentAttempt) {
	fmt.Fprintf(w, "%s %s  %s\n", Bold.Render("release"), a.ID, OutcomeText(a.Outcome))
	fmt.Fprintf(w, "  environment  %s\n", a.Environment)
	fmt.Fprintf(w, "  artifact     %s\n", a.Artifact)
	if a.TargetSlot != "" {
		slots := string(a.TargetSlot)
		if a.PreviousSlot != "" {
			slots = fmt.Sprintf("%s -> %s", a.PreviousSlot, a.TargetSlot)
		}
		fmt.Fprintf(w, "  slots        %s\n", slots)
	}
	for _, t := range a.Transitions {
		line := fmt.Sprintf("  %s  %-16s", t.At.Format(time.TimeOnly), t.To)
		if t.Reason != "" {
			line += " " + DimText.Render(t.Reason)
		}
		fmt.Fprintln(w, line)
	}
	if a.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", Failed.Render("error"), a.Error)
	}
	if a.Degraded {
		fmt.Fprintf(w, "  %s %s\n", Warning.Render("degraded"), strings.Join(a.Warnings, "; "))
	}
}
