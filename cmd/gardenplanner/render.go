package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"garden-planner/internal/model"
	"garden-planner/internal/service"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("70"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	overdueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	panelStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("70")).
			Padding(0, 1)
)

const idWidth = 8

func shortID(id string) string {
	if len(id) <= idWidth {
		return id
	}
	return id[:idWidth]
}

func plantNames(plants []model.Plant) map[string]string {
	names := make(map[string]string, len(plants))
	for _, p := range plants {
		names[p.ID] = p.Name
	}
	return names
}

func plantName(id *string, names map[string]string) string {
	if id == nil || *id == "" {
		return "general"
	}
	if name, ok := names[*id]; ok {
		return name
	}
	return "unknown plant"
}

func renderTemplates(w io.Writer, title string, list []model.TaskTemplate, names map[string]string, now time.Time, loc *time.Location) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%d)", title, len(list))))
	if len(list) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  nothing here"))
		return
	}
	today := model.StartOfDay(now, loc)
	for _, t := range list {
		fmt.Fprintln(w, "  "+renderTemplate(t, names, today, loc))
	}
}

func renderTemplate(t model.TaskTemplate, names map[string]string, today time.Time, loc *time.Location) string {
	due := t.NextDueAt.In(loc).Format("2006-01-02")
	var dueText string
	switch {
	case !t.Enabled:
		dueText = mutedStyle.Render("disabled")
	case t.NextDueAt.Before(today):
		dueText = overdueStyle.Render("overdue " + due)
	case t.NextDueAt.Before(today.AddDate(0, 0, 1)):
		dueText = dueStyle.Render("today")
	default:
		dueText = due
	}
	freq := "one-time"
	if !t.OneTime() {
		freq = fmt.Sprintf("every %dd", t.Frequency())
	}
	parts := []string{
		idStyle.Render(shortID(t.ID)),
		string(t.Kind),
		plantName(t.PlantID, names),
		freq,
		dueText,
	}
	if t.PreferredTime != "" {
		parts = append(parts, string(t.PreferredTime))
	}
	return strings.Join(parts, "  ")
}

func renderPlants(w io.Writer, list []model.Plant) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Plants (%d)", len(list))))
	for _, p := range list {
		line := idStyle.Render(shortID(p.ID)) + "  " + p.Name
		if p.Species != "" {
			line += mutedStyle.Render(" (" + p.Species + ")")
		}
		if p.Location != "" {
			line += "  @" + p.Location
		}
		if p.Care.AutoGenerate {
			var care []string
			for _, kind := range model.TaskKinds {
				if days, ok := p.Care.Intervals()[kind]; ok {
					care = append(care, fmt.Sprintf("%s/%dd", kind, days))
				}
			}
			if len(care) > 0 {
				line += "  " + okStyle.Render(strings.Join(care, " "))
			}
		}
		fmt.Fprintln(w, "  "+line)
	}
}

func renderLogs(w io.Writer, list []model.TaskLog, names map[string]string, loc *time.Location) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Completed (%d)", len(list))))
	for _, l := range list {
		line := fmt.Sprintf("%s  %s  %s", l.DoneAt.In(loc).Format("2006-01-02 15:04"), service.KindLabel(l.Kind), plantName(l.PlantID, names))
		if l.Notes != "" {
			line += mutedStyle.Render("  " + l.Notes)
		}
		if l.ProductUsed != "" {
			line += mutedStyle.Render("  [" + l.ProductUsed + "]")
		}
		fmt.Fprintln(w, "  "+line)
	}
}

func renderJournal(w io.Writer, list []model.JournalEntry, names map[string]string, loc *time.Location) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Journal (%d)", len(list))))
	for _, e := range list {
		line := fmt.Sprintf("%s  %s  %s", idStyle.Render(shortID(e.ID)), e.EntryDate.In(loc).Format("2006-01-02"), e.Title)
		if e.PlantID != nil {
			line += mutedStyle.Render("  " + plantName(e.PlantID, names))
		}
		if n := len(e.Photos); n > 0 {
			line += fmt.Sprintf("  📷%d", n)
		}
		fmt.Fprintln(w, "  "+line)
		if e.Body != "" {
			fmt.Fprintln(w, mutedStyle.Render("      "+e.Body))
		}
	}
}

// renderPanel frames a short summary, used for command results.
func renderPanel(w io.Writer, lines ...string) {
	fmt.Fprintln(w, panelStyle.Render(strings.Join(lines, "\n")))
}
