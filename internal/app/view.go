package app

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jwulff/sensorlog/internal/capture"
	"github.com/jwulff/sensorlog/internal/sensor"
	"github.com/jwulff/sensorlog/internal/ui"
)

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string

	// Header
	sections = append(sections, m.renderHeader())

	// Status bar
	sections = append(sections, m.renderStatusBar())

	// Divider
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	// Main content
	sections = append(sections, m.renderBody())

	// Divider
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	// Error bar
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	} else if m.confirmDelete && m.selected < len(m.records) {
		sections = append(sections, ui.ErrorStyle.Render(fmt.Sprintf("Delete %q? ", m.records[m.selected].Title))+
			ui.FooterKeyStyle.Render("y")+ui.FooterDescStyle.Render(" to confirm"))
	} else if m.notice != "" {
		sections = append(sections, ui.NoticeStyle.Render(m.notice))
	}

	// Footer
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("SENSORLOG")

	var source string
	if m.deps.SourceName != "" {
		name := m.deps.SourceName
		if d, ok := m.deps.Source.(interface{ Device() string }); ok && d.Device() != "" {
			name += " (" + d.Device() + ")"
		}
		source = ui.DimStyle.Render(" · " + name)
	}
	return title + source + ui.DimStyle.Render(" [") + ui.RateBadgeStyle.Render(m.rate.Label()) + ui.DimStyle.Render("]")
}

func (m Model) renderStatusBar() string {
	if m.screen == ScreenLive {
		if m.live != nil && m.live.Running() {
			return ui.RecordingDotStyle.Render("◉ LIVE") + ui.StatusStyle.Render("  not recorded")
		}
		return ui.ArmedDotStyle.Render("◌ CONNECTING")
	}
	if m.session == nil {
		return ui.IdleDotStyle.Render("○ IDLE") + ui.StatusStyle.Render(fmt.Sprintf("  %d records", len(m.records)))
	}

	switch m.session.State() {
	case capture.Armed:
		return ui.ArmedDotStyle.Render("◌ ARMED")
	case capture.Recording:
		return ui.RecordingDotStyle.Render("● REC") + ui.StatusStyle.Render("  "+formatElapsed(m.session.Elapsed()))
	}
	return ui.IdleDotStyle.Render("■ STOPPED") + ui.StatusStyle.Render("  "+formatElapsed(m.session.Elapsed()))
}

func (m Model) bodyHeight() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + dividers(2) + error(1) + footer(1)
	return max(5, m.height-6)
}

func (m Model) renderBody() string {
	var lines []string
	switch m.screen {
	case ScreenSensors:
		lines = m.renderSensors()
	case ScreenRecord:
		lines = m.renderRecord()
	case ScreenDetail:
		lines = m.renderDetail()
	case ScreenLive:
		lines = m.renderLive()
	default:
		lines = m.renderRecords()
	}

	height := m.bodyHeight()
	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRecords() []string {
	lines := []string{ui.PanelTitleActiveStyle.Render(fmt.Sprintf("RECORDS (%d)", len(m.records)))}

	if len(m.records) == 0 {
		lines = append(lines, "")
		lines = append(lines, ui.DimStyle.Render("  No records yet. Press r to record."))
		return lines
	}

	titleW := max(10, m.width/3)
	visible := m.bodyHeight() - 1
	start := 0
	if m.selected >= visible {
		start = m.selected - visible + 1
	}
	for i := start; i < len(m.records) && i < start+visible; i++ {
		r := m.records[i]
		ts := ui.TimestampStyle.Render(r.CreatedAt.Format("2006-01-02 15:04:05"))
		kinds := ui.KindLabelStyle.Render(kindList(r.Kinds))
		title := padRight(truncateToWidth(r.Title, titleW), titleW)
		if i == m.selected {
			lines = append(lines, ui.SelectedStyle.Render("> "+title)+" "+ts+"  "+kinds)
		} else {
			lines = append(lines, "  "+title+" "+ts+"  "+kinds)
		}
	}
	return lines
}

func (m Model) renderSensors() []string {
	lines := []string{
		ui.PanelTitleActiveStyle.Render("SENSORS") + ui.DimStyle.Render("  rate ") + ui.RateBadgeStyle.Render(m.rate.Label()),
	}
	for i, row := range m.rows {
		box := ui.CheckOffStyle.Render("[ ]")
		if m.deps.Prefs.Get(row.Kind, row.Component) {
			box = ui.CheckOnStyle.Render("[x]")
		}
		label := row.Kind.String() + " " + row.Kind.ComponentLabel(row.Component)
		if i == m.sensorCursor {
			lines = append(lines, ui.SelectedStyle.Render("> ")+box+" "+ui.SelectedStyle.Render(label))
		} else {
			lines = append(lines, "  "+box+" "+label)
		}
	}
	return lines
}

func (m Model) renderRecord() []string {
	lines := []string{ui.PanelTitleActiveStyle.Render("RECORD")}
	if m.session == nil {
		return lines
	}

	switch m.session.State() {
	case capture.Idle, capture.Armed:
		secs := int(math.Ceil(m.session.Remaining().Seconds()))
		lines = append(lines, "")
		lines = append(lines, "  "+ui.CountdownStyle.Render(fmt.Sprintf("Starting in %ds", secs)))
		lines = append(lines, ui.DimStyle.Render("  Place the device and keep it still."))
		lines = append(lines, "")
		lines = append(lines, "  "+ui.KindLabelStyle.Render(kindList(m.session.Kinds())))
		return lines

	case capture.Recording:
		lines = append(lines, "")
		lines = append(lines, "  "+ui.RecordingDotStyle.Render("● ")+formatElapsed(m.session.Elapsed()))
		lines = append(lines, "")
		lines = append(lines, "  "+ui.KindLabelStyle.Render(kindList(m.session.Kinds())))
		return lines
	}

	lines = append(lines, "")
	lines = append(lines, "  Recorded "+formatElapsed(m.session.Elapsed()))
	lines = append(lines, renderCounts(m.captured)...)
	if n := m.session.Dropped(); n > 0 {
		lines = append(lines, ui.DimStyle.Render(fmt.Sprintf("  %d samples dropped", n)))
	}
	lines = append(lines, "")
	lines = append(lines, m.renderForm()...)
	return lines
}

func (m Model) renderDetail() []string {
	r := m.detail
	lines := []string{
		ui.PanelTitleActiveStyle.Render(fmt.Sprintf("RECORD #%d", r.ID)) + "  " +
			ui.TimestampStyle.Render(r.CreatedAt.Format("2006-01-02 15:04:05")),
		"",
	}
	lines = append(lines, m.renderForm()...)
	lines = append(lines, "")
	if m.detailBuf != nil {
		lines = append(lines, renderCounts(m.detailBuf)...)
	} else {
		lines = append(lines, "  "+ui.KindLabelStyle.Render(kindList(r.Kinds)))
	}
	if len(m.exported) > 0 {
		lines = append(lines, "")
		for _, f := range m.exported {
			lines = append(lines, ui.DimStyle.Render("  "+f))
		}
	}
	return lines
}

func (m Model) renderLive() []string {
	lines := []string{ui.PanelTitleActiveStyle.Render("LIVE READINGS") + ui.DimStyle.Render("  rate ") + ui.RateBadgeStyle.Render(m.rate.Label())}
	if m.live == nil {
		return lines
	}
	readings := m.live.Readings()
	if len(readings) == 0 {
		lines = append(lines, "")
		lines = append(lines, ui.DimStyle.Render("  Waiting for readings..."))
		return lines
	}
	for _, r := range readings {
		for c, v := range r.Values {
			if c >= r.Kind.Components() {
				break
			}
			label := padRight(r.Kind.String()+" "+r.Kind.ComponentLabel(sensor.Component(c)), 24)
			lines = append(lines, "  "+ui.KindLabelStyle.Render(label)+ui.CountStyle.Render(fmt.Sprintf("%12.4f", v)))
		}
	}
	return lines
}

func (m Model) renderForm() []string {
	titleLabel := ui.PanelTitleStyle.Render("Title")
	notesLabel := ui.PanelTitleStyle.Render("Notes")
	switch m.focus {
	case fieldTitle:
		titleLabel = ui.PanelTitleActiveStyle.Render("Title")
	case fieldNotes:
		notesLabel = ui.PanelTitleActiveStyle.Render("Notes")
	}
	lines := []string{"  " + titleLabel + " " + m.title.View(), "  " + notesLabel}
	return append(lines, strings.Split(m.notes.View(), "\n")...)
}

// renderCounts lists the point count of every recorded component.
func renderCounts(buf *capture.Buffer) []string {
	if buf == nil {
		return nil
	}
	var lines []string
	for _, k := range buf.Kinds() {
		n := buf.Len(k)
		for _, c := range buf.Selection(k).Components() {
			label := padRight(k.String()+" "+k.ComponentLabel(c), 24)
			lines = append(lines, "  "+ui.KindLabelStyle.Render(label)+ui.CountStyle.Render(fmt.Sprintf("%d points", n)))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No sensors recorded"))
	}
	return lines
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	var parts []string
	key := func(k, desc string) {
		parts = append(parts, ui.FooterKeyStyle.Render(k)+ui.FooterDescStyle.Render(" "+desc))
	}

	switch m.screen {
	case ScreenRecords:
		key("r", "Record")
		key("l", "Live")
		key("s", "Sensors")
		if len(m.records) > 0 {
			key("Enter", "Open")
			key("d", "Delete")
			key("j/k", "Nav")
		}
		key("q", "Quit")
	case ScreenSensors:
		key("Space", "Toggle")
		key("+/-", "Rate")
		key("j/k", "Nav")
		key("Esc", "Back")
	case ScreenRecord:
		if m.captured == nil {
			key("Space", "Stop")
			key("Esc", "Interrupt")
		} else {
			key("Ctrl+S", "Save")
			key("Tab", "Field")
			key("Esc", "Discard")
		}
	case ScreenLive:
		key("Esc", "Back")
	case ScreenDetail:
		if m.focus == fieldNone {
			key("Tab", "Edit")
			key("e", "Export CSV")
			key("Esc", "Back")
		} else {
			key("Tab", "Next")
			key("Esc", "Done")
		}
	}
	return strings.Join(parts, "  ")
}

// Helpers

func kindList(kinds []sensor.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}

// formatElapsed renders d as mm:ss.t.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	tenths := int(d / (100 * time.Millisecond))
	return fmt.Sprintf("%02d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
}

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}
