package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/0xricksanchez/aflr/internal/campaign"
)

// sortColumn is one of the worker-table's sortable columns, cycled by
// the 's' key (spec §4.5's dashboard input list).
type sortColumn int

const (
	sortByID sortColumn = iota
	sortByExecRate
	sortByCrashes
	sortByQueue
	sortByState
	sortColumnCount
)

func (c sortColumn) label() string {
	switch c {
	case sortByExecRate:
		return "exec/s"
	case sortByCrashes:
		return "crashes"
	case sortByQueue:
		return "queue"
	case sortByState:
		return "state"
	default:
		return "id"
	}
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	summaryStyle = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder())
	deadStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	stalledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	aliveStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// snapshotMsg wraps a CampaignSnapshot delivered from the poller's
// channel into a tea.Msg.
type snapshotMsg campaign.CampaignSnapshot

// Model is the bubbletea dashboard. It owns no polling logic itself — it
// only renders whatever snapshot it was last handed, read from in from a
// background goroutine fed by Poller.Run.
type Model struct {
	in       <-chan campaign.CampaignSnapshot
	table    table.Model
	sort     sortColumn
	selected string
	detail   bool
	last     campaign.CampaignSnapshot
	rates    []float64
	quitting bool
}

// NewModel creates a dashboard Model reading snapshots from in.
func NewModel(in <-chan campaign.CampaignSnapshot) Model {
	cols := []table.Column{
		{Title: "ID", Width: 18},
		{Title: "State", Width: 10},
		{Title: "Exec/s", Width: 10},
		{Title: "Queue", Width: 8},
		{Title: "Crashes", Width: 8},
		{Title: "Hangs", Width: 6},
		{Title: "Stage", Width: 10},
	}
	t := table.New(table.WithColumns(cols), table.WithFocused(true), table.WithHeight(12))
	return Model{in: in, table: t}
}

// Init starts the subscription to the snapshot channel.
func (m Model) Init() tea.Cmd {
	return m.waitForSnapshot()
}

func (m Model) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.in
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

// Update handles key input and incoming snapshots.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.last = campaign.CampaignSnapshot(msg)
		m.table.SetRows(rowsFor(m.last.Workers, m.sort))
		m.rates = append(m.rates, m.last.ExecRate)
		if len(m.rates) > sparklineWidth {
			m.rates = m.rates[len(m.rates)-sparklineWidth:]
		}
		return m, m.waitForSnapshot()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "s":
			m.sort = (m.sort + 1) % sortColumnCount
			m.table.SetRows(rowsFor(m.last.Workers, m.sort))
			return m, nil
		case "enter":
			if row := m.table.SelectedRow(); row != nil {
				if m.detail && m.selected == row[0] {
					m.detail = false
				} else {
					m.selected = row[0]
					m.detail = true
				}
			}
			return m, nil
		case "esc":
			m.detail = false
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the campaign summary, the worker table, the sparkline,
// and (if a worker is selected) its detail pane.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("aflr campaign monitor") + "\n\n")
	b.WriteString(summaryStyle.Render(summaryLine(m.last)) + "\n\n")
	b.WriteString(m.table.View() + "\n\n")
	b.WriteString(sparkline(m.rates) + "\n\n")

	if m.detail {
		if w := findWorker(m.last.Workers, m.selected); w != nil {
			b.WriteString(detailView(*w))
		}
	}

	b.WriteString("\n[q] quit  [s] sort: " + m.sort.label() + "  [enter] detail\n")
	return b.String()
}

func summaryLine(snap campaign.CampaignSnapshot) string {
	return fmt.Sprintf(
		"tick %d  elapsed %s  total execs %.0f  rate %.1f/s  unique crashes %d  unique hangs %d",
		snap.Tick, snap.Elapsed.Round(time.Second), snap.TotalExec, snap.ExecRate, snap.UniqueCrashes, snap.UniqueHangs,
	)
}

func rowsFor(workers []campaign.WorkerStatusSnapshot, by sortColumn) []table.Row {
	sorted := append([]campaign.WorkerStatusSnapshot(nil), workers...)
	sort.Slice(sorted, func(i, j int) bool {
		switch by {
		case sortByExecRate:
			return sorted[i].ExecPerSecNow.Value > sorted[j].ExecPerSecNow.Value
		case sortByCrashes:
			return sorted[i].CrashCount.Value > sorted[j].CrashCount.Value
		case sortByQueue:
			return sorted[i].QueueCount > sorted[j].QueueCount
		case sortByState:
			return sorted[i].State < sorted[j].State
		default:
			return sorted[i].ID < sorted[j].ID
		}
	})

	rows := make([]table.Row, len(sorted))
	for i, w := range sorted {
		rows[i] = table.Row{
			w.ID,
			styleState(w.State),
			fieldStr(w.ExecPerSecNow),
			fmt.Sprintf("%d", w.QueueCount),
			fieldStr(w.CrashCount),
			fieldStr(w.HangCount),
			w.Stage,
		}
	}
	return rows
}

func styleState(s campaign.WorkerState) string {
	switch s {
	case campaign.StateDead:
		return deadStyle.Render(string(s))
	case campaign.StateStalled:
		return stalledStyle.Render(string(s))
	case campaign.StateRunning:
		return aliveStyle.Render(string(s))
	default:
		return string(s)
	}
}

func fieldStr(f campaign.Field) string {
	if !f.Known {
		return "?"
	}
	return fmt.Sprintf("%.1f", f.Value)
}

func findWorker(workers []campaign.WorkerStatusSnapshot, id string) *campaign.WorkerStatusSnapshot {
	for i := range workers {
		if workers[i].ID == id {
			return &workers[i]
		}
	}
	return nil
}

func detailView(w campaign.WorkerStatusSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "detail: %s\n", w.ID)
	fmt.Fprintf(&b, "  cycles done      %s\n", fieldStr(w.CyclesDone))
	fmt.Fprintf(&b, "  stability        %s%%\n", fieldStr(w.StabilityPercent))
	fmt.Fprintf(&b, "  map density      %s%%\n", fieldStr(w.MapDensityPercent))
	fmt.Fprintf(&b, "  favored/found    %s / %s\n", fieldStr(w.FavoredPaths), fieldStr(w.FoundPaths))
	fmt.Fprintf(&b, "  imported         %s\n", fieldStr(w.ImportedPaths))
	if !w.LastFind.IsZero() {
		fmt.Fprintf(&b, "  last find        %s ago\n", time.Since(w.LastFind).Round(time.Second))
	}
	if !w.LastCrash.IsZero() {
		fmt.Fprintf(&b, "  last crash       %s ago\n", time.Since(w.LastCrash).Round(time.Second))
	}
	if len(w.ParseErrors) > 0 {
		fmt.Fprintf(&b, "  parse errors     %s\n", strings.Join(w.ParseErrors, "; "))
	}
	return b.String()
}

// sparkGlyphs is the standard 8-level block glyph set used to render a
// bounded numeric history as a single line.
var sparkGlyphs = []rune(" ▁▂▃▄▅▆▇█")

const sparklineWidth = 60

// sparkline renders rates (oldest first) as one glyph per sample, scaled
// to the series' own max so the shape stays visible regardless of the
// campaign's absolute execution rate.
func sparkline(rates []float64) string {
	if len(rates) == 0 {
		return "rate (no data yet)"
	}
	max := rates[0]
	for _, r := range rates {
		if r > max {
			max = r
		}
	}
	var b strings.Builder
	b.WriteString("rate ")
	for _, r := range rates {
		idx := 0
		if max > 0 {
			idx = int(r / max * float64(len(sparkGlyphs)-1))
		}
		b.WriteRune(sparkGlyphs[idx])
	}
	return b.String()
}

// Run attaches a bubbletea program to the given channel and blocks until
// the operator quits or ctx is cancelled.
func Run(ctx context.Context, in <-chan campaign.CampaignSnapshot) error {
	m := NewModel(in)
	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
