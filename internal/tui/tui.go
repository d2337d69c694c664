// Package tui renders a live status board of relayed votes.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"governance-agent/internal/models"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

func padToWidth(s string, width int) string {
	current := runewidth.StringWidth(s)
	if current >= width {
		return s
	}
	return s + strings.Repeat(" ", width-current)
}

// truncateToWidth cuts s to at most width display cells, marking the cut.
func truncateToWidth(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

func separatorLine(width int) string {
	if width < 2 {
		return strings.Repeat("─", width)
	}
	return "├" + strings.Repeat("─", width-2) + "┤"
}

func formatInfoLine(text string, width int) string {
	if width < 2 {
		return padToWidth(text, width)
	}
	return "│" + padToWidth(truncateToWidth(text, width-2), width-2) + "│"
}

// Summary is the aggregate view of the vote table.
type Summary struct {
	Pending   int64
	Executed  int64
	Failed    int64
	UpdatedAt time.Time
	Err       string // last refresh error, if any
}

// VoteRow is one recent vote.
type VoteRow struct {
	ID               string
	ProposalTitle    string
	Choice           string
	DestinationChain string
	Status           models.VoteStatus
	MessageID        string
	CreatedAt        time.Time
}

// Snapshot is one refresh of the board.
type Snapshot struct {
	Summary Summary
	Votes   []VoteRow
}

// UpdateMsg is sent when a new snapshot is available
type UpdateMsg struct {
	Snapshot Snapshot
}

// Model holds the TUI state
type Model struct {
	summary Summary
	votes   []VoteRow
	title   string
	width   int
	height  int
	now     func() time.Time
}

// NewModel creates a new TUI model
func NewModel(title string) Model {
	return Model{title: title, now: time.Now}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case UpdateMsg:
		m.summary = msg.Snapshot.Summary
		m.votes = msg.Snapshot.Votes
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}

	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	parts := []string{titleStyle.Render(truncateToWidth(m.title, m.width)), m.renderHeader(), m.renderVotes()}
	if m.summary.Err != "" {
		parts = append(parts, errStyle.Render(truncateToWidth("refresh failed: "+m.summary.Err, m.width)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderHeader renders the counters in three columns
func (m Model) renderHeader() string {
	colWidth := (m.width - 4) / 3
	rightColWidth := m.width - colWidth*2 - 4
	if colWidth < 4 || rightColWidth < 4 {
		return ""
	}

	total := m.summary.Pending + m.summary.Executed + m.summary.Failed
	updated := "never"
	if !m.summary.UpdatedAt.IsZero() {
		updated = m.summary.UpdatedAt.Format("15:04:05")
	}

	leftLines := []string{
		fmt.Sprintf("%s pending:  %d", statusSymbol(models.VoteStatusPending), m.summary.Pending),
		fmt.Sprintf("%s executed: %d", statusSymbol(models.VoteStatusExecuted), m.summary.Executed),
		fmt.Sprintf("%s failed:   %d", statusSymbol(models.VoteStatusFailed), m.summary.Failed),
	}
	middleLines := []string{
		fmt.Sprintf("total votes: %d", total),
		fmt.Sprintf("success rate: %s", successRate(m.summary)),
	}
	rightLines := []string{
		fmt.Sprintf("updated: %s", updated),
		fmt.Sprintf("showing: %d recent", len(m.votes)),
	}

	var rows []string
	for i := 0; i < 3; i++ {
		cell := func(lines []string, width int) string {
			s := ""
			if i < len(lines) {
				s = lines[i]
			}
			return padToWidth(truncateToWidth(s, width-2), width-2)
		}
		rows = append(rows, fmt.Sprintf("│ %s │ %s │ %s │",
			cell(leftLines, colWidth), cell(middleLines, colWidth), cell(rightLines, rightColWidth)))
	}

	topBorder := fmt.Sprintf("┌%s┬%s┬%s┐",
		strings.Repeat("─", colWidth),
		strings.Repeat("─", colWidth),
		strings.Repeat("─", rightColWidth))
	separator := fmt.Sprintf("├%s┴%s┴%s┤",
		strings.Repeat("─", colWidth),
		strings.Repeat("─", colWidth),
		strings.Repeat("─", rightColWidth))

	return topBorder + "\n" + strings.Join(rows, "\n") + "\n" + separator
}

// renderVotes renders the recent votes table
func (m Model) renderVotes() string {
	if m.width < 20 {
		return ""
	}
	// title, header block and footer take ~9 lines
	maxRows := m.height - 9
	if maxRows <= 0 || len(m.votes) == 0 {
		return formatInfoLine("no votes yet", m.width) + "\n" + "└" + strings.Repeat("─", m.width-2) + "┘"
	}

	now := m.now()
	var lines []string
	for i, v := range m.votes {
		if i == maxRows {
			break
		}
		prefix := fmt.Sprintf(" %s %-8s %-9s %6s ", statusSymbol(v.Status), truncateToWidth(v.Choice, 8),
			truncateToWidth(v.DestinationChain, 9), age(now.Sub(v.CreatedAt)))
		rest := m.width - 2 - runewidth.StringWidth(prefix)
		title := ""
		if rest > 0 {
			title = truncateToWidth(v.ProposalTitle, rest)
		}
		lines = append(lines, formatInfoLine(prefix+title, m.width))
	}

	bottomBorder := "└" + strings.Repeat("─", m.width-2) + "┘"
	return strings.Join(lines, "\n") + "\n" + separatorLine(m.width) + "\n" +
		formatInfoLine(" Status, Choice, Chain, Age, Proposal", m.width) + "\n" + bottomBorder
}

func statusSymbol(status models.VoteStatus) string {
	switch status {
	case models.VoteStatusExecuted:
		return "✅"
	case models.VoteStatusFailed:
		return "❌"
	default:
		return "⏳"
	}
}

func successRate(s Summary) string {
	done := s.Executed + s.Failed
	if done == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", float64(s.Executed)*100/float64(done))
}

func age(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// Source is where snapshots are read from.
type Source interface {
	CountByStatus(ctx context.Context) (map[models.VoteStatus]int64, error)
	Recent(ctx context.Context, limit int) ([]models.Vote, error)
}

// Load reads one snapshot from src.
func Load(ctx context.Context, src Source, limit int) (Snapshot, error) {
	counts, err := src.CountByStatus(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	recent, err := src.Recent(ctx, limit)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Summary: Summary{
		Pending:   counts[models.VoteStatusPending],
		Executed:  counts[models.VoteStatusExecuted],
		Failed:    counts[models.VoteStatusFailed],
		UpdatedAt: time.Now(),
	}}
	for _, v := range recent {
		snap.Votes = append(snap.Votes, VoteRow{
			ID:               v.ID,
			ProposalTitle:    v.ProposalTitle,
			Choice:           v.Choice,
			DestinationChain: v.DestinationChain,
			Status:           v.Status,
			MessageID:        v.MessageIDValue(),
			CreatedAt:        v.CreatedAt,
		})
	}
	return snap, nil
}

// Poll loads a snapshot every interval and sends it on ch until ctx is
// done, then closes ch. Failed refreshes keep the previous rows.
func Poll(ctx context.Context, src Source, interval time.Duration, limit int, ch chan<- Snapshot) {
	defer close(ch)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Snapshot
	for {
		snap, err := Load(ctx, src, limit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			snap = last
			snap.Summary.Err = err.Error()
		} else {
			last = snap
		}
		select {
		case ch <- snap:
		case <-ctx.Done():
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Run starts the TUI program
func Run(title string, updateCh <-chan Snapshot) error {
	p := tea.NewProgram(NewModel(title), tea.WithAltScreen())

	go func() {
		for snap := range updateCh {
			p.Send(UpdateMsg{Snapshot: snap})
		}
		// Channel closed, quit TUI
		p.Quit()
	}()

	_, err := p.Run()
	return err
}
