package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var refreshSeconds int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live-updating table of active tunnels and monitor status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if refreshSeconds <= 0 {
				refreshSeconds = 2
			}
			m := newWatchModel(newAPIClient(serverAddr), refreshSeconds)
			p := tea.NewProgram(m, tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}
	cmd.Flags().IntVar(&refreshSeconds, "interval", 2, "poll interval in seconds")
	return cmd
}

type tickMsg time.Time

type snapshotMsg struct {
	tunnels []tunnelView
	status  monitorStatusView
	err     error
}

var tableColumns = []table.Column{
	{Title: "ID", Width: 10},
	{Title: "FILE", Width: 28},
	{Title: "STATUS", Width: 12},
	{Title: "SIZE", Width: 12},
	{Title: "SERVED", Width: 12},
	{Title: "CONN", Width: 5},
}

// watchModel is the Bubble Tea model backing `dropwirectl watch`: a
// polling bubbles/table.Model of active tunnels plus a monitor status
// strip.
type watchModel struct {
	client   *apiClient
	interval time.Duration
	table    table.Model

	status   monitorStatusView
	lastErr  error
	quitting bool
}

func newWatchModel(client *apiClient, refreshSeconds int) watchModel {
	t := table.New(
		table.WithColumns(tableColumns),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	style := table.DefaultStyles()
	style.Header = style.Header.Bold(true).Foreground(lipgloss.Color("39"))
	style.Selected = style.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(style)

	return watchModel{client: client, interval: time.Duration(refreshSeconds) * time.Second, table: t}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.poll(), tickCmd(m.interval))
}

func (m watchModel) poll() tea.Cmd {
	return func() tea.Msg {
		tunnels, err := m.client.listTunnels()
		if err != nil {
			return snapshotMsg{err: err}
		}
		status, err := m.client.monitorStatus()
		if err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{tunnels: tunnels, status: status}
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func rowsFromTunnels(tunnels []tunnelView) []table.Row {
	rows := make([]table.Row, 0, len(tunnels))
	for _, t := range tunnels {
		rows = append(rows, table.Row{
			t.TunnelID,
			truncate(t.FilePath, 28),
			t.Status,
			fmt.Sprintf("%d", t.FileSize),
			fmt.Sprintf("%d", t.BytesServed),
			fmt.Sprintf("%d", t.ActiveConnections),
		})
	}
	return rows
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tea.Batch(m.poll(), tickCmd(m.interval))
	case snapshotMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.lastErr = nil
		m.status = msg.status
		m.table.SetRows(rowsFromTunnels(msg.tunnels))
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("dropwire tunnels")

	statusLine := fmt.Sprintf(
		"active=%d downloads=%d store=%v monitor=%v parse_errors=%d uptime=%s",
		m.status.ActiveTunnelsCount, m.status.ActiveDownloads, m.status.StateStoreConnected,
		m.status.MonitorActive, m.status.ParseErrors, m.status.Uptime,
	)

	errLine := ""
	if m.lastErr != nil {
		errLine = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Render("error: " + m.lastErr.Error())
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		statusLine,
		"",
		m.table.View(),
		errLine,
		"q to quit",
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
