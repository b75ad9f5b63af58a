package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"
)

// Config holds configuration for the TUI monitor.
type Config struct {
	RefreshRate int
	CompactMode bool
	APIKey      string
}

// Model represents the TUI application state.
type Model struct {
	config     Config
	status     *EngineStatus
	loading    bool
	error      error
	width      int
	height     int
	lastUpdate time.Time
}

// EngineStatus mirrors the /api/v1/status payload.
type EngineStatus struct {
	Status     string          `json:"status"`
	Uptime     string          `json:"uptime"`
	Pipeline   *PipelineCounts `json:"pipeline,omitempty"`
	Risk       *RiskState      `json:"risk,omitempty"`
	QueueDepth int             `json:"queue_depth"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PipelineCounts are the aggregate pipeline counters.
type PipelineCounts struct {
	Detected       uint64 `json:"detected"`
	Deduplicated   uint64 `json:"deduplicated"`
	Validated      uint64 `json:"validated"`
	Simulated      uint64 `json:"simulated"`
	Executed       uint64 `json:"executed"`
	Failed         uint64 `json:"failed"`
	BlockedByRisk  uint64 `json:"blockedByRisk"`
	BlockedByGas   uint64 `json:"blockedByGas"`
	Superseded     uint64 `json:"superseded"`
	TotalProfitWei string `json:"totalProfitWei"`
}

// RiskState is the circuit breaker view.
type RiskState struct {
	CircuitBreakerActive bool    `json:"circuitBreakerActive"`
	ConsecutiveFailures  int     `json:"consecutiveFailures"`
	Drawdown             float64 `json:"drawdown"`
	DailyLoss            string  `json:"dailyLoss"`
}

// tickMsg is sent when the refresh timer ticks
type tickMsg time.Time

// statusMsg is sent when status is updated
type statusMsg *EngineStatus

// errorMsg is sent when an error occurs
type errorMsg error

// StartMonitor starts the TUI monitor application.
func StartMonitor(config Config) error {
	p := tea.NewProgram(initialModel(config), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func initialModel(config Config) Model {
	return Model{
		config:  config,
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchStatus(m.config.APIKey),
		tickCmd(m.config.RefreshRate),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			// Manual refresh
			return m, fetchStatus(m.config.APIKey)
		}

	case tickMsg:
		return m, tea.Batch(
			fetchStatus(m.config.APIKey),
			tickCmd(m.config.RefreshRate),
		)

	case statusMsg:
		m.status = msg
		m.loading = false
		m.error = nil
		m.lastUpdate = time.Now()
		return m, nil

	case errorMsg:
		m.error = msg
		m.loading = false
		return m, nil
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#1D7D4F")).
		Padding(0, 1)

	contentStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#2DAD6E")).
		Padding(1, 2)

	var content string

	title := titleStyle.Width(m.width - 2).Render("Arbitrage Engine Monitor")
	content += title + "\n\n"

	instructions := "Press 'r' to refresh manually, 'q' to quit"
	content += lipgloss.NewStyle().Faint(true).Render(instructions) + "\n\n"

	if m.error != nil {
		errorStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)
		content += errorStyle.Render(fmt.Sprintf("Error: %v", m.error)) + "\n"
	} else if m.loading {
		content += "Loading status...\n"
	} else if m.status != nil {
		content += m.renderStatus()
	}

	if !m.lastUpdate.IsZero() {
		updateTime := fmt.Sprintf("Last updated: %s", m.lastUpdate.Format("15:04:05"))
		content += "\n" + lipgloss.NewStyle().Faint(true).Render(updateTime)
	}

	return contentStyle.Width(m.width - 4).Render(content)
}

func (m Model) renderStatus() string {
	var content string

	statusColor := lipgloss.Color("#FF0000")
	switch m.status.Status {
	case "running":
		statusColor = lipgloss.Color("#00FF00")
	case "circuit_breaker":
		statusColor = lipgloss.Color("#FFFF00")
	}

	statusStyle := lipgloss.NewStyle().Foreground(statusColor).Bold(true)
	content += fmt.Sprintf("Status: %s\n", statusStyle.Render(m.status.Status))

	if m.status.Uptime != "" {
		content += fmt.Sprintf("Uptime: %s\n", m.status.Uptime)
	}
	content += fmt.Sprintf("Queue Depth: %d\n", m.status.QueueDepth)

	if p := m.status.Pipeline; p != nil {
		content += "\nPipeline\n"
		content += "────────\n"
		content += fmt.Sprintf("Detected:       %d\n", p.Detected)
		content += fmt.Sprintf("Deduplicated:   %d\n", p.Deduplicated)
		if !m.config.CompactMode {
			content += fmt.Sprintf("Validated:      %d\n", p.Validated)
			content += fmt.Sprintf("Simulated:      %d\n", p.Simulated)
		}
		content += fmt.Sprintf("Executed:       %d\n", p.Executed)
		content += fmt.Sprintf("Failed:         %d\n", p.Failed)
		if !m.config.CompactMode {
			content += fmt.Sprintf("Blocked (risk): %d\n", p.BlockedByRisk)
			content += fmt.Sprintf("Blocked (gas):  %d\n", p.BlockedByGas)
			content += fmt.Sprintf("Superseded:     %d\n", p.Superseded)
		}
		content += fmt.Sprintf("Total Profit:   %s wei\n", p.TotalProfitWei)
	}

	if r := m.status.Risk; r != nil {
		content += "\nRisk\n"
		content += "────\n"
		breaker := "inactive"
		breakerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
		if r.CircuitBreakerActive {
			breaker = "ACTIVE"
			breakerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
		}
		content += fmt.Sprintf("Circuit Breaker:      %s\n", breakerStyle.Render(breaker))
		content += fmt.Sprintf("Consecutive Failures: %d\n", r.ConsecutiveFailures)
		content += fmt.Sprintf("Drawdown:             %.2f%%\n", r.Drawdown*100)
	}

	return content
}

func fetchStatus(apiKey string) tea.Cmd {
	return func() tea.Msg {
		status, err := getEngineStatus(apiKey)
		if err != nil {
			return errorMsg(err)
		}
		return statusMsg(status)
	}
}

func tickCmd(refreshRate int) tea.Cmd {
	return tea.Tick(time.Duration(refreshRate)*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func getEngineStatus(apiKey string) (*EngineStatus, error) {
	apiHost := viper.GetString("server.host")
	if apiHost == "" || apiHost == "0.0.0.0" {
		apiHost = "localhost"
	}
	apiPort := viper.GetInt("server.port")
	if apiPort == 0 {
		apiPort = 8080
	}

	url := fmt.Sprintf("http://%s:%d/api/v1/status", apiHost, apiPort)

	client := &http.Client{Timeout: 5 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		// Engine might not be running
		return &EngineStatus{
			Status:    "offline",
			UpdatedAt: time.Now(),
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &EngineStatus{
			Status:    "error",
			UpdatedAt: time.Now(),
		}, nil
	}

	var status EngineStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &status, nil
}
