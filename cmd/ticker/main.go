package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/betfold/papertrade/internal/market"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	upStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2"))

	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type tickMsg time.Time

type pricesMsg struct {
	prices []market.Price
	err    error
}

type model struct {
	svc      *market.Service
	interval time.Duration

	prices    []market.Price
	err       error
	updatedAt time.Time
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetch, m.tick())
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) fetch() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	prices, err := m.svc.Prices(ctx)
	return pricesMsg{prices: prices, err: err}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetch
		}
	case tickMsg:
		return m, tea.Batch(m.fetch, m.tick())
	case pricesMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.prices = msg.prices
			m.updatedAt = time.Now()
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("papertrade ticker"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(downStyle.Render(fmt.Sprintf("feed error: %v", m.err)))
		b.WriteString("\n\n")
	}

	if len(m.prices) == 0 {
		b.WriteString(dimStyle.Render("waiting for prices..."))
		b.WriteString("\n")
	} else {
		rows := make([]string, 0, len(m.prices)+1)
		rows = append(rows, fmt.Sprintf("%-10s %14s %10s %14s %14s",
			"SYMBOL", "PRICE", "24H%", "HIGH", "LOW"))
		for _, p := range m.prices {
			style := upStyle
			if strings.HasPrefix(p.PriceChangePercent, "-") {
				style = downStyle
			}
			rows = append(rows, style.Render(fmt.Sprintf("%-10s %14s %9s%% %14s %14s",
				p.Symbol, p.Price, p.PriceChangePercent, p.HighPrice, p.LowPrice)))
		}
		b.WriteString(borderStyle.Render(strings.Join(rows, "\n")))
		b.WriteString("\n")
	}

	if !m.updatedAt.IsZero() {
		b.WriteString(dimStyle.Render(fmt.Sprintf("updated %s", m.updatedAt.Format("15:04:05"))))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("r refresh · q quit"))
	b.WriteString("\n")
	return b.String()
}

func main() {
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		baseURL  = flag.String("binance-url", getenv("PAPERTRADE_BINANCE_URL", "https://api.binance.com"), "exchange REST base URL")
		interval = flag.Duration("interval", 5*time.Second, "refresh interval")
	)
	flag.Parse()

	svc := market.NewService(*baseURL, 0)
	m := model{svc: svc, interval: *interval}

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ticker failed: %v\n", err)
		os.Exit(1)
	}
}
