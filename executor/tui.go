package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type model struct {
	mode       string
	runID      string
	updates    <-chan progressUpdate
	startTime  time.Time
	ticks      int64
	episodes   int64
	completed  int
	bestEver   float64
	topScore   int32
	last       *progressUpdate
	recentRuns []string
}

func initialModel(mode, runID string, updates <-chan progressUpdate) model {
	return model{
		mode:      mode,
		runID:     runID,
		updates:   updates,
		startTime: time.Now(),
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForUpdate(updates <-chan progressUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return tea.Quit()
		}
		return u
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.ticks = totalTicks.Load()
		m.episodes = totalEpisodes.Load()
		return m, tickCmd()
	case progressUpdate:
		m.completed++
		m.bestEver = max(m.bestEver, msg.BestEver)
		m.topScore = max(m.topScore, msg.TopScore)
		m.last = &msg
		line := fmt.Sprintf("#%d best=%.2f mean=%.2f top=%d ticks=%d in %s",
			msg.Generation, msg.Stats.Best, msg.Stats.Mean, msg.TopScore, msg.Ticks, msg.Elapsed.Round(time.Millisecond))
		m.recentRuns = append([]string{line}, m.recentRuns...)
		if len(m.recentRuns) > 10 {
			m.recentRuns = m.recentRuns[:10]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	ticksPerSec, episodesPerSec := 0.0, 0.0
	if duration.Seconds() >= 1 {
		ticksPerSec = float64(m.ticks) / duration.Seconds()
		episodesPerSec = float64(m.episodes) / duration.Seconds()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Run:            %s (%s)\n", m.runID, m.mode)
	fmt.Fprintf(&sb, "Completed:      %d\n", m.completed)
	fmt.Fprintf(&sb, "Episodes:       %d\n", m.episodes)
	fmt.Fprintf(&sb, "Ticks:          %d\n", m.ticks)
	fmt.Fprintf(&sb, "Duration:       %s\n", duration.Round(time.Second))
	fmt.Fprintf(&sb, "Ticks/Sec:      %.2f\n", ticksPerSec)
	fmt.Fprintf(&sb, "Episodes/Sec:   %.2f\n", episodesPerSec)
	fmt.Fprintf(&sb, "Best Fitness:   %.2f\n", m.bestEver)
	fmt.Fprintf(&sb, "Top Score:      %d\n", m.topScore)
	if m.last != nil {
		st := m.last.Stats
		fmt.Fprintf(&sb, "Last:           best=%.2f mean=%.2f median=%.2f worst=%.2f\n", st.Best, st.Mean, st.Median, st.Worst)
	}

	sb.WriteString("\nRecent:\n")
	for _, g := range m.recentRuns {
		sb.WriteString(g + "\n")
	}
	sb.WriteString("\nPress q to quit.\n")
	return sb.String()
}
