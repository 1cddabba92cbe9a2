package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zeromv/zeromv/pkg/history"
)

// =============================================================================
// RunListModel - Interactive run selection
// =============================================================================

// RunListModel is the bubbletea model for picking a past run.
type RunListModel struct {
	Runs     []history.Record
	Cursor   int
	Selected *history.Record
	Height   int
	Offset   int
}

// NewRunListModel creates a new run list model.
func NewRunListModel(runs []history.Record) RunListModel {
	return RunListModel{Runs: runs, Height: 15}
}

func (m RunListModel) Init() tea.Cmd {
	return nil
}

func (m RunListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Runs)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Runs) == 0 {
				return m, tea.Quit
			}
			rec := m.Runs[m.Cursor]
			m.Selected = &rec
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(5, msg.Height-8)
	}
	return m, nil
}

func (m RunListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Run"))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Runs))
	b.WriteString(historyTable(m.Runs[m.Offset:end], m.Cursor-m.Offset))
	b.WriteString("\n\n")
	b.WriteString(StyleDim.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Runs))))

	return b.String()
}

// browseCommand lets the user pick a past run and prints its artifacts.
func (c *CLI) browseCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Pick a past run interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := c.listHistory(cmd, limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				printInfo("No runs recorded yet")
				return nil
			}

			final, err := tea.NewProgram(NewRunListModel(recs), tea.WithContext(cmd.Context())).Run()
			if err != nil {
				return err
			}
			m, ok := final.(RunListModel)
			if !ok || m.Selected == nil {
				return nil
			}
			printRecord(m.Selected)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of runs to load")
	return cmd
}

// printRecord prints the artifacts of a recorded run.
func printRecord(rec *history.Record) {
	printKeyValue("Run", rec.ID)
	printKeyValue("Input", rec.Input)
	printKeyValue("Model", fmt.Sprintf("%s, %d steps", rec.ModelID, rec.Steps))
	printKeyValue("Directory", rec.RunDir)
	for _, t := range rec.Tiles {
		printFile(filepath.Join(rec.RunDir, t))
	}
	if rec.Sheet != "" {
		printKeyValue("Contact sheet", filepath.Join(rec.RunDir, rec.Sheet))
	}
	if rec.Manifest != "" {
		printKeyValue("Manifest", rec.Manifest)
	}
}
