package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/zeromv/zeromv/pkg/config"
	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/history"
)

// historyCommand lists recent runs.
func (c *CLI) historyCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New(errors.ErrCodeConfig, "limit must be positive, got %d", limit)
			}
			recs, err := c.listHistory(cmd, limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				printInfo("No runs recorded yet")
				printNextStep("Start one", appName+" run -i photo.png")
				return nil
			}
			fmt.Println(historyTable(recs, -1))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "maximum number of runs to show")
	return cmd
}

// listHistory opens the configured store and returns recent records.
func (c *CLI) listHistory(cmd *cobra.Command, limit int) ([]history.Record, error) {
	cfg, err := c.loadConfig(cmd, config.Layer{})
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	store, err := history.Open(ctx, historyOptions(cfg))
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return store.List(ctx, limit)
}

// historyTable renders records as a table, highlighting row cursor.
// A negative cursor highlights nothing.
func historyTable(recs []history.Record, cursor int) string {
	rows := make([][]string, 0, len(recs))
	for i, r := range recs {
		mark := "  "
		if i == cursor {
			mark = "▸ "
		}
		status := fmt.Sprintf("%d tiles", len(r.Tiles))
		if r.Fallback {
			status = "fallback"
		}
		cached := ""
		if r.CacheHit {
			cached = iconCached
		}
		rows = append(rows, []string{
			mark,
			r.BaseName,
			status,
			r.Device,
			cached,
			formatRelativeTime(r.CreatedAt),
			r.RunDir,
		})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Name", "Result", "Device", "Cache", "When", "Directory").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if row < 0 || row >= len(recs) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if col == 3 || col == 5 {
				base = base.Foreground(colorDim)
			}
			if recs[row].Fallback {
				base = base.Foreground(colorYellow)
			}
			if row == cursor {
				return base.Foreground(colorCyan).Bold(true)
			}
			return base
		}).
		Render()
}

func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
