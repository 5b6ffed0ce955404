package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/regionkit/pkg/errors"
	rio "github.com/matzehuels/regionkit/pkg/io"
	"github.com/matzehuels/regionkit/pkg/pipeline"
	"github.com/matzehuels/regionkit/pkg/runstore"
)

// runsCommand creates the runs command for the local run store.
func (c *CLI) runsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List, show and browse stored runs",
	}

	cmd.AddCommand(c.runsListCommand())
	cmd.AddCommand(c.runsShowCommand())
	cmd.AddCommand(c.runsBrowseCommand())
	cmd.AddCommand(c.runsDeleteCommand())

	return cmd
}

func (c *CLI) runsListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := listRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				printInfo("No stored runs")
				return nil
			}
			printLine(runsTable(runs, -1).Render())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs (0 for all)")
	return cmd
}

func (c *CLI) runsShowCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:               "show <run-id>",
		Short:             "Show a stored run",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := loadRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if format != "" {
				return rio.Write(cmd.Context(), rec.Result, format, out)
			}
			showRun(rec)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "print the result in this output format instead")
	return cmd
}

func (c *CLI) runsBrowseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Pick a stored run interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runs, err := listRuns(ctx, 0)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				printInfo("No stored runs")
				return nil
			}
			final, err := tea.NewProgram(NewRunListModel(runs), tea.WithContext(ctx)).Run()
			if err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "run browser")
			}
			picked := final.(RunListModel).Selected
			if picked == nil {
				return nil
			}
			rec, err := loadRun(ctx, picked.ID)
			if err != nil {
				return err
			}
			showRun(rec)
			return nil
		},
	}
}

func (c *CLI) runsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "delete <run-id>...",
		Short:             "Delete stored runs",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore()
			if err != nil {
				return err
			}
			defer store.Close()
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return runError(id, err)
				}
				printSuccess("Deleted run %s", id)
			}
			return nil
		},
	}
}

// =============================================================================
// Store Access
// =============================================================================

func listRuns(ctx context.Context, limit int) ([]runstore.Summary, error) {
	store, err := newStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.List(ctx, limit)
}

// loadRun fetches a run by ID from the file store.
func loadRun(ctx context.Context, id string) (*runstore.Record, error) {
	store, err := newStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	rec, err := store.Get(ctx, id)
	if err != nil {
		return nil, runError(id, err)
	}
	return rec, nil
}

func runError(id string, err error) error {
	if stderrors.Is(err, runstore.ErrNotFound) {
		return errors.New(errors.ErrCodeRunNotFound, "run %q not found", id)
	}
	return err
}

// completeRunIDs completes the IDs of stored runs.
func completeRunIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	runs, err := listRuns(cmd.Context(), 0)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	var ids []string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, toComplete) {
			ids = append(ids, r.ID+"\t"+r.Name)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// =============================================================================
// Display
// =============================================================================

// runsTable renders run summaries; the row at cursor is highlighted.
func runsTable(runs []runstore.Summary, cursor int) *table.Table {
	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.ID,
			r.Name,
			r.Mode,
			strconv.Itoa(r.Zones),
			strconv.Itoa(r.Regions),
			strconv.Itoa(r.Failures),
			formatRelativeTime(r.CreatedAt),
		}
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Run", "Name", "Mode", "Zones", "Regions", "Failures", "Created").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return styleHeader
			case row == cursor:
				return lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
			case col == 6:
				return StyleDim
			}
			return lipgloss.NewStyle()
		})
}

// showRun prints the summary, stages, regions and failures of a run.
func showRun(rec *runstore.Record) {
	res := rec.Result
	printLine(StyleTitle.Render(displayName(res)))
	printKeyValue("run", rec.ID)
	printKeyValue("created", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	printKeyValue("mode", res.Mode)
	printKeyValue("duration", res.Stats.Duration.String())
	printStats(res.Stats.Zones, res.Stats.Regions, res.Stats.Unassigned, false)

	if len(res.Stats.Stages) > 0 {
		printNewline()
		printLine(stagesTable(res.Stats.Stages).Render())
	}
	if len(res.Regions) > 0 {
		printNewline()
		printLine(regionsTable(res.Regions).Render())
	}
	for _, f := range res.Failures {
		printWarning("stage %d: %s", f.Stage, f.String())
	}
}

func stagesTable(stages []pipeline.StageStat) *table.Table {
	rows := make([][]string, len(stages))
	for i, s := range stages {
		rows[i] = []string{strconv.Itoa(i + 1), s.Message, s.Strategy, strconv.Itoa(s.Changed), strconv.Itoa(s.Regions), s.Duration.String()}
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("#", "Stage", "Strategy", "Changed", "Regions", "Took").
		Rows(rows...).
		StyleFunc(headerStyle)
}

func regionsTable(regions []pipeline.RegionRow) *table.Table {
	rows := make([][]string, len(regions))
	for i, r := range regions {
		rows[i] = []string{
			swatch(r.Color) + " " + r.ID,
			fmt.Sprintf("%.0f", r.Mass),
			strconv.Itoa(r.Cores),
			strconv.Itoa(r.Zones),
			fmt.Sprintf("%.1f%%", r.SelfContainment*100),
		}
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Region", "Mass", "Cores", "Zones", "Self-containment").
		Rows(rows...).
		StyleFunc(headerStyle)
}

func headerStyle(row, col int) lipgloss.Style {
	if row == table.HeaderRow {
		return styleHeader
	}
	return lipgloss.NewStyle()
}
