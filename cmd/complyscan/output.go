package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/urfave/cli/v2"

	"github.com/j-veylop/complyscan/internal/app"
	"github.com/j-veylop/complyscan/internal/db"
	"github.com/j-veylop/complyscan/internal/scanner"
	"github.com/j-veylop/complyscan/internal/services"
	"github.com/j-veylop/complyscan/internal/ui/components"
	"github.com/j-veylop/complyscan/internal/ui/styles"
)

// resolveLimit bounds how many scans an id prefix is matched against.
const resolveLimit = 500

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List stored scans, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   20,
				Usage:   "Maximum number of scans to list",
			},
		},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			list, err := s.manager.ListScans(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			if len(list) == 0 {
				_, err := fmt.Fprintln(c.App.Writer, "No scans stored yet.")
				return err
			}

			t := newTable("ID", "STARTED", "STATUS", "MODE", "FILES", "BUDGET", "PROJECT")
			for _, scan := range list {
				t.Row(
					shortID(scan.ID),
					scan.StartedAt.Local().Format("2006-01-02 15:04"),
					statusText(string(scan.Status), string(scan.AbortReason)),
					string(scan.Mode),
					fmt.Sprintf("%d/%d", scan.FilesScanned, scan.FilesTotal),
					formatBudget(scan.CostLimit),
					components.TruncatePath(scan.ProjectPath, 48),
				)
			}
			_, err = fmt.Fprintln(c.App.Writer, t.String())
			return err
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a stored scan with its findings and spend",
		ArgsUsage: "SCAN_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("show needs exactly one SCAN_ID", 2)
			}
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			scanID, err := resolveScanID(c.Context, s.manager, c.Args().First())
			if err != nil {
				return err
			}
			detail, err := s.manager.GetScanDetail(c.Context, scanID)
			if err != nil {
				return err
			}
			return printDetail(c.App.Writer, detail)
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a stored scan with its findings",
		ArgsUsage: "SCAN_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("delete needs exactly one SCAN_ID", 2)
			}
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			scanID, err := resolveScanID(c.Context, s.manager, c.Args().First())
			if err != nil {
				return err
			}
			if err := s.manager.DeleteScan(c.Context, scanID); err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.App.Writer, "Deleted scan %s\n", scanID)
			return err
		},
	}
}

// resolveScanID accepts a full scan id or a unique prefix of one.
func resolveScanID(ctx context.Context, mgr *services.Manager, arg string) (string, error) {
	if _, err := mgr.Database().GetScan(ctx, arg); err == nil {
		return arg, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return "", err
	}

	list, err := mgr.ListScans(ctx, resolveLimit)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, scan := range list {
		if strings.HasPrefix(scan.ID, arg) {
			matches = append(matches, scan.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", cli.Exit(fmt.Sprintf("no scan matches %q", arg), 1)
	case 1:
		return matches[0], nil
	default:
		return "", cli.Exit(fmt.Sprintf("%q matches %d scans", arg, len(matches)), 1)
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.Subtle)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

func printResults(w io.Writer, results []*scanner.Result) error {
	t := newTable("ID", "STATUS", "FILES", "VIOLATIONS", "LLM CALLS", "COST", "PROJECT")
	for _, res := range results {
		if res == nil {
			continue
		}
		t.Row(
			shortID(res.Scan.ID),
			statusText(string(res.Scan.Status), string(res.Scan.AbortReason)),
			fmt.Sprintf("%d/%d", res.Scan.FilesScanned, res.Scan.FilesTotal),
			fmt.Sprintf("%d", len(res.Violations)),
			fmt.Sprintf("%d", res.PaidCalls),
			fmt.Sprintf("$%.4f", res.Cost.TotalCost),
			components.TruncatePath(res.Scan.ProjectPath, 48),
		)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func printProgress(w io.Writer, progress []app.ScanProgress) error {
	if len(progress) == 0 {
		return nil
	}
	t := newTable("ID", "STATUS", "FILES", "VIOLATIONS", "COST", "PROJECT")
	for _, p := range progress {
		t.Row(
			shortID(p.ScanID),
			statusText(string(p.Status), string(p.AbortReason)),
			fmt.Sprintf("%d/%d", p.FilesDone, p.FilesTotal),
			fmt.Sprintf("%d", p.Violations),
			fmt.Sprintf("$%.4f", p.Cost),
			components.TruncatePath(p.ProjectPath, 48),
		)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func printDetail(w io.Writer, d *services.ScanDetail) error {
	scan := d.Scan
	var b strings.Builder

	fmt.Fprintf(&b, "Scan     %s\n", scan.ID)
	fmt.Fprintf(&b, "Project  %s\n", scan.ProjectPath)
	fmt.Fprintf(&b, "Status   %s\n", statusText(string(scan.Status), string(scan.AbortReason)))
	fmt.Fprintf(&b, "Mode     %s\n", scan.Mode)
	fmt.Fprintf(&b, "Files    %d/%d\n", scan.FilesScanned, scan.FilesTotal)
	fmt.Fprintf(&b, "Started  %s\n", scan.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if scan.Error != "" {
		fmt.Fprintf(&b, "Error    %s\n", scan.Error)
	}
	if d.Cost != nil {
		fmt.Fprintf(&b, "Spend    $%.4f of %s (%d files analyzed, %d tokens)\n",
			d.Cost.TotalCost, formatBudget(scan.CostLimit), d.Cost.FilesAnalyzed, d.Cost.Usage.Total())
	} else {
		fmt.Fprintf(&b, "Spend    $0.0000 of %s\n", formatBudget(scan.CostLimit))
	}
	b.WriteString("\n")

	if len(d.Violations) == 0 {
		b.WriteString("No violations found.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	t := newTable("ID", "SEVERITY", "CONTROL", "METHOD", "STATUS", "LOCATION", "DESCRIPTION")
	for _, v := range d.Violations {
		t.Row(
			fmt.Sprintf("%d", v.ID),
			v.Severity.String(),
			v.ControlID,
			string(v.Method),
			string(v.Status),
			fmt.Sprintf("%s:%d", components.TruncatePath(v.FilePath, 40), v.Line),
			truncate(v.Description, 60),
		)
	}
	b.WriteString(t.String())
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func statusText(status, reason string) string {
	if reason == "" {
		return status
	}
	return status + " (" + reason + ")"
}

func formatBudget(limit float64) string {
	if limit <= 0 {
		return "none"
	}
	return fmt.Sprintf("$%.2f", limit)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
