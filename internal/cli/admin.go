package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
)

// StatusView is the output of status.
type StatusView struct {
	State         string            `json:"state"`
	Ready         bool              `json:"ready"`
	Target        string            `json:"target,omitempty"`
	Session       string            `json:"session"`
	Tables        []string          `json:"tables"`
	MissingTables []string          `json:"missing_tables,omitempty"`
	FailedProbes  map[string]string `json:"failed_probes,omitempty"`
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Connect, warm up the registered tables and report pool state",
		Long: `Connect, warm up the registered tables and report pool state.

Registered tables absent from the live schema are listed as missing;
run ensure to create them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, s *session) error {
				missing, err := s.svc.MissingTables(ctx)
				if err != nil {
					return err
				}
				view := StatusView{
					State:         s.svc.State().String(),
					Ready:         s.svc.IsReady(),
					Target:        s.svc.Target(),
					Session:       s.svc.Session(),
					Tables:        s.svc.Registry().Names(),
					MissingTables: missing,
				}
				for _, p := range s.warmup.Failed() {
					if view.FailedProbes == nil {
						view.FailedProbes = make(map[string]string)
					}
					view.FailedProbes[p.Table] = p.Err.Error()
				}

				return s.out.Success(view, func(w io.Writer) {
					header := fmt.Sprintf("%s %s", StyleTitle.Render("pool"), StyleSuccess.Render(view.State))
					if view.Target != "" {
						header += " " + view.Target
					}
					fmt.Fprintln(w, header)
					fmt.Fprintln(w, StyleMuted.Render("session "+view.Session))
					for _, t := range view.Tables {
						switch msg, failed := view.FailedProbes[t]; {
						case slices.Contains(view.MissingTables, t):
							fmt.Fprintf(w, "  %s %s\n", StyleWarning.Render(t), StyleMuted.Render("missing"))
						case failed:
							fmt.Fprintf(w, "  %s %s\n", StyleWarning.Render(t), StyleMuted.Render(msg))
						default:
							fmt.Fprintf(w, "  %s\n", t)
						}
					}
				})
			})
		},
	}
}

// EnsureView is the output of ensure.
type EnsureView struct {
	Created      []string         `json:"created"`
	ColumnsAdded int              `json:"columns_added"`
	Failed       []ColumnFailView `json:"failed,omitempty"`
}

// ColumnFailView is one column that could not be added.
type ColumnFailView struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Type   string `json:"type"`
	Error  string `json:"error"`
}

func newEnsureCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Create missing tables and add missing columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, s *session) error {
				report, err := s.svc.EnsureTables(ctx)
				if err != nil {
					return err
				}

				view := EnsureView{Created: report.Created, ColumnsAdded: report.ColumnsAdded()}
				if view.Created == nil {
					view.Created = []string{}
				}
				for _, f := range report.Failed() {
					view.Failed = append(view.Failed, ColumnFailView{Table: f.Table, Column: f.Column, Type: f.Type, Error: f.Err.Error()})
				}

				if err := s.out.Success(view, func(w io.Writer) {
					for _, t := range view.Created {
						fmt.Fprintf(w, "%s %s\n", StyleSuccess.Render("created"), t)
					}
					for _, c := range report.Columns {
						if c.Err != nil {
							fmt.Fprintf(w, "%s %s.%s %s\n", StyleError.Render("failed"), c.Table, c.Column, StyleMuted.Render(c.Err.Error()))
							continue
						}
						fmt.Fprintf(w, "%s %s.%s %s\n", StyleSuccess.Render("added"), c.Table, c.Column, StyleMuted.Render(c.Type))
					}
					if !report.Changed() {
						fmt.Fprintln(w, StyleMuted.Render("schema up to date"))
					}
				}); err != nil {
					return err
				}
				if len(view.Failed) > 0 {
					return WrapExitError(ExitFailure, fmt.Sprintf("%d column(s) could not be added", len(view.Failed)), nil)
				}
				return nil
			})
		},
	}
}

func newDescribeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Show the live columns and approximate row count of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, s *session) error {
				info, err := s.svc.Describe(ctx, args[0])
				if err != nil {
					return err
				}
				return s.out.Success(info, func(w io.Writer) {
					fmt.Fprintf(w, "%s %s\n", StyleTitle.Render(info.Name), StyleMuted.Render("~"+strconv.FormatInt(info.RowCount, 10)+" rows"))
					rows := make([][]string, len(info.Columns))
					for i, c := range info.Columns {
						key := ""
						if c.IsPrimary {
							key = "PK"
						}
						null := "NOT NULL"
						if c.IsNullable {
							null = "NULL"
						}
						rows[i] = []string{c.Name, c.DataType, null, c.Default, key}
					}
					fmt.Fprintln(w, renderTable([]string{"column", "type", "null", "default", "key"}, rows))
				})
			})
		},
	}
}

// ExecView is the output of exec.
type ExecView struct {
	Columns      []string `json:"columns"`
	Rows         []any    `json:"rows"`
	RowsAffected int64    `json:"rows_affected"`
}

func newExecCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql> [args...]",
		Short: "Run a SQL statement with positional arguments",
		Long: `Run a SQL statement. Arguments bind to $1, $2, ... in order; words that
read as integers, floats, true, false or null are passed as such.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make([]any, len(args)-1)
			for i, a := range args[1:] {
				params[i] = parseScalar(a)
			}

			return opts.withService(cmd, func(ctx context.Context, s *session) error {
				res, err := s.svc.Execute(ctx, args[0], params...)
				if err != nil {
					return err
				}
				view := ExecView{Columns: res.Columns, Rows: make([]any, len(res.Rows)), RowsAffected: res.RowsAffected}
				if view.Columns == nil {
					view.Columns = []string{}
				}
				for i, r := range res.Rows {
					view.Rows[i] = r
				}
				return s.out.Success(view, func(w io.Writer) {
					if len(res.Columns) > 0 {
						fmt.Fprintln(w, renderTable(res.Columns, cellRows(res.Columns, res.Rows)))
					}
					fmt.Fprintln(w, StyleMuted.Render(fmt.Sprintf("%d row(s) affected in %s", res.RowsAffected, res.Duration)))
				})
			})
		},
	}
}
