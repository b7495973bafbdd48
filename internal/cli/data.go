package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/spf13/cobra"

	"github.com/joacominatel/pgstore/internal/database"
	"github.com/joacominatel/pgstore/internal/schema"
	"github.com/joacominatel/pgstore/internal/store"
)

// LoadView is the output of load.
type LoadView struct {
	Rows  []database.Row `json:"rows"`
	Total *int64         `json:"total,omitempty"`
}

// CountView is the output of the write commands.
type CountView struct {
	RowsAffected int64 `json:"rows_affected"`
}

// IDView is the output of next-id and next-type-id.
type IDView struct {
	Next     int64  `json:"next"`
	Fallback string `json:"fallback,omitempty"`
	Skipped  int    `json:"skipped,omitempty"`
}

type loadFlags struct {
	id        string
	where     string
	limit     int
	offset    int
	columns   []string
	sortBy    string
	sortOrder string
	count     bool
	ci        bool
}

func newLoadCommand(opts *RootOptions) *cobra.Command {
	flags := &loadFlags{}

	cmd := &cobra.Command{
		Use:   "load <table>",
		Short: "Read rows from a registered table",
		Long: `Read rows from a registered table.

--where takes a JSON condition object, for example
  {"status": "active", "name": {"$like": "web"}, "cpu": {"$gte": 2},
   "$or": [{"region": "us"}, {"region": "eu"}]}
--id selects a single row by primary key; use a JSON object for composite
keys. Pagination and --count are ignored with --id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, s *session) error {
				return runLoad(ctx, s, args[0], flags)
			})
		},
	}

	cmd.Flags().StringVar(&flags.id, "id", "", "primary key value (JSON object for composite keys)")
	cmd.Flags().StringVar(&flags.where, "where", "", "JSON condition object (- reads stdin)")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "maximum rows (0 means all)")
	cmd.Flags().IntVar(&flags.offset, "offset", 0, "rows to skip")
	cmd.Flags().StringSliceVar(&flags.columns, "columns", nil, "columns to return")
	cmd.Flags().StringVar(&flags.sortBy, "sort", "", "column to order by")
	cmd.Flags().StringVar(&flags.sortOrder, "order", "asc", "sort order (asc|desc)")
	cmd.Flags().BoolVar(&flags.count, "count", false, "also count all matching rows")
	cmd.Flags().BoolVarP(&flags.ci, "ignore-case", "i", false, "compare strings case-insensitively")

	return cmd
}

func runLoad(ctx context.Context, s *session, table string, flags *loadFlags) error {
	where, err := readWhere(flags.where, s.stdin)
	if err != nil {
		return WrapExitError(ExitCommandError, "--where", err)
	}

	opts := store.LoadOptions{
		Where:           where,
		CaseInsensitive: flags.ci,
		Limit:           flags.limit,
		Offset:          flags.offset,
		Columns:         flags.columns,
		SortBy:          flags.sortBy,
		SortOrder:       flags.sortOrder,
		WithCount:       flags.count,
	}
	if flags.id != "" {
		if opts.ID, err = parseID(flags.id); err != nil {
			return WrapExitError(ExitCommandError, "--id", err)
		}
	}

	res, err := s.svc.Load(ctx, table, opts)
	if err != nil {
		return err
	}

	if opts.ID != nil {
		var row database.Row
		if len(res.Rows) > 0 {
			row = res.Rows[0]
		}
		return s.out.Success(row, func(w io.Writer) {
			if row == nil {
				fmt.Fprintln(w, StyleMuted.Render("not found"))
				return
			}
			cols := rowColumns(s.svc.Registry(), table, flags.columns, res.Rows)
			fmt.Fprintln(w, renderTable(cols, cellRows(cols, res.Rows)))
		})
	}

	view := LoadView{Rows: res.Rows, Total: res.Total}
	if view.Rows == nil {
		view.Rows = []database.Row{}
	}
	return s.out.Success(view, func(w io.Writer) {
		cols := rowColumns(s.svc.Registry(), table, flags.columns, res.Rows)
		fmt.Fprintln(w, renderTable(cols, cellRows(cols, res.Rows)))
		summary := fmt.Sprintf("%d row(s)", len(res.Rows))
		if res.Total != nil {
			summary += fmt.Sprintf(" of %d", *res.Total)
		}
		fmt.Fprintln(w, StyleMuted.Render(summary))
	})
}

func newSaveCommand(opts *RootOptions) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "save <table>",
		Short: "Insert or update rows by primary key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, s *session) error {
				rows, err := readRows(data, s.stdin)
				if err != nil {
					return WrapExitError(ExitCommandError, "--data", err)
				}
				n, err := s.svc.Save(ctx, args[0], rows)
				if err != nil {
					return err
				}
				return s.out.Success(CountView{RowsAffected: n}, func(w io.Writer) {
					fmt.Fprintf(w, "%s %d row(s)\n", StyleSuccess.Render("saved"), n)
				})
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "-", "JSON object or array of objects (- reads stdin)")
	return cmd
}

func newUpdateCommand(opts *RootOptions) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "update <table>",
		Short: "Update one row identified by its primary key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, s *session) error {
				rows, err := readRows(data, s.stdin)
				if err != nil {
					return WrapExitError(ExitCommandError, "--data", err)
				}
				if len(rows) != 1 {
					return WrapExitError(ExitCommandError, "--data must be a single object", nil)
				}
				n, err := s.svc.Update(ctx, args[0], rows[0])
				if err != nil {
					return err
				}
				return s.out.Success(CountView{RowsAffected: n}, func(w io.Writer) {
					fmt.Fprintf(w, "%s %d row(s)\n", StyleSuccess.Render("updated"), n)
				})
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "-", "JSON object holding the key and the new values (- reads stdin)")
	return cmd
}

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	var where string

	cmd := &cobra.Command{
		Use:   "delete <table>",
		Short: "Delete the rows matching a condition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, s *session) error {
				expr, err := readWhere(where, s.stdin)
				if err != nil {
					return WrapExitError(ExitCommandError, "--where", err)
				}
				n, err := s.svc.Delete(ctx, args[0], expr)
				if err != nil {
					return err
				}
				return s.out.Success(CountView{RowsAffected: n}, func(w io.Writer) {
					fmt.Fprintf(w, "%s %d row(s)\n", StyleSuccess.Render("deleted"), n)
				})
			})
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "JSON condition object, required (- reads stdin)")
	return cmd
}

func newNextIDCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next-id <table>",
		Short: "Print the next primary-key value of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, s *session) error {
				next, err := s.svc.NextID(ctx, args[0])
				if err != nil {
					return err
				}
				return s.out.Success(IDView{Next: next}, func(w io.Writer) {
					fmt.Fprintln(w, next)
				})
			})
		},
	}
}

func newNextTypeIDCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next-type-id <category>",
		Short: "Print the next id within a type category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, s *session) error {
				alloc, err := s.svc.NextTypeID(ctx, args[0])
				if err != nil {
					return err
				}
				view := IDView{Next: alloc.Next, Skipped: len(alloc.Skipped)}
				if alloc.Fallback != nil {
					view.Fallback = alloc.Fallback.Error()
					s.out.VerboseLog("aggregate failed, scanned rows instead: %v", alloc.Fallback)
				}
				return s.out.Success(view, func(w io.Writer) {
					fmt.Fprintln(w, alloc.Next)
				})
			})
		},
	}
}

// rowColumns picks the column order for a text table: the requested
// projection, else the declared columns, then any other returned keys.
func rowColumns(reg *schema.Registry, table string, projection []string, rows []database.Row) []string {
	if len(projection) > 0 {
		return projection
	}
	var cols []string
	if t, ok := reg.Table(table); ok {
		cols = slices.Clone(t.Columns)
	}
	var extra []string
	for _, row := range rows {
		for k := range row {
			if !slices.Contains(cols, k) && !slices.Contains(extra, k) {
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

func cellRows(cols []string, rows []database.Row) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(cols))
		for j, c := range cols {
			cells[j] = formatCell(row[c])
		}
		out[i] = cells
	}
	return out
}
