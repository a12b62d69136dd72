package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"hive/internal/client"
	"hive/internal/domain"

	"github.com/spf13/cobra"
)

// queryFlags are the table descriptor flags shared by list and export.
type queryFlags struct {
	search   string
	page     int
	pageSize int
	sort     string
	dir      string
	filters  map[string]string
	ids      string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.search, "search", "", "Free text search.")
	cmd.Flags().IntVar(&f.page, "page", 1, "Page number.")
	cmd.Flags().IntVar(&f.pageSize, "page-size", domain.DefaultPageSize, "Rows per page.")
	cmd.Flags().StringVar(&f.sort, "sort", "", "Sort column.")
	cmd.Flags().StringVar(&f.dir, "dir", domain.SortAsc, "Sort direction, asc or desc.")
	cmd.Flags().StringToStringVar(&f.filters, "filter", nil, "Filters as key=value (status, role, date_from, date_to, scope).")
	cmd.Flags().StringVar(&f.ids, "ids", "", "Comma separated ids; only these records are used.")
}

func (f *queryFlags) query() (domain.Query, []int64, error) {
	ids, err := domain.ParseIDs(f.ids)
	if err != nil {
		return domain.Query{}, nil, err
	}
	q := domain.Query{
		Search:    strings.TrimSpace(f.search),
		SortField: f.sort,
		SortDir:   strings.ToLower(f.dir),
		Page:      f.page,
		PageSize:  f.pageSize,
	}
	if len(f.filters) > 0 {
		q.Filters = make(map[string]string, len(f.filters))
		for k, v := range f.filters {
			q.Filters[k] = v
		}
	}
	return q, ids, q.Validate(domain.MaxPageSize)
}

func NewListCommand(g *globalFlags) *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:       "list users|roles|permissions",
		Short:     "Print one page of a resource",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{domain.ResourceUsers, domain.ResourceRoles, domain.ResourcePermissions},
		RunE: func(cmd *cobra.Command, args []string) error {
			q, ids, err := qf.query()
			if err != nil {
				return err
			}
			q.IDs = ids
			c, err := g.client()
			if err != nil {
				return err
			}
			snap, err := loadPage(cmd.Context(), c, args[0], q)
			if err != nil {
				return err
			}
			return printPage(cmd.OutOrStdout(), snap)
		},
	}
	qf.register(cmd)
	return cmd
}

// loadPage drives a table controller for a single fetch. Explicit ids go
// straight to the client since the controller never holds them.
func loadPage(ctx context.Context, c *client.Client, resource string, q domain.Query) (client.Snapshot, error) {
	if q.HasExplicitIDs() {
		res, err := c.List(ctx, resource, q)
		if err != nil {
			return client.Snapshot{}, err
		}
		return client.Snapshot{Query: q, Rows: res.Rows, Meta: res.Meta}, nil
	}
	tc := client.NewTableController(ctx, c, resource, client.WithInitialQuery(q))
	defer tc.Close()
	tc.Load()
	tc.Wait()
	snap := tc.Snapshot()
	return snap, snap.Err
}

func printPage(w io.Writer, snap client.Snapshot) error {
	var cols []string
	if len(snap.Rows) > 0 {
		for k := range snap.Rows[0] {
			if k != "serial_number" {
				cols = append(cols, k)
			}
		}
		sort.Strings(cols)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "#")
	for _, c := range cols {
		fmt.Fprintf(tw, "\t%s", strings.ToUpper(c))
	}
	fmt.Fprintln(tw)
	for _, r := range snap.Rows {
		fmt.Fprintf(tw, "%d", r.Serial())
		for _, c := range cols {
			fmt.Fprintf(tw, "\t%v", display(r[c]))
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\npage %d of %d, %d total\n", snap.Meta.Page, snap.Meta.LastPage, snap.Meta.Total)
	return err
}

func display(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}
