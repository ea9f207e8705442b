package report

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// WriteSummary prints the cheapest offer per product followed by the
// shopping list grouped by store.
func WriteSummary(w io.Writer, t Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "PRODUCT\tCHEAPEST\tSTORE\tLINK\n")
	for _, row := range t.Rows {
		if row.Best == nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\n", row.Product, Unavailable)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s SAR\t%s\t%s\n", row.Product, row.Best.Price.StringFixed(2), row.Best.Store, row.Best.Link)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	g := GroupByCheapestStore(t)
	for _, group := range g.Groups {
		fmt.Fprintf(w, "\n%s (%d items, total %s SAR)\n", group.Store, len(group.Items), group.Total.StringFixed(2))
		for _, item := range group.Items {
			fmt.Fprintf(w, "  - %s: %s SAR\n", item.Product, item.Price.StringFixed(2))
		}
	}
	if len(g.Unavailable) > 0 {
		fmt.Fprintf(w, "\nunavailable (%d)\n", len(g.Unavailable))
		for _, p := range g.Unavailable {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	}

	_, err := fmt.Fprintf(w, "\ngrand total: %s SAR\n", g.Total.StringFixed(2))
	return err
}
