package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Pending lists the requests currently registered in the dedup cache.
// "pending clear" drops them all.
func (a *App) Pending(ctx context.Context, args []string) error {
	if len(args) > 0 && args[0] == "clear" {
		n := a.requests.CancelAll()
		fmt.Fprintf(a.out, "Cancelled %d pending request(s)\n", n)
		return nil
	}

	entries := a.requests.DebugInfo()
	st := a.requests.Stats()
	fmt.Fprintf(a.out, "%d pending (started %d, coalesced %d, evicted %d, cancelled %d)\n",
		len(entries), st.Started, st.Coalesced, st.Evicted, st.Cancelled)
	for _, e := range entries {
		fmt.Fprintf(a.out, "  %-8s %s\n", e.Age.Truncate(time.Millisecond), e.Key)
	}
	return nil
}

// Metrics prints every gauge and counter in the app's registry.
func (a *App) Metrics(ctx context.Context) error {
	families, err := a.metrics.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			default:
				continue
			}

			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			fmt.Fprintf(a.out, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), v)
		}
	}
	return nil
}
