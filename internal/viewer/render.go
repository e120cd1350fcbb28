package viewer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/OCAP2/bouncelog/internal/sim"
)

const timestampLayout = "2006-01-02 15:04:05"

// Render writes the simulation readout and the log table.
func (p *Projector) Render(w io.Writer) error {
	state := p.machine.Snapshot()
	rows := p.Rows()

	last := "none"
	if state.LastCaptured != nil {
		last = sim.FormatPosition(*state.LastCaptured)
	}

	if _, err := fmt.Fprintf(w, "position:      %s\nlast captured: %s\nphase:         %s\npending:       %d\n\n",
		sim.FormatPosition(sim.ToPosition(state.Position)), last, state.Phase, p.pending.Len()); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tX\tY\tZ\tTIMESTAMP")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.2f\t%s\n",
			r.ID, r.X, r.Y, r.Z, r.Timestamp.UTC().Format(timestampLayout))
	}
	if len(rows) == 0 {
		fmt.Fprintln(tw, "-\t\t\t\t(no entries)")
	}
	return tw.Flush()
}
