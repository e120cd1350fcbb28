package viewer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/OCAP2/bouncelog/internal/sim"
)

const consoleHelp = `commands:
  t, toggle        stop (capture) or resume the ball
  s, save          save all pending captures
  d, delete <id>   delete one entry
  c, clear         clear the dashboard
  x, clear-all     clear all entries
  r, refresh       fetch the log again
  p, print         print the current view
  q, quit          leave
`

// RunConsole reads one command per line from in and prints the view to out
// after each one. It returns when in is exhausted, on quit, or when ctx is
// done. Failed commands are reported and the loop continues.
func (p *Projector) RunConsole(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		fields := strings.Fields(scanner.Text())
		cmd := ""
		if len(fields) > 0 {
			cmd = strings.ToLower(fields[0])
		}

		p.setMessage("")
		var err error
		switch cmd {
		case "q", "quit", "exit":
			return nil
		case "h", "help", "?":
			_, err = io.WriteString(out, consoleHelp)
			if err != nil {
				return err
			}
			continue
		case "t", "toggle":
			var phase sim.Phase
			phase, err = p.Toggle(ctx)
			if err == nil {
				fmt.Fprintf(out, "phase: %s\n", phase)
			}
		case "s", "save":
			err = p.SaveAll(ctx)
		case "d", "delete":
			err = p.deleteCommand(ctx, fields[1:])
		case "c", "clear":
			err = p.ClearDashboard(ctx)
		case "x", "clear-all":
			err = p.ClearAll(ctx)
		case "r", "refresh":
			err = p.Refresh(ctx)
		case "", "p", "print":
		default:
			fmt.Fprintf(out, "unknown command %q, type help\n", cmd)
			continue
		}

		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		} else if msg := p.LastMessage(); msg != "" {
			fmt.Fprintln(out, msg)
		}
		if err := p.Render(out); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (p *Projector) deleteCommand(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <id>")
	}
	id, err := strconv.ParseUint(args[0], 10, 0)
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}
	return p.Delete(ctx, uint(id))
}
