// Command actorctl exercises the runtime's introspection surface against an
// embedded demo workload: one-shot tables of actors and shard allocation,
// and a live top-style dashboard. Embedders wire the same ListActors /
// Table / RecentDeadLetters calls to their own systems; this binary is the
// reference consumer.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "actorctl",
		Usage: "Inspect an actorcore runtime",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "workers",
				Value: 8,
				Usage: "echo workers in the demo workload",
			},
			&cli.DurationFlag{
				Name:  "warmup",
				Value: 500 * time.Millisecond,
				Usage: "traffic warmup before the snapshot",
			},
		},
		Commands: []*cli.Command{
			actorsCmd(),
			shardsCmd(),
			deadlettersCmd(),
			topCmd(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withWorkload(c *cli.Context, fn func(*demoWorkload) error) error {
	w, err := startWorkload(c.Int("workers"))
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.sys.Terminate(ctx)
	}()

	time.Sleep(c.Duration("warmup"))
	return fn(w)
}

func actorsCmd() *cli.Command {
	return &cli.Command{
		Name:  "actors",
		Usage: "List live actors with state and mailbox depth",
		Action: func(c *cli.Context) error {
			return withWorkload(c, func(w *demoWorkload) error {
				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Path", "Uid", "State", "Mailbox"})
				for _, info := range w.sys.ListActors() {
					table.Append([]string{
						info.Path,
						strconv.FormatUint(info.Uid, 10),
						info.State,
						strconv.Itoa(info.MailboxSize),
					})
				}
				table.Render()
				return nil
			})
		},
	}
}

func shardsCmd() *cli.Command {
	return &cli.Command{
		Name:  "shards",
		Usage: "Show the shard allocation table",
		Action: func(c *cli.Context) error {
			return withWorkload(c, func(w *demoWorkload) error {
				t := w.region.Table()
				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Shard", "Owner"})
				for s, owner := range t.Owners() {
					table.Append([]string{strconv.Itoa(s), string(owner)})
				}
				table.SetFooter([]string{"version", strconv.FormatUint(t.Version, 10)})
				table.Render()
				return nil
			})
		},
	}
}

func deadlettersCmd() *cli.Command {
	return &cli.Command{
		Name:  "deadletters",
		Usage: "Dump the recent dead-letter log",
		Action: func(c *cli.Context) error {
			return withWorkload(c, func(w *demoWorkload) error {
				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"At", "Reason", "Sender", "Message"})
				for _, d := range w.sys.RecentDeadLetters() {
					table.Append([]string{
						d.At.Format(time.TimeOnly),
						d.Reason,
						d.SenderPath,
						fmt.Sprintf("%T", d.Message),
					})
				}
				table.Render()
				return nil
			})
		},
	}
}

func topCmd() *cli.Command {
	return &cli.Command{
		Name:  "top",
		Usage: "Live dashboard: actors, mailbox depths, shard table version (q to quit)",
		Action: func(c *cli.Context) error {
			return withWorkload(c, runTop)
		},
	}
}

func runTop(w *demoWorkload) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("init terminal ui: %w", err)
	}
	defer ui.Close()

	header := widgets.NewParagraph()
	header.Title = "actorcore"
	header.SetRect(0, 0, 80, 3)

	actorsTable := widgets.NewTable()
	actorsTable.Title = "actors"
	actorsTable.RowSeparator = false
	actorsTable.SetRect(0, 3, 80, 21)

	render := func() {
		infos := w.sys.ListActors()
		t := w.region.Table()
		header.Text = fmt.Sprintf("actors=%d  shards=%d  table-version=%d  deadletters=%d",
			len(infos), t.ShardCount, t.Version, len(w.sys.RecentDeadLetters()))

		rows := [][]string{{"path", "state", "mailbox"}}
		for i, info := range infos {
			if i >= 16 {
				break
			}
			rows = append(rows, []string{info.Path, info.State, strconv.Itoa(info.MailboxSize)})
		}
		actorsTable.Rows = rows
		ui.Render(header, actorsTable)
	}
	render()

	events := ui.PollEvents()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				render()
			}
		case <-ticker.C:
			render()
		}
	}
}
