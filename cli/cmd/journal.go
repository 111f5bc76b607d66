package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/typecraft-io/typeset/cli/render"
	"github.com/typecraft-io/typeset/journal"
)

// JournalCommand returns the journal command, a read-only inspector for
// per-request compile journals.
func JournalCommand() *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "Inspect a compile journal file",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Usage:    "Path to a .journal file",
				Required: true,
			},
		}, SharedFlags()...),
		Action: journalAction,
	}
}

func journalAction(c *cli.Context) error {
	r, err := newRenderer(c)
	if err != nil {
		return err
	}

	path := c.String("file")
	entries, err := journal.Read(path)
	if err != nil {
		return err
	}

	report := &render.JournalReport{Path: path}
	for _, entry := range entries {
		switch {
		case entry.Event != nil:
			report.Events = append(report.Events, render.JournalEvent{
				Seq:     entry.Event.Seq,
				Stage:   string(entry.Event.Stage),
				Message: entry.Event.Message,
				Ts:      entry.Event.Ts,
			})
		case entry.Outcome != nil:
			report.Outcome = &render.JournalOutcome{
				Success:  entry.Outcome.Success,
				Reason:   entry.Outcome.Reason,
				Details:  entry.Outcome.Details,
				PDFBytes: entry.Outcome.PDFBytes,
				Ts:       entry.Outcome.Ts,
			}
		}
	}
	return r.Journal(report)
}
