package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/franksops/gfupload/config"
	"github.com/franksops/gfupload/store"
)

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show journaled uploads",
		ArgsUsage: "[task-id]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// Status prints one journal entry, or all of them when no id is given.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(cmd); err != nil {
		return err
	}

	st, err := store.Open(r.cfg.Journal.Driver, r.cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer st.Close()

	var records []*store.TaskRecord
	if id := cmd.Args().First(); id != "" {
		rec, err := st.GetTask(id)
		if errors.Is(err, store.ErrTaskNotFound) {
			return fmt.Errorf("no upload with id %s", id)
		}
		if err != nil {
			return err
		}
		records = append(records, rec)
	} else {
		records, err = st.ListTasks()
		if err != nil {
			return err
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(r.output, "No uploads journaled.")
		return nil
	}

	fmt.Fprintln(r.output, renderRecords(records))
	return nil
}

func renderRecords(records []*store.TaskRecord) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STATE", "FILES", "SENT", "ATTEMPTS", "CODE", "UPDATED")

	for _, rec := range records {
		code := ""
		if rec.ResponseCode != 0 {
			code = strconv.Itoa(rec.ResponseCode)
		}
		t.Row(
			rec.ID,
			string(rec.State),
			fmt.Sprintf("%d/%d", len(rec.CompletedFiles), len(rec.Files)),
			humanize.IBytes(uint64(rec.BytesTransferred)),
			strconv.Itoa(rec.Attempts),
			code,
			humanize.Time(rec.UpdatedAt),
		)
	}
	return t.String()
}

func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration file operations",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the default configuration file",
				Action: r.ConfigInit,
			},
		},
	}
}

// ConfigInit writes the defaults to the --config path.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	fmt.Fprintf(r.output, "Wrote %s\n", path)
	return nil
}
