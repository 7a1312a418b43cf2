package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/spf13/pflag"

	"github.com/nhle/gopulse/internal/app"
	"github.com/nhle/gopulse/internal/config"
	"github.com/nhle/gopulse/internal/credential"
	"github.com/nhle/gopulse/internal/mirror"
	"github.com/nhle/gopulse/internal/store"
	"github.com/nhle/gopulse/pulse"
)

func loginCommand() *command {
	var key string
	var noVerify bool
	var userID int64

	return &command{
		name:    "login",
		summary: "store an API key in the system keyring",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&key, "key", "", "API key to store (prompted for when empty)")
			fs.BoolVar(&noVerify, "no-verify", false, "store the key without checking it against the API")
			fs.Int64Var(&userID, "user", 0, "acting user id to save in the config file")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			if err := exactArgs(args, 0, "login [--key key] [--no-verify] [--user id]"); err != nil {
				return err
			}
			if userID < 0 {
				return usagef("--user must be a positive user id")
			}
			if key == "" {
				err := huh.NewInput().
					Title("API key").
					Description("Found under your profile's API settings").
					EchoMode(huh.EchoModePassword).
					Value(&key).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return errors.New("API key is required")
						}
						return nil
					}).
					Run()
				if err != nil {
					return err
				}
			}
			key = strings.TrimSpace(key)

			if !noVerify {
				client, err := e.clientWithKey(key)
				if err != nil {
					return err
				}
				if _, err := pulse.ListUsers(ctx, client, pulse.PageOptions{PerPage: 1}); err != nil {
					return fmt.Errorf("verifying API key: %w", err)
				}
			}

			creds, err := e.openCredentials()
			if err != nil {
				return fmt.Errorf("opening keyring: %w", err)
			}
			if err := creds.SetAPIKey(key); err != nil {
				return err
			}
			fmt.Fprintln(e.stdout, okStyle.Render("API key saved to the keyring."))

			if userID > 0 {
				e.cfg.UserID = userID
				if err := config.Save(e.configPath, e.cfg); err != nil {
					return err
				}
				fmt.Fprintln(e.stdout, okStyle.Render(
					fmt.Sprintf("Acting user %d saved to %s.", userID, e.configPath),
				))
			}
			return nil
		},
	}
}

func logoutCommand() *command {
	return &command{
		name:    "logout",
		summary: "remove the stored API key",
		run: func(ctx context.Context, e *env, args []string) error {
			if err := exactArgs(args, 0, "logout"); err != nil {
				return err
			}
			creds, err := e.openCredentials()
			if err != nil {
				return fmt.Errorf("opening keyring: %w", err)
			}
			if err := creds.Delete(credential.APIKeyItem); err != nil {
				return err
			}
			fmt.Fprintln(e.stdout, okStyle.Render("API key removed."))
			return nil
		},
	}
}

func boardsCommand() *command {
	var page pulse.PageOptions
	var globals, latest, asJSON bool

	return &command{
		name:    "boards",
		summary: "list boards",
		flags: func(fs *pflag.FlagSet) {
			addPageFlags(fs, &page)
			fs.BoolVar(&globals, "globals", false, "only boards visible to the whole account")
			fs.BoolVar(&latest, "latest", false, "order by most recently updated")
			fs.BoolVar(&asJSON, "json", false, "print raw JSON")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			if err := exactArgs(args, 0, "boards [flags]"); err != nil {
				return err
			}
			client, err := e.client()
			if err != nil {
				return err
			}
			boards, err := pulse.ListBoards(ctx, client, pulse.ListBoardsOptions{
				PageOptions:   page,
				OnlyGlobals:   globals,
				OrderByLatest: latest,
			})
			if err != nil {
				return err
			}

			if asJSON {
				raws := make([]json.RawMessage, len(boards))
				for i, b := range boards {
					raws[i] = b.JSON()
				}
				return writeJSON(e.stdout, raws)
			}
			if len(boards) == 0 {
				fmt.Fprintln(e.stderr, dimStyle.Render("No boards found."))
				return nil
			}

			tw := tabwriter.NewWriter(e.stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "ID\tNAME\tDESCRIPTION\n")
			for _, b := range boards {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", b.ID(), b.Name(), oneLine(b.Description()))
			}
			return tw.Flush()
		},
	}
}

func boardCommand() *command {
	var archived, asJSON bool

	return &command{
		name:    "board",
		args:    "<board-id>",
		summary: "show a board's columns and groups",
		flags: func(fs *pflag.FlagSet) {
			fs.BoolVar(&archived, "archived", false, "include archived groups")
			fs.BoolVar(&asJSON, "json", false, "print raw JSON")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			if err := exactArgs(args, 1, "board <board-id>"); err != nil {
				return err
			}
			boardID, err := parseID("board-id", args[0])
			if err != nil {
				return err
			}
			client, err := e.client()
			if err != nil {
				return err
			}
			board, err := pulse.FetchBoard(ctx, client, boardID)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(e.stdout, []json.RawMessage{board.JSON()})
			}

			columns, err := board.Columns()
			if err != nil {
				return err
			}
			groups, err := board.Groups(ctx, archived)
			if err != nil {
				return err
			}
			return printBoard(e.stdout, board, columns, groups)
		},
	}
}

func printBoard(w io.Writer, board *pulse.Board, columns []*pulse.Column, groups []*pulse.Group) error {
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render(board.Name()), dimStyle.Render(fmt.Sprintf("#%d", board.ID())))
	if d := oneLine(board.Description()); d != "" {
		fmt.Fprintln(w, d)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "COLUMN\tTITLE\tTYPE\tLABELS\n")
	for _, c := range columns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID(), c.Title(), c.Type(), formatLabels(c))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "GROUP\tTITLE\tCOLOR\tSTATE\n")
	for _, g := range groups {
		state := "active"
		if g.IsArchived() {
			state = "archived"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.ID(), g.Title(), g.Color(), state)
	}
	return tw.Flush()
}

func formatLabels(c *pulse.Column) string {
	indices := c.LabelIndices()
	parts := make([]string, 0, len(indices))
	labels := c.Labels()
	for _, i := range indices {
		parts = append(parts, fmt.Sprintf("%d=%s", i, labels[i]))
	}
	return strings.Join(parts, ", ")
}

func pulsesCommand() *command {
	var page pulse.PageOptions
	var statusColumn string
	var asJSON bool

	return &command{
		name:    "pulses",
		args:    "<board-id>",
		summary: "list a board's pulses",
		flags: func(fs *pflag.FlagSet) {
			addPageFlags(fs, &page)
			fs.StringVar(&statusColumn, "status-column", "", "status column to show (default: first status column)")
			fs.BoolVar(&asJSON, "json", false, "print raw JSON")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			if err := exactArgs(args, 1, "pulses <board-id> [flags]"); err != nil {
				return err
			}
			boardID, err := parseID("board-id", args[0])
			if err != nil {
				return err
			}
			client, err := e.client()
			if err != nil {
				return err
			}
			board, err := pulse.FetchBoard(ctx, client, boardID)
			if err != nil {
				return err
			}
			pulses, err := board.Pulses(ctx, page)
			if err != nil {
				return err
			}

			if asJSON {
				raws := make([]json.RawMessage, len(pulses))
				for i, p := range pulses {
					raws[i] = p.JSON()
				}
				return writeJSON(e.stdout, raws)
			}

			status, err := statusColumnOf(board, statusColumn)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(e.stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "ID\tGROUP\tSTATUS\tNAME\n")
			for _, p := range pulses {
				label := ""
				if status != nil {
					label = statusText(ctx, p, status)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID(), p.GroupID(), label, p.Name())
			}
			return tw.Flush()
		},
	}
}

// statusColumnOf returns the named status column, or the board's first
// status column when id is empty. Boards without one yield nil.
func statusColumnOf(board *pulse.Board, id string) (*pulse.Column, error) {
	columns, err := board.Columns()
	if err != nil {
		return nil, err
	}
	for _, c := range columns {
		if c.Type() != pulse.ColumnStatus {
			continue
		}
		if id == "" || c.ID() == id {
			return c, nil
		}
	}
	if id != "" {
		return nil, usagef("board %d has no status column %q", board.ID(), id)
	}
	return nil, nil
}

func statusText(ctx context.Context, p *pulse.Pulse, c *pulse.Column) string {
	sv, err := p.StatusColumn(ctx, c.ID())
	if err != nil {
		return "?"
	}
	index, err := sv.Value()
	if err != nil {
		return "?"
	}
	if label := c.Labels()[index]; label != "" {
		return label
	}
	return strconv.Itoa(index)
}

func setStatusCommand() *command {
	return &command{
		name:    "set-status",
		args:    "<pulse-id> <column-id> <index>",
		summary: "set a pulse's status column to a color index (0-10)",
		run: func(ctx context.Context, e *env, args []string) error {
			if err := exactArgs(args, 3, "set-status <pulse-id> <column-id> <index>"); err != nil {
				return err
			}
			pulseID, err := parseID("pulse-id", args[0])
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[2])
			if err != nil {
				return usagef("index must be an integer, got %q", args[2])
			}

			client, err := e.client()
			if err != nil {
				return err
			}
			p, err := pulse.FetchPulse(ctx, client, pulseID)
			if err != nil {
				return err
			}
			sv, err := p.StatusColumn(ctx, args[1])
			if err != nil {
				return err
			}
			if err := sv.Update(ctx, index); err != nil {
				return err
			}
			fmt.Fprintln(e.stdout, okStyle.Render(
				fmt.Sprintf("Pulse %d: %s set to %d.", pulseID, args[1], index),
			))
			return nil
		},
	}
}

func commentCommand() *command {
	var userID int64
	var announce bool

	return &command{
		name:    "comment",
		args:    "<pulse-id> <text>",
		summary: "post an update on a pulse",
		flags: func(fs *pflag.FlagSet) {
			fs.Int64Var(&userID, "user", 0, "author user id (default from config)")
			fs.BoolVar(&announce, "announce", false, "announce the update to everyone")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			if err := exactArgs(args, 2, "comment <pulse-id> <text> [--user id] [--announce]"); err != nil {
				return err
			}
			pulseID, err := parseID("pulse-id", args[0])
			if err != nil {
				return err
			}
			if userID == 0 {
				userID = e.cfg.UserID
			}
			if userID <= 0 {
				return usagef(`no author: pass --user or run "pulse login --user <id>"`)
			}

			client, err := e.client()
			if err != nil {
				return err
			}
			p, err := pulse.FetchPulse(ctx, client, pulseID)
			if err != nil {
				return err
			}
			u, err := p.AddUpdate(ctx, userID, args[1], announce)
			if err != nil {
				return err
			}
			fmt.Fprintln(e.stdout, okStyle.Render(
				fmt.Sprintf("Update %d posted on pulse %d.", u.ID(), pulseID),
			))
			return nil
		},
	}
}

func mirrorCommand() *command {
	var dbPath string
	var watch bool
	var interval time.Duration

	return &command{
		name:    "mirror",
		args:    "<board-id>",
		summary: "copy a board and its pulses into a local SQLite database",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&dbPath, "db", "", "database path (default from config)")
			fs.BoolVar(&watch, "watch", false, "keep syncing until interrupted")
			fs.DurationVar(&interval, "interval", 0, "sync interval with --watch (default from config)")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			if err := exactArgs(args, 1, "mirror <board-id> [--db path] [--watch] [--interval 2m]"); err != nil {
				return err
			}
			boardID, err := parseID("board-id", args[0])
			if err != nil {
				return err
			}
			if dbPath == "" {
				dbPath = e.cfg.Mirror.DBPath
			}
			if interval <= 0 {
				interval = e.cfg.MirrorInterval()
			}

			client, err := e.client()
			if err != nil {
				return err
			}
			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			m := mirror.New(client, s, e.logger)
			if !watch {
				result, err := m.Sync(ctx, boardID)
				if err != nil {
					return err
				}
				printResult(e.stdout, boardID, result)
				return nil
			}
			return watchBoard(ctx, e, m, boardID, interval)
		},
	}
}

// watchBoard runs the mirror loop until ctx is cancelled, printing every
// result. Failed syncs are reported and retried on the next tick.
func watchBoard(ctx context.Context, e *env, m *mirror.Mirror, boardID int64, interval time.Duration) error {
	m.Start(boardID, interval)
	defer m.Stop()

	fmt.Fprintln(e.stderr, dimStyle.Render(
		fmt.Sprintf("Mirroring board %d every %s. Press Ctrl+C to stop.", boardID, interval),
	))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-m.Results():
			if msg.Err != nil {
				fmt.Fprintln(e.stderr, errorStyle.Render("sync failed: "+msg.Err.Error()))
				continue
			}
			printResult(e.stdout, boardID, msg.Result)
		}
	}
}

func printResult(w io.Writer, boardID int64, r mirror.Result) {
	fmt.Fprintf(w, "%s board %d: %d groups, %d pulses (%d new)\n",
		okStyle.Render(time.Now().Format("15:04:05")),
		boardID, len(r.Groups), len(r.Pulses), r.New,
	)
}

func runsCommand() *command {
	var dbPath string
	var limit int

	return &command{
		name:    "runs",
		args:    "<board-id>",
		summary: "show the mirror history of a board",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&dbPath, "db", "", "database path (default from config)")
			fs.IntVar(&limit, "limit", 10, "number of runs to show, 0 for all")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			if err := exactArgs(args, 1, "runs <board-id> [--db path] [--limit n]"); err != nil {
				return err
			}
			boardID, err := parseID("board-id", args[0])
			if err != nil {
				return err
			}
			if dbPath == "" {
				dbPath = e.cfg.Mirror.DBPath
			}

			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.GetRuns(ctx, strconv.FormatInt(boardID, 10), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(e.stderr, dimStyle.Render(fmt.Sprintf("Board %d has not been mirrored.", boardID)))
				return nil
			}

			tw := tabwriter.NewWriter(e.stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "STARTED\tDURATION\tGROUPS\tPULSES\tNEW\tRESULT\n")
			for _, run := range runs {
				result := "ok"
				if run.Error != "" {
					result = oneLine(run.Error)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
					run.Groups, run.Pulses, run.NewPulses, result,
				)
			}
			return tw.Flush()
		},
	}
}

func browseCommand() *command {
	var statusColumn string
	var interval time.Duration

	return &command{
		name:    "browse",
		args:    "<board-id>",
		summary: "browse a board in a full-screen terminal UI",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&statusColumn, "status-column", "", "status column to show and cycle (default: first status column)")
			fs.DurationVar(&interval, "interval", 0, "background refresh interval (default from config)")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			if err := exactArgs(args, 1, "browse <board-id> [--status-column id]"); err != nil {
				return err
			}
			boardID, err := parseID("board-id", args[0])
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = e.cfg.MirrorInterval()
			}

			// Logging to the terminal would corrupt the alt screen.
			quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
			key, err := e.apiKey()
			if err != nil {
				return err
			}
			client, err := pulse.NewClient(pulse.ClientConfig{
				APIKey:     key,
				BaseURL:    e.cfg.BaseURL,
				APIVersion: e.cfg.APIVersion,
				HTTPClient: newHTTPClient(e.cfg.Timeout()),
				Logger:     quiet,
			})
			if err != nil {
				return err
			}

			model := app.New(mirror.New(client, nil, quiet), app.Options{
				BoardID:      boardID,
				StatusColumn: statusColumn,
				Interval:     interval,
			})
			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			_, err = program.Run()
			if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func addPageFlags(fs *pflag.FlagSet, page *pulse.PageOptions) {
	fs.IntVar(&page.Page, "page", 0, "page number, starting at 1")
	fs.IntVar(&page.PerPage, "per-page", 0, "results per page")
}

func oneLine(s string) string {
	runes := []rune(strings.Join(strings.Fields(s), " "))
	if len(runes) > 60 {
		return string(runes[:57]) + "..."
	}
	return string(runes)
}
