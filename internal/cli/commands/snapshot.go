package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/keshon/ccview/internal/cache"
	"github.com/keshon/ccview/internal/cli"
	"github.com/keshon/ccview/internal/progress"
	"github.com/keshon/ccview/internal/snapshot"
)

type SnapshotCommand struct{}

func (c *SnapshotCommand) Name() string               { return "snapshot" }
func (c *SnapshotCommand) Aliases() []string          { return []string{"ls"} }
func (c *SnapshotCommand) Usage() string              { return "snapshot <path>" }
func (c *SnapshotCommand) Brief() string              { return "List the tree the policy selects at a point in time" }
func (c *SnapshotCommand) Subcommands() []cli.Command { return nil }

func (c *SnapshotCommand) Help() string {
	return `List every element under a directory as selected at --at.

The listing is served from the snapshot cache, which is built from the nearest
earlier snapshot when one exists. Each line reads:

  <relative path> <kind> <version> [flags]

where flags are t (text) and x (executable). --json prints one JSON object per
entry instead.`
}

func (c *SnapshotCommand) Flags(fs *pflag.FlagSet) {
	fs.String("at", "", "point in time (RFC 3339, default now)")
	fs.Bool("json", false, "print JSON lines")
}

type jsonEntry struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Version string `json:"version"`
	Text    bool   `json:"text,omitempty"`
	Exec    bool   `json:"exec,omitempty"`
}

func (c *SnapshotCommand) Run(ctx *cli.Context) error {
	if len(ctx.Args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	asJSON, _ := ctx.Flags.GetBool("json")
	atFlag, _ := ctx.Flags.GetString("at")
	at, err := cli.ParseTime(atFlag)
	if err != nil {
		return err
	}

	v, store, err := ctx.View()
	if err != nil {
		return err
	}
	root := cache.Root{ID: ctx.RootID(store), Fingerprint: v.Policy().Fingerprint()}

	var tracker *progress.Tracker
	if cli.IsTerminal(ctx.Err) {
		tracker = progress.New(ctx.Err, 0, "Resolving "+ctx.Args[0], "entries")
	}
	enc := json.NewEncoder(ctx.Out)

	var walkErr error
	for e, err := range ctx.Cache().GetOrBuildSnapshot(ctx.Ctx, root, ctx.Args[0], at, v) {
		if err != nil {
			walkErr = err
			break
		}
		if tracker != nil {
			tracker.Increment()
		}
		if asJSON {
			if err := enc.Encode(jsonEntry{Path: e.Path, Kind: e.Kind.String(), Version: e.Version, Text: e.Text, Exec: e.Exec}); err != nil {
				walkErr = err
				break
			}
			continue
		}
		fmt.Fprintln(ctx.Out, formatEntry(e))
	}
	if tracker != nil {
		tracker.Finish()
	}
	if walkErr != nil {
		return fmt.Errorf("snapshot %s: %w", ctx.Args[0], walkErr)
	}
	return nil
}

func formatEntry(e snapshot.Entry) string {
	p := e.Path
	if p == "" {
		p = "."
	}
	fields := []string{p, e.Kind.String(), e.Version}
	if f := e.Flags(); f != "" {
		fields = append(fields, f)
	}
	return strings.Join(fields, " ")
}

func init() {
	cli.RegisterCommand(&SnapshotCommand{}, cli.WithSpan(), cli.WithDebugArgs())
}
