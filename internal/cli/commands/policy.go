package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/keshon/ccview/internal/cli"
)

// CheckCommand compiles a policy file and prints what it selects.
type CheckCommand struct{}

func (c *CheckCommand) Name() string               { return "check" }
func (c *CheckCommand) Aliases() []string          { return nil }
func (c *CheckCommand) Usage() string              { return "check [file]" }
func (c *CheckCommand) Brief() string              { return "Compile a policy and print its rules" }
func (c *CheckCommand) Subcommands() []cli.Command { return nil }
func (c *CheckCommand) Flags(fs *pflag.FlagSet)    {}

func (c *CheckCommand) Help() string {
	return `Compile a policy file, following its includes, and print the selection
rules in order followed by the load rules and the fingerprint that keys the
cache. Without a file argument the configured policy is checked.`
}

func (c *CheckCommand) Run(ctx *cli.Context) error {
	var file string
	switch len(ctx.Args) {
	case 0:
	case 1:
		file = ctx.Args[0]
	default:
		return fmt.Errorf("usage: %s", c.Usage())
	}
	p, err := ctx.Policy(file)
	if err != nil {
		return err
	}
	fmt.Fprint(ctx.Out, p.String())
	fmt.Fprintf(ctx.Out, "fingerprint %s\n", p.Fingerprint())
	return nil
}

func init() {
	cli.RegisterCommand(cli.NewGroup("policy", "Work with policy files", "Compile and inspect selection policies.",
		&CheckCommand{},
	))
}
