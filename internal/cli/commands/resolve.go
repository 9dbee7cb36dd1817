package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/keshon/ccview/internal/cli"
)

type ResolveCommand struct{}

func (c *ResolveCommand) Name() string               { return "resolve" }
func (c *ResolveCommand) Aliases() []string          { return []string{"r"} }
func (c *ResolveCommand) Usage() string              { return "resolve <element>" }
func (c *ResolveCommand) Brief() string              { return "Print the version the policy selects for an element" }
func (c *ResolveCommand) Subcommands() []cli.Command { return nil }

func (c *ResolveCommand) Help() string {
	return `Resolve one element through the configured policy.

The element path is an absolute view path. Versions checked in after --at are
ignored. Prints the whole version name, or "no version" when no rule selects
one. With --tree the version tree the policy was matched against is printed
first.`
}

func (c *ResolveCommand) Flags(fs *pflag.FlagSet) {
	fs.Bool("dir", false, "the element is a directory")
	fs.String("at", "", "point in time (RFC 3339, default now)")
	fs.Bool("tree", false, "print the version tree before the result")
}

func (c *ResolveCommand) Run(ctx *cli.Context) error {
	if len(ctx.Args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	isDir, _ := ctx.Flags.GetBool("dir")
	atFlag, _ := ctx.Flags.GetString("at")
	at, err := cli.ParseTime(atFlag)
	if err != nil {
		return err
	}

	v, _, err := ctx.View()
	if err != nil {
		return err
	}
	if showTree, _ := ctx.Flags.GetBool("tree"); showTree {
		tree, err := v.At(at).Tree(ctx.Ctx, ctx.Args[0])
		if err != nil {
			return fmt.Errorf("resolve %s: %w", ctx.Args[0], err)
		}
		fmt.Fprint(ctx.Out, tree.String())
	}
	version, ok, err := v.Resolve(ctx.Ctx, ctx.Args[0], !isDir, at)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", ctx.Args[0], err)
	}
	if !ok {
		fmt.Fprintln(ctx.Out, "no version")
		return nil
	}
	fmt.Fprintln(ctx.Out, version)
	return nil
}

func init() {
	cli.RegisterCommand(&ResolveCommand{}, cli.WithSpan(), cli.WithDebugArgs())
}
