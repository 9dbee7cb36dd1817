package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/keshon/ccview/internal/config"
)

// Command represents a cli command
type Command interface {
	Name() string
	Aliases() []string
	Usage() string
	Brief() string
	Help() string
	Subcommands() []Command
	Flags(fs *pflag.FlagSet)
	Run(ctx *Context) error
}

// Context represents a cli context
type Context struct {
	Ctx      context.Context
	Args     []string
	Flags    *pflag.FlagSet
	Settings config.Settings
	Logger   *slog.Logger
	Out      io.Writer
	Err      io.Writer
}

// Group is a command that only holds subcommands.
type Group struct {
	name  string
	brief string
	help  string
	subs  []Command
}

// NewGroup returns a command grouping subs under name.
func NewGroup(name, brief, help string, subs ...Command) *Group {
	return &Group{name: name, brief: brief, help: help, subs: subs}
}

func (g *Group) Name() string            { return g.name }
func (g *Group) Aliases() []string       { return nil }
func (g *Group) Usage() string           { return g.name + " <command>" }
func (g *Group) Brief() string           { return g.brief }
func (g *Group) Help() string            { return g.help }
func (g *Group) Subcommands() []Command  { return g.subs }
func (g *Group) Flags(fs *pflag.FlagSet) {}
func (g *Group) Run(ctx *Context) error  { return nil }
