package cli

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ccview.cli")

// Middleware is a function that wraps a command
type Middleware func(Command) Command

// WrappedCommand represents a command wrapped with a middleware
type WrappedCommand struct {
	Command
	Wrap func(ctx *Context) error
}

// Run executes the wrapped command
func (w *WrappedCommand) Run(ctx *Context) error {
	if w.Wrap != nil {
		return w.Wrap(ctx)
	}
	return w.Command.Run(ctx)
}

// ApplyMiddlewares wraps a command with any number of middlewares
func ApplyMiddlewares(cmd Command, mws ...Middleware) Command {
	for _, mw := range mws {
		cmd = mw(cmd)
	}
	return cmd
}

// WithDebugArgs logs the arguments a command runs with.
func WithDebugArgs() Middleware {
	return func(cmd Command) Command {
		return &WrappedCommand{
			Command: cmd,
			Wrap: func(ctx *Context) error {
				ctx.Logger.Debug("running command", "command", cmd.Name(), "args", ctx.Args)
				return cmd.Run(ctx)
			},
		}
	}
}

// WithSpan runs a command inside a trace span named after it.
func WithSpan() Middleware {
	return func(cmd Command) Command {
		return &WrappedCommand{
			Command: cmd,
			Wrap: func(ctx *Context) error {
				spanCtx, span := tracer.Start(ctx.Ctx, "cli."+cmd.Name(),
					trace.WithAttributes(attribute.StringSlice("cli.args", ctx.Args)),
				)
				defer span.End()

				inner := *ctx
				inner.Ctx = spanCtx
				err := cmd.Run(&inner)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
				return err
			},
		}
	}
}
