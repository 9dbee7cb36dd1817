package cli

import (
	"slices"
	"strings"
)

var registry []Command

// RegisterCommand adds a top-level command, wrapped with mws.
func RegisterCommand(cmd Command, mws ...Middleware) {
	registry = append(registry, ApplyMiddlewares(cmd, mws...))
}

// GetCommand returns a registered command by name or alias.
func GetCommand(name string) (Command, bool) {
	for _, cmd := range registry {
		if cmd.Name() == name || slices.Contains(cmd.Aliases(), name) {
			return cmd, true
		}
	}
	return nil, false
}

// AllCommands returns the registered commands sorted by name.
func AllCommands() []Command {
	list := slices.Clone(registry)
	slices.SortFunc(list, func(a, b Command) int { return strings.Compare(a.Name(), b.Name()) })
	return list
}
