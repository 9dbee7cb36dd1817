package main

import (
	"github.com/keshon/ccview/internal/cli"
	_ "github.com/keshon/ccview/internal/cli/commands"
)

func main() {
	cli.Execute()
}
