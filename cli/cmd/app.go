package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/groupcat/types"
)

// Commands returns every groupcat command.
func Commands(commit string) []*cli.Command {
	return []*cli.Command{
		RunCommand(),
		PlanCommand(),
		InspectCommand(),
		ListCommand(),
		VersionCommand(commit),
	}
}

// NewApp builds the groupcat CLI application. exitErrHandler decides how
// command errors end the process.
func NewApp(commit string, exitErrHandler cli.ExitErrHandlerFunc) *cli.App {
	return &cli.App{
		Name:           "groupcat",
		Usage:          "Concatenate grouped build records into bundles",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands:       Commands(commit),
	}
}
