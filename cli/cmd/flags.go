// Package cmd provides CLI commands for the groupcat binary.
package cmd

import "github.com/urfave/cli/v2"

// DefaultConfigPath is the config file read when --config is not given.
const DefaultConfigPath = "groupcat.yaml"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for inspect commands.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect only)",
	}
)

// ConfigFlag returns the --config flag. A fresh flag is returned per
// command so urfave does not share parsed state between commands.
func ConfigFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to groupcat.yaml",
		Value:   DefaultConfigPath,
		EnvVars: []string{"GROUPCAT_CONFIG"},
	}
}

// StorageFlags returns flags overriding the storage section of the config.
func StorageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "storage-backend", Usage: "Storage backend: fs, s3, memory or frames (overrides config)"},
		&cli.StringFlag{Name: "storage-path", Usage: "Storage path, fs: directory, s3: bucket/prefix (overrides config)"},
		&cli.StringFlag{Name: "storage-region", Usage: "AWS region for S3 backend (overrides config)"},
		&cli.StringFlag{Name: "storage-dataset", Usage: "Manifest dataset ID (overrides config)"},
	}
}

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}
