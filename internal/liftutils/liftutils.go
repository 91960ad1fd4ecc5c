package liftutils

import (
	_ "embed"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:generate sh -c "printf %s $(git rev-parse HEAD) > githash.txt"
//go:embed githash.txt
var gitHash string

func GetGitHash() string {
	return strings.TrimSpace(gitHash)
}

type Options struct {
	ConfigPath string
	EnvPath    string
	Identifier string
	Role       string
	Version    bool
	Help       bool
}

// ParseCmdArgs parses args (without the program name). Help text goes to output.
func ParseCmdArgs(name string, args []string, output io.Writer) (Options, *flag.FlagSet, error) {
	var opts Options
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	fs.BoolVar(&opts.Help, "help", false, "Show Help Window")
	fs.BoolVar(&opts.Version, "version", false, "Show Version")
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to the YAML configuration file. Defaults to built-in values")
	fs.StringVar(&opts.EnvPath, "env", ".env", "Path to the .env override file")
	fs.StringVar(&opts.Identifier, "id", "", "Set the identifier of the terminal. Defaults to random string")
	fs.StringVar(&opts.Role, "role", "", "Board role, entry or exit. Overrides the configuration")

	if err := fs.Parse(args); err != nil {
		return opts, fs, err
	}
	if fs.NArg() > 0 {
		return opts, fs, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, fs, nil
}

func ProcessCmdArgs(description string) Options {
	opts, fs, err := ParseCmdArgs(os.Args[0], os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if opts.Version {
		fmt.Println("Version:", GetGitHash())
		os.Exit(0)
	}

	if opts.Help {
		fmt.Printf("Usage: %s [OPTIONS]\n", os.Args[0])
		fmt.Println(description)
		fmt.Println()
		fmt.Println("Options:")
		fs.SetOutput(os.Stdout)
		fs.PrintDefaults()
		os.Exit(0)
	}

	return opts
}
