// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"context"
	"flag"
	"fmt"
	"io"

	"git.arvados.org/arvados.git/lib/cmd"
	"git.arvados.org/arvados.git/sdk/go/ctxlog"
	"github.com/dzlabs/lander/platform"
	"github.com/sirupsen/logrus"
)

// options collects the flag values shared across subcommands. Each
// subcommand registers only the flags it actually uses.
type options struct {
	platformName  string
	logLevel      string
	projectName   string
	referenceName string
	taskName      string
	workflowID    string
	inputsPath    string
	outputName    string
}

type command struct {
	usage string
	flags func(flags *flag.FlagSet, opts *options)
	run   func(ctx context.Context, pl platform.Platform, opts *options, stdout io.Writer) error
}

// RunCommand implements cmd.RunFunc for every launcher subcommand:
// parse flags, set up logging, connect to the detected (or named)
// platform, and hand off to the subcommand's run func.
func (c command) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := ctxlog.New(stderr, "text", "info")
	logger.SetFormatter(cmd.NoPrefixFormatter{})

	var opts options
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.StringVar(&opts.platformName, "platform", "", "platform adapter to use (default: autodetect from environment)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "logging level (debug, info, ...)")
	c.flags(flags, &opts)
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage:\n  %s [options ...]\n\n\t%s\n\nOptions:\n", prog, c.usage)
		flags.PrintDefaults()
	}
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}

	lvl, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		logger.Error("invalid log level: " + err.Error())
		return 2
	}
	logger.SetLevel(lvl)
	ctx := ctxlog.Context(context.Background(), logger)

	pl, err := lookupPlatform(opts.platformName)
	if err != nil {
		logger.Error(err.Error())
		return 1
	}
	if err := pl.Connect(ctx); err != nil {
		logger.Error("connecting to " + pl.Name() + ": " + err.Error())
		return 1
	}
	if err := c.run(ctx, pl, &opts, stdout); err != nil {
		logger.Error(err.Error())
		return 1
	}
	return 0
}

func lookupPlatform(name string) (platform.Platform, error) {
	if name != "" {
		return platform.Get(name)
	}
	return platform.Detect()
}

var (
	// SetupCommand stages reference data and workflow definitions
	// from a source project into a destination project.
	SetupCommand = command{
		usage: "Copy reference data and all workflow definitions from the source project into the destination project.",
		flags: func(flags *flag.FlagSet, opts *options) {
			flags.StringVar(&opts.referenceName, "source-project", "", "name of the project to copy reference data and workflows from")
			flags.StringVar(&opts.projectName, "project", "", "name of the destination project")
		},
		run: runSetup,
	}

	// SubmitCommand submits one workflow run.
	SubmitCommand = command{
		usage: "Submit a workflow run with parameters loaded from a YAML or JSON file.",
		flags: func(flags *flag.FlagSet, opts *options) {
			flags.StringVar(&opts.projectName, "project", "", "name of the project to run in")
			flags.StringVar(&opts.taskName, "name", "", "display name for the submitted task")
			flags.StringVar(&opts.workflowID, "workflow", "", "id of the workflow definition to run")
			flags.StringVar(&opts.inputsPath, "inputs", "", "path to a YAML or JSON file of workflow parameters")
		},
		run: runSubmit,
	}

	// StatusCommand reports the state of tasks matching a name.
	StatusCommand = command{
		usage: "Print the current state of every live task with the given name.",
		flags: func(flags *flag.FlagSet, opts *options) {
			flags.StringVar(&opts.projectName, "project", "", "name of the project to search")
			flags.StringVar(&opts.taskName, "name", "", "task display name to match")
		},
		run: runStatus,
	}

	// OutputCommand resolves a named output of finished tasks.
	OutputCommand = command{
		usage: "Print the content reference of the named output for every live task with the given name.",
		flags: func(flags *flag.FlagSet, opts *options) {
			flags.StringVar(&opts.projectName, "project", "", "name of the project to search")
			flags.StringVar(&opts.taskName, "name", "", "task display name to match")
			flags.StringVar(&opts.outputName, "output", "", "name of the workflow output to resolve")
		},
		run: runOutput,
	}

	// DeleteCommand deletes the submission records of tasks matching
	// a name.
	DeleteCommand = command{
		usage: "Delete the submission record of every live task with the given name.",
		flags: func(flags *flag.FlagSet, opts *options) {
			flags.StringVar(&opts.projectName, "project", "", "name of the project to search")
			flags.StringVar(&opts.taskName, "name", "", "task display name to match")
		},
		run: runDelete,
	}
)
