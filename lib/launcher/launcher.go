// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package launcher implements the lander subcommands on top of the
// platform contract: stage a project, submit workflow runs, and poll,
// resolve, or delete the resulting tasks.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"

	"git.arvados.org/arvados.git/sdk/go/ctxlog"
	"github.com/dzlabs/lander/platform"
	"github.com/ghodss/yaml"
)

func requireFlag(value, name string) error {
	if value == "" {
		return fmt.Errorf("missing required option -%s", name)
	}
	return nil
}

// project resolves a project name to a project, treating absence as an
// error: every subcommand needs its projects to exist already.
func project(ctx context.Context, pl platform.Platform, name string) (*platform.Project, error) {
	proj, err := pl.GetProjectByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("looking up project %q: %w", name, err)
	}
	if proj == nil {
		return nil, fmt.Errorf("project %q not found", name)
	}
	return proj, nil
}

func runSetup(ctx context.Context, pl platform.Platform, opts *options, stdout io.Writer) error {
	if err := requireFlag(opts.referenceName, "source-project"); err != nil {
		return err
	}
	if err := requireFlag(opts.projectName, "project"); err != nil {
		return err
	}
	src, err := project(ctx, pl, opts.referenceName)
	if err != nil {
		return err
	}
	dst, err := project(ctx, pl, opts.projectName)
	if err != nil {
		return err
	}
	logger := ctxlog.FromContext(ctx)

	refID, err := pl.CopyReferenceData(ctx, src, dst)
	if err != nil {
		return fmt.Errorf("copying reference data: %w", err)
	}
	if refID == "" {
		logger.WithField("project", src.Name).Info("source project has no reference data")
	} else {
		fmt.Fprintln(stdout, refID)
	}

	workflowIDs, err := pl.CopyWorkflows(ctx, src, dst)
	if err != nil {
		return fmt.Errorf("copying workflows: %w", err)
	}
	for _, id := range workflowIDs {
		fmt.Fprintln(stdout, id)
	}
	logger.WithField("workflows", len(workflowIDs)).Info("setup complete")
	return nil
}

// loadParameters reads a workflow parameter file. YAML is a superset
// of JSON here, so one decoder covers both formats.
func loadParameters(path string) (map[string]interface{}, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var params map[string]interface{}
	if err := yaml.Unmarshal(buf, &params); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return params, nil
}

func runSubmit(ctx context.Context, pl platform.Platform, opts *options, stdout io.Writer) error {
	for _, f := range []struct{ value, name string }{
		{opts.projectName, "project"},
		{opts.taskName, "name"},
		{opts.workflowID, "workflow"},
		{opts.inputsPath, "inputs"},
	} {
		if err := requireFlag(f.value, f.name); err != nil {
			return err
		}
	}
	proj, err := project(ctx, pl, opts.projectName)
	if err != nil {
		return err
	}
	params, err := loadParameters(opts.inputsPath)
	if err != nil {
		return err
	}
	task, err := pl.SubmitTask(ctx, opts.taskName, proj, opts.workflowID, params)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("submission of %q failed", opts.taskName)
	}
	fmt.Fprintln(stdout, task.ID())
	return nil
}

// tasks looks up the live tasks matching -project and -name.
func tasks(ctx context.Context, pl platform.Platform, opts *options) ([]platform.Task, error) {
	if err := requireFlag(opts.projectName, "project"); err != nil {
		return nil, err
	}
	if err := requireFlag(opts.taskName, "name"); err != nil {
		return nil, err
	}
	proj, err := project(ctx, pl, opts.projectName)
	if err != nil {
		return nil, err
	}
	found, err := pl.GetTasksByName(ctx, proj, opts.taskName)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no live task named %q in project %q", opts.taskName, opts.projectName)
	}
	return found, nil
}

func runStatus(ctx context.Context, pl platform.Platform, opts *options, stdout io.Writer) error {
	found, err := tasks(ctx, pl, opts)
	if err != nil {
		return err
	}
	for _, task := range found {
		state, err := pl.GetTaskState(ctx, task, false)
		if err != nil {
			return fmt.Errorf("task %s: %w", task.ID(), err)
		}
		fmt.Fprintf(stdout, "%s\t%s\n", task.ID(), state)
	}
	return nil
}

func runOutput(ctx context.Context, pl platform.Platform, opts *options, stdout io.Writer) error {
	if err := requireFlag(opts.outputName, "output"); err != nil {
		return err
	}
	found, err := tasks(ctx, pl, opts)
	if err != nil {
		return err
	}
	for _, task := range found {
		location, err := pl.GetTaskOutput(ctx, task, opts.outputName)
		if err != nil {
			return fmt.Errorf("task %s: %w", task.ID(), err)
		}
		fmt.Fprintf(stdout, "%s\t%s\n", task.ID(), location)
	}
	return nil
}

func runDelete(ctx context.Context, pl platform.Platform, opts *options, stdout io.Writer) error {
	found, err := tasks(ctx, pl, opts)
	if err != nil {
		return err
	}
	for _, task := range found {
		if err := pl.DeleteTask(ctx, task); err != nil {
			return fmt.Errorf("deleting task %s: %w", task.ID(), err)
		}
		fmt.Fprintln(stdout, task.ID())
	}
	return nil
}
