// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package arvadosplatform

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/ctxlog"

	"github.com/dzlabs/lander/platform"
)

const defaultRunnerCommand = "arvados-cwl-runner"

// outputManifestName is the document the runner writes into a task's
// output collection, mapping output names to locations.
const outputManifestName = "cwl.output.json"

// Fixed runner flags: submit and return immediately, let the cluster
// fetch remote inputs itself, and tolerate signed-URL churn when it
// does.
var runnerArgs = []string{
	"--no-wait",
	"--defer-download",
	"--varying-url-params=AWSAccessKeyId,Signature,Expires",
	"--prefer-cached-downloads",
	"--debug",
}

// SubmitTask runs the workflow runner to submit one workflow. The
// returned task carries only the new container request uuid; the
// execution record is populated by the first GetTaskState(refresh).
//
// A failed submission (runner exit != 0, or trouble writing the
// parameter file) returns a nil task and a nil error: the runner's
// output goes to the log, and the caller sees the same "absent result"
// it would get for any other not-found outcome.
func (p *ArvadosPlatform) SubmitTask(ctx context.Context, name string, project *platform.Project, workflowID string, parameters map[string]interface{}) (platform.Task, error) {
	logger := ctxlog.FromContext(ctx)

	paramFile, err := os.CreateTemp("", "lander-inputs-*.json")
	if err != nil {
		logger.WithError(err).Error("cannot create parameter file")
		return nil, nil
	}
	defer os.Remove(paramFile.Name())
	err = json.NewEncoder(paramFile).Encode(parameters)
	if cerr := paramFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logger.WithError(err).Error("cannot write parameter file")
		return nil, nil
	}

	runner := p.RunnerCommand
	if runner == "" {
		runner = defaultRunnerCommand
	}
	args := append([]string{}, runnerArgs...)
	args = append(args, "--project-uuid", project.UUID, "--name", name, workflowID, paramFile.Name())
	cmd := exec.CommandContext(ctx, runner, args...)
	logger.WithField("command", strings.Join(cmd.Args, " ")).Debug("invoking workflow runner")
	out, err := cmd.CombinedOutput()
	if err != nil {
		logger.WithError(err).WithField("output", string(out)).Error("workflow submission failed")
		return nil, nil
	}
	uuid := lastLine(string(out))
	if uuid == "" {
		logger.WithField("output", string(out)).Error("workflow runner reported no container request uuid")
		return nil, nil
	}
	return &Task{ContainerRequest: arvados.ContainerRequest{UUID: uuid}}, nil
}

// lastLine returns the last non-blank line of s: the runner prints the
// new container request uuid there, after its debug output.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
