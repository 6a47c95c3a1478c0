// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package arvadosplatform

import (
	"context"
	"encoding/json"
	"fmt"

	"git.arvados.org/arvados.git/sdk/go/arvados"

	"github.com/dzlabs/lander/platform"
)

// Container is the execution record of a task: the subset of an
// arvados container record that state derivation and output retrieval
// read. ExitCode stays nil until the platform reports one, so a queued
// container is never mistaken for a successful one.
type Container struct {
	UUID     string                 `json:"uuid"`
	State    arvados.ContainerState `json:"state"`
	ExitCode *int                   `json:"exit_code"`
	Output   string                 `json:"output"`
}

// Task pairs a container request with the container that runs it. The
// container is nil on a freshly submitted task; the first state query
// with refresh populates it. Tasks are plain JSON-serializable values
// owned by the caller; the adapter never retains them.
type Task struct {
	ContainerRequest arvados.ContainerRequest `json:"container_request"`
	Container        *Container               `json:"container"`
}

// ID implements platform.Task.
func (t *Task) ID() string { return t.ContainerRequest.UUID }

// EncodeTask serializes a task handle for persistence by the caller.
func EncodeTask(t *Task) ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTask is the inverse of EncodeTask.
func DecodeTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("arvados: decode task: %w", err)
	}
	return &t, nil
}

// UnknownTaskStateError reports a container state this adapter does
// not model. It is fatal by design: silently mapping an unknown state
// to a known one would misinform the caller's scheduling decisions.
type UnknownTaskStateError struct {
	State    arvados.ContainerState
	ExitCode *int
}

func (e *UnknownTaskStateError) Error() string {
	if e.ExitCode != nil {
		return fmt.Sprintf("unrecognized task state %q (exit code %d)", e.State, *e.ExitCode)
	}
	return fmt.Sprintf("unrecognized task state %q", e.State)
}

// GetTasksByName returns a task for every container request in project
// with the given name and priority > 0. Cancelled requests are
// reported by the platform as Queued with priority zero; the priority
// filter keeps them from masquerading as live submissions. The listing
// pages through the full result set.
func (p *ArvadosPlatform) GetTasksByName(ctx context.Context, project *platform.Project, name string) ([]platform.Task, error) {
	var tasks []platform.Task
	params := arvados.ResourceListParams{
		Filters: []arvados.Filter{
			{Attr: "name", Operator: "=", Operand: name},
			{Attr: "owner_uuid", Operator: "=", Operand: project.UUID},
			{Attr: "priority", Operator: ">", Operand: 0},
		},
		Order: "uuid",
	}
	err := p.listAll(ctx, "container_requests", params, func(raw json.RawMessage) error {
		var cr arvados.ContainerRequest
		if err := json.Unmarshal(raw, &cr); err != nil {
			return err
		}
		ctr, err := p.getContainer(ctx, cr.ContainerUUID)
		if err != nil {
			return err
		}
		tasks = append(tasks, &Task{ContainerRequest: cr, Container: ctr})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("arvados: list container requests: %w", err)
	}
	return tasks, nil
}

func (p *ArvadosPlatform) getContainer(ctx context.Context, uuid string) (*Container, error) {
	var ctr Container
	err := p.API.RequestAndDecodeContext(ctx, &ctr, "GET", "arvados/v1/containers/"+uuid, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("arvados: get container %s: %w", uuid, err)
	}
	return &ctr, nil
}

// GetTaskState derives the task's state. Exit codes are checked before
// container state, so a finished container wins even if the record
// still carries a stale state flag. An unmodeled combination fails
// with UnknownTaskStateError.
func (p *ArvadosPlatform) GetTaskState(ctx context.Context, task platform.Task, refresh bool) (platform.State, error) {
	t, ok := task.(*Task)
	if !ok {
		return "", fmt.Errorf("arvados: unsupported task type %T", task)
	}
	if refresh {
		// Freshly submitted tasks have only a container request
		// uuid; fetch both records.
		var cr arvados.ContainerRequest
		if err := p.API.RequestAndDecodeContext(ctx, &cr, "GET", "arvados/v1/container_requests/"+t.ContainerRequest.UUID, nil, nil); err != nil {
			return "", fmt.Errorf("arvados: get container request %s: %w", t.ContainerRequest.UUID, err)
		}
		ctr, err := p.getContainer(ctx, cr.ContainerUUID)
		if err != nil {
			return "", err
		}
		t.ContainerRequest = cr
		t.Container = ctr
	}
	ctr := t.Container
	if ctr == nil {
		return "", fmt.Errorf("arvados: task %s has no container record yet; query with refresh", t.ID())
	}
	switch {
	case ctr.ExitCode != nil && *ctr.ExitCode == 0:
		return platform.StateComplete, nil
	case ctr.ExitCode != nil && *ctr.ExitCode == 1:
		return platform.StateFailed, nil
	case ctr.State == arvados.ContainerStateRunning:
		return platform.StateRunning, nil
	case ctr.State == arvados.ContainerStateCancelled:
		return platform.StateCancelled, nil
	case ctr.State == arvados.ContainerStateLocked, ctr.State == arvados.ContainerStateQueued:
		return platform.StateQueued, nil
	}
	return "", &UnknownTaskStateError{State: ctr.State, ExitCode: ctr.ExitCode}
}

// GetTaskOutput reads the runner's output manifest (cwl.output.json)
// from the task's output collection and resolves outputName to a
// hash-addressed keep reference. A missing collection, manifest, or
// key is an error: the caller asked for an output that should exist.
func (p *ArvadosPlatform) GetTaskOutput(ctx context.Context, task platform.Task, outputName string) (string, error) {
	t, ok := task.(*Task)
	if !ok {
		return "", fmt.Errorf("arvados: unsupported task type %T", task)
	}
	outputUUID := t.ContainerRequest.OutputUUID
	if outputUUID == "" {
		return "", fmt.Errorf("arvados: task %s has no output collection", t.ID())
	}
	coll, err := p.getCollection(ctx, outputUUID)
	if err != nil {
		return "", err
	}
	cfs, err := coll.FileSystem(p.API, p.Keep)
	if err != nil {
		return "", fmt.Errorf("arvados: open collection %s: %w", outputUUID, err)
	}
	f, err := cfs.Open(outputManifestName)
	if err != nil {
		return "", fmt.Errorf("arvados: open %s in %s: %w", outputManifestName, outputUUID, err)
	}
	defer f.Close()
	var outputs map[string]interface{}
	if err := json.NewDecoder(f).Decode(&outputs); err != nil {
		return "", fmt.Errorf("arvados: parse %s in %s: %w", outputManifestName, outputUUID, err)
	}
	entry, ok := outputs[outputName].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("arvados: output %q not present in %s", outputName, outputManifestName)
	}
	location, ok := entry["location"].(string)
	if !ok {
		return "", fmt.Errorf("arvados: output %q has no location", outputName)
	}
	return "keep:" + outputUUID + "/" + location, nil
}

// DeleteTask deletes the task's container request. Irreversible; the
// caller is responsible for not deleting twice.
func (p *ArvadosPlatform) DeleteTask(ctx context.Context, task platform.Task) error {
	t, ok := task.(*Task)
	if !ok {
		return fmt.Errorf("arvados: unsupported task type %T", task)
	}
	err := p.API.RequestAndDecodeContext(ctx, nil, "DELETE", "arvados/v1/container_requests/"+t.ContainerRequest.UUID, nil, nil)
	if err != nil {
		return fmt.Errorf("arvados: delete container request %s: %w", t.ID(), err)
	}
	return nil
}
