// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package platform defines the capability contract a workflow launcher
// expects from a compute/storage platform: look up projects, stage
// reference data and workflow definitions into them, submit workflow
// runs, and poll the resulting tasks.
//
// Concrete adapters (e.g. arvadosplatform) implement Platform and
// register themselves so callers can autodetect which platform the
// current environment belongs to.
package platform

import "context"

// State is the platform-agnostic lifecycle state of a submitted task.
type State string

const (
	StateQueued    = State("Queued")
	StateRunning   = State("Running")
	StateComplete  = State("Complete")
	StateFailed    = State("Failed")
	StateCancelled = State("Cancelled")
)

// Project is a remote grouping entity that scopes folder and workflow
// lookups. Projects are only looked up, never created, by adapters.
type Project struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Task is an opaque handle to one submitted unit of work. Concrete
// handles are JSON-serializable structs owned by the adapter that
// produced them; callers persist and restore them with the adapter's
// codec and otherwise treat them as opaque.
type Task interface {
	// ID returns the platform-specific identifier of the submission.
	ID() string
}

// Platform adapts one compute/storage platform to the launcher.
//
// "Not found" outcomes (absent project/folder/workflow, failed
// submission) are reported as zero results with a nil error; callers
// must check for absence. Errors are reserved for failures that have
// no defined not-found fallback.
type Platform interface {
	// Name returns the adapter name, e.g. "arvados".
	Name() string

	// Connect resolves the ambient environment into authenticated
	// clients. It must be called before any other remote operation.
	Connect(ctx context.Context) error

	// GetProject derives the project the current process is
	// running in, or nil if the process is not running inside a
	// platform-managed task.
	GetProject(ctx context.Context) (*Project, error)
	GetProjectByName(ctx context.Context, name string) (*Project, error)
	GetProjectByID(ctx context.Context, id string) (*Project, error)

	// CopyFolder copies the folder named by the first segment of
	// folderPath from src into dst, creating the destination folder
	// if needed. It returns the destination folder id, or "" if the
	// source folder does not exist.
	CopyFolder(ctx context.Context, src *Project, folderPath string, dst *Project) (string, error)

	// CopyReferenceData copies the platform's well-known reference
	// input folder from src into dst. Returns "" if src has no
	// reference data.
	CopyReferenceData(ctx context.Context, src, dst *Project) (string, error)

	// GetFileID resolves a file path within project to an absolute
	// content reference. Paths that are already absolute references
	// are returned unchanged.
	GetFileID(ctx context.Context, project *Project, filePath string) (string, error)

	// GetFolderID resolves a folder path within project to an
	// id-addressed reference, or "" if the folder does not exist.
	GetFolderID(ctx context.Context, project *Project, folderPath string) (string, error)

	// CopyWorkflow copies the workflow identified by workflowID
	// into dst unless a workflow with a matching name already
	// exists there. It returns the id of the existing or newly
	// created workflow, or "" if the source workflow does not
	// exist.
	CopyWorkflow(ctx context.Context, workflowID string, dst *Project) (string, error)

	// CopyWorkflows copies every workflow owned by src into dst,
	// skipping names already present. It returns the ids of all
	// workflows in dst afterwards, creations appended in order.
	CopyWorkflows(ctx context.Context, src, dst *Project) ([]string, error)

	// SubmitTask submits a workflow run. A failed submission is
	// reported as a nil task with a nil error, with detail in the
	// log only.
	SubmitTask(ctx context.Context, name string, project *Project, workflowID string, parameters map[string]interface{}) (Task, error)

	// GetTasksByName returns every live (non-deprioritized) task in
	// project with the given display name.
	GetTasksByName(ctx context.Context, project *Project, name string) ([]Task, error)

	// GetTaskState derives the task's State. With refresh, the
	// underlying records are re-fetched first.
	GetTaskState(ctx context.Context, task Task, refresh bool) (State, error)

	// GetTaskOutput resolves the named output of a finished task to
	// an absolute content reference.
	GetTaskOutput(ctx context.Context, task Task, outputName string) (string, error)

	// DeleteTask deletes the task's submission record. Irreversible.
	DeleteTask(ctx context.Context, task Task) error
}
