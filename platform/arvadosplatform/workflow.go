// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package arvadosplatform

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/ctxlog"

	"github.com/dzlabs/lander/platform"
)

// Workflow names may carry a trailing version annotation, e.g.
// "Align (a1b2c3)". Dedup comparisons use the bare name.
var versionAnnotation = regexp.MustCompile(` \(.*\)$`)

// CopyWorkflow copies the workflow identified by workflowID into dst,
// unless dst already has a workflow whose name starts with the source
// workflow's version-stripped name; then the first such match is
// returned as-is. Returns "" if the source workflow cannot be fetched;
// that is a not-found outcome, not a failure.
func (p *ArvadosPlatform) CopyWorkflow(ctx context.Context, workflowID string, dst *platform.Project) (string, error) {
	logger := ctxlog.FromContext(ctx)
	var wf arvados.Workflow
	if err := p.API.RequestAndDecodeContext(ctx, &wf, "GET", "arvados/v1/workflows/"+workflowID, nil, nil); err != nil {
		logger.WithError(err).WithField("workflow", workflowID).Debug("workflow lookup failed")
		return "", nil
	}
	name := versionAnnotation.ReplaceAllString(wf.Name, "")
	var existing arvados.Workflow
	ok, err := p.find(ctx, "workflows", []arvados.Filter{
		{Attr: "owner_uuid", Operator: "=", Operand: dst.UUID},
		{Attr: "name", Operator: "like", Operand: name + "%"},
	}, &existing)
	if err != nil {
		return "", fmt.Errorf("arvados: list workflows: %w", err)
	}
	if ok {
		return existing.UUID, nil
	}
	created, err := p.createWorkflow(ctx, wf, dst.UUID)
	if err != nil {
		return "", err
	}
	return created.UUID, nil
}

// CopyWorkflows copies every workflow owned by src into dst, skipping
// exact name matches already present there. Note the asymmetry with
// CopyWorkflow, which matches on the version-stripped name prefix;
// both behaviors are load-bearing for existing callers.
func (p *ArvadosPlatform) CopyWorkflows(ctx context.Context, src, dst *platform.Project) ([]string, error) {
	srcWorkflows, err := p.listWorkflows(ctx, src.UUID)
	if err != nil {
		return nil, err
	}
	dstWorkflows, err := p.listWorkflows(ctx, dst.UUID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(dstWorkflows))
	uuids := make([]string, 0, len(dstWorkflows)+len(srcWorkflows))
	for _, wf := range dstWorkflows {
		have[wf.Name] = true
		uuids = append(uuids, wf.UUID)
	}
	for _, wf := range srcWorkflows {
		if have[wf.Name] {
			continue
		}
		created, err := p.createWorkflow(ctx, wf, dst.UUID)
		if err != nil {
			return nil, err
		}
		uuids = append(uuids, created.UUID)
	}
	return uuids, nil
}

// createWorkflow clones src's body into a new workflow owned by
// ownerUUID. The clone carries the name, description and definition
// only; identifiers and timestamps are left for the server to assign.
func (p *ArvadosPlatform) createWorkflow(ctx context.Context, src arvados.Workflow, ownerUUID string) (*arvados.Workflow, error) {
	var created arvados.Workflow
	err := p.API.RequestAndDecodeContext(ctx, &created, "POST", "arvados/v1/workflows", nil, map[string]interface{}{
		"workflow": map[string]interface{}{
			"owner_uuid":  ownerUUID,
			"name":        src.Name,
			"description": src.Description,
			"definition":  src.Definition,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("arvados: create workflow: %w", err)
	}
	return &created, nil
}

func (p *ArvadosPlatform) listWorkflows(ctx context.Context, ownerUUID string) ([]arvados.Workflow, error) {
	var workflows []arvados.Workflow
	params := arvados.ResourceListParams{
		Filters: []arvados.Filter{{Attr: "owner_uuid", Operator: "=", Operand: ownerUUID}},
		Order:   "uuid",
	}
	err := p.listAll(ctx, "workflows", params, func(raw json.RawMessage) error {
		var wf arvados.Workflow
		if err := json.Unmarshal(raw, &wf); err != nil {
			return err
		}
		workflows = append(workflows, wf)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("arvados: list workflows: %w", err)
	}
	return workflows, nil
}
