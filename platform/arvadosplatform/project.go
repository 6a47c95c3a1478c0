// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package arvadosplatform

import (
	"context"
	"fmt"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/ctxlog"

	"github.com/dzlabs/lander/platform"
)

// GetProjectByName returns the first group with the given name, or nil
// if there is none.
func (p *ArvadosPlatform) GetProjectByName(ctx context.Context, name string) (*platform.Project, error) {
	return p.findProject(ctx, arvados.Filter{Attr: "name", Operator: "=", Operand: name})
}

// GetProjectByID returns the group with the given uuid, or nil if
// there is none.
func (p *ArvadosPlatform) GetProjectByID(ctx context.Context, id string) (*platform.Project, error) {
	return p.findProject(ctx, arvados.Filter{Attr: "uuid", Operator: "=", Operand: id})
}

func (p *ArvadosPlatform) findProject(ctx context.Context, filter arvados.Filter) (*platform.Project, error) {
	var group arvados.Group
	ok, err := p.find(ctx, "groups", []arvados.Filter{filter}, &group)
	if err != nil {
		return nil, fmt.Errorf("arvados: list groups: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &platform.Project{UUID: group.UUID, Name: group.Name}, nil
}

// GetProject derives the project the calling process runs in: the
// owner of the container request whose container we are. Returns nil
// if any step fails, e.g. when not running inside a managed container;
// that is an expected outcome, not an error.
func (p *ArvadosPlatform) GetProject(ctx context.Context) (*platform.Project, error) {
	logger := ctxlog.FromContext(ctx)
	var current arvados.Container
	if err := p.API.RequestAndDecodeContext(ctx, &current, "GET", "arvados/v1/containers/current", nil, nil); err != nil {
		logger.WithError(err).Debug("not running inside an arvados container")
		return nil, nil
	}
	var cr arvados.ContainerRequest
	ok, err := p.find(ctx, "container_requests", []arvados.Filter{
		{Attr: "container_uuid", Operator: "=", Operand: current.UUID},
	}, &cr)
	if err != nil || !ok {
		if err != nil {
			logger.WithError(err).Debug("cannot find our container request")
		}
		return nil, nil
	}
	return p.GetProjectByID(ctx, cr.OwnerUUID)
}
