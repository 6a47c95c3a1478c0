// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package arvadosplatform adapts the launcher's platform contract to
// Arvados: projects are groups, folders are collections, workflow
// definitions are workflow records, and tasks are container requests
// created by arvados-cwl-runner.
package arvadosplatform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/arvadosclient"
	"git.arvados.org/arvados.git/sdk/go/keepclient"

	"github.com/dzlabs/lander/platform"
)

const apiHostEnv = "ARVADOS_API_HOST"

// ArvadosPlatform implements platform.Platform against one Arvados
// cluster. The zero value is not usable: call Connect, or populate API
// and Keep directly (tests do the latter with fakes).
//
// ArvadosPlatform performs one synchronous API call (or a short fixed
// sequence of them) per operation. It keeps no state besides the
// clients, which are read-only after Connect, so a single instance is
// safe to reuse across calls.
type ArvadosPlatform struct {
	// API is the typed Arvados API client.
	API *arvados.Client
	// Keep is the content-store client backing collection file I/O.
	Keep *keepclient.KeepClient

	// RunnerCommand is the workflow runner binary invoked by
	// SubmitTask. Empty means arvados-cwl-runner.
	RunnerCommand string
}

func init() {
	platform.Register(platform.Registration{
		Name:   "arvados",
		Detect: Detect,
		New:    func() platform.Platform { return New() },
	})
}

// New returns an unconnected adapter.
func New() *ArvadosPlatform {
	return &ArvadosPlatform{}
}

// Name implements platform.Platform.
func (p *ArvadosPlatform) Name() string { return "arvados" }

// Detect reports whether the current environment is configured to talk
// to an Arvados cluster. It checks the environment only; no network.
func Detect() bool {
	return os.Getenv(apiHostEnv) != ""
}

// Connect resolves the ARVADOS_* environment into an authenticated API
// client and a Keep client. Credential and endpoint problems propagate
// from the SDK unmodified; no retry happens at this layer.
func (p *ArvadosPlatform) Connect(ctx context.Context) error {
	ac := arvados.NewClientFromEnv()
	arv, err := arvadosclient.New(ac)
	if err != nil {
		return fmt.Errorf("arvados: client setup: %w", err)
	}
	p.API = ac
	p.Keep = keepclient.New(arv)
	return nil
}

// itemList is the envelope shared by all list responses. Items stay
// raw so the same helpers can serve every resource kind.
type itemList struct {
	Items          []json.RawMessage `json:"items"`
	ItemsAvailable int               `json:"items_available"`
}

// find fetches the first record matching filters into dst and reports
// whether one existed. Multiple matches are not an error: the first
// wins, in server-defined order.
func (p *ArvadosPlatform) find(ctx context.Context, kind string, filters []arvados.Filter, dst interface{}) (bool, error) {
	var list itemList
	err := p.API.RequestAndDecodeContext(ctx, &list, "GET", "arvados/v1/"+kind, nil, arvados.ResourceListParams{Filters: filters})
	if err != nil {
		return false, err
	}
	if len(list.Items) == 0 {
		return false, nil
	}
	return true, json.Unmarshal(list.Items[0], dst)
}

// findOrCreate fetches the first record matching filters, creating one
// from createAttrs if none exists. At most one record is created per
// call; under concurrent callers the find-then-create pattern can
// still race, which the caller accepts as best effort.
func (p *ArvadosPlatform) findOrCreate(ctx context.Context, kind, resource string, filters []arvados.Filter, createAttrs map[string]interface{}, dst interface{}) (created bool, err error) {
	ok, err := p.find(ctx, kind, filters, dst)
	if err != nil || ok {
		return false, err
	}
	err = p.API.RequestAndDecodeContext(ctx, dst, "POST", "arvados/v1/"+kind, nil, map[string]interface{}{resource: createAttrs})
	if err != nil {
		return false, fmt.Errorf("arvados: create %s: %w", resource, err)
	}
	return true, nil
}

// listAll pages a list call to completion, passing every raw item to
// fn. params.Order should make the listing stable across pages.
func (p *ArvadosPlatform) listAll(ctx context.Context, kind string, params arvados.ResourceListParams, fn func(json.RawMessage) error) error {
	for {
		// A fresh list per page: decoding into a reused one
		// would merge pages together.
		var page itemList
		if err := p.API.RequestAndDecodeContext(ctx, &page, "GET", "arvados/v1/"+kind, nil, params); err != nil {
			return err
		}
		if len(page.Items) == 0 {
			return nil
		}
		for _, item := range page.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
		params.Offset += len(page.Items)
	}
}
