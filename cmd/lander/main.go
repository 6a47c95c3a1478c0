// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"git.arvados.org/arvados.git/lib/cmd"
	"github.com/dzlabs/lander/lib/launcher"

	// Register platform adapters.
	_ "github.com/dzlabs/lander/platform/arvadosplatform"
)

var handler = cmd.Multi(map[string]cmd.Handler{
	"version":   cmd.Version,
	"-version":  cmd.Version,
	"--version": cmd.Version,

	"setup":  launcher.SetupCommand,
	"submit": launcher.SubmitCommand,
	"status": launcher.StatusCommand,
	"output": launcher.OutputCommand,
	"delete": launcher.DeleteCommand,
})

func main() {
	os.Exit(handler.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
