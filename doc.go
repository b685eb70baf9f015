// Package godeploy deploys plugin modules into a running Go host at runtime.
// A module arrives as a zip package or an already unpacked directory, is
// loaded into its own isolated loading context, instantiated, wired into a
// per-module extension context, started, and published in a registry that
// readers can query without locks. Redeploying a name swaps the old module
// out atomically.
//
// Key Features:
//   - Zip extraction with top-level directory stripping and zip-slip protection
//   - Isolated loading contexts with parent fallback to host-provided types
//   - Entry types from a build-time Catalog or from Go plugin (.so) units
//   - Typed component hooks; hook failures become warnings, not errors
//   - Per-name hot-swap lock with a bounded management pool
//   - Remote sources checked against a domain allow-list before any I/O
//   - gRPC node service and a cluster relay that aggregates node results
//   - Hot reload of node configuration and an audit trail through Argus
//
// Basic Usage:
//
//	catalog := godeploy.NewCatalog()
//	catalog.MustRegister(godeploy.EntryType{
//		ID:  "example.Greeter",
//		New: func() (godeploy.Plugin, error) { return &Greeter{}, nil },
//	})
//
//	d, err := godeploy.NewDeployer(godeploy.DeployerOptions{
//		Config:  godeploy.DefaultConfig("/var/lib/node"),
//		Catalog: catalog,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer d.Close(context.Background())
//
//	result, err := d.Deploy(ctx, godeploy.DeployRequest{
//		Name:          "greeter",
//		SourceLocator: "/tmp/greeter.zip",
//	})
//
// A package holds exactly one descriptor (plugin.yaml, plugin.json, ...)
// whose "plugin" key names the entry type, any number of *.unit manifests
// or *.so files that export entry types, and an optional config file whose
// values override the host settings for that module.
//
// Errors:
// Every failure is a *errors.Error from github.com/agilira/go-errors. Use
// KindOf to classify it into InputError, AccessError, ExtractionError,
// LoadError, WiringWarning or LifecycleError.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package godeploy
