// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package version carries the gateway version injected at build time.
package version

// Version is overridden via -ldflags "-X github.com/ljie-PI/ghcp-ollama/internal/version.Version=vX.Y.Z".
var Version = "dev"
