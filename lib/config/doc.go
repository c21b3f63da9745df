// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for keybridge
// binaries.
//
// Configuration is loaded from a single file specified by either the
// KEYBRIDGE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). [Resolve] adds one fallback for the client CLI: with
// neither set it returns the defaults. There is no ~/.config discovery
// and no automatic file search.
//
// The file supports environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production is stricter: consent mode is
// forced to always, generation always prompts, and the in-memory
// credential backend is rejected by [Config.Validate].
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${KEYBRIDGE_ROOT}, and ${VAR:-default} patterns are
// expanded. The only other environment variable consulted is
// KEYBRIDGE_CONSENT_MODE, through [Config.ConsentMode].
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Daemon, Client
//   - [Default] -- returns a Config with development defaults
//   - [Load], [LoadFile], and [Resolve] -- the entry points for loading
package config
