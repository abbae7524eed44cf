// Package config provides configuration types and loading for forage-launch.
//
// # Configuration Files
//
// The server reads a single file, TOML or YAML by extension, usually
// /etc/forage-launch/config.toml. Every key is optional; Load starts from
// Defaults and overlays what the file sets:
//
//	listen = ":3002"
//
//	[ports]
//	from = 3005
//	to = 3014
//
//	[sandbox]
//	image = "node:lts-alpine3.20"
//	workdir = "/app"
//
//	[tunnel]
//	enabled = true
//	timeout = "5m"
//
//	[kinds.svelte]
//	port = 4173
//	install = "npm install"
//	build = "npm run build"
//	run = "npx vite preview --host 0.0.0.0 --port 4173"
//
// # Project Kinds
//
// A Profile maps a project kind to the port its application binds inside
// the sandbox and to the install, build and run steps. Profile.CommandLine
// prepends the clone steps and joins everything with " && ". React, next
// and vite are built in; the kinds table adds or replaces entries.
//
// # Validation
//
// Config.Validate checks ranges, profiles and the tunnel pattern. Load
// validates after parsing. ValidateRepoURL and ValidateSandboxName check
// request input.
package config
