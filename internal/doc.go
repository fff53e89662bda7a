// Package internal contains the implementation packages of pagesmith.
//
// # Package Organization
//
// The core turns one incoming file into rendered output:
//
//   - router: classifies a file as skipped, a string template or a named template
//   - datactx: merges globals, glob-matched data files and a per-page override
//   - renderer: resolves template paths and renders through the template engine
//   - plugins: filter and extension registry plus the builtin catalogue
//   - errors: error taxonomy, console or live-channel reporting, browser overlay
//   - reload: decides whether a changed file triggers a browser reload
//   - build: two-phase renaming of multi-suffix entries and the static builder
//   - pipeline: the hook surface hosts call (Configure, Transform, FileChanged,
//     BuildStart, BuildEnd)
//
// The hosts shipped with pagesmith drive the core:
//
//   - server: development server with client injection and live reload
//   - websocket: live channel to connected browsers
//   - watcher: debounced file system notifications
//   - middleware, validation: HTTP middleware stack and request checks
//   - scaffolding: starter projects for "pagesmith init"
//
// Supporting packages are config, logging, version and testutils.
//
// # Concurrency
//
// A configured pipeline is safe for concurrent Transform calls. The builder
// renders entries on a worker pool; the renaming pass runs strictly before
// and after it.
package internal
