// Package internal contains the implementation packages of sitepipe.
//
// # Package Organization
//
//   - config: viper-backed configuration with defaults and validation
//   - content: the external content generator subprocess
//   - styles: SCSS compilation, the compiled-stylesheet cache and the
//     post-processing chain (media sorting, unused-rule removal,
//     prefixing, minification)
//   - scripts: esbuild bundling, once or watching
//   - assets: one-off remote asset downloads
//   - pipeline: Series and Parallel task combinators and the development
//     and production task graphs
//   - services: assembles producers, server and graph from a configuration
//   - server: static file server with live reload injection
//   - websocket: the live reload hub
//   - watcher: debounced recursive file watching and glob matching
//   - errors: structured errors and the per-task failure collector
//   - notifier: desktop notifications for watch failures and recoveries
//   - logging, fsutil, validation, version: shared support code
//
// # Flow
//
// The command line loads a config.Config and hands it to services.NewApp,
// which picks the development or production graph once. Producers write
// into the output directory; the server watches that directory and tells
// connected browsers to reload or swap stylesheets. Failures reported by
// watching producers reach the browser through the error collector.
package internal
