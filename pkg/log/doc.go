// Package log provides structured zerolog-based logging shared by every
// maintainer, collaborator, and the api surface. log.Init configures the
// global logger from config.LoggingConfig; log.WithComponent derives a
// per-package child logger that tags every entry with a component field.
package log
