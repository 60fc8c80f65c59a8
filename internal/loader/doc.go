// Package loader turns a model artifact on disk into a ready model.Handle by
// trying an ordered list of strategies, each more invasive than the last,
// until one succeeds. Every attempt is recorded for diagnostics.
package loader
