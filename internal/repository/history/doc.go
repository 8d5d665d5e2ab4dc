// Package history persists the outcome of each update run in a local
// bbolt database so past batches can be listed from the CLI.
package history
