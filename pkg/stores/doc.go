// Package stores persists the run history of engine invocations in SQLite.
// Schema changes are applied by embedded migrations when the store opens.
package stores
