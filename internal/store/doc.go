// Package store defines the persistence contracts for directory records and
// run tracking. Implementations live under internal/storage; this package
// must not import database drivers or concrete clients.
package store
