// Package store defines the persistence contract for users, restrooms,
// favorites and the restroom blacklist. Implementations live under
// internal/storage; this package must not import database drivers or
// concrete clients.
package store
