// Package fetch caches a book's encrypted assets on disk. A Cache pulls
// bytes through a Source with bounded retries and exponential backoff,
// deduplicates concurrent requests for the same object, and keeps a SQLite
// index of cached objects and completed runs beside the cache tree.
package fetch
