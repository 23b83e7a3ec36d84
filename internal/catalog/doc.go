// Package catalog retrieves flip-viewer books from their origin. A Client
// speaks HTTP to the hosting server using the origin's fixed path scheme; a
// Dir serves a book that was mirrored to disk beforehand. Both hand back raw
// bytes and classify failures as transient or permanent so the fetch layer
// can decide what to retry.
package catalog
