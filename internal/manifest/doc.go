// Package manifest parses the book package document into an ordered
// chapter/page/object tree and validates the ordering invariants the
// assembler depends on. The tree is flattened to a position-indexed list at
// parse time so assembly can look descriptors up in constant time.
package manifest
