// Package assemble builds the final PDF from rendered page images. Pages
// arrive in whatever order the workers finish; the assembler sorts them into
// reading order, substitutes placeholders for pages that never rendered, and
// produces a JSON report describing what was and was not recovered.
package assemble
