// Command fvrip recovers readable documents from flip-viewer books. It
// fetches a book's encrypted objects, unwraps the access code from the
// embedded license, decrypts and renders every page, and assembles the
// result into a single PDF with a completeness report.
package main
