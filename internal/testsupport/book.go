package testsupport

import (
	"fmt"
	"strings"
	"testing"

	"fvrip/internal/manifest"
)

// PackageXML builds a minimal single-chapter package document with the given
// number of Flash page objects. The package declares the optional companion
// assets (searchable text, archive, table of contents) so tests can exercise
// their retrieval.
func PackageXML(pages int) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><package><metadata><title>Test Book</title></metadata><manifest>`)
	for i := 0; i < pages; i++ {
		fmt.Fprintf(&b, `<item id="page%d" href="files/page/%d.swf" media-type="application/x-shockwave-flash"/>`, i, i+1)
	}
	b.WriteString(`</manifest><drm_enabled>`)
	b.WriteString(`<certificate type="2" url="files/license.dat"/>`)
	b.WriteString(`<searchabletext url="files/text.zip"/>`)
	b.WriteString(`<archive url="files/archive.zip"/>`)
	b.WriteString(`<customized><pagedescription external="files/toc.xml"/></customized>`)
	b.WriteString(`</drm_enabled></package>`)
	return []byte(b.String())
}

// MustParseBook parses a generated package document or fails the test.
func MustParseBook(t testing.TB, bookID string, pages int) *manifest.Book {
	t.Helper()
	book, err := manifest.Parse(bookID, PackageXML(pages))
	if err != nil {
		t.Fatalf("manifest.Parse: %v", err)
	}
	return book
}
