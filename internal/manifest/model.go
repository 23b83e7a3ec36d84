package manifest

import "fmt"

// ContentTypeFlash and ContentTypePage are the two media types the viewer
// ships: full Flash pages and pre-rendered raster pages.
const (
	ContentTypeFlash = "application/x-shockwave-flash"
	ContentTypePage  = "image/x-flp"
)

// Position addresses one object inside a book. Document order is the
// lexicographic order of (Chapter, Page, Object).
type Position struct {
	Chapter int `json:"chapter"`
	Page    int `json:"page"`
	Object  int `json:"object"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d:%d", p.Chapter, p.Page, p.Object)
}

// Less reports whether p precedes other in document order.
func (p Position) Less(other Position) bool {
	if p.Chapter != other.Chapter {
		return p.Chapter < other.Chapter
	}
	if p.Page != other.Page {
		return p.Page < other.Page
	}
	return p.Object < other.Object
}

// ObjectDescriptor identifies one encrypted asset. Immutable once parsed; it
// carries everything the cipher needs to derive the object key.
type ObjectDescriptor struct {
	ID          string
	Position    Position
	Href        string
	ContentType string
}

// Page is one output page built from one or more objects.
type Page struct {
	Index   int
	Objects []ObjectDescriptor

	// Thumbnail is the spine-declared preview locator, when present.
	Thumbnail string
}

// Chapter groups consecutive pages.
type Chapter struct {
	Index int
	Pages []Page
}

// Book is the parsed, validated manifest tree. Read-only after parsing.
type Book struct {
	ID    string
	Title string

	// LicenseHref locates the embedded license document holding the
	// obfuscated access code.
	LicenseHref string

	Chapters []Chapter

	// Optional auxiliary assets the package may declare.
	SearchableTextHref string
	ArchiveHref        string
	TOCHref            string

	flat  []ObjectDescriptor
	index map[Position]int
}

// Objects returns every descriptor in document order. The slice is shared;
// callers must not mutate it.
func (b *Book) Objects() []ObjectDescriptor {
	return b.flat
}

// Lookup resolves a position to its descriptor in O(1).
func (b *Book) Lookup(pos Position) (ObjectDescriptor, bool) {
	i, ok := b.index[pos]
	if !ok {
		return ObjectDescriptor{}, false
	}
	return b.flat[i], true
}

// PageCount is the number of output pages across all chapters.
func (b *Book) PageCount() int {
	n := 0
	for _, chapter := range b.Chapters {
		n += len(chapter.Pages)
	}
	return n
}

// Positions returns every page position in document order, one entry per
// page (not per object).
func (b *Book) Positions() []Position {
	out := make([]Position, 0, b.PageCount())
	for _, chapter := range b.Chapters {
		for _, page := range chapter.Pages {
			out = append(out, Position{Chapter: chapter.Index, Page: page.Index})
		}
	}
	return out
}

// freeze flattens the tree into the document-order arena used during
// assembly.
func (b *Book) freeze() {
	b.flat = b.flat[:0]
	b.index = make(map[Position]int)
	for _, chapter := range b.Chapters {
		for _, page := range chapter.Pages {
			for _, obj := range page.Objects {
				b.index[obj.Position] = len(b.flat)
				b.flat = append(b.flat, obj)
			}
		}
	}
}
