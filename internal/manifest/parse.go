package manifest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"fvrip/internal/services"
)

// xmlPackage mirrors the package document the catalog serves. The on-wire
// shape follows the viewer's OPF-like dialect: a flat manifest of page items,
// optionally grouped into chapters, plus DRM and spine sections.
type xmlPackage struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		Title string `xml:"title"`
	} `xml:"metadata"`
	Manifest struct {
		Chapters []xmlChapter `xml:"chapter"`
		Items    []xmlItem    `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			Thumbnail string `xml:"thumbnail,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
	DRM struct {
		Certificates []struct {
			Type string `xml:"type,attr"`
			URL  string `xml:"url,attr"`
		} `xml:"certificate"`
		SearchableText struct {
			URL string `xml:"url,attr"`
		} `xml:"searchabletext"`
		Archive struct {
			URL string `xml:"url,attr"`
		} `xml:"archive"`
		Customized struct {
			PageDescription struct {
				External string `xml:"external,attr"`
			} `xml:"pagedescription"`
		} `xml:"customized"`
	} `xml:"drm_enabled"`
}

type xmlChapter struct {
	Index *int      `xml:"index,attr"`
	Items []xmlItem `xml:"item"`
}

type xmlItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
	Page      *int   `xml:"page,attr"`
}

// Parse builds a validated Book from a package document. bookID namespaces
// the cache and the output artifacts.
func Parse(bookID string, data []byte) (*Book, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = charsetReader

	var pkg xmlPackage
	if err := decoder.Decode(&pkg); err != nil {
		return nil, services.Wrap(services.ErrManifestIncomplete, "manifest", "parse", "", err)
	}

	book := &Book{
		ID:                 strings.TrimSpace(bookID),
		Title:              strings.TrimSpace(pkg.Metadata.Title),
		SearchableTextHref: strings.TrimSpace(pkg.DRM.SearchableText.URL),
		ArchiveHref:        strings.TrimSpace(pkg.DRM.Archive.URL),
		TOCHref:            strings.TrimSpace(pkg.DRM.Customized.PageDescription.External),
	}
	if book.ID == "" {
		return nil, services.Wrap(services.ErrManifestIncomplete, "manifest", "parse", "book identifier required", nil)
	}

	if err := extractLicense(book, &pkg); err != nil {
		return nil, err
	}
	if err := buildChapters(book, &pkg); err != nil {
		return nil, err
	}
	attachThumbnails(book, &pkg)

	if err := validate(book); err != nil {
		return nil, err
	}
	book.freeze()
	return book, nil
}

func extractLicense(book *Book, pkg *xmlPackage) error {
	if len(pkg.DRM.Certificates) != 1 {
		return services.Wrap(services.ErrManifestIncomplete, "manifest", "license",
			fmt.Sprintf("certificate entry must occur exactly once, found %d", len(pkg.DRM.Certificates)), nil)
	}
	cert := pkg.DRM.Certificates[0]
	if cert.Type != "2" {
		return services.Wrap(services.ErrManifestIncomplete, "manifest", "license",
			fmt.Sprintf("only embedded licenses (type 2) are supported, found type %q", cert.Type), nil)
	}
	if strings.TrimSpace(cert.URL) == "" {
		return services.Wrap(services.ErrManifestIncomplete, "manifest", "license", "license file URL missing", nil)
	}
	book.LicenseHref = strings.TrimSpace(cert.URL)
	return nil
}

// buildChapters turns the manifest into the chapter/page/object tree. Books
// without explicit chapter grouping (the common periodical layout) become a
// single chapter 0.
func buildChapters(book *Book, pkg *xmlPackage) error {
	groups := pkg.Manifest.Chapters
	if len(groups) == 0 {
		if len(pkg.Manifest.Items) == 0 {
			return services.Wrap(services.ErrManifestIncomplete, "manifest", "pages", "no pages found", nil)
		}
		index := 0
		groups = []xmlChapter{{Index: &index, Items: pkg.Manifest.Items}}
	}

	for gi, group := range groups {
		chapterIndex := gi
		if group.Index != nil {
			chapterIndex = *group.Index
		}
		chapter := Chapter{Index: chapterIndex}

		var currentPage *Page
		nextImplicitPage := 0
		for _, item := range group.Items {
			href := strings.TrimSpace(item.Href)
			if href == "" {
				return services.Wrap(services.ErrManifestIncomplete, "manifest", "pages",
					fmt.Sprintf("item %q has no href", item.ID), nil)
			}
			contentType, err := resolveMediaType(item)
			if err != nil {
				return err
			}

			pageIndex := nextImplicitPage
			if item.Page != nil {
				pageIndex = *item.Page
			}
			if currentPage == nil || currentPage.Index != pageIndex {
				chapter.Pages = append(chapter.Pages, Page{Index: pageIndex})
				currentPage = &chapter.Pages[len(chapter.Pages)-1]
				nextImplicitPage = pageIndex + 1
			}

			pos := Position{Chapter: chapterIndex, Page: pageIndex, Object: len(currentPage.Objects)}
			id := strings.TrimSpace(item.ID)
			if id == "" {
				id = objectIDFromHref(href, pos)
			}
			currentPage.Objects = append(currentPage.Objects, ObjectDescriptor{
				ID:          id,
				Position:    pos,
				Href:        href,
				ContentType: contentType,
			})
		}
		book.Chapters = append(book.Chapters, chapter)
	}
	return nil
}

// resolveMediaType falls back to suffix guessing when media-type is absent,
// as the deployed metadata frequently omits it.
func resolveMediaType(item xmlItem) (string, error) {
	mediaType := strings.TrimSpace(item.MediaType)
	if mediaType != "" {
		return mediaType, nil
	}
	switch strings.ToLower(path.Ext(item.Href)) {
	case ".swf":
		return ContentTypeFlash, nil
	case ".png", ".jpg", ".gif":
		return ContentTypePage, nil
	default:
		return "", services.Wrap(services.ErrManifestIncomplete, "manifest", "pages",
			fmt.Sprintf("cannot determine media type for item %q", item.Href), nil)
	}
}

func objectIDFromHref(href string, pos Position) string {
	base := path.Base(href)
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." {
		return pos.String()
	}
	return base
}

func attachThumbnails(book *Book, pkg *xmlPackage) {
	refs := pkg.Spine.ItemRefs
	if len(refs) == 0 {
		return
	}
	i := 0
	for ci := range book.Chapters {
		for pi := range book.Chapters[ci].Pages {
			if i >= len(refs) {
				return
			}
			book.Chapters[ci].Pages[pi].Thumbnail = strings.TrimSpace(refs[i].Thumbnail)
			i++
		}
	}
}

// validate enforces the preconditions fetch and assembly depend on: chapter
// and page indices strictly increasing with no gaps, every page populated,
// object IDs unique across the book (they key the disk cache).
func validate(book *Book) error {
	if len(book.Chapters) == 0 {
		return services.Wrap(services.ErrManifestIncomplete, "manifest", "validate", "no chapters", nil)
	}
	seenIDs := make(map[string]Position)
	for ci, chapter := range book.Chapters {
		if want := book.Chapters[0].Index + ci; chapter.Index != want {
			return services.Wrap(services.ErrManifestIncomplete, "manifest", "validate",
				fmt.Sprintf("chapter indices must be contiguous: found %d, want %d", chapter.Index, want), nil)
		}
		if len(chapter.Pages) == 0 {
			return services.Wrap(services.ErrManifestIncomplete, "manifest", "validate",
				fmt.Sprintf("chapter %d has no pages", chapter.Index), nil)
		}
		for pi, page := range chapter.Pages {
			if want := chapter.Pages[0].Index + pi; page.Index != want {
				return services.Wrap(services.ErrManifestIncomplete, "manifest", "validate",
					fmt.Sprintf("page indices in chapter %d must be contiguous: found %d, want %d", chapter.Index, page.Index, want), nil)
			}
			if len(page.Objects) == 0 {
				return services.Wrap(services.ErrManifestIncomplete, "manifest", "validate",
					fmt.Sprintf("page %d:%d has no objects", chapter.Index, page.Index), nil)
			}
			for _, obj := range page.Objects {
				if prev, dup := seenIDs[obj.ID]; dup {
					return services.Wrap(services.ErrManifestIncomplete, "manifest", "validate",
						fmt.Sprintf("object id %q at %s already used at %s", obj.ID, obj.Position, prev), nil)
				}
				seenIDs[obj.ID] = obj.Position
			}
		}
	}
	return nil
}

// charsetReader handles the GB-family encodings the origin serves alongside
// UTF-8.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(input), nil
}
