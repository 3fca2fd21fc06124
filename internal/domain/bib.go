package domain

import "strings"

// maxAuthors caps how many creators are listed in a mirror entry.
const maxAuthors = 21

// excludedItemTypes are library items that are not citable works.
var excludedItemTypes = map[string]bool{
	"annotation":      true,
	"note":            true,
	"attachment":      true,
	"computerProgram": true,
}

// Creator is an author, editor or contributor of a bibliographic item.
type Creator struct {
	FirstName string
	LastName  string
}

// BibItem is a bibliographic item as the reference library returns it.
type BibItem struct {
	Key              string
	ItemType         string
	Title            string
	CreatorSummary   string
	ParsedDate       string
	PublicationTitle string
	Volume           string
	Issue            string
	Pages            string
	URL              string
	AbstractNote     string
	Creators         []Creator
}

// Authors lists the first creators' last and first names separated by ", ".
func (b BibItem) Authors() string {
	creators := b.Creators
	if len(creators) > maxAuthors {
		creators = creators[:maxAuthors]
	}
	var parts []string
	for _, c := range creators {
		if c.LastName != "" {
			parts = append(parts, c.LastName)
		}
		if c.FirstName != "" {
			parts = append(parts, c.FirstName)
		}
	}
	return strings.Join(parts, ", ")
}

// PublicationYear is the first four characters of the parsed date.
func (b BibItem) PublicationYear() string {
	if len(b.ParsedDate) < 4 {
		return b.ParsedDate
	}
	return b.ParsedDate[:4]
}

// NormalizeBibItems converts citable library items to mirror entries,
// preserving order.
func NormalizeBibItems(items []BibItem) []MirrorEntry {
	out := make([]MirrorEntry, 0, len(items))
	for _, it := range items {
		if excludedItemTypes[it.ItemType] {
			continue
		}
		out = append(out, MirrorEntry{
			Key:              optional(it.Key),
			ItemType:         optional(it.ItemType),
			Title:            optional(it.Title),
			CreatorSummary:   optional(it.CreatorSummary),
			Authors:          optional(it.Authors()),
			PublicationYear:  optional(it.PublicationYear()),
			PublicationTitle: optional(it.PublicationTitle),
			Volume:           optional(it.Volume),
			Issue:            optional(it.Issue),
			Pages:            optional(it.Pages),
			DataURL:          optional(it.URL),
			AbstractNote:     optional(it.AbstractNote),
		})
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
