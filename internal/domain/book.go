package domain

type BookSort string

const (
	BookSortRelevance BookSort = "relevance"
	BookSortDate      BookSort = "date"
)

// BookQuery carries the book-search paging knobs. Zero values mean defaults.
type BookQuery struct {
	Query   string
	Display int
	Start   int
	Sort    BookSort
}

// NormalizeBookSort maps client sort names onto the two orders the book
// service understands. "sim" is accepted as an alias of relevance.
func NormalizeBookSort(raw string) (BookSort, bool) {
	switch raw {
	case "", "relevance", "sim":
		return BookSortRelevance, true
	case "date":
		return BookSortDate, true
	default:
		return "", false
	}
}
