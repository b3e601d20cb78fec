package kmdb

import (
	"regexp"
	"strings"

	"github.com/wakakowasake/favthing/internal/domain"
)

// highlightPattern matches the search highlighter's !HS/!HE markers and any HTML tag.
var highlightPattern = regexp.MustCompile(`!HS|!HE|<[^>]*>`)

func CleanTitle(raw string) string {
	return strings.TrimSpace(highlightPattern.ReplaceAllString(raw, ""))
}

// firstSegment returns the first entry of a pipe-delimited URL list.
func firstSegment(raw string) string {
	if raw == "" {
		return ""
	}
	head, _, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(head)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func normalizeResponse(response searchResponse) domain.MovieSearchResult {
	var records []movieRecord
	total := int(response.TotalCount)
	if len(response.Data) > 0 {
		records = response.Data[0].Result
		if response.Data[0].TotalCount > 0 {
			total = int(response.Data[0].TotalCount)
		}
	}

	movies := make([]domain.Movie, 0, len(records))
	for _, record := range records {
		movies = append(movies, normalizeMovie(record))
	}
	return domain.MovieSearchResult{Results: movies, TotalResults: total}
}

func normalizeMovie(record movieRecord) domain.Movie {
	title := CleanTitle(string(record.Title))
	return domain.Movie{
		ID:            firstNonEmpty(string(record.MovieSeq), string(record.DOCID)),
		Title:         title,
		OriginalTitle: firstNonEmpty(string(record.TitleEng), string(record.TitleOrg), title),
		Overview:      record.Plots.first(),
		PosterPath:    firstSegment(string(record.Posters)),
		BackdropPath:  firstSegment(string(record.Stills)),
		ReleaseDate:   firstNonEmpty(string(record.RepRlsDate), string(record.ProdYear)),
		Director:      record.Directors.first(),
		Actors:        strings.Join(record.Actors.names(), ", "),
		Runtime:       string(record.Runtime),
		Rating:        firstNonEmpty(record.Ratings.first(), string(record.Rating)),
		Year:          string(record.ProdYear),
		Genre:         string(record.Genre),
		Nation:        string(record.Nation),
	}
}
