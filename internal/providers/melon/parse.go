package melon

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wakakowasake/favthing/internal/domain"
)

var (
	albumLinkPattern   = regexp.MustCompile(`goAlbumDetail\('(\d+)'\)`)
	playSongPattern    = regexp.MustCompile(`playSong\('[^']*',\s*'?(\d+)'?\)`)
	releaseDatePattern = regexp.MustCompile(`^((?:19|20)\d{2})[.\-](?:0[1-9]|1[0-2])(?:[.\-]\d{2})?$`)
)

// ParseSearchPage extracts the song rows from a search result page. A page
// without a result table yields an empty list.
func ParseSearchPage(html []byte) ([]domain.Song, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	songs := make([]domain.Song, 0, 50)
	doc.Find("#frm_defaultList table tbody tr").Each(func(_ int, row *goquery.Selection) {
		song, ok := parseRow(row)
		if ok {
			songs = append(songs, song)
		}
	})
	return songs, nil
}

func parseRow(row *goquery.Selection) (domain.Song, bool) {
	title := normSpace(row.Find("a.fc_gray").First().Text())
	if title == "" {
		return domain.Song{}, false
	}

	songID, _ := row.Find("input[name=input_check]").First().Attr("value")
	songID = strings.TrimSpace(songID)
	if songID == "" {
		row.Find("a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
			href, _ := link.Attr("href")
			if match := playSongPattern.FindStringSubmatch(href); match != nil {
				songID = match[1]
				return false
			}
			return true
		})
	}

	var artists []string
	seen := map[string]bool{}
	row.Find("#artistName a.fc_mgray").Each(func(_ int, link *goquery.Selection) {
		name := normSpace(link.Text())
		if name != "" && !seen[name] {
			seen[name] = true
			artists = append(artists, name)
		}
	})

	var album, albumID string
	row.Find("a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		match := albumLinkPattern.FindStringSubmatch(href)
		if match == nil {
			return true
		}
		albumID = match[1]
		album = normSpace(link.Text())
		return false
	})

	return domain.Song{
		SongID:  songID,
		Title:   title,
		Artist:  strings.Join(artists, ", "),
		Album:   album,
		AlbumID: albumID,
		Year:    releaseYear(row),
	}, true
}

// releaseYear reads the year from a cell holding only a release date such as
// "2010.12.09". Rows without one leave the year empty.
func releaseYear(row *goquery.Selection) string {
	year := ""
	row.Find("td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if match := releaseDatePattern.FindStringSubmatch(normSpace(cell.Text())); match != nil {
			year = match[1]
			return false
		}
		return true
	})
	return year
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
