package lastfm

import "strings"

type image struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

// largest picks the last entry; the catalogue lists sizes small to mega.
func largest(images []image) string {
	if len(images) == 0 {
		return ""
	}
	return strings.TrimSpace(images[len(images)-1].URL)
}

type apiResponse interface {
	apiError() (int, string)
}

// failure is the error envelope the catalogue returns with a 200 status.
type failure struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

func (f failure) apiError() (int, string) {
	return f.Code, f.Message
}

type trackInfoResponse struct {
	failure
	Track *struct {
		Album *struct {
			Image []image `json:"image"`
		} `json:"album"`
	} `json:"track"`
}

type albumSearchResponse struct {
	failure
	Results *struct {
		AlbumMatches struct {
			Album []struct {
				Name  string  `json:"name"`
				Image []image `json:"image"`
			} `json:"album"`
		} `json:"albummatches"`
	} `json:"results"`
}

type artistInfoResponse struct {
	failure
	Artist *struct {
		Image []image `json:"image"`
	} `json:"artist"`
}
