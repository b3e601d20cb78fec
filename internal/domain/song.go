package domain

type Song struct {
	SongID  string `json:"songId"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Album   string `json:"album"`
	AlbumID string `json:"albumId"`
	Year    string `json:"year"`
}

// SongResult is a song as returned to the client. AlbumImg is nil when
// enrichment did not run for the song, so the key is left out entirely.
type SongResult struct {
	Song
	AlbumImg *string `json:"albumImg,omitempty"`
}

func PlainSongs(songs []Song) []SongResult {
	out := make([]SongResult, 0, len(songs))
	for _, song := range songs {
		out = append(out, SongResult{Song: song})
	}
	return out
}
