package music

import (
	"context"

	"github.com/wakakowasake/favthing/internal/domain"
)

// ArtLookup is the album-art catalogue. Each lookup returns "" when it has
// no image for its input.
type ArtLookup interface {
	APIKey(ctx context.Context) (string, error)
	TrackArt(ctx context.Context, apiKey, artist, track string) (string, error)
	AlbumArt(ctx context.Context, apiKey, album string) (string, error)
	ArtistArt(ctx context.Context, apiKey, artist string) (string, error)
}

// ArtTier is one strategy in the album-art fallback list. Applies reports
// whether the song carries the fields the tier needs.
type ArtTier struct {
	Name    string
	Applies func(song domain.Song) bool
	Lookup  func(ctx context.Context, apiKey string, song domain.Song) (string, error)
}

// DefaultTiers tries the exact track first, then the album title, then the
// artist picture.
func DefaultTiers(art ArtLookup) []ArtTier {
	return []ArtTier{
		{
			Name:    "track",
			Applies: func(song domain.Song) bool { return song.Artist != "" && song.Title != "" },
			Lookup: func(ctx context.Context, apiKey string, song domain.Song) (string, error) {
				return art.TrackArt(ctx, apiKey, song.Artist, song.Title)
			},
		},
		{
			Name:    "album",
			Applies: func(song domain.Song) bool { return song.Album != "" },
			Lookup: func(ctx context.Context, apiKey string, song domain.Song) (string, error) {
				return art.AlbumArt(ctx, apiKey, song.Album)
			},
		},
		{
			Name:    "artist",
			Applies: func(song domain.Song) bool { return song.Artist != "" },
			Lookup: func(ctx context.Context, apiKey string, song domain.Song) (string, error) {
				return art.ArtistArt(ctx, apiKey, song.Artist)
			},
		},
	}
}
