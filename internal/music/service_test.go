package music

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wakakowasake/favthing/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubSongs struct {
	songs []domain.Song
	err   error
}

func (s stubSongs) SearchSongs(context.Context, string) ([]domain.Song, error) {
	return s.songs, s.err
}

type stubArt struct {
	key       string
	keyErr    error
	track     func(artist, title string) (string, error)
	album     func(album string) (string, error)
	artist    func(artist string) (string, error)
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	delay     func(artist string) time.Duration

	mu    sync.Mutex
	calls []string
}

func (s *stubArt) APIKey(context.Context) (string, error) { return s.key, s.keyErr }

func (s *stubArt) enter(name, arg string) func() {
	current := s.inFlight.Add(1)
	for {
		seen := s.maxFlight.Load()
		if current <= seen || s.maxFlight.CompareAndSwap(seen, current) {
			break
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, name+":"+arg)
	s.mu.Unlock()
	if s.delay != nil {
		time.Sleep(s.delay(arg))
	}
	return func() { s.inFlight.Add(-1) }
}

func (s *stubArt) TrackArt(_ context.Context, apiKey, artist, title string) (string, error) {
	defer s.enter("track", artist)()
	if s.track == nil {
		return "", nil
	}
	return s.track(artist, title)
}

func (s *stubArt) AlbumArt(_ context.Context, apiKey, album string) (string, error) {
	defer s.enter("album", album)()
	if s.album == nil {
		return "", nil
	}
	return s.album(album)
}

func (s *stubArt) ArtistArt(_ context.Context, apiKey, artist string) (string, error) {
	defer s.enter("artist", artist)()
	if s.artist == nil {
		return "", nil
	}
	return s.artist(artist)
}

func song(id, title, artist, album string) domain.Song {
	return domain.Song{SongID: id, Title: title, Artist: artist, Album: album, AlbumID: "a" + id}
}

func TestSearchWithoutKeyReturnsSongsUnchanged(t *testing.T) {
	songs := []domain.Song{song("1", "좋은 날", "아이유", "Real"), song("2", "밤편지", "아이유", "Palette")}
	art := &stubArt{}
	svc := NewService(Config{Songs: stubSongs{songs: songs}, Art: art})

	results, err := svc.Search(context.Background(), "아이유")
	require.NoError(t, err)
	require.Len(t, results, len(songs))
	for i, result := range results {
		if diff := cmp.Diff(songs[i], result.Song); diff != "" {
			t.Fatalf("song %d changed (-want +got):\n%s", i, diff)
		}
		assert.Nil(t, result.AlbumImg)
	}
	assert.Empty(t, art.calls)

	encoded, err := json.Marshal(results)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "albumImg")
}

func TestSearchFallsThroughToArtistTier(t *testing.T) {
	art := &stubArt{
		key:    "fm",
		artist: func(string) (string, error) { return "http://x/artist.png", nil },
	}
	svc := NewService(Config{Songs: stubSongs{songs: []domain.Song{song("1", "t", "a", "b")}}, Art: art})

	results, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].AlbumImg)
	assert.Equal(t, "http://x/artist.png", *results[0].AlbumImg)
	assert.Equal(t, []string{"track:a", "album:b", "artist:a"}, art.calls)
}

func TestSearchStopsAtFirstImage(t *testing.T) {
	art := &stubArt{
		key:   "fm",
		track: func(string, string) (string, error) { return "http://x/track.png", nil },
	}
	svc := NewService(Config{Songs: stubSongs{songs: []domain.Song{song("1", "t", "a", "b")}}, Art: art})

	results, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	require.NotNil(t, results[0].AlbumImg)
	assert.Equal(t, "http://x/track.png", *results[0].AlbumImg)
	assert.Equal(t, []string{"track:a"}, art.calls)
}

func TestSearchEmptyArtWhenNoTierHasImage(t *testing.T) {
	art := &stubArt{
		key:   "fm",
		track: func(string, string) (string, error) { return "", errors.New("boom") },
	}
	svc := NewService(Config{Songs: stubSongs{songs: []domain.Song{song("1", "t", "a", "b")}}, Art: art})

	results, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	require.NotNil(t, results[0].AlbumImg)
	assert.Equal(t, "", *results[0].AlbumImg)

	encoded, err := json.Marshal(results[0])
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"albumImg":""`)
}

func TestSearchIsolatesFailedSong(t *testing.T) {
	fail := func(string) (string, error) { return "", errors.New("catalogue down") }
	art := &stubArt{
		key: "fm",
		track: func(artist, _ string) (string, error) {
			if artist == "broken" {
				return "", errors.New("catalogue down")
			}
			return "http://x/" + artist + ".png", nil
		},
		album: fail,
		artist: func(artist string) (string, error) {
			return fail(artist)
		},
	}
	songs := []domain.Song{song("1", "t1", "ok1", "b1"), song("2", "t2", "broken", "b2"), song("3", "t3", "ok3", "b3")}
	svc := NewService(Config{Songs: stubSongs{songs: songs}, Art: art})

	results, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.NotNil(t, results[0].AlbumImg)
	assert.Equal(t, "http://x/ok1.png", *results[0].AlbumImg)
	assert.Nil(t, results[1].AlbumImg)
	if diff := cmp.Diff(songs[1], results[1].Song); diff != "" {
		t.Fatalf("failed song changed (-want +got):\n%s", diff)
	}
	require.NotNil(t, results[2].AlbumImg)
	assert.Equal(t, "http://x/ok3.png", *results[2].AlbumImg)
}

func TestSearchSkipsTiersWithoutInput(t *testing.T) {
	art := &stubArt{
		key:    "fm",
		artist: func(string) (string, error) { return "", errors.New("unused") },
	}
	svc := NewService(Config{Songs: stubSongs{songs: []domain.Song{{SongID: "1", Title: "untitled"}}}, Art: art})

	results, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	require.NotNil(t, results[0].AlbumImg)
	assert.Empty(t, *results[0].AlbumImg)
	assert.Empty(t, art.calls)
}

func TestSearchBoundsConcurrencyAndKeepsOrder(t *testing.T) {
	const total = 12
	songs := make([]domain.Song, 0, total)
	for i := 0; i < total; i++ {
		songs = append(songs, song(fmt.Sprint(i), fmt.Sprintf("t%d", i), fmt.Sprintf("artist%d", i), ""))
	}
	art := &stubArt{
		key:   "fm",
		track: func(artist, _ string) (string, error) { return "http://x/" + artist, nil },
		delay: func(artist string) time.Duration {
			// later songs finish first
			var n int
			_, _ = fmt.Sscanf(artist, "artist%d", &n)
			return time.Duration(total-n) * 2 * time.Millisecond
		},
	}
	svc := NewService(Config{Songs: stubSongs{songs: songs}, Art: art, Concurrency: 3})

	results, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, results, total)
	for i, result := range results {
		assert.Equal(t, songs[i].SongID, result.SongID)
		require.NotNil(t, result.AlbumImg)
		assert.Equal(t, fmt.Sprintf("http://x/artist%d", i), *result.AlbumImg)
	}
	assert.LessOrEqual(t, art.maxFlight.Load(), int32(3))
	assert.Greater(t, art.maxFlight.Load(), int32(0))
}

func TestSearchPropagatesSongSearchError(t *testing.T) {
	want := &domain.UpstreamError{Upstream: "Melon", Status: 503}
	svc := NewService(Config{Songs: stubSongs{err: want}, Art: &stubArt{key: "fm"}})

	_, err := svc.Search(context.Background(), "q")
	var upstreamErr *domain.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, 503, upstreamErr.Status)
}

func TestSearchKeyStoreErrorDisablesEnrichment(t *testing.T) {
	art := &stubArt{keyErr: errors.New("redis: connection refused")}
	svc := NewService(Config{Songs: stubSongs{songs: []domain.Song{song("1", "t", "a", "b")}}, Art: art})

	results, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Nil(t, results[0].AlbumImg)
}

func TestSearchEmptyResultIsEmptyArray(t *testing.T) {
	svc := NewService(Config{Songs: stubSongs{songs: nil}, Art: &stubArt{key: "fm"}})

	results, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	encoded, err := json.Marshal(results)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(encoded))
}

func TestSearchCanceledContextLeavesSongsPlain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	art := &stubArt{key: "fm", track: func(string, string) (string, error) { return "http://x", nil }}
	svc := NewService(Config{Songs: stubSongs{songs: []domain.Song{song("1", "t", "a", "b")}}, Art: art, Concurrency: 1})

	results, err := svc.Search(ctx, "q")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].AlbumImg)
}

// blockingArt answers "fast" artists at once and holds every other lookup
// until ctx ends or hold elapses.
type blockingArt struct {
	hold time.Duration
}

func (b blockingArt) APIKey(context.Context) (string, error) { return "fm", nil }

func (b blockingArt) wait(ctx context.Context, artist string) (string, error) {
	if artist == "fast" {
		return "http://x/fast.png", nil
	}
	timer := time.NewTimer(b.hold)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", errors.New("lastfm unavailable")
	}
}

func (b blockingArt) TrackArt(ctx context.Context, _, artist, _ string) (string, error) {
	return b.wait(ctx, artist)
}

func (b blockingArt) AlbumArt(ctx context.Context, _, album string) (string, error) {
	return b.wait(ctx, album)
}

func (b blockingArt) ArtistArt(ctx context.Context, _, artist string) (string, error) {
	return b.wait(ctx, artist)
}

func TestSearchStopsEnrichingWhenBudgetRunsOut(t *testing.T) {
	songs := make([]domain.Song, 50)
	for i := range songs {
		songs[i] = song(fmt.Sprint(i), fmt.Sprintf("t%d", i), "slow", "slow")
	}
	svc := NewService(Config{
		Songs:       stubSongs{songs: songs},
		Art:         blockingArt{hold: time.Minute},
		Concurrency: 4,
		Budget:      100 * time.Millisecond,
	})

	started := time.Now()
	results, err := svc.Search(context.Background(), "q")
	elapsed := time.Since(started)

	require.NoError(t, err)
	assert.Less(t, elapsed, time.Second, "enrichment ran past its budget")
	require.Len(t, results, len(songs))
	for i, result := range results {
		assert.Equal(t, songs[i], result.Song)
		assert.Nil(t, result.AlbumImg, "song %d", i)
	}
}

func TestSearchKeepsArtFoundBeforeBudgetEnds(t *testing.T) {
	songs := []domain.Song{
		song("1", "a", "fast", "x"),
		song("2", "b", "slow", "slow"),
		song("3", "c", "fast", "y"),
		song("4", "d", "slow", "slow"),
	}
	svc := NewService(Config{
		Songs:       stubSongs{songs: songs},
		Art:         blockingArt{hold: time.Minute},
		Concurrency: len(songs),
		Budget:      50 * time.Millisecond,
	})

	results, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, results, len(songs))
	for _, i := range []int{0, 2} {
		require.NotNil(t, results[i].AlbumImg)
		assert.Equal(t, "http://x/fast.png", *results[i].AlbumImg)
	}
	assert.Nil(t, results[1].AlbumImg)
	assert.Nil(t, results[3].AlbumImg)
}

func TestSearchLogsTierFailuresAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	art := &stubArt{
		key:   "fm",
		track: func(string, string) (string, error) { return "", errors.New("LastFM API error: 500") },
		album: func(string) (string, error) { return "http://x/album.png", nil },
	}
	svc := NewService(Config{Songs: stubSongs{songs: []domain.Song{song("1", "t", "a", "b")}}, Art: art, Logger: logger})

	results, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	require.NotNil(t, results[0].AlbumImg)
	assert.NotContains(t, buf.String(), "album art lookup failed")
}
