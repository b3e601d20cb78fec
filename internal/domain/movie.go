package domain

// Movie is a film-database record reshaped into the metadata-service
// layout the frontend already renders.
type Movie struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	OriginalTitle string  `json:"original_title"`
	Overview      string  `json:"overview"`
	PosterPath    string  `json:"poster_path"`
	BackdropPath  string  `json:"backdrop_path"`
	ReleaseDate   string  `json:"release_date"`
	VoteAverage   float64 `json:"vote_average"`
	Director      string  `json:"director"`
	Actors        string  `json:"actors"`
	Runtime       string  `json:"runtime"`
	Rating        string  `json:"rating"`
	Year          string  `json:"year"`
	Genre         string  `json:"genre"`
	Nation        string  `json:"nation"`
}

type MovieSearchResult struct {
	Results      []Movie `json:"results"`
	TotalResults int     `json:"totalResults"`
}
