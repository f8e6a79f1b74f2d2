package client

// Paging is the Spotify paging object wrapping every list response.
// Next is empty when the server reports no further page.
type Paging[T any] struct {
	Href     string `json:"href"`
	Items    []T    `json:"items"`
	Limit    int    `json:"limit"`
	Next     string `json:"next"`
	Offset   int    `json:"offset"`
	Previous string `json:"previous"`
	Total    int    `json:"total"`
}

// HasNext reports whether the server advertises another page.
func (p Paging[T]) HasNext() bool {
	return p.Next != ""
}

// SimplifiedArtist is an artist credit as embedded in albums and tracks.
type SimplifiedArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SimplifiedAlbum is a release as listed under an artist.
type SimplifiedAlbum struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	AlbumType   string             `json:"album_type"`
	AlbumGroup  string             `json:"album_group"`
	ReleaseDate string             `json:"release_date"`
	TotalTracks int                `json:"total_tracks"`
	Artists     []SimplifiedArtist `json:"artists"`
}

// SimplifiedTrack is a track as embedded in an album. ID is empty for
// tracks the API returns with a null id.
type SimplifiedTrack struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	DiscNumber  int                `json:"disc_number"`
	TrackNumber int                `json:"track_number"`
	Artists     []SimplifiedArtist `json:"artists"`
}

// Album is a full album with the first page of its tracks.
type Album struct {
	SimplifiedAlbum
	Tracks Paging[SimplifiedTrack] `json:"tracks"`
}

// albumsResponse is the multi-get envelope. Unknown ids come back as null.
type albumsResponse struct {
	Albums []*Album `json:"albums"`
}

// Followers is the follower summary of an artist.
type Followers struct {
	Total int `json:"total"`
}

// Artist is a full artist object.
type Artist struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Popularity int       `json:"popularity"`
	Followers  Followers `json:"followers"`
	Genres     []string  `json:"genres"`
}

// artistsResponse is the artist multi-get envelope. Unknown ids come back as null.
type artistsResponse struct {
	Artists []*Artist `json:"artists"`
}
