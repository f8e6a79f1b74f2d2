// Package pagination walks offset-paginated API listings one page at a time.
//
// Spotify list endpoints take offset and limit parameters and return a paging
// object with a next link. A Paginator turns such an endpoint into a lazy
// sequence of unique items:
//
//	p := &pagination.Paginator[client.SimplifiedAlbum]{
//		Name:     "artist-albums",
//		PageSize: 50,
//		MaxItems: 300,
//		ID:       func(a client.SimplifiedAlbum) string { return a.ID },
//		Fetch: func(ctx context.Context, offset, limit int) (pagination.Page[client.SimplifiedAlbum], error) {
//			page, err := spotify.ArtistAlbums(ctx, artistID, offset, limit)
//			return pagination.Page[client.SimplifiedAlbum]{Items: page.Items, HasNext: page.HasNext()}, err
//		},
//	}
//
//	for album, err := range p.Items(ctx) {
//		if err != nil {
//			return err
//		}
//		// ...
//	}
//
// The sequence ends when a page is empty, when the server reports no next
// page, when a page is shorter than PageSize, or when MaxItems unique items
// have been produced. Reaching MaxItems is not an error.
//
// Pages are fetched sequentially. Rate limiting and retries belong to the
// Fetch function (see pkg/client.Executor).
package pagination
