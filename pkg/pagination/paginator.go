package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog/log"
)

// ErrInvalidPageSize is returned when PageSize is not positive.
var ErrInvalidPageSize = errors.New("page size must be >= 1")

// Page is one page of results.
type Page[T any] struct {
	Items []T

	// HasNext is false when the server reports that no page follows.
	HasNext bool
}

// PageFunc fetches the page starting at offset with at most limit items.
type PageFunc[T any] func(ctx context.Context, offset, limit int) (Page[T], error)

// Paginator produces the unique items of an offset-paginated listing.
type Paginator[T any] struct {
	// Name identifies the listing in logs.
	Name string

	// Fetch retrieves one page. Required.
	Fetch PageFunc[T]

	// ID returns an item's identity for deduplication. Items with an empty id
	// are passed through undeduplicated. Nil disables deduplication.
	ID func(T) string

	// PageSize is the limit requested per page.
	PageSize int

	// MaxItems caps the number of items produced. Zero means no cap.
	MaxItems int

	// StartOffset is the offset of the first page.
	StartOffset int
}

// Items returns the lazy sequence of unique items. A fetch error is yielded
// once, with the zero T, and ends the sequence.
func (p *Paginator[T]) Items(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if p.PageSize < 1 {
			yield(zero, fmt.Errorf("%s: %w (got %d)", p.Name, ErrInvalidPageSize, p.PageSize))
			return
		}
		if p.Fetch == nil {
			yield(zero, fmt.Errorf("%s: fetch function is required", p.Name))
			return
		}

		logger := log.Ctx(ctx)
		seen := make(map[string]struct{})
		produced := 0
		pages := 0
		offset := p.StartOffset

		for {
			page, err := p.Fetch(ctx, offset, p.PageSize)
			if err != nil {
				yield(zero, fmt.Errorf("%s: fetch page at offset %d: %w", p.Name, offset, err))
				return
			}
			pages++

			if len(page.Items) == 0 {
				break
			}

			for _, item := range page.Items {
				if p.ID != nil {
					if id := p.ID(item); id != "" {
						if _, dup := seen[id]; dup {
							continue
						}
						seen[id] = struct{}{}
					}
				}

				if !yield(item, nil) {
					return
				}
				produced++

				if p.MaxItems > 0 && produced >= p.MaxItems {
					logger.Debug().
						Str("listing", p.Name).
						Int("max_items", p.MaxItems).
						Int("pages", pages).
						Msg("Item cap reached")
					return
				}
			}

			if !page.HasNext || len(page.Items) < p.PageSize {
				break
			}
			offset += p.PageSize
		}

		logger.Debug().
			Str("listing", p.Name).
			Int("items", produced).
			Int("pages", pages).
			Msg("Pagination complete")
	}
}

// Collect drains Items. On error it returns the items gathered so far along
// with the error.
func (p *Paginator[T]) Collect(ctx context.Context) ([]T, error) {
	var items []T
	for item, err := range p.Items(ctx) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}
