// Package roster reads the input list of artists to harvest.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

var (
	// ErrNotFound is returned when the roster file does not exist.
	ErrNotFound = errors.New("roster file not found")

	// ErrMissingColumn is returned when the header lacks name or id.
	ErrMissingColumn = errors.New("roster header must contain name and id columns")
)

// Artist is one roster entry. ID is the Spotify artist id.
type Artist struct {
	ID   string
	Name string
}

// Load reads the roster CSV at path.
func Load(path string) ([]Artist, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	artists, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	return artists, nil
}

// Read parses a roster from r. The header must name an "id" and a "name"
// column (any position, case-insensitive); other columns are ignored. Rows
// with an empty name or id are skipped.
func Read(r io.Reader) ([]Artist, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingColumn
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	nameCol, idCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case "name":
			if nameCol < 0 {
				nameCol = i
			}
		case "id":
			if idCol < 0 {
				idCol = i
			}
		}
	}
	if nameCol < 0 || idCol < 0 {
		return nil, ErrMissingColumn
	}

	var artists []Artist
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if nameCol >= len(record) || idCol >= len(record) {
			continue
		}

		artist := Artist{
			ID:   strings.TrimSpace(record[idCol]),
			Name: strings.TrimSpace(record[nameCol]),
		}
		if artist.ID == "" || artist.Name == "" {
			continue
		}
		artists = append(artists, artist)
	}

	return artists, nil
}

// Universe returns the set of roster ids.
func Universe(artists []Artist) map[string]struct{} {
	ids := make(map[string]struct{}, len(artists))
	for _, a := range artists {
		ids[a.ID] = struct{}{}
	}
	return ids
}
