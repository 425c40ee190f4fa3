package core

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Sort queue derivation: liked set -> filters -> stable sort -> minus the
// session's processed set. Recomputation must never resurrect a processed
// track, so the processed set is re-applied on every rebuild.

var textCollator = collate.New(language.Und, collate.IgnoreCase)

// buildQueue derives the visible queue from the liked-track source order.
// The sort is stable: ties keep the relative order of the input list.
func buildQueue(
	tracks []Track,
	filters Filters,
	key SortKey,
	direction SortDirection,
	processed map[string]struct{},
	countFor func(trackID string) int,
) []Track {
	queue := make([]Track, 0, len(tracks))
	for _, track := range tracks {
		if _, done := processed[track.ID]; done {
			continue
		}
		track.PlaylistCount = countFor(track.ID)
		if !matchesFilters(&track, &filters) {
			continue
		}
		queue = append(queue, track)
	}

	sort.SliceStable(queue, func(i, j int) bool {
		cmp := compareTracks(&queue[i], &queue[j], key)
		if direction == Descending {
			return cmp > 0
		}
		return cmp < 0
	})

	return queue
}

// matchesFilters applies the active filter predicate. Zero date bounds are
// unbounded; a negative max playlist count is unbounded.
func matchesFilters(track *Track, f *Filters) bool {
	if !f.MinDate.IsZero() && track.SavedAt.Before(f.MinDate) {
		return false
	}
	if !f.MaxDate.IsZero() && track.SavedAt.After(f.MaxDate) {
		return false
	}

	if track.Popularity < f.MinPopularity || track.Popularity > f.MaxPopularity {
		return false
	}

	if track.PlaylistCount < f.MinPlaylistCount {
		return false
	}
	if f.MaxPlaylistCount >= 0 && track.PlaylistCount > f.MaxPlaylistCount {
		return false
	}

	return matchesGenres(track, f)
}

// matchesGenres includes a track when no genre filter is active, when it
// shares at least one tag with the selected set, or when the "unlabeled"
// pseudo-tag is selected and the track carries no tags at all.
func matchesGenres(track *Track, f *Filters) bool {
	if len(f.Genres) == 0 && !f.Unlabeled {
		return true
	}

	if len(track.Genres) == 0 {
		return f.Unlabeled
	}

	for _, selected := range f.Genres {
		for _, tag := range track.Genres {
			if strings.EqualFold(tag, selected) {
				return true
			}
		}
	}
	return false
}

// compareTracks returns <0, 0 or >0 in ascending-key order. Text keys compare
// case-insensitively under Unicode collation, the rest numerically.
func compareTracks(a, b *Track, key SortKey) int {
	switch key {
	case SortByTitle:
		return textCollator.CompareString(a.Name, b.Name)
	case SortByArtist:
		return textCollator.CompareString(a.Artists, b.Artists)
	case SortByGenre:
		return textCollator.CompareString(genreKey(a), genreKey(b))
	case SortBySavedAt:
		return a.SavedAt.Compare(b.SavedAt)
	case SortByPlaylistCount:
		return a.PlaylistCount - b.PlaylistCount
	case SortByPopularity:
		return a.Popularity - b.Popularity
	default:
		return 0
	}
}

func genreKey(t *Track) string {
	return strings.Join(t.Genres, " ")
}
