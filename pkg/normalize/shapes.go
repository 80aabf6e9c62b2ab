package normalize

import (
	"strconv"
	"strings"
)

// shape 一个结构检测器与对应的提取器，按顺序尝试，先匹配者胜出
type shape[T any] struct {
	name    Shape
	match   func(m map[string]any) bool
	extract func(m map[string]any) T
}

// wrapped 把 {"data": {...}} 包装的负载交给 bare 形状处理
func wrapped[T any](bare shape[T], name Shape, setShape func(*T, Shape)) shape[T] {
	return shape[T]{
		name: name,
		match: func(m map[string]any) bool {
			data, ok := obj(m, "data")
			return ok && bare.match(data)
		},
		extract: func(m map[string]any) T {
			data, _ := obj(m, "data")
			v := bare.extract(data)
			setShape(&v, name)
			return v
		},
	}
}

// ---- artist ----

var artistWebAPI = shape[Artist]{
	name: ShapeWebAPI,
	match: func(m map[string]any) bool {
		_, followers := obj(m, "followers")
		return followers || has(m, "external_urls") || has(m, "genres")
	},
	extract: func(m map[string]any) Artist {
		id := idOf(m, "id")
		return Artist{
			ID:          id,
			Name:        str(m, keys("name")),
			URI:         str(m, keys("uri")),
			Images:      images(list(m, "images")),
			Genres:      stringList(list(m, "genres")),
			Followers:   num(m, keys("followers", "total")),
			Popularity:  int(num(m, keys("popularity"))),
			ExternalURL: firstNonEmpty(str(m, keys("external_urls", "spotify")), externalURL("artist", id)),
			Shape:       ShapeWebAPI,
		}
	},
}

var artistGraphQL = shape[Artist]{
	name: ShapeGraphQL,
	match: func(m map[string]any) bool {
		_, ok := obj(m, "profile")
		return ok
	},
	extract: func(m map[string]any) Artist {
		id := idOf(m, "id")
		return Artist{
			ID:               id,
			Name:             str(m, keys("profile", "name")),
			URI:              str(m, keys("uri")),
			Images:           images(list(m, "visuals", "avatarImage", "sources")),
			Followers:        num(m, keys("stats", "followers")),
			MonthlyListeners: num(m, keys("stats", "monthlyListeners")),
			ExternalURL:      firstNonEmpty(str(m, keys("sharingInfo", "shareUrl")), externalURL("artist", id)),
			Shape:            ShapeGraphQL,
		}
	},
}

var artistScraper = shape[Artist]{
	name: ShapeScraper,
	match: func(m map[string]any) bool {
		return has(m, "shareUrl") || list(m, "visuals", "avatar") != nil
	},
	extract: func(m map[string]any) Artist {
		id := idOf(m, "id")
		return Artist{
			ID:               id,
			Name:             str(m, keys("name")),
			URI:              str(m, keys("uri")),
			Images:           images(list(m, "visuals", "avatar")),
			Followers:        num(m, keys("stats", "followers"), keys("followers")),
			MonthlyListeners: num(m, keys("stats", "monthlyListeners"), keys("monthlyListeners")),
			ExternalURL:      firstNonEmpty(str(m, keys("shareUrl")), externalURL("artist", id)),
			Shape:            ShapeScraper,
		}
	},
}

var artistShapes = []shape[Artist]{
	artistWebAPI,
	wrapped(artistGraphQL, ShapeGraphQLWrapped, func(a *Artist, s Shape) { a.Shape = s }),
	artistGraphQL,
	artistScraper,
}

func partialArtist(m map[string]any) Artist {
	id := idOf(m, "id", "artistId", "artist_id")
	link := str(m, keys("external_urls", "spotify"), keys("url"))
	return Artist{
		ID:          id,
		Name:        str(m, keys("name"), keys("artistName"), keys("title"), keys("profile", "name")),
		URI:         str(m, keys("uri")),
		Images:      images(list(m, "images")),
		Followers:   num(m, keys("followers"), keys("followers", "total"), keys("stats", "followers")),
		Popularity:  int(num(m, keys("popularity"))),
		ExternalURL: firstNonEmpty(link, externalURL("artist", id)),
		Shape:       ShapePartial,
	}
}

// ---- album ----

var albumWebAPI = shape[Album]{
	name: ShapeWebAPI,
	match: func(m map[string]any) bool {
		return has(m, "album_type") || has(m, "release_date") || has(m, "total_tracks") || has(m, "external_urls")
	},
	extract: func(m map[string]any) Album {
		id := idOf(m, "id")
		return Album{
			ID:          id,
			Name:        str(m, keys("name")),
			URI:         str(m, keys("uri")),
			AlbumType:   str(m, keys("album_type")),
			Artists:     artistRefs(list(m, "artists")),
			Images:      images(list(m, "images")),
			ReleaseDate: str(m, keys("release_date")),
			TotalTracks: int(num(m, keys("total_tracks"))),
			Popularity:  int(num(m, keys("popularity"))),
			Label:       str(m, keys("label")),
			ExternalURL: firstNonEmpty(str(m, keys("external_urls", "spotify")), externalURL("album", id)),
			Shape:       ShapeWebAPI,
		}
	},
}

var albumGraphQL = shape[Album]{
	name: ShapeGraphQL,
	match: func(m map[string]any) bool {
		_, cover := obj(m, "coverArt")
		_, date := obj(m, "date")
		return cover || date
	},
	extract: func(m map[string]any) Album {
		id := idOf(m, "id")
		return Album{
			ID:          id,
			Name:        str(m, keys("name")),
			URI:         str(m, keys("uri")),
			AlbumType:   strings.ToLower(str(m, keys("type"))),
			Artists:     artistRefs(list(m, "artists", "items")),
			Images:      images(list(m, "coverArt", "sources")),
			ReleaseDate: graphQLDate(m),
			TotalTracks: int(num(m, keys("tracks", "totalCount"), keys("tracksV2", "totalCount"))),
			Label:       str(m, keys("label")),
			ExternalURL: firstNonEmpty(str(m, keys("sharingInfo", "shareUrl")), externalURL("album", id)),
			Shape:       ShapeGraphQL,
		}
	},
}

var albumScraper = shape[Album]{
	name: ShapeScraper,
	match: func(m map[string]any) bool {
		return has(m, "shareUrl") || list(m, "cover") != nil
	},
	extract: func(m map[string]any) Album {
		id := idOf(m, "id")
		return Album{
			ID:          id,
			Name:        str(m, keys("name")),
			URI:         str(m, keys("uri")),
			AlbumType:   strings.ToLower(str(m, keys("type"))),
			Artists:     artistRefs(list(m, "artists")),
			Images:      images(list(m, "cover")),
			ReleaseDate: str(m, keys("date"), keys("releaseDate")),
			TotalTracks: int(num(m, keys("trackCount"), keys("totalTracks"))),
			Popularity:  int(num(m, keys("popularity"))),
			Label:       str(m, keys("label")),
			ExternalURL: firstNonEmpty(str(m, keys("shareUrl")), externalURL("album", id)),
			Shape:       ShapeScraper,
		}
	},
}

var albumShapes = []shape[Album]{
	albumWebAPI,
	wrapped(albumGraphQL, ShapeGraphQLWrapped, func(a *Album, s Shape) { a.Shape = s }),
	albumGraphQL,
	albumScraper,
}

func partialAlbum(m map[string]any) Album {
	id := idOf(m, "id", "albumId", "album_id")
	return Album{
		ID:          id,
		Name:        str(m, keys("name"), keys("albumName"), keys("title")),
		URI:         str(m, keys("uri")),
		Artists:     artistRefs(list(m, "artists")),
		Images:      images(list(m, "images")),
		ReleaseDate: str(m, keys("release_date"), keys("releaseDate"), keys("date")),
		Popularity:  int(num(m, keys("popularity"))),
		ExternalURL: externalURL("album", id),
		Shape:       ShapePartial,
	}
}

// graphQLDate 优先使用 isoString 的日期部分，否则退回到年份
func graphQLDate(m map[string]any) string {
	if iso := str(m, keys("date", "isoString")); iso != "" {
		if i := strings.IndexByte(iso, 'T'); i > 0 {
			return iso[:i]
		}
		return iso
	}
	if year := num(m, keys("date", "year")); year > 0 {
		return strconv.FormatInt(year, 10)
	}
	return ""
}

// ---- track ----

var trackWebAPI = shape[Track]{
	name: ShapeWebAPI,
	match: func(m map[string]any) bool {
		return has(m, "duration_ms") || has(m, "preview_url") || has(m, "external_ids") || has(m, "track_number")
	},
	extract: func(m map[string]any) Track {
		id := idOf(m, "id")
		ids, _ := obj(m, "external_ids")
		return Track{
			ID:          id,
			Name:        str(m, keys("name")),
			URI:         str(m, keys("uri")),
			Artists:     artistRefs(list(m, "artists")),
			AlbumID:     idOf(path(m, "album"), "id"),
			AlbumName:   str(m, keys("album", "name")),
			Images:      images(list(m, "album", "images")),
			DurationMS:  num(m, keys("duration_ms")),
			Popularity:  int(num(m, keys("popularity"))),
			PreviewURL:  str(m, keys("preview_url")),
			ExternalURL: firstNonEmpty(str(m, keys("external_urls", "spotify")), externalURL("track", id)),
			ExternalIDs: stringMap(ids),
			Shape:       ShapeWebAPI,
		}
	},
}

var trackGraphQL = shape[Track]{
	name: ShapeGraphQL,
	match: func(m map[string]any) bool {
		_, album := obj(m, "albumOfTrack")
		_, duration := obj(m, "duration")
		return album || duration
	},
	extract: func(m map[string]any) Track {
		id := idOf(m, "id")
		return Track{
			ID:          id,
			Name:        str(m, keys("name")),
			URI:         str(m, keys("uri")),
			Artists:     artistRefs(list(m, "artists", "items")),
			AlbumID:     idOf(path(m, "albumOfTrack"), "id"),
			AlbumName:   str(m, keys("albumOfTrack", "name")),
			Images:      images(list(m, "albumOfTrack", "coverArt", "sources")),
			DurationMS:  num(m, keys("duration", "totalMilliseconds")),
			PreviewURL:  str(m, keys("audioPreview", "url")),
			ExternalURL: firstNonEmpty(str(m, keys("sharingInfo", "shareUrl")), externalURL("track", id)),
			Shape:       ShapeGraphQL,
		}
	},
}

var trackScraper = shape[Track]{
	name: ShapeScraper,
	match: func(m map[string]any) bool {
		return has(m, "shareUrl") || has(m, "durationMs")
	},
	extract: func(m map[string]any) Track {
		id := idOf(m, "id")
		return Track{
			ID:          id,
			Name:        str(m, keys("name")),
			URI:         str(m, keys("uri")),
			Artists:     artistRefs(list(m, "artists")),
			AlbumID:     idOf(path(m, "album"), "id"),
			AlbumName:   str(m, keys("album", "name")),
			Images:      images(list(m, "album", "cover")),
			DurationMS:  num(m, keys("durationMs")),
			Popularity:  int(num(m, keys("popularity"))),
			PreviewURL:  str(m, keys("previewUrl"), keys("audioPreview")),
			ExternalURL: firstNonEmpty(str(m, keys("shareUrl")), externalURL("track", id)),
			Shape:       ShapeScraper,
		}
	},
}

var trackShapes = []shape[Track]{
	trackWebAPI,
	wrapped(trackGraphQL, ShapeGraphQLWrapped, func(t *Track, s Shape) { t.Shape = s }),
	trackGraphQL,
	trackScraper,
}

func partialTrack(m map[string]any) Track {
	id := idOf(m, "id", "trackId", "track_id")
	return Track{
		ID:          id,
		Name:        str(m, keys("name"), keys("trackName"), keys("title")),
		URI:         str(m, keys("uri")),
		Artists:     artistRefs(list(m, "artists")),
		DurationMS:  num(m, keys("duration_ms"), keys("durationMs"), keys("duration")),
		Popularity:  int(num(m, keys("popularity"))),
		PreviewURL:  str(m, keys("preview_url"), keys("previewUrl")),
		ExternalURL: externalURL("track", id),
		Shape:       ShapePartial,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
