package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestNormalizeArtist_各种结构(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		shape     Shape
		id        string
		artist    string
		followers int64
		image     string
	}{
		{
			name: "webapi",
			raw: `{"id":"4tZwfgrHOc3mvqYlEYSvVi","name":"Daft Punk","uri":"spotify:artist:4tZwfgrHOc3mvqYlEYSvVi",
				"followers":{"total":9000000},"popularity":80,"genres":["french house"],
				"images":[{"url":"https://i.scdn.co/a.jpg","width":640,"height":640}],
				"external_urls":{"spotify":"https://open.spotify.com/artist/4tZwfgrHOc3mvqYlEYSvVi"}}`,
			shape: ShapeWebAPI, id: "4tZwfgrHOc3mvqYlEYSvVi", artist: "Daft Punk", followers: 9000000,
			image: "https://i.scdn.co/a.jpg",
		},
		{
			name: "graphql包装",
			raw: `{"data":{"uri":"spotify:artist:abc","profile":{"name":"Justice"},
				"visuals":{"avatarImage":{"sources":[{"url":"https://i.scdn.co/j.jpg","width":320,"height":320}]}},
				"stats":{"followers":1200,"monthlyListeners":5000}}}`,
			shape: ShapeGraphQLWrapped, id: "abc", artist: "Justice", followers: 1200,
			image: "https://i.scdn.co/j.jpg",
		},
		{
			name:  "graphql裸结构",
			raw:   `{"uri":"spotify:artist:xyz","profile":{"name":"Air"}}`,
			shape: ShapeGraphQL, id: "xyz", artist: "Air",
		},
		{
			name: "scraper",
			raw: `{"type":"artist","id":"s1","name":"Cassius","shareUrl":"https://open.spotify.com/artist/s1",
				"visuals":{"avatar":[{"url":"https://i.scdn.co/c.jpg","width":64,"height":64}]},
				"stats":{"followers":"12,345"}}`,
			shape: ShapeScraper, id: "s1", artist: "Cassius", followers: 12345,
			image: "https://i.scdn.co/c.jpg",
		},
		{
			name:  "未识别结构",
			raw:   `{"artistId":"spotify:artist:p1","artistName":"Phoenix"}`,
			shape: ShapePartial, id: "p1", artist: "Phoenix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NormalizeArtist(decode(t, tt.raw))

			assert.Equal(t, tt.shape, a.Shape)
			assert.Equal(t, tt.id, a.ID)
			assert.Equal(t, tt.artist, a.Name)
			assert.Equal(t, tt.followers, a.Followers)
			assert.Equal(t, "https://open.spotify.com/artist/"+tt.id, a.ExternalURL)
			if tt.image != "" {
				require.NotEmpty(t, a.Images)
				assert.Equal(t, tt.image, a.Images[0].URL)
			}
		})
	}
}

func TestNormalizeArtist_数值缺失时为零(t *testing.T) {
	a := NormalizeArtist(decode(t, `{"id":"a","name":"x","external_urls":{},"followers":{"total":null}}`))

	assert.Equal(t, int64(0), a.Followers)
	assert.Equal(t, 0, a.Popularity)
	assert.NotNil(t, a.Images)

	empty := NormalizeArtist(map[string]any{})
	assert.Equal(t, ShapePartial, empty.Shape)
	assert.Equal(t, "", empty.ID)
	assert.Equal(t, int64(0), empty.Followers)

	assert.Equal(t, ShapePartial, NormalizeArtist(nil).Shape)
}

func TestNormalizeAlbum_各种结构(t *testing.T) {
	webapi := NormalizeAlbum(decode(t, `{"id":"al1","name":"Discovery","album_type":"album",
		"release_date":"2001-03-12","total_tracks":14,"label":"Virgin","popularity":70,
		"artists":[{"id":"d1","name":"Daft Punk"}],"images":[{"url":"u","width":1,"height":1}]}`))
	assert.Equal(t, ShapeWebAPI, webapi.Shape)
	assert.Equal(t, "al1", webapi.ID)
	assert.Equal(t, 14, webapi.TotalTracks)
	assert.Equal(t, "Virgin", webapi.Label)
	assert.Equal(t, []ArtistRef{{ID: "d1", Name: "Daft Punk"}}, webapi.Artists)

	graphql := NormalizeAlbum(decode(t, `{"data":{"uri":"spotify:album:al2","name":"Cross","type":"ALBUM",
		"artists":{"items":[{"uri":"spotify:artist:j1","profile":{"name":"Justice"}}]},
		"coverArt":{"sources":[{"url":"c","width":300,"height":300}]},
		"date":{"isoString":"2007-06-11T00:00:00Z"},"tracks":{"totalCount":12}}}`))
	assert.Equal(t, ShapeGraphQLWrapped, graphql.Shape)
	assert.Equal(t, "al2", graphql.ID)
	assert.Equal(t, "album", graphql.AlbumType)
	assert.Equal(t, "2007-06-11", graphql.ReleaseDate)
	assert.Equal(t, 12, graphql.TotalTracks)
	assert.Equal(t, []ArtistRef{{ID: "j1", Name: "Justice"}}, graphql.Artists)

	bare := NormalizeAlbum(decode(t, `{"uri":"spotify:album:al3","name":"Moon Safari","date":{"year":1998}}`))
	assert.Equal(t, ShapeGraphQL, bare.Shape)
	assert.Equal(t, "1998", bare.ReleaseDate)

	scraper := NormalizeAlbum(decode(t, `{"id":"al4","name":"1999","shareUrl":"https://open.spotify.com/album/al4",
		"cover":[{"url":"x"}],"date":"1999-01-01","trackCount":11,"artists":[{"id":"c1","name":"Cassius"}]}`))
	assert.Equal(t, ShapeScraper, scraper.Shape)
	assert.Equal(t, 11, scraper.TotalTracks)
	assert.Equal(t, "1999-01-01", scraper.ReleaseDate)

	partial := NormalizeAlbum(decode(t, `{"albumId":"al5","title":"Wolfgang"}`))
	assert.Equal(t, ShapePartial, partial.Shape)
	assert.Equal(t, "al5", partial.ID)
	assert.Equal(t, "Wolfgang", partial.Name)
}

func TestNormalizeTrack_各种结构(t *testing.T) {
	webapi := NormalizeTrack(decode(t, `{"id":"t1","name":"One More Time","duration_ms":320357,"popularity":77,
		"preview_url":"https://p.scdn.co/mp3-preview/1","external_ids":{"isrc":"GBDUW0000053"},
		"external_urls":{"spotify":"https://open.spotify.com/track/t1"},
		"artists":[{"id":"d1","name":"Daft Punk"}],"album":{"id":"al1","name":"Discovery","images":[{"url":"cover"}]}}`))
	assert.Equal(t, ShapeWebAPI, webapi.Shape)
	assert.Equal(t, int64(320357), webapi.DurationMS)
	assert.Equal(t, "GBDUW0000053", webapi.ExternalIDs["isrc"])
	assert.Equal(t, "al1", webapi.AlbumID)
	assert.Equal(t, "cover", webapi.Images[0].URL)
	assert.Equal(t, []string{"Daft Punk"}, webapi.ArtistNames())

	graphql := NormalizeTrack(decode(t, `{"data":{"uri":"spotify:track:t2","name":"D.A.N.C.E.",
		"duration":{"totalMilliseconds":242000},
		"albumOfTrack":{"uri":"spotify:album:al2","name":"Cross","coverArt":{"sources":[{"url":"c2"}]}},
		"artists":{"items":[{"uri":"spotify:artist:j1","profile":{"name":"Justice"}}]}}}`))
	assert.Equal(t, ShapeGraphQLWrapped, graphql.Shape)
	assert.Equal(t, "t2", graphql.ID)
	assert.Equal(t, "al2", graphql.AlbumID)
	assert.Equal(t, int64(242000), graphql.DurationMS)
	assert.Equal(t, "https://open.spotify.com/track/t2", graphql.ExternalURL)

	scraper := NormalizeTrack(decode(t, `{"id":"t3","name":"Sexy Boy","durationMs":298000,
		"shareUrl":"https://open.spotify.com/track/t3","album":{"id":"al3","name":"Moon Safari","cover":[{"url":"c3"}]}}`))
	assert.Equal(t, ShapeScraper, scraper.Shape)
	assert.Equal(t, int64(298000), scraper.DurationMS)
	assert.Equal(t, "c3", scraper.Images[0].URL)

	partial := NormalizeTrack(decode(t, `{"trackId":"t4","title":"Feel Good Inc"}`))
	assert.Equal(t, ShapePartial, partial.Shape)
	assert.Equal(t, "t4", partial.ID)
	assert.Nil(t, partial.ExternalIDs)
}

func TestNormalizer_相同输入得到相同输出(t *testing.T) {
	raw := decode(t, `{"data":{"uri":"spotify:artist:abc","profile":{"name":"Justice"},
		"visuals":{"avatarImage":{"sources":[{"url":"u","width":1,"height":1}]}}}}`)
	n := New()

	first := n.Artist(raw)
	second := n.Artist(raw)
	assert.Equal(t, first, second)

	// 输入不会被修改
	again := decode(t, `{"data":{"uri":"spotify:artist:abc","profile":{"name":"Justice"},
		"visuals":{"avatarImage":{"sources":[{"url":"u","width":1,"height":1}]}}}}`)
	assert.Equal(t, again, raw)
}

func TestNormalizer_未识别结构回调(t *testing.T) {
	var kinds []string
	var seenKeys [][]string
	n := &Normalizer{Unrecognized: func(kind string, keys []string) {
		kinds = append(kinds, kind)
		seenKeys = append(seenKeys, keys)
	}}

	n.Track(map[string]any{"title": "x", "foo": 1.0})
	n.Artist(map[string]any{"id": "a", "external_urls": map[string]any{}})

	assert.Equal(t, []string{"track"}, kinds, "匹配已知结构时不回调")
	assert.Equal(t, [][]string{{"foo", "title"}}, seenKeys)
}

func TestNormalizer_列表归一化并去重(t *testing.T) {
	items := []map[string]any{
		decode(t, `{"data":{"uri":"spotify:artist:a1","profile":{"name":"Air"}}}`),
		decode(t, `{"id":"a1","name":"AIR","external_urls":{}}`),
		decode(t, `{"unknown":true}`),
		decode(t, `{"data":{"uri":"spotify:artist:a2","profile":{"name":"Justice"}}}`),
	}

	artists := New().Artists(items)
	require.Len(t, artists, 2)
	assert.Equal(t, "Air", artists[0].Name, "保留首次出现的记录")
	assert.Equal(t, "a2", artists[1].ID)
}

func TestExtractID(t *testing.T) {
	tests := map[string]string{
		"4tZwfgrHOc3mvqYlEYSvVi":                       "4tZwfgrHOc3mvqYlEYSvVi",
		"spotify:artist:4tZwfgrHOc3mvqYlEYSvVi":        "4tZwfgrHOc3mvqYlEYSvVi",
		"spotify:track:abc":                            "abc",
		"https://open.spotify.com/album/xyz?si=123":    "xyz",
		"https://open.spotify.com/intl-de/artist/qqq/": "qqq",
		"  spotify:album:trim  ":                       "trim",
		"":                                             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractID(in), in)
	}
}

func TestNameKey(t *testing.T) {
	assert.Equal(t, "beyonce", NameKey("Beyoncé"))
	assert.Equal(t, "sigur ros", NameKey("  Sigur   Rós "))
	assert.Equal(t, NameKey("MØ"), NameKey("mø"))
	assert.Equal(t, "", NameKey("   "))
}

func TestLargestImage(t *testing.T) {
	imgs := []Image{{URL: "s", Width: 64, Height: 64}, {URL: "l", Width: 640, Height: 640}, {URL: "m", Width: 300, Height: 300}}
	assert.Equal(t, "l", LargestImage(imgs).URL)
	assert.Equal(t, Image{}, LargestImage(nil))
}
