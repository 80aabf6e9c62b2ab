package spotify

import "tunefetch/pkg/normalize"

// 预览方式
const (
	EmbedAudio   = "audio"   // 有 30 秒 MP3 预览
	EmbedSpotify = "spotify" // 只能使用 Spotify 嵌入播放器
)

// AlbumPage 一页专辑搜索结果
type AlbumPage struct {
	Items []normalize.Album `json:"items"`
	Total int               `json:"total"`
}

// AlbumSearchResult 专辑搜索结果
type AlbumSearchResult struct {
	Albums AlbumPage `json:"albums"`
}

// ArtistFollowers 批量关注数查询的单条结果
type ArtistFollowers struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Followers  int64  `json:"followers"`
	Popularity int    `json:"popularity"`
}

// TrackDetails 批量单曲查询的单条结果
type TrackDetails struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Artists      []string          `json:"artists"`
	AlbumName    string            `json:"album_name,omitempty"`
	DurationMS   int64             `json:"duration_ms"`
	Popularity   int               `json:"popularity"`
	PreviewURL   string            `json:"preview_url,omitempty"`
	ExternalURLs map[string]string `json:"external_urls"`
	ExternalIDs  map[string]string `json:"external_ids"`
}

// AlbumDetails 批量专辑查询的单条结果
type AlbumDetails struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Artists      []string          `json:"artists"`
	ReleaseDate  string            `json:"release_date,omitempty"`
	TotalTracks  int               `json:"total_tracks"`
	Popularity   int               `json:"popularity"`
	Label        string            `json:"label,omitempty"`
	Images       []normalize.Image `json:"images"`
	ExternalURLs map[string]string `json:"external_urls"`
}

// PreviewTrack 艺人页面上可试听的单曲
type PreviewTrack struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []string `json:"artists"`
	AlbumName   string   `json:"album_name,omitempty"`
	Image       string   `json:"image,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
	PreviewURL  string   `json:"preview_url,omitempty"`
	ExternalURL string   `json:"external_url"`
	EmbedURL    string   `json:"embed_url"`
	EmbedType   string   `json:"embed_type"`
}

func followersOf(a normalize.Artist) ArtistFollowers {
	return ArtistFollowers{ID: a.ID, Name: a.Name, Followers: a.Followers, Popularity: a.Popularity}
}

func trackDetailsOf(t normalize.Track) TrackDetails {
	ids := t.ExternalIDs
	if ids == nil {
		ids = map[string]string{}
	}
	return TrackDetails{
		ID:           t.ID,
		Name:         t.Name,
		Artists:      t.ArtistNames(),
		AlbumName:    t.AlbumName,
		DurationMS:   t.DurationMS,
		Popularity:   t.Popularity,
		PreviewURL:   t.PreviewURL,
		ExternalURLs: spotifyURL(t.ExternalURL),
		ExternalIDs:  ids,
	}
}

func albumDetailsOf(a normalize.Album) AlbumDetails {
	names := make([]string, 0, len(a.Artists))
	for _, ref := range a.Artists {
		if ref.Name != "" {
			names = append(names, ref.Name)
		}
	}
	return AlbumDetails{
		ID:           a.ID,
		Name:         a.Name,
		Artists:      names,
		ReleaseDate:  a.ReleaseDate,
		TotalTracks:  a.TotalTracks,
		Popularity:   a.Popularity,
		Label:        a.Label,
		Images:       a.Images,
		ExternalURLs: spotifyURL(a.ExternalURL),
	}
}

func previewOf(t normalize.Track) PreviewTrack {
	p := PreviewTrack{
		ID:          t.ID,
		Name:        t.Name,
		Artists:     t.ArtistNames(),
		AlbumName:   t.AlbumName,
		Image:       normalize.LargestImage(t.Images).URL,
		DurationMS:  t.DurationMS,
		PreviewURL:  t.PreviewURL,
		ExternalURL: t.ExternalURL,
		EmbedURL:    "https://open.spotify.com/embed/track/" + t.ID,
		EmbedType:   EmbedSpotify,
	}
	if t.PreviewURL != "" {
		p.EmbedType = EmbedAudio
	}
	return p
}

func spotifyURL(u string) map[string]string {
	if u == "" {
		return map[string]string{}
	}
	return map[string]string{"spotify": u}
}
