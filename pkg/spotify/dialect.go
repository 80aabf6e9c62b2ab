package spotify

import (
	"strconv"
	"strings"

	"tunefetch/pkg/config"
	"tunefetch/pkg/provider"
)

// 上游单次批量请求允许的最大 ID 数
const (
	maxArtistBatch = 50
	maxTrackBatch  = 50
	maxAlbumBatch  = 20
)

// searchKind 搜索类型
type searchKind string

const (
	kindArtist searchKind = "artist"
	kindAlbum  searchKind = "album"
	kindTrack  searchKind = "track"
)

type request struct {
	endpoint string
	params   provider.Params
}

// dialect 一种上游 API 的请求构造方式，nil 表示不支持该操作
type dialect struct {
	search    func(q string, kind searchKind, limit int) request
	related   func(id string) request
	artists   func(ids []string) request
	tracks    func(ids []string) request
	albums    func(ids []string) request
	topTracks func(id string) request
}

var dialects = map[string]dialect{
	config.DialectSpotify23: {
		search: func(q string, kind searchKind, limit int) request {
			return request{"search/", provider.Params{}.
				Add("q", q).
				Add("type", string(kind)+"s").
				Add("offset", "0").
				Add("limit", strconv.Itoa(limit)).
				Add("numberOfTopResults", "5")}
		},
		related: func(id string) request {
			return request{"artist_related/", provider.Params{}.Add("id", id)}
		},
		artists: func(ids []string) request {
			return request{"artists/", provider.Params{}.Add("ids", strings.Join(ids, ","))}
		},
		tracks: func(ids []string) request {
			return request{"tracks/", provider.Params{}.Add("ids", strings.Join(ids, ","))}
		},
		albums: func(ids []string) request {
			return request{"albums/", provider.Params{}.Add("ids", strings.Join(ids, ","))}
		},
		topTracks: func(id string) request {
			return request{"artist_top_tracks/", provider.Params{}.Add("id", id)}
		},
	},
	config.DialectSpotify81: {
		search: func(q string, kind searchKind, limit int) request {
			return request{"search", provider.Params{}.
				Add("q", q).
				Add("type", string(kind)+"s").
				Add("offset", "0").
				Add("limit", strconv.Itoa(limit)).
				Add("numberOfTopResults", "5")}
		},
		related: func(id string) request {
			return request{"artist_related", provider.Params{}.Add("id", id)}
		},
		artists: func(ids []string) request {
			return request{"artists", provider.Params{}.Add("ids", strings.Join(ids, ","))}
		},
		tracks: func(ids []string) request {
			return request{"tracks", provider.Params{}.Add("ids", strings.Join(ids, ","))}
		},
		albums: func(ids []string) request {
			return request{"albums", provider.Params{}.Add("ids", strings.Join(ids, ","))}
		},
		topTracks: func(id string) request {
			return request{"artist_top_tracks", provider.Params{}.Add("id", id).Add("country", "US")}
		},
	},
	// scraper 没有批量接口
	config.DialectScraper: {
		search: func(q string, kind searchKind, limit int) request {
			return request{"v1/search", provider.Params{}.
				Add("term", q).
				Add("type", string(kind)).
				Add("limit", strconv.Itoa(limit))}
		},
		related: func(id string) request {
			return request{"v1/artist/related", provider.Params{}.Add("artistId", id)}
		},
		topTracks: func(id string) request {
			return request{"v1/artist/overview", provider.Params{}.Add("artistId", id)}
		},
	},
}

// builder 把 dialect 中的某个操作转换为 provider.CallAttempt 需要的构造函数
func builder(pick func(d dialect) (request, bool)) func(p provider.ProviderConfig) (string, provider.Params, bool) {
	return func(p provider.ProviderConfig) (string, provider.Params, bool) {
		d, ok := dialects[p.Dialect]
		if !ok {
			d = dialects[config.DialectSpotify23]
		}
		req, ok := pick(d)
		if !ok {
			return "", nil, false
		}
		return req.endpoint, req.params, true
	}
}

func searchRequest(q string, kind searchKind, limit int) func(p provider.ProviderConfig) (string, provider.Params, bool) {
	return builder(func(d dialect) (request, bool) {
		if d.search == nil {
			return request{}, false
		}
		return d.search(q, kind, limit), true
	})
}

func idRequest(pick func(d dialect) func(id string) request, id string) func(p provider.ProviderConfig) (string, provider.Params, bool) {
	return builder(func(d dialect) (request, bool) {
		fn := pick(d)
		if fn == nil {
			return request{}, false
		}
		return fn(id), true
	})
}

func batchRequest(pick func(d dialect) func(ids []string) request, ids []string) func(p provider.ProviderConfig) (string, provider.Params, bool) {
	return builder(func(d dialect) (request, bool) {
		fn := pick(d)
		if fn == nil {
			return request{}, false
		}
		return fn(ids), true
	})
}
