package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunefetch/pkg/breaker"
	"tunefetch/pkg/cache"
	"tunefetch/pkg/config"
	"tunefetch/pkg/limiter"
	"tunefetch/pkg/provider"
)

// upstream 一个假的上游提供商，nil handler 表示连接不上
type upstream struct {
	name    string
	dialect string
	handler http.HandlerFunc
}

// hit 上游收到的一次请求
type hit struct {
	provider string
	path     string
	query    url.Values
}

type serviceEnv struct {
	svc       *Service
	breaker   *breaker.CircuitBreaker
	providers []provider.ProviderConfig

	mu   sync.Mutex
	hits []hit
}

func (e *serviceEnv) record(name string, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hits = append(e.hits, hit{provider: name, path: r.URL.Path, query: r.URL.Query()})
}

func (e *serviceEnv) requests() []hit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]hit(nil), e.hits...)
}

func newServiceEnv(t *testing.T, ups ...upstream) *serviceEnv {
	t.Helper()

	env := &serviceEnv{}
	registry := provider.NewRegistry()

	for _, up := range ups {
		host := "127.0.0.1:1"
		if up.handler != nil {
			up := up
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				env.record(up.name, r)
				up.handler(w, r)
			}))
			t.Cleanup(srv.Close)
			host = strings.TrimPrefix(srv.URL, "http://")
		}

		p := provider.ProviderConfig{
			Family:  "spotify",
			Name:    up.name,
			Host:    host,
			Scheme:  "http",
			Dialect: up.dialect,
			APIKey:  "key-" + up.name,
		}
		require.NoError(t, registry.Register(p))
		env.providers = append(env.providers, p)
	}

	store := cache.NewMemoryStore(cache.MemoryStoreConfig{})
	env.breaker = breaker.New(store, breaker.Config{})
	client := provider.NewClient(provider.ClientOptions{
		HTTPClient: &http.Client{Timeout: 200 * time.Millisecond},
		Limiter:    limiter.NewRateLimiter(store, limiter.RateLimiterConfig{PerSecond: 1000}),
		Breaker:    env.breaker,
	})

	env.svc = NewService(registry, client, Options{})
	return env
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		w.Write([]byte(`{"message":"nope"}`))
	}
}

// hang 一直不返回，直到客户端超时断开
func hang(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(2 * time.Second):
	}
}

func TestSearchArtists_主提供商超时由备用提供商返回去重结果(t *testing.T) {
	backup := respond(`{"artists":{"totalCount":2,"items":[
		{"id":"4tZwfgrHOc3mvqYlEYSvVi","name":"Daft Punk","followers":{"total":9000000},"genres":["french house"]},
		{"id":"4tZwfgrHOc3mvqYlEYSvVi","name":"Daft Punk","followers":{"total":9000000},"genres":["french house"]}
	]}}`)

	env := newServiceEnv(t,
		upstream{name: "primary", dialect: config.DialectSpotify23, handler: hang},
		upstream{name: "backup", dialect: config.DialectSpotify81, handler: backup},
		upstream{name: "tertiary", dialect: config.DialectScraper, handler: status(500)},
	)

	artists := env.svc.SearchArtists(context.Background(), "test", 20)

	require.Len(t, artists, 1)
	assert.Equal(t, "4tZwfgrHOc3mvqYlEYSvVi", artists[0].ID)
	assert.Equal(t, int64(9000000), artists[0].Followers)

	reqs := env.requests()
	require.Len(t, reqs, 2, "tertiary must not be called")
	assert.Equal(t, "primary", reqs[0].provider)
	assert.Equal(t, "backup", reqs[1].provider)

	assert.Equal(t, 1, env.breaker.RecentFailures(context.Background(), env.providers[0].Key()))
	assert.False(t, env.breaker.ShouldSkip(context.Background(), env.providers[0].Key()))
}

func TestGetBatchArtistFollowers_全部429返回空且熔断保持关闭(t *testing.T) {
	env := newServiceEnv(t,
		upstream{name: "primary", dialect: config.DialectSpotify23, handler: status(429)},
		upstream{name: "backup", dialect: config.DialectSpotify81, handler: status(429)},
		upstream{name: "tertiary", dialect: config.DialectSpotify23, handler: status(429)},
	)

	got := env.svc.GetBatchArtistFollowers(context.Background(), []string{"id1", "id2"})

	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.Len(t, env.requests(), 3)

	for _, p := range env.providers {
		_, exists := env.breaker.State(context.Background(), p.Key())
		assert.False(t, exists, p.Key())
		assert.Zero(t, env.breaker.RecentFailures(context.Background(), p.Key()))
	}
}

func TestService_全部传输错误时返回空结果(t *testing.T) {
	env := newServiceEnv(t,
		upstream{name: "primary", dialect: config.DialectSpotify23},
		upstream{name: "backup", dialect: config.DialectSpotify81},
		upstream{name: "tertiary", dialect: config.DialectScraper},
	)
	ctx := context.Background()

	assert.Equal(t, []PreviewTrack{}, env.svc.GetArtistPreviewTracks(ctx, "a1", 5))
	assert.NotNil(t, env.svc.SearchArtists(ctx, "air", 10))
	assert.Empty(t, env.svc.SearchArtists(ctx, "air", 10))
	assert.NotNil(t, env.svc.SearchTracks(ctx, "air", 10))
	assert.NotNil(t, env.svc.GetSimilarArtists(ctx, "a1", 10))

	albums := env.svc.SearchAlbums(ctx, "air", 10)
	assert.NotNil(t, albums.Albums.Items)
	assert.Zero(t, albums.Albums.Total)

	assert.NotNil(t, env.svc.GetBatchTracks(ctx, []string{"t1"}))
	assert.NotNil(t, env.svc.GetBatchAlbums(ctx, []string{"al1"}))
}

func TestService_未注册的族返回空结果(t *testing.T) {
	svc := NewService(provider.NewRegistry(), nil, Options{Family: "missing"})
	assert.Empty(t, svc.SearchArtists(context.Background(), "x", 5))
	assert.Empty(t, svc.GetBatchTracks(context.Background(), []string{"t1"}))
	assert.Equal(t, "missing", svc.Family())
}

func TestSearch_各方言的请求参数(t *testing.T) {
	empty := respond(`{"albums":{"items":[],"totalCount":0}}`)

	tests := []struct {
		dialect string
		path    string
		want    url.Values
	}{
		{config.DialectSpotify23, "/search/", url.Values{
			"q": {"air"}, "type": {"albums"}, "offset": {"0"}, "limit": {"7"}, "numberOfTopResults": {"5"},
		}},
		{config.DialectSpotify81, "/search", url.Values{
			"q": {"air"}, "type": {"albums"}, "offset": {"0"}, "limit": {"7"}, "numberOfTopResults": {"5"},
		}},
		{config.DialectScraper, "/v1/search", url.Values{
			"term": {"air"}, "type": {"album"}, "limit": {"7"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			env := newServiceEnv(t, upstream{name: "primary", dialect: tt.dialect, handler: empty})

			got := env.svc.SearchAlbums(context.Background(), "air", 7)
			assert.Empty(t, got.Albums.Items)

			reqs := env.requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, tt.path, reqs[0].path)
			assert.Equal(t, tt.want, reqs[0].query)
		})
	}
}

func TestSearch_空集合交给下一个提供商(t *testing.T) {
	env := newServiceEnv(t,
		upstream{name: "primary", dialect: config.DialectSpotify23, handler: respond(`{"tracks":{"items":[],"totalCount":0}}`)},
		upstream{name: "backup", dialect: config.DialectSpotify81, handler: respond(`{"tracks":{"items":[{"id":"t1","name":"x"}]}}`)},
	)

	tracks := env.svc.SearchTracks(context.Background(), "nothing", 5)
	require.Len(t, tracks, 1)
	assert.Equal(t, "t1", tracks[0].ID)

	reqs := env.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "primary", reqs[0].provider)
	assert.Equal(t, "backup", reqs[1].provider)

	_, exists := env.breaker.State(context.Background(), env.providers[0].Key())
	assert.False(t, exists, "空结果不计为失败")
}

func TestSearch_全部返回空集合(t *testing.T) {
	env := newServiceEnv(t,
		upstream{name: "primary", dialect: config.DialectSpotify23, handler: respond(`{"albums":{"items":[],"totalCount":0}}`)},
		upstream{name: "backup", dialect: config.DialectSpotify81, handler: respond(`{"albums":{"items":[],"total":0}}`)},
		upstream{name: "tertiary", dialect: config.DialectScraper, handler: respond(`{"albums":{"items":[]}}`)},
	)

	got := env.svc.SearchAlbums(context.Background(), "nothing", 5)
	assert.NotNil(t, got.Albums.Items)
	assert.Empty(t, got.Albums.Items)
	assert.Equal(t, 0, got.Albums.Total)
	assert.Len(t, env.requests(), 3)
}

func TestGetBatchArtistFollowers_全为null时交给下一个提供商(t *testing.T) {
	env := newServiceEnv(t,
		upstream{name: "primary", dialect: config.DialectSpotify23, handler: respond(`{"artists":[null,null]}`)},
		upstream{name: "backup", dialect: config.DialectSpotify81, handler: respond(`{"artists":[
			{"id":"a1","name":"Air","followers":{"total":1200},"popularity":61}
		]}`)},
	)

	got := env.svc.GetBatchArtistFollowers(context.Background(), []string{"a1", "a2"})
	assert.Equal(t, map[string]ArtistFollowers{
		"a1": {ID: "a1", Name: "Air", Followers: 1200, Popularity: 61},
	}, got)

	reqs := env.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "primary", reqs[0].provider)
	assert.Equal(t, "backup", reqs[1].provider)
}

func TestSearch_无法识别的负载交给下一个提供商(t *testing.T) {
	env := newServiceEnv(t,
		upstream{name: "primary", dialect: config.DialectSpotify23, handler: respond(`{"message":"You are not subscribed"}`)},
		upstream{name: "backup", dialect: config.DialectSpotify81, handler: respond(`{"tracks":{"items":[
			{"id":"t1","name":"Around the World","duration_ms":429000,"artists":[{"id":"d1","name":"Daft Punk"}]}
		]}}`)},
	)

	tracks := env.svc.SearchTracks(context.Background(), "around", 5)
	require.Len(t, tracks, 1)
	assert.Equal(t, []string{"Daft Punk"}, tracks[0].ArtistNames())
	assert.Len(t, env.requests(), 2)
}

func TestSearchLabelReleases_使用厂牌查询(t *testing.T) {
	env := newServiceEnv(t, upstream{name: "primary", dialect: config.DialectSpotify23, handler: respond(`{"albums":{"totalCount":31,"items":[
		{"data":{"uri":"spotify:album:al1","name":"Homework","date":{"year":1997},"coverArt":{"sources":[{"url":"c1"}]}}}
	]}}`)})

	got := env.svc.SearchLabelReleases(context.Background(), ` Virgin "Records" `, 0)

	require.Len(t, got.Albums.Items, 1)
	assert.Equal(t, "al1", got.Albums.Items[0].ID)
	assert.Equal(t, 31, got.Albums.Total)

	reqs := env.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, `label:"Virgin Records"`, reqs[0].query.Get("q"))
	assert.Equal(t, "20", reqs[0].query.Get("limit"))

	assert.Empty(t, env.svc.SearchLabelReleases(context.Background(), `""`, 5).Albums.Items)
	assert.Len(t, env.requests(), 1)
}

func TestGetSimilarArtists_排除源艺人并截断(t *testing.T) {
	env := newServiceEnv(t, upstream{name: "primary", dialect: config.DialectScraper, handler: respond(`{"data":{"artist":{"relatedContent":{"relatedArtists":{"items":[
		{"id":"src","profile":{"name":"Air"}},
		{"id":"r1","profile":{"name":"Phoenix"}},
		{"id":"r2","profile":{"name":"Cassius"}},
		{"id":"r3","profile":{"name":"Justice"}}
	]}}}}}`)})

	got := env.svc.GetSimilarArtists(context.Background(), "spotify:artist:src", 2)

	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, "r2", got[1].ID)

	reqs := env.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/v1/artist/related", reqs[0].path)
	assert.Equal(t, "src", reqs[0].query.Get("artistId"))
}

func TestGetBatchTracks_去重并按上限分批(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		items := make([]string, 0, len(ids))
		for _, id := range ids {
			items = append(items, fmt.Sprintf(`{"id":%q,"name":"Track %s","popularity":50,
				"external_ids":{"isrc":"X%s"},"external_urls":{"spotify":"https://open.spotify.com/track/%s"}}`, id, id, id, id))
		}
		respond(`{"tracks":[` + strings.Join(items, ",") + `,null]}`)(w, r)
	}
	env := newServiceEnv(t, upstream{name: "primary", dialect: config.DialectSpotify23, handler: handler})

	ids := make([]string, 0, 62)
	for i := 0; i < 60; i++ {
		ids = append(ids, fmt.Sprintf("t%02d", i))
	}
	ids = append(ids, "spotify:track:t00", "https://open.spotify.com/track/t01")

	got := env.svc.GetBatchTracks(context.Background(), ids)

	require.Len(t, got, 60)
	assert.Equal(t, "Track t07", got["t07"].Name)
	assert.Equal(t, map[string]string{"isrc": "Xt07"}, got["t07"].ExternalIDs)
	assert.Equal(t, "https://open.spotify.com/track/t07", got["t07"].ExternalURLs["spotify"])

	reqs := env.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/tracks/", reqs[0].path)
	assert.Len(t, strings.Split(reqs[0].query.Get("ids"), ","), 50)
	assert.Len(t, strings.Split(reqs[1].query.Get("ids"), ","), 10)
}

func TestGetBatchAlbums_跳过不支持批量的方言(t *testing.T) {
	env := newServiceEnv(t,
		upstream{name: "primary", dialect: config.DialectScraper, handler: respond(`{"albums":[]}`)},
		upstream{name: "backup", dialect: config.DialectSpotify81, handler: respond(`{"albums":[
			{"id":"al1","name":"Moon Safari","album_type":"album","release_date":"1998-01-16","total_tracks":10,
			 "label":"Source","images":[{"url":"c1","width":640,"height":640}],"artists":[{"id":"air","name":"Air"}],
			 "external_urls":{"spotify":"https://open.spotify.com/album/al1"}}
		]}`)},
	)

	got := env.svc.GetBatchAlbums(context.Background(), []string{"al1", "al1"})

	require.Contains(t, got, "al1")
	album := got["al1"]
	assert.Equal(t, "Moon Safari", album.Name)
	assert.Equal(t, "1998-01-16", album.ReleaseDate)
	assert.Equal(t, "Source", album.Label)
	assert.Equal(t, []string{"Air"}, album.Artists)

	reqs := env.requests()
	require.Len(t, reqs, 1, "scraper has no batch endpoint")
	assert.Equal(t, "backup", reqs[0].provider)
	assert.Equal(t, "al1", reqs[0].query.Get("ids"))
}

func TestGetBatchArtistFollowers_按ID索引(t *testing.T) {
	env := newServiceEnv(t, upstream{name: "primary", dialect: config.DialectSpotify23, handler: respond(`{"artists":[
		{"id":"a1","name":"Air","followers":{"total":1200},"popularity":61},
		{"id":"a2","name":"Phoenix","followers":{"total":3400},"popularity":66}
	]}`)})

	got := env.svc.GetBatchArtistFollowers(context.Background(), []string{"a1", "", "spotify:artist:a2"})

	assert.Equal(t, map[string]ArtistFollowers{
		"a1": {ID: "a1", Name: "Air", Followers: 1200, Popularity: 61},
		"a2": {ID: "a2", Name: "Phoenix", Followers: 3400, Popularity: 66},
	}, got)
	assert.Equal(t, "a1,a2", env.requests()[0].query.Get("ids"))

	assert.Empty(t, env.svc.GetBatchArtistFollowers(context.Background(), nil))
	assert.Len(t, env.requests(), 1)
}

func TestGetArtistPreviewTracks_区分试听方式(t *testing.T) {
	env := newServiceEnv(t, upstream{name: "primary", dialect: config.DialectSpotify81, handler: respond(`{"tracks":[
		{"id":"t1","name":"La femme d'argent","preview_url":"https://p.scdn.co/mp3-preview/1",
		 "artists":[{"id":"air","name":"Air"}],"album":{"id":"al1","name":"Moon Safari","images":[{"url":"small","width":64,"height":64},{"url":"big","width":640,"height":640}]}},
		{"id":"t2","name":"Sexy Boy","preview_url":null,"artists":[{"id":"air","name":"Air"}]}
	]}`)})

	got := env.svc.GetArtistPreviewTracks(context.Background(), "air", 0)

	require.Len(t, got, 2)
	assert.Equal(t, EmbedAudio, got[0].EmbedType)
	assert.Equal(t, "https://p.scdn.co/mp3-preview/1", got[0].PreviewURL)
	assert.Equal(t, "big", got[0].Image)
	assert.Equal(t, []string{"Air"}, got[0].Artists)

	assert.Equal(t, EmbedSpotify, got[1].EmbedType)
	assert.Empty(t, got[1].PreviewURL)
	assert.Equal(t, "https://open.spotify.com/embed/track/t2", got[1].EmbedURL)

	reqs := env.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/artist_top_tracks", reqs[0].path)
	assert.Equal(t, url.Values{"id": {"air"}, "country": {"US"}}, reqs[0].query)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 20, clamp(0, 20, 50))
	assert.Equal(t, 20, clamp(-3, 20, 50))
	assert.Equal(t, 50, clamp(500, 20, 50))
	assert.Equal(t, 7, clamp(7, 20, 50))
}

func TestChunks(t *testing.T) {
	assert.Nil(t, chunks(nil, 20))
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, chunks([]string{"a", "b", "c"}, 2))
	assert.Equal(t, [][]string{{"a", "b"}}, chunks([]string{"a", "b"}, 2))
}
