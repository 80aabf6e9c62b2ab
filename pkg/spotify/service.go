package spotify

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"tunefetch/pkg/logger"
	"tunefetch/pkg/normalize"
	"tunefetch/pkg/provider"
)

// 默认与最大返回条数
const (
	defaultLimit        = 20
	maxLimit            = 50
	defaultPreviewLimit = 5
	maxPreviewLimit     = 10
)

// 各操作在响应中查找实体列表的路径，按方言的常见结构排列
var (
	artistSearchPaths = []string{"artists", "data.searchV2.artists", "data.artists", "data"}
	albumSearchPaths  = []string{"albums", "data.searchV2.albums", "data.albums", "data"}
	trackSearchPaths  = []string{"tracks", "data.searchV2.tracks", "data.tracks", "data"}
	relatedPaths      = []string{"artists", "data.artist.relatedContent.relatedArtists", "data.artists", "data"}
	topTrackPaths     = []string{"tracks", "data.artist.discography.topTracks", "topTracks", "data.tracks"}
)

// Options Service 的可选依赖
type Options struct {
	Family       string // 提供商族，默认 spotify
	Orchestrator *provider.Orchestrator
	Normalizer   *normalize.Normalizer
}

// Service 领域操作。
// 每个操作构造各方言的请求参数，交给回退编排器，再把胜出的负载归一化。
// 上游全部失败时返回空结果，不返回错误。
type Service struct {
	registry *provider.Registry
	caller   provider.Caller
	family   string
	orch     *provider.Orchestrator
	norm     *normalize.Normalizer
	log      *logrus.Entry
}

// NewService 创建领域服务
func NewService(registry *provider.Registry, caller provider.Caller, opts Options) *Service {
	if opts.Family == "" {
		opts.Family = "spotify"
	}
	if opts.Orchestrator == nil {
		opts.Orchestrator = provider.NewOrchestrator(nil)
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.New()
	}
	return &Service{
		registry: registry,
		caller:   caller,
		family:   opts.Family,
		orch:     opts.Orchestrator,
		norm:     opts.Normalizer,
		log:      logger.WithComponent("Spotify").WithField("family", opts.Family),
	}
}

// Family 返回服务使用的提供商族
func (s *Service) Family() string {
	return s.family
}

// SearchArtists 搜索艺人
func (s *Service) SearchArtists(ctx context.Context, q string, limit int) []normalize.Artist {
	q = strings.TrimSpace(q)
	if q == "" {
		return []normalize.Artist{}
	}
	limit = clamp(limit, defaultLimit, maxLimit)

	c, ok := s.run(ctx, "search_artists", searchRequest(q, kindArtist, limit), artistSearchPaths...)
	if !ok {
		return []normalize.Artist{}
	}
	return head(s.norm.Artists(c.Items), limit)
}

// SearchAlbums 搜索专辑
func (s *Service) SearchAlbums(ctx context.Context, q string, limit int) AlbumSearchResult {
	return s.searchAlbums(ctx, "search_albums", strings.TrimSpace(q), limit)
}

// SearchLabelReleases 按厂牌搜索发行
func (s *Service) SearchLabelReleases(ctx context.Context, label string, limit int) AlbumSearchResult {
	label = strings.TrimSpace(strings.ReplaceAll(label, `"`, ""))
	if label == "" {
		return emptyAlbums()
	}
	return s.searchAlbums(ctx, "search_label_releases", `label:"`+label+`"`, limit)
}

func (s *Service) searchAlbums(ctx context.Context, op, q string, limit int) AlbumSearchResult {
	if q == "" {
		return emptyAlbums()
	}
	limit = clamp(limit, defaultLimit, maxLimit)

	c, ok := s.run(ctx, op, searchRequest(q, kindAlbum, limit), albumSearchPaths...)
	if !ok {
		return emptyAlbums()
	}
	albums := head(s.norm.Albums(c.Items), limit)
	total := c.Total
	if total < len(albums) {
		total = len(albums)
	}
	return AlbumSearchResult{Albums: AlbumPage{Items: albums, Total: total}}
}

// SearchTracks 搜索单曲
func (s *Service) SearchTracks(ctx context.Context, q string, limit int) []normalize.Track {
	q = strings.TrimSpace(q)
	if q == "" {
		return []normalize.Track{}
	}
	limit = clamp(limit, defaultLimit, maxLimit)

	c, ok := s.run(ctx, "search_tracks", searchRequest(q, kindTrack, limit), trackSearchPaths...)
	if !ok {
		return []normalize.Track{}
	}
	return head(s.norm.Tracks(c.Items), limit)
}

// GetSimilarArtists 相似艺人，结果中不包含源艺人
func (s *Service) GetSimilarArtists(ctx context.Context, artistID string, limit int) []normalize.Artist {
	id := normalize.ExtractID(artistID)
	if id == "" {
		return []normalize.Artist{}
	}
	limit = clamp(limit, defaultLimit, maxLimit)

	build := idRequest(func(d dialect) func(string) request { return d.related }, id)
	c, ok := s.run(ctx, "similar_artists", build, relatedPaths...)
	if !ok {
		return []normalize.Artist{}
	}

	out := make([]normalize.Artist, 0, len(c.Items))
	for _, a := range s.norm.Artists(c.Items) {
		if a.ID == id {
			continue
		}
		out = append(out, a)
	}
	return head(out, limit)
}

// GetBatchArtistFollowers 批量查询艺人关注数，按 ID 索引
func (s *Service) GetBatchArtistFollowers(ctx context.Context, ids []string) map[string]ArtistFollowers {
	out := make(map[string]ArtistFollowers)
	for _, chunk := range chunks(normalize.DedupeIDs(ids), maxArtistBatch) {
		build := batchRequest(func(d dialect) func([]string) request { return d.artists }, chunk)
		c, ok := s.run(ctx, "batch_artist_followers", build, "artists", "data.artists")
		if !ok {
			continue
		}
		for _, a := range s.norm.Artists(c.Items) {
			if a.ID != "" {
				out[a.ID] = followersOf(a)
			}
		}
	}
	return out
}

// GetBatchTracks 批量查询单曲详情，按 ID 索引
func (s *Service) GetBatchTracks(ctx context.Context, ids []string) map[string]TrackDetails {
	out := make(map[string]TrackDetails)
	for _, chunk := range chunks(normalize.DedupeIDs(ids), maxTrackBatch) {
		build := batchRequest(func(d dialect) func([]string) request { return d.tracks }, chunk)
		c, ok := s.run(ctx, "batch_tracks", build, "tracks", "data.tracks")
		if !ok {
			continue
		}
		for _, t := range s.norm.Tracks(c.Items) {
			if t.ID != "" {
				out[t.ID] = trackDetailsOf(t)
			}
		}
	}
	return out
}

// GetBatchAlbums 批量查询专辑详情，按 ID 索引
func (s *Service) GetBatchAlbums(ctx context.Context, ids []string) map[string]AlbumDetails {
	out := make(map[string]AlbumDetails)
	for _, chunk := range chunks(normalize.DedupeIDs(ids), maxAlbumBatch) {
		build := batchRequest(func(d dialect) func([]string) request { return d.albums }, chunk)
		c, ok := s.run(ctx, "batch_albums", build, "albums", "data.albums")
		if !ok {
			continue
		}
		for _, a := range s.norm.Albums(c.Items) {
			if a.ID != "" {
				out[a.ID] = albumDetailsOf(a)
			}
		}
	}
	return out
}

// GetArtistPreviewTracks 艺人热门单曲及其试听方式。
// 有 MP3 预览的标记为 audio，否则回退到 Spotify 嵌入播放器。
func (s *Service) GetArtistPreviewTracks(ctx context.Context, artistID string, limit int) []PreviewTrack {
	id := normalize.ExtractID(artistID)
	if id == "" {
		return []PreviewTrack{}
	}
	limit = clamp(limit, defaultPreviewLimit, maxPreviewLimit)

	build := idRequest(func(d dialect) func(string) request { return d.topTracks }, id)
	c, ok := s.run(ctx, "artist_preview_tracks", build, topTrackPaths...)
	if !ok {
		return []PreviewTrack{}
	}

	out := make([]PreviewTrack, 0, limit)
	for _, t := range head(s.norm.Tracks(c.Items), limit) {
		if t.ID == "" {
			continue
		}
		out = append(out, previewOf(t))
	}
	return out
}

// run 执行一次回退链。结果可接受的条件是调用成功且在给定路径上找到非空的实体列表；
// 空列表交给下一个提供商，全部用尽时仍返回最后一个可识别的空列表。
func (s *Service) run(ctx context.Context, op string, build func(p provider.ProviderConfig) (string, provider.Params, bool), paths ...string) (normalize.Collection, bool) {
	providers, err := s.registry.Providers(s.family)
	if err != nil {
		s.log.WithError(err).WithField("operation", op).Warn("no providers for family")
		return normalize.Collection{}, false
	}

	var (
		found      normalize.Collection
		recognized bool
	)
	accept := func(r provider.Result) bool {
		if !r.Success {
			return false
		}
		c, ok := normalize.Collect(r.Data, paths...)
		if !ok {
			return false
		}
		found, recognized = c, true
		return len(c.Items) > 0
	}

	r := s.orch.TryProviders(ctx, op, providers, provider.CallAttempt(s.caller, build), accept)
	if r.Exhausted {
		return found, recognized
	}

	s.log.WithFields(logrus.Fields{
		"operation": op,
		"provider":  r.ProviderKey,
		"items":     len(found.Items),
		"attempts":  r.Attempts,
	}).Debug("operation served")
	return found, true
}

func emptyAlbums() AlbumSearchResult {
	return AlbumSearchResult{Albums: AlbumPage{Items: []normalize.Album{}}}
}

func clamp(limit, def, ceiling int) int {
	if limit <= 0 {
		return def
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}

func head[T any](items []T, n int) []T {
	if items == nil {
		return []T{}
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
