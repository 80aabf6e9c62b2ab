package normalize

import (
	"sort"

	"tunefetch/pkg/logger"
)

// Normalizer 把各提供商的原始负载转换为统一记录。
// 除了可选的 Unrecognized 回调外没有状态，同一输入总是得到相同输出。
type Normalizer struct {
	// Unrecognized 在没有任何已知结构匹配时调用，参数为实体类型和负载的键
	Unrecognized func(kind string, keys []string)
}

// New 创建默认的归一化器，未识别的结构以 debug 级别记录
func New() *Normalizer {
	log := logger.WithComponent("Normalizer")
	return &Normalizer{
		Unrecognized: func(kind string, keys []string) {
			log.WithField("kind", kind).WithField("keys", keys).Debug("unrecognized payload shape, using partial extraction")
		},
	}
}

// Artist 归一化一个艺人负载
func (n *Normalizer) Artist(raw map[string]any) Artist {
	return normalizeWith(n, "artist", raw, artistShapes, partialArtist)
}

// Album 归一化一个专辑负载
func (n *Normalizer) Album(raw map[string]any) Album {
	return normalizeWith(n, "album", raw, albumShapes, partialAlbum)
}

// Track 归一化一个单曲负载
func (n *Normalizer) Track(raw map[string]any) Track {
	return normalizeWith(n, "track", raw, trackShapes, partialTrack)
}

// Artists 归一化列表，丢弃既没有 ID 也没有名称的记录，并去重
func (n *Normalizer) Artists(items []map[string]any) []Artist {
	out := make([]Artist, 0, len(items))
	for _, item := range items {
		if a := n.Artist(item); a.ID != "" || a.Name != "" {
			out = append(out, a)
		}
	}
	return DedupeArtists(out)
}

// Albums 归一化专辑列表并去重
func (n *Normalizer) Albums(items []map[string]any) []Album {
	out := make([]Album, 0, len(items))
	for _, item := range items {
		if a := n.Album(item); a.ID != "" || a.Name != "" {
			out = append(out, a)
		}
	}
	return DedupeAlbums(out)
}

// Tracks 归一化单曲列表并去重
func (n *Normalizer) Tracks(items []map[string]any) []Track {
	out := make([]Track, 0, len(items))
	for _, item := range items {
		if t := n.Track(item); t.ID != "" || t.Name != "" {
			out = append(out, t)
		}
	}
	return DedupeTracks(out)
}

func normalizeWith[T any](n *Normalizer, kind string, raw map[string]any, shapes []shape[T], partial func(map[string]any) T) T {
	for _, s := range shapes {
		if s.match(raw) {
			return s.extract(raw)
		}
	}
	if n != nil && n.Unrecognized != nil {
		n.Unrecognized(kind, sortedKeys(raw))
	}
	return partial(raw)
}

func sortedKeys(m map[string]any) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

var defaultNormalizer = &Normalizer{}

// NormalizeArtist 使用无回调的归一化器
func NormalizeArtist(raw map[string]any) Artist { return defaultNormalizer.Artist(raw) }

// NormalizeAlbum 使用无回调的归一化器
func NormalizeAlbum(raw map[string]any) Album { return defaultNormalizer.Album(raw) }

// NormalizeTrack 使用无回调的归一化器
func NormalizeTrack(raw map[string]any) Track { return defaultNormalizer.Track(raw) }
