package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const openSpotifyPrefix = "https://open.spotify.com/"

// path 按键路径取值，任意一层缺失返回 nil
func path(node any, ks ...string) any {
	for _, k := range ks {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[k]
	}
	return node
}

func obj(node any, ks ...string) (map[string]any, bool) {
	m, ok := path(node, ks...).(map[string]any)
	return m, ok
}

func list(node any, ks ...string) []any {
	l, _ := path(node, ks...).([]any)
	return l
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

// str 返回第一个非空字符串
func str(node any, candidates ...[]string) string {
	for _, ks := range candidates {
		if s, ok := path(node, ks...).(string); ok && s != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// num 返回第一个可解析的数值，缺失时为 0
func num(node any, candidates ...[]string) int64 {
	for _, ks := range candidates {
		if n, ok := toInt(path(node, ks...)); ok {
			return n
		}
	}
	return 0
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func keys(k ...string) []string { return k }

// ExtractID 从裸 ID、spotify:<kind>:<id> URI 或 open.spotify.com 链接中取出 ID
func ExtractID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		return parts[len(parts)-1]
	}

	if i := strings.Index(raw, "open.spotify.com/"); i >= 0 {
		rest := raw[i+len("open.spotify.com/"):]
		if q := strings.IndexAny(rest, "?#"); q >= 0 {
			rest = rest[:q]
		}
		rest = strings.TrimSuffix(rest, "/")
		if j := strings.LastIndex(rest, "/"); j >= 0 {
			rest = rest[j+1:]
		}
		return rest
	}

	return raw
}

// idOf 依次尝试 id 字段与 uri 字段
func idOf(m any, idKeys ...string) string {
	for _, k := range idKeys {
		if id := ExtractID(str(m, keys(k))); id != "" {
			return id
		}
	}
	return ExtractID(str(m, keys("uri")))
}

func externalURL(kind, id string) string {
	if id == "" {
		return ""
	}
	return openSpotifyPrefix + kind + "/" + id
}

// images 解析 [{url,width,height}] 列表
func images(l []any) []Image {
	out := make([]Image, 0, len(l))
	for _, item := range l {
		u := str(item, keys("url"))
		if u == "" {
			continue
		}
		out = append(out, Image{
			URL:    u,
			Width:  int(num(item, keys("width"))),
			Height: int(num(item, keys("height"))),
		})
	}
	return out
}

func artistRefs(l []any) []ArtistRef {
	out := make([]ArtistRef, 0, len(l))
	for _, item := range l {
		ref := ArtistRef{
			ID:   idOf(item, "id"),
			Name: str(item, keys("name"), keys("profile", "name")),
		}
		if ref.ID == "" && ref.Name == "" {
			continue
		}
		out = append(out, ref)
	}
	return out
}

func stringList(l []any) []string {
	out := make([]string, 0, len(l))
	for _, v := range l {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringMap(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NameKey 生成名称比较键：去掉重音、大小写折叠、合并空白
func NameKey(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = strings.ToLower(name)
	}
	return strings.Join(strings.Fields(folded), " ")
}
