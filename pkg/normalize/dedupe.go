package normalize

// DedupeArtists 按 ID（没有 ID 时按名称键）去重，保留首次出现的位置
func DedupeArtists(in []Artist) []Artist {
	return dedupe(in, func(a Artist) string { return identity(a.ID, a.Name) })
}

// DedupeAlbums 按 ID 或名称键去重
func DedupeAlbums(in []Album) []Album {
	return dedupe(in, func(a Album) string { return identity(a.ID, a.Name) })
}

// DedupeTracks 按 ID 或名称键去重
func DedupeTracks(in []Track) []Track {
	return dedupe(in, func(t Track) string { return identity(t.ID, t.Name) })
}

// DedupeIDs 去掉空值与重复 ID，URI 会先被转换为 ID
func DedupeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := ExtractID(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func identity(id, name string) string {
	if id != "" {
		return "id:" + id
	}
	if key := NameKey(name); key != "" {
		return "name:" + key
	}
	return ""
}

func dedupe[T any](in []T, key func(T) string) []T {
	out := make([]T, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, item := range in {
		k := key(item)
		if k != "" {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
		}
		out = append(out, item)
	}
	return out
}
