package normalize

import "strings"

// Collection 从响应中找到的实体列表
type Collection struct {
	Items []map[string]any
	Total int
	Path  string
}

// Collect 按顺序尝试路径（点分隔，空字符串表示根），返回第一个可识别的列表。
// 可识别的列表是 JSON 数组，或带 items 数组的对象（total / totalCount 作为总数）。
// 列表中的 null 与非对象元素被丢弃，{track:{...}} 形式的条目会被解包。
func Collect(payload any, paths ...string) (Collection, bool) {
	if len(paths) == 0 {
		paths = []string{""}
	}

	for _, p := range paths {
		node := payload
		if p != "" {
			node = path(payload, strings.Split(p, ".")...)
		}

		items, total, ok := listNode(node)
		if !ok {
			continue
		}

		c := Collection{Items: make([]map[string]any, 0, len(items)), Path: p}
		for _, item := range items {
			if m := unwrapItem(item); m != nil {
				c.Items = append(c.Items, m)
			}
		}
		c.Total = total
		if c.Total < len(c.Items) {
			c.Total = len(c.Items)
		}
		return c, true
	}
	return Collection{}, false
}

func listNode(node any) ([]any, int, bool) {
	switch v := node.(type) {
	case []any:
		return v, 0, true
	case map[string]any:
		items, ok := v["items"].([]any)
		if !ok {
			return nil, 0, false
		}
		return items, int(num(v, keys("total"), keys("totalCount"))), true
	}
	return nil, 0, false
}

func unwrapItem(item any) map[string]any {
	m, ok := item.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	if inner, ok := m["track"].(map[string]any); ok && len(m) <= 2 {
		return inner
	}
	if inner, ok := m["item"].(map[string]any); ok && len(m) == 1 {
		return inner
	}
	return m
}
