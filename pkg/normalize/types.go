package normalize

// Shape 标识负载匹配到的结构
type Shape string

const (
	ShapeWebAPI         Shape = "webapi"
	ShapeGraphQL        Shape = "graphql"
	ShapeGraphQLWrapped Shape = "graphql_wrapped"
	ShapeScraper        Shape = "scraper"
	ShapePartial        Shape = "partial"
)

// Image 封面或头像
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ArtistRef 专辑、单曲中引用的艺人
type ArtistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Artist 统一的艺人记录，数值字段缺失时为 0
type Artist struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	URI              string   `json:"uri,omitempty"`
	Images           []Image  `json:"images"`
	Genres           []string `json:"genres"`
	Followers        int64    `json:"followers"`
	MonthlyListeners int64    `json:"monthly_listeners"`
	Popularity       int      `json:"popularity"`
	ExternalURL      string   `json:"external_url,omitempty"`
	Shape            Shape    `json:"-"`
}

// Album 统一的专辑记录
type Album struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	URI         string      `json:"uri,omitempty"`
	AlbumType   string      `json:"album_type,omitempty"`
	Artists     []ArtistRef `json:"artists"`
	Images      []Image     `json:"images"`
	ReleaseDate string      `json:"release_date,omitempty"`
	TotalTracks int         `json:"total_tracks"`
	Popularity  int         `json:"popularity"`
	Label       string      `json:"label,omitempty"`
	ExternalURL string      `json:"external_url,omitempty"`
	Shape       Shape       `json:"-"`
}

// Track 统一的单曲记录
type Track struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	URI         string            `json:"uri,omitempty"`
	Artists     []ArtistRef       `json:"artists"`
	AlbumID     string            `json:"album_id,omitempty"`
	AlbumName   string            `json:"album_name,omitempty"`
	Images      []Image           `json:"images"`
	DurationMS  int64             `json:"duration_ms"`
	Popularity  int               `json:"popularity"`
	PreviewURL  string            `json:"preview_url,omitempty"`
	ExternalURL string            `json:"external_url,omitempty"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	Shape       Shape             `json:"-"`
}

// ArtistNames 返回艺人名列表
func (t Track) ArtistNames() []string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

// LargestImage 返回面积最大的图片，没有时返回空值
func LargestImage(images []Image) Image {
	var best Image
	for _, img := range images {
		if best.URL == "" || img.Width*img.Height > best.Width*best.Height {
			best = img
		}
	}
	return best
}
