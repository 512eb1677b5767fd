package archive

// Raw shapes as they appear on disk in the export. Only the fields the
// pipeline reads are declared; the export carries plenty more.

type rawPost struct {
	Media             []rawMedia `json:"media"`
	Title             string     `json:"title"`
	CreationTimestamp int64      `json:"creation_timestamp"`
}

type rawMedia struct {
	URI               string `json:"uri"`
	CreationTimestamp int64  `json:"creation_timestamp"`
	Title             string `json:"title"`
}

type rawInsightsFile struct {
	OrganicInsightsPosts []rawInsight `json:"organic_insights_posts"`
}

type rawInsight struct {
	MediaMapData  map[string]rawMediaMapEntry `json:"media_map_data"`
	StringMapData map[string]rawStringValue   `json:"string_map_data"`
}

type rawMediaMapEntry struct {
	URI               string `json:"uri"`
	CreationTimestamp int64  `json:"creation_timestamp"`
}

type rawStringValue struct {
	Value string `json:"value"`
}

type rawProfileFile struct {
	ProfileUser []rawProfileUser `json:"profile_user"`
}

type rawProfileUser struct {
	StringMapData map[string]rawStringValue   `json:"string_map_data"`
	MediaMapData  map[string]rawMediaMapEntry `json:"media_map_data"`
}

type rawLocationFile struct {
	InferredDataPrimaryLocation []rawProfileUser `json:"inferred_data_primary_location"`
}

type rawStoriesFile struct {
	IgStories []rawMedia `json:"ig_stories"`
}

// PostRecord is the simplified per-post record embedded in the generated
// page. Impressions/Likes/Comments are nil when the insights export carried
// no usable value; nil is deliberately distinct from zero.
type PostRecord struct {
	Index          int      `json:"index"`
	Media          []string `json:"media"`
	TakenAt        int64    `json:"taken_at"`
	TakenAtDisplay string   `json:"taken_at_display"`
	Title          string   `json:"title"`
	Impressions    *int     `json:"impressions"`
	Likes          *int     `json:"likes"`
	Comments       *int     `json:"comments"`
	Blurhash       string   `json:"blurhash,omitempty"`
}

// StoryRecord is the single-media analogue of PostRecord. Thumb is filled
// by the media pipeline when a 9:16 preview was generated.
type StoryRecord struct {
	Index          int      `json:"index"`
	Media          []string `json:"media"`
	TakenAt        int64    `json:"taken_at"`
	TakenAtDisplay string   `json:"taken_at_display"`
	Caption        string   `json:"caption"`
	Thumb          string   `json:"thumb,omitempty"`
}

type Profile struct {
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
	Bio            string `json:"bio,omitempty"`
	Website        string `json:"website,omitempty"`
}

type DateRange struct {
	Newest string
	Oldest string
	Range  string
}

// Archive is everything the generator needs, with posts and stories already
// sorted newest first.
type Archive struct {
	Profile   Profile
	Location  string
	Posts     []*PostRecord
	Stories   []*StoryRecord
	DateRange DateRange
}
