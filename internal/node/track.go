package node

// Load result types reported by a node for a track load request.
const (
	LoadTypeTrackLoaded    = "TRACK_LOADED"
	LoadTypeSearchResult   = "SEARCH_RESULT"
	LoadTypePlaylistLoaded = "PLAYLIST_LOADED"
	LoadTypeNoMatches      = "NO_MATCHES"
	LoadTypeLoadFailed     = "LOAD_FAILED"
)

// TrackInfo is the decoded metadata of a single track.
type TrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	SourceName string `json:"sourceName"`
}

// Track pairs an opaque encoded track string with its decoded metadata.
type Track struct {
	Encoded string    `json:"track"`
	Info    TrackInfo `json:"info"`
}

// PlaylistInfo describes the playlist a load result belongs to, if any.
type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// LoadException carries the failure details of a LOAD_FAILED result.
type LoadException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// LoadResult is the response of a track load request.
type LoadResult struct {
	LoadType     string         `json:"loadType"`
	PlaylistInfo PlaylistInfo   `json:"playlistInfo"`
	Tracks       []Track        `json:"tracks"`
	Exception    *LoadException `json:"exception,omitempty"`
}

// RoutePlannerStatus is the response of a route planner status request. An
// empty Class means the node has no route planner configured.
type RoutePlannerStatus struct {
	Class   string                 `json:"class"`
	Details map[string]interface{} `json:"details"`
}
