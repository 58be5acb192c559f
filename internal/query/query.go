package query

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Source identifies where a query resolves from. The set is closed.
type Source string

const (
	SourceYouTube      Source = "youtube"
	SourceYouTubeMusic Source = "youtubemusic"
	SourceSpotify      Source = "spotify"
	SourceAppleMusic   Source = "applemusic"
	SourceSoundCloud   Source = "soundcloud"
	SourceBandcamp     Source = "bandcamp"
	SourceTwitch       Source = "twitch"
	SourceVimeo        Source = "vimeo"
	SourceNicoNico     Source = "niconico"
	SourceMixcloud     Source = "mixcloud"
	SourceClypIt       Source = "clypit"
	SourceGetYarn      Source = "getyarn"
	SourceOCRemix      Source = "ocremix"
	SourceReddit       Source = "reddit"
	SourceSoundgasm    Source = "soundgasm"
	SourceTikTok       Source = "tiktok"
	SourcePornHub      Source = "pornhub"
	SourceTTS          Source = "tts"
	SourceGCTTS        Source = "gctts"
	SourceHTTP         Source = "http"
	SourceLocal        Source = "local"
)

// Type is the shape of what a query resolves to.
type Type string

const (
	TypeSingle   Type = "single"
	TypePlaylist Type = "playlist"
	TypeAlbum    Type = "album"
)

var (
	youtubeRE    = regexp.MustCompile(`(?:http://|https://|)(?:www\.|)(music\.)?youtu(be\.com|\.be)`)
	spotifyRE    = regexp.MustCompile(`(https?://)?(www\.)?open\.spotify\.com/(user/[a-zA-Z\d_-]+/)?(track|album|playlist|artist)/([a-zA-Z\d_-]+)`)
	appleMusicRE = regexp.MustCompile(`(https?://)?(www\.)?music\.apple\.com/([a-zA-Z]{2}/)?(album|playlist|artist)(/[a-zA-Z\d-]+)?/([a-zA-Z\d.]+)(\?i=(\d+))?`)
	soundCloudRE = regexp.MustCompile(`^(?:http://|https://|)soundcloud\.app\.goo\.gl/([a-zA-Z\d_-]+)/?(?:\?.*|)$` +
		`|^(?:http://|https://|)(?:www\.|)(?:m\.|)soundcloud\.com/([a-zA-Z\d_-]+)/([a-zA-Z\d_-]+)/?(?:\?.*|)$` +
		`|^(?:http://|https://|)(?:www\.|)(?:m\.|)soundcloud\.com/([a-zA-Z\d_-]+)/([a-zA-Z\d_-]+)/s-([a-zA-Z\d_-]+)(?:\?.*|)$` +
		`|^(?:http://|https://|)(?:www\.|)(?:m\.|)soundcloud\.com/([a-zA-Z\d_-]+)/likes/?(?:\?.*|)$`)
	twitchRE     = regexp.MustCompile(`^https://(?:www\.|go\.)?twitch\.tv/([^/]+)$`)
	bandcampRE   = regexp.MustCompile(`^(https?://(?:[^.]+\.|)bandcamp\.com)/(track|album)/([a-zA-Z\d_-]+)/?(?:\?.*|)$`)
	nicoNicoRE   = regexp.MustCompile(`(?:http://|https://|)(?:www\.|)nicovideo\.jp/watch/(sm\d+)(?:\?.*|)$`)
	vimeoRE      = regexp.MustCompile(`^https://vimeo\.com/\d+(?:\?.*|)$`)
	mixcloudRE   = regexp.MustCompile(`https?://(?:(?:www|beta|m)\.)?mixcloud\.com/([^/]+)/([^/]+)/?`)
	clypItRE     = regexp.MustCompile(`(http://|https://(www\.)?)?clyp\.it/(.*)`)
	getYarnRE    = regexp.MustCompile(`(?:http://|https://(?:www\.)?)?getyarn\.io/yarn-clip/(.*)`)
	ocRemixRE    = regexp.MustCompile(`(?:https?://(?:www\.)?ocremix\.org/remix/)?(OCR\d+)(?:.*)?`)
	redditRE     = regexp.MustCompile(`https://(?:www|old)\.reddit\.com/r/[^/]+/[^/]+/([^/]+)(?:/?(?:[^/]+)?/?)?|https://v\.redd\.it/([^/]+)(?:.*)?`)
	soundgasmRE  = regexp.MustCompile(`https?://soundgasm\.net/u/([^/]+)/[^/]+`)
	tikTokRE     = regexp.MustCompile(`^https://(?:www\.|m\.)?tiktok\.com/@([^/]+)/video/(\d+).*$`)
	pornHubRE    = regexp.MustCompile(`^https?://([a-z]+\.)?pornhub\.(com|net)/view_video\.php\?viewkey=([a-zA-Z\d]+).*$`)
	ttsRE        = regexp.MustCompile(`^(speak|tts):(.*)$`)
	gcTTSRE      = regexp.MustCompile(`^tts://(.*)$`)
	searchRE     = regexp.MustCompile(`^(yt|ytm|sp|sc|am)search:(.*)$`)
	httpRE       = regexp.MustCompile(`^https?://`)
	ytTimestampRE = regexp.MustCompile(`[&?]t=(\d+)s?`)
	ytIndexRE     = regexp.MustCompile(`&index=(\d+)`)
)

// Query is a classified track request: the raw input plus where and how it
// should resolve.
type Query struct {
	Raw    string
	Source Source
	Search bool
	Type   Type

	// StartTime is the requested start offset in seconds, for sources that
	// encode one in the URL.
	StartTime int

	// Index is the zero-based track index within a playlist link.
	Index int
}

// Parse classifies a raw query. It never fails: anything unrecognized
// becomes a YouTube search, mirroring what a user typing free text into a
// play command expects.
func Parse(raw string) Query {
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "<>")

	if q, ok := parseURL(raw); ok {
		return q
	}
	if q, ok := parseSearch(raw); ok {
		return q
	}
	if q, ok := parseLocal(raw); ok {
		return q
	}
	return Query{Raw: raw, Source: SourceYouTube, Search: true, Type: TypeSingle}
}

func parseURL(raw string) (Query, bool) {
	switch {
	case youtubeRE.MatchString(raw):
		return parseYouTube(raw), true
	case spotifyRE.MatchString(raw):
		return parseSpotify(raw), true
	case appleMusicRE.MatchString(raw):
		return Query{Raw: raw, Source: SourceAppleMusic, Type: TypeSingle}, true
	case soundCloudRE.MatchString(raw):
		return parseSoundCloud(raw), true
	case twitchRE.MatchString(raw):
		return Query{Raw: raw, Source: SourceTwitch, Type: TypeSingle}, true
	case gcTTSRE.MatchString(raw):
		term := gcTTSRE.FindStringSubmatch(raw)[1]
		return Query{Raw: term, Source: SourceGCTTS, Search: true, Type: TypeSingle}, true
	case ttsRE.MatchString(raw):
		term := ttsRE.FindStringSubmatch(raw)[2]
		return Query{Raw: term, Source: SourceTTS, Search: true, Type: TypeSingle}, true
	case clypItRE.MatchString(raw):
		return Query{Raw: raw, Source: SourceClypIt, Type: TypeSingle}, true
	case getYarnRE.MatchString(raw):
		return Query{Raw: raw, Source: SourceGetYarn, Type: TypeSingle}, true
	case isMixcloud(raw):
		return Query{Raw: raw, Source: SourceMixcloud, Type: TypeSingle}, true
	case ocRemixRE.MatchString(raw):
		return Query{Raw: raw, Source: SourceOCRemix, Type: TypeSingle}, true
	case pornHubRE.MatchString(raw):
		return Query{Raw: raw, Source: SourcePornHub, Type: TypeSingle}, true
	case redditRE.MatchString(raw):
		return Query{Raw: raw, Source: SourceReddit, Type: TypeSingle}, true
	case soundgasmRE.MatchString(raw):
		return Query{Raw: raw, Source: SourceSoundgasm, Type: TypeSingle}, true
	case tikTokRE.MatchString(raw):
		return Query{Raw: raw, Source: SourceTikTok, Type: TypeSingle}, true
	case bandcampRE.MatchString(raw):
		return parseBandcamp(raw), true
	case nicoNicoRE.MatchString(raw):
		return Query{Raw: raw, Source: SourceNicoNico, Type: TypeSingle}, true
	case vimeoRE.MatchString(raw):
		return Query{Raw: raw, Source: SourceVimeo, Type: TypeSingle}, true
	case httpRE.MatchString(raw):
		return Query{Raw: raw, Source: SourceHTTP, Type: TypeSingle}, true
	}
	return Query{}, false
}

// isMixcloud matches a mixcloud show URL while excluding the site's
// non-show pages, which share the same path shape.
func isMixcloud(raw string) bool {
	m := mixcloudRE.FindStringSubmatch(raw)
	if m == nil {
		return false
	}

	switch m[2] {
	case "stream", "uploads", "favorites", "listens", "playlists":
		return false
	}
	return true
}

func parseYouTube(raw string) Query {
	q := Query{Raw: raw, Source: SourceYouTube, Type: TypeSingle}

	if m := ytTimestampRE.FindStringSubmatch(raw); m != nil {
		q.StartTime, _ = strconv.Atoi(m[1])
	}

	hasIndex := strings.Contains(raw, "&index=")
	if hasIndex {
		if m := ytIndexRE.FindStringSubmatch(raw); m != nil {
			idx, _ := strconv.Atoi(m[1])
			q.Index = idx - 1
		}
	}

	switch {
	case strings.Contains(raw, "&list=") && strings.Contains(raw, "watch?"):
		q.Type = TypePlaylist
		q.Index = 0
	case strings.Contains(raw, "playlist?"):
		q.Type = TypePlaylist
	case strings.Contains(raw, "list="):
		q.Index = 0
		if hasIndex {
			q.Type = TypeSingle
		} else {
			q.Type = TypePlaylist
		}
	}
	return q
}

func parseSpotify(raw string) Query {
	q := Query{Raw: raw, Source: SourceSpotify, Type: TypeSingle}
	switch {
	case strings.Contains(raw, "/playlist/"):
		q.Type = TypePlaylist
	case strings.Contains(raw, "/album/"):
		q.Type = TypeAlbum
	}
	return q
}

func parseSoundCloud(raw string) Query {
	q := Query{Raw: raw, Source: SourceSoundCloud, Type: TypeSingle}
	if strings.Contains(raw, "/sets/") && !strings.Contains(raw, "?in=") {
		q.Type = TypePlaylist
	}
	return q
}

func parseBandcamp(raw string) Query {
	q := Query{Raw: raw, Source: SourceBandcamp, Type: TypeSingle}
	if strings.Contains(raw, "/album/") {
		q.Type = TypeAlbum
	}
	return q
}

func parseSearch(raw string) (Query, bool) {
	m := searchRE.FindStringSubmatch(raw)
	if m == nil {
		return Query{}, false
	}

	source := SourceYouTube
	switch m[1] {
	case "ytm":
		source = SourceYouTubeMusic
	case "sp":
		source = SourceSpotify
	case "sc":
		source = SourceSoundCloud
	case "am":
		source = SourceAppleMusic
	}
	return Query{Raw: m[2], Source: source, Search: true, Type: TypeSingle}, true
}

func parseLocal(raw string) (Query, bool) {
	info, err := os.Stat(raw)
	if err != nil {
		return Query{}, false
	}

	t := TypeSingle
	if info.IsDir() {
		t = TypeAlbum
	}
	return Query{Raw: raw, Source: SourceLocal, Type: t}, true
}

// searchPrefixes maps a source to its node-side search prefix.
var searchPrefixes = map[Source]string{
	SourceYouTube:      "ytsearch",
	SourceYouTubeMusic: "ytmsearch",
	SourceSpotify:      "spsearch",
	SourceSoundCloud:   "scsearch",
	SourceAppleMusic:   "amsearch",
}

// Identifier returns the string handed to a node's track loader.
func (q Query) Identifier() string {
	if !q.Search {
		return q.Raw
	}

	switch q.Source {
	case SourceGCTTS:
		return "tts://" + q.Raw
	case SourceTTS:
		return "speak:" + q.Raw
	}

	prefix, ok := searchPrefixes[q.Source]
	if !ok {
		prefix = "ytsearch"
	}
	return fmt.Sprintf("%s:%s", prefix, q.Raw)
}

// CacheKey is the stable key a query's results are cached under.
func (q Query) CacheKey() string {
	return fmt.Sprintf("%s:%s", q.Source, q.Identifier())
}

// Cacheable reports whether this query's results may be cached. Local
// files and plain HTTP streams change underneath us, and single-track
// links are cheap to resolve, so none of those are cached.
func (q Query) Cacheable() bool {
	switch q.Source {
	case SourceLocal, SourceHTTP:
		return false
	}
	return q.Search || q.Type != TypeSingle
}
