package ytmeta

// PlayerResponse mirrors the subset of YouTube's ytInitialPlayerResponse JSON
// object this downloader depends on (§4.1 "Required extractions").
type PlayerResponse struct {
	VideoDetails      VideoDetails      `json:"videoDetails"`
	Microformat       Microformat       `json:"microformat"`
	PlayabilityStatus PlayabilityStatus `json:"playabilityStatus"`
	StreamingData     StreamingData     `json:"streamingData"`
	ResponseContext   ResponseContext   `json:"responseContext"`
}

type VideoDetails struct {
	VideoID          string `json:"videoId"`
	Title            string `json:"title"`
	Author           string `json:"author"`
	ChannelID        string `json:"channelId"`
	IsLiveContent    bool   `json:"isLiveContent"`
	ShortDescription string `json:"shortDescription"`
}

type Microformat struct {
	PlayerMicroformatRenderer PlayerMicroformatRenderer `json:"playerMicroformatRenderer"`
}

type PlayerMicroformatRenderer struct {
	LiveBroadcastDetails LiveBroadcastDetails `json:"liveBroadcastDetails"`
	UploadDate           string               `json:"uploadDate"`
	PublishDate          string               `json:"publishDate"`
	Thumbnail            Thumbnail            `json:"thumbnail"`
}

type LiveBroadcastDetails struct {
	IsLiveNow       bool   `json:"isLiveNow"`
	StartTimestamp  string `json:"startTimestamp"`
	EndTimestamp    string `json:"endTimestamp"`
}

type Thumbnail struct {
	Thumbnails []ThumbnailEntry `json:"thumbnails"`
}

type ThumbnailEntry struct {
	URL string `json:"url"`
}

// PlayabilityStatus status constants, named the way the spec's GLOSSARY and
// §3 data model name them.
const (
	StatusOK      = "OK"
	StatusOffline = "LIVE_STREAM_OFFLINE"
	StatusUnplayable = "UNPLAYABLE"
	StatusError   = "ERROR"
)

type PlayabilityStatus struct {
	Status           string           `json:"status"`
	Reason           string           `json:"reason"`
	LiveStreamability LiveStreamability `json:"liveStreamability"`
}

type LiveStreamability struct {
	LiveStreamabilityRenderer LiveStreamabilityRenderer `json:"liveStreamabilityRenderer"`
}

type LiveStreamabilityRenderer struct {
	PollDelayMs  string       `json:"pollDelayMs"`
	OfflineSlate OfflineSlate `json:"offlineSlate"`
}

type OfflineSlate struct {
	LiveStreamOfflineSlateRenderer LiveStreamOfflineSlateRenderer `json:"liveStreamOfflineSlateRenderer"`
}

type LiveStreamOfflineSlateRenderer struct {
	ScheduledStartTime string `json:"scheduledStartTime"`
}

type StreamingData struct {
	DashManifestURL   string           `json:"dashManifestUrl"`
	ExpiresInSeconds  string           `json:"expiresInSeconds"`
	AdaptiveFormats   []AdaptiveFormat `json:"adaptiveFormats"`
}

type AdaptiveFormat struct {
	Itag              int    `json:"itag"`
	URL               string `json:"url"`
	MimeType          string `json:"mimeType"`
	QualityLabel      string `json:"qualityLabel"`
	TargetDurationSec int    `json:"targetDurationSec"`
}

type ResponseContext struct {
	MainAppWebResponseContext MainAppWebResponseContext `json:"mainAppWebResponseContext"`
}

type MainAppWebResponseContext struct {
	LoggedOut bool `json:"loggedOut"`
}
