package resolve

import "encoding/json"

const (
	watchURLTemplate    = "https://www.nicovideo.jp/watch/%s"
	hlsAccessRightsAPI  = "https://nvapi.nicovideo.jp/v1/watch/%s/access-rights/hls?actionTrackId=%s"
	commentsAPI         = "https://public.nvcomment.nicovideo.jp/v1/threads"
	frontendIDHeader    = "6"
	frontendVersion     = "0"
	requestWithNico     = "nicovideo"
	uploaderNameSuffix  = " さん"
	serverResponseField = "server-response"
)

func apiHeaders() map[string]string {
	return map[string]string{
		"X-Frontend-Id":       frontendIDHeader,
		"X-Frontend-Version":  frontendVersion,
		"X-Niconico-Language": "ja-jp",
	}
}

// serverResponse is the watch page's embedded parameter document.
type serverResponse struct {
	Data struct {
		Response watchResponse `json:"response"`
	} `json:"data"`
}

type watchResponse struct {
	Video   *videoInfo   `json:"video"`
	Media   mediaInfo    `json:"media"`
	Client  clientMeta   `json:"client"`
	Owner   *ownerInfo   `json:"owner"`
	Comment *commentInfo `json:"comment"`
	Tag     tagInfo      `json:"tag"`
	Payment paymentInfo  `json:"payment"`
}

type videoInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	IsDeleted    bool      `json:"isDeleted"`
	Duration     float64   `json:"duration"`
	RegisteredAt string    `json:"registeredAt"`
	Count        countInfo `json:"count"`
	Thumbnail    thumbInfo `json:"thumbnail"`
}

type countInfo struct {
	View    int `json:"view"`
	Comment int `json:"comment"`
	Mylist  int `json:"mylist"`
	Like    int `json:"like"`
}

type thumbInfo struct {
	URL       string `json:"url"`
	MiddleURL string `json:"middleUrl"`
	LargeURL  string `json:"largeUrl"`
	Player    string `json:"player"`
	OGP       string `json:"ogp"`
}

// Best returns the highest-quality thumbnail available.
func (t thumbInfo) Best() string {
	for _, u := range []string{t.OGP, t.Player, t.LargeURL, t.MiddleURL, t.URL} {
		if u != "" {
			return u
		}
	}
	return ""
}

type mediaInfo struct {
	Domand   *domandInfo   `json:"domand"`
	Delivery *deliveryInfo `json:"delivery"`
}

// domandInfo is the newer, manifest-based delivery generation.
type domandInfo struct {
	Videos         []domandSource `json:"videos"`
	Audios         []domandSource `json:"audios"`
	AccessRightKey string         `json:"accessRightKey"`
}

type domandSource struct {
	ID           string `json:"id"`
	IsAvailable  bool   `json:"isAvailable"`
	BitRate      int    `json:"bitRate"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Label        string `json:"label"`
	SamplingRate int    `json:"samplingRate"`
}

// deliveryInfo is the legacy XML-session delivery generation.
type deliveryInfo struct {
	Movie movieInfo `json:"movie"`
}

type movieInfo struct {
	Session deliverySession `json:"session"`
	Videos  []legacySource  `json:"videos"`
	Audios  []legacySource  `json:"audios"`
}

type legacySource struct {
	ID          string `json:"id"`
	IsAvailable bool   `json:"isAvailable"`
	Metadata    struct {
		Bitrate      int    `json:"bitrate"`
		SamplingRate int    `json:"samplingRate"`
		Label        string `json:"label"`
		Resolution   struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"resolution"`
	} `json:"metadata"`
}

type deliverySession struct {
	URLs []struct {
		URL string `json:"url"`
	} `json:"urls"`
	RecipeID          string      `json:"recipeId"`
	ContentID         string      `json:"contentId"`
	Protocols         []string    `json:"protocols"`
	Priority          json.Number `json:"priority"`
	HeartbeatLifetime int         `json:"heartbeatLifetime"`
	Token             string      `json:"token"`
	Signature         string      `json:"signature"`
	AuthTypes         struct {
		HTTP string `json:"http"`
	} `json:"authTypes"`
	ServiceUserID json.Number `json:"serviceUserId"`
	PlayerID      string      `json:"playerId"`
}

type clientMeta struct {
	WatchTrackID string `json:"watchTrackId"`
}

type ownerInfo struct {
	ID       json.Number `json:"id"`
	Nickname string      `json:"nickname"`
}

type commentInfo struct {
	Threads []struct {
		ID json.Number `json:"id"`
	} `json:"threads"`
	NvComment struct {
		ThreadKey string          `json:"threadKey"`
		Params    json.RawMessage `json:"params"`
	} `json:"nvComment"`
}

type tagInfo struct {
	Items []struct {
		Name string `json:"name"`
	} `json:"items"`
}

type paymentInfo struct {
	Video struct {
		IsPremium   bool `json:"isPremium"`
		IsAdmission bool `json:"isAdmission"`
		IsPpv       bool `json:"isPpv"`
	} `json:"video"`
}

type accessRightsResponse struct {
	Data struct {
		ContentURL string `json:"contentUrl"`
	} `json:"data"`
}
