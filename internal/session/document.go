package session

import (
	"bytes"
	"encoding/xml"

	"github.com/ayanobu/nicofetch/internal/domain"
)

// The delivery service is strict about the session document's element
// layout; these structs mirror it exactly.

type sessionRequest struct {
	XMLName          xml.Name         `xml:"session"`
	RecipeID         string           `xml:"recipe_id"`
	ContentID        string           `xml:"content_id"`
	ContentType      string           `xml:"content_type"`
	Protocol         protocolElement  `xml:"protocol"`
	Priority         string           `xml:"priority"`
	ContentSrcIDSets contentSrcIDSets `xml:"content_src_id_sets"`
	KeepMethod       keepMethod       `xml:"keep_method"`
	TimingConstraint string           `xml:"timing_constraint"`
	OperationAuth    operationAuth    `xml:"session_operation_auth"`
	ContentAuth      contentAuth      `xml:"content_auth"`
	ClientInfo       clientInfo       `xml:"client_info"`
}

type protocolElement struct {
	Name       string         `xml:"name"`
	Parameters protocolParams `xml:"parameters"`
}

type protocolParams struct {
	HTTPParameters httpParameters `xml:"http_parameters"`
}

type httpParameters struct {
	Method     string     `xml:"method"`
	Parameters httpOutput `xml:"parameters"`
}

type httpOutput struct {
	Download downloadParams `xml:"http_output_download_parameters"`
}

type downloadParams struct {
	FileExtension string `xml:"file_extension"`
}

type contentSrcIDSets struct {
	Set contentSrcIDSet `xml:"content_src_id_set"`
}

type contentSrcIDSet struct {
	IDs contentSrcIDs `xml:"content_src_ids"`
}

type contentSrcIDs struct {
	Mux srcIDToMux `xml:"src_id_to_mux"`
}

type srcIDToMux struct {
	VideoSrcIDs srcIDList `xml:"video_src_ids"`
	AudioSrcIDs srcIDList `xml:"audio_src_ids"`
}

type srcIDList struct {
	IDs []string `xml:"string"`
}

type keepMethod struct {
	Heartbeat heartbeatMethod `xml:"heartbeat"`
}

type heartbeatMethod struct {
	Lifetime int `xml:"lifetime"`
}

type operationAuth struct {
	BySignature authBySignature `xml:"session_operation_auth_by_signature"`
}

type authBySignature struct {
	Token     string `xml:"token"`
	Signature string `xml:"signature"`
}

type contentAuth struct {
	AuthType          string `xml:"auth_type"`
	ServiceID         string `xml:"service_id"`
	ServiceUserID     string `xml:"service_user_id"`
	MaxContentCount   int    `xml:"max_content_count"`
	ContentKeyTimeout int    `xml:"content_key_timeout"`
}

type clientInfo struct {
	PlayerID string `xml:"player_id"`
}

func buildDocument(plan *domain.LegacySession) ([]byte, error) {
	doc := sessionRequest{
		RecipeID:    plan.RecipeID,
		ContentID:   plan.ContentID,
		ContentType: "movie",
		Protocol: protocolElement{
			Name: plan.Protocol,
			Parameters: protocolParams{
				HTTPParameters: httpParameters{
					Method: "GET",
					Parameters: httpOutput{
						Download: downloadParams{FileExtension: plan.FileExtension},
					},
				},
			},
		},
		Priority: plan.Priority,
		ContentSrcIDSets: contentSrcIDSets{
			Set: contentSrcIDSet{
				IDs: contentSrcIDs{
					Mux: srcIDToMux{
						VideoSrcIDs: srcIDList{IDs: plan.VideoSources},
						AudioSrcIDs: srcIDList{IDs: plan.AudioSources},
					},
				},
			},
		},
		KeepMethod:       keepMethod{Heartbeat: heartbeatMethod{Lifetime: plan.HeartbeatLifetime}},
		TimingConstraint: "unlimited",
		OperationAuth: operationAuth{
			BySignature: authBySignature{Token: plan.Token, Signature: plan.Signature},
		},
		ContentAuth: contentAuth{
			AuthType:          plan.AuthType,
			ServiceID:         "nicovideo",
			ServiceUserID:     plan.ServiceUserID,
			MaxContentCount:   10,
			ContentKeyTimeout: 600000,
		},
		ClientInfo: clientInfo{PlayerID: plan.PlayerID},
	}
	return xml.Marshal(doc)
}

// sessionFields are the pieces we read back out of a returned session
// element. Everything else is opaque and echoed verbatim on heartbeats.
type sessionFields struct {
	XMLName    xml.Name `xml:"session"`
	ID         string   `xml:"id"`
	ContentURI string   `xml:"content_uri"`
}

// extractSessionElement returns the raw <session>...</session> element from
// a response body, wherever it sits in the envelope.
func extractSessionElement(body []byte) ([]byte, error) {
	start := bytes.Index(body, []byte("<session>"))
	end := bytes.LastIndex(body, []byte("</session>"))
	if start == -1 || end == -1 || end < start {
		return nil, domain.ParameterExtractionf("no session element in delivery service response")
	}
	return body[start : end+len("</session>")], nil
}
