package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"academy/internal/model"
)

// AlimTalk sends Kakao AlimTalk messages through NHN Cloud.
type AlimTalk struct {
	BaseURL   string
	AppKey    string
	SecretKey string
	SenderKey string
	HTTP      *http.Client
}

// NewAlimTalk creates a client with a 30 second timeout.
func NewAlimTalk(baseURL, appKey, secretKey, senderKey string) *AlimTalk {
	if baseURL == "" {
		baseURL = "https://api-alimtalk.cloud.toast.com"
	}
	return &AlimTalk{
		BaseURL:   baseURL,
		AppKey:    appKey,
		SecretKey: secretKey,
		SenderKey: senderKey,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether all provider keys are present.
func (c *AlimTalk) Configured() bool {
	return c.AppKey != "" && c.SecretKey != "" && c.SenderKey != ""
}

type sendRequest struct {
	SenderKey     string      `json:"senderKey"`
	TemplateCode  string      `json:"templateCode"`
	RecipientList []recipient `json:"recipientList"`
}

type recipient struct {
	RecipientNo       string            `json:"recipientNo"`
	TemplateParameter map[string]string `json:"templateParameter,omitempty"`
}

type sendResponse struct {
	Header struct {
		ResultCode    int    `json:"resultCode"`
		ResultMessage string `json:"resultMessage"`
		IsSuccessful  *bool  `json:"isSuccessful"`
	} `json:"header"`
	Message struct {
		RequestID string `json:"requestId"`
	} `json:"message"`
}

// Send posts one templated message. Missing keys fail with ErrMisconfigured
// before any request is made.
func (c *AlimTalk) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: alimtalk keys missing", model.ErrMisconfigured)
	}

	body, err := json.Marshal(sendRequest{
		SenderKey:    c.SenderKey,
		TemplateCode: msg.TemplateID,
		RecipientList: []recipient{{
			RecipientNo:       msg.Phone,
			TemplateParameter: msg.Parameters,
		}},
	})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/alimtalk/v2.3/appkeys/%s/messages", c.BaseURL, c.AppKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("X-Secret-Key", c.SecretKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: alimtalk request failed: %v", model.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out sendResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode >= 300 || decodeErr != nil || (out.Header.IsSuccessful != nil && !*out.Header.IsSuccessful) {
		message := out.Header.ResultMessage
		if message == "" {
			message = resp.Status
		}
		return nil, &model.UpstreamError{Status: resp.StatusCode, Message: message, Body: raw}
	}
	return &Receipt{RequestID: out.Message.RequestID, Raw: raw}, nil
}
