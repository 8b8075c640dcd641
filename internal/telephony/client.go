// Package telephony places outbound calls through the Twilio REST API. The
// provider fetches call-control TwiML from this service's /voice endpoints
// once the call connects.
package telephony

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"campaign-gateway/internal/config"
)

const defaultAPIBase = "https://api.twilio.com/2010-04-01"

type Client struct {
	Config    *config.Config
	BaseURL   string
	AnswerURL string
	http      *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		Config:    cfg,
		BaseURL:   defaultAPIBase,
		AnswerURL: strings.TrimRight(cfg.PublicBaseURL, "/") + "/voice/answer",
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// PlaceCall creates an outbound call to the number and returns the provider
// call SID. The SID keys call-control callbacks back to the contact.
func (c *Client) PlaceCall(to string) (string, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.BaseURL, c.Config.TwilioAccountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.Config.TwilioCallerID)
	form.Set("Url", c.AnswerURL)
	form.Set("Method", "POST")

	req, err := http.NewRequest("POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.Config.TwilioAccountSID, c.Config.TwilioAuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("call creation failed: %s - %s", resp.Status, string(body))
	}

	var result struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}

	return result.Sid, nil
}
