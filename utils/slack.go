package utils

import (
	"errors"
	"fmt"
	"time"

	resty "github.com/go-resty/resty/v2"
)

var slackClient = resty.New().SetTimeout(10 * time.Second)

type SlackRequestBody struct {
	Text string `json:"text"`
}

// SendSlackNotification will post to an 'Incoming Webook' url setup in Slack Apps.
// An empty webhook url disables the notification.
func SendSlackNotification(webhookURL string, msg string) error {
	if webhookURL == "" {
		return nil
	}

	response, err := slackClient.R().
		SetHeader("Content-Type", "application/json").
		SetBody(SlackRequestBody{Text: msg}).
		Post(webhookURL)
	if err != nil {
		return err
	}
	if response.StatusCode() != 200 {
		return fmt.Errorf("Response status code: %v", response.StatusCode())
	}
	if response.String() != "ok" {
		return errors.New("Non-ok response returned from Slack")
	}
	return nil
}
