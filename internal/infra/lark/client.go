// Package lark adapts the Lark (Feishu) open platform to the reminder ports:
// chat messages for delivery and calendar events for meeting nudges.
package lark

import (
	"fmt"
	"strings"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
)

// Config holds Lark app credentials.
type Config struct {
	AppID      string
	AppSecret  string
	BaseDomain string        // optional, e.g. https://open.larksuite.com
	Timeout    time.Duration // per request; zero keeps the SDK default
}

// APIError is a non-zero Lark response code.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lark api error: code=%d msg=%s", e.Code, e.Msg)
}

// NewClient builds an SDK client from cfg.
func NewClient(cfg Config) (*lark.Client, error) {
	appID := strings.TrimSpace(cfg.AppID)
	appSecret := strings.TrimSpace(cfg.AppSecret)
	if appID == "" || appSecret == "" {
		return nil, fmt.Errorf("lark: app id and app secret are required")
	}
	var opts []lark.ClientOptionFunc
	if domain := strings.TrimSpace(cfg.BaseDomain); domain != "" {
		opts = append(opts, lark.WithOpenBaseUrl(domain))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, lark.WithReqTimeout(cfg.Timeout))
	}
	return lark.NewClient(appID, appSecret, opts...), nil
}
