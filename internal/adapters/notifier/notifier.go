package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptoKline/internal/ports"
)

const dingTalkRobotURL = "https://oapi.dingtalk.com/robot/send"

// DingTalkConfig holds the robot credentials.
type DingTalkConfig struct {
	AccessToken string
	Secret      string // Optional, enables signed requests
	WebhookURL  string // Overrides the robot endpoint; used in tests
	Prefix      string // Prepended to every message, e.g. the host name
	Timeout     time.Duration
}

// DingTalk posts text messages to a DingTalk group robot.
type DingTalk struct {
	cfg    DingTalkConfig
	client *http.Client
	now    func() time.Time
}

// NewDingTalk creates a DingTalk notifier.
func NewDingTalk(cfg DingTalkConfig) (*DingTalk, error) {
	if cfg.AccessToken == "" && cfg.WebhookURL == "" {
		return nil, fmt.Errorf("dingtalk access token is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &DingTalk{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}, nil
}

func (d *DingTalk) webhookURL() string {
	base := d.cfg.WebhookURL
	if base == "" {
		base = dingTalkRobotURL
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	u := base
	if d.cfg.AccessToken != "" {
		u += sep + "access_token=" + url.QueryEscape(d.cfg.AccessToken)
		sep = "&"
	}
	if d.cfg.Secret != "" {
		timestamp := d.now().UnixMilli()
		u += fmt.Sprintf("%stimestamp=%d&sign=%s", sep, timestamp, sign(timestamp, d.cfg.Secret))
	}
	return u
}

// sign computes the robot signature, already query escaped.
func sign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	hash := hmac.New(sha256.New, []byte(secret))
	hash.Write([]byte(stringToSign))
	return url.QueryEscape(base64.StdEncoding.EncodeToString(hash.Sum(nil)))
}

type dingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Notify sends message as a text robot message.
func (d *DingTalk) Notify(ctx context.Context, message string) error {
	if d.cfg.Prefix != "" {
		message = d.cfg.Prefix + " " + message
	}
	body, err := json.Marshal(map[string]interface{}{
		"msgtype": "text",
		"text":    map[string]string{"content": message},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dingtalk message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create dingtalk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send dingtalk message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dingtalk API returned status %d", resp.StatusCode)
	}
	var out dingTalkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && out.ErrCode != 0 {
		return fmt.Errorf("dingtalk API error %d: %s", out.ErrCode, out.ErrMsg)
	}
	return nil
}

// Log writes notifications through the application logger.
type Log struct {
	logger ports.Logger
}

// NewLog creates a notifier that only logs.
func NewLog(logger ports.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, message string) error {
	l.logger.Warn(ctx, "Notification", map[string]interface{}{"message": message})
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []ports.Notifier

func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ ports.Notifier = (*DingTalk)(nil)
	_ ports.Notifier = (*Log)(nil)
	_ ports.Notifier = Multi(nil)
)
