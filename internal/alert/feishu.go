package alert

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
	"strconv"
	"time"
)

// ErrFeishu is returned when the Feishu bot rejects a message.
var ErrFeishu = errors.New("feishu rejected message")

// FeishuConfig holds the custom bot webhook settings.
type FeishuConfig struct {
	Webhook string `mapstructure:"webhook"`
	Secret  string `mapstructure:"secret"`
}

// FeishuNotifier posts text messages to a Feishu custom bot.
// Reference: https://open.feishu.cn/document/client-docs/bot-v3/add-custom-bot
type FeishuNotifier struct {
	webhook string
	secret  string
	client  *http.Client
	now     func() time.Time
}

// NewFeishuNotifier creates a notifier for the given webhook.
// An empty secret disables request signing.
func NewFeishuNotifier(cfg FeishuConfig) *FeishuNotifier {
	return &FeishuNotifier{
		webhook: cfg.Webhook,
		secret:  cfg.Secret,
		client:  &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
}

type feishuContent struct {
	Text string `json:"text"`
}

type feishuRequest struct {
	Timestamp string        `json:"timestamp,omitempty"`
	Sign      string        `json:"sign,omitempty"`
	MsgType   string        `json:"msg_type"`
	Content   feishuContent `json:"content"`
}

type feishuResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Send implements Notifier.
func (f *FeishuNotifier) Send(ctx context.Context, ev Event) error {
	body := feishuRequest{
		MsgType: "text",
		Content: feishuContent{Text: ev.Text()},
	}
	if f.secret != "" {
		ts := f.now().Unix()
		body.Timestamp = strconv.FormatInt(ts, 10)
		body.Sign = FeishuSign(f.secret, ts)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal feishu message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhook, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("feishu request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrFeishu, resp.StatusCode)
	}
	var fr feishuResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return fmt.Errorf("decode feishu response: %w", err)
	}
	if fr.Code != 0 {
		return fmt.Errorf("%w: code %d: %s", ErrFeishu, fr.Code, fr.Msg)
	}
	return nil
}

// FeishuSign computes the bot signature: the string "timestamp\nsecret" is
// used as the HMAC-SHA256 key over an empty message, then base64 encoded.
func FeishuSign(secret string, timestamp int64) string {
	key := strconv.FormatInt(timestamp, 10) + "\n" + secret
	mac := hmac.New(sha256.New, []byte(key))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
