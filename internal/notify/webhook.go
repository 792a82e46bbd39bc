package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const webhookTimeout = 10 * time.Second

// feishuNotifier posts to a Feishu custom-bot webhook.
type feishuNotifier struct {
	url   string
	batch int
	http  *http.Client
}

func NewFeishu(url string, batchSize int) Notifier {
	return &feishuNotifier{url: url, batch: batchSize, http: &http.Client{Timeout: webhookTimeout}}
}

func (n *feishuNotifier) Name() string   { return "feishu" }
func (n *feishuNotifier) BatchSize() int { return n.batch }

func (n *feishuNotifier) Send(ctx context.Context, content string) error {
	payload := map[string]any{
		"msg_type": "text",
		"content":  map[string]string{"text": content},
	}
	body, err := postJSON(ctx, n.http, n.url, payload)
	if err != nil {
		return err
	}
	var resp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Code != 0 {
		return fmt.Errorf("feishu refused message: code %d: %s", resp.Code, resp.Msg)
	}
	return nil
}

// dingTalkNotifier posts markdown to a DingTalk custom-bot webhook.
type dingTalkNotifier struct {
	url   string
	batch int
	http  *http.Client
}

func NewDingTalk(url string, batchSize int) Notifier {
	return &dingTalkNotifier{url: url, batch: batchSize, http: &http.Client{Timeout: webhookTimeout}}
}

func (n *dingTalkNotifier) Name() string   { return "dingtalk" }
func (n *dingTalkNotifier) BatchSize() int { return n.batch }

func (n *dingTalkNotifier) Send(ctx context.Context, content string) error {
	payload := map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": "热点新闻报告",
			"text":  content,
		},
	}
	body, err := postJSON(ctx, n.http, n.url, payload)
	if err != nil {
		return err
	}
	var resp struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.ErrCode != 0 {
		return fmt.Errorf("dingtalk refused message: errcode %d: %s", resp.ErrCode, resp.ErrMsg)
	}
	return nil
}

// weWorkNotifier posts markdown to a WeChat Work group-bot webhook.
// Same response contract as DingTalk: errcode 0 means accepted.
type weWorkNotifier struct {
	url   string
	batch int
	http  *http.Client
}

func NewWeWork(url string, batchSize int) Notifier {
	return &weWorkNotifier{url: url, batch: batchSize, http: &http.Client{Timeout: webhookTimeout}}
}

func (n *weWorkNotifier) Name() string   { return "wework" }
func (n *weWorkNotifier) BatchSize() int { return n.batch }

func (n *weWorkNotifier) Send(ctx context.Context, content string) error {
	payload := map[string]any{
		"msgtype":  "markdown",
		"markdown": map[string]string{"content": content},
	}
	body, err := postJSON(ctx, n.http, n.url, payload)
	if err != nil {
		return err
	}
	var resp struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.ErrCode != 0 {
		return fmt.Errorf("wework refused message: errcode %d: %s", resp.ErrCode, resp.ErrMsg)
	}
	return nil
}

// slackNotifier posts to a Slack incoming webhook, which answers a
// literal "ok" body rather than JSON.
type slackNotifier struct {
	url   string
	batch int
	http  *http.Client
}

func NewSlack(url string, batchSize int) Notifier {
	return &slackNotifier{url: url, batch: batchSize, http: &http.Client{Timeout: webhookTimeout}}
}

func (n *slackNotifier) Name() string   { return "slack" }
func (n *slackNotifier) BatchSize() int { return n.batch }

func (n *slackNotifier) Send(ctx context.Context, content string) error {
	body, err := postJSON(ctx, n.http, n.url, map[string]string{"text": content})
	if err != nil {
		return err
	}
	if got := strings.TrimSpace(string(body)); got != "ok" {
		return fmt.Errorf("slack refused message: %s", got)
	}
	return nil
}

// barkNotifier pushes to a Bark device. The configured URL carries the
// device key in its path; the push goes to <scheme>://<host>/push.
type barkNotifier struct {
	api       string
	deviceKey string
	batch     int
	http      *http.Client
}

func NewBark(barkURL string, batchSize int) (Notifier, error) {
	u, err := url.Parse(barkURL)
	if err != nil {
		return nil, fmt.Errorf("bark url: %w", err)
	}
	key, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	if key == "" {
		return nil, fmt.Errorf("bark url %q carries no device key", barkURL)
	}
	return &barkNotifier{
		api:       u.Scheme + "://" + u.Host + "/push",
		deviceKey: key,
		batch:     batchSize,
		http:      &http.Client{Timeout: webhookTimeout},
	}, nil
}

func (n *barkNotifier) Name() string   { return "bark" }
func (n *barkNotifier) BatchSize() int { return n.batch }

func (n *barkNotifier) Send(ctx context.Context, content string) error {
	payload := map[string]any{
		"title":      "TrendRadar",
		"markdown":   content,
		"device_key": n.deviceKey,
		"group":      "TrendRadar",
		"sound":      "default",
		"action":     "none",
	}
	body, err := postJSON(ctx, n.http, n.api, payload)
	if err != nil {
		return err
	}
	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Code != 200 {
		return fmt.Errorf("bark refused message: code %d: %s", resp.Code, resp.Message)
	}
	return nil
}

// ntfyNotifier publishes plain text to an ntfy topic.
type ntfyNotifier struct {
	server string
	topic  string
	token  string
	batch  int
	http   *http.Client
}

func NewNtfy(server, topic, token string, batchSize int) Notifier {
	if server == "" {
		server = "https://ntfy.sh"
	}
	return &ntfyNotifier{
		server: strings.TrimRight(server, "/"),
		topic:  topic,
		token:  token,
		batch:  batchSize,
		http:   &http.Client{Timeout: webhookTimeout},
	}
}

func (n *ntfyNotifier) Name() string   { return "ntfy" }
func (n *ntfyNotifier) BatchSize() int { return n.batch }

func (n *ntfyNotifier) Send(ctx context.Context, content string) error {
	url := n.server + "/" + n.topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Title", "TrendRadar")
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ntfy returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
