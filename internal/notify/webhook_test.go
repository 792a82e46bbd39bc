package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFeishuSendPayload(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		io.WriteString(w, `{"code":0,"msg":"success"}`)
	}))
	defer srv.Close()

	n := NewFeishu(srv.URL, 4000)
	if err := n.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["msg_type"] != "text" {
		t.Errorf("msg_type = %v, want text", got["msg_type"])
	}
	content, _ := got["content"].(map[string]any)
	if content["text"] != "hello" {
		t.Errorf("content.text = %v, want hello", content["text"])
	}
}

func TestFeishuSendRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":19001,"msg":"param invalid"}`)
	}))
	defer srv.Close()

	err := NewFeishu(srv.URL, 4000).Send(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for non-zero code")
	}
	if !strings.Contains(err.Error(), "19001") {
		t.Errorf("error %q does not name the code", err)
	}
}

func TestDingTalkSendPayload(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		io.WriteString(w, `{"errcode":0,"errmsg":"ok"}`)
	}))
	defer srv.Close()

	n := NewDingTalk(srv.URL, 29000)
	if err := n.Send(context.Background(), "**bold**"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["msgtype"] != "markdown" {
		t.Errorf("msgtype = %v, want markdown", got["msgtype"])
	}
	md, _ := got["markdown"].(map[string]any)
	if md["text"] != "**bold**" {
		t.Errorf("markdown.text = %v", md["text"])
	}
}

func TestDingTalkSendRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"errcode":310000,"errmsg":"keywords not in content"}`)
	}))
	defer srv.Close()

	if err := NewDingTalk(srv.URL, 29000).Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error for non-zero errcode")
	}
}

func TestWeWorkSendPayload(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		io.WriteString(w, `{"errcode":0,"errmsg":"ok"}`)
	}))
	defer srv.Close()

	if err := NewWeWork(srv.URL, 4000).Send(context.Background(), "内容"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["msgtype"] != "markdown" {
		t.Errorf("msgtype = %v, want markdown", got["msgtype"])
	}
	md, _ := got["markdown"].(map[string]any)
	if md["content"] != "内容" {
		t.Errorf("markdown.content = %v", md["content"])
	}
}

func TestWeWorkSendRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"errcode":93000,"errmsg":"invalid webhook url"}`)
	}))
	defer srv.Close()

	if err := NewWeWork(srv.URL, 4000).Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error for non-zero errcode")
	}
}

func TestSlackSendPayload(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	if err := NewSlack(srv.URL, 4000).Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["text"] != "hello" {
		t.Errorf("text = %v, want hello", got["text"])
	}
}

func TestSlackSendRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "invalid_payload")
	}))
	defer srv.Close()

	err := NewSlack(srv.URL, 4000).Send(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error when body is not ok")
	}
	if !strings.Contains(err.Error(), "invalid_payload") {
		t.Errorf("error %q does not carry the response", err)
	}
}

func TestBarkSendPayload(t *testing.T) {
	t.Parallel()

	var gotPath string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		io.WriteString(w, `{"code":200,"message":"success"}`)
	}))
	defer srv.Close()

	// The device key rides in the configured URL path.
	n, err := NewBark(srv.URL+"/dk_abc123", 3600)
	if err != nil {
		t.Fatalf("NewBark: %v", err)
	}
	if err := n.Send(context.Background(), "正文"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/push" {
		t.Errorf("path = %q, want /push", gotPath)
	}
	if got["device_key"] != "dk_abc123" {
		t.Errorf("device_key = %v", got["device_key"])
	}
	if got["markdown"] != "正文" {
		t.Errorf("markdown = %v", got["markdown"])
	}
}

func TestBarkRejectsURLWithoutDeviceKey(t *testing.T) {
	t.Parallel()

	if _, err := NewBark("https://api.day.app", 3600); err == nil {
		t.Fatal("expected error for url without device key")
	}
}

func TestBarkSendRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":400,"message":"device key invalid"}`)
	}))
	defer srv.Close()

	n, err := NewBark(srv.URL+"/dk", 3600)
	if err != nil {
		t.Fatalf("NewBark: %v", err)
	}
	if err := n.Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error for non-200 code")
	}
}

func TestNtfySendHeaders(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	n := NewNtfy(srv.URL+"/", "trends", "tk_secret", 4000)
	if err := n.Send(context.Background(), "plain body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/trends" {
		t.Errorf("path = %q, want /trends", gotPath)
	}
	if gotAuth != "Bearer tk_secret" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotBody != "plain body" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestWebhookHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewFeishu(srv.URL, 4000).Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error for HTTP 502")
	}
	if err := NewNtfy(srv.URL, "t", "", 4000).Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error for HTTP 502")
	}
}
