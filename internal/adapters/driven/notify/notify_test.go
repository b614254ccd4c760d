package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

func processedEvent() domain.Event {
	return domain.Event{
		Kind:       domain.EventProcessed,
		AccountID:  "dbid:a",
		SourceName: "scan.png",
		OutputPath: "/Outbox/[receipts]_corner-shop.txt",
		Tags:       []string{"receipts", "finance"},
		Excerpt:    "TOTAL 12.50",
	}
}

func TestRender(t *testing.T) {
	msg := render(processedEvent())
	assert.Equal(t, "ocrbox - Processed", msg.title)
	assert.Contains(t, msg.body, "Processed scan.png")
	assert.Contains(t, msg.body, "Tags: receipts, finance")
	assert.Contains(t, msg.body, "TOTAL 12.50")

	failed := render(domain.Event{Kind: domain.EventFailed, SourceName: "x.png", Error: "extraction: gave up "})
	assert.Equal(t, "high", failed.priority)
	assert.Equal(t, "Failed to process x.png: extraction: gave up", failed.body)

	summary := render(domain.Event{Kind: domain.EventBatchSummary, Processed: 4, Failed: 1})
	assert.Equal(t, "Batch complete: 4 processed, 1 failed", summary.body)
}

func TestNtfy_Notify(t *testing.T) {
	var gotHeaders http.Header
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	require.NoError(t, NewNtfy(srv.URL, time.Second).Notify(context.Background(), processedEvent()))
	assert.Equal(t, "ocrbox - Processed", gotHeaders.Get("Title"))
	assert.Equal(t, "ocrbox,processed", gotHeaders.Get("Tags"))
	assert.Empty(t, gotHeaders.Get("Priority"))
	assert.Contains(t, gotBody, "scan.png")
}

func TestNtfy_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic not allowed", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewNtfy(srv.URL, time.Second).Notify(context.Background(), processedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestTelegram_Notify(t *testing.T) {
	var gotPath string
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("123:abc", "42", time.Second).WithBaseURL(srv.URL)
	event := processedEvent()
	event.Excerpt = "a < b"
	require.NoError(t, tg.Notify(context.Background(), event))

	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.True(t, strings.HasPrefix(got.Text, "<b>ocrbox - Processed</b>"))
	assert.Contains(t, got.Text, "a &lt; b")
}

func TestTelegram_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	err := NewTelegram("t", "c", time.Second).WithBaseURL(srv.URL).Notify(context.Background(), processedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestEmail_Notify(t *testing.T) {
	m := NewEmail(SMTPConfig{
		Host:     "smtp.example.com",
		Username: "user",
		Password: "pw",
		From:     "ocrbox <ocrbox@example.com>",
		To:       []string{"owner@example.com"},
	})
	m.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	require.NoError(t, m.Notify(context.Background(), processedEvent()))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "ocrbox <ocrbox@example.com>", gotFrom)
	assert.Equal(t, []string{"owner@example.com"}, gotTo)

	raw := string(gotMsg)
	assert.Contains(t, raw, "Subject: ocrbox - Processed")
	assert.Contains(t, raw, "owner@example.com")
	assert.Contains(t, raw, "Processed scan.png")
}

func TestEmail_BadAddress(t *testing.T) {
	m := NewEmail(SMTPConfig{Host: "h", From: "not an address", To: []string{"a@b.c"}})
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return nil }
	assert.Error(t, m.Notify(context.Background(), processedEvent()))
}

type recordingNotifier struct {
	events []domain.Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, e domain.Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMulti_DeliversToAll(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("down")}
	ok := &recordingNotifier{}

	err := Multi{failing, ok}.Notify(context.Background(), processedEvent())
	require.Error(t, err)
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
}

func TestCombine(t *testing.T) {
	assert.Equal(t, Noop{}, Combine())
	one := &recordingNotifier{}
	assert.Same(t, one, Combine(one))
	assert.IsType(t, Multi{}, Combine(one, &recordingNotifier{}))
	assert.NoError(t, Noop{}.Notify(context.Background(), domain.Event{}))
}
