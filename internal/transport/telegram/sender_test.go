package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "dealwatch/internal/transport"
	logx "dealwatch/pkg/logx"
)

type fakeAPI struct {
	mu    sync.Mutex
	paths []string
	body  map[string]any
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.body = body
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":77,"date":0,"chat":{"id":42,"type":"private"}}}`)
}

func TestSendTextCallsBotAPI(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	defer srv.Close()

	s, err := New(Config{Token: "123:abc", APIURL: srv.URL, RatePerSec: 100}, logx.Nop())
	require.NoError(t, err)

	ref, err := s.SendText(context.Background(), kit.ChatTarget{ChatID: 42}, "*hi*",
		&kit.SendOptions{ParseMode: kit.ParseModeMarkdownV2, DisablePreview: true})
	require.NoError(t, err)
	assert.Equal(t, 77, ref.MessageID)
	assert.Equal(t, int64(42), ref.ChatID)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.paths, 1)
	assert.Equal(t, "/bot123:abc/sendMessage", api.paths[0])
	assert.Equal(t, "*hi*", api.body["text"])
	assert.Equal(t, kit.ParseModeMarkdownV2, api.body["parse_mode"])
}

func TestSendTextRejectsLongPlainText(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	defer srv.Close()

	s, err := New(Config{Token: "1:x", APIURL: srv.URL, RatePerSec: 100}, logx.Nop())
	require.NoError(t, err)

	_, err = s.SendText(context.Background(), kit.ChatTarget{ChatID: 1}, strings.Repeat("a", TextLimit+1), nil)
	require.ErrorIs(t, err, ErrTooLong)
	assert.Empty(t, api.paths)
}

func TestSendTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`)
	}))
	defer srv.Close()

	s, err := New(Config{Token: "1:x", APIURL: srv.URL, RatePerSec: 100}, logx.Nop())
	require.NoError(t, err)
	_, err = s.SendText(context.Background(), kit.ChatTarget{ChatID: 1}, "x", nil)
	require.Error(t, err)
}

func TestDryRunNeedsNoToken(t *testing.T) {
	s, err := New(Config{DryRun: true}, logx.Nop())
	require.NoError(t, err)
	ref, err := s.SendText(context.Background(), kit.ChatTarget{ChatID: 5, ThreadID: 2}, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, kit.MessageRef{ChatID: 5, ThreadID: 2}, ref)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{}, logx.Nop())
	require.Error(t, err)
}

func TestSendTextHonoursCanceledContext(t *testing.T) {
	s, err := New(Config{DryRun: true, RatePerSec: 0.001}, logx.Nop())
	require.NoError(t, err)
	_, err = s.SendText(context.Background(), kit.ChatTarget{ChatID: 1}, "first", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.SendText(ctx, kit.ChatTarget{ChatID: 1}, "second", nil)
	require.Error(t, err)
}
