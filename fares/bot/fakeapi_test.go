package bot

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type apiCall struct {
	Method string
	Params map[string]string
}

// fakeAPI answers Bot API methods and records them.
type fakeAPI struct {
	*httptest.Server
	mu    sync.Mutex
	calls []apiCall
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		raw := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&raw)
		params := make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				params[k] = s
				continue
			}
			b, _ := json.Marshal(v)
			params[k] = string(b)
		}
		api.mu.Lock()
		api.calls = append(api.calls, apiCall{Method: method, Params: params})
		api.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if method == "answerCallbackQuery" {
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
			return
		}
		_, _ = fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":5,"type":"private"}}}`)
	}))
	t.Cleanup(api.Close)
	return api
}

func (a *fakeAPI) bot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{URL: a.URL, Token: "test-token", Offline: true})
	require.NoError(t, err)
	return b
}

func (a *fakeAPI) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = nil
}

func (a *fakeAPI) sent() []apiCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]apiCall(nil), a.calls...)
}

// texts returns the text of every send and edit call in order.
func (a *fakeAPI) texts() []string {
	var out []string
	for _, c := range a.sent() {
		if c.Method == "sendMessage" || c.Method == "editMessageText" {
			out = append(out, c.Params["text"])
		}
	}
	return out
}

func messageUpdate(id int, text string) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{
		ID:     id,
		Text:   text,
		Sender: &tele.User{ID: 5, FirstName: "Ann"},
		Chat:   &tele.Chat{ID: 5, Type: tele.ChatPrivate},
	}}
}

func callbackUpdate(id int, payload string) tele.Update {
	return tele.Update{ID: id, Callback: &tele.Callback{
		ID:      "cb-1",
		Data:    "\f" + fareUnique + "|" + payload,
		Sender:  &tele.User{ID: 5, FirstName: "Ann"},
		Message: &tele.Message{ID: 9, Chat: &tele.Chat{ID: 5, Type: tele.ChatPrivate}},
	}}
}
