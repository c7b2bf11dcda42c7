package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpAdapter "github.com/aretw0/talebot/pkg/adapters/http"
	"github.com/aretw0/talebot/pkg/adapters/memory"
	"github.com/aretw0/talebot/pkg/conversation"
	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/flow"
	"github.com/aretw0/talebot/pkg/safety"
	"github.com/aretw0/talebot/pkg/turn"
	"github.com/aretw0/talebot/pkg/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T) *flow.Table {
	t.Helper()
	table, err := flow.Default(validate.Default(validate.DefaultPolicy(), safety.NewRules()))
	require.NoError(t, err)
	return table
}

func newHandler(t *testing.T, opts ...httpAdapter.Option) http.Handler {
	t.Helper()
	table := newTable(t)
	ctl := conversation.New(memory.NewStore(), turn.New(table))
	return httpAdapter.NewHandler(ctl, append([]httpAdapter.Option{httpAdapter.WithFlows(table)}, opts...)...)
}

func postTurn(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, domain.Instruction) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/turns", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var inst domain.Instruction
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inst))
	}
	return w, inst
}

func TestPostTurn_Conversation(t *testing.T) {
	h := newHandler(t)

	w, inst := postTurn(t, h, `{"session_key":"web:1","flow":"profile_creation"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.InstructionPrompt, inst.Kind)
	assert.Equal(t, "name", inst.Step)

	_, inst = postTurn(t, h, `{"session_key":"web:1","text":"Alice"}`)
	assert.Equal(t, "age", inst.Step)

	_, inst = postTurn(t, h, `{"session_key":"web:1","text":"abc"}`)
	assert.Equal(t, domain.InstructionReprompt, inst.Kind)
	assert.NotEmpty(t, inst.Notice)

	_, inst = postTurn(t, h, `{"session_key":"web:1","text":"/cancel"}`)
	assert.Equal(t, domain.InstructionCancelled, inst.Kind)
}

func TestPostTurn_BadRequests(t *testing.T) {
	h := newHandler(t)

	for name, body := range map[string]string{
		"malformed":    `{`,
		"missing key":  `{"text":"hi"}`,
		"unknown flow": `{"session_key":"k","flow":"poetry"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w, _ := postTurn(t, h, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

type stubTurns struct{ inst domain.Instruction }

func (s stubTurns) HandleTurn(context.Context, string, domain.FlowKind, string) domain.Instruction {
	return s.inst
}

func TestPostTurn_TransientIsUnavailable(t *testing.T) {
	h := httpAdapter.NewHandler(stubTurns{domain.Instruction{Kind: domain.InstructionTransientError, Text: "later"}})

	w, _ := postTurn(t, h, `{"session_key":"k","text":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestGetFlows(t *testing.T) {
	h := newHandler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/flows", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var flows []httpAdapter.FlowSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flows))
	require.Len(t, flows, len(domain.KnownFlowKinds))

	kinds := make(map[domain.FlowKind]httpAdapter.FlowSummary)
	for _, f := range flows {
		kinds[f.Kind] = f
	}
	profile := kinds[domain.FlowProfileCreation]
	require.NotEmpty(t, profile.Steps)
	assert.Equal(t, "name", profile.Steps[0].Name)
	assert.Equal(t, domain.InputNumber, profile.Steps[1].Input)
}

type stubProfiles struct {
	children []domain.ChildProfile
	err      error
}

func (s stubProfiles) Children(context.Context, string) ([]domain.ChildProfile, error) {
	return s.children, s.err
}

type stubHistory struct {
	gotKey   string
	gotChild int64
	gotLimit int
	err      error
}

func (s *stubHistory) History(_ context.Context, key string, childID int64, limit int) ([]domain.Story, error) {
	s.gotKey, s.gotChild, s.gotLimit = key, childID, limit
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Story{{ID: "s1", ChildID: childID, Theme: "stars"}}, nil
}

func TestGetChildren(t *testing.T) {
	h := newHandler(t, httpAdapter.WithProfiles(stubProfiles{children: []domain.ChildProfile{{ID: 1, Name: "Alice", Age: 6}}}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/web:1/children", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var children []domain.ChildProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &children))
	require.Len(t, children, 1)
	assert.Equal(t, "Alice", children[0].Name)

	h = newHandler(t, httpAdapter.WithProfiles(stubProfiles{err: errors.New("db down")}))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/web:1/children", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetStories(t *testing.T) {
	history := &stubHistory{}
	h := newHandler(t, httpAdapter.WithHistory(history))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/children/3/stories?user_key=web:1&limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "web:1", history.gotKey)
	assert.EqualValues(t, 3, history.gotChild)
	assert.Equal(t, 5, history.gotLimit)
	assert.Contains(t, w.Body.String(), `"theme":"stars"`)

	for _, url := range []string{
		"/v1/children/abc/stories?user_key=u",
		"/v1/children/3/stories",
		"/v1/children/3/stories?user_key=u&limit=-1",
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, url)
	}

	history.err = domain.ErrProfileNotFound
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/children/3/stories?user_key=u", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOptionalRoutesDisabled(t *testing.T) {
	h := httpAdapter.NewHandler(stubTurns{})
	for _, url := range []string{"/v1/flows", "/v1/users/u/children", "/v1/children/1/stories?user_key=u"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, url)
	}
}

func TestHealthInfoMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("talebot_turns_total 0\n"))
	})
	h := newHandler(t, httpAdapter.WithVersion("1.2.3"), httpAdapter.WithMetrics(metrics))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/info", nil))
	assert.JSONEq(t, `{"app":"talebot-http","version":"1.2.3"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "talebot_turns_total")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/v1/turns", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubscribeEvents(t *testing.T) {
	srv := httptest.NewServer(newHandler(t))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events?session_key=web:9", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())
	require.True(t, lines.Scan())
	assert.Equal(t, "data: connected", lines.Text())

	post, err := http.Post(srv.URL+"/v1/turns", "application/json",
		bytes.NewBufferString(`{"session_key":"web:9","flow":"story_feedback"}`))
	require.NoError(t, err)
	post.Body.Close()

	var event, data string
	for lines.Scan() {
		line := lines.Text()
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	assert.Equal(t, "instruction", event)

	var inst domain.Instruction
	require.NoError(t, json.Unmarshal([]byte(data), &inst))
	assert.Equal(t, domain.FlowStoryFeedback, inst.Flow)
	assert.Equal(t, "story_id", inst.Step)
}

func TestSubscribeEvents_RequiresKey(t *testing.T) {
	h := newHandler(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
