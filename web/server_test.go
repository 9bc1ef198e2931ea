package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dshills/automed/canned"
	"github.com/dshills/automed/conversation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestChat_Canned(t *testing.T) {
	srv := NewServer(nil)

	tests := []struct {
		message string
		want    canned.Category
	}{
		{"I feel anxious and can't sleep", canned.MentalHealth},
		{"I have a fever", canned.Medical},
		{"hello", canned.General},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			body, err := json.Marshal(map[string]string{"message": tt.message})
			require.NoError(t, err)

			rec := post(t, srv, string(body))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

			out := decode(t, rec)
			assert.Equal(t, "success", out["status"])
			assert.Equal(t, canned.Text(tt.want), out["response"])
		})
	}
}

func TestChat_BadRequest(t *testing.T) {
	srv := NewServer(CannedResponder{})

	for name, body := range map[string]string{
		"empty body":      "",
		"empty object":    "{}",
		"empty message":   `{"message": ""}`,
		"malformed":       `{"message": `,
		"wrong type":      `{"message": 42}`,
		"oversized_input": `{"message": "` + strings.Repeat("a", maxBodyBytes) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := post(t, srv, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, map[string]string{"error": "No message provided"}, decode(t, rec))
		})
	}
}

func TestChat_BlankMessage(t *testing.T) {
	rec := post(t, NewServer(CannedResponder{}), `{"message": "   "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, canned.Text(canned.General), decode(t, rec)["response"])

	team := &fakeTeam{}
	rec = post(t, NewServer(NewTeamResponder(team)), `{"message": "   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]string{"error": "No message provided"}, decode(t, rec))
	assert.Empty(t, team.got)
}

func TestChat_ResponderFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	srv := NewServer(ResponderFunc(func(context.Context, string) (string, error) {
		return "", errors.New("provider exploded")
	}), WithLogger(zap.New(core)))

	rec := post(t, srv, `{"message": "hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]string{"error": "Internal server error"}, decode(t, rec))

	entries := logs.FilterMessage("chat failed").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "provider exploded")
}

func TestChat_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIndex(t *testing.T) {
	srv := NewServer(nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "AutoMed Healthcare Chatbot")

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "automed_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	srv := httptest.NewServer(NewServer(nil, WithGatherer(registry)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "automed_test_total 1")
}

type fakeTeam struct {
	transcript conversation.Transcript
	err        error
	got        string
}

func (f *fakeTeam) Consult(_ context.Context, message string) (*conversation.Session, conversation.Transcript, error) {
	f.got = message
	return nil, f.transcript, f.err
}

func TestTeamResponder(t *testing.T) {
	team := &fakeTeam{transcript: conversation.Transcript{
		{Speaker: conversation.InitiatorName, Content: "I have a fever"},
		{Speaker: "Medical_Advisor", Content: "Rest and hydrate.", Round: 0},
		{Speaker: "Safety_Moderator", Content: "See a doctor above 102°F.", Round: 1},
	}}

	rec := post(t, NewServer(NewTeamResponder(team)), `{"message": "I have a fever"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "I have a fever", team.got)
	assert.Equal(t, "Medical_Advisor: Rest and hydrate.\n\nSafety_Moderator: See a doctor above 102°F.", decode(t, rec)["response"])

	team.err = errors.New("round 1 failed")
	rec = post(t, NewServer(NewTeamResponder(team)), `{"message": "I have a fever"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
