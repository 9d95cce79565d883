package kie

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/imagestudio/internal/config"
	"github.com/digkill/imagestudio/pkg/logger"
)

type fakeKIE struct {
	mu       sync.Mutex
	payload  map[string]any
	states   []string
	polls    int
	failMsg  string
	authSeen string
}

func (f *fakeKIE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authSeen = r.Header.Get("Authorization")

	switch r.URL.Path {
	case "/api/v1/jobs/createTask":
		_ = json.NewDecoder(r.Body).Decode(&f.payload)
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"task-1"}}`))
	case "/api/v1/jobs/recordInfo":
		if r.URL.Query().Get("taskId") != "task-1" {
			http.Error(w, "unknown task", http.StatusNotFound)
			return
		}
		state := f.states[len(f.states)-1]
		if f.polls < len(f.states) {
			state = f.states[f.polls]
		}
		f.polls++
		resp := map[string]any{
			"code": 200,
			"msg":  "success",
			"data": map[string]any{
				"taskId":     "task-1",
				"state":      state,
				"resultJson": `{"resultUrls":["https://cdn.example.com/out.png"]}`,
				"failCode":   "422",
				"failMsg":    f.failMsg,
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, handler http.Handler, attempts int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{
		KIEAPIKey:       "secret",
		KIEBaseURL:      srv.URL,
		KIEPollInterval: time.Millisecond,
		KIEMaxAttempts:  attempts,
		RequestTimeout:  5 * time.Second,
	}, logger.Discard())
}

func TestGenerateFlux2PollsUntilSuccess(t *testing.T) {
	t.Parallel()

	fake := &fakeKIE{states: []string{"waiting", "generating", "success"}}
	client := newTestClient(t, fake, 10)

	img, err := client.Generate(context.Background(), ModelFlux2, GenerateOptions{Prompt: "a fox", AspectRatio: "1:1", Resolution: "1K"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/out.png", img.URL)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 3, fake.polls)
	assert.Equal(t, "Bearer secret", fake.authSeen)
	assert.Equal(t, "flux-2/pro-text-to-image", fake.payload["model"])
}

func TestGenerateNanoBananaWithReferences(t *testing.T) {
	t.Parallel()

	fake := &fakeKIE{states: []string{"success"}}
	client := newTestClient(t, fake, 3)

	_, err := client.Generate(context.Background(), ModelNanoBananaPro, GenerateOptions{
		Prompt:       "poster",
		InputURLs:    []string{"https://ref.example.com/a.jpg"},
		OutputFormat: "JPG",
	})
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "nano-banana-pro", fake.payload["model"])
	input := fake.payload["input"].(map[string]any)
	assert.Equal(t, "jpg", input["output_format"])
	assert.Equal(t, []any{"https://ref.example.com/a.jpg"}, input["image_input"])
}

func TestGenerateTaskFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, &fakeKIE{states: []string{"fail"}, failMsg: "nsfw"}, 3)
	_, err := client.Generate(context.Background(), ModelFlux2, GenerateOptions{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nsfw")
}

func TestGenerateTimesOut(t *testing.T) {
	t.Parallel()

	fake := &fakeKIE{states: []string{"queued"}}
	client := newTestClient(t, fake, 4)
	_, err := client.Generate(context.Background(), ModelFlux2, GenerateOptions{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout after 4 attempts")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 4, fake.polls)
}

func TestGenerateHTTPError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}), 3)
	_, err := client.Generate(context.Background(), ModelFlux2, GenerateOptions{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=401")
}

func TestGenerateUnknownModel(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.NotFoundHandler(), 1)
	_, err := client.Generate(context.Background(), Model("dall-e"), GenerateOptions{Prompt: "x"})
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestParseModel(t *testing.T) {
	t.Parallel()

	m, err := ParseModel("FLUX-2")
	require.NoError(t, err)
	assert.Equal(t, ModelFlux2, m)

	_, err = ParseModel("midjourney")
	assert.ErrorIs(t, err, ErrUnknownModel)
}
