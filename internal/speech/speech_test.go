package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/model"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type countingRenderer struct {
	calls int
	err   error
}

func (r *countingRenderer) Render(_ context.Context, text string) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []byte("RIFF" + text), nil
}

func intPtr(i int) *int { return &i }

func TestSynthesizeDisabled(t *testing.T) {
	svc, err := NewService(Config{}, &countingRenderer{}, nil)
	require.NoError(t, err)
	res := svc.Synthesize(context.Background(), "hello", Options{})
	assert.Equal(t, Result{Success: false, Error: "TTS is disabled"}, res)
}

func TestFilename(t *testing.T) {
	h := TextHash("What is a goroutine?")
	assert.Len(t, h, 16)
	assert.Equal(t, h, TextHash("What is a goroutine?"))
	assert.NotEqual(t, h, TextHash("What is a channel?"))

	assert.Equal(t, "session_abc-1_q2_"+h+".wav",
		Filename("What is a goroutine?", Options{SessionID: "abc-1", QuestionIndex: intPtr(2)}))
	assert.Equal(t, "tts_"+h+".wav", Filename("What is a goroutine?", Options{SessionID: "abc-1"}))
	assert.Equal(t, "tts_"+h+".wav",
		Filename("What is a goroutine?", Options{SessionID: "../etc", QuestionIndex: intPtr(0)}))
}

func TestSynthesizeFileCache(t *testing.T) {
	r := &countingRenderer{}
	dir := t.TempDir()
	svc, err := NewService(Config{Enabled: true, Dir: dir}, r, nil)
	require.NoError(t, err)
	ctx := context.Background()
	opts := Options{SessionID: "s1", QuestionIndex: intPtr(0), UseCache: true}

	first := svc.Synthesize(ctx, "Tell me about yourself.", opts)
	require.True(t, first.Success, first.Error)
	assert.True(t, strings.HasPrefix(first.AudioURL, URLPrefix+"session_s1_q0_"))
	assert.Equal(t, 1, r.calls)

	second := svc.Synthesize(ctx, "Tell me about yourself.", opts)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, r.calls)

	opts.UseCache = false
	svc.Synthesize(ctx, "Tell me about yourself.", opts)
	assert.Equal(t, 2, r.calls)

	path, err := svc.AudioPath(strings.TrimPrefix(first.AudioURL, URLPrefix))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RIFFTell me about yourself.", string(data))
}

func TestSynthesizeRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	r := &countingRenderer{}
	svc, err := NewService(Config{Enabled: true, Dir: t.TempDir(), Retention: time.Hour}, r, NewRedisCache(client, time.Hour))
	require.NoError(t, err)
	ctx := context.Background()

	res := svc.Synthesize(ctx, "Describe a hard bug.", Options{UseCache: true})
	require.True(t, res.Success)
	key := cacheKeyPrefix + strings.TrimPrefix(res.AudioURL, URLPrefix)
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, res.AudioURL, got)
	assert.Equal(t, time.Hour, mr.TTL(key))

	svc.Synthesize(ctx, "Describe a hard bug.", Options{UseCache: true})
	assert.Equal(t, 1, r.calls)

	// An expired entry means a fresh rendering.
	mr.FastForward(2 * time.Hour)
	svc.Synthesize(ctx, "Describe a hard bug.", Options{UseCache: true})
	assert.Equal(t, 2, r.calls)
}

func TestSynthesizeRedisEntryWithoutFile(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	r := &countingRenderer{}
	dir := t.TempDir()
	svc, err := NewService(Config{Enabled: true, Dir: dir, Retention: time.Hour}, r, NewRedisCache(client, time.Hour))
	require.NoError(t, err)
	ctx := context.Background()
	opts := Options{SessionID: "s1", QuestionIndex: intPtr(0), UseCache: true}

	first := svc.Synthesize(ctx, "Walk me through a deploy.", opts)
	require.True(t, first.Success, first.Error)
	name := strings.TrimPrefix(first.AudioURL, URLPrefix)
	require.NoError(t, os.Remove(filepath.Join(dir, name)))
	assert.True(t, mr.Exists(cacheKeyPrefix+name))

	second := svc.Synthesize(ctx, "Walk me through a deploy.", opts)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, first.AudioURL, second.AudioURL)
	assert.Equal(t, 2, r.calls)

	path, err := svc.AudioPath(name)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RIFFWalk me through a deploy.", string(data))
}

func TestSynthesizeFailure(t *testing.T) {
	svc, err := NewService(Config{Enabled: true, Dir: t.TempDir()}, &countingRenderer{err: errors.New("boom")}, nil)
	require.NoError(t, err)
	res := svc.Synthesize(context.Background(), "hello", Options{})
	assert.False(t, res.Success)
	assert.Equal(t, "Speech synthesis failed", res.Error)
	assert.Empty(t, res.AudioURL)
}

func TestAudioPathRejectsTraversal(t *testing.T) {
	svc, err := NewService(Config{Enabled: true, Dir: t.TempDir()}, &countingRenderer{}, nil)
	require.NoError(t, err)
	for _, name := range []string{"../secret.wav", "x.txt", "missing.wav"} {
		_, err := svc.AudioPath(name)
		assert.True(t, errors.Is(err, model.ErrNotFound), "%s: %v", name, err)
	}
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewService(Config{Enabled: true, Dir: dir, Retention: time.Hour}, &countingRenderer{}, nil)
	require.NoError(t, err)

	old := filepath.Join(dir, "tts_old.wav")
	fresh := filepath.Join(dir, "tts_fresh.wav")
	require.NoError(t, os.WriteFile(old, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("b"), 0o644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	n, err := svc.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)

	stop, err := svc.StartJanitor()
	require.NoError(t, err)
	stop()
}

func TestOpenAIRenderer(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	r := NewOpenAIRenderer(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "test"})
	audio, err := r.Render(context.Background(), "Hello there")
	require.NoError(t, err)
	assert.Equal(t, "RIFFdata", string(audio))
	assert.Equal(t, "Hello there", got["input"])
	assert.Equal(t, "wav", got["response_format"])
	assert.Equal(t, "alloy", got["voice"])
}
