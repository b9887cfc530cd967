package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/voxpipe/internal/backend"
	"github.com/ekisa-team/voxpipe/internal/backend/backendtest"
	"github.com/ekisa-team/voxpipe/internal/backend/ffmpeg"
	"github.com/ekisa-team/voxpipe/internal/backend/whisper"
	"github.com/ekisa-team/voxpipe/internal/diagnostics"
	"github.com/ekisa-team/voxpipe/internal/model"
	"github.com/ekisa-team/voxpipe/internal/service"
	"github.com/ekisa-team/voxpipe/internal/tempstore"
)

const testField = "mp3"

type fakeDiagnoser struct {
	report diagnostics.Report
}

func (f fakeDiagnoser) Run() diagnostics.Report { return f.report }

type panickingSTT struct{}

func (panickingSTT) Transcribe(context.Context, service.Input) (*service.Transcription, error) {
	panic("boom")
}

type testEnv struct {
	server    *httptest.Server
	runner    *backendtest.Runner
	catalog   *model.Catalog
	uploadDir string
}

func writeWaveform(_ context.Context, _ string, args []string, _ io.Reader) ([]byte, []byte, error) {
	return nil, nil, os.WriteFile(args[len(args)-1], []byte("RIFF"), 0o600)
}

func printing(stdout ...string) func(context.Context, string, []string, io.Reader) (io.ReadCloser, io.ReadCloser, func() error, error) {
	return func(ctx context.Context, _ string, _ []string, _ io.Reader) (io.ReadCloser, io.ReadCloser, func() error, error) {
		return backendtest.Process{Stdout: stdout}.Start(ctx)
	}
}

func newTestEnv(t *testing.T, runner *backendtest.Runner, maxBytes int64) *testEnv {
	t.Helper()

	root := t.TempDir()
	uploadDir := filepath.Join(root, "uploads")
	modelsDir := filepath.Join(root, "whisper.cpp", "models")
	require.NoError(t, os.MkdirAll(modelsDir, 0o755))

	catalog := model.NewCatalog(modelsDir, "ggml-%s.bin")
	converter := ffmpeg.NewConverter(backend.NewExecutorWithRunner("ffmpeg", time.Second, runner), 16000, 1)
	transcriber := whisper.NewTranscriber(backend.NewExecutorWithRunner(filepath.Join(root, "whisper.cpp", "main"), 5*time.Second, runner), catalog)
	stt := service.NewSTT(tempstore.New(uploadDir), converter, transcriber, service.Options{
		DefaultModel:    "base.en",
		DefaultLanguage: "en",
		MaxUploadBytes:  maxBytes,
	})

	server := httptest.NewServer(NewRouter(Deps{
		STT:         stt,
		Models:      catalog,
		Diagnostics: fakeDiagnoser{},
		Version:     "test",
		UploadField: testField,
		MaxBodySize: maxBytes,
	}))
	t.Cleanup(server.Close)

	return &testEnv{server: server, runner: runner, catalog: catalog, uploadDir: uploadDir}
}

func (e *testEnv) leftovers(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(e.uploadDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))

	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, query string, content []byte) *http.Response {
	t.Helper()

	body, contentType := multipartBody(t, testField, "clip.mp3", content)
	resp, err := http.Post(e.server.URL+"/speech-to-text"+query, contentType, body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestSpeechToText_NoFile(t *testing.T) {
	e := newTestEnv(t, &backendtest.Runner{}, 0)

	resp, err := http.Post(e.server.URL+"/speech-to-text", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No file uploaded\n", readBody(t, resp))
	assert.Empty(t, e.leftovers(t))
	assert.Empty(t, e.runner.Calls())
}

func TestSpeechToText_WrongField(t *testing.T) {
	e := newTestEnv(t, &backendtest.Runner{}, 0)

	body, contentType := multipartBody(t, "audio", "clip.mp3", []byte("ID3"))
	resp, err := http.Post(e.server.URL+"/speech-to-text", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, e.leftovers(t))
}

func TestSpeechToText_StreamsTranscriberOutput(t *testing.T) {
	runner := &backendtest.Runner{
		RunFunc:   writeWaveform,
		StartFunc: printing("[00:00:00.000 --> 00:00:02.000]", "  And so my fellow Americans", "\n"),
	}
	e := newTestEnv(t, runner, 0)

	resp := e.upload(t, "", []byte("ID3 fake mp3"))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "[00:00:00.000 --> 00:00:02.000]  And so my fellow Americans\n", readBody(t, resp))
	assert.Equal(t, "0", resp.Trailer.Get(ExitCodeTrailer))
	assert.Empty(t, e.leftovers(t))

	calls := runner.CallsTo("main")
	require.Len(t, calls, 1)
	assert.Equal(t, "en", calls[0].Arg("-l"))
	assert.Equal(t, "ggml-base.en.bin", filepath.Base(calls[0].Arg("-m")))
}

func TestSpeechToText_QueryParameters(t *testing.T) {
	runner := &backendtest.Runner{RunFunc: writeWaveform}
	e := newTestEnv(t, runner, 0)

	resp := e.upload(t, "?model=small&lang=fr", []byte("ID3"))
	readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	calls := runner.CallsTo("main")
	require.Len(t, calls, 1)
	assert.Equal(t, "fr", calls[0].Arg("-l"))
	assert.Equal(t, "ggml-small.bin", filepath.Base(calls[0].Arg("-m")))
}

func TestSpeechToText_ConversionFailure(t *testing.T) {
	runner := &backendtest.Runner{
		RunFunc: func(context.Context, string, []string, io.Reader) ([]byte, []byte, error) {
			return nil, []byte("Invalid data found when processing input"), &backendtest.ExitError{Code: 1}
		},
	}
	e := newTestEnv(t, runner, 0)

	resp := e.upload(t, "", []byte("not audio"))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Error processing the audio file\n", readBody(t, resp))
	assert.Empty(t, runner.CallsTo("main"))
	assert.Empty(t, e.leftovers(t))
}

func TestSpeechToText_NonZeroExit(t *testing.T) {
	runner := &backendtest.Runner{
		RunFunc: writeWaveform,
		StartFunc: func(ctx context.Context, _ string, _ []string, _ io.Reader) (io.ReadCloser, io.ReadCloser, func() error, error) {
			return backendtest.Process{
				Stderr: "error: failed to open 'models/ggml-nope.bin'",
				Err:    &backendtest.ExitError{Code: 2},
			}.Start(ctx)
		},
	}
	e := newTestEnv(t, runner, 0)

	resp := e.upload(t, "?model=nope", []byte("ID3"))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, readBody(t, resp))
	assert.Equal(t, "2", resp.Trailer.Get(ExitCodeTrailer))
	assert.Empty(t, e.leftovers(t))
}

func TestSpeechToText_ZeroByteUpload(t *testing.T) {
	runner := &backendtest.Runner{RunFunc: writeWaveform}
	e := newTestEnv(t, runner, 0)

	resp := e.upload(t, "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, readBody(t, resp))
	assert.Len(t, runner.CallsTo("ffmpeg"), 1)
	assert.Empty(t, e.leftovers(t))
}

func TestSpeechToText_UploadTooLarge(t *testing.T) {
	e := newTestEnv(t, &backendtest.Runner{RunFunc: writeWaveform}, 8)

	resp := e.upload(t, "", bytes.Repeat([]byte("a"), 64))

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Empty(t, e.runner.Calls())
	assert.Empty(t, e.leftovers(t))
}

func TestSpeechToText_ConcurrentRequests(t *testing.T) {
	runner := &backendtest.Runner{
		RunFunc: writeWaveform,
		StartFunc: func(ctx context.Context, _ string, args []string, _ io.Reader) (io.ReadCloser, io.ReadCloser, func() error, error) {
			return backendtest.Process{Stdout: []string{filepath.Base(args[1])}}.Start(ctx)
		},
	}
	e := newTestEnv(t, runner, 0)

	const n = 4
	bodies := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()

			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			fw, _ := mw.CreateFormFile(testField, "clip.mp3")
			_, _ = fw.Write([]byte("ID3"))
			_ = mw.Close()

			resp, err := http.Post(e.server.URL+"/speech-to-text", mw.FormDataContentType(), &buf)
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()

			data, _ := io.ReadAll(resp.Body)
			bodies[i] = string(data)
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, b := range bodies {
		assert.True(t, strings.HasSuffix(b, ".wav"), b)
		seen[b] = struct{}{}
	}
	assert.Len(t, seen, n)
	assert.Empty(t, e.leftovers(t))
}

func TestSpeechToText_PanicBeforeStreaming(t *testing.T) {
	server := httptest.NewServer(NewRouter(Deps{
		STT:         panickingSTT{},
		Models:      model.NewCatalog(t.TempDir(), "ggml-%s.bin"),
		Diagnostics: fakeDiagnoser{},
		UploadField: testField,
	}))
	defer server.Close()

	body, contentType := multipartBody(t, testField, "clip.mp3", []byte("ID3"))
	resp, err := http.Post(server.URL+"/speech-to-text", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t, &backendtest.Runner{}, 0)

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/speech-to-text", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	preflight, err := http.NewRequest(http.MethodOptions, e.server.URL+"/speech-to-text", nil)
	require.NoError(t, err)
	preflight.Header.Set("Origin", "https://example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err = http.DefaultClient.Do(preflight)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		report diagnostics.Report
		want   int
	}{
		{name: "pass", report: diagnostics.Report{Items: []diagnostics.Item{{ID: "models", Status: diagnostics.StatusPass}}}, want: http.StatusOK},
		{name: "fail", report: diagnostics.Report{HasFailures: true, Items: []diagnostics.Item{{ID: "models", Status: diagnostics.StatusFail}}}, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(NewRouter(Deps{
				STT:         panickingSTT{},
				Models:      model.NewCatalog(t.TempDir(), "ggml-%s.bin"),
				Diagnostics: fakeDiagnoser{report: tt.report},
				UploadField: testField,
			}))
			defer server.Close()

			resp, err := http.Get(server.URL + "/health")
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)

			var got diagnostics.Report
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.report.HasFailures, got.HasFailures)
			require.Len(t, got.Items, 1)
			assert.Equal(t, "models", got.Items[0].ID)
		})
	}
}

func TestModels(t *testing.T) {
	e := newTestEnv(t, &backendtest.Runner{}, 0)
	require.NoError(t, os.WriteFile(e.catalog.Path("tiny"), []byte("ggml"), 0o600))
	require.NoError(t, e.catalog.Refresh())

	resp, err := http.Get(e.server.URL + "/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Models []model.Model `json:"models"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Models, 1)
	assert.Equal(t, "tiny", list.Models[0].ID)

	resp, err = http.Get(e.server.URL + "/models/tiny")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(e.server.URL + "/models/large-v3")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
