package scenario

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/waftester/mediaprobe/pkg/mediaapi"
	"github.com/waftester/mediaprobe/pkg/poller"
)

type noSleep struct{}

func (noSleep) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type fakeAPI struct {
	detectErr  error
	extractErr error
	jobID      string
	statuses   []mediaapi.JobStatus

	detects, extracts, fetches int
	lastExtract                mediaapi.ExtractionRequest
}

func (f *fakeAPI) Detect(ctx context.Context, u string) (*mediaapi.Detection, error) {
	f.detects++
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return &mediaapi.Detection{Platform: "youtube", Title: "clip"}, nil
}

func (f *fakeAPI) Extract(ctx context.Context, req mediaapi.ExtractionRequest) (string, error) {
	f.extracts++
	f.lastExtract = req
	if f.extractErr != nil {
		return "", f.extractErr
	}
	return f.jobID, nil
}

func (f *fakeAPI) JobStatus(ctx context.Context, id string) (*mediaapi.Job, error) {
	i := f.fetches
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.fetches++
	return &mediaapi.Job{ID: id, Status: f.statuses[i]}, nil
}

func (f *fakeAPI) JobURL(id string) string { return "http://api/proxy/jobs/" + id }

var sample = Platform{Name: "YouTube - Music Video", URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}

func TestRun_Completed(t *testing.T) {
	api := &fakeAPI{jobID: "job-1", statuses: []mediaapi.JobStatus{"processing", "processing", "completed"}}
	var stages []Stage
	r := NewRunner(api, Config{Sleeper: noSleep{}, OnStage: func(_ Platform, s Stage) { stages = append(stages, s) }})

	res := r.Run(context.Background(), sample)

	if !res.Success || res.Stage != StageDone {
		t.Fatalf("Run() = %+v", res)
	}
	if res.JobURL != "http://api/proxy/jobs/job-1" {
		t.Errorf("JobURL = %q", res.JobURL)
	}
	if res.Poll.AttemptsUsed != 3 {
		t.Errorf("AttemptsUsed = %d", res.Poll.AttemptsUsed)
	}
	if api.lastExtract.Format != mediaapi.FormatMP4 || api.lastExtract.Quality != "720p" {
		t.Errorf("extract request = %+v", api.lastExtract)
	}
	want := []Stage{StageDetect, StageExtract, StagePoll, StageDone}
	if fmt.Sprint(stages) != fmt.Sprint(want) {
		t.Errorf("stages = %v, want %v", stages, want)
	}
}

func TestRun_DetectFailureSkipsExtract(t *testing.T) {
	api := &fakeAPI{detectErr: &mediaapi.StatusError{StatusCode: 400, Body: "unsupported"}}
	res := NewRunner(api, Config{Sleeper: noSleep{}}).Run(context.Background(), sample)

	if res.Success || res.Stage != StageDetect {
		t.Errorf("Run() = %+v", res)
	}
	if res.Error != "Status 400" || res.ErrorKind != "protocol" {
		t.Errorf("error = %q kind = %q", res.Error, res.ErrorKind)
	}
	if api.extracts != 0 || api.fetches != 0 {
		t.Errorf("extract=%d fetch=%d after failed detect", api.extracts, api.fetches)
	}
}

func TestRun_MissingJobIDSkipsPoll(t *testing.T) {
	api := &fakeAPI{extractErr: mediaapi.ErrMissingJobID}
	res := NewRunner(api, Config{Sleeper: noSleep{}}).Run(context.Background(), sample)

	if res.Stage != StageExtract || res.Poll != nil {
		t.Errorf("Run() = %+v", res)
	}
	if api.fetches != 0 {
		t.Errorf("fetches = %d, want 0", api.fetches)
	}
}

func TestRun_DemoBudget(t *testing.T) {
	api := &fakeAPI{jobID: "slow", statuses: []mediaapi.JobStatus{"processing"}}
	res := NewRunner(api, Config{Sleeper: noSleep{}}).Run(context.Background(), sample)

	if api.fetches != 10 {
		t.Errorf("fetches = %d, want demo budget of 10", api.fetches)
	}
	if !res.StillProcessing() || res.Error != poller.MsgTimeout {
		t.Errorf("Run() = %+v", res)
	}
	if res.JobURL == "" {
		t.Error("JobURL should be kept for follow-up")
	}
}

func TestRunAll_ContinuesAfterFailure(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch {
		case r.URL.Path == "/proxy/detect" && n == 1:
			w.WriteHeader(http.StatusBadRequest)
		case r.URL.Path == "/proxy/detect":
			w.Write([]byte(`{"platform":"vimeo","title":"t"}`))
		case r.URL.Path == "/proxy/extract":
			w.Write([]byte(`{"job_id":"abc"}`))
		default:
			w.Write([]byte(`{"status":"completed","progress":100,"result":{"filename":"a.mp4","filesize":42}}`))
		}
	}))
	defer server.Close()

	api, err := mediaapi.New(mediaapi.Config{BaseURL: server.URL, APIKey: "k", HTTPClient: server.Client()})
	if err != nil {
		t.Fatal(err)
	}
	results := NewRunner(api, Config{Sleeper: noSleep{}}).RunAll(context.Background(), []Platform{sample, sample})

	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Success || !results[1].Success {
		t.Errorf("results = %+v", results)
	}
	if got := results[1].Poll.Result.Size(); got != 42 {
		t.Errorf("size = %d", got)
	}
}

func TestDefaultFixtures(t *testing.T) {
	f, err := DefaultFixtures()
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Platforms) != 12 {
		t.Errorf("platforms = %d, want 12", len(f.Platforms))
	}
	if got := f.Selected(false); len(got) != 5 || got[0].Name != "YouTube - Music Video" {
		t.Errorf("Selected(false) = %v", got)
	}
	if len(f.Selected(true)) != 12 {
		t.Error("Selected(true) should return every platform")
	}
	if d := f.DefaultFormat(); d.Format != mediaapi.FormatMP4 || d.Quality != "720p" {
		t.Errorf("DefaultFormat() = %+v", d)
	}
	if len(f.Formats) != 3 {
		t.Errorf("formats = %d", len(f.Formats))
	}
}

func TestLoadFixtures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.yaml")
	data := "platforms:\n  - name: Vimeo\n    url: https://vimeo.com/1\nformats:\n  - format: mp3\n    quality: 192k\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := LoadFixtures(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Limit != 5 || f.DefaultFormat().Format != mediaapi.FormatMP3 {
		t.Errorf("LoadFixtures() = %+v", f)
	}

	if _, err := ParseFixtures([]byte("limit: 3\n")); !errors.Is(err, ErrNoPlatforms) {
		t.Errorf("empty platforms err = %v", err)
	}
	bad := "platforms:\n  - name: x\n    url: https://x.com/1\nformats:\n  - format: flac\n"
	if _, err := ParseFixtures([]byte(bad)); err == nil || !strings.Contains(err.Error(), "format 0") {
		t.Errorf("bad format err = %v", err)
	}
	if _, err := LoadFixtures(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should error")
	}
}

func TestParseFixtures_RejectsUnsendableURL(t *testing.T) {
	data := "platforms:\n  - name: Good\n    url: https://vimeo.com/1\n  - name: Short\n    url: youtu.be/abc\n"
	_, err := ParseFixtures([]byte(data))
	if !errors.Is(err, mediaapi.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if !strings.Contains(err.Error(), "platform 1 (Short)") {
		t.Errorf("error should name the platform: %v", err)
	}
}
