package lifecycle_test

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"jobfetch/internal/api"
	"jobfetch/internal/api/apitest"
	"jobfetch/internal/blobstore"
	"jobfetch/internal/lifecycle"
	"jobfetch/internal/model"
	"jobfetch/internal/progress"
	"jobfetch/internal/util"
)

const (
	pollEvery  = time.Second
	retryEvery = 2 * time.Second
	videoURL   = "https://example.com/video"
)

// testClock records every requested delay and fires after a millisecond,
// except for durations marked as held, which wait for release. Its Now moves
// forward by each requested delay, so elapsed time is virtual.
type testClock struct {
	mu      sync.Mutex
	asked   []time.Duration
	hold    map[time.Duration]bool
	held    []chan time.Time
	elapsed time.Duration
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(0, 0).Add(c.elapsed)
}

func (c *testClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asked = append(c.asked, d)
	c.elapsed += d
	if c.hold[d] {
		ch := make(chan time.Time, 1)
		c.held = append(c.held, ch)
		return ch
	}
	return time.After(time.Millisecond)
}

func (c *testClock) heldCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.held)
}

func (c *testClock) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.held {
		ch <- time.Now()
	}
	c.held = nil
}

func (c *testClock) requested() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.asked...)
}

type recordingReporter struct {
	mu      sync.Mutex
	states  []model.UIState
	notices []progress.Notice
}

func (r *recordingReporter) State(s model.UIState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recordingReporter) Notify(n progress.Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recordingReporter) messages(level progress.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.notices {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}

func (r *recordingReporter) progressValues() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, s := range r.states {
		if s.TaskID != "" {
			out = append(out, s.Progress)
		}
	}
	return out
}

type harness struct {
	srv   *apitest.Server
	ctrl  *lifecycle.Controller
	blobs *blobstore.Store
	clock *testClock
	rec   *recordingReporter
}

func newHarness(t *testing.T, opts ...lifecycle.Option) *harness {
	t.Helper()
	return newHarnessWith(t, nil, opts...)
}

// newHarnessWith lets wrap interpose on the remote the controller drives.
func newHarnessWith(t *testing.T, wrap func(lifecycle.Remote) lifecycle.Remote, opts ...lifecycle.Option) *harness {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	client, err := api.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	var remote lifecycle.Remote = client
	if wrap != nil {
		remote = wrap(client)
	}
	blobs, err := blobstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		srv:   srv,
		blobs: blobs,
		clock: &testClock{hold: map[time.Duration]bool{}},
		rec:   &recordingReporter{},
	}
	base := []lifecycle.Option{
		lifecycle.WithClock(h.clock),
		lifecycle.WithPollInterval(pollEvery),
		lifecycle.WithRetryDelay(retryEvery),
		lifecycle.WithReporter(h.rec),
	}
	h.ctrl = lifecycle.New(remote, blobs, append(base, opts...)...)
	t.Cleanup(func() {
		h.ctrl.Close()
		_ = blobs.Close()
	})
	return h
}

// gatedRemote parks Submit or FetchArtifact until the test opens the gate.
// A parked fetch ignores cancellation and answers with a canned file.
type gatedRemote struct {
	lifecycle.Remote
	submitGate chan struct{}
	fetchGate  chan struct{}
	entered    chan string
}

func (g *gatedRemote) Submit(ctx context.Context, url string) (string, error) {
	if g.submitGate != nil {
		g.entered <- "submit"
		<-g.submitGate
	}
	return g.Remote.Submit(ctx, url)
}

func (g *gatedRemote) FetchArtifact(ctx context.Context, id string) (*api.Download, error) {
	if g.fetchGate == nil {
		return g.Remote.FetchArtifact(ctx, id)
	}
	g.entered <- "fetch"
	<-g.fetchGate
	return &api.Download{Name: "late.mp4", Size: 4, Body: io.NopCloser(strings.NewReader("late"))}, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestController_PollsThenResolvesArtifact(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress("abc123", apitest.Progress(50), apitest.Progress(100))
	h.srv.ScriptFile("abc123", apitest.NotReady(), apitest.File("clip.mp4", []byte("video-bytes")))

	id, err := h.ctrl.Submit(context.Background(), videoURL)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "abc123" {
		t.Fatalf("id = %q", id)
	}

	waitFor(t, "artifact", func() bool { return h.ctrl.Snapshot().HasDownload() })
	time.Sleep(20 * time.Millisecond)

	if n := h.srv.Count(apitest.OpProgress, "abc123"); n != 2 {
		t.Errorf("progress queries = %d, want 2", n)
	}
	if n := h.srv.Count(apitest.OpFile, "abc123"); n != 2 {
		t.Errorf("artifact fetches = %d, want 2", n)
	}

	s := h.ctrl.Snapshot()
	if s.Progress != 100 || s.TaskID != "abc123" || s.URL != videoURL {
		t.Errorf("state = %+v", s)
	}
	data, err := os.ReadFile(s.Download.Handle)
	if err != nil || string(data) != "video-bytes" {
		t.Errorf("blob contents = %q, %v", data, err)
	}
	if s.Download.Name != "clip.mp4" || s.Download.Size != int64(len("video-bytes")) {
		t.Errorf("artifact = %+v", s.Download)
	}
	if got := h.ctrl.Stage(); got != progress.StageReady {
		t.Errorf("stage = %s, want ready", got)
	}

	if got := h.rec.progressValues(); !equalInts(got, []int{0, 50, 100, 100}) {
		t.Errorf("progress states = %v", got)
	}
	if got := h.rec.messages(progress.LevelSuccess); !equalStrings(got, []string{"Analysis started!", "Analysis complete!"}) {
		t.Errorf("success notices = %v", got)
	}

	for _, d := range h.clock.requested() {
		if d != pollEvery && d != retryEvery {
			t.Errorf("unexpected delay %s", d)
		}
	}
	if got := countDur(h.clock.requested(), retryEvery); got != 1 {
		t.Errorf("retry delays = %d, want 1", got)
	}
}

func TestSubmit_RejectsLocallyWithoutNetwork(t *testing.T) {
	tests := []struct {
		in      string
		wantErr error
		wantMsg string
	}{
		{in: "", wantErr: util.ErrEmptyInput, wantMsg: "URL cannot be empty!"},
		{in: "not a url", wantErr: util.ErrInvalidFormat, wantMsg: "Invalid URL format!"},
	}
	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			h := newHarness(t)
			h.ctrl.SetURL("typed")
			before := h.ctrl.Snapshot()

			_, err := h.ctrl.Submit(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if n := len(h.srv.Calls("", "")); n != 0 {
				t.Errorf("server saw %d calls, want 0", n)
			}
			if after := h.ctrl.Snapshot(); after != before {
				t.Errorf("state changed: %+v -> %+v", before, after)
			}
			if got := h.rec.messages(progress.LevelError); !equalStrings(got, []string{tt.wantMsg}) {
				t.Errorf("error notices = %v", got)
			}
		})
	}
}

func TestSubmit_ServerRejection(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptSubmit(apitest.JSON(500, map[string]string{"detail": "unsupported site"}))

	_, err := h.ctrl.Submit(context.Background(), videoURL)
	var se *api.SubmissionError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SubmissionError", err)
	}
	if s := h.ctrl.Snapshot(); !s.Idle() || s.Progress != 0 {
		t.Errorf("state = %+v, want idle", s)
	}
	if got := h.rec.messages(progress.LevelError); !equalStrings(got, []string{"Analysis failed: unsupported site"}) {
		t.Errorf("error notices = %v", got)
	}
}

func TestResolver_RetriesUntilReady(t *testing.T) {
	const notReady = 3
	h := newHarness(t)
	h.srv.ScriptProgress("abc123", apitest.Progress(100))
	h.srv.ScriptFile("abc123", apitest.NotReady(), apitest.NotReady(), apitest.NotReady(),
		apitest.File("video.mp4", []byte("x")))

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "artifact", func() bool { return h.ctrl.Snapshot().HasDownload() })
	time.Sleep(20 * time.Millisecond)

	if n := h.srv.Count(apitest.OpFile, "abc123"); n != notReady+1 {
		t.Errorf("fetch attempts = %d, want %d", n, notReady+1)
	}
	if n := h.blobs.Live(); n != 1 {
		t.Errorf("live blobs = %d, want 1", n)
	}
	if got := countDur(h.clock.requested(), retryEvery); got != notReady {
		t.Errorf("retry delays = %d, want %d", got, notReady)
	}
}

func TestPoller_TransientFailuresAreSilent(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress("abc123",
		apitest.Reply{Status: 500, Body: []byte(`{"detail":"boom"}`)},
		apitest.Progress(nil),
		apitest.Progress(100))
	h.srv.ScriptFile("abc123", apitest.File("video.mp4", []byte("x")))

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "artifact", func() bool { return h.ctrl.Snapshot().HasDownload() })

	if got := h.rec.messages(progress.LevelError); len(got) != 0 {
		t.Errorf("error notices = %v, want none", got)
	}
	if n := h.srv.Count(apitest.OpProgress, "abc123"); n != 3 {
		t.Errorf("progress queries = %d, want 3", n)
	}
}

func TestPoller_ProgressAnomalies(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress("abc123",
		apitest.Progress(40),
		apitest.Progress(30),
		apitest.Progress(55.5),
		apitest.Progress(-1),
		apitest.Progress(150),
		apitest.Progress(100))
	h.srv.ScriptFile("abc123", apitest.File("video.mp4", []byte("x")))

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "artifact", func() bool { return h.ctrl.Snapshot().HasDownload() })

	got := h.rec.progressValues()
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("progress went backwards: %v", got)
		}
	}
	if !equalInts(got, []int{0, 40, 40, 100, 100}) {
		t.Errorf("progress states = %v", got)
	}
	errs := h.rec.messages(progress.LevelError)
	if len(errs) != 1 || !strings.Contains(errs[0], "invalid progress") {
		t.Errorf("error notices = %v, want one invalid-progress notice", errs)
	}
}

func TestReset_StopsPollingAndClears(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress("abc123", apitest.Progress(30))

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "two polls", func() bool { return h.srv.Count(apitest.OpProgress, "abc123") >= 2 })

	h.ctrl.Reset()
	if s := h.ctrl.Snapshot(); s != (model.UIState{}) {
		t.Errorf("state after reset = %+v", s)
	}
	if got := h.ctrl.Stage(); got != progress.StageIdle {
		t.Errorf("stage = %s", got)
	}

	// An in-flight query may land just after Reset; nothing after that.
	time.Sleep(10 * time.Millisecond)
	settled := h.srv.Count(apitest.OpProgress, "abc123")
	time.Sleep(30 * time.Millisecond)
	if n := h.srv.Count(apitest.OpProgress, "abc123"); n != settled {
		t.Errorf("progress queries continued after reset: %d -> %d", settled, n)
	}
	if s := h.ctrl.Snapshot(); s.Progress != 0 {
		t.Errorf("late progress applied: %+v", s)
	}

	h.ctrl.Reset()
	info := h.rec.messages(progress.LevelInfo)
	if len(info) != 2 || info[0] != "Input reset successfully!" {
		t.Errorf("info notices = %v", info)
	}
}

func TestSubmit_SupersedesPendingResolver(t *testing.T) {
	h := newHarness(t)
	h.clock.hold[retryEvery] = true
	h.srv.SubmitTaskIDs("old", "new")
	h.srv.ScriptProgress("old", apitest.Progress(100))
	h.srv.ScriptFile("old", apitest.NotReady(), apitest.File("old.mp4", []byte("old")))
	h.srv.ScriptProgress("new", apitest.Progress(10))

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "resolver waiting to retry", func() bool { return h.clock.heldCount() == 1 })

	id, err := h.ctrl.Submit(context.Background(), "https://example.com/other")
	if err != nil || id != "new" {
		t.Fatalf("second submit = %q, %v", id, err)
	}
	h.clock.release()
	waitFor(t, "new task polling", func() bool { return h.srv.Count(apitest.OpProgress, "new") >= 2 })

	if n := h.srv.Count(apitest.OpFile, "old"); n != 1 {
		t.Errorf("old artifact fetches = %d, want 1", n)
	}
	s := h.ctrl.Snapshot()
	if s.TaskID != "new" || s.HasDownload() || s.Progress != 10 {
		t.Errorf("state = %+v", s)
	}
	if n := h.blobs.Live(); n != 0 {
		t.Errorf("live blobs = %d, want 0", n)
	}
}

func TestNewSubmission_ReleasesPreviousArtifact(t *testing.T) {
	h := newHarness(t)
	h.srv.SubmitTaskIDs("abc123", "def456")
	h.srv.ScriptProgress("abc123", apitest.Progress(100))
	h.srv.ScriptFile("abc123", apitest.File("video.mp4", []byte("x")))
	h.srv.ScriptProgress("def456", apitest.Progress(5))

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "artifact", func() bool { return h.ctrl.Snapshot().HasDownload() })
	handle := h.ctrl.Snapshot().Download.Handle

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(handle); !os.IsNotExist(err) {
		t.Errorf("previous blob still on disk: %v", err)
	}
	if s := h.ctrl.Snapshot(); s.HasDownload() || s.TaskID != "def456" {
		t.Errorf("state = %+v", s)
	}
}

func TestReset_ReleasesArtifact(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress("abc123", apitest.Progress(100))
	h.srv.ScriptFile("abc123", apitest.File("video.mp4", []byte("x")))

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "artifact", func() bool { return h.ctrl.Snapshot().HasDownload() })
	handle := h.ctrl.Snapshot().Download.Handle

	h.ctrl.Reset()
	if _, err := os.Stat(handle); !os.IsNotExist(err) {
		t.Errorf("blob still on disk after reset: %v", err)
	}
	if n := h.blobs.Live(); n != 0 {
		t.Errorf("live blobs = %d", n)
	}
}

func TestAcknowledgeDownload_EachCallCleansUp(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress("abc123", apitest.Progress(100))
	h.srv.ScriptFile("abc123", apitest.File("video.mp4", []byte("x")))

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "artifact", func() bool { return h.ctrl.Snapshot().HasDownload() })

	h.ctrl.AcknowledgeDownload()
	h.ctrl.AcknowledgeDownload()
	h.ctrl.Close()

	if n := h.srv.Count(apitest.OpCleanup, "abc123"); n != 2 {
		t.Errorf("cleanup requests = %d, want 2", n)
	}
}

func TestAcknowledgeDownload_IgnoresFailures(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress("abc123", apitest.Progress(100))
	h.srv.ScriptFile("abc123", apitest.File("video.mp4", []byte("x")))
	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "artifact", func() bool { return h.ctrl.Snapshot().HasDownload() })

	h.srv.Close()
	h.ctrl.AcknowledgeDownload()
	h.ctrl.Close()

	if got := h.rec.messages(progress.LevelError); len(got) != 0 {
		t.Errorf("error notices = %v", got)
	}
}

func TestAcknowledgeDownload_WithoutTask(t *testing.T) {
	h := newHarness(t)
	h.ctrl.AcknowledgeDownload()
	h.ctrl.Close()
	if n := h.srv.Count(apitest.OpCleanup, ""); n != 0 {
		t.Errorf("cleanup requests = %d, want 0", n)
	}
}

func TestDownload_ExportsAndAcknowledges(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress("abc123", apitest.Progress(100))
	h.srv.ScriptFile("abc123", apitest.File("My Clip.mp4", []byte("payload")))

	if _, err := h.ctrl.Download(t.TempDir()); !errors.Is(err, lifecycle.ErrNoArtifact) {
		t.Fatalf("Download before ready err = %v", err)
	}
	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "artifact", func() bool { return h.ctrl.Snapshot().HasDownload() })

	out := t.TempDir()
	path, err := h.ctrl.Download(out)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "payload" {
		t.Errorf("exported = %q, %v", data, err)
	}
	if !strings.HasPrefix(path, out) || !strings.HasSuffix(path, "My_Clip.mp4") {
		t.Errorf("path = %q", path)
	}

	h.ctrl.Close()
	if n := h.srv.Count(apitest.OpCleanup, "abc123"); n != 1 {
		t.Errorf("cleanup requests = %d, want 1", n)
	}
}

func TestMaxWait_StallsTask(t *testing.T) {
	h := newHarness(t, lifecycle.WithMaxWait(3*pollEvery))
	h.srv.ScriptProgress("abc123", apitest.Progress(10))

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "stall", func() bool { return h.ctrl.Stage() == progress.StageStalled })

	// Polls at 1s and 2s of clock time; the 3s tick gives up before querying.
	time.Sleep(20 * time.Millisecond)
	if n := h.srv.Count(apitest.OpProgress, "abc123"); n != 2 {
		t.Errorf("progress queries = %d, want 2", n)
	}
	errs := h.rec.messages(progress.LevelError)
	if len(errs) != 1 || !strings.HasPrefix(errs[0], "Task stalled") {
		t.Errorf("error notices = %v", errs)
	}
}

func TestClose_RejectsFurtherSubmissions(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress("abc123", apitest.Progress(20))
	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	h.ctrl.Close()
	h.ctrl.Close()

	if _, err := h.ctrl.Submit(context.Background(), videoURL); !errors.Is(err, lifecycle.ErrClosed) {
		t.Errorf("Submit after Close err = %v", err)
	}
	if n := h.srv.Count(apitest.OpSubmit, ""); n != 1 {
		t.Errorf("submit calls = %d, want 1", n)
	}
}

func TestSubscribe_SendsCurrentState(t *testing.T) {
	h := newHarness(t)
	h.ctrl.SetURL("https://example.com/x")

	var got []model.UIState
	h.ctrl.Subscribe(progress.Funcs{OnState: func(s model.UIState) { got = append(got, s) }})
	if len(got) != 1 || got[0].URL != "https://example.com/x" {
		t.Errorf("initial states = %+v", got)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func countDur(ds []time.Duration, want time.Duration) int {
	n := 0
	for _, d := range ds {
		if d == want {
			n++
		}
	}
	return n
}

func TestSave_DoesNotAcknowledge(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress("abc123", apitest.Progress(100))
	h.srv.ScriptFile("abc123", apitest.File("video.mp4", []byte("x")))

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "artifact", func() bool { return h.ctrl.Snapshot().HasDownload() })

	if _, err := h.ctrl.Save(t.TempDir()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	h.ctrl.Close()
	if n := h.srv.Count(apitest.OpCleanup, ""); n != 0 {
		t.Errorf("cleanup requests = %d, want 0", n)
	}
}

func TestPoller_NonNumericProgressIsInvalid(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress("abc123",
		apitest.Progress(20),
		apitest.Progress("abc"),
		apitest.Progress(true),
		apitest.Progress(100))
	h.srv.ScriptFile("abc123", apitest.File("video.mp4", []byte("x")))

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "artifact", func() bool { return h.ctrl.Snapshot().HasDownload() })

	if got := h.rec.progressValues(); !equalInts(got, []int{0, 20, 100, 100}) {
		t.Errorf("progress states = %v", got)
	}
	errs := h.rec.messages(progress.LevelError)
	if !equalStrings(errs, []string{`Server reported invalid progress ("abc")`}) {
		t.Errorf("error notices = %v, want one invalid-progress notice", errs)
	}
}

func TestReset_DiscardsArtifactFetchedInFlight(t *testing.T) {
	gate := &gatedRemote{fetchGate: make(chan struct{}), entered: make(chan string, 1)}
	h := newHarnessWith(t, func(r lifecycle.Remote) lifecycle.Remote {
		gate.Remote = r
		return gate
	})
	h.srv.ScriptProgress("abc123", apitest.Progress(100))

	if _, err := h.ctrl.Submit(context.Background(), videoURL); err != nil {
		t.Fatal(err)
	}
	<-gate.entered
	h.ctrl.Reset()
	close(gate.fetchGate)
	h.ctrl.Close()

	if s := h.ctrl.Snapshot(); s.HasDownload() || !s.Idle() {
		t.Errorf("state = %+v, want idle", s)
	}
	if n := h.blobs.Live(); n != 0 {
		t.Errorf("live blobs = %d, want 0", n)
	}
	if got := h.rec.messages(progress.LevelSuccess); !equalStrings(got, []string{"Analysis started!"}) {
		t.Errorf("success notices = %v", got)
	}
}

func TestReset_SupersedesInFlightSubmission(t *testing.T) {
	gate := &gatedRemote{submitGate: make(chan struct{}), entered: make(chan string, 1)}
	h := newHarnessWith(t, func(r lifecycle.Remote) lifecycle.Remote {
		gate.Remote = r
		return gate
	})
	h.srv.ScriptProgress("abc123", apitest.Progress(10))

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := h.ctrl.Submit(context.Background(), videoURL)
		done <- result{id, err}
	}()
	<-gate.entered
	h.ctrl.Reset()
	close(gate.submitGate)

	res := <-done
	if !errors.Is(res.err, lifecycle.ErrSuperseded) || res.id != "abc123" {
		t.Fatalf("Submit = %q, %v, want ErrSuperseded", res.id, res.err)
	}
	if s := h.ctrl.Snapshot(); s != (model.UIState{}) {
		t.Errorf("state = %+v, want idle", s)
	}

	h.ctrl.Close()
	if n := h.srv.Count(apitest.OpProgress, ""); n != 0 {
		t.Errorf("progress queries = %d, want 0", n)
	}
	if n := h.srv.Count(apitest.OpCleanup, "abc123"); n != 1 {
		t.Errorf("cleanup requests = %d, want 1", n)
	}
}
