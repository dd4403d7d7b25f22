package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kevinzhou/applyflow/internal/domain"
	"github.com/kevinzhou/applyflow/internal/ocr"
)

// fakeJobStore is an in-memory JobStore mirroring the repository
// contract: one live job per (owner, content key), guarded transitions.
type fakeJobStore struct {
	jobs map[string]*domain.OcrJob
	seq  int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*domain.OcrJob)}
}

func (s *fakeJobStore) CreateIfAbsent(ctx context.Context, ownerID, contentKey, linkedScanID string) (*domain.OcrJob, bool, error) {
	for _, j := range s.jobs {
		if j.OwnerID != ownerID || j.ContentKey != contentKey {
			continue
		}
		if j.State == domain.JobStateQueued || j.State == domain.JobStateRunning || j.State == domain.JobStateSucceeded {
			cp := *j
			return &cp, false, nil
		}
	}
	s.seq++
	job := &domain.OcrJob{
		ID:           fmt.Sprintf("job-%d", s.seq),
		OwnerID:      ownerID,
		ContentKey:   contentKey,
		State:        domain.JobStateQueued,
		LinkedScanID: linkedScanID,
	}
	s.jobs[job.ID] = job
	cp := *job
	return &cp, true, nil
}

func (s *fakeJobStore) GetByID(ctx context.Context, jobID, ownerID string) (*domain.OcrJob, error) {
	job, ok := s.jobs[jobID]
	if !ok || job.OwnerID != ownerID {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeJobStore) MarkRunning(ctx context.Context, jobID, externalJobID string) error {
	job, ok := s.jobs[jobID]
	if !ok || job.State != domain.JobStateQueued {
		return domain.ErrInvalidTransition
	}
	job.State = domain.JobStateRunning
	job.ExternalJobID = externalJobID
	return nil
}

func (s *fakeJobStore) MarkSucceeded(ctx context.Context, jobID, text string) error {
	job, ok := s.jobs[jobID]
	if !ok || job.State.IsTerminal() {
		return domain.ErrInvalidTransition
	}
	job.State = domain.JobStateSucceeded
	job.ResultText = text
	return nil
}

func (s *fakeJobStore) MarkFailed(ctx context.Context, jobID, message string) error {
	job, ok := s.jobs[jobID]
	if !ok || job.State.IsTerminal() {
		return domain.ErrInvalidTransition
	}
	job.State = domain.JobStateFailed
	job.ErrorMessage = message
	return nil
}

type fakeBlobStore struct {
	objects map[string][]byte
	puts    int
	err     error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (b *fakeBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if b.err != nil {
		return b.err
	}
	b.puts++
	b.objects[key] = data
	return nil
}

type fakeOCRClient struct {
	submitID    string
	submitErr   error
	submitCalls int

	pollResult *ocr.PollResult
	pollErr    error
	pollCalls  int
}

func (c *fakeOCRClient) Submit(ctx context.Context, contentKey string) (string, error) {
	c.submitCalls++
	if c.submitErr != nil {
		return "", c.submitErr
	}
	return c.submitID, nil
}

func (c *fakeOCRClient) Poll(ctx context.Context, externalJobID string) (*ocr.PollResult, error) {
	c.pollCalls++
	if c.pollErr != nil {
		return nil, c.pollErr
	}
	return c.pollResult, nil
}

func newTestJobService() (*OCRJobService, *fakeJobStore, *fakeBlobStore, *fakeOCRClient) {
	store := newFakeJobStore()
	blobs := newFakeBlobStore()
	client := &fakeOCRClient{submitID: "ext-1"}
	return NewOCRJobService(store, blobs, client, nil), store, blobs, client
}

func pdfRequest(ownerID string, data []byte) *JobRequest {
	return &JobRequest{
		OwnerID:   ownerID,
		Data:      data,
		MediaType: "application/pdf",
		Filename:  "resume.pdf",
	}
}

func TestRequestJobPersistsAndSubmits(t *testing.T) {
	svc, store, blobs, client := newTestJobService()

	ticket, err := svc.RequestJob(context.Background(), pdfRequest("user-1", []byte("%PDF scanned")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ticket.State != domain.JobStateRunning {
		t.Errorf("ticket state = %s, want running", ticket.State)
	}
	if ticket.Reused {
		t.Error("fresh job should not be marked reused")
	}
	if blobs.puts != 1 {
		t.Errorf("blob puts = %d, want 1", blobs.puts)
	}
	if _, ok := blobs.objects[ticket.ContentKey]; !ok {
		t.Errorf("document bytes not stored under ticket key %q", ticket.ContentKey)
	}
	if client.submitCalls != 1 {
		t.Errorf("submit calls = %d, want 1", client.submitCalls)
	}

	job := store.jobs[ticket.JobID]
	if job == nil {
		t.Fatal("job not persisted")
	}
	if job.State != domain.JobStateRunning {
		t.Errorf("stored state = %s, want running", job.State)
	}
	if job.ExternalJobID != "ext-1" {
		t.Errorf("external job id = %q, want ext-1", job.ExternalJobID)
	}
}

func TestRequestJobDeduplicatesRepeatUploads(t *testing.T) {
	svc, _, blobs, client := newTestJobService()
	data := []byte("%PDF same scanned resume")

	first, err := svc.RequestJob(context.Background(), pdfRequest("user-1", data))
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := svc.RequestJob(context.Background(), pdfRequest("user-1", data))
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if first.JobID != second.JobID {
		t.Errorf("repeat upload got a new job: %s vs %s", first.JobID, second.JobID)
	}
	if !second.Reused {
		t.Error("second ticket should be marked reused")
	}
	if client.submitCalls != 1 {
		t.Errorf("submit calls = %d, want 1", client.submitCalls)
	}
	if len(blobs.objects) != 1 {
		t.Errorf("stored objects = %d, want 1 (same content key)", len(blobs.objects))
	}
}

func TestRequestJobReusesSucceededResult(t *testing.T) {
	svc, _, _, client := newTestJobService()
	data := []byte("%PDF scanned resume")

	first, err := svc.RequestJob(context.Background(), pdfRequest("user-1", data))
	if err != nil {
		t.Fatalf("first request: %v", err)
	}

	client.pollResult = &ocr.PollResult{State: ocr.PollStateCompleted, Text: "recovered resume text"}
	if _, err := svc.CheckStatus(context.Background(), first.JobID, "user-1"); err != nil {
		t.Fatalf("check status: %v", err)
	}

	second, err := svc.RequestJob(context.Background(), pdfRequest("user-1", data))
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if second.JobID != first.JobID {
		t.Errorf("expected cached job %s, got %s", first.JobID, second.JobID)
	}
	if !second.Reused || second.State != domain.JobStateSucceeded {
		t.Errorf("expected reused succeeded ticket, got %+v", second)
	}
	if client.submitCalls != 1 {
		t.Errorf("submit calls = %d, want 1", client.submitCalls)
	}
}

func TestRequestJobFailedJobDoesNotBlockRetry(t *testing.T) {
	svc, store, _, client := newTestJobService()
	data := []byte("%PDF scanned resume")

	client.submitErr = &domain.SubmissionError{Reason: "HTTP 503"}
	first, err := svc.RequestJob(context.Background(), pdfRequest("user-1", data))

	var subErr *domain.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if first == nil || first.State != domain.JobStateFailed {
		t.Fatalf("expected failed ticket alongside the error, got %+v", first)
	}
	if got := store.jobs[first.JobID].State; got != domain.JobStateFailed {
		t.Errorf("stored state = %s, want failed", got)
	}

	client.submitErr = nil
	second, err := svc.RequestJob(context.Background(), pdfRequest("user-1", data))
	if err != nil {
		t.Fatalf("retry request: %v", err)
	}
	if second.JobID == first.JobID {
		t.Error("failed job should not be reused for a new attempt")
	}
	if second.State != domain.JobStateRunning {
		t.Errorf("retry state = %s, want running", second.State)
	}
	if client.submitCalls != 2 {
		t.Errorf("submit calls = %d, want 2", client.submitCalls)
	}
}

func TestRequestJobOwnersAreIsolated(t *testing.T) {
	svc, _, _, client := newTestJobService()
	data := []byte("%PDF shared template")

	a, err := svc.RequestJob(context.Background(), pdfRequest("user-a", data))
	if err != nil {
		t.Fatalf("owner a: %v", err)
	}
	b, err := svc.RequestJob(context.Background(), pdfRequest("user-b", data))
	if err != nil {
		t.Fatalf("owner b: %v", err)
	}

	if a.JobID == b.JobID {
		t.Error("different owners must not share a job")
	}
	if client.submitCalls != 2 {
		t.Errorf("submit calls = %d, want 2", client.submitCalls)
	}
}

func TestRequestJobEmptyUpload(t *testing.T) {
	svc, store, blobs, _ := newTestJobService()

	_, err := svc.RequestJob(context.Background(), pdfRequest("user-1", nil))
	if !errors.Is(err, domain.ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
	if blobs.puts != 0 || len(store.jobs) != 0 {
		t.Error("empty upload must not touch storage")
	}
}

func TestRequestJobBlobFailureCreatesNoJob(t *testing.T) {
	svc, store, blobs, client := newTestJobService()
	blobs.err = errors.New("bucket unavailable")

	_, err := svc.RequestJob(context.Background(), pdfRequest("user-1", []byte("%PDF")))
	if err == nil {
		t.Fatal("expected error when blob storage fails")
	}
	if len(store.jobs) != 0 {
		t.Error("no job should exist for an unpersisted document")
	}
	if client.submitCalls != 0 {
		t.Error("nothing should be submitted when persistence fails")
	}
}

func TestCheckStatusOwnerScoped(t *testing.T) {
	svc, _, _, _ := newTestJobService()

	ticket, err := svc.RequestJob(context.Background(), pdfRequest("user-a", []byte("%PDF")))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := svc.CheckStatus(context.Background(), ticket.JobID, "user-b"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("cross-owner lookup: expected ErrJobNotFound, got %v", err)
	}
	if _, err := svc.CheckStatus(context.Background(), "no-such-job", "user-a"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("unknown id: expected ErrJobNotFound, got %v", err)
	}
}

func TestCheckStatusQueuedDoesNotPoll(t *testing.T) {
	svc, store, _, client := newTestJobService()
	store.jobs["job-q"] = &domain.OcrJob{
		ID: "job-q", OwnerID: "user-1", ContentKey: "documents/user-1/k.pdf",
		State: domain.JobStateQueued,
	}

	status, err := svc.CheckStatus(context.Background(), "job-q", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State != domain.JobStateRunning {
		t.Errorf("queued job reported as %s, want running", status.State)
	}
	if client.pollCalls != 0 {
		t.Errorf("poll calls = %d, want 0", client.pollCalls)
	}
}

func TestCheckStatusTerminalAnswersFromStore(t *testing.T) {
	svc, store, _, client := newTestJobService()
	store.jobs["job-s"] = &domain.OcrJob{
		ID: "job-s", OwnerID: "user-1", ContentKey: "documents/user-1/k.pdf",
		State: domain.JobStateSucceeded, ResultText: "cached text",
	}
	store.jobs["job-f"] = &domain.OcrJob{
		ID: "job-f", OwnerID: "user-1", ContentKey: "documents/user-1/k2.pdf",
		State: domain.JobStateFailed, ErrorMessage: "unreadable scan",
	}

	status, err := svc.CheckStatus(context.Background(), "job-s", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State != domain.JobStateSucceeded || status.Text != "cached text" {
		t.Errorf("got %+v, want succeeded with cached text", status)
	}

	status, err = svc.CheckStatus(context.Background(), "job-f", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State != domain.JobStateFailed || status.Error != "unreadable scan" {
		t.Errorf("got %+v, want failed with stored message", status)
	}

	if client.pollCalls != 0 {
		t.Errorf("poll calls = %d, want 0 for terminal jobs", client.pollCalls)
	}
}

func TestCheckStatusPersistsCompletion(t *testing.T) {
	svc, store, _, client := newTestJobService()

	ticket, err := svc.RequestJob(context.Background(), pdfRequest("user-1", []byte("%PDF")))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	client.pollResult = &ocr.PollResult{State: ocr.PollStateCompleted, Text: "ocr text"}
	status, err := svc.CheckStatus(context.Background(), ticket.JobID, "user-1")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if status.State != domain.JobStateSucceeded || status.Text != "ocr text" {
		t.Errorf("got %+v, want succeeded with text", status)
	}
	if got := store.jobs[ticket.JobID]; got.State != domain.JobStateSucceeded || got.ResultText != "ocr text" {
		t.Errorf("stored job = %+v, want succeeded with text", got)
	}

	// Terminal now: further checks answer from the store.
	if _, err := svc.CheckStatus(context.Background(), ticket.JobID, "user-1"); err != nil {
		t.Fatalf("second check: %v", err)
	}
	if client.pollCalls != 1 {
		t.Errorf("poll calls = %d, want 1", client.pollCalls)
	}
}

func TestCheckStatusPersistsFailure(t *testing.T) {
	svc, store, _, client := newTestJobService()

	ticket, err := svc.RequestJob(context.Background(), pdfRequest("user-1", []byte("%PDF")))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	client.pollResult = &ocr.PollResult{State: ocr.PollStateFailed, FailureReason: "document too blurry"}
	status, err := svc.CheckStatus(context.Background(), ticket.JobID, "user-1")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if status.State != domain.JobStateFailed || status.Error != "document too blurry" {
		t.Errorf("got %+v, want failed with reason", status)
	}
	if got := store.jobs[ticket.JobID]; got.State != domain.JobStateFailed || got.ErrorMessage != "document too blurry" {
		t.Errorf("stored job = %+v, want failed with reason", got)
	}
}

func TestCheckStatusTransientPollErrorLeavesStateAlone(t *testing.T) {
	svc, store, _, client := newTestJobService()

	ticket, err := svc.RequestJob(context.Background(), pdfRequest("user-1", []byte("%PDF")))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	client.pollErr = &domain.PollError{Transient: true, Err: errors.New("HTTP 503")}
	status, err := svc.CheckStatus(context.Background(), ticket.JobID, "user-1")
	if err != nil {
		t.Fatalf("transient poll error should not surface: %v", err)
	}
	if status.State != domain.JobStateRunning {
		t.Errorf("got %s, want running while the service recovers", status.State)
	}
	if got := store.jobs[ticket.JobID].State; got != domain.JobStateRunning {
		t.Errorf("stored state = %s, want running (unchanged)", got)
	}
}

func TestCheckStatusNonRetryablePollError(t *testing.T) {
	svc, store, _, client := newTestJobService()

	ticket, err := svc.RequestJob(context.Background(), pdfRequest("user-1", []byte("%PDF")))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	client.pollErr = &domain.PollError{Transient: false, Err: errors.New("HTTP 404")}
	_, err = svc.CheckStatus(context.Background(), ticket.JobID, "user-1")
	var pollErr *domain.PollError
	if !errors.As(err, &pollErr) {
		t.Fatalf("expected PollError, got %v", err)
	}
	if got := store.jobs[ticket.JobID].State; got != domain.JobStateRunning {
		t.Errorf("stored state = %s, want running (unchanged)", got)
	}
}

// staleReadStore serves a stale running view of a terminal job for the
// first n reads, mimicking a concurrent poll finishing between GetByID and
// the terminal transition.
type staleReadStore struct {
	*fakeJobStore
	staleReads int
}

func (s *staleReadStore) GetByID(ctx context.Context, jobID, ownerID string) (*domain.OcrJob, error) {
	job, err := s.fakeJobStore.GetByID(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	if s.staleReads > 0 && job.State.IsTerminal() {
		s.staleReads--
		job.State = domain.JobStateRunning
		job.ResultText = ""
		job.ErrorMessage = ""
	}
	return job, nil
}

func TestCheckStatusLostTerminalRaceReturnsWinner(t *testing.T) {
	inner := newFakeJobStore()
	store := &staleReadStore{fakeJobStore: inner}
	blobs := newFakeBlobStore()
	client := &fakeOCRClient{submitID: "ext-1"}
	svc := NewOCRJobService(store, blobs, client, nil)
	ctx := context.Background()

	job, _, err := inner.CreateIfAbsent(ctx, "user-1", "documents/user-1/a.pdf", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := inner.MarkRunning(ctx, job.ID, "ext-1"); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	// A concurrent poll already persisted the outcome.
	if err := inner.MarkSucceeded(ctx, job.ID, "winner text"); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	// This poller still saw the job as running and gets a conflicting
	// answer from the external service.
	store.staleReads = 1
	client.pollResult = &ocr.PollResult{State: ocr.PollStateCompleted, Text: "loser text"}

	status, err := svc.CheckStatus(ctx, job.ID, "user-1")
	if err != nil {
		t.Fatalf("losing the transition race must not surface an error: %v", err)
	}
	if status.State != domain.JobStateSucceeded || status.Text != "winner text" {
		t.Errorf("got %+v, want the winner's persisted outcome", status)
	}
	if got := inner.jobs[job.ID].ResultText; got != "winner text" {
		t.Errorf("stored text = %q, terminal result must be immutable", got)
	}

	// Same race on the failure path.
	store.staleReads = 1
	client.pollResult = &ocr.PollResult{State: ocr.PollStateFailed, FailureReason: "late failure"}
	status, err = svc.CheckStatus(ctx, job.ID, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State != domain.JobStateSucceeded || status.Text != "winner text" {
		t.Errorf("got %+v, want the winner's persisted outcome", status)
	}
}

func TestBuildContentKey(t *testing.T) {
	data := []byte("%PDF resume bytes")

	k1 := buildContentKey("user-1", "Resume.PDF", data)
	k2 := buildContentKey("user-1", "Resume.PDF", data)
	if k1 != k2 {
		t.Errorf("same content produced different keys: %s vs %s", k1, k2)
	}

	k3 := buildContentKey("user-1", "Resume.PDF", []byte("different bytes"))
	if k1 == k3 {
		t.Error("different content should produce different keys")
	}

	k4 := buildContentKey("user-2", "Resume.PDF", data)
	if k1 == k4 {
		t.Error("keys must be owner-scoped")
	}

	if !strings.HasPrefix(k1, "documents/user-1/") {
		t.Errorf("key %q should be under the owner's prefix", k1)
	}
	if !strings.HasSuffix(k1, ".pdf") {
		t.Errorf("key %q should keep a lowercased extension", k1)
	}
}
