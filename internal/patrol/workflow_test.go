package patrol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/securepatrol-id/securepatrol-backend/internal/evidence"
	"github.com/securepatrol-id/securepatrol-backend/pkg/config"
	"github.com/securepatrol-id/securepatrol-backend/pkg/enums"
	pkgerrors "github.com/securepatrol-id/securepatrol-backend/pkg/errors"
	"github.com/securepatrol-id/securepatrol-backend/pkg/geo"
	"github.com/securepatrol-id/securepatrol-backend/pkg/models"
)

var testZone = geo.Zone{
	Center:       geo.Point{Latitude: -7.3643555, Longitude: 108.5324731},
	RadiusMeters: 500,
}

// insideZone is the zone center itself; outsideZone is roughly 15 km away.
var (
	insideZone  = geo.Point{Latitude: -7.3643555, Longitude: 108.5324731}
	outsideZone = geo.Point{Latitude: -7.5, Longitude: 108.5324731}
)

type manualWatcher struct {
	ctx      context.Context
	samples  chan geo.Sample
	faults   chan error
	startErr error
}

func newManualWatcher() *manualWatcher {
	return &manualWatcher{
		ctx:     context.Background(),
		samples: make(chan geo.Sample),
		faults:  make(chan error, 1),
	}
}

func (m *manualWatcher) Watch(ctx context.Context) (<-chan geo.Sample, <-chan error, error) {
	if m.startErr != nil {
		return nil, nil, m.startErr
	}
	m.ctx = ctx
	return m.samples, m.faults, nil
}

func (m *manualWatcher) push(p geo.Point) {
	select {
	case m.samples <- geo.Sample{Point: p, At: time.Now()}:
	case <-m.ctx.Done():
	}
}

type sessionStub struct {
	account *models.UserAccount
}

func (s *sessionStub) Current() *models.UserAccount {
	if s.account == nil {
		return nil
	}
	cp := *s.account
	return &cp
}

type checkpointStub struct {
	byID map[string]models.Location
}

func (c *checkpointStub) FindByID(_ context.Context, id string) (models.Location, error) {
	if loc, ok := c.byID[id]; ok {
		return loc, nil
	}
	return models.Location{}, pkgerrors.New(pkgerrors.CodeRecordNotFound, "checkpoint not found")
}

type logsStub struct {
	entries  []models.PatrolLog
	failNext error
}

func (l *logsStub) Append(_ context.Context, entry models.PatrolLog) (models.PatrolLog, error) {
	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return models.PatrolLog{}, err
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

type classifierStub struct {
	verdict models.ClassificationResult
	err     error
}

func (c *classifierStub) Classify(context.Context, []byte) (models.ClassificationResult, error) {
	if c.err != nil {
		return models.ClassificationResult{}, c.err
	}
	return c.verdict, nil
}

func activeGuard() *models.UserAccount {
	return &models.UserAccount{
		ID:     "guard-1",
		Name:   "Budi Santoso",
		Email:  "guard@example.com",
		Role:   enums.AccountRoleUser,
		Status: enums.AccountStatusActive,
	}
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32)), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

type workflowFixture struct {
	workflow *Workflow
	watcher  *manualWatcher
	session  *sessionStub
	logs     *logsStub
}

func newFixture(t *testing.T, classifier *classifierStub) *workflowFixture {
	t.Helper()
	watcher := newManualWatcher()
	session := &sessionStub{account: activeGuard()}
	logs := &logsStub{}

	params := WorkflowParams{
		Zone:      testZone,
		Watcher:   watcher,
		Processor: evidence.NewProcessor(config.MediaConfig{ImageMaxWidth: 1024, ImageQuality: 70}),
		Session:   session,
		Locations: &checkpointStub{byID: map[string]models.Location{
			"L001": {ID: "L001", Name: "Lobby Utama", Floor: "Lantai Dasar"},
		}},
		Logs: logs,
	}
	if classifier != nil {
		params.Classifier = classifier
	}

	w, err := NewWorkflow(params)
	if err != nil {
		t.Fatalf("new workflow: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(w.Close)

	return &workflowFixture{workflow: w, watcher: watcher, session: session, logs: logs}
}

func waitForState(t *testing.T, w *Workflow, want enums.SubmissionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state never reached %s, stuck at %s", want, w.State())
}

func TestWorkflowTracksValidityLive(t *testing.T) {
	f := newFixture(t, nil)

	if got := f.workflow.State(); got != enums.SubmissionStateLocating {
		t.Fatalf("expected locating before the first sample, got %s", got)
	}

	f.watcher.push(insideZone)
	waitForState(t, f.workflow, enums.SubmissionStateLocationValid)

	f.watcher.push(outsideZone)
	waitForState(t, f.workflow, enums.SubmissionStateLocationInvalid)

	f.watcher.push(insideZone)
	waitForState(t, f.workflow, enums.SubmissionStateLocationValid)

	_, result, ok := f.workflow.LastEvaluation()
	if !ok || !result.WithinZone {
		t.Fatalf("expected an in-zone evaluation, got %+v ok=%v", result, ok)
	}
}

func TestSubmitRefusedOutsideZone(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.watcher.push(insideZone)
	waitForState(t, f.workflow, enums.SubmissionStateLocationValid)
	if _, err := f.workflow.CaptureEvidence(ctx, testJPEG(t)); err != nil {
		t.Fatalf("capture: %v", err)
	}

	// The operator walks out of the zone between capture and submit.
	f.watcher.push(outsideZone)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, result, ok := f.workflow.LastEvaluation(); ok && !result.WithinZone {
			break
		}
		time.Sleep(time.Millisecond)
	}

	_, err := f.workflow.Submit(ctx, "L001", "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeLocationInvalid) {
		t.Fatalf("expected location invalid, got %v", err)
	}
	if len(f.logs.entries) != 0 {
		t.Fatalf("off-zone submit must not create a record, got %d", len(f.logs.entries))
	}
	if got := f.workflow.State(); got != enums.SubmissionStateLocationInvalid {
		t.Fatalf("expected location invalid state, got %s", got)
	}
}

func TestSubmitCreatesDenormalizedRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.watcher.push(insideZone)
	waitForState(t, f.workflow, enums.SubmissionStateLocationValid)
	if _, err := f.workflow.CaptureEvidence(ctx, testJPEG(t)); err != nil {
		t.Fatalf("capture: %v", err)
	}

	entry, err := f.workflow.Submit(ctx, "L001", "all clear")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(f.logs.entries) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(f.logs.entries))
	}
	if entry.SubmitterName != "Budi Santoso" || entry.LocationName != "Lobby Utama" {
		t.Fatalf("expected denormalized names, got %q / %q", entry.SubmitterName, entry.LocationName)
	}
	if entry.Coordinates == nil || entry.Coordinates.Latitude != insideZone.Latitude {
		t.Fatalf("expected captured coordinates, got %+v", entry.Coordinates)
	}
	if entry.Notes != "all clear" {
		t.Fatalf("unexpected notes %q", entry.Notes)
	}
	if got := f.workflow.State(); got != enums.SubmissionStateSubmitted {
		t.Fatalf("expected submitted state, got %s", got)
	}
}

func TestSubmitFallsBackToUnknownNames(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.session.account.Name = ""

	f.watcher.push(insideZone)
	waitForState(t, f.workflow, enums.SubmissionStateLocationValid)
	if _, err := f.workflow.CaptureEvidence(ctx, testJPEG(t)); err != nil {
		t.Fatalf("capture: %v", err)
	}

	// The checkpoint was deleted while this attempt was open.
	entry, err := f.workflow.Submit(ctx, "deleted-checkpoint", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if entry.LocationName != "Unknown" || entry.SubmitterName != "Unknown" {
		t.Fatalf("expected Unknown fallbacks, got %q / %q", entry.LocationName, entry.SubmitterName)
	}
}

func TestPendingAccountCannotSubmit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.session.account.Status = enums.AccountStatusPending

	f.watcher.push(insideZone)
	waitForState(t, f.workflow, enums.SubmissionStateLocationValid)
	if _, err := f.workflow.CaptureEvidence(ctx, testJPEG(t)); err != nil {
		t.Fatalf("capture: %v", err)
	}

	_, err := f.workflow.Submit(ctx, "L001", "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for a pending account, got %v", err)
	}
	if len(f.logs.entries) != 0 {
		t.Fatal("pending account must not create a record")
	}

	// Approval flips the gate for the same credential.
	f.session.account.Status = enums.AccountStatusActive
	if _, err := f.workflow.Submit(ctx, "L001", ""); err != nil {
		t.Fatalf("submit after approval: %v", err)
	}
}

func TestDegradedClassificationStillSubmits(t *testing.T) {
	f := newFixture(t, &classifierStub{err: errors.New("api quota exceeded")})
	ctx := context.Background()

	f.watcher.push(insideZone)
	waitForState(t, f.workflow, enums.SubmissionStateLocationValid)
	if _, err := f.workflow.CaptureEvidence(ctx, testJPEG(t)); err != nil {
		t.Fatalf("capture: %v", err)
	}

	verdict := f.workflow.Classify(ctx)
	if verdict.Status != enums.PatrolStatusAttention {
		t.Fatalf("degraded verdict must flag attention, got %s", verdict.Status)
	}
	if verdict.Summary == "" {
		t.Fatal("degraded verdict must carry a diagnostic summary")
	}
	if got := f.workflow.State(); got != enums.SubmissionStateClassificationFailed {
		t.Fatalf("expected classification failed state, got %s", got)
	}

	entry, err := f.workflow.Submit(ctx, "L001", "")
	if err != nil {
		t.Fatalf("classifier faults must never block submission: %v", err)
	}
	if entry.Analysis == nil || entry.Analysis.Status != enums.PatrolStatusAttention {
		t.Fatalf("expected the degraded verdict on the record, got %+v", entry.Analysis)
	}
}

func TestSuccessfulClassification(t *testing.T) {
	f := newFixture(t, &classifierStub{verdict: models.ClassificationResult{
		Status:        enums.PatrolStatusSecure,
		Summary:       "Area clear.",
		ItemsDetected: []string{"desk"},
	}})
	ctx := context.Background()

	f.watcher.push(insideZone)
	waitForState(t, f.workflow, enums.SubmissionStateLocationValid)
	if _, err := f.workflow.CaptureEvidence(ctx, testJPEG(t)); err != nil {
		t.Fatalf("capture: %v", err)
	}

	verdict := f.workflow.Classify(ctx)
	if verdict.Status != enums.PatrolStatusSecure {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
	if got := f.workflow.State(); got != enums.SubmissionStateClassified {
		t.Fatalf("expected classified state, got %s", got)
	}
}

func TestSubmitFailureIsRetryable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.watcher.push(insideZone)
	waitForState(t, f.workflow, enums.SubmissionStateLocationValid)
	if _, err := f.workflow.CaptureEvidence(ctx, testJPEG(t)); err != nil {
		t.Fatalf("capture: %v", err)
	}

	f.logs.failNext = errors.New("partition capacity exceeded")
	_, err := f.workflow.Submit(ctx, "L001", "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeSubmitFailed) {
		t.Fatalf("expected submit failed, got %v", err)
	}
	if !pkgerrors.Retryable(err) {
		t.Fatal("submit failures must be retryable")
	}
	if got := f.workflow.State(); got != enums.SubmissionStateSubmitFailed {
		t.Fatalf("expected submit failed state, got %s", got)
	}

	// Retry without re-capturing evidence or re-sampling location.
	entry, err := f.workflow.Submit(ctx, "L001", "")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(f.logs.entries) != 1 || f.logs.entries[0].ID != entry.ID {
		t.Fatalf("expected exactly one record after retry, got %d", len(f.logs.entries))
	}
}

func TestUnsupportedEvidenceNotStaged(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.watcher.push(insideZone)
	waitForState(t, f.workflow, enums.SubmissionStateLocationValid)

	_, err := f.workflow.CaptureEvidence(ctx, []byte("not an image"))
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if got := f.workflow.State(); got != enums.SubmissionStateLocationValid {
		t.Fatalf("rejected capture must not change state, got %s", got)
	}

	_, err = f.workflow.Submit(ctx, "L001", "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error without staged evidence, got %v", err)
	}
}

func TestSubmitWithoutSampleIsUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.workflow.CaptureEvidence(ctx, testJPEG(t)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	_, err := f.workflow.Submit(ctx, "L001", "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeLocationUnavailable) {
		t.Fatalf("expected location unavailable before the first sample, got %v", err)
	}
}

func TestStartSurfacesProviderRefusal(t *testing.T) {
	watcher := newManualWatcher()
	watcher.startErr = fmt.Errorf("permission denied")

	w, err := NewWorkflow(WorkflowParams{
		Zone:      testZone,
		Watcher:   watcher,
		Processor: evidence.NewProcessor(config.MediaConfig{}),
		Session:   &sessionStub{account: activeGuard()},
		Locations: &checkpointStub{},
		Logs:      &logsStub{},
	})
	if err != nil {
		t.Fatalf("new workflow: %v", err)
	}
	defer w.Close()

	if err := w.Start(context.Background()); !pkgerrors.IsCode(err, pkgerrors.CodeLocationUnavailable) {
		t.Fatalf("expected location unavailable, got %v", err)
	}
}

func TestCloseTearsDownWatch(t *testing.T) {
	watcher := &geo.StaticWatcher{Position: insideZone, Interval: time.Millisecond}

	w, err := NewWorkflow(WorkflowParams{
		Zone:      testZone,
		Watcher:   watcher,
		Processor: evidence.NewProcessor(config.MediaConfig{}),
		Session:   &sessionStub{account: activeGuard()},
		Locations: &checkpointStub{},
		Logs:      &logsStub{},
	})
	if err != nil {
		t.Fatalf("new workflow: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, w, enums.SubmissionStateLocationValid)

	w.Close()
	w.Close() // idempotent

	_, result, ok := w.LastEvaluation()
	if !ok || !result.WithinZone {
		t.Fatalf("expected a final in-zone evaluation, got ok=%v %+v", ok, result)
	}
}

// stubbornWatcher ignores cancellation and never closes its channels,
// standing in for a provider that stops cooperating mid-watch.
type stubbornWatcher struct{}

func (stubbornWatcher) Watch(context.Context) (<-chan geo.Sample, <-chan error, error) {
	return make(chan geo.Sample), make(chan error), nil
}

func TestCloseDoesNotDependOnWatcherCooperation(t *testing.T) {
	w, err := NewWorkflow(WorkflowParams{
		Zone:      testZone,
		Watcher:   stubbornWatcher{},
		Processor: evidence.NewProcessor(config.MediaConfig{}),
		Session:   &sessionStub{account: activeGuard()},
		Locations: &checkpointStub{},
		Logs:      &logsStub{},
	})
	if err != nil {
		t.Fatalf("new workflow: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		w.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close must return even when the watcher never closes its channels")
	}
}
