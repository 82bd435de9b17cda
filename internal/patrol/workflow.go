package patrol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/securepatrol-id/securepatrol-backend/internal/classify"
	"github.com/securepatrol-id/securepatrol-backend/internal/evidence"
	"github.com/securepatrol-id/securepatrol-backend/pkg/enums"
	pkgerrors "github.com/securepatrol-id/securepatrol-backend/pkg/errors"
	"github.com/securepatrol-id/securepatrol-backend/pkg/geo"
	"github.com/securepatrol-id/securepatrol-backend/pkg/logger"
	"github.com/securepatrol-id/securepatrol-backend/pkg/models"
)

// sessionSource resolves the identity behind a submission attempt.
type sessionSource interface {
	Current() *models.UserAccount
}

// checkpointResolver resolves a checkpoint id to its catalog entry at submit
// time.
type checkpointResolver interface {
	FindByID(ctx context.Context, id string) (models.Location, error)
}

// logAppender persists the finished patrol record.
type logAppender interface {
	Append(ctx context.Context, entry models.PatrolLog) (models.PatrolLog, error)
}

// Workflow drives one submission attempt: a live geofence watch, staged
// evidence, an optional classification pass and the final gated submit. One
// workflow instance covers one attempt; Close tears the watch down on every
// exit path.
type Workflow struct {
	mu sync.Mutex

	state      enums.SubmissionState
	lastSample *geo.Sample
	lastResult *geo.Result
	watchFault error

	evidence *evidence.Image
	analysis *models.ClassificationResult

	zone       geo.Zone
	watcher    geo.Watcher
	processor  *evidence.Processor
	classifier classify.Classifier
	session    sessionSource
	locations  checkpointResolver
	logs       logAppender
	logg       *logger.Logger
	now        func() time.Time

	cancelWatch context.CancelFunc
	watchDone   chan struct{}
}

// WorkflowParams bundles the dependencies required to build a workflow.
type WorkflowParams struct {
	Zone       geo.Zone
	Watcher    geo.Watcher
	Processor  *evidence.Processor
	Classifier classify.Classifier
	Session    sessionSource
	Locations  checkpointResolver
	Logs       logAppender
	Logger     *logger.Logger

	// Now overrides the submission clock. Tests only.
	Now func() time.Time
}

// NewWorkflow constructs a workflow in the locating state. Call Start to
// begin sampling.
func NewWorkflow(params WorkflowParams) (*Workflow, error) {
	if params.Watcher == nil {
		return nil, fmt.Errorf("geolocation watcher is required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("evidence processor is required")
	}
	if params.Session == nil {
		return nil, fmt.Errorf("session source is required")
	}
	if params.Locations == nil {
		return nil, fmt.Errorf("checkpoint resolver is required")
	}
	if params.Logs == nil {
		return nil, fmt.Errorf("log appender is required")
	}
	classifier := params.Classifier
	if classifier == nil {
		classifier = classify.Disabled{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Workflow{
		state:      enums.SubmissionStateLocating,
		zone:       params.Zone,
		watcher:    params.Watcher,
		processor:  params.Processor,
		classifier: classifier,
		session:    params.Session,
		locations:  params.Locations,
		logs:       params.Logs,
		logg:       params.Logger,
		now:        now,
	}, nil
}

// Start begins the live geolocation watch. Every delivered sample re-runs the
// geofence evaluation, so validity tracks the operator's movement instead of
// a stale one-shot read. A provider refusal surfaces immediately.
func (w *Workflow) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watchDone != nil {
		return nil
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	samples, faults, err := w.watcher.Watch(watchCtx)
	if err != nil {
		cancel()
		return pkgerrors.Wrap(pkgerrors.CodeLocationUnavailable, err, "start geolocation watch")
	}

	w.cancelWatch = cancel
	w.watchDone = make(chan struct{})
	go w.consumeSamples(watchCtx, samples, faults)
	return nil
}

// consumeSamples exits on its own cancellation, never relying on the watcher
// to close its channels; Close must not depend on provider cooperation.
func (w *Workflow) consumeSamples(ctx context.Context, samples <-chan geo.Sample, faults <-chan error) {
	defer close(w.watchDone)
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			w.applySample(sample)
		case err, ok := <-faults:
			if !ok {
				return
			}
			if err != nil {
				w.applyWatchFault(err)
				return
			}
		}
	}
}

func (w *Workflow) applySample(sample geo.Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := w.zone.Evaluate(sample.Point)
	w.lastSample = &sample
	w.lastResult = &result
	w.watchFault = nil

	// Validity tracks the stream only while the attempt is still in a
	// location-driven state. A staged or classified attempt keeps its state;
	// the submit path re-validates against the latest sample anyway.
	switch w.state {
	case enums.SubmissionStateLocating, enums.SubmissionStateLocationValid, enums.SubmissionStateLocationInvalid:
		if result.WithinZone {
			w.state = enums.SubmissionStateLocationValid
		} else {
			w.state = enums.SubmissionStateLocationInvalid
		}
	}
}

func (w *Workflow) applyWatchFault(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watchFault = err
	if w.logg != nil {
		w.logg.Warn(context.Background(), fmt.Sprintf("geolocation watch failed: %v", err))
	}
}

// State returns the attempt's current state.
func (w *Workflow) State() enums.SubmissionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// LastEvaluation returns the most recent sample and its geofence verdict.
// The boolean is false until the first sample arrives.
func (w *Workflow) LastEvaluation() (geo.Sample, geo.Result, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastSample == nil || w.lastResult == nil {
		return geo.Sample{}, geo.Result{}, false
	}
	return *w.lastSample, *w.lastResult, true
}

// CaptureEvidence validates and stages exactly one image for the attempt.
// Re-capturing replaces the staged image and discards any prior verdict. A
// rejected format stages nothing.
func (w *Workflow) CaptureEvidence(_ context.Context, data []byte) (evidence.Image, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case enums.SubmissionStateSubmitting:
		return evidence.Image{}, pkgerrors.New(pkgerrors.CodeValidation, "submission already in flight")
	case enums.SubmissionStateSubmitted:
		return evidence.Image{}, pkgerrors.New(pkgerrors.CodeValidation, "submission already completed")
	}

	img, err := w.processor.Process(data)
	if err != nil {
		return evidence.Image{}, err
	}

	w.evidence = &img
	w.analysis = nil
	w.state = enums.SubmissionStateEvidenceCaptured
	return img, nil
}

// Classify runs the optional scene classification over the staged evidence.
// A classifier fault never fails the attempt: the workflow absorbs it into a
// degraded attention verdict and keeps going.
func (w *Workflow) Classify(ctx context.Context) models.ClassificationResult {
	w.mu.Lock()
	if w.evidence == nil {
		w.mu.Unlock()
		verdict := classify.Degraded(fmt.Errorf("no evidence staged"))
		return verdict
	}
	frame := w.evidence.Data
	w.state = enums.SubmissionStateClassifying
	w.mu.Unlock()

	verdict, err := w.classifier.Classify(ctx, frame)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		verdict = classify.Degraded(err)
		w.state = enums.SubmissionStateClassificationFailed
		if w.logg != nil {
			w.logg.Warn(ctx, fmt.Sprintf("classification degraded: %v", err))
		}
	} else {
		w.state = enums.SubmissionStateClassified
	}
	w.analysis = &verdict
	return verdict
}

// Submit re-validates the geofence gate against the latest sample and, when
// it holds, persists the immutable patrol record. A storage fault moves the
// attempt to the submit-failed state; the staged evidence and latest sample
// survive, so re-invoking Submit retries without re-capture.
func (w *Workflow) Submit(ctx context.Context, locationID, notes string) (models.PatrolLog, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case enums.SubmissionStateSubmitting:
		return models.PatrolLog{}, pkgerrors.New(pkgerrors.CodeValidation, "submission already in flight")
	case enums.SubmissionStateSubmitted:
		return models.PatrolLog{}, pkgerrors.New(pkgerrors.CodeValidation, "submission already completed")
	}
	if w.evidence == nil {
		return models.PatrolLog{}, pkgerrors.New(pkgerrors.CodeValidation, "evidence image is required")
	}

	if w.lastSample == nil {
		if w.watchFault != nil {
			return models.PatrolLog{}, pkgerrors.Wrap(pkgerrors.CodeLocationUnavailable, w.watchFault, "no position available")
		}
		return models.PatrolLog{}, pkgerrors.New(pkgerrors.CodeLocationUnavailable, "no position sample received yet")
	}

	// The hard gate. Samples can change between render and click, so the
	// verdict is recomputed here instead of trusting a displayed flag.
	result := w.zone.Evaluate(w.lastSample.Point)
	w.lastResult = &result
	if !result.WithinZone {
		w.state = enums.SubmissionStateLocationInvalid
		return models.PatrolLog{}, pkgerrors.New(
			pkgerrors.CodeLocationInvalid,
			fmt.Sprintf("position is %.0f m from the zone center, outside the %.0f m radius", result.DistanceMeters, w.zone.RadiusMeters),
		)
	}

	account := w.session.Current()
	if account == nil {
		return models.PatrolLog{}, pkgerrors.New(pkgerrors.CodeForbidden, "sign in to submit a patrol report")
	}
	if account.Status != enums.AccountStatusActive {
		return models.PatrolLog{}, pkgerrors.New(pkgerrors.CodeForbidden, "account is awaiting approval")
	}

	w.state = enums.SubmissionStateSubmitting

	entry := models.PatrolLog{
		ID:            uuid.NewString(),
		SubmitterID:   account.ID,
		SubmitterName: displayName(account.Name),
		LocationID:    locationID,
		LocationName:  w.resolveCheckpointName(ctx, locationID),
		Timestamp:     w.now(),
		ImageRef:      w.evidence.DataURL(),
		Analysis:      w.analysis,
		Notes:         notes,
		Coordinates: &models.Coordinates{
			Latitude:  w.lastSample.Latitude,
			Longitude: w.lastSample.Longitude,
		},
	}

	if _, err := w.logs.Append(ctx, entry); err != nil {
		w.state = enums.SubmissionStateSubmitFailed
		return models.PatrolLog{}, pkgerrors.Wrap(pkgerrors.CodeSubmitFailed, err, "persist patrol record")
	}

	w.state = enums.SubmissionStateSubmitted
	w.teardownWatchLocked()

	if w.logg != nil {
		w.logg.Info(w.logg.WithUserID(ctx, account.ID), fmt.Sprintf("patrol report submitted at %q", entry.LocationName))
	}
	return entry, nil
}

// resolveCheckpointName falls back to "Unknown" instead of failing: the
// referenced checkpoint may have been deleted while this attempt was open.
func (w *Workflow) resolveCheckpointName(ctx context.Context, locationID string) string {
	loc, err := w.locations.FindByID(ctx, locationID)
	if err != nil {
		return "Unknown"
	}
	return displayName(loc.Name)
}

func displayName(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}

// Close tears the geolocation watch down. It must run on every exit path,
// success, cancel or navigation, and is safe to call more than once.
func (w *Workflow) Close() {
	w.mu.Lock()
	done := w.watchDone
	w.teardownWatchLocked()
	w.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (w *Workflow) teardownWatchLocked() {
	if w.cancelWatch != nil {
		w.cancelWatch()
		w.cancelWatch = nil
	}
}
