package enums

// SubmissionState tracks a single patrol submission attempt through the
// geofence gate, evidence capture, optional classification and persistence.
type SubmissionState string

const (
	SubmissionStateLocating             SubmissionState = "locating"
	SubmissionStateLocationValid        SubmissionState = "location_valid"
	SubmissionStateLocationInvalid      SubmissionState = "location_invalid"
	SubmissionStateEvidenceCaptured     SubmissionState = "evidence_captured"
	SubmissionStateClassifying          SubmissionState = "classifying"
	SubmissionStateClassified           SubmissionState = "classified"
	SubmissionStateClassificationFailed SubmissionState = "classification_failed"
	SubmissionStateSubmitting           SubmissionState = "submitting"
	SubmissionStateSubmitted            SubmissionState = "submitted"
	SubmissionStateSubmitFailed         SubmissionState = "submit_failed"
)

// String returns the literal string for the state.
func (s SubmissionState) String() string {
	return string(s)
}

// Terminal reports whether the submission reached its final state.
func (s SubmissionState) Terminal() bool {
	return s == SubmissionStateSubmitted
}
