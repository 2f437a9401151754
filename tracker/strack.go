package tracker

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// STrackState represents the lifecycle state of a tracked object
type STrackState int

const (
	// Object is newly detected and not yet inserted into any tracked set
	New STrackState = 0
	// Object is currently being tracked
	Tracked STrackState = 1
	// Object went unmatched but is still within the recovery window
	Lost STrackState = 2
	// Object has been removed, terminal
	Removed STrackState = 3
)

// STrack represents a single track of an object.  It carries two ids: the
// internal id keys all set and deduplication operations, the external id is
// the one reported to callers.  Both are allocated from the tracker's
// counters and are never reused
type STrack struct {
	// Shared constant-parameter Kalman filter used for motion estimation
	kalmanFilter *KalmanFilter
	// Allocator for internal ids
	internalIDs *IDCounter
	// Allocator for externally reported ids
	externalIDs *IDCounter
	// Mean state vector, exclusively owned by this track
	mean StateMean
	// Covariance matrix, exclusively owned by this track
	covariance StateCov
	// Bounding box of the tracked object
	rect Rect
	// Current lifecycle state
	state STrackState
	// Whether the track has ever been confirmed visible
	isActivated bool
	// Latest associated detection score
	score float32
	// Internal id used for set operations
	internalID int
	// External id reported to callers
	externalID int
	// Frame the track was last updated at
	frameID int
	// Frame the track was first created at
	startFrameID int
	// Consecutive matched frame streak since activation
	trackletLen int
	// Consecutive matched frames required before the track is confirmed
	requiredFrames int
}

// newSTrack creates a track in New state from a detection box.  The id
// counters are handed in explicitly so multiple tracker instances never
// cross-talk and tests stay deterministic
func newSTrack(rect Rect, score float32, requiredFrames int,
	kalmanFilter *KalmanFilter, internalIDs, externalIDs *IDCounter) *STrack {

	return &STrack{
		kalmanFilter:   kalmanFilter,
		internalIDs:    internalIDs,
		externalIDs:    externalIDs,
		mean:           make(StateMean, 8),
		covariance:     StateCov{mat.NewDense(8, 8, nil)},
		rect:           rect,
		state:          New,
		isActivated:    false,
		score:          score,
		internalID:     NoID,
		externalID:     NoID,
		requiredFrames: requiredFrames,
	}
}

// GetRect returns the bounding box of the tracked object
func (s *STrack) GetRect() *Rect {
	return &s.rect
}

// GetSTrackState returns the current lifecycle state of the track
func (s *STrack) GetSTrackState() STrackState {
	return s.state
}

// IsActivated returns whether the track has been confirmed visible
func (s *STrack) IsActivated() bool {
	return s.isActivated
}

// GetScore returns the latest detection score
func (s *STrack) GetScore() float32 {
	return s.score
}

// GetInternalID returns the id used for internal set operations
func (s *STrack) GetInternalID() int {
	return s.internalID
}

// GetExternalID returns the id reported to callers, or NoID while the track
// is still unconfirmed
func (s *STrack) GetExternalID() int {
	return s.externalID
}

// GetFrameID returns the frame the track was last updated at
func (s *STrack) GetFrameID() int {
	return s.frameID
}

// GetStartFrameID returns the frame the track was first created at
func (s *STrack) GetStartFrameID() int {
	return s.startFrameID
}

// GetTrackletLength returns the consecutive matched frame streak
func (s *STrack) GetTrackletLength() int {
	return s.trackletLen
}

// Activate transitions the track from New to Tracked at the given frame.
// The internal id is allocated here.  With a required streak of one frame
// the track is confirmed immediately and receives its external id, otherwise
// it stays unconfirmed until enough consecutive updates accumulate
func (s *STrack) Activate(frameID int) {

	s.internalID = s.internalIDs.NewID()

	s.kalmanFilter.Initiate(s.mean, &s.covariance, DetectBox(s.rect.GetXyah()))

	s.updateRect()

	s.state = Tracked
	s.trackletLen = 0

	if s.requiredFrames == 1 {
		s.isActivated = true
		s.externalID = s.externalIDs.NewID()
	}

	s.frameID = frameID
	s.startFrameID = frameID
}

// ReActivate transitions the track from Lost back to Tracked using a new
// detection.  The external id is kept, a recovered track is not renumbered
func (s *STrack) ReActivate(newTrack *STrack, frameID int) error {

	err := s.kalmanFilter.Update(s.mean, &s.covariance,
		DetectBox(newTrack.GetRect().GetXyah()))

	if err != nil {
		return errors.Wrap(err, "error re-activating track")
	}

	s.updateRect()

	s.state = Tracked
	s.isActivated = true
	s.score = newTrack.GetScore()
	s.frameID = frameID
	s.trackletLen = 0

	return nil
}

// Update corrects the track with a new matched detection.  Once the
// consecutive match streak reaches the required length an unconfirmed track
// is confirmed and allocated its external id
func (s *STrack) Update(newTrack *STrack, frameID int) error {

	err := s.kalmanFilter.Update(s.mean, &s.covariance,
		DetectBox(newTrack.GetRect().GetXyah()))

	if err != nil {
		return errors.Wrap(err, "error updating track")
	}

	s.updateRect()

	s.state = Tracked
	s.score = newTrack.GetScore()
	s.frameID = frameID
	s.trackletLen++

	if !s.isActivated && s.trackletLen >= s.requiredFrames {
		s.isActivated = true

		if s.externalID == NoID {
			s.externalID = s.externalIDs.NewID()
		}
	}

	return nil
}

// Predict advances the track's filter state by one frame without consuming
// a detection
func (s *STrack) Predict() {
	// a track that is not actively matched has no reliable height velocity
	// estimate, zero it before predicting
	if s.state != Tracked {
		s.mean[7] = 0
	}

	s.kalmanFilter.Predict(s.mean, &s.covariance)

	// association runs against the predicted box
	s.updateRect()
}

// MarkAsLost marks the track as lost
func (s *STrack) MarkAsLost() {
	s.state = Lost
}

// MarkAsRemoved marks the track as removed
func (s *STrack) MarkAsRemoved() {
	s.state = Removed
}

// updateRect refreshes the bounding box from the filter state mean
func (s *STrack) updateRect() {
	s.rect.SetWidth(s.mean[2] * s.mean[3])
	s.rect.SetHeight(s.mean[3])
	s.rect.SetX(s.mean[0] - s.rect.Width()/2)
	s.rect.SetY(s.mean[1] - s.rect.Height()/2)
}

// multiPredict advances every track in the pool by one frame.  This is the
// batch prediction step run before association and is semantically identical
// to predicting each track independently
func multiPredict(tracks []*STrack) {
	for _, track := range tracks {
		track.Predict()
	}
}
