package tracker

import (
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// classTracks partitions one class's tracks into the three disjoint
// lifecycle sets.  A track lives in at most one of tracked/lost at any time,
// removed holds only the current frame's removals
type classTracks struct {
	tracked []*STrack
	lost    []*STrack
	removed []*STrack
}

// BYTETracker is a multi-class ByteTrack tracker.  Detections of each class
// are associated independently against that class's tracks, while the two
// identity counters are shared across all classes so an object keeps one
// identity space
type BYTETracker struct {
	// Tracker configuration parameters
	cfg Config
	// Minimum score for an unmatched detection to spawn a new track
	detThresh float32
	// Maximum number of frames an object can be lost before removal
	maxTimeLost int
	// Current frame ID, advanced once per Update
	frameID int
	// Per class track sets
	classes []*classTracks
	// Allocator for internal track ids
	internalIDs *IDCounter
	// Allocator for externally reported track ids, starts at 1
	externalIDs *IDCounter
	// Shared constant-parameter Kalman filter
	sharedKalman *KalmanFilter
	// Unique id of this tracker instance, used in log fields
	instanceID string
	// Structured logger, a no-op unless UseLogger is called
	logger *zap.Logger
}

// NewBYTETracker initializes and returns a new BYTETracker for the given
// configuration.  Invalid configuration fails here, never silently clamped
func NewBYTETracker(cfg Config) (*BYTETracker, error) {

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid tracker config")
	}

	// the internal and external counters deliberately start at different
	// values so the two id spaces stay distinct
	internalIDs, err := NewIDCounter(0)

	if err != nil {
		return nil, errors.Wrap(err, "can't create internal id counter")
	}

	externalIDs, err := NewIDCounter(1)

	if err != nil {
		return nil, errors.Wrap(err, "can't create external id counter")
	}

	classes := make([]*classTracks, cfg.NClasses)
	for i := range classes {
		classes[i] = &classTracks{}
	}

	return &BYTETracker{
		cfg:          cfg,
		detThresh:    cfg.TrackActivationThreshold + 0.1,
		maxTimeLost:  int(math.Round(float64(cfg.FrameRate) / 30.0 * float64(cfg.LostTrackBuffer))),
		classes:      classes,
		internalIDs:  internalIDs,
		externalIDs:  externalIDs,
		sharedKalman: NewKalmanFilter(1.0/20, 1.0/160),
		instanceID:   uuid.NewString(),
		logger:       zap.NewNop(),
	}, nil
}

// UseLogger installs a structured logger on the tracker.  Log entries are
// tagged with this instance's unique id
func (bt *BYTETracker) UseLogger(logger *zap.Logger) {
	bt.logger = logger.With(zap.String("tracker_id", bt.instanceID))
}

// GetFrameID returns the current frame counter
func (bt *BYTETracker) GetFrameID() int {
	return bt.frameID
}

// Reset clears all track sets and winds both id counters and the frame
// counter back to their start values.  Useful when processing multiple
// videos sequentially with one tracker instance
func (bt *BYTETracker) Reset() {
	bt.frameID = 0
	bt.internalIDs.Reset()
	bt.externalIDs.Reset()

	for i := range bt.classes {
		bt.classes[i] = &classTracks{}
	}
}

// Update advances the tracker by one frame.  boxes, scores and classIDs are
// parallel arrays describing this frame's detections in (x_min, y_min,
// x_max, y_max) form.  It returns one external track id per input
// detection, aligned to the input order, with -1 where a detection was not
// assigned to any track this frame.
//
// The call is atomic: input contract violations are reported before any
// track state is touched.  Classes with no detections this frame still age,
// the absence of evidence moves their tracks toward Lost and eventual
// removal
func (bt *BYTETracker) Update(boxes []Tlbr, scores []float32,
	classIDs []int) ([]int, error) {

	if len(scores) != len(boxes) || len(classIDs) != len(boxes) {
		return nil, errors.Errorf(
			"input length mismatch: %d boxes, %d scores, %d class ids",
			len(boxes), len(scores), len(classIDs))
	}

	for i, box := range boxes {
		if len(box) != 4 {
			return nil, errors.Errorf("box %d has %d coordinates, want 4",
				i, len(box))
		}
	}

	for i, classID := range classIDs {
		if classID < 0 || classID >= bt.cfg.NClasses {
			return nil, errors.Errorf(
				"class id %d of detection %d outside [0,%d)",
				classID, i, bt.cfg.NClasses)
		}
	}

	bt.frameID++

	// group detections by class, remembering each detection's original
	// position for output alignment
	clsBoxes := make([][]Tlbr, bt.cfg.NClasses)
	clsScores := make([][]float32, bt.cfg.NClasses)
	clsOrder := make([][]int, bt.cfg.NClasses)

	for i, classID := range classIDs {
		clsBoxes[classID] = append(clsBoxes[classID], boxes[i])
		clsScores[classID] = append(clsScores[classID], scores[i])
		clsOrder[classID] = append(clsOrder[classID], i)
	}

	out := make([]int, len(boxes))

	for classID := 0; classID < bt.cfg.NClasses; classID++ {

		ids, err := bt.updateClass(classID, clsBoxes[classID], clsScores[classID])

		if err != nil {
			return nil, errors.Wrapf(err, "error updating class %d", classID)
		}

		for k, origIdx := range clsOrder[classID] {
			out[origIdx] = ids[k]
		}
	}

	if ce := bt.logger.Check(zap.DebugLevel, "frame processed"); ce != nil {

		var tracked, lost, removed int
		for _, cls := range bt.classes {
			tracked += len(cls.tracked)
			lost += len(cls.lost)
			removed += len(cls.removed)
		}

		ce.Write(
			zap.Int("frame", bt.frameID),
			zap.Int("detections", len(boxes)),
			zap.Int("tracked", tracked),
			zap.Int("lost", lost),
			zap.Int("removed", removed),
		)
	}

	return out, nil
}

// updateClass runs the per-frame association pipeline for a single class
// and returns the external track ids aligned to the class's detection order
func (bt *BYTETracker) updateClass(classID int, boxes []Tlbr,
	scores []float32) ([]int, error) {

	cls := bt.classes[classID]
	frameID := bt.frameID

	// split detections into high confidence and low-but-above-noise-floor
	// buckets.  A score exactly at the activation threshold is low
	// confidence, scores at or below 0.1 are discarded entirely
	var detections, detectionsLow []*STrack

	for i, box := range boxes {

		score := scores[i]

		if score <= 0.1 {
			continue
		}

		strack := newSTrack(GenerateRectByTlbr(box), score,
			bt.cfg.MinimumConsecutiveFrames, bt.sharedKalman,
			bt.internalIDs, bt.externalIDs)

		if score > bt.cfg.TrackActivationThreshold {
			detections = append(detections, strack)
		} else {
			detectionsLow = append(detectionsLow, strack)
		}
	}

	// partition the class's tracked set into confirmed tracks and
	// single-frame unconfirmed ones
	var unconfirmed, confirmed []*STrack

	for _, track := range cls.tracked {
		if !track.IsActivated() {
			unconfirmed = append(unconfirmed, track)
		} else {
			confirmed = append(confirmed, track)
		}
	}

	var activated, refound, lost, removed []*STrack

	// Stage A: associate {confirmed + lost} against high confidence
	// detections, with detection scores fused into the IoU costs
	strackPool := jointTracks(confirmed, cls.lost)
	multiPredict(strackPool)

	dists := fuseScore(iouDistance(strackPool, detections), detections)

	matches, uTrack, uDetection, err := linearAssignment(dists,
		len(strackPool), len(detections), bt.cfg.MinimumMatchingThreshold)

	if err != nil {
		return nil, errors.Wrap(err, "first association failed")
	}

	for _, m := range matches {
		track := strackPool[m[0]]
		det := detections[m[1]]

		if track.GetSTrackState() == Tracked {
			if err := track.Update(det, frameID); err != nil {
				return nil, errors.Wrap(err, "first association update failed")
			}
			activated = append(activated, track)
		} else {
			if err := track.ReActivate(det, frameID); err != nil {
				return nil, errors.Wrap(err, "first association re-activate failed")
			}
			refound = append(refound, track)
		}
	}

	// Stage B: remaining Tracked tracks get a second chance against the
	// low confidence detections, plain IoU with no score fusion
	var remainTracked []*STrack

	for _, idx := range uTrack {
		if strackPool[idx].GetSTrackState() == Tracked {
			remainTracked = append(remainTracked, strackPool[idx])
		}
	}

	matches, uTrack, _, err = linearAssignment(
		iouDistance(remainTracked, detectionsLow),
		len(remainTracked), len(detectionsLow), 0.5)

	if err != nil {
		return nil, errors.Wrap(err, "second association failed")
	}

	for _, m := range matches {
		track := remainTracked[m[0]]
		det := detectionsLow[m[1]]

		if track.GetSTrackState() == Tracked {
			if err := track.Update(det, frameID); err != nil {
				return nil, errors.Wrap(err, "second association update failed")
			}
			activated = append(activated, track)
		} else {
			if err := track.ReActivate(det, frameID); err != nil {
				return nil, errors.Wrap(err, "second association re-activate failed")
			}
			refound = append(refound, track)
		}
	}

	for _, idx := range uTrack {
		track := remainTracked[idx]
		if track.GetSTrackState() != Lost {
			track.MarkAsLost()
			lost = append(lost, track)
		}
	}

	// Stage C: reconcile unconfirmed tracks against the high confidence
	// detections left over from stage A.  An unconfirmed track that fails
	// to match here is removed immediately, it never gets a second frame
	remainDets := make([]*STrack, 0, len(uDetection))
	for _, idx := range uDetection {
		remainDets = append(remainDets, detections[idx])
	}

	dists = fuseScore(iouDistance(unconfirmed, remainDets), remainDets)

	matches, uUnconfirmed, uDetection, err := linearAssignment(dists,
		len(unconfirmed), len(remainDets), 0.7)

	if err != nil {
		return nil, errors.Wrap(err, "unconfirmed association failed")
	}

	for _, m := range matches {
		track := unconfirmed[m[0]]

		if err := track.Update(remainDets[m[1]], frameID); err != nil {
			return nil, errors.Wrap(err, "unconfirmed association update failed")
		}
		activated = append(activated, track)
	}

	for _, idx := range uUnconfirmed {
		track := unconfirmed[idx]
		track.MarkAsRemoved()
		removed = append(removed, track)
	}

	// Stage D: each remaining high confidence detection spawns a new track
	// if its score clears the birth threshold
	for _, idx := range uDetection {
		det := remainDets[idx]

		if det.GetScore() < bt.detThresh {
			continue
		}

		det.Activate(frameID)
		activated = append(activated, det)
	}

	// expire lost tracks beyond the buffer window
	for _, track := range cls.lost {
		if frameID-track.GetFrameID() > bt.maxTimeLost {
			track.MarkAsRemoved()
			removed = append(removed, track)
		}
	}

	// rebuild the class's tracked and lost sets
	stillTracked := make([]*STrack, 0, len(cls.tracked))
	for _, track := range cls.tracked {
		if track.GetSTrackState() == Tracked {
			stillTracked = append(stillTracked, track)
		}
	}

	cls.tracked = jointTracks(jointTracks(stillTracked, activated), refound)
	cls.lost = subTracks(cls.lost, cls.tracked)
	cls.lost = append(cls.lost, lost...)
	cls.lost = subTracks(cls.lost, removed)
	cls.removed = removed

	cls.tracked, cls.lost = removeDuplicateTracks(cls.tracked, cls.lost)

	// map confirmed output tracks back to the class's detections by one
	// more IoU assignment so each id lands on the detection that produced
	// it
	var outTracks []*STrack
	for _, track := range cls.tracked {
		if track.IsActivated() {
			outTracks = append(outTracks, track)
		}
	}

	ids := make([]int, len(boxes))
	for i := range ids {
		ids[i] = -1
	}

	if len(outTracks) == 0 || len(boxes) == 0 {
		return ids, nil
	}

	trackBoxes := make([]Tlbr, len(outTracks))
	for i, track := range outTracks {
		trackBoxes[i] = track.GetRect().GetTlbr()
	}

	matches, _, _, err = linearAssignment(iouCostMatrix(boxes, trackBoxes),
		len(boxes), len(outTracks), 0.5)

	if err != nil {
		return nil, errors.Wrap(err, "output alignment failed")
	}

	for _, m := range matches {
		ids[m[0]] = outTracks[m[1]].GetExternalID()
	}

	return ids, nil
}

// jointTracks combines two lists of tracks without duplicating any
// internal id
func jointTracks(aList, bList []*STrack) []*STrack {

	exists := make(map[int]bool)
	var res []*STrack

	for _, track := range aList {
		if !exists[track.GetInternalID()] {
			exists[track.GetInternalID()] = true
			res = append(res, track)
		}
	}

	for _, track := range bList {
		if !exists[track.GetInternalID()] {
			exists[track.GetInternalID()] = true
			res = append(res, track)
		}
	}

	return res
}

// subTracks returns the tracks of aList whose internal id does not appear
// in bList, preserving aList's order
func subTracks(aList, bList []*STrack) []*STrack {

	drop := make(map[int]bool)
	for _, track := range bList {
		drop[track.GetInternalID()] = true
	}

	var res []*STrack
	for _, track := range aList {
		if !drop[track.GetInternalID()] {
			res = append(res, track)
		}
	}

	return res
}

// removeDuplicateTracks drops duplicates between the tracked and lost sets.
// Any pair overlapping above 0.85 IoU is considered the same object and the
// track with the shorter active duration is dropped, the tracked side on a
// tie
func removeDuplicateTracks(tracked, lost []*STrack) ([]*STrack, []*STrack) {

	dists := iouDistance(tracked, lost)

	dupTracked := make([]bool, len(tracked))
	dupLost := make([]bool, len(lost))

	for i := range dists {
		for j := range dists[i] {

			if dists[i][j] >= 0.15 {
				continue
			}

			ageTracked := tracked[i].GetFrameID() - tracked[i].GetStartFrameID()
			ageLost := lost[j].GetFrameID() - lost[j].GetStartFrameID()

			if ageTracked > ageLost {
				dupLost[j] = true
			} else {
				dupTracked[i] = true
			}
		}
	}

	resTracked := make([]*STrack, 0, len(tracked))
	for i, track := range tracked {
		if !dupTracked[i] {
			resTracked = append(resTracked, track)
		}
	}

	resLost := make([]*STrack, 0, len(lost))
	for j, track := range lost {
		if !dupLost[j] {
			resLost = append(resLost, track)
		}
	}

	return resTracked, resLost
}
