package tracker

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DetectBox represents a 1x4 measurement (center x, center y, aspect ratio,
// height) using a slice of float32
type DetectBox []float32

// StateMean represents the 1x8 filter state (measurement plus velocities)
// using a slice of float32
type StateMean []float32

// StateCov represents an 8x8 covariance matrix
type StateCov struct {
	*mat.Dense
}

// StateHMean represents the 1x4 state mean projected to measurement space
type StateHMean []float32

// StateHCov represents the 4x4 projected covariance matrix
type StateHCov struct {
	*mat.SymDense
}

// KalmanFilter is a constant-velocity Kalman filter over bounding box
// center, aspect ratio and height.  The filter itself holds only the
// constant motion/update matrices and noise weights, so a single instance
// is safely shared by every track of a tracker; each track owns its own
// mean and covariance
type KalmanFilter struct {
	stdWeightPosition float32
	stdWeightVelocity float32
	motionMat         *mat.Dense
	updateMat         *mat.Dense
}

// NewKalmanFilter initializes and returns a new KalmanFilter.  The standard
// weights scale process and measurement noise with the current height
// estimate, which stabilises small boxes
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float32) *KalmanFilter {

	const ndim = 4
	const dt = 1.0

	// constant velocity motion model, positions advanced by velocity
	// each step
	motionMat := mat.NewDense(2*ndim, 2*ndim, nil)

	for i := 0; i < 2*ndim; i++ {
		motionMat.Set(i, i, 1.0)
	}

	for i := 0; i < ndim; i++ {
		motionMat.Set(i, ndim+i, dt)
	}

	// updateMat projects the 8d state down to the 4d measurement
	updateMat := mat.NewDense(ndim, 2*ndim, nil)

	for i := 0; i < ndim; i++ {
		updateMat.Set(i, i, 1.0)
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motionMat:         motionMat,
		updateMat:         updateMat,
	}
}

// stateStd builds the 8 element standard deviation vector for the state,
// scaled by the given height with the position/velocity multipliers
func (kf *KalmanFilter) stateStd(height, posScale, velScale float32) StateMean {

	std := make(StateMean, 8)
	std[0] = posScale * kf.stdWeightPosition * height // x position
	std[1] = posScale * kf.stdWeightPosition * height // y position
	std[2] = 1e-2                                     // aspect ratio
	std[3] = posScale * kf.stdWeightPosition * height // height
	std[4] = velScale * kf.stdWeightVelocity * height // x velocity
	std[5] = velScale * kf.stdWeightVelocity * height // y velocity
	std[6] = 1e-5                                     // aspect ratio velocity
	std[7] = velScale * kf.stdWeightVelocity * height // height velocity

	return std
}

// Initiate initializes the state mean and covariance from an unassociated
// measurement, with zero initial velocity
func (kf *KalmanFilter) Initiate(mean StateMean, covariance *StateCov,
	measurement DetectBox) {

	copy(mean[:4], measurement[:4])

	for i := 4; i < 8; i++ {
		mean[i] = 0.0
	}

	std := kf.stateStd(measurement[3], 2, 10)

	// diagonal covariance from the squared deviations
	for i, v := range std {
		covariance.Set(i, i, float64(v*v))
	}
}

// Predict advances the state mean and covariance by one time step under the
// constant velocity model
func (kf *KalmanFilter) Predict(mean StateMean, covariance *StateCov) {

	std := kf.stateStd(mean[3], 1, 1)

	motionCov := mat.NewDense(8, 8, nil)

	for i, v := range std {
		motionCov.Set(i, i, float64(v*v))
	}

	meanMat := mat.NewDense(8, 1, nil)

	for i := 0; i < 8; i++ {
		meanMat.Set(i, 0, float64(mean[i]))
	}

	// mean = F * mean
	meanMat.Mul(kf.motionMat, meanMat)

	for i := 0; i < 8; i++ {
		mean[i] = float32(meanMat.At(i, 0))
	}

	// covariance = F * covariance * F' + Q
	cov := covariance.Dense
	cov.Mul(kf.motionMat, cov)
	cov.Mul(cov, kf.motionMat.T())
	cov.Add(cov, motionCov)
}

// Update corrects the state mean and covariance with a new measurement
func (kf *KalmanFilter) Update(mean StateMean, covariance *StateCov,
	measurement DetectBox) error {

	projectedMean, projectedCov := kf.project(mean, covariance)

	// solve for the Kalman gain through the Cholesky factorization of the
	// projected covariance, which stays symmetric positive definite under
	// normal operation
	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	B := mat.NewDense(8, 4, nil)
	B.Mul(covariance.Dense, kf.updateMat.T())

	var kalmanGain mat.Dense

	if err := chol.SolveTo(&kalmanGain, B.T()); err != nil {
		return errors.Wrap(err, "failed to compute kalman gain")
	}

	// innovation is the measurement residual
	innovation := mat.NewVecDense(4, nil)

	for i := 0; i < 4; i++ {
		innovation.SetVec(i, float64(measurement[i]-projectedMean[i]))
	}

	correction := mat.NewVecDense(8, nil)
	correction.MulVec(kalmanGain.T(), innovation)

	for i := 0; i < 8; i++ {
		mean[i] += float32(correction.AtVec(i))
	}

	// covariance = covariance - K' * S * K
	temp := mat.NewDense(8, 4, nil)
	temp.Mul(kalmanGain.T(), projectedCov)

	gainCov := mat.NewDense(8, 8, nil)
	gainCov.Mul(temp, &kalmanGain)

	newCov := mat.NewDense(8, 8, nil)
	newCov.Sub(covariance.Dense, gainCov)

	covariance.Dense = newCov

	return nil
}

// project maps the state mean and covariance into measurement space and
// adds the measurement noise
func (kf *KalmanFilter) project(mean StateMean,
	covariance *StateCov) (StateHMean, *StateHCov) {

	std := make(DetectBox, 4)
	std[0] = kf.stdWeightPosition * mean[3]
	std[1] = kf.stdWeightPosition * mean[3]
	std[2] = 1e-1
	std[3] = kf.stdWeightPosition * mean[3]

	innovationCov := mat.NewSymDense(4, nil)

	for i := 0; i < 4; i++ {
		innovationCov.SetSym(i, i, float64(std[i]*std[i]))
	}

	meanVec := mat.NewVecDense(8, nil)

	for i, v := range mean {
		meanVec.SetVec(i, float64(v))
	}

	projectedMeanVec := mat.NewVecDense(4, nil)
	projectedMeanVec.MulVec(kf.updateMat, meanVec)

	// H * covariance * H'
	temp := mat.NewDense(4, 8, nil)
	temp.Mul(kf.updateMat, covariance.Dense)
	temp2 := mat.NewDense(4, 4, nil)
	temp2.Mul(temp, kf.updateMat.T())

	projectedCov := mat.NewSymDense(4, nil)

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			projectedCov.SetSym(i, j, temp2.At(i, j))
		}
	}

	projectedCov.AddSym(projectedCov, innovationCov)

	projectedMean := make(StateHMean, 4)

	for i := 0; i < 4; i++ {
		projectedMean[i] = float32(projectedMeanVec.AtVec(i))
	}

	return projectedMean, &StateHCov{projectedCov}
}
