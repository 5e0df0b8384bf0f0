package capture

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/elena/assistant/domain"
)

// ErrNoFrames is returned when a session without audio is finalized
var ErrNoFrames = errors.New("capture session has no frames")

// Finalizer turns finished sessions into StageJobs
type Finalizer struct {
	RecordSampleRate int
	ModelSampleRate  int
	DeviceKind       string
}

// Finalize concatenates the session frames, measures the capture duration and
// resamples to the model rate when the rates differ. The job gets sequence number seq.
func (f Finalizer) Finalize(session *Session, seq uint64) (domain.StageJob, error) {
	if session == nil {
		return domain.StageJob{}, ErrNoFrames
	}

	total := 0
	for _, frame := range session.Frames {
		total += len(frame)
	}
	if total == 0 {
		return domain.StageJob{}, ErrNoFrames
	}

	audio := make([]float32, 0, total)
	for _, frame := range session.Frames {
		audio = append(audio, frame...)
	}

	duration := time.Duration(float64(len(audio)) / float64(f.RecordSampleRate) * float64(time.Second))

	finalRate := f.RecordSampleRate
	if f.ModelSampleRate > 0 && f.ModelSampleRate != f.RecordSampleRate {
		audio = Resample(audio, f.RecordSampleRate, f.ModelSampleRate)
		finalRate = f.ModelSampleRate
	}

	return domain.StageJob{
		ID:    uuid.NewString(),
		Seq:   seq,
		Audio: audio,
		Meta: domain.JobMetadata{
			PressedAt:        session.PressedAt,
			ReleasedAt:       session.ReleasedAt,
			CaptureDuration:  duration,
			FrameCount:       len(session.Frames),
			RecordSampleRate: f.RecordSampleRate,
			FinalSampleRate:  finalRate,
			DeviceKind:       f.DeviceKind,
		},
	}, nil
}
