package domain

import "time"

// AudioBlock is one callback's worth of mono float32 samples.
type AudioBlock []float32

// CaptureState is the push-to-talk capture lifecycle state.
type CaptureState int

const (
	CaptureIdle CaptureState = iota
	CaptureRecording
	CapturePostRoll
)

func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "idle"
	case CaptureRecording:
		return "recording"
	case CapturePostRoll:
		return "postroll"
	default:
		return "unknown"
	}
}

// JobMetadata describes how a StageJob's audio was captured
type JobMetadata struct {
	PressedAt        time.Time     `json:"pressed_at"`
	ReleasedAt       time.Time     `json:"released_at"`
	CaptureDuration  time.Duration `json:"capture_duration"`
	FrameCount       int           `json:"frame_count"`
	RecordSampleRate int           `json:"record_sample_rate"`
	FinalSampleRate  int           `json:"final_sample_rate"`
	DeviceKind       string        `json:"device_kind"`
}

// StageJob is a finalized capture handed to the transcription stage.
// Seq increases monotonically in finalization order.
type StageJob struct {
	ID    string
	Seq   uint64
	Audio []float32
	Meta  JobMetadata
}

// TranscriptionTiming holds transcription latencies. FirstSegment and Total are measured
// from the start of the transcribe call; SinceRelease from the key release.
type TranscriptionTiming struct {
	FirstSegment time.Duration `json:"first_segment"`
	Total        time.Duration `json:"total"`
	SinceRelease time.Duration `json:"since_release"`
}

// TranscriptionResult is the outcome of transcribing one StageJob
type TranscriptionResult struct {
	JobID               string              `json:"job_id"`
	Seq                 uint64              `json:"seq"`
	Text                string              `json:"text"`
	Language            string              `json:"language"`
	LanguageProbability float64             `json:"language_probability"`
	AudioDuration       time.Duration       `json:"audio_duration"`
	Timing              TranscriptionTiming `json:"timing"`
	Meta                JobMetadata         `json:"meta"`
}

// ResponseTiming holds conversational backend latencies
type ResponseTiming struct {
	Assistant time.Duration `json:"assistant"`
	Attempts  int           `json:"attempts"`
}

// ResponseResult is the reply generated for one TranscriptionResult.
// Fallback is set when Text is the fixed apology.
type ResponseResult struct {
	JobID         string              `json:"job_id"`
	Seq           uint64              `json:"seq"`
	Text          string              `json:"text"`
	Fallback      bool                `json:"fallback"`
	Timing        ResponseTiming      `json:"timing"`
	Transcription TranscriptionResult `json:"transcription"`
}
