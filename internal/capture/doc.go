// Package capture holds the push-to-talk capture core: the pre-roll ring of recent
// audio blocks, the Idle/Recording/PostRoll state machine driven by key edges and audio
// blocks, and the finalization that turns a captured session into a StageJob.
package capture
