package engine

import (
	"context"
	"sync"
	"time"

	"github.com/netaudio/router/config"
	"github.com/netaudio/router/dsp"
	"github.com/netaudio/router/packet"
	"github.com/netaudio/router/timeshift"
	"github.com/sirupsen/logrus"
)

// pathRuntime owns one source path's cursor and DSP processor and
// drives the goroutine pumping processed chunks into its sink's mixer
// lane. The processor is (re)built lazily from
// the format actually observed on the cursor, since a source tag's
// wire format is only known once its first packet arrives; this also
// lets a source change format mid-stream without the engine needing
// prior knowledge of it.
type pathRuntime struct {
	mu   sync.Mutex
	spec config.PathSpec

	cursor *timeshift.Cursor

	proc       *dsp.Processor
	procInput  packet.Format
	procOutput packet.Format

	connectedSink config.SinkID // "" when not connected to any mixer lane
	lastGoodAt    time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// newPathRuntime registers a read cursor for the path's source tag and
// starts its processing goroutine. It does not connect to a mixer lane;
// ConnectPathToSink/DisconnectPathFromSink do that separately, matching
// the applier's create-then-connect sequencing.
func (e *Engine) newPathRuntime(spec config.PathSpec) *pathRuntime {
	cursor := e.ts.RegisterCursor(spec.SourceTag, pathLagSeconds(spec))

	ctx, cancel := context.WithCancel(context.Background())
	pr := &pathRuntime{
		spec:   spec,
		cursor: cursor,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	pr.applyParamsLocked()

	go e.runPath(ctx, pr)
	return pr
}

// applyParamsLocked pushes the path spec's DSP parameters to its
// processor, if one has been built. Must be called with pr.mu held.
func (pr *pathRuntime) applyParamsLocked() {
	if pr.proc == nil {
		return
	}
	pr.proc.ApplyParams(dsp.PathParams{
		Volume:          pr.spec.Volume,
		EQGains:         pr.spec.EQGains,
		ChannelWeights:  pr.spec.ChannelWeights,
		NormalizeVolume: pr.spec.NormalizeVolume,
		NormalizeEQ:     pr.spec.NormalizeEQ,
	})
}

// pathLagSeconds folds a path's configured delay into its timeshift:
// the cursor exposes a single lag concept, so both land there.
func pathLagSeconds(spec config.PathSpec) float64 {
	return spec.TimeshiftSec + float64(spec.DelayMS)/1000.0
}

// lagSeconds returns the lag target of the path's current spec.
func (pr *pathRuntime) lagSeconds() float64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pathLagSeconds(pr.spec)
}

// updateSpec replaces the path's declarative configuration and
// republishes its DSP params; the caller decides whether the lag
// change also warrants a cursor reseek.
func (pr *pathRuntime) updateSpec(spec config.PathSpec) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.spec = spec
	pr.applyParamsLocked()
}

// runPath is the path's worker goroutine: read a chunk from the
// cursor, run it through the DSP pipeline, and push the result to the
// connected sink's mixer lane, once per PathLoopInterval tick.
func (e *Engine) runPath(ctx context.Context, pr *pathRuntime) {
	defer close(pr.done)

	ticker := time.NewTicker(e.cfg.PathLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		e.stepPath(pr)
	}
}

func (e *Engine) stepPath(pr *pathRuntime) {
	pr.mu.Lock()
	sinkID := pr.connectedSink
	pr.mu.Unlock()
	if sinkID == "" {
		return
	}

	sr, ok := e.sinkRuntimeFor(sinkID)
	if !ok {
		return
	}
	outFormat := sr.spec.Format

	desiredFrames := desiredInputFrames(pr, e.cfg.Mixer.FramesPerChunk, outFormat)
	chunk, err := e.ts.ReadNextChunk(pr.cursor, desiredFrames)

	pr.mu.Lock()
	pathID := pr.spec.ID
	if err != nil {
		stale := time.Since(pr.lastGoodAt) > e.cfg.UnderrunHoldTimeout
		pr.mu.Unlock()
		if stale {
			e.pushSilence(sr, pathID)
		}
		return
	}

	proc, procErr := pr.ensureProcessorLocked(chunk.Format, outFormat, e.cfg.Processor)
	pr.mu.Unlock()
	if procErr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.stepPath",
			"path_id":  string(pathID),
			"error":    procErr.Error(),
		}).Warn("failed to build source processor")
		return
	}

	// The processor is only ever driven from this goroutine; the lock
	// above protects the shared spec/format fields, not the DSP work.
	out, err := proc.ProcessChunk(chunk.PCM, time.Now())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.stepPath",
			"path_id":  string(pathID),
			"error":    err.Error(),
		}).Warn("dsp pipeline error, dropping chunk")
		return
	}

	pr.mu.Lock()
	pr.lastGoodAt = time.Now()
	pr.mu.Unlock()

	frames := outFormat.Frames(len(out))
	if err := sr.mx.PushChunk(string(pathID), out, frames); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.stepPath",
			"path_id":  string(pathID),
			"sink_id":  string(sinkID),
			"error":    err.Error(),
		}).Debug("failed to push chunk to sink lane")
	}
}

// ensureProcessorLocked (re)builds the path's processor if the input
// or output format it was constructed for no longer matches, and must
// be called with pr.mu held.
func (pr *pathRuntime) ensureProcessorLocked(input, output packet.Format, cfg dsp.Config) (*dsp.Processor, error) {
	if pr.proc != nil && pr.procInput.Equal(input) && pr.procOutput.Equal(output) {
		return pr.proc, nil
	}
	proc, err := dsp.NewProcessor(input, output, cfg)
	if err != nil {
		return nil, err
	}
	pr.proc = proc
	pr.procInput = input
	pr.procOutput = output
	pr.applyParamsLocked()
	return proc, nil
}

// pushSilence delivers one silent chunk of the sink's format to its
// lane, the universal recovery for a path that has nothing ready.
func (e *Engine) pushSilence(sr *sinkRuntime, pathID config.PathID) {
	frames := e.cfg.Mixer.FramesPerChunk
	silence := make([]byte, frames*sr.spec.Format.FrameSize())
	if err := sr.mx.PushChunk(string(pathID), silence, frames); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.pushSilence",
			"path_id":  string(pathID),
			"error":    err.Error(),
		}).Debug("failed to push silence chunk")
	}
}

// desiredInputFrames scales the sink's output chunk size by the ratio
// of the path's last-known input rate to the output rate, so a
// resampled path still asks its cursor for roughly one output-chunk's
// worth of source content.
func desiredInputFrames(pr *pathRuntime, framesPerChunk int, output packet.Format) int {
	pr.mu.Lock()
	inRate := pr.procInput.SampleRate
	pr.mu.Unlock()
	if inRate == 0 || output.SampleRate == 0 {
		return framesPerChunk
	}
	frames := int(float64(framesPerChunk) * float64(inRate) / float64(output.SampleRate))
	if frames < 1 {
		frames = 1
	}
	return frames
}

func (pr *pathRuntime) close() {
	pr.cancel()
	<-pr.done
}
