package dsp

import (
	"sync/atomic"
	"time"

	"github.com/netaudio/router/packet"
	"github.com/sirupsen/logrus"
)

// PathParams holds the subset of a source path's configuration the
// processor pipeline reads on every chunk: EQ gains, channel matrix,
// volume, and normalization flags. The config applier builds a new immutable PathParams
// and hands it to the processor via ApplyParams; the processing
// goroutine adopts it atomically at the next chunk boundary, so no
// lock is ever held during DSP itself.
type PathParams struct {
	Volume          float64
	EQGains         [18]float64
	ChannelWeights  [][]float64 // nil selects the auto-mode matrix
	NormalizeVolume bool
	NormalizeEQ     bool
}

// DefaultPathParams returns flat EQ, unity volume, auto channel
// routing, and normalization disabled.
func DefaultPathParams() PathParams {
	return PathParams{Volume: 1.0}
}

// Processor runs one source path's DSP pipeline:
// reformat, resample, channel remap, EQ, DC-block, normalize, volume,
// dither, reinterleave. It is owned by exactly one goroutine; runtime
// parameter changes are published via ApplyParams and picked up at the
// start of the next ProcessChunk call.
type Processor struct {
	inputFormat  packet.Format
	outputFormat packet.Format
	cfg          Config

	resampler *Resampler
	eq        *EQ
	dcBlock   *DCBlocker
	normalize *Normalizer
	volume    *VolumeControl
	dither    *Ditherer

	matrix          *ChannelMatrix
	activeNormalize bool
	activeEQGains   [18]float64

	params       atomic.Pointer[PathParams]
	lastReceived time.Time
}

// NewProcessor builds a processor converting inputFormat to
// outputFormat, with the given pipeline tunables. The output channel
// count is fixed for the processor's lifetime (the sink's format);
// ApplyParams can still change the channel matrix weights at runtime
// as long as the shape (inputFormat.Channels -> outputFormat.Channels)
// stays the same.
func NewProcessor(inputFormat, outputFormat packet.Format, cfg Config) (*Processor, error) {
	resampler, err := NewResampler(inputFormat.SampleRate, outputFormat.SampleRate, int(inputFormat.Channels), cfg.OversamplingFactor)
	if err != nil {
		return nil, err
	}
	matrix, err := AutoChannelMatrix(int(inputFormat.Channels), int(outputFormat.Channels))
	if err != nil {
		return nil, err
	}

	p := &Processor{
		inputFormat:  inputFormat,
		outputFormat: outputFormat,
		cfg:          cfg,
		resampler:    resampler,
		matrix:       matrix,
		eq:           NewEQ(float64(outputFormat.SampleRate), int(outputFormat.Channels)),
		dcBlock:      NewDCBlocker(cfg.DCFilterCutoffHz, float64(outputFormat.SampleRate), int(outputFormat.Channels)),
		normalize:    NewNormalizer(cfg.NormalizationTargetRMS, cfg.NormalizationAttack, cfg.NormalizationDecay),
		volume:       NewVolumeControl(cfg.VolumeSmoothingFactor),
		dither:       NewDitherer(outputFormat.BitDepth, cfg.DitherNoiseShapingFactor, int(outputFormat.Channels), 1),
	}
	defaults := DefaultPathParams()
	p.params.Store(&defaults)

	logrus.WithFields(logrus.Fields{
		"function":      "NewProcessor",
		"input_format":  inputFormat.String(),
		"output_format": outputFormat.String(),
	}).Info("created source processor")
	return p, nil
}

// ApplyParams publishes a new parameter block for the processor to
// adopt at the start of its next ProcessChunk call.
func (p *Processor) ApplyParams(params PathParams) {
	p.params.Store(&params)
}

func (p *Processor) adoptPendingParams() {
	params := p.params.Load()
	if params == nil {
		return
	}
	if params.ChannelWeights != nil {
		if m, err := NewChannelMatrix(params.ChannelWeights); err == nil {
			p.matrix = m
		} else {
			logrus.WithFields(logrus.Fields{
				"function": "Processor.adoptPendingParams",
				"error":    err.Error(),
			}).Warn("rejected invalid channel matrix, keeping previous")
		}
	} else if p.matrix.InChannels != int(p.inputFormat.Channels) || p.matrix.OutChannels != int(p.outputFormat.Channels) {
		if m, err := AutoChannelMatrix(int(p.inputFormat.Channels), int(p.outputFormat.Channels)); err == nil {
			p.matrix = m
		}
	}

	if params.EQGains != p.activeEQGains {
		p.activeEQGains = params.EQGains
		gains := params.EQGains
		if params.NormalizeEQ {
			gains = compensateEQGains(gains)
		}
		p.eq.SetGains(gains)
	}
	p.activeNormalize = params.NormalizeVolume
	p.volume.SetTarget(params.Volume)
}

// compensateEQGains applies make-up attenuation equal to the largest
// positive band boost, so enabling a path's "normalize EQ" flag
// prevents boosted bands from pushing the signal toward clipping.
func compensateEQGains(gains [18]float64) [18]float64 {
	maxBoost := 0.0
	for _, g := range gains {
		if g > maxBoost {
			maxBoost = g
		}
	}
	if maxBoost == 0 {
		return gains
	}
	out := gains
	for i := range out {
		out[i] -= maxBoost
	}
	return out
}

// ProcessChunk runs one chunk of interleaved source PCM through the
// full pipeline, returning interleaved PCM in the output format. A
// receivedAt gap since the previous call larger than the discontinuity
// threshold flushes all persistent filter state first.
func (p *Processor) ProcessChunk(payload []byte, receivedAt time.Time) ([]byte, error) {
	p.adoptPendingParams()

	if !p.lastReceived.IsZero() {
		gap := receivedAt.Sub(p.lastReceived)
		if gap > time.Duration(p.cfg.DiscontinuityThresholdMS)*time.Millisecond {
			logrus.WithFields(logrus.Fields{
				"function": "Processor.ProcessChunk",
				"gap_ms":   gap.Milliseconds(),
			}).Warn("discontinuity detected, flushing filter state")
			p.flush()
		}
	}
	p.lastReceived = receivedAt

	deinterleaved, err := Deinterleave(payload, p.inputFormat)
	if err != nil {
		return nil, err
	}

	resampled, err := p.resampler.Process(deinterleaved)
	if err != nil {
		return nil, err
	}

	remapped, err := p.matrix.Apply(resampled)
	if err != nil {
		return nil, err
	}

	if err := p.eq.Process(remapped); err != nil {
		return nil, err
	}
	if err := p.dcBlock.Process(remapped); err != nil {
		return nil, err
	}
	if p.activeNormalize {
		if err := p.normalize.Process(remapped); err != nil {
			return nil, err
		}
	}
	if err := p.volume.Process(remapped); err != nil {
		return nil, err
	}
	if err := p.dither.Process(remapped); err != nil {
		return nil, err
	}

	return Interleave(remapped, p.outputFormat)
}

func (p *Processor) flush() {
	p.resampler.Flush()
	p.eq.Reset()
	p.dcBlock.Reset()
	p.normalize.Reset()
	p.dither.Reset()
}
