// ABOUTME: Linear resampler for converting decoded voice to the session rate
// ABOUTME: Keeps the last frame of each chunk so interpolation is continuous across packets
package resample

// Resampler performs linear interpolation between sample rates on
// interleaved int32 frames. It is stateful and not safe for concurrent use.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
	last       []int32 // final frame of the previous chunk
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	if channels < 1 {
		channels = 1
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		last:       make([]int32, channels),
	}
}

// InputRate returns the rate the resampler converts from
func (r *Resampler) InputRate() int {
	return r.inputRate
}

// OutputRate returns the rate the resampler converts to
func (r *Resampler) OutputRate() int {
	return r.outputRate
}

// Resample converts one chunk of interleaved input frames
func (r *Resampler) Resample(input []int32) []int32 {
	frames := len(input) / r.channels
	if frames == 0 {
		return nil
	}

	if r.inputRate == r.outputRate {
		out := make([]int32, frames*r.channels)
		copy(out, input)
		return out
	}

	// Virtual frame 0 is the previous chunk's last frame once primed
	offset := 0
	if r.primed {
		offset = 1
	}
	total := frames + offset

	frame := func(i int) []int32 {
		if i < offset {
			return r.last
		}
		j := (i - offset) * r.channels
		return input[j : j+r.channels]
	}

	out := make([]int32, 0, r.OutputSamplesNeeded(len(input))+r.channels)
	for {
		idx := int(r.position)
		if idx+1 >= total {
			break
		}
		frac := r.position - float64(idx)
		a, b := frame(idx), frame(idx+1)
		for ch := 0; ch < r.channels; ch++ {
			out = append(out, int32(float64(a[ch])*(1.0-frac)+float64(b[ch])*frac))
		}
		r.position += r.ratio
	}

	// The last input frame becomes virtual frame 0 of the next chunk
	r.position -= float64(total - 1)
	if r.position < 0 {
		r.position = 0
	}
	copy(r.last, frame(total-1))
	r.primed = true

	return out
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	clear(r.last)
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}
