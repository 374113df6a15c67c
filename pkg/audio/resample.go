package audio

// Resample converts mono float samples from srcRate to dstRate using linear
// interpolation. If the rates match, or either is non-positive, samples is
// returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	last := len(samples) - 1
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx > last {
			idx = last
		}
		frac := float32(pos - float64(idx))
		next := samples[idx]
		if idx < last {
			next = samples[idx+1]
		}
		out[i] = samples[idx]*(1-frac) + next*frac
	}
	return out
}
