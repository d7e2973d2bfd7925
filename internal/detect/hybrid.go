package detect

import (
	"sync"

	"github.com/motionscope/motionscope/internal/frame"
)

// Consensus floor for the ensemble detectors: a merged region survives
// only when the combined confidence reaches this value.
const consensusFloor = 0.4

// ensemble fans a frame out to several constituent detectors in
// parallel, merges their regions, and keeps only regions with enough
// combined confidence. This is the one intra-frame parallel point in the
// engine: each constituent owns independent state, so the fan-out is
// race-free, and the join completes before merging.
//
// The "AI-enhanced" variant is this same consensus vote over three
// classical detectors. There is no learned model behind the name.
type ensemble struct {
	algorithm Algorithm
	cfg       Config
	detectors []Detector
}

func newHybrid(cfg Config) *ensemble {
	return &ensemble{
		algorithm: AlgorithmHybrid,
		cfg:       cfg,
		detectors: []Detector{
			newBackgroundSubtraction(cfg),
			newFrameDifference(cfg),
		},
	}
}

func newAIEnhanced(cfg Config) *ensemble {
	return &ensemble{
		algorithm: AlgorithmAIEnhanced,
		cfg:       cfg,
		detectors: []Detector{
			newBackgroundSubtraction(cfg),
			newOpticalFlow(cfg),
			newFrameDifference(cfg),
		},
	}
}

func (d *ensemble) Algorithm() Algorithm {
	return d.algorithm
}

func (d *ensemble) Reset() {
	for _, det := range d.detectors {
		det.Reset()
	}
}

func (d *ensemble) Detect(f *frame.Frame) ([]Region, error) {
	results := make([][]Region, len(d.detectors))
	errs := make([]error, len(d.detectors))

	var wg sync.WaitGroup
	for i, det := range d.detectors {
		wg.Add(1)
		go func(i int, det Detector) {
			defer wg.Done()
			results[i], errs[i] = det.Detect(f)
		}(i, det)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var all []Region
	for _, regions := range results {
		all = append(all, regions...)
	}
	merged := mergeRegions(filterRegions(d.cfg, all))

	// Consensus vote: overlapping detections reinforce each other
	// through the merge's averaged confidence; lone weak detections
	// fall below the floor.
	out := merged[:0]
	for _, r := range merged {
		if r.Confidence >= consensusFloor {
			out = append(out, r)
		}
	}
	return out, nil
}
