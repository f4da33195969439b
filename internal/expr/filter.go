package expr

import "math"

// FilterCounts repeatedly masks the cells of every (group, condition)
// pair observed in fewer than minSamples samples and then drops every
// feature with fewer than minObs observed cells, until a sweep changes
// nothing. The sweep count is returned. Cells and rows are only ever
// removed, so the loop terminates after at most one sweep per cell.
func (s *Set) FilterCounts(minSamples, minObs int) int {
	sweeps := 0
	for {
		sweeps++
		masked := s.maskSparsePairs(minSamples)
		dropped := s.KeepFeatures(func(i int, _ Feature) bool {
			return s.ObsCount(i) >= minObs
		})
		if masked == 0 && dropped == 0 {
			return sweeps
		}
	}
}

// maskSparsePairs masks all cells of (group, condition) pairs that are
// observed in fewer than minSamples distinct samples and returns the
// number of cells masked.
func (s *Set) maskSparsePairs(minSamples int) int {
	if s.NumFeatures() == 0 {
		return 0
	}
	condCols := make(map[string][]int)
	for j, sm := range s.Samples {
		condCols[sm.Condition] = append(condCols[sm.Condition], j)
	}
	groupRows := make(map[string][]int)
	for i, f := range s.Features {
		groupRows[f.Group] = append(groupRows[f.Group], i)
	}
	masked := 0
	for _, rows := range groupRows {
		for _, cols := range condCols {
			n := 0
			for _, j := range cols {
				for _, i := range rows {
					if s.Observed(i, j) {
						n++
						break
					}
				}
			}
			if n == 0 || n >= minSamples {
				continue
			}
			for _, i := range rows {
				for _, j := range cols {
					if s.Observed(i, j) {
						s.X.Set(i, j, math.NaN())
						masked++
					}
				}
			}
		}
	}
	return masked
}
