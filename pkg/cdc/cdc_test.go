package cdc

import "testing"

func TestLevelLatency(t *testing.T) {
	var s Synchronizer
	got := s.Sample(Lines{TMS: true, TDI: true, Reset: true})
	if got.TMS || got.TDI || got.Reset {
		t.Fatalf("levels visible on sampling tick: %+v", got)
	}
	got = s.Sample(Lines{TMS: true, TDI: true, Reset: true})
	if got.TMS || got.TDI || got.Reset {
		t.Fatalf("levels visible after one tick: %+v", got)
	}
	got = s.Sample(Lines{})
	if !got.TMS || !got.TDI || !got.Reset {
		t.Fatalf("levels not visible after %d ticks: %+v", Latency, got)
	}
}

func TestRisingEdgeOncePerEdge(t *testing.T) {
	cases := []struct {
		name      string
		high, low int
		periods   int
	}{
		{"quarter rate", 2, 2, 8},
		{"asymmetric", 1, 3, 6},
		{"slow", 5, 7, 4},
		{"half rate", 1, 1, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s Synchronizer
			edges := 0
			for p := 0; p < tc.periods; p++ {
				for i := 0; i < tc.low; i++ {
					if s.Sample(Lines{}).TCKRise {
						edges++
					}
				}
				for i := 0; i < tc.high; i++ {
					if s.Sample(Lines{TCK: true}).TCKRise {
						edges++
					}
				}
			}
			// Flush the pipeline.
			for i := 0; i < TCKDepth; i++ {
				if s.Sample(Lines{}).TCKRise {
					edges++
				}
			}
			if edges != tc.periods {
				t.Fatalf("edges = %d, want %d", edges, tc.periods)
			}
		})
	}
}

func TestEdgeAlignsWithData(t *testing.T) {
	var s Synchronizer
	// TMS is set up with TCK low, then held while TCK rises.
	s.Sample(Lines{TMS: true})
	s.Sample(Lines{TMS: true})
	s.Sample(Lines{TCK: true, TMS: true})
	s.Sample(Lines{TCK: true, TMS: false})
	got := s.Sample(Lines{TMS: false})
	if !got.TCKRise {
		t.Fatalf("edge not reported %d ticks after TCK rose", Latency)
	}
	if !got.TMS {
		t.Fatalf("TMS at edge = false, want the value sampled with the rising TCK")
	}
}

func TestResetClearsChains(t *testing.T) {
	var s Synchronizer
	s.Sample(Lines{TCK: true, TMS: true, TDI: true, Reset: true})
	s.Sample(Lines{TCK: true, TMS: true, TDI: true, Reset: true})
	s.Reset()
	if got := s.Peek(); got != (Synced{}) {
		t.Fatalf("Peek after Reset = %+v", got)
	}
}
