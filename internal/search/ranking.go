package search

// BucketWeights is one mode's row in spec §4.8's "Mode bucket weights"
// table: the relative share of the result limit each bucket gets before
// largest-remainder apportionment.
type BucketWeights struct {
	Code  int
	Docs  int
	Graph int
}

// RankingConfig is the tunable half of spec §4.8's ranking model: the
// per-mode bucket quotas and the structural/test/bucket score multipliers.
// A zero-value RankingConfig is not usable directly; callers resolve one
// via DefaultRankingConfig() or an Engine's own resolveRanking.
type RankingConfig struct {
	ModeWeights map[Mode]BucketWeights

	// StructuralMultiplier rewards function/class/interface/method/type
	// chunks (spec §4.8 ranking table, "structural chunk types" row).
	StructuralMultiplier float64
	// TestPathMultiplier penalizes rows whose path looks test-shaped
	// (spec §4.8, "*test*, *spec*, __tests__" row).
	TestPathMultiplier float64
	// DocsMultiplier and GraphMultiplier scale results by the bucket they
	// were classified into (spec §4.8, "bucket" rows).
	DocsMultiplier  float64
	GraphMultiplier float64
}

// DefaultRankingConfig reproduces spec §4.8's literal tables: the five
// named modes' bucket-weight rows and the balanced-mode multiplier set.
func DefaultRankingConfig() RankingConfig {
	return RankingConfig{
		ModeWeights: map[Mode]BucketWeights{
			ModeBalanced:       {Code: 4, Docs: 3, Graph: 3},
			ModeDiscovery:      {Code: 3, Docs: 4, Graph: 3},
			ModeImplementation: {Code: 6, Docs: 2, Graph: 2},
			ModePlanning:       {Code: 2, Docs: 6, Graph: 2},
			ModeDebug:          {Code: 7, Docs: 2, Graph: 1},
		},
		StructuralMultiplier: 1.25,
		TestPathMultiplier:   0.85,
		DocsMultiplier:       0.5,
		GraphMultiplier:      1.0,
	}
}

// weightsFor looks up mode's bucket-weight row, falling back to balanced
// and finally to the spec's literal balanced weights if the config was
// built without a ModeWeights table at all.
func (c RankingConfig) weightsFor(mode Mode) BucketWeights {
	if w, ok := c.ModeWeights[mode]; ok {
		return w
	}
	if w, ok := c.ModeWeights[ModeBalanced]; ok {
		return w
	}
	return BucketWeights{Code: 4, Docs: 3, Graph: 3}
}
