package domain

// Strategy marks which retrieval path produced a candidate.
type Strategy string

const (
	// StrategyKeyword means the candidate came from substring matching.
	StrategyKeyword Strategy = "keyword"
	// StrategyVector means the candidate came from embedding similarity.
	StrategyVector Strategy = "vector"
	// StrategyBoth means both paths found the same source entry.
	StrategyBoth Strategy = "both"
)

// Method labels which strategies contributed to a whole retrieval call.
type Method string

const (
	MethodKeyword Method = "keyword"
	MethodVector  Method = "vector"
	MethodHybrid  Method = "hybrid"
	MethodNone    Method = "none"
	MethodError   Method = "error"
)

// Candidate is a scored FAQ entry reference. It lives only for the duration
// of one retrieval call. Scores are relative ranking weights, not
// probabilities, and may exceed 1.
type Candidate struct {
	Entry    Entry
	Score    float64
	Strategy Strategy
}

// RankedSet is the deduplicated, score-ordered output of one retrieval call.
type RankedSet struct {
	Candidates []Candidate
	Method     Method
}
