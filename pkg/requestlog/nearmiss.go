package requestlog

// NearMissInfo records how close an expectation came to matching a request
// that matched nothing.
type NearMissInfo struct {
	ExpectationID   string `json:"expectationId"`
	MatchPercentage int    `json:"matchPercentage"`
	Reason          string `json:"reason"`
}
