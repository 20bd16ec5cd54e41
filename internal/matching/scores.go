package matching

// Field weights used to rank near misses. A field that matches contributes
// its weight to the score; more specific fields weigh more.
const (
	// ScoreMethod is the weight of a method match.
	ScoreMethod = 10

	// ScorePath is the weight of a path match.
	ScorePath = 15

	// ScorePathParameter is the weight of each matched path parameter.
	ScorePathParameter = 5

	// ScoreHeader is the weight of each matched header.
	ScoreHeader = 10

	// ScoreCookie is the weight of each matched cookie.
	ScoreCookie = 10

	// ScoreQueryParam is the weight of each matched query parameter.
	ScoreQueryParam = 5

	// ScoreBody is the weight of a body match.
	ScoreBody = 20

	// ScoreFlag is the weight of keep-alive and secure matches.
	ScoreFlag = 2

	// ScoreSocketAddress is the weight of a socket address match.
	ScoreSocketAddress = 5

	// ScoreOpenAPI is the weight of an OpenAPI operation match.
	ScoreOpenAPI = 30
)

// DefaultNearMisses is how many near misses are kept when none is requested.
const DefaultNearMisses = 3
