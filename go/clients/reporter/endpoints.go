package reporter

// Endpoint formats take the match id.
const (
	EndpointScores   = "/matches/%s/scores"
	EndpointMatchEnd = "/matches/%s/end"
)
