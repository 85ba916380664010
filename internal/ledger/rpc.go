package ledger

// Parameters and results of the ledger node JSON-RPC routes.

type RequestBroadcastTx struct {
	Tx Tx `json:"tx"`
}

type RequestReviewer struct {
	User    string `json:"user_id"`
	Product string `json:"product_id"`
}

type RequestProduct struct {
	Product string `json:"product_id"`
}

type ResultReviewerVerified struct {
	Verified bool `json:"verified"`
}

type ResultHasReviewed struct {
	Reviewed bool `json:"reviewed"`
}

type ResultReviews struct {
	Reviews []Attestation `json:"reviews"`
}
