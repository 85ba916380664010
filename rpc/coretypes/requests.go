package coretypes

// RequestSubmitReview is the argument of submit_review. User is the
// authenticated identity of the caller.
type RequestSubmitReview struct {
	User    string `json:"user"`
	Product string `json:"product"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
	Code    string `json:"code"`
	Image   []byte `json:"image"`
	Attest  bool   `json:"attest"`
}

type RequestReview struct {
	ID string `json:"id"`
}

type RequestProduct struct {
	Product string `json:"product"`
}

type RequestUser struct {
	User string `json:"user"`
}

type RequestVerifyCode struct {
	User    string `json:"user"`
	Product string `json:"product"`
	Code    string `json:"code"`
}

// RequestRecordOrder is the argument of record_order, sent by the order
// service when an order is placed.
type RequestRecordOrder struct {
	Order    string   `json:"order"`
	User     string   `json:"user"`
	Products []string `json:"products"`
}

type RequestOrder struct {
	Order string `json:"order"`
}
