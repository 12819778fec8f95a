package dto

// Res is the envelope for error responses.
type Res struct {
	ResponseCode    string `json:"response_code"`
	ResponseMessage string `json:"response_message"`
	Stage           string `json:"stage,omitempty"`
	Reason          string `json:"reason,omitempty"`
}
