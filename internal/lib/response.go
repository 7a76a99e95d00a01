package response

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

func OK() OKResponse {
	return OKResponse{OK: true}
}
