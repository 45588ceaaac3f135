package authapi

import "encoding/json"

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// errorBody covers the error shapes the backend emits:
//
//	{"detail": "..."}
//	{"detail": [{"msg": "...", "loc": [...]}]}
//	{"message": "..."}
//	{"error": {"code": "...", "message": "..."}}
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type validationDetail struct {
	Msg string `json:"msg"`
}
