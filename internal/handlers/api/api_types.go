package api

import (
	"github.com/khanghh/classmeet/params"
)

type APIResponse struct {
	APIVersion string        `json:"apiVersion"`
	Data       any           `json:"data,omitempty"`
	Error      *APIErrorInfo `json:"error,omitempty"`
}

type APIErrorInfo struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Errors  []APIErrorDetail `json:"errors,omitempty"`
}

type APIErrorDetail struct {
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type AuthorizeURLResponse struct {
	URL string `json:"url"`
}

type DisconnectResponse struct {
	Connected bool `json:"connected"`
}

func NewDataResponse(data any) *APIResponse {
	return &APIResponse{
		APIVersion: params.APIVersion,
		Data:       data,
	}
}

func NewErrorResponse(code int, message string, details ...APIErrorDetail) *APIResponse {
	return &APIResponse{
		APIVersion: params.APIVersion,
		Error: &APIErrorInfo{
			Code:    code,
			Message: message,
			Errors:  details,
		},
	}
}
