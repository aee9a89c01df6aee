package utils

import (
	"encoding/json"
	"net/http"
)

// APIResponse 标准API响应结构
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// APIError 错误信息结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Meta 元数据结构（列表总数等）
type Meta struct {
	Total int `json:"total"`
}

func writeResponse(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		// 头已写出，只能记录
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteJSONResponse 写入JSON响应
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeResponse(w, statusCode, APIResponse{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	})
}

// WriteSuccessResponse 写入成功响应
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusOK, data)
}

// WriteCreatedResponse 写入创建成功响应
func WriteCreatedResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusCreated, data)
}

// WriteListResponse 写入列表响应，meta.total 为条目数
func WriteListResponse(w http.ResponseWriter, data interface{}, total int) {
	writeResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &Meta{Total: total},
	})
}

// WriteErrorResponseWithCode 写入带错误代码的错误响应
func WriteErrorResponseWithCode(w http.ResponseWriter, statusCode int, code, message, details string) {
	writeResponse(w, statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteBadRequestResponse 写入400错误响应
func WriteBadRequestResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusBadRequest, "BAD_REQUEST", message, "")
}

// WriteValidationErrorResponse 写入验证错误响应
func WriteValidationErrorResponse(w http.ResponseWriter, message string, details string) {
	WriteErrorResponseWithCode(w, http.StatusBadRequest, "VALIDATION_ERROR", message, details)
}

// WriteUnauthorizedResponse 写入401错误响应
func WriteUnauthorizedResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusUnauthorized, "UNAUTHORIZED", message, "")
}

// WriteNotFoundResponse 写入404错误响应
func WriteNotFoundResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusNotFound, "NOT_FOUND", message, "")
}

// WriteConflictResponse 写入409错误响应
func WriteConflictResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusConflict, "CONFLICT", message, "")
}

// WriteTooManyRequestsResponse 写入429错误响应
func WriteTooManyRequestsResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusTooManyRequests, "RATE_LIMITED", message, "")
}

// WriteInternalServerErrorResponse 写入500错误响应
func WriteInternalServerErrorResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message, "")
}

// ParseJSONBody 解析JSON请求体，拒绝未知字段
func ParseJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
