package ircium

import "net/http"

// Response 管理端统一响应结构
type Response struct {
	Code    int    `json:"code"`    // 业务状态码
	Data    any    `json:"data"`    // 响应数据
	Message string `json:"message"` // 响应消息
}

// NewResponse 创建响应
func NewResponse(code int, data any, message string) *Response {
	return &Response{
		Code:    code,
		Data:    data,
		Message: message,
	}
}

// Success 创建成功响应
func Success(data any) *Response {
	return NewResponse(http.StatusOK, data, "success")
}

// Fail 创建失败响应
func Fail(code int, message string) *Response {
	return NewResponse(code, nil, message)
}

// ListResp 列表响应结构
type ListResp struct {
	List  any `json:"list"`  // 数据列表
	Total int `json:"total"` // 总数
}

// ListData 列表数据包装器
func ListData(list any, total int) *Response {
	// 确保 list 不为 nil，避免 JSON 序列化为 null
	if list == nil {
		list = []any{}
	}
	return Success(&ListResp{List: list, Total: total})
}
