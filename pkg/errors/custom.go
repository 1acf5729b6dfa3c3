package errors

/*
	内置常用错误码

	1xxx 通用
	2xxx IRC 连接
	3xxx 配置
	4xxx 桥接与归档
*/

var (
	// ErrInternal 内部错误
	ErrInternal = New(1000, "内部错误")
	// ErrInvalidArgument 参数错误
	ErrInvalidArgument = New(1001, "参数错误")
	// ErrNotFound 资源不存在
	ErrNotFound = New(1004, "资源不存在")
	// ErrClosed 资源已关闭
	ErrClosed = New(1005, "资源已关闭")
)
