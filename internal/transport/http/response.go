package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 非 RPC 端点的统一响应结构
type Response struct {
	Code int         `json:"code"`           // 业务状态码
	Msg  string      `json:"msg"`            // 提示信息
	Data interface{} `json:"data,omitempty"` // 数据载荷
}

// 通用提示信息
const (
	MsgSuccess       = "成功"
	MsgNotFound      = "接口不存在"
	MsgNotAllowed    = "请求方法不被允许"
	MsgUnhealthy     = "服务不可用"
	MsgInternalError = "服务器内部错误，请稍后重试"
)

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Msg:  MsgSuccess,
		Data: data,
	})
}

// Error 通用错误响应
func Error(c *gin.Context, httpCode int, msg string) {
	c.JSON(httpCode, Response{
		Code: httpCode,
		Msg:  msg,
	})
}

// ErrorWithData 带数据的错误响应
func ErrorWithData(c *gin.Context, httpCode int, msg string, data interface{}) {
	c.JSON(httpCode, Response{
		Code: httpCode,
		Msg:  msg,
		Data: data,
	})
}
