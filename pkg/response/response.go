package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 标准响应结构
// 字段顺序：code -> msg -> data
type Response struct {
	Code int         `json:"code"` // 业务状态码，0 表示成功
	Msg  string      `json:"msg"`  // 响应消息（中文）
	Data interface{} `json:"data"` // 响应数据
}

// 业务错误码
const (
	CodeSuccess = 0 // 操作成功

	// 参数错误 10xxx
	CodeInvalidRequest = 10001 // 请求参数无效
	CodeInvalidKey     = 10002 // 标识字符集非法

	// 认证与授权错误 20xxx
	CodeInvalidCredentials = 20001 // 用户名或密码错误
	CodeInvalidToken       = 20002 // 令牌无效或已过期
	CodeForbidden          = 20003 // 无权访问该模块

	// 资源不存在 40xxx
	CodeUserNotFound   = 40001 // 用户不存在
	CodeRoleNotFound   = 40002 // 角色不存在
	CodeModuleNotFound = 40003 // 模块不存在

	// 冲突错误 50xxx
	CodeRoleExists          = 50001 // 角色标识已存在
	CodeModuleExists        = 50002 // 模块标识已存在
	CodeUserExists          = 50003 // 用户名已存在
	CodeModuleInUse         = 50004 // 模块仍被权限行引用
	CodeSystemRoleProtected = 50005 // 系统内置角色不能删除

	// 服务器错误 90xxx
	CodeServerError = 90001 // 服务器内部错误
	CodeUnavailable = 90002 // 服务暂时不可用
)

// 错误码对应的消息
var codeMessages = map[int]string{
	CodeSuccess:             "操作成功",
	CodeInvalidRequest:      "请求参数无效",
	CodeInvalidKey:          "标识字符集非法",
	CodeInvalidCredentials:  "用户名或密码错误",
	CodeInvalidToken:        "令牌无效或已过期",
	CodeForbidden:           "无权访问该模块",
	CodeUserNotFound:        "用户不存在",
	CodeRoleNotFound:        "角色不存在",
	CodeModuleNotFound:      "模块不存在",
	CodeRoleExists:          "角色标识已存在",
	CodeModuleExists:        "模块标识已存在",
	CodeUserExists:          "用户名已存在",
	CodeModuleInUse:         "模块仍被权限行引用",
	CodeSystemRoleProtected: "系统内置角色不能删除",
	CodeServerError:         "服务器内部错误",
	CodeUnavailable:         "服务暂时不可用",
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  codeMessages[CodeSuccess],
		Data: data,
	})
}

// SuccessWithMsg 成功响应（自定义消息）
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  msg,
		Data: data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int) {
	msg, ok := codeMessages[code]
	if !ok {
		msg = "未知错误"
	}
	c.JSON(codeToHTTPStatus(code), Response{
		Code: code,
		Msg:  msg,
		Data: nil,
	})
}

// ErrorWithMsg 错误响应（自定义消息）
func ErrorWithMsg(c *gin.Context, code int, msg string) {
	c.JSON(codeToHTTPStatus(code), Response{
		Code: code,
		Msg:  msg,
		Data: nil,
	})
}

// codeToHTTPStatus 业务错误码转 HTTP 状态码
func codeToHTTPStatus(code int) int {
	switch {
	case code == CodeSuccess:
		return http.StatusOK
	case code >= 10000 && code < 20000:
		return http.StatusBadRequest
	case code >= 20000 && code < 30000:
		if code == CodeForbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case code >= 40000 && code < 50000:
		return http.StatusNotFound
	case code >= 50000 && code < 60000:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
