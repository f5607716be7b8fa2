package apierr

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"
)

type errDTO struct {
	Error struct {
		Code    Code              `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

func Body(code Code, msg string) errDTO {
	var e errDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// From は任意の error をレスポンスボディへ。内部エラーの詳細はクライアントに出さない。
func From(err error) errDTO {
	var e *Error
	if errors.As(err, &e) {
		b := Body(e.Code, e.Message)
		b.Error.Details = e.Details
		return b
	}
	return Body(CodeInternal, "internal error")
}

// Respond はエラーを JSON で返して処理を中断する
func Respond(c *gin.Context, err error) {
	status := HTTPStatus(err)
	if status >= 500 {
		log.Printf("[ERROR] %s %s request_id=%s err=%v", c.Request.Method, c.FullPath(), c.GetString("request_id"), err)
	}
	c.AbortWithStatusJSON(status, From(err))
}

func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(400, Body(CodeInvalidArgument, msg))
}
