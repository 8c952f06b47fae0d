package web

import (
	"github.com/oarkflow/frame"
	"github.com/oarkflow/frame/pkg/protocol/consts"
)

type Response struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
	Success bool   `json:"success"`
}

func Failed(ctx *frame.Context, code int, message string) {
	ctx.JSON(consts.StatusOK, Response{
		Code:    code,
		Message: message,
		Success: false,
	})
}

func Success(ctx *frame.Context, code int, data any, message ...string) {
	response := Response{
		Code:    code,
		Data:    data,
		Success: true,
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	ctx.JSON(consts.StatusOK, response)
}
