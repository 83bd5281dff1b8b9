package httputil

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

const (
	ContentTypeJSON  = "application/json"
	ContentTypePlain = "text/plain; charset=utf-8"
)

// JSON writes v as the response body. Encoding failures become a 500.
func JSON(ctx *fasthttp.RequestCtx, statusCode int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		Text(ctx, fasthttp.StatusInternalServerError, "failed to encode response\n")
		return
	}
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType(ContentTypeJSON)
	ctx.SetBody(body)
}

// Text writes a plain text body
func Text(ctx *fasthttp.RequestCtx, statusCode int, body string) {
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType(ContentTypePlain)
	ctx.SetBodyString(body)
}

// MethodNotAllowed answers 405 with the allowed methods listed
func MethodNotAllowed(ctx *fasthttp.RequestCtx, allowed string) {
	ctx.Response.Header.Set(fasthttp.HeaderAllow, allowed)
	Text(ctx, fasthttp.StatusMethodNotAllowed, "Method Not Allowed\n")
}
