package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/labstack/echo/v4"
)

type RequestOption func(req *http.Request) *http.Request

func WithContext(ctx context.Context) RequestOption {
	return func(req *http.Request) *http.Request {
		return req.WithContext(ctx)
	}
}

func WithHeader(key string, value string, values ...string) RequestOption {
	return func(req *http.Request) *http.Request {
		req.Header.Add(key, value)
		for _, v := range values {
			req.Header.Add(key, v)
		}
		return req
	}
}

// = WithHeader("Content-Type", ctyp)
func ContentType(ctyp string) RequestOption {
	return WithHeader("Content-Type", ctyp)
}

func newRequest(method string, target string, data io.Reader, reqopts ...RequestOption) *http.Request {
	req := httptest.NewRequest(method, target, data)
	for _, opt := range reqopts {
		req = opt(req)
	}
	return req
}

// Get builds echo.Context for a GET request, to call a handler directly.
func Get(e *echo.Echo, target string, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	resp := httptest.NewRecorder()
	return e.NewContext(newRequest(http.MethodGet, target, nil, reqopts...), resp), resp
}

// Post builds echo.Context for a POST request, to call a handler directly.
func Post(e *echo.Echo, target string, data io.Reader, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	resp := httptest.NewRecorder()
	return e.NewContext(newRequest(http.MethodPost, target, data, reqopts...), resp), resp
}

// Serve sends a request to e through its router, middlewares and error handler.
func Serve(e *echo.Echo, method string, target string, data io.Reader, reqopts ...RequestOption) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	e.ServeHTTP(resp, newRequest(method, target, data, reqopts...))
	return resp
}
