package echoutil

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// LogHandlerFunc logs each request and its response, with request id.
func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		meth := c.Request().Method
		path := c.Request().URL
		BEGIN := time.Now()
		reqid := requestId(c)
		c.Logger().Infof(
			"< request [%s] @[%s] %s %s (%s)", reqid, BEGIN, meth, path, c.Request().Header.Get(echo.HeaderContentType),
		)

		var err error

		defer func() {
			END := time.Now()
			c.Logger().Infof(
				"> response [%s] status = %d (for request @[%s] %s %s) in %v / error = %+v",
				reqid, c.Response().Status, BEGIN, meth, path, END.Sub(BEGIN), err,
			)
		}()

		err = next(c)
		return err
	}
}

func requestId(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

// ParseLevel maps level names (debug, info, warn, error, off) to gommon log.Lvl.
//
// Empty name means warn.
func ParseLevel(loglevel string) (log.Lvl, bool) {
	switch strings.ToLower(loglevel) {
	case "debug":
		return log.DEBUG, true
	case "info":
		return log.INFO, true
	case "warn", "":
		return log.WARN, true
	case "error":
		return log.ERROR, true
	case "off":
		return log.OFF, true
	default:
		return log.WARN, false
	}
}

func SetLevel(e *echo.Echo, loglevel string) {
	lvl, ok := ParseLevel(loglevel)
	e.Logger.SetLevel(lvl)
	if !ok {
		e.Logger.Warnf("unknown loglevel: %s . fall-backed to warn", loglevel)
	}
}
