// Package serving serves predictions of a model over HTTP,
// in the way which SageMaker endpoints expect.
package serving

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opst/mlci/pkg/apierr"
	"github.com/opst/mlci/pkg/echoutil"
	"github.com/opst/mlci/pkg/utils/retry"
)

type server struct {
	silent         bool
	loglevel       string
	gracefulPeriod time.Duration
}

func defaultServerConfig() server {
	return server{
		loglevel:       "info",
		gracefulPeriod: 30 * time.Second,
	}
}

type Option func(*server) *server

// set graceful period for shutdown.
//
// GracefulPeriod is 30 seconds by deafult.
func WithGracefulPeriod(d time.Duration) Option {
	return func(s *server) *server {
		s.gracefulPeriod = d
		return s
	}
}

// set log level of the server. "info" by default.
func WithLogLevel(loglevel string) Option {
	return func(s *server) *server {
		s.loglevel = loglevel
		return s
	}
}

// hide banner and listening port.
func Silent() Option {
	return func(s *server) *server {
		s.silent = true
		return s
	}
}

type Starter func(*echo.Echo) error

// start server on port number to start server.
func OnPort(p int) Starter {
	return func(e *echo.Echo) error {
		return e.Start(fmt.Sprintf(":%d", p))
	}
}

// start server on port number to start server.
//
// listen on localhost only.
func OnLocalPort(p int) Starter {
	return func(e *echo.Echo) error {
		return e.Start(fmt.Sprintf("localhost:%d", p))
	}
}

// New builds echo server routing /ping and /invocations.
func New(holder *Holder, opts ...Option) *echo.Echo {
	conf := defaultServerConfig()
	for _, opt := range opts {
		conf = *opt(&conf)
	}

	e := echo.New()
	if conf.silent {
		e.HideBanner = true
		e.HidePort = true
	}
	echoutil.SetLevel(e, conf.loglevel)
	e.HTTPErrorHandler = apierr.TextErrorHandler

	e.Use(
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}),
		middleware.Recover(),
	)
	e.GET(PathPing, Ping)
	e.POST(PathInvocations, Invocations(holder), echoutil.LogHandlerFunc)
	return e
}

type Server struct {
	Port int

	// ServerStop receives the error which stops the server.
	//
	// When the server is shut down by context, it is http.ErrServerClosed.
	ServerStop <-chan error
}

var ErrServerNotStarted = errors.New("serving: server has stopped before listening")

// Start starts server, and shuts down it gracefully when ctx is done.
//
// It returns after the server starts listening.
func Start(ctx context.Context, starter Starter, holder *Holder, opts ...Option) (Server, error) {
	conf := defaultServerConfig()
	for _, opt := range opts {
		conf = *opt(&conf)
	}
	e := New(holder, opts...)

	closeServer := func() func() {
		o := sync.Once{}
		return func() {
			o.Do(func() {
				if 0 < conf.gracefulPeriod {
					_ctx, _cancel := context.WithTimeout(context.Background(), conf.gracefulPeriod)
					defer _cancel()
					if err := e.Shutdown(_ctx); err != nil { // try to shutdown gracefully
						e.Logger.Warnf("graceful shutdown failed: %s", err)
					}
				}
				e.Close() // close forcefully
			})
		}
	}()

	stopped := make(chan struct{})
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		err := starter(e)
		ch <- err
		close(stopped)
	}()

	go func() {
		select {
		case <-ctx.Done():
			closeServer()
		case <-stopped:
		}
	}()

	port, err := retry.Blocking(
		ctx, retry.Immediately(retry.StaticBackoff(50*time.Millisecond)),
		func() (int, error) {
			if addr, ok := e.ListenerAddr().(*net.TCPAddr); ok {
				return addr.Port, nil
			}
			select {
			case <-stopped:
				return 0, ErrServerNotStarted
			default:
				return 0, retry.ErrRetry
			}
		},
	)
	if err != nil {
		closeServer()
		if errors.Is(err, ErrServerNotStarted) {
			if cause := <-ch; cause != nil && !errors.Is(cause, http.ErrServerClosed) {
				return Server{}, fmt.Errorf("%w: %w", err, cause)
			}
		}
		return Server{}, err
	}

	return Server{Port: port, ServerStop: ch}, nil
}
