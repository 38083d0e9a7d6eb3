// Package proxy is a small relay that lets a browser-hosted client reach
// the Gateway from another origin. Requests under /api/proxy/ are replayed
// to the configured target with the same method, headers and body, and the
// upstream status and body are returned unchanged.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prefix is the path under which requests are relayed.
const Prefix = "/api/proxy"

// hop-by-hop headers are meaningful for a single connection only.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Options configures a Server.
type Options struct {
	Target         string
	Rate           float64
	Burst          int
	AllowedOrigins []string
	// Client performs the upstream request. Nil uses a client with no
	// timeout, since chat completions can take minutes.
	Client *http.Client
}

// Server relays requests to a single upstream.
type Server struct {
	target  *url.URL
	client  *http.Client
	limiter *rate.Limiter
	handler http.Handler
}

// New validates opts and builds the relay.
func New(opts Options) (*Server, error) {
	target, err := url.Parse(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("target %q must be an absolute URL", opts.Target)
	}
	s := &Server{
		target: target,
		client: opts.Client,
	}
	if s.client == nil {
		s.client = &http.Client{}
	}
	if opts.Rate > 0 || opts.Burst > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.Rate), max(opts.Burst, 1))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "target": s.target.String()})
	})
	g := e.Group(Prefix, s.rateLimit)
	g.Any("/*", s.relay)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
	}).Handler(e)
	return s, nil
}

// Handler returns the relay as an http.Handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("target", s.target.String()).Msg("proxy listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"message": "Too many requests"})
		}
		return next(c)
	}
}

func (s *Server) relay(c echo.Context) error {
	in := c.Request()
	upstream := *s.target
	upstream.Path = strings.TrimRight(s.target.Path, "/") + "/" + strings.TrimLeft(c.Param("*"), "/")
	upstream.RawPath = ""
	upstream.RawQuery = in.URL.RawQuery

	out, err := http.NewRequestWithContext(in.Context(), in.Method, upstream.String(), in.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid proxy request"})
	}
	out.Header = in.Header.Clone()
	out.ContentLength = in.ContentLength
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}

	start := time.Now()
	resp, err := s.client.Do(out)
	if err != nil {
		log.Warn().Err(err).Str("method", in.Method).Str("url", upstream.String()).Msg("proxy upstream failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"message": "Upstream request failed"})
	}
	defer resp.Body.Close()
	log.Debug().
		Str("method", in.Method).
		Str("path", upstream.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("proxied")

	header := c.Response().Header()
	for k, vs := range resp.Header {
		if strings.HasPrefix(k, "Access-Control-") {
			continue
		}
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}
	c.Response().WriteHeader(resp.StatusCode)
	_, err = io.Copy(c.Response(), resp.Body)
	return err
}
