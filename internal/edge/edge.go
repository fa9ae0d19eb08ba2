// Package edge is the public entry point in front of the application pool: it serves
// collected static assets and uploaded media from disk and forwards everything else.
package edge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/middleware"
)

// Options configures the edge handler.
type Options struct {
	Upstream              string
	StaticRoot            string
	MediaRoot             string
	StaticMaxAge          time.Duration
	MediaMaxAge           time.Duration
	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
}

// New builds the edge handler. Paths under /static/ and /media/ are answered from disk
// and never forwarded, even when the file is missing.
func New(opts Options, logger *zap.Logger) (http.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	target, err := url.Parse(opts.Upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", opts.Upstream)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ResponseHeaderTimeout <= 0 {
		opts.ResponseHeaderTimeout = 120 * time.Second
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.Logger(logger))
	engine.Any("/static/*filepath", serveDir(opts.StaticRoot, cacheControl(opts.StaticMaxAge, true)))
	engine.Any("/media/*filepath", serveDir(opts.MediaRoot, cacheControl(opts.MediaMaxAge, false)))
	proxy := newProxy(target, opts, logger)
	engine.NoRoute(gin.WrapH(proxy))
	return engine, nil
}

func cacheControl(maxAge time.Duration, immutable bool) string {
	cc := "public, max-age=" + strconv.Itoa(int(maxAge.Seconds()))
	if immutable {
		cc += ", immutable"
	}
	return cc
}

func serveDir(root, cc string) gin.HandlerFunc {
	dir := http.Dir(root)
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Header("Allow", "GET, HEAD")
			c.AbortWithStatus(http.StatusMethodNotAllowed)
			return
		}
		f, err := dir.Open(c.Param("filepath"))
		if err != nil {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil || st.IsDir() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.Header("Cache-Control", cc)
		http.ServeContent(c.Writer, c.Request, st.Name(), st.ModTime(), f)
	}
}

func newProxy(target *url.URL, opts Options, logger *zap.Logger) *httputil.ReverseProxy {
	dialer := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: 30 * time.Second}
	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			// The application resolves the tenant from Host.
			r.Out.Host = r.In.Host
		},
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
			MaxIdleConns:          256,
			MaxIdleConnsPerHost:   64,
			IdleConnTimeout:       90 * time.Second,
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			status := upstreamStatus(err)
			if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
				logger.Debug("client went away", zap.String("path", r.URL.Path))
			} else {
				logger.Warn("upstream error",
					zap.Int("status", status),
					zap.String("host", r.Host),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
			}
			w.WriteHeader(status)
		},
	}
}

// upstreamStatus maps a transport error to 504 when the application accepted the request
// but did not answer in time, and 502 otherwise.
func upstreamStatus(err error) int {
	var op *net.OpError
	if errors.As(err, &op) && op.Op == "dial" {
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// RedirectHTTPS sends plain HTTP requests to the same host over HTTPS on tlsAddr's port.
func RedirectHTTPS(tlsAddr string) http.Handler {
	_, port, _ := net.SplitHostPort(tlsAddr)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if port != "" && port != "443" {
			host = net.JoinHostPort(host, port)
		}
		http.Redirect(w, r, "https://"+host+r.URL.RequestURI(), http.StatusMovedPermanently)
	})
}
