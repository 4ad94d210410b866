package xmetrics

import (
	"context"
	"dstaping/pkg/xcommon"
	"dstaping/pkg/xlog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const shutdownTimeout = 2 * time.Second

// Server /metrics http服务
type Server struct {
	svr *http.Server
	ln  net.Listener
	wg  xcommon.WaitGroup
}

func Serve(ctx context.Context, addr string, r *Registry) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "metrics listen %v", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	s := &Server{
		svr: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done(ctx)
		if err := s.svr.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			xlog.Get(ctx).Warn("Metrics server stopped.", zap.Any("err", err))
		}
	}()
	xlog.Get(ctx).Info("Metrics listen.", zap.String("addr", ln.Addr().String()))
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.svr.Shutdown(shutdownCtx); err != nil {
		xlog.Get(ctx).Warn("Metrics shutdown failed.", zap.Any("err", err))
	}
	s.wg.Wait()
}
