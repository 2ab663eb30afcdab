package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"epics/internal/domain"
	"epics/internal/gateway"
	"epics/internal/session"
)

// Response is the body of every API reply.
type Response struct {
	State session.Snapshot `json:"state"`
	Error string           `json:"error,omitempty"`
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", s.ctrl.Snapshot())
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, Response{State: s.ctrl.Snapshot()})
}

func (s *Server) handleConnect(c *gin.Context) {
	s.reply(c, http.StatusOK, s.ctrl.Connect(c.Request.Context()))
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.reply(c, http.StatusOK, s.ctrl.Refresh(c.Request.Context()))
}

func (s *Server) handleDisconnect(c *gin.Context) {
	s.ctrl.Disconnect()
	s.reply(c, http.StatusOK, nil)
}

// handleMint starts a mint and returns at once; progress arrives over /ws.
func (s *Server) handleMint(c *gin.Context) {
	snap := s.ctrl.Snapshot()
	switch {
	case !snap.Connected():
		s.reply(c, http.StatusOK, session.ErrNotConnected)
		return
	case snap.MintPhase != domain.MintIdle:
		s.reply(c, http.StatusOK, session.ErrMintBusy)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.ctrl.Mint(s.bg); err != nil {
			s.logger.Debug("mint ended with error", zap.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, Response{State: s.ctrl.Snapshot()})
}

func (s *Server) reply(c *gin.Context, okStatus int, err error) {
	if err == nil {
		c.JSON(okStatus, Response{State: s.ctrl.Snapshot()})
		return
	}
	c.JSON(statusFor(err), Response{State: s.ctrl.Snapshot(), Error: err.Error()})
}

// statusFor maps controller and gateway errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrMintBusy),
		errors.Is(err, session.ErrAccountChanged):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoAccount):
		return http.StatusForbidden
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}

	switch gateway.Classify(err) {
	case gateway.KindUserRejected:
		return http.StatusForbidden
	case gateway.KindGatewayUnavailable:
		return http.StatusServiceUnavailable
	case gateway.KindChainError, gateway.KindRefreshFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
