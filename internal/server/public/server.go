package public

import (
	"net/http"

	"inference-gateway/admission"
	"inference-gateway/internal/server/middleware"
	"inference-gateway/ledger"
	"inference-gateway/liquidity"

	"github.com/labstack/echo/v4"
)

type Server struct {
	e         *echo.Echo
	queue     *admission.Queue
	ledger    *ledger.Ledger
	liquidity *liquidity.Manager
}

func NewServer(queue *admission.Queue, l *ledger.Ledger, m *liquidity.Manager) *Server {
	e := echo.New()
	e.HideBanner = true
	s := &Server{
		e:         e,
		queue:     queue,
		ledger:    l,
		liquidity: m,
	}

	e.Use(middleware.LoggingMiddleware)
	g := e.Group("/v1/")

	g.GET("status", s.getStatus)

	g.POST("chat/completions", s.postChat)

	g.GET("participants/:address", s.getParticipantBalance)
	g.GET("participants/:address/history", s.getParticipantHistory)
	g.POST("participants/:address/fund", s.fundParticipant)
	g.POST("participants/:address/withdraw", s.withdrawFromParticipant)

	return s
}

func (s *Server) Start(addr string) {
	go s.e.Start(addr)
}

func (s *Server) Shutdown() error {
	return s.e.Close()
}

func (s *Server) getStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, StatusDto{
		Status:           "ok",
		Queue:            s.queue.GetQueueStatus(),
		PoolAddress:      s.liquidity.PoolAddress(),
		RefillInProgress: s.liquidity.RefillInProgress(),
	})
}
