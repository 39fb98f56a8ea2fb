package api

import (
	"net/http"
	"time"

	"TrainCtl/internal/service/metrics"
	xlogger "TrainCtl/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// Stream pushes issued decisions over a WebSocket, optionally filtered by
// ?train_id=. Clients only need to answer pings.
func (h *TrafficHandler) Stream(c echo.Context) error {
	trainID := c.QueryParam("train_id")
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// upgrader already replied
		return nil
	}
	defer func() { _ = conn.Close() }()

	ch := h.broker.Subscribe(trainID)
	defer h.broker.Unsubscribe(trainID, ch)
	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()
	h.logger.Debug("stream opened", xlogger.String("train_id", trainID), xlogger.String("remote", c.RealIP()))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case evt := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			return nil
		}
	}
}
