package dashboard

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fundingwatch/internal/presenter"
	"fundingwatch/logger"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 25 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveWS pushes the current view on connect and after every refresh cycle.
// All writes happen on this goroutine; a reader goroutine only watches for
// pongs and disconnects.
func (s *Server) serveWS(c *gin.Context) {
	log := s.log.WithComponent("dashboard_ws")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.driver.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v interface{}) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(v); err != nil {
			log.WithError(err).Debug("websocket write failed")
			return false
		}
		return true
	}

	if !write(presenter.BuildView(s.driver.Last())) {
		return
	}
	log.WithFields(logger.Fields{"remote": c.Request.RemoteAddr}).Debug("websocket client connected")

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-closed:
			return
		case last, ok := <-updates:
			if !ok || !write(presenter.BuildView(last)) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				log.WithError(err).Debug("websocket ping failed")
				return
			}
		}
	}
}
