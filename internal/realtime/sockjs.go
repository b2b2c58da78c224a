package realtime

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

const clientBuffer = 32

// NewSockJSHandler serves SockJS sessions under prefix. Sessions receive every event
// until they send a subscribe frame.
func NewSockJSHandler(prefix string, h *Hub) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &Client{ID: uuid.NewString(), Send: make(chan []byte, clientBuffer)}
		h.Register(client)
		defer h.Unregister(client)
		h.logger.Debug().Str("client_id", client.ID).Msg("sockjs session opened")

		go func() {
			for msg := range client.Send {
				if err := session.Send(string(msg)); err != nil {
					return
				}
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				h.logger.Debug().Str("client_id", client.ID).Err(err).Msg("sockjs session closed")
				return
			}
			h.handleMessage(client, []byte(msg))
		}
	})
}
