package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tally/internal/logger"
	"tally/internal/notify"
)

// ChangesHandler accepts external change notifications over a WebSocket
// and feeds them to the broker. A sync gateway or database hook connects
// here and streams one JSON message per changed record.
type ChangesHandler struct {
	broker *notify.Broker
}

// NewChangesHandler creates a new ChangesHandler
func NewChangesHandler(broker *notify.Broker) *ChangesHandler {
	return &ChangesHandler{broker: broker}
}

// changeMessage is one inbound notification frame.
type changeMessage struct {
	Kind     string `json:"kind"`
	RecordID string `json:"record_id"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Stream handles the change-notification WebSocket
// @Summary     Stream change notifications
// @Description Accept change events for the authenticated company over a WebSocket; each event triggers a store refetch
// @Tags        changes
// @Security    BearerAuth
// @Success     101 "Switching protocols"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /changes [get]
func (h *ChangesHandler) Stream(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Get().Warnw("websocket upgrade failed", "error", err, "company_id", companyID)
		return
	}
	defer ws.Close()

	log := logger.Get()
	log.Infow("change stream connected", "company_id", companyID)

	for {
		var msg changeMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnw("change stream closed unexpectedly", "company_id", companyID, "error", err)
			}
			return
		}

		// An unclassifiable kind still means something changed; the store's
		// only obligation is a refetch, so deliver it as unknown.
		kind := notify.ParseKind(msg.Kind)
		if kind == notify.KindUnknown {
			log.Warnw("change event with unknown kind",
				"company_id", companyID, "kind", msg.Kind)
		}

		h.broker.Publish(notify.Event{
			CompanyID: companyID,
			Kind:      kind,
			RecordID:  msg.RecordID,
		})
	}
}
