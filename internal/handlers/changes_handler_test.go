package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tally/internal/notify"
)

func newChangesServer(t *testing.T, broker *notify.Broker, companyID string) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("companyID", companyID)
		c.Next()
	})
	router.GET("/changes", NewChangesHandler(broker).Stream)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dialChanges(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/changes"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func nextEvent(t *testing.T, events <-chan notify.Event) notify.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return notify.Event{}
	}
}

func TestChangesStream(t *testing.T) {
	broker := notify.NewBroker()
	companyID := "co-1"
	events, cancel := broker.Subscribe(companyID)
	defer cancel()

	srv := newChangesServer(t, broker, companyID)
	ws := dialChanges(t, srv)

	t.Run("publishes_known_kinds", func(t *testing.T) {
		if err := ws.WriteJSON(map[string]string{"kind": "update", "record_id": "r-1"}); err != nil {
			t.Fatalf("write: %v", err)
		}
		ev := nextEvent(t, events)
		if ev.Kind != notify.KindUpdate || ev.RecordID != "r-1" || ev.CompanyID != companyID {
			t.Errorf("unexpected event %+v", ev)
		}
	})

	t.Run("delivers_unclassifiable_kinds_as_unknown", func(t *testing.T) {
		// Whatever changed upstream, the stores still need their refetch.
		if err := ws.WriteJSON(map[string]string{"kind": "mystery", "record_id": "r-2"}); err != nil {
			t.Fatalf("write: %v", err)
		}
		ev := nextEvent(t, events)
		if ev.Kind != notify.KindUnknown {
			t.Errorf("expected unknown kind delivered, got %+v", ev)
		}
		if ev.RecordID != "r-2" {
			t.Errorf("expected record id preserved, got %+v", ev)
		}
	})
}
