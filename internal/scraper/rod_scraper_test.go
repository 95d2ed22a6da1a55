package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

// newStalledBrowser serves just enough of the DevTools protocol to open a
// tab, then never answers the navigation so the scrape runs into its
// timeout with the browser and page still open.
func newStalledBrowser(t *testing.T, navigated *atomic.Bool) string {
	t.Helper()

	srv := httptest.NewServer(websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(conn *websocket.Conn) {
			for {
				var raw string
				if err := websocket.Message.Receive(conn, &raw); err != nil {
					return
				}
				var call struct {
					ID     int    `json:"id"`
					Method string `json:"method"`
				}
				if err := json.Unmarshal([]byte(raw), &call); err != nil {
					return
				}

				result := `{}`
				switch call.Method {
				case "Target.createTarget":
					result = `{"targetId":"T1"}`
				case "Target.attachToTarget":
					result = `{"sessionId":"S1"}`
				case "Page.navigate":
					navigated.Store(true)
					continue
				}
				reply := `{"id":` + strconv.Itoa(call.ID) + `,"result":` + result + `}`
				if err := websocket.Message.Send(conn, reply); err != nil {
					return
				}
			}
		},
	})
	t.Cleanup(srv.Close)
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestRodScraper_TimeoutReturnsError(t *testing.T) {
	var navigated atomic.Bool
	r := NewRodScraper(newStalledBrowser(t, &navigated), 300*time.Millisecond)

	res, err := r.Scrape(context.Background(), Request{URL: "https://shop.example/plan"})
	if err == nil {
		t.Fatalf("expected timeout error, got result %+v", res)
	}
	if !navigated.Load() {
		t.Fatalf("expected the page to be opened before the timeout, got %v", err)
	}
}

func TestRodScraper_UnreachableBrowser(t *testing.T) {
	srv := httptest.NewServer(nil)
	addr := "ws://" + strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	r := NewRodScraper(addr, time.Second)
	if _, err := r.Scrape(context.Background(), Request{URL: "https://shop.example/plan"}); err == nil {
		t.Fatalf("expected connect error")
	}
}
