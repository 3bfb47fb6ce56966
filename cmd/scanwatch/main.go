// scanwatch follows a running scan from the terminal through the dashboard's
// status websocket, and can abort it.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-dronescan/internal/log"
	"github.com/teslashibe/go-dronescan/pkg/scan"
)

func main() {
	addr := flag.String("addr", "localhost:8181", "dashboard host:port")
	abort := flag.String("abort", "", "abort the scan with this reason and exit")
	flag.Parse()
	log.Init(os.Getenv("LOG_LEVEL"))

	if *abort != "" {
		if err := sendAbort(*addr, *abort); err != nil {
			log.Error("abort failed", "error", err)
			os.Exit(1)
		}
		log.Info("abort sent", "reason", *abort)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := watch(ctx, *addr); err != nil {
		log.Error("watch ended", "error", err)
		os.Exit(1)
	}
}

func watch(ctx context.Context, addr string) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/status"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	var last string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		var st scan.Status
		if err := json.Unmarshal(data, &st); err != nil {
			log.Warn("bad status message", "error", err)
			continue
		}
		line := render(st)
		if line != last {
			fmt.Println(line)
			last = line
		}
	}
}

// render formats the fields an operator watches during a scan.
func render(st scan.Status) string {
	marker := "-"
	if st.Markers.HasMarker {
		marker = fmt.Sprintf("%d/%s", st.Markers.MarkerID, st.Markers.Position)
	}
	line := fmt.Sprintf("%-12s h=%3dcm min=%3dcm bat=%3d%% markers=%v dominant=%s overlap=%5.1f%% captures=%d",
		st.Flight.State, st.Flight.Height, st.Flight.MinHeight, st.Battery,
		st.Markers.Registry, marker, st.Overlap.RatioPercent, st.Captures)
	if st.Flight.Outcome.String() != "none" {
		line += " outcome=" + st.Flight.Outcome.String()
	}
	return line
}

func sendAbort(addr, reason string) error {
	body, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post("http://"+addr+"/api/abort", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("dashboard answered %s", resp.Status)
	}
	return nil
}
