package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"bridgeme/internal/chat"
	"bridgeme/internal/logger"
	"bridgeme/internal/user"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

var (
	baseURL     = flag.String("base", "http://localhost:8080", "server base URL")
	pairs       = flag.Int("pairs", 50, "pairs of virtual members")
	msgCount    = flag.Int("messages", 20, "messages per member")
	concurrency = flag.Int("concurrency", 25, "pairs running at once")
)

type stats struct {
	sent     atomic.Int64
	received atomic.Int64
	failed   atomic.Int64
}

func main() {
	flag.Parse()
	logger.Init("development")
	logger.Info().Int("users", *pairs*2).Int("messages", *msgCount).Msg("🔥 STARTING STRESS TEST")

	var st stats
	start := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*concurrency)
	for i := 0; i < *pairs; i++ {
		g.Go(func() error {
			if err := runPair(ctx, i, &st); err != nil {
				st.failed.Add(1)
				logger.Warn().Err(err).Int("pair", i).Msg("pair failed")
			}
			return nil
		})
	}
	g.Wait()

	logger.Info().
		Int64("sent", st.sent.Load()).
		Int64("events", st.received.Load()).
		Int64("failed", st.failed.Load()).
		Dur("took", time.Since(start)).
		Msg("✅ LOAD TEST COMPLETE")
}

// runPair registers two members; both flood the conversation between them
// over their websockets.
func runPair(ctx context.Context, pairID int, st *stats) error {
	prefix := fmt.Sprintf("load_%d_%d", time.Now().Unix(), pairID)
	tokenA, idA, err := authenticate(prefix+"_a", "password123")
	if err != nil {
		return err
	}
	tokenB, idB, err := authenticate(prefix+"_b", "password123")
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return spamChat(ctx, tokenA, idB, st) })
	g.Go(func() error { return spamChat(ctx, tokenB, idA, st) })
	if err := g.Wait(); err != nil {
		return err
	}
	return browseAndCart(tokenA)
}

func spamChat(ctx context.Context, token, peerID string, st *stats) error {
	wsURL := strings.Replace(*baseURL, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("ws connect: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			st.received.Add(1)
		}
	}()

	for i := 0; i < *msgCount; i++ {
		err := conn.WriteJSON(chat.WSMessage{Action: "send", PeerID: peerID, Text: fmt.Sprintf("LoadTest Msg %d", i)})
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		st.sent.Add(1)
		// simulate real network pacing
		time.Sleep(10 * time.Millisecond)
	}

	// give the last events time to arrive
	time.Sleep(500 * time.Millisecond)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func browseAndCart(token string) error {
	var items []struct {
		ID     string `json:"id"`
		IsSold bool   `json:"isSold"`
	}
	if err := call(token, http.MethodGet, "/api/market/items", nil, &items); err != nil {
		return fmt.Errorf("browse: %w", err)
	}
	for _, it := range items {
		if !it.IsSold {
			return call(token, http.MethodPost, "/api/market/cart/"+it.ID, nil, nil)
		}
	}
	return nil
}

// authenticate registers (ignoring "already exists") and logs in.
func authenticate(username, password string) (string, string, error) {
	creds := user.RegisterRequest{Username: username, Password: password}
	call("", http.MethodPost, "/register", creds, nil)

	var res user.LoginResponse
	if err := call("", http.MethodPost, "/login", creds, &res); err != nil {
		return "", "", fmt.Errorf("login %s: %w", username, err)
	}
	return res.AccessToken, res.ID, nil
}

func call(token, method, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, *baseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
