package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"go-chat-broker/internal/protocol"
)

var (
	addr     = flag.String("addr", "localhost:7070", "broker TCP address")
	wsURL    = flag.String("ws", "", "broker websocket URL, e.g. ws://localhost:8080/ws; receivers connect here when set")
	pairs    = flag.Int("pairs", 50, "number of sender/receiver pairs")
	msgCount = flag.Int("messages", 20, "private messages per pair")
	pass     = flag.String("password", "password123", "password for every load user")
)

const readTimeout = 10 * time.Second

var (
	sent      atomic.Int64
	delivered atomic.Int64
	acked     atomic.Int64
	failed    atomic.Int64
)

// client is one logged-in broker connection.
type client interface {
	Send(m protocol.Message) error
	Recv() (protocol.Message, error)
	Close() error
}

type tcpClient struct {
	conn net.Conn
	r    *protocol.FrameReader
	w    *protocol.FrameWriter
}

func dialTCP() (client, error) {
	c, err := net.Dial("tcp", *addr)
	if err != nil {
		return nil, err
	}
	return &tcpClient{conn: c, r: protocol.NewFrameReader(c, 0), w: protocol.NewFrameWriter(c)}, nil
}

func (c *tcpClient) Send(m protocol.Message) error { return c.w.WriteMessage(m) }

func (c *tcpClient) Recv() (protocol.Message, error) {
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	frame, err := c.r.ReadFrame()
	if err != nil {
		return nil, err
	}
	return protocol.Decode(frame)
}

func (c *tcpClient) Close() error { return c.conn.Close() }

type wsClient struct {
	conn *websocket.Conn
}

func dialWS() (client, error) {
	c, _, err := websocket.DefaultDialer.Dial(*wsURL, nil)
	if err != nil {
		return nil, err
	}
	return &wsClient{conn: c}, nil
}

func (c *wsClient) Send(m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsClient) Recv() (protocol.Message, error) {
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.Decode(payload)
}

func (c *wsClient) Close() error { return c.conn.Close() }

func main() {
	flag.Parse()
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each pair...", *pairs*2, *msgCount)
	start := time.Now()
	var wg sync.WaitGroup

	// We will create pairs: u_0_a talks to u_0_b, u_1_a talks to u_1_b...
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE in %s: sent=%d delivered=%d acked=%d failed=%d",
		time.Since(start).Round(time.Millisecond), sent.Load(), delivered.Load(), acked.Load(), failed.Load())
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)

	sender, err := connect(dialTCP, userA)
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", userA, err)
		return
	}
	defer sender.Close()

	dialReceiver := dialTCP
	if *wsURL != "" {
		dialReceiver = dialWS
	}
	receiver, err := connect(dialReceiver, userB)
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", userB, err)
		return
	}
	defer receiver.Close()

	var pairWg sync.WaitGroup
	pairWg.Add(2)
	go spamChat(&pairWg, sender, userA, userB)
	go drainChat(&pairWg, receiver, userB)
	pairWg.Wait()
}

// connect dials, logs in and consumes the login response and history push.
func connect(dial func() (client, error), username string) (client, error) {
	c, err := dial()
	if err != nil {
		return nil, err
	}
	if err := c.Send(&protocol.Login{Username: username, Password: *pass}); err != nil {
		c.Close()
		return nil, err
	}
	for {
		m, err := c.Recv()
		if err != nil {
			c.Close()
			return nil, err
		}
		switch v := m.(type) {
		case *protocol.Response:
			if v.Status != protocol.StatusOK {
				c.Close()
				return nil, errors.New(protocol.Readable(v))
			}
		case *protocol.PrivateHistory:
			return c, nil
		}
	}
}

func spamChat(wg *sync.WaitGroup, c client, from, to string) {
	defer wg.Done()

	for i := 0; i < *msgCount; i++ {
		msg := &protocol.Private{
			Sender:   from,
			Receiver: to,
			Content:  fmt.Sprintf("LoadTest Msg %d from %s", i, from),
			Time:     protocol.Now(),
		}
		if err := c.Send(msg); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", from, err)
			return
		}
		sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	for i := 0; i < *msgCount; i++ {
		m, err := c.Recv()
		if err != nil {
			log.Printf("❌ Ack Fail [%s]: %v", from, err)
			return
		}
		if r, ok := m.(*protocol.Response); ok && r.Status == protocol.StatusOK {
			acked.Add(1)
		} else {
			failed.Add(1)
			log.Printf("⚠️ [%s] %s", from, protocol.Readable(m))
		}
	}
	log.Printf("✅ %s finished sending %d msgs", from, *msgCount)
}

func drainChat(wg *sync.WaitGroup, c client, username string) {
	defer wg.Done()

	var last protocol.Message
	for got := 0; got < *msgCount; {
		m, err := c.Recv()
		if err != nil {
			log.Printf("❌ Receive Fail [%s] after %d msgs: %v", username, got, err)
			return
		}
		if m.Kind() == protocol.KindPrivate {
			got++
			delivered.Add(1)
			last = m
		}
	}
	if last != nil {
		log.Printf("📨 [%s] last: %s", username, protocol.Readable(last))
	}
}
