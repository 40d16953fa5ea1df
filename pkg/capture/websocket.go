package capture

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	mstpv1 "github.com/robotalks/mstp.go/pkg/proto/mstp/v1"
)

const clientQueueSize = 64

// Hub fans records out to websocket clients, one binary message per record.
// Slow clients lose records instead of stalling the recorder.
type Hub struct {
	lock    sync.Mutex
	clients map[*hubClient]struct{}
	dropped uint64
}

type hubClient struct {
	ch chan []byte
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*hubClient]struct{})}
}

// Handler returns the websocket HTTP handler.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serve)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Dropped returns the records not delivered to slow clients.
func (h *Hub) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}

// WriteRecord implements Sink.
func (h *Hub) WriteRecord(rec *mstpv1.FrameRecord) error {
	b, err := Encode(rec)
	if err != nil {
		return err
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		select {
		case c.ch <- b:
		default:
			atomic.AddUint64(&h.dropped, 1)
		}
	}
	return nil
}

func (h *Hub) serve(conn *websocket.Conn) {
	c := &hubClient{ch: make(chan []byte, clientQueueSize)}
	h.lock.Lock()
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	glog.V(2).Infof("capture: client %s connected", conn.Request().RemoteAddr)

	defer func() {
		h.lock.Lock()
		delete(h.clients, c)
		h.lock.Unlock()
		conn.Close()
		glog.V(2).Infof("capture: client %s disconnected", conn.Request().RemoteAddr)
	}()

	// detect the peer closing
	closed := make(chan struct{})
	go func() {
		var discard []byte
		for websocket.Message.Receive(conn, &discard) == nil {
		}
		close(closed)
	}()

	for {
		select {
		case b := <-c.ch:
			if err := websocket.Message.Send(conn, b); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// WebsocketReader reads records from a Hub.
type WebsocketReader struct {
	conn *websocket.Conn
}

// DialWebsocket connects to a Hub at url, like ws://host:port/frames.
func DialWebsocket(url string) (*WebsocketReader, error) {
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return nil, err
	}
	return &WebsocketReader{conn: conn}, nil
}

// ReadRecord implements RecordReader.
func (r *WebsocketReader) ReadRecord() (*mstpv1.FrameRecord, error) {
	var b []byte
	if err := websocket.Message.Receive(r.conn, &b); err != nil {
		return nil, err
	}
	return Decode(b)
}

// Close closes the connection.
func (r *WebsocketReader) Close() error {
	return r.conn.Close()
}
