package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/mstp.go/pkg/mstp"
	"github.com/robotalks/mstp.go/pkg/netapi"
	mstpv1 "github.com/robotalks/mstp.go/pkg/proto/mstp/v1"
)

// Topic elements under <prefix><iface>/.
const (
	TopicMeta      = "meta"
	TopicRx        = "rx"
	TopicTx        = "tx"
	TopicFrames    = "frames"
	TopicBroadcast = "bcast"
)

// ErrBadTopic is returned for a tx topic without a valid destination.
var ErrBadTopic = errors.New("bad topic")

// DefaultSendTimeout bounds a downward send started from a tx message.
const DefaultSendTimeout = 5 * time.Second

// Bridge publishes the packets received by an interface and sends the
// packets published to its tx topics.
//
//	<iface>/meta      retained LinkMeta JSON, cleared on exit
//	<iface>/rx/<src>  payload of a received packet
//	<iface>/tx/<dst>  payload to send, <dst> is decimal or "bcast"
type Bridge struct {
	Queue       *Queue
	Device      netapi.Device
	Name        string
	Meta        *mstpv1.LinkMeta
	SendTimeout time.Duration

	rxCh    chan *netapi.Packet
	dropped uint64
}

// NewBridge creates a bridge for the named device.
func NewBridge(q *Queue, name string, dev netapi.Device, meta *mstpv1.LinkMeta) *Bridge {
	return &Bridge{
		Queue:       q,
		Device:      dev,
		Name:        name,
		Meta:        meta,
		SendTimeout: DefaultSendTimeout,
		rxCh:        make(chan *netapi.Packet, 64),
	}
}

// HostID returns the protected machine id, empty if unavailable.
func HostID() string {
	id, err := machineid.ProtectedID("mstp")
	if err != nil {
		glog.Warningf("machine id: %v", err)
		return ""
	}
	return id
}

// LinkMetaOf describes an interface for publishing.
func LinkMetaOf(name string, conf mstp.Config) *mstpv1.LinkMeta {
	return &mstpv1.LinkMeta{
		Interface: name,
		Addr:      uint32(conf.Addr),
		Role:      conf.Role.String(),
		HostID:    HostID(),
		MaxMaster: uint32(conf.MaxMaster),
	}
}

// RxTopic is the topic a packet from src is published to.
func RxTopic(iface string, src byte) string {
	return iface + "/" + TopicRx + "/" + strconv.Itoa(int(src))
}

// TxTopic is the topic for sending a packet to dst.
func TxTopic(iface string, dst byte, broadcast bool) string {
	if broadcast {
		return iface + "/" + TopicTx + "/" + TopicBroadcast
	}
	return iface + "/" + TopicTx + "/" + strconv.Itoa(int(dst))
}

// ParseTxTopic extracts the destination from a tx topic.
func ParseTxTopic(topic string) (dst byte, broadcast bool, err error) {
	items := strings.Split(topic, "/")
	if len(items) < 2 || items[len(items)-2] != TopicTx {
		return 0, false, ErrBadTopic
	}
	last := items[len(items)-1]
	if last == TopicBroadcast {
		return mstp.BroadcastAddr, true, nil
	}
	n, err := strconv.Atoi(last)
	if err != nil || n < 0 || n >= int(mstp.BroadcastAddr) {
		return 0, false, ErrBadTopic
	}
	return byte(n), false, nil
}

// Dropped returns the number of received packets not published because the
// publisher fell behind.
func (b *Bridge) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// HandlePacket implements netapi.PacketHandler. It never blocks.
func (b *Bridge) HandlePacket(ctx context.Context, pkt *netapi.Packet) {
	cp := &netapi.Packet{
		Src:       append([]byte(nil), pkt.Src...),
		Dst:       append([]byte(nil), pkt.Dst...),
		Broadcast: pkt.Broadcast,
		Kind:      pkt.Kind,
		Payload:   append([]byte(nil), pkt.Payload...),
	}
	select {
	case b.rxCh <- cp:
	default:
		atomic.AddUint64(&b.dropped, 1)
	}
}

// Run implements Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	var meta []byte
	if b.Meta != nil {
		encoded, err := json.Marshal(b.Meta)
		if err != nil {
			return err
		}
		meta = encoded
	}
	metaTopic := b.Name + "/" + TopicMeta
	prev := b.Queue.OnConnect
	b.Queue.OnConnect = func(q *Queue) {
		if meta != nil {
			q.PubWith(metaTopic, meta, 1, true)
		}
		if prev != nil {
			prev(q)
		}
	}
	b.Queue.Sub(b.Name+"/"+TopicTx+"/+", func(topic string, payload []byte) {
		go b.handleTx(ctx, topic, payload)
	})
	b.Queue.Connect()

	for {
		select {
		case <-ctx.Done():
			if meta != nil {
				b.Queue.PubWith(metaTopic, nil, 1, true).WaitTimeout(time.Second)
			}
			return b.Queue.Close()
		case pkt := <-b.rxCh:
			if len(pkt.Src) == 0 {
				continue
			}
			glog.V(2).Infof("%s: publish %d bytes from %d", b.Name, len(pkt.Payload), pkt.Src[0])
			b.Queue.Pub(RxTopic(b.Name, pkt.Src[0]), pkt.Payload)
		}
	}
}

func (b *Bridge) handleTx(ctx context.Context, topic string, payload []byte) error {
	dst, bcast, err := ParseTxTopic(topic)
	if err != nil {
		glog.Warningf("%s: %s: %v", b.Name, topic, err)
		return err
	}
	timeout := b.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	pkt := &netapi.Packet{
		Dst:       []byte{dst},
		Broadcast: bcast,
		Payload:   payload,
		Release:   func(err error) { done <- err },
	}
	if err = b.Device.Send(ctx, pkt); err == nil {
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		glog.Warningf("%s: send to %s: %v", b.Name, topic, err)
	}
	return err
}

// Discover collects the retained meta of every interface under the queue
// prefix for the given duration.
func Discover(ctx context.Context, q *Queue, wait time.Duration) ([]*mstpv1.LinkMeta, error) {
	resCh := make(chan *mstpv1.LinkMeta, 16)
	sub := q.Sub("+/"+TopicMeta, func(topic string, payload []byte) {
		if len(payload) == 0 {
			return
		}
		var meta mstpv1.LinkMeta
		if err := json.Unmarshal(payload, &meta); err != nil {
			glog.Warningf("%s: %v", topic, err)
			return
		}
		select {
		case resCh <- &meta:
		case <-time.After(time.Second):
		}
	})
	defer sub.Close()

	var res []*mstpv1.LinkMeta
	timeout := time.After(wait)
	for {
		select {
		case meta := <-resCh:
			res = append(res, meta)
		case <-timeout:
			return res, nil
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}
