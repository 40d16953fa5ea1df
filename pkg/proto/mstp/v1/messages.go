package mstpv1

import "github.com/golang/protobuf/proto"

// FrameRecord is one frame seen on an interface.
type FrameRecord struct {
	TimestampNs int64  `protobuf:"varint,1,opt,name=timestamp_ns,json=timestampNs,proto3" json:"timestamp_ns,omitempty"`
	Interface   string `protobuf:"bytes,2,opt,name=interface,proto3" json:"interface,omitempty"`
	Outbound    bool   `protobuf:"varint,3,opt,name=outbound,proto3" json:"outbound,omitempty"`
	FrameType   uint32 `protobuf:"varint,4,opt,name=frame_type,json=frameType,proto3" json:"frame_type,omitempty"`
	Dst         uint32 `protobuf:"varint,5,opt,name=dst,proto3" json:"dst,omitempty"`
	Src         uint32 `protobuf:"varint,6,opt,name=src,proto3" json:"src,omitempty"`
	Payload     []byte `protobuf:"bytes,7,opt,name=payload,proto3" json:"payload,omitempty"`
	Valid       bool   `protobuf:"varint,8,opt,name=valid,proto3" json:"valid,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *FrameRecord) ProtoMessage() {}

// Reset implements proto.Message.
func (m *FrameRecord) Reset() { *m = FrameRecord{} }

// String implements proto.Message.
func (m *FrameRecord) String() string { return proto.CompactTextString(m) }

// LinkMeta describes an interface published by a bridge.
type LinkMeta struct {
	Interface string `protobuf:"bytes,1,opt,name=interface,proto3" json:"interface,omitempty"`
	Addr      uint32 `protobuf:"varint,2,opt,name=addr,proto3" json:"addr"`
	Role      string `protobuf:"bytes,3,opt,name=role,proto3" json:"role,omitempty"`
	HostID    string `protobuf:"bytes,4,opt,name=host_id,json=hostId,proto3" json:"host_id,omitempty"`
	MaxMaster uint32 `protobuf:"varint,5,opt,name=max_master,json=maxMaster,proto3" json:"max_master,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *LinkMeta) ProtoMessage() {}

// Reset implements proto.Message.
func (m *LinkMeta) Reset() { *m = LinkMeta{} }

// String implements proto.Message.
func (m *LinkMeta) String() string { return proto.CompactTextString(m) }

func init() {
	proto.RegisterType((*FrameRecord)(nil), "mstp.v1.FrameRecord")
	proto.RegisterType((*LinkMeta)(nil), "mstp.v1.LinkMeta")
}
