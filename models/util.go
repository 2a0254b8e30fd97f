package models

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Snowflake generates unique 64-bit IDs composed of timestamp and node/sequence bits.
// Layout: 1 bit unused + 41 bits timestamp(ms since custom epoch) + 10 bits node + 12 bits sequence.
type Snowflake struct {
	epoch  int64
	nodeID int64 // 10 bits
	lastMs int64
	seq    int64 // 12 bits
	mu     sync.Mutex
}

// NewSnowflake creates a generator for the given node.
func NewSnowflake(nodeID int64) *Snowflake {
	return &Snowflake{epoch: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), nodeID: nodeID & 0x3FF}
}

// Next returns the next ID.
func (s *Snowflake) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= s.lastMs {
		now = s.lastMs
		s.seq = (s.seq + 1) & 0xFFF
		if s.seq == 0 { // sequence rollover, wait next ms
			for now <= s.lastMs {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.seq = 0
	}
	s.lastMs = now
	ts := (now - s.epoch) & ((1 << 41) - 1)
	return (ts << (10 + 12)) | (s.nodeID << 12) | s.seq
}

// SnowflakeToUUID4 encodes a 64-bit snowflake ID into a UUIDv4-formatted string without hyphens.
// Reversible mapping: store high 16 bits in bytes 4-5 and low 48 bits in bytes 10-15, preserving version/variant.
func SnowflakeToUUID4(id uint64) string {
	var b [16]byte
	binary.BigEndian.PutUint16(b[4:6], uint16(id>>48))
	lo := id & 0x0000FFFFFFFFFFFF
	b[10] = byte((lo >> 40) & 0xFF)
	b[11] = byte((lo >> 32) & 0xFF)
	b[12] = byte((lo >> 24) & 0xFF)
	b[13] = byte((lo >> 16) & 0xFF)
	b[14] = byte((lo >> 8) & 0xFF)
	b[15] = byte(lo & 0xFF)

	// Set UUID version to 4 and RFC4122 variant
	b[6] = (b[6] & 0x0F) | 0x40
	b[8] = (b[8] & 0x3F) | 0x80

	return fmt.Sprintf("%08x%04x%04x%04x%012x",
		binary.BigEndian.Uint32(b[0:4]),
		binary.BigEndian.Uint16(b[4:6]),
		binary.BigEndian.Uint16(b[6:8]),
		binary.BigEndian.Uint16(b[8:10]),
		b[10:16],
	)
}

// UUID4ToSnowflake decodes a UUID string produced by SnowflakeToUUID4 back to the original snowflake ID.
// Accepts uppercase/lowercase and with/without hyphens.
func UUID4ToSnowflake(uuid string) (uint64, error) {
	s := strings.ReplaceAll(uuid, "-", "")
	if len(s) != 32 {
		return 0, fmt.Errorf("invalid uuid length: %d", len(s))
	}
	var b [16]byte
	for i := 0; i < 16; i++ {
		var v uint64
		_, err := fmt.Sscanf(s[i*2:(i+1)*2], "%02x", &v)
		if err != nil {
			return 0, fmt.Errorf("invalid hex at byte %d", i)
		}
		b[i] = byte(v)
	}
	hi := uint64(binary.BigEndian.Uint16(b[4:6]))
	lo := (uint64(b[10]) << 40) | (uint64(b[11]) << 32) | (uint64(b[12]) << 24) | (uint64(b[13]) << 16) | (uint64(b[14]) << 8) | uint64(b[15])
	return (hi << 48) | lo, nil
}

var sessionIDs = NewSnowflake(1)

// NewSessionID returns a time-ordered OAuth2 session identifier.
// Session ids are not secret; the rotating token id is.
func NewSessionID() string {
	return SnowflakeToUUID4(uint64(sessionIDs.Next()))
}
