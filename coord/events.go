// This package contains the commit coordination protocol: the two events exchanged between
// a split-assigning coordinator and a stream-reading worker to pause and resume offset
// commits, plus the state machines on both ends of the handshake.
//
// Transport is the caller's concern. The protocol only requires that events from one
// endpoint to the other are delivered in send order; duplicate delivery is harmless because
// both events carry level semantics, not edges.
package coord

import "fmt"

// Event is a control message carried between the coordinator and a worker.
type Event interface{ event() }

// OffsetCommitRequest is sent by the coordinator to the worker. ShouldCommit=false
// instructs the worker to stop committing offsets because the coordinator is about to
// perform a structural change, such as registering a newly discovered table, that must not
// race with split reassignment. ShouldCommit=true instructs the worker to resume.
type OffsetCommitRequest struct {
	ShouldCommit bool
}

func (OffsetCommitRequest) event() {}

// OffsetCommitAck is sent by the worker back to the coordinator once it has observed a
// suspend request and locally ceased commit activity. Its receipt is the coordinator's
// signal that the structural change may proceed.
type OffsetCommitAck struct{}

func (OffsetCommitAck) event() {}

const (
	tagRequest byte = 0x01
	tagAck     byte = 0x02
)

// Marshal frames an event for the control channel: one type byte plus payload.
func Marshal(e Event) ([]byte, error) {
	switch e := e.(type) {
	case OffsetCommitRequest:
		b := []byte{tagRequest, 0}
		if e.ShouldCommit {
			b[1] = 1
		}
		return b, nil
	case OffsetCommitAck:
		return []byte{tagAck}, nil
	default:
		return nil, fmt.Errorf("unknown event type %T", e)
	}
}

// Unmarshal decodes an event framed by [Marshal].
func Unmarshal(data []byte) (Event, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty event frame")
	}
	switch data[0] {
	case tagRequest:
		if len(data) != 2 {
			return nil, fmt.Errorf("request frame has %d bytes, want 2", len(data))
		}
		return OffsetCommitRequest{ShouldCommit: data[1] != 0}, nil
	case tagAck:
		if len(data) != 1 {
			return nil, fmt.Errorf("ack frame has %d bytes, want 1", len(data))
		}
		return OffsetCommitAck{}, nil
	default:
		return nil, fmt.Errorf("unknown event tag 0x%02x", data[0])
	}
}
