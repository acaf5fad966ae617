package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageChunkStart     Stage = "CHUNK_START"
	StageChunkDone      Stage = "CHUNK_DONE"
	StageChunkError     Stage = "CHUNK_ERROR"
	StageChainComplete  Stage = "CHAIN_COMPLETE"
	StageDispatchSent   Stage = "DISPATCH_SENT"
	StageDispatchFailed Stage = "DISPATCH_FAILED"
)

// Event captures a single milestone of one invocation.
type Event struct {
	// InvocationID uniquely identifies the invocation using the 16-byte UUID form.
	InvocationID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Chunk is the chunk index the event refers to. For dispatch events it is
	// the index being handed off.
	Chunk int
	// Size is the chunk size in effect.
	Size int
	// Start and End bound the planned slice, [Start, End).
	Start int
	End   int
	// Total is the size of the target universe seen by this invocation.
	Total int
	// Dur captures execution latency for chunk completions and hand-offs.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.InvocationID == [16]byte{} {
		return errors.New("invocation id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageChunkStart, StageChunkDone, StageChainComplete:
	case StageChunkError, StageDispatchFailed:
		if e.Note == "" {
			return fmt.Errorf("%s requires note", e.Stage)
		}
	case StageDispatchSent:
		if e.Chunk <= 0 {
			return errors.New("dispatch requires a positive chunk index")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Chunk < 0 {
		return errors.New("chunk must be >= 0")
	}
	if e.End < e.Start {
		return errors.New("end must be >= start")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// InvocationUUID converts the binary invocation ID to uuid.UUID.
func (e Event) InvocationUUID() uuid.UUID {
	return uuid.UUID(e.InvocationID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseID decodes a textual UUID into the Event form. Unparseable IDs yield
// the zero value, which Validate rejects.
func ParseID(id string) [16]byte {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}
	}
	return UUIDToBytes(parsed)
}
