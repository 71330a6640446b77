package storage

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// MarshalFileMeta encodes a caller-supplied per-file metadata message into
// the opaque byte form backends persist inside snapshot manifests. A nil
// message encodes to nil. The message is wrapped in an Any so the original
// type survives the round trip without storage knowing it.
func MarshalFileMeta(m proto.Message) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	wrapped, err := anypb.New(m)
	if err != nil {
		return nil, fmt.Errorf("%w: wrap file meta: %v", ErrInvalidArgument, err)
	}
	data, err := proto.Marshal(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: encode file meta: %v", ErrInvalidArgument, err)
	}
	return data, nil
}

// UnmarshalFileMeta decodes bytes produced by MarshalFileMeta into out.
// Empty data resets out and returns nil, matching the contract that absent
// metadata is not an error.
func UnmarshalFileMeta(data []byte, out proto.Message) error {
	if out == nil {
		return fmt.Errorf("%w: nil file meta target", ErrInvalidArgument)
	}
	proto.Reset(out)
	if len(data) == 0 {
		return nil
	}
	var wrapped anypb.Any
	if err := proto.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("%w: decode file meta envelope: %v", ErrCorrupted, err)
	}
	if err := wrapped.UnmarshalTo(out); err != nil {
		return fmt.Errorf("%w: decode file meta: %v", ErrCorrupted, err)
	}
	return nil
}
