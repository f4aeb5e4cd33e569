package treasury

import (
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// ProgramHash keys a deploy request: the 32-byte hash of the program
// binary, rendered base58 at every edge (API paths, event payloads,
// storage).
type ProgramHash [32]byte

// ProgramHashFromBase58 decodes a base58 string into a ProgramHash.
func ProgramHashFromBase58(s string) (ProgramHash, error) {
	var h ProgramHash
	raw, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("invalid program hash %q: %w", s, err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("invalid program hash %q: got %d bytes, want %d", s, len(raw), len(h))
	}
	copy(h[:], raw)
	return h, nil
}

func (h ProgramHash) String() string {
	return base58.Encode(h[:])
}

func (h ProgramHash) IsZero() bool {
	return h == ProgramHash{}
}

func (h ProgramHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *ProgramHash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ProgramHashFromBase58(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
