package finn

import "fmt"

// Handle is an RM object handle.
type Handle uint32

func (h Handle) String() string {
	return fmt.Sprintf("0x%08x", uint32(h))
}
