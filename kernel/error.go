package kernel

import (
	"fmt"

	"github.com/xaionaro-go/vpipeline/node"
)

type ErrUnsupportedCommand struct {
	Command node.Command
}

func (e ErrUnsupportedCommand) Error() string {
	return fmt.Sprintf("command 0x%04X is not supported", uint32(e.Command))
}
