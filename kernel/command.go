package kernel

import (
	"github.com/xaionaro-go/vpipeline/node"
)

const (
	CommandCameraStartCapture  = node.Command(0x1001)
	CommandCameraStopCapture   = node.Command(0x1002)
	CommandCameraSetResolution = node.Command(0x1003) // param: Resolution
	CommandCameraSetFPS        = node.Command(0x1004) // param: uint32
	CommandCameraGetSensorInfo = node.Command(0x1005) // param: *capture.SensorInfo

	CommandEncoderStart      = node.Command(0x2001)
	CommandEncoderStop       = node.Command(0x2002)
	CommandEncoderSetQuality = node.Command(0x2003) // param: uint32 in [1, 100]
	CommandEncoderSetBitrate = node.Command(0x2004)
	CommandEncoderGetParam   = node.Command(0x2005) // param: *EncoderParams

	CommandFilterSetResolution = node.Command(0x3001) // param: Resolution
	CommandFilterSetBlurRadius = node.Command(0x3002) // param: float64
)
