package bus

import "fmt"

// Channel naming convention shared by all bus drivers.
const channelPattern = "chat:room:%s:events"

// RoomChannel returns the bus channel name for a room's event stream.
func RoomChannel(roomID string) string {
	return fmt.Sprintf(channelPattern, roomID)
}
