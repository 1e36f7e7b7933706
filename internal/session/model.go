package session

import (
	"fmt"
	"time"
)

// Connection types a patient can pick after a doctor accepts.
const (
	TypeChat  = "chat"
	TypeVideo = "video"
)

// Room statuses.
const (
	RoomActive = "active"
	RoomEnded  = "ended"
)

// Room is one live patient/doctor channel, either a chat room or a video
// call. Signaling and chat frames are scoped to the room and never leak
// across rooms.
type Room struct {
	ID        string     `json:"id"`
	RequestID string     `json:"request_id"`
	PatientID string     `json:"patient_id"`
	DoctorID  string     `json:"doctor_id"`
	SessionID string     `json:"session_id"`
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Active reports whether the room still accepts participants and frames.
func (r *Room) Active() bool {
	return r.Status == RoomActive
}

// RoomID builds the room identifier the clients navigate to.
func RoomID(at time.Time, patientID string) string {
	return fmt.Sprintf("room-%d-%s", at.UnixMilli(), patientID)
}

// RedirectURL is the client-side route for the room page.
func RedirectURL(roomType, roomID string) string {
	return "/" + roomType + "-room/" + roomID
}

// ValidType reports whether the connection type is one the platform offers.
func ValidType(roomType string) bool {
	return roomType == TypeChat || roomType == TypeVideo
}
