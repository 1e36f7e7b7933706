package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names delivered to clients. This is a closed set: every outbound
// frame is one of these, with a fixed payload shape.
const (
	EventEscalationRequest   = "escalation-request"
	EventDoctorAccepted      = "doctor-accepted"
	EventNoDoctorsAvailable  = "no-doctors-available"
	EventReEscalationStarted = "re-escalation-started"
	EventStartSession        = "start-session"
	EventNewMessage          = "new-message"
	EventOffer               = "offer"
	EventAnswer              = "answer"
	EventICECandidate        = "ice-candidate"
	EventUserDisconnected    = "user-disconnected"
	EventEndCall             = "end-call"
	EventPong                = "pong"
)

// Event is a named message routed to an identity channel.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// EscalationRequestPayload is pushed to the assigned doctor's channel.
type EscalationRequestPayload struct {
	RequestID         string `json:"requestId"`
	DoctorID          string `json:"doctorId"`
	PatientID         string `json:"patientId"`
	PatientName       string `json:"patientName"`
	PatientEmail      string `json:"patientEmail"`
	RiskLevel         string `json:"riskLevel,omitempty"`
	IsReEscalation    bool   `json:"isReEscalation,omitempty"`
	IsRetry           bool   `json:"isRetry,omitempty"`
	PreviousSessionID string `json:"previousSessionId,omitempty"`
}

// DoctorAcceptedPayload is pushed to the patient when a doctor accepts.
type DoctorAcceptedPayload struct {
	RequestID  string   `json:"requestId"`
	DoctorID   string   `json:"doctorId"`
	DoctorName string   `json:"doctorName"`
	Options    []string `json:"options"`
}

// NoDoctorsPayload tells the patient no doctor could be found.
type NoDoctorsPayload struct {
	Message string `json:"message"`
}

// ReEscalationStartedPayload tells the patient a re-escalation is underway.
type ReEscalationStartedPayload struct {
	Message           string `json:"message"`
	DoctorName        string `json:"doctorName"`
	IsDifferentDoctor bool   `json:"isDifferentDoctor"`
}

// StartSessionPayload directs both parties into a room.
type StartSessionPayload struct {
	RoomID          string `json:"roomId"`
	ConnectionType  string `json:"connectionType"`
	CounterpartID   string `json:"counterpartId"`
	CounterpartName string `json:"counterpartName"`
	RedirectURL     string `json:"redirectUrl"`
}

// ChatMessagePayload is a chat-room message relayed between participants.
type ChatMessagePayload struct {
	RoomID   string    `json:"roomId"`
	SenderID string    `json:"senderId,omitempty"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sentAt"`
}

// DisconnectPayload notifies the remaining participant the room is over.
type DisconnectPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason,omitempty"`
}

// NewEvent builds an event.
func NewEvent(name string, payload any) Event {
	return Event{Name: name, Payload: payload}
}

// Encode marshals the event into a wire frame.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("realtime: encode %s event: %w", e.Name, err)
	}
	return data, nil
}

// RawEvent builds an event whose payload is forwarded verbatim. Used by the
// signaling relay, which never inspects WebRTC payloads.
func RawEvent(name string, payload json.RawMessage) Event {
	return Event{Name: name, Payload: payload}
}

// Identity channel helpers.

// UserChannel is the identity channel for a patient.
func UserChannel(patientID string) string {
	return "user:" + patientID
}

// DoctorChannel is the identity channel for a doctor.
func DoctorChannel(doctorID string) string {
	return "doctor:" + doctorID
}

// RoomChannel is the signaling scope for an active room.
func RoomChannel(roomID string) string {
	return "room:" + roomID
}
