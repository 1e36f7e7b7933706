package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindline/platform/internal/doctors"
	"github.com/mindline/platform/internal/escalation"
	"github.com/mindline/platform/internal/feedback"
	"github.com/mindline/platform/internal/observability/metrics"
	"github.com/mindline/platform/internal/patients"
	"github.com/mindline/platform/internal/realtime"
	"github.com/mindline/platform/pkg/logging"
)

// RequestSource is the slice of the escalation store the service needs to
// validate room creation.
type RequestSource interface {
	GetByID(ctx context.Context, id string) (*escalation.Request, error)
}

// Service owns the room lifecycle: it opens rooms for accepted escalations,
// scopes chat and WebRTC signaling frames to room members, and tears rooms
// down on end-call or disconnect. Ending a room never resolves the
// escalation itself; that is the feedback flow's job.
type Service struct {
	rooms    Store
	requests RequestSource
	sessions feedback.SessionStore
	registry doctors.Registry
	patients patients.Repository
	hub      *realtime.Hub
	metrics  *metrics.EscalationMetrics
	logger   *logging.Logger

	mu      sync.Mutex
	members map[realtime.Sender]map[string]struct{}

	nowFunc func() time.Time
	newID   func() string
}

// ServiceConfig wires the service's collaborators.
type ServiceConfig struct {
	Rooms    Store
	Requests RequestSource
	Sessions feedback.SessionStore
	Registry doctors.Registry
	Patients patients.Repository
	Hub      *realtime.Hub
	Metrics  *metrics.EscalationMetrics
	Logger   *logging.Logger
}

// NewService creates the session service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		rooms:    cfg.Rooms,
		requests: cfg.Requests,
		sessions: cfg.Sessions,
		registry: cfg.Registry,
		patients: cfg.Patients,
		hub:      cfg.Hub,
		metrics:  cfg.Metrics,
		logger:   logger,
		members:  make(map[realtime.Sender]map[string]struct{}),
		nowFunc:  time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// RoomCreation is the result of opening a room.
type RoomCreation struct {
	Room        *Room  `json:"room"`
	RedirectURL string `json:"redirect_url"`
}

// CreateRoom opens a room for an accepted escalation and directs both
// parties into it over their identity channels.
func (s *Service) CreateRoom(ctx context.Context, requestID, connectionType string) (*RoomCreation, error) {
	if !ValidType(connectionType) {
		return nil, ErrInvalidConnectionType
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != escalation.StatusAccepted {
		return nil, ErrInvalidRequestState
	}

	patient, err := s.patients.GetByID(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("session: load patient: %w", err)
	}
	doctor, err := s.registry.GetByID(ctx, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("session: load doctor: %w", err)
	}

	now := s.nowFunc().UTC()
	room := &Room{
		ID:        RoomID(now, patient.ID),
		RequestID: req.ID,
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		SessionID: s.newID(),
		Type:      connectionType,
		Status:    RoomActive,
		StartedAt: now,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, err
	}

	if s.sessions != nil {
		err := s.sessions.Create(ctx, &feedback.DoctorSession{
			ID:          room.SessionID,
			PatientID:   patient.ID,
			DoctorID:    doctor.ID,
			RoomID:      room.ID,
			SessionType: connectionType,
			Status:      feedback.SessionStarted,
			StartedAt:   now,
		})
		if err != nil {
			s.logger.Error("failed to record doctor session", "error", err, "room_id", room.ID)
		}
	}

	redirect := RedirectURL(connectionType, room.ID)
	s.hub.Emit(realtime.UserChannel(patient.ID), realtime.NewEvent(realtime.EventStartSession, realtime.StartSessionPayload{
		RoomID:          room.ID,
		ConnectionType:  connectionType,
		CounterpartID:   doctor.ID,
		CounterpartName: doctor.Name,
		RedirectURL:     redirect,
	}))
	s.hub.Emit(realtime.DoctorChannel(doctor.ID), realtime.NewEvent(realtime.EventStartSession, realtime.StartSessionPayload{
		RoomID:          room.ID,
		ConnectionType:  connectionType,
		CounterpartID:   patient.ID,
		CounterpartName: patient.Name,
		RedirectURL:     redirect,
	}))

	s.metrics.RoomOpened()
	s.logger.Info("room opened",
		"room_id", room.ID,
		"type", connectionType,
		"patient_id", patient.ID,
		"doctor_id", doctor.ID,
	)
	return &RoomCreation{Room: room, RedirectURL: redirect}, nil
}

// JoinRoom subscribes the connection to the room's signaling scope.
func (s *Service) JoinRoom(ctx context.Context, roomID string, c realtime.Sender) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Active() {
		return ErrRoomEnded
	}

	s.hub.Join(realtime.RoomChannel(roomID), c)

	s.mu.Lock()
	if s.members[c] == nil {
		s.members[c] = make(map[string]struct{})
	}
	s.members[c][roomID] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("participant joined room", "room_id", roomID)
	return nil
}

// RelaySignal forwards a WebRTC signaling frame to the other room members,
// payload untouched. The sender must have joined the room.
func (s *Service) RelaySignal(ctx context.Context, roomID string, from realtime.Sender, kind string, payload json.RawMessage) error {
	if !s.isMember(from, roomID) {
		return ErrRoomNotFound
	}
	s.hub.EmitExcept(realtime.RoomChannel(roomID), from, realtime.RawEvent(kind, payload))
	s.metrics.ObserveSignal(kind)
	return nil
}

// RelayMessage forwards a chat message to the other room members.
func (s *Service) RelayMessage(ctx context.Context, roomID string, from realtime.Sender, text string) error {
	if !s.isMember(from, roomID) {
		return ErrRoomNotFound
	}
	s.hub.EmitExcept(realtime.RoomChannel(roomID), from, realtime.NewEvent(realtime.EventNewMessage, realtime.ChatMessagePayload{
		RoomID: roomID,
		Text:   text,
		SentAt: s.nowFunc().UTC(),
	}))
	return nil
}

// EndRoom finishes the room and tells every participant the call is over.
func (s *Service) EndRoom(ctx context.Context, roomID, reason string) error {
	if err := s.rooms.End(ctx, roomID, s.nowFunc()); err != nil {
		return err
	}

	s.hub.Emit(realtime.RoomChannel(roomID), realtime.NewEvent(realtime.EventEndCall, realtime.DisconnectPayload{
		RoomID: roomID,
		Reason: reason,
	}))
	s.dropRoom(roomID)
	s.metrics.RoomClosed()
	s.logger.Info("room ended", "room_id", roomID, "reason", reason)
	return nil
}

// HandleDisconnect ends every room the connection had joined and warns the
// remaining participant. Pending escalations for the patient are untouched.
func (s *Service) HandleDisconnect(ctx context.Context, c realtime.Sender) {
	s.mu.Lock()
	rooms := make([]string, 0, len(s.members[c]))
	for roomID := range s.members[c] {
		rooms = append(rooms, roomID)
	}
	delete(s.members, c)
	s.mu.Unlock()

	for _, roomID := range rooms {
		s.hub.EmitExcept(realtime.RoomChannel(roomID), c, realtime.NewEvent(realtime.EventUserDisconnected, realtime.DisconnectPayload{
			RoomID: roomID,
			Reason: "participant disconnected",
		}))
		if err := s.rooms.End(ctx, roomID, s.nowFunc()); err != nil {
			if err != ErrRoomEnded {
				s.logger.Error("failed to end room on disconnect", "error", err, "room_id", roomID)
			}
			continue
		}
		s.dropRoom(roomID)
		s.metrics.RoomClosed()
		s.logger.Info("room ended by disconnect", "room_id", roomID)
	}
}

func (s *Service) isMember(c realtime.Sender, roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[c][roomID]
	return ok
}

// dropRoom forgets every membership record for the room.
func (s *Service) dropRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c, rooms := range s.members {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(s.members, c)
		}
	}
}

var _ realtime.RoomService = (*Service)(nil)
