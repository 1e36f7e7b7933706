package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/mindline/platform/pkg/logging"
)

// fakeSender records every frame it receives.
type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (f *fakeSender) Send(data []byte) bool {
	if f.full {
		return false
	}
	f.mu.Lock()
	f.frames = append(f.frames, data)
	f.mu.Unlock()
	return true
}

func (f *fakeSender) events(t *testing.T) []Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, 0, len(f.frames))
	for _, data := range f.frames {
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		out = append(out, evt)
	}
	return out
}

func newTestHub() *Hub {
	return NewHub(logging.New("error"))
}

func TestEmitReachesOnlyJoinedIdentity(t *testing.T) {
	hub := newTestHub()
	alice := &fakeSender{}
	bob := &fakeSender{}
	drC := &fakeSender{}

	hub.Join(UserChannel("alice"), alice)
	hub.Join(UserChannel("bob"), bob)
	hub.Join(DoctorChannel("c"), drC)

	hub.Emit(UserChannel("alice"), NewEvent(EventNoDoctorsAvailable, NoDoctorsPayload{Message: "sorry"}))

	if got := alice.events(t); len(got) != 1 || got[0].Name != EventNoDoctorsAvailable {
		t.Errorf("alice events = %v", got)
	}
	if got := bob.events(t); len(got) != 0 {
		t.Errorf("bob should receive nothing, got %v", got)
	}
	if got := drC.events(t); len(got) != 0 {
		t.Errorf("doctor c should receive nothing, got %v", got)
	}
}

func TestEmitToEmptyIdentityIsSilent(t *testing.T) {
	hub := newTestHub()
	hub.Emit(UserChannel("nobody"), NewEvent(EventPong, nil))
}

func TestMultipleConnectionsPerIdentity(t *testing.T) {
	hub := newTestHub()
	tab1 := &fakeSender{}
	tab2 := &fakeSender{}
	hub.Join(UserChannel("alice"), tab1)
	hub.Join(UserChannel("alice"), tab2)

	hub.Emit(UserChannel("alice"), NewEvent(EventPong, nil))

	if len(tab1.events(t)) != 1 || len(tab2.events(t)) != 1 {
		t.Error("both tabs should receive the event")
	}
}

func TestLeaveRemovesFromEveryIdentity(t *testing.T) {
	hub := newTestHub()
	conn := &fakeSender{}
	hub.Join(UserChannel("alice"), conn)
	hub.Join(RoomChannel("r1"), conn)

	hub.Leave(conn)

	hub.Emit(UserChannel("alice"), NewEvent(EventPong, nil))
	hub.Emit(RoomChannel("r1"), NewEvent(EventPong, nil))
	if got := conn.events(t); len(got) != 0 {
		t.Errorf("left connection received %v", got)
	}
	if ids := hub.Identities(conn); len(ids) != 0 {
		t.Errorf("identities after leave = %v", ids)
	}
}

func TestEmitExceptSkipsSender(t *testing.T) {
	hub := newTestHub()
	patient := &fakeSender{}
	doctor := &fakeSender{}
	hub.Join(RoomChannel("r1"), patient)
	hub.Join(RoomChannel("r1"), doctor)

	hub.EmitExcept(RoomChannel("r1"), patient, NewEvent(EventOffer, json.RawMessage(`{"roomId":"r1"}`)))

	if got := patient.events(t); len(got) != 0 {
		t.Errorf("sender should not echo, got %v", got)
	}
	if got := doctor.events(t); len(got) != 1 || got[0].Name != EventOffer {
		t.Errorf("doctor events = %v", got)
	}
}

func TestRoomScoping(t *testing.T) {
	hub := newTestHub()
	inR1 := &fakeSender{}
	inR2 := &fakeSender{}
	hub.Join(RoomChannel("r1"), inR1)
	hub.Join(RoomChannel("r2"), inR2)

	hub.Emit(RoomChannel("r1"), NewEvent(EventICECandidate, json.RawMessage(`{"roomId":"r1"}`)))

	if len(inR1.events(t)) != 1 {
		t.Error("r1 participant should receive the signal")
	}
	if got := inR2.events(t); len(got) != 0 {
		t.Errorf("r2 participant received cross-room signal %v", got)
	}
}

func TestBroadcastReachesAll(t *testing.T) {
	hub := newTestHub()
	a := &fakeSender{}
	b := &fakeSender{}
	hub.Join(UserChannel("a"), a)
	hub.Join(DoctorChannel("b"), b)

	hub.Broadcast(NewEvent(EventNoDoctorsAvailable, NoDoctorsPayload{Message: "maintenance"}))

	if len(a.events(t)) != 1 || len(b.events(t)) != 1 {
		t.Error("broadcast should reach every connection")
	}
}

func TestSlowConnectionDropsFrame(t *testing.T) {
	hub := newTestHub()
	slow := &fakeSender{full: true}
	hub.Join(UserChannel("slow"), slow)

	// Must not block or panic.
	hub.Emit(UserChannel("slow"), NewEvent(EventPong, nil))
}
