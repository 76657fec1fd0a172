package registry

import (
	"errors"
	"sort"
	"testing"
)

func TestIdentity_RequiresAuthentication(t *testing.T) {
	r := New()
	r.OnConnect("c1")

	if _, ok := r.Identity("c1"); ok {
		t.Fatal("unauthenticated connection should have no identity")
	}

	if err := r.SetIdentity("c1", 5, 2); err != nil {
		t.Fatalf("SetIdentity() error: %v", err)
	}

	id, ok := r.Identity("c1")
	if !ok {
		t.Fatal("expected identity after SetIdentity")
	}
	if id.UserID != 5 || id.RoleID != 2 {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestSetIdentity_UnknownConnection(t *testing.T) {
	r := New()
	if err := r.SetIdentity("ghost", 5, 2); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
}

func TestJoinRoom_RequiresAuthentication(t *testing.T) {
	r := New()
	r.OnConnect("c1")

	if err := r.JoinRoom("c1", "5-9"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if err := r.JoinRoom("ghost", "5-9"); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
}

func TestJoinRoom_AndMembers(t *testing.T) {
	r := New()
	for _, c := range []string{"c1", "c2", "c3"} {
		r.OnConnect(c)
	}
	r.SetIdentity("c1", 5, 1)
	r.SetIdentity("c2", 9, 1)
	r.SetIdentity("c3", 7, 1)

	if err := r.JoinRoom("c1", "5-9"); err != nil {
		t.Fatalf("JoinRoom() error: %v", err)
	}
	if err := r.JoinRoom("c2", "5-9"); err != nil {
		t.Fatalf("JoinRoom() error: %v", err)
	}
	r.JoinRoom("c3", "7-9")

	members := r.RoomMembers("5-9")
	sort.Strings(members)
	if len(members) != 2 || members[0] != "c1" || members[1] != "c2" {
		t.Errorf("unexpected members of 5-9: %v", members)
	}

	// Re-joining must not duplicate membership.
	r.JoinRoom("c1", "5-9")
	if n := len(r.RoomMembers("5-9")); n != 2 {
		t.Errorf("expected 2 members after re-join, got %d", n)
	}
}

func TestMultipleRooms_PerConnection(t *testing.T) {
	r := New()
	r.OnConnect("c1")
	r.SetIdentity("c1", 5, 1)

	r.JoinRoom("c1", "5-9")
	r.JoinRoom("c1", "3-5")

	rooms := r.Rooms("c1")
	sort.Strings(rooms)
	if len(rooms) != 2 || rooms[0] != "3-5" || rooms[1] != "5-9" {
		t.Errorf("unexpected rooms: %v", rooms)
	}
}

func TestLeaveRoom(t *testing.T) {
	r := New()
	r.OnConnect("c1")
	r.SetIdentity("c1", 5, 1)
	r.JoinRoom("c1", "5-9")

	r.LeaveRoom("c1", "5-9")
	if members := r.RoomMembers("5-9"); len(members) != 0 {
		t.Errorf("expected empty room, got %v", members)
	}
	if rooms := r.Rooms("c1"); len(rooms) != 0 {
		t.Errorf("expected no rooms, got %v", rooms)
	}

	// Leaving again is a no-op.
	r.LeaveRoom("c1", "5-9")
	r.LeaveRoom("ghost", "5-9")
}

func TestInRoom(t *testing.T) {
	r := New()
	r.OnConnect("c1")
	r.SetIdentity("c1", 5, 1)

	if r.InRoom("c1", "5-9") {
		t.Error("membership before joining")
	}
	r.JoinRoom("c1", "5-9")
	if !r.InRoom("c1", "5-9") {
		t.Error("expected membership after joining")
	}
	if r.InRoom("c1", "5-7") {
		t.Error("membership in a room never joined")
	}
	if r.InRoom("ghost", "5-9") {
		t.Error("membership for unknown connection")
	}

	r.LeaveRoom("c1", "5-9")
	if r.InRoom("c1", "5-9") {
		t.Error("membership after leaving")
	}
}

func TestOnDisconnect_ClearsEverything(t *testing.T) {
	r := New()
	r.OnConnect("c1")
	r.OnConnect("c2")
	r.SetIdentity("c1", 5, 1)
	r.SetIdentity("c2", 9, 1)
	r.JoinRoom("c1", "5-9")
	r.JoinRoom("c2", "5-9")

	id, wasAuthed := r.OnDisconnect("c1")
	if !wasAuthed {
		t.Fatal("expected authenticated identity from OnDisconnect")
	}
	if id.UserID != 5 {
		t.Errorf("expected userId 5, got %d", id.UserID)
	}

	if _, ok := r.Identity("c1"); ok {
		t.Error("identity should be gone after disconnect")
	}
	members := r.RoomMembers("5-9")
	if len(members) != 1 || members[0] != "c2" {
		t.Errorf("expected only c2 left in room, got %v", members)
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 live connection, got %d", r.Count())
	}
}

func TestOnDisconnect_Unauthenticated(t *testing.T) {
	r := New()
	r.OnConnect("c1")

	if _, wasAuthed := r.OnDisconnect("c1"); wasAuthed {
		t.Error("unauthenticated disconnect should report no identity")
	}
	if _, wasAuthed := r.OnDisconnect("ghost"); wasAuthed {
		t.Error("unknown disconnect should report no identity")
	}
}

func TestCounts(t *testing.T) {
	r := New()
	r.OnConnect("c1")
	r.OnConnect("c2")
	r.SetIdentity("c1", 5, 1)

	if r.Count() != 2 {
		t.Errorf("expected Count()=2, got %d", r.Count())
	}
	if r.AuthenticatedCount() != 1 {
		t.Errorf("expected AuthenticatedCount()=1, got %d", r.AuthenticatedCount())
	}
}
