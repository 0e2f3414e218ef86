package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/100pro-team-sns/100pro-team-sns/internal/config"
	"github.com/100pro-team-sns/100pro-team-sns/internal/db"
	"github.com/100pro-team-sns/100pro-team-sns/internal/models"
	"github.com/100pro-team-sns/100pro-team-sns/internal/ws"

	"gorm.io/gorm"
)

var (
	dbOnce sync.Once
	gdb    *gorm.DB
	dbErr  error
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbOnce.Do(func() {
		dsn := "host=localhost user=postgres password=postgres dbname=chat port=5432 sslmode=disable TimeZone=UTC"
		gdb, dbErr = db.Connect(dsn)
		if dbErr == nil {
			dbErr = db.Migrate(gdb)
		}
	})
	if dbErr != nil {
		t.Skipf("skip: db not available: %v", dbErr)
	}
	return gdb
}

func testCfg() config.Config {
	return config.Config{
		JWTSecret:          "test-secret",
		Env:                "dev",
		TokenTTLHours:      24,
		MatchDurationHours: 24,
		TrainTTLMinutes:    60,
	}
}

func createUser(t *testing.T, svc *UserService, label string) *models.User {
	t.Helper()
	email := fmt.Sprintf("%s-%d@example.com", label, time.Now().UnixNano())
	user, err := svc.Register(email, "secret123")
	if err != nil {
		t.Fatalf("Register(%s) error = %v", email, err)
	}
	return user
}

func TestUserService_Register(t *testing.T) {
	svc := NewUserService(testDB(t), testCfg())
	user := createUser(t, svc, "reg")

	if user.ID == 0 {
		t.Error("Register() should assign an ID")
	}
	if user.PasswordHash == "secret123" {
		t.Error("Register() must not store the plain password")
	}

	_, err := svc.Register(user.Email, "other-password")
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate Register() error = %v, want ErrEmailTaken", err)
	}
}

func TestUserService_Login(t *testing.T) {
	d := testDB(t)
	svc := NewUserService(d, testCfg())
	user := createUser(t, svc, "login")

	result, err := svc.Login(user.Email, "secret123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.Token == "" {
		t.Error("Login() should return a token")
	}
	if result.User.ID != user.ID {
		t.Errorf("Login() user ID = %d, want %d", result.User.ID, user.ID)
	}

	// The issued token is written to the user row
	var stored models.User
	if err := d.First(&stored, user.ID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if stored.Token == nil || *stored.Token != result.Token {
		t.Error("Login() should persist the issued token on the user row")
	}
	if stored.TokenExpiredAt == nil || !stored.TokenExpiredAt.After(time.Now()) {
		t.Error("Login() should persist a future token expiry")
	}

	if _, err := svc.Login(user.Email, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password Login() error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login("nobody@example.com", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email Login() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRoomService_CreateMatch(t *testing.T) {
	d := testDB(t)
	users := NewUserService(d, testCfg())
	rooms := NewRoomService(d, ws.NewHub())
	u1 := createUser(t, users, "cm1")
	u2 := createUser(t, users, "cm2")

	room, err := rooms.CreateMatch(u1.ID, u2.ID, 24)
	if err != nil {
		t.Fatalf("CreateMatch() error = %v", err)
	}
	if room.User1ID != u1.ID || room.User2ID != u2.ID {
		t.Errorf("CreateMatch() members = (%d, %d)", room.User1ID, room.User2ID)
	}
	if !room.ExpiredAt.After(time.Now().Add(23 * time.Hour)) {
		t.Errorf("CreateMatch() ExpiredAt = %v, want ~24h out", room.ExpiredAt)
	}

	tests := []struct {
		name    string
		u1, u2  uint
		hours   int
		wantErr error
	}{
		{"zero user", 0, u2.ID, 24, ErrValidation},
		{"same user", u1.ID, u1.ID, 24, ErrValidation},
		{"zero duration", u1.ID, u2.ID, 0, ErrValidation},
		{"unknown user", u1.ID, 99999999, 24, ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := rooms.CreateMatch(tt.u1, tt.u2, tt.hours); !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateMatch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRoomService_StopMatch(t *testing.T) {
	d := testDB(t)
	users := NewUserService(d, testCfg())
	rooms := NewRoomService(d, ws.NewHub())
	u1 := createUser(t, users, "st1")
	u2 := createUser(t, users, "st2")
	u3 := createUser(t, users, "st3")

	room, err := rooms.CreateMatch(u1.ID, u2.ID, 24)
	if err != nil {
		t.Fatalf("CreateMatch() error = %v", err)
	}

	if err := rooms.StopMatch(room.ID, u3.ID); !errors.Is(err, ErrNotRoomMember) {
		t.Errorf("non-member StopMatch() error = %v, want ErrNotRoomMember", err)
	}
	if err := rooms.StopMatch(room.ID, u2.ID); err != nil {
		t.Fatalf("StopMatch() error = %v", err)
	}

	var stored models.Room
	if err := d.First(&stored, room.ID).Error; err != nil {
		t.Fatalf("load room: %v", err)
	}
	if stored.Active(time.Now()) {
		t.Error("StopMatch() should leave the room expired")
	}

	// A stopped room behaves like a missing one
	if err := rooms.StopMatch(room.ID, u1.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("stopped StopMatch() error = %v, want ErrRoomNotFound", err)
	}
	if err := rooms.StopMatch(99999999, u1.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("missing StopMatch() error = %v, want ErrRoomNotFound", err)
	}
}

func TestRoomService_ListForUser(t *testing.T) {
	d := testDB(t)
	users := NewUserService(d, testCfg())
	rooms := NewRoomService(d, ws.NewHub())
	u1 := createUser(t, users, "ls1")
	u2 := createUser(t, users, "ls2")
	u3 := createUser(t, users, "ls3")

	active, err := rooms.CreateMatch(u1.ID, u2.ID, 24)
	if err != nil {
		t.Fatalf("CreateMatch() error = %v", err)
	}
	stopped, err := rooms.CreateMatch(u1.ID, u3.ID, 24)
	if err != nil {
		t.Fatalf("CreateMatch() error = %v", err)
	}
	if err := rooms.StopMatch(stopped.ID, u1.ID); err != nil {
		t.Fatalf("StopMatch() error = %v", err)
	}
	if err := d.Create(&models.Message{RoomID: active.ID, UserID: u2.ID, Content: "last words"}).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}

	list, err := rooms.ListForUser(u1.ID)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	byRoom := make(map[uint]RoomSummary, len(list))
	for _, s := range list {
		byRoom[s.RoomID] = s
	}

	got, ok := byRoom[active.ID]
	if !ok {
		t.Fatal("active room missing from list")
	}
	if got.IsExpired {
		t.Error("active room flagged expired")
	}
	if got.OtherUser.ID != u2.ID || got.OtherUser.Email != u2.Email {
		t.Errorf("OtherUser = %+v", got.OtherUser)
	}
	if got.Last == nil || got.Last.Context != "last words" {
		t.Errorf("Last = %+v, want last words", got.Last)
	}

	got, ok = byRoom[stopped.ID]
	if !ok {
		t.Fatal("stopped room missing from list; history must survive expiry")
	}
	if !got.IsExpired {
		t.Error("stopped room should be flagged expired")
	}
	if got.Last != nil {
		t.Errorf("empty room Last = %+v, want nil", got.Last)
	}
}

func TestMessageService_History(t *testing.T) {
	d := testDB(t)
	users := NewUserService(d, testCfg())
	rooms := NewRoomService(d, ws.NewHub())
	msgs := NewMessageService(d)
	u1 := createUser(t, users, "h1")
	u2 := createUser(t, users, "h2")
	u3 := createUser(t, users, "h3")

	room, err := rooms.CreateMatch(u1.ID, u2.ID, 24)
	if err != nil {
		t.Fatalf("CreateMatch() error = %v", err)
	}
	for i, content := range []string{"first", "second", "third"} {
		userID := u1.ID
		if i%2 == 1 {
			userID = u2.ID
		}
		if err := d.Create(&models.Message{RoomID: room.ID, UserID: userID, Content: content}).Error; err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	history, err := msgs.History(room.ID, u1.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("History() len = %d, want 3", len(history))
	}
	for i, want := range []string{"first", "second", "third"} {
		if history[i].Message != want {
			t.Errorf("History()[%d] = %q, want %q", i, history[i].Message, want)
		}
	}

	if _, err := msgs.History(room.ID, u3.ID); !errors.Is(err, ErrNotRoomMember) {
		t.Errorf("non-member History() error = %v, want ErrNotRoomMember", err)
	}
	if _, err := msgs.History(99999999, u1.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("missing room History() error = %v, want ErrRoomNotFound", err)
	}

	// History stays readable after the room is stopped
	if err := rooms.StopMatch(room.ID, u1.ID); err != nil {
		t.Fatalf("StopMatch() error = %v", err)
	}
	history, err = msgs.History(room.ID, u2.ID)
	if err != nil {
		t.Fatalf("History() after stop error = %v", err)
	}
	if len(history) != 3 {
		t.Errorf("History() after stop len = %d, want 3", len(history))
	}
}

func TestTrainService_JoinLeave(t *testing.T) {
	d := testDB(t)
	users := NewUserService(d, testCfg())
	trains := NewTrainService(d, testCfg(), NewRoomService(d, ws.NewHub()))
	user := createUser(t, users, "tr")

	exp, err := trains.Join(user.ID, "E231-500")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if !exp.After(time.Now()) {
		t.Errorf("Join() expiry = %v, want in the future", exp)
	}
	var stored models.User
	if err := d.First(&stored, user.ID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if stored.TrainID == nil || *stored.TrainID != "E231-500" {
		t.Errorf("TrainID = %v, want E231-500", stored.TrainID)
	}

	if err := trains.Leave(user.ID); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if err := d.First(&stored, user.ID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if stored.TrainID != nil {
		t.Errorf("TrainID after Leave() = %v, want nil", stored.TrainID)
	}
}

func TestTrainService_Enqueue(t *testing.T) {
	d := testDB(t)
	users := NewUserService(d, testCfg())
	trains := NewTrainService(d, testCfg(), NewRoomService(d, ws.NewHub()))
	u1 := createUser(t, users, "q1")
	u2 := createUser(t, users, "q2")
	trainID := fmt.Sprintf("train-%d", time.Now().UnixNano())

	if _, err := trains.Enqueue(0, trainID); !errors.Is(err, ErrValidation) {
		t.Errorf("Enqueue(0) error = %v, want ErrValidation", err)
	}
	if _, err := trains.Enqueue(u1.ID, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Enqueue empty train error = %v, want ErrValidation", err)
	}
	if _, err := trains.Enqueue(99999999, trainID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Enqueue unknown user error = %v, want ErrUserNotFound", err)
	}

	room, err := trains.Enqueue(u1.ID, trainID)
	if err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	if room != nil {
		t.Fatal("first Enqueue() should not match")
	}

	// Same user reporting twice stays queued alone
	room, err = trains.Enqueue(u1.ID, trainID)
	if err != nil || room != nil {
		t.Fatalf("repeat Enqueue() = (%v, %v), want (nil, nil)", room, err)
	}

	room, err = trains.Enqueue(u2.ID, trainID)
	if err != nil {
		t.Fatalf("second Enqueue() error = %v", err)
	}
	if room == nil {
		t.Fatal("second Enqueue() should create a room")
	}
	if !room.HasMember(u1.ID) || !room.HasMember(u2.ID) {
		t.Errorf("room members = (%d, %d), want %d and %d", room.User1ID, room.User2ID, u1.ID, u2.ID)
	}

	// Queue slot is consumed by the match
	room, err = trains.Enqueue(u1.ID, trainID)
	if err != nil || room != nil {
		t.Fatalf("Enqueue() after match = (%v, %v), want (nil, nil)", room, err)
	}
}
