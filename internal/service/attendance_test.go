package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attendance-mainframe/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeStore struct {
	events   map[int64]domain.Event
	profiles map[int64]domain.Profile
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:   make(map[int64]domain.Event),
		profiles: make(map[int64]domain.Profile),
	}
}

func (f *fakeStore) InsertEvent(_ context.Context, event domain.Event) (int64, error) {
	f.nextID++
	event.ID = f.nextID
	f.events[event.ID] = event
	return event.ID, nil
}

func (f *fakeStore) GetEvent(_ context.Context, eventID int64) (*domain.Event, error) {
	event, ok := f.events[eventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return &event, nil
}

func (f *fakeStore) GetHostedEvents(_ context.Context, hostID int64) ([]domain.Event, error) {
	var hosted []domain.Event
	for _, event := range f.events {
		if event.Host == hostID {
			hosted = append(hosted, event)
		}
	}
	return hosted, nil
}

func (f *fakeStore) GetAttendedEventIDs(_ context.Context, userID int64) ([]int64, error) {
	var ids []int64
	for id, event := range f.events {
		for _, attendee := range event.Attendance {
			if attendee == userID {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func (f *fakeStore) GetProfile(_ context.Context, userID int64) (*domain.Profile, error) {
	profile, ok := f.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &profile, nil
}

func (f *fakeStore) CreateProfile(_ context.Context, profile *domain.Profile) error {
	if _, ok := f.profiles[profile.UserID]; ok {
		return nil
	}
	f.profiles[profile.UserID] = *profile
	return nil
}

func (f *fakeStore) WithProfile(_ context.Context, userID int64, fn func(*domain.Profile) error) error {
	profile, ok := f.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	if err := fn(&profile); err != nil {
		return err
	}
	f.profiles[userID] = profile
	return nil
}

func (f *fakeStore) ListProfiles(_ context.Context) ([]domain.Profile, error) {
	profiles := make([]domain.Profile, 0, len(f.profiles))
	for _, profile := range f.profiles {
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

type fakeDirectory struct {
	ranks     map[int64]int64
	usernames map[string]int64
}

func (f *fakeDirectory) GetRank(_ context.Context, userID int64) (int64, error) {
	rankID, ok := f.ranks[userID]
	if !ok {
		return 0, domain.ErrNotInGroup
	}
	return rankID, nil
}

func (f *fakeDirectory) ResolveUsernames(_ context.Context, names []string) (map[string]int64, error) {
	resolved := make(map[string]int64)
	for _, name := range names {
		if userID, ok := f.usernames[name]; ok {
			resolved[name] = userID
		}
	}
	return resolved, nil
}

type hubCall struct {
	kind   string
	userID int64
}

type fakeHub struct {
	calls []hubCall
}

func (f *fakeHub) BroadcastMarkAwarded(userID int64, totalMarks, marksAtCurrentRank int) {
	f.calls = append(f.calls, hubCall{kind: "mark", userID: userID})
}

func (f *fakeHub) BroadcastRankChanged(userID, oldRankID, newRankID int64) {
	f.calls = append(f.calls, hubCall{kind: "rank", userID: userID})
}

func (f *fakeHub) BroadcastPromotionEligible(userID, rankID int64) {
	f.calls = append(f.calls, hubCall{kind: "promotion", userID: userID})
}

func (f *fakeHub) countOf(kind string) int {
	n := 0
	for _, call := range f.calls {
		if call.kind == kind {
			n++
		}
	}
	return n
}

type fakeBoard struct {
	marks     map[int64]int
	usernames map[int64]string
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{marks: make(map[int64]int), usernames: make(map[int64]string)}
}

func (f *fakeBoard) SetMarks(_ context.Context, userID int64, totalMarks int) error {
	f.marks[userID] = totalMarks
	return nil
}

func (f *fakeBoard) SetMemberInfo(_ context.Context, userID int64, username string) error {
	f.usernames[userID] = username
	return nil
}

func (f *fakeBoard) GetTopN(_ context.Context, n int) ([]domain.MarksEntry, error) {
	return nil, nil
}

func testRanks() domain.RankTable {
	return domain.RankTable{
		EventsPerMark: 4,
		Thresholds:    map[int64]int{1: 2, 2: 3},
	}
}

func newTestService(store *fakeStore, dir *fakeDirectory) (*AttendanceService, *fakeHub, *fakeBoard) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewAttendanceService(store, dir, testRanks(), logger)
	hub := &fakeHub{}
	board := newFakeBoard()
	svc.SetHub(hub)
	svc.SetBoard(board)
	return svc, hub, board
}

func TestLogEvent(t *testing.T) {
	ctx := context.Background()

	Convey("Given three members the directory knows at rank 1", t, func() {
		store := newFakeStore()
		dir := &fakeDirectory{ranks: map[int64]int64{10: 1, 20: 1, 30: 1}}
		svc, hub, _ := newTestService(store, dir)

		Convey("When an event is logged for all three", func() {
			event, err := svc.LogEvent(ctx, domain.EventSubmission{
				Host:      10,
				Attendees: []int64{20, 30},
				Location:  "Training Grounds",
				Kind:      "training",
			})

			Convey("Then the event is stored with the host leading the attendance", func() {
				So(err, ShouldBeNil)
				So(event.ID, ShouldEqual, 1)
				So(event.Attendance, ShouldResemble, []int64{10, 20, 30})
			})

			Convey("Then fresh profiles carry one event, no marks, and a stamped date", func() {
				So(err, ShouldBeNil)
				for _, userID := range []int64{10, 20, 30} {
					profile, err := store.GetProfile(ctx, userID)
					So(err, ShouldBeNil)
					So(profile.RankID, ShouldEqual, 1)
					So(profile.EventsAttendedThisWeek, ShouldEqual, 1)
					So(profile.TotalMarks, ShouldEqual, 0)
					So(profile.LastEventAttendedDate, ShouldNotBeNil)
				}
				So(hub.countOf("mark"), ShouldEqual, 0)
			})
		})

		Convey("When the submission has no host", func() {
			_, err := svc.LogEvent(ctx, domain.EventSubmission{Attendees: []int64{20}})

			Convey("Then it is rejected outright", func() {
				So(errors.Is(err, domain.ErrInvalidRequest), ShouldBeTrue)
			})
		})
	})

	Convey("Given a member one event short of a mark", t, func() {
		store := newFakeStore()
		dir := &fakeDirectory{ranks: map[int64]int64{10: 1, 20: 1}}
		svc, hub, board := newTestService(store, dir)

		recent := time.Now().UTC().Add(-time.Hour)
		profile := domain.NewProfile(20, "Ostrum", 1)
		profile.EventsAttendedThisWeek = 3
		profile.LastEventAttendedDate = &recent
		So(store.CreateProfile(ctx, profile), ShouldBeNil)

		Convey("When the member attends another event this week", func() {
			_, err := svc.LogEvent(ctx, domain.EventSubmission{Host: 10, Attendees: []int64{20}})
			So(err, ShouldBeNil)

			Convey("Then the mark lands and is broadcast and mirrored", func() {
				updated, err := store.GetProfile(ctx, 20)
				So(err, ShouldBeNil)
				So(updated.EventsAttendedThisWeek, ShouldEqual, 4)
				So(updated.TotalMarks, ShouldEqual, 1)
				So(updated.MarksAtCurrentRank, ShouldEqual, 1)
				So(hub.countOf("mark"), ShouldEqual, 1)
				So(board.marks[20], ShouldEqual, 1)
			})
		})
	})

	Convey("Given a submission mixing usernames and raw ids", t, func() {
		store := newFakeStore()
		dir := &fakeDirectory{
			ranks:     map[int64]int64{10: 1, 42: 2, 30: 1},
			usernames: map[string]int64{"Kale": 42},
		}
		svc, _, _ := newTestService(store, dir)

		Convey("When logged with one unknown username", func() {
			event, err := svc.LogEvent(ctx, domain.EventSubmission{
				Host:      10,
				Names:     []string{"Kale", "NoSuchMember"},
				Attendees: []int64{30},
			})

			Convey("Then the unknown name is dropped and the rest keep their order", func() {
				So(err, ShouldBeNil)
				So(event.Attendance, ShouldResemble, []int64{10, 42, 30})
			})
		})
	})

	Convey("Given one attendee the directory does not recognize", t, func() {
		store := newFakeStore()
		dir := &fakeDirectory{ranks: map[int64]int64{10: 1, 30: 1}}
		svc, _, _ := newTestService(store, dir)

		Convey("When the event is logged", func() {
			event, err := svc.LogEvent(ctx, domain.EventSubmission{Host: 10, Attendees: []int64{20, 30}})

			Convey("Then the event survives and the other attendees are processed", func() {
				So(err, ShouldBeNil)
				So(event.Attendance, ShouldResemble, []int64{10, 20, 30})

				_, err := store.GetProfile(ctx, 20)
				So(errors.Is(err, domain.ErrProfileNotFound), ShouldBeTrue)

				processed, err := store.GetProfile(ctx, 30)
				So(err, ShouldBeNil)
				So(processed.EventsAttendedThisWeek, ShouldEqual, 1)
			})
		})
	})
}

func TestGetProfile(t *testing.T) {
	ctx := context.Background()

	Convey("Given a stored profile whose directory rank moved on", t, func() {
		store := newFakeStore()
		dir := &fakeDirectory{ranks: map[int64]int64{20: 2}}
		svc, hub, _ := newTestService(store, dir)

		profile := domain.NewProfile(20, "Ostrum", 1)
		profile.TotalMarks = 5
		profile.MarksAtCurrentRank = 2
		So(store.CreateProfile(ctx, profile), ShouldBeNil)

		Convey("When the profile is read", func() {
			got, err := svc.GetProfile(ctx, 20)

			Convey("Then the new rank is adopted and per-rank progress clears", func() {
				So(err, ShouldBeNil)
				So(got.RankID, ShouldEqual, 2)
				So(got.MarksAtCurrentRank, ShouldEqual, 0)
				So(got.TotalMarks, ShouldEqual, 5)
				So(hub.countOf("rank"), ShouldEqual, 1)

				stored, err := store.GetProfile(ctx, 20)
				So(err, ShouldBeNil)
				So(stored.RankID, ShouldEqual, 2)
			})
		})
	})

	Convey("Given a member the directory no longer recognizes", t, func() {
		store := newFakeStore()
		dir := &fakeDirectory{ranks: map[int64]int64{}}
		svc, _, _ := newTestService(store, dir)
		So(store.CreateProfile(ctx, domain.NewProfile(20, "Ostrum", 1)), ShouldBeNil)

		Convey("When the profile is read", func() {
			_, err := svc.GetProfile(ctx, 20)

			Convey("Then the stale row reads as not in group", func() {
				So(errors.Is(err, domain.ErrNotInGroup), ShouldBeTrue)
				So(domain.IsNotFoundError(err), ShouldBeTrue)
			})
		})
	})
}

func TestRefreshRank(t *testing.T) {
	ctx := context.Background()

	Convey("Given a promotable member whose directory rank just changed", t, func() {
		store := newFakeStore()
		dir := &fakeDirectory{ranks: map[int64]int64{20: 2}}
		svc, hub, _ := newTestService(store, dir)

		profile := domain.NewProfile(20, "Ostrum", 1)
		profile.MarksAtCurrentRank = 2
		So(store.CreateProfile(ctx, profile), ShouldBeNil)

		Convey("When the rank is refreshed", func() {
			changed, promotable, err := svc.RefreshRank(ctx, 20)

			Convey("Then the change lands and eligibility resets with it", func() {
				So(err, ShouldBeNil)
				So(changed, ShouldBeTrue)
				So(promotable, ShouldBeFalse)
				So(hub.countOf("rank"), ShouldEqual, 1)

				stored, err := store.GetProfile(ctx, 20)
				So(err, ShouldBeNil)
				So(stored.RankID, ShouldEqual, 2)
				So(stored.MarksAtCurrentRank, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a member already at their directory rank with threshold marks", t, func() {
		store := newFakeStore()
		dir := &fakeDirectory{ranks: map[int64]int64{20: 1}}
		svc, hub, _ := newTestService(store, dir)

		profile := domain.NewProfile(20, "Ostrum", 1)
		profile.MarksAtCurrentRank = 2
		So(store.CreateProfile(ctx, profile), ShouldBeNil)

		Convey("When the rank is refreshed", func() {
			changed, promotable, err := svc.RefreshRank(ctx, 20)

			Convey("Then nothing changes but the member reads as promotable", func() {
				So(err, ShouldBeNil)
				So(changed, ShouldBeFalse)
				So(promotable, ShouldBeTrue)
				So(hub.countOf("rank"), ShouldEqual, 0)
			})
		})
	})
}

func TestIncrementEvents(t *testing.T) {
	ctx := context.Background()

	Convey("Given a member with two events this week", t, func() {
		store := newFakeStore()
		dir := &fakeDirectory{ranks: map[int64]int64{20: 1}}
		svc, hub, _ := newTestService(store, dir)

		profile := domain.NewProfile(20, "Ostrum", 1)
		profile.EventsAttendedThisWeek = 2
		So(store.CreateProfile(ctx, profile), ShouldBeNil)

		Convey("A positive correction raises the counter without awarding", func() {
			got, err := svc.IncrementEvents(ctx, 20, 2)
			So(err, ShouldBeNil)
			So(got.EventsAttendedThisWeek, ShouldEqual, 4)
			So(got.TotalMarks, ShouldEqual, 0)
			So(hub.countOf("mark"), ShouldEqual, 0)
		})

		Convey("A negative correction cannot push the counter below zero", func() {
			got, err := svc.IncrementEvents(ctx, 20, -5)
			So(err, ShouldBeNil)
			So(got.EventsAttendedThisWeek, ShouldEqual, 0)
		})

		Convey("An unknown member reports a missing profile", func() {
			_, err := svc.IncrementEvents(ctx, 999, 1)
			So(errors.Is(err, domain.ErrProfileNotFound), ShouldBeTrue)
		})
	})
}

func TestListPromotable(t *testing.T) {
	ctx := context.Background()

	Convey("Given a mixed population of profiles", t, func() {
		store := newFakeStore()
		dir := &fakeDirectory{ranks: map[int64]int64{}}
		svc, _, _ := newTestService(store, dir)

		ready := domain.NewProfile(20, "Ostrum", 1)
		ready.MarksAtCurrentRank = 2
		So(store.CreateProfile(ctx, ready), ShouldBeNil)

		short := domain.NewProfile(30, "Kale", 1)
		short.MarksAtCurrentRank = 1
		So(store.CreateProfile(ctx, short), ShouldBeNil)

		terminal := domain.NewProfile(40, "Vex", 9)
		terminal.MarksAtCurrentRank = 50
		So(store.CreateProfile(ctx, terminal), ShouldBeNil)

		Convey("Only the member at the threshold is listed", func() {
			promotable, err := svc.ListPromotable(ctx)
			So(err, ShouldBeNil)
			So(promotable, ShouldResemble, []int64{20})
		})
	})
}

func TestCreateProfile(t *testing.T) {
	ctx := context.Background()

	Convey("Given the profile creation endpoint", t, func() {
		store := newFakeStore()
		dir := &fakeDirectory{ranks: map[int64]int64{}}
		svc, _, board := newTestService(store, dir)

		Convey("A zero user id is rejected", func() {
			_, err := svc.CreateProfile(ctx, domain.CreateProfileRequest{})
			So(errors.Is(err, domain.ErrInvalidRequest), ShouldBeTrue)
		})

		Convey("Preset counters are applied and the username is cached", func() {
			got, err := svc.CreateProfile(ctx, domain.CreateProfileRequest{
				UserID:   20,
				Username: "Ostrum",
				RankID:   3,
				Events:   2,
				Marks:    5,
			})
			So(err, ShouldBeNil)
			So(got.EventsAttendedThisWeek, ShouldEqual, 2)
			So(got.TotalMarks, ShouldEqual, 5)
			So(got.MarksAtCurrentRank, ShouldEqual, 5)
			So(board.usernames[20], ShouldEqual, "Ostrum")
		})
	})
}
