package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attendance-mainframe/internal/config"
	"github.com/attendance-mainframe/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeSource struct {
	profiles   []domain.Profile
	changed    map[int64]bool
	promotable map[int64]bool
	errs       map[int64]error
	refreshed  []int64
}

func (f *fakeSource) ListProfiles(_ context.Context) ([]domain.Profile, error) {
	return f.profiles, nil
}

func (f *fakeSource) RefreshRank(_ context.Context, userID int64) (bool, bool, error) {
	f.refreshed = append(f.refreshed, userID)
	if err := f.errs[userID]; err != nil {
		return false, false, err
	}
	return f.changed[userID], f.promotable[userID], nil
}

type fakeNotifier struct {
	notified []int64
}

func (f *fakeNotifier) BroadcastPromotionEligible(userID, rankID int64) {
	f.notified = append(f.notified, userID)
}

func TestSweep(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.SweepConfig{Interval: time.Hour, Enabled: true}

	Convey("Given profiles in varied directory states", t, func() {
		source := &fakeSource{
			profiles: []domain.Profile{
				{UserID: 10, RankID: 1},
				{UserID: 20, RankID: 2},
				{UserID: 30, RankID: 1},
			},
			changed:    map[int64]bool{20: true},
			promotable: map[int64]bool{10: true},
			errs:       map[int64]error{30: domain.ErrNotInGroup},
		}
		notifier := &fakeNotifier{}

		sweeper := NewSweeper(source, cfg, logger)
		sweeper.SetNotifier(notifier)

		Convey("When one sweep pass runs", func() {
			promotable := sweeper.RunOnce(context.Background())

			Convey("Then every profile is visited", func() {
				So(source.refreshed, ShouldResemble, []int64{10, 20, 30})
			})

			Convey("Then only the eligible member is reported and notified", func() {
				So(promotable, ShouldResemble, []int64{10})
				So(notifier.notified, ShouldResemble, []int64{10})
			})
		})
	})

	Convey("Given a started sweeper", t, func() {
		source := &fakeSource{}
		sweeper := NewSweeper(source, cfg, logger)

		So(sweeper.Start(context.Background()), ShouldBeNil)
		So(sweeper.IsRunning(), ShouldBeTrue)

		Convey("Stopping it shuts the loop down cleanly", func() {
			So(sweeper.Stop(), ShouldBeNil)
			So(sweeper.IsRunning(), ShouldBeFalse)
		})

		Convey("A stopped sweeper can run again", func() {
			So(sweeper.Stop(), ShouldBeNil)

			So(sweeper.Start(context.Background()), ShouldBeNil)
			So(sweeper.IsRunning(), ShouldBeTrue)
			So(sweeper.Stop(), ShouldBeNil)
			So(sweeper.IsRunning(), ShouldBeFalse)
		})
	})
}
