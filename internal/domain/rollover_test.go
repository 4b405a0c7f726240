package domain_test

import (
	"testing"
	"time"

	"github.com/attendance-mainframe/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHasRolledOver(t *testing.T) {
	// Saturday, ISO week 29 of 2024
	now := time.Date(2024, 7, 20, 12, 0, 0, 0, time.UTC)

	Convey("Given a reference instant on a Saturday", t, func() {
		Convey("When the previous date is six days earlier", func() {
			previous := now.AddDate(0, 0, -6)

			Convey("Then the week has rolled over", func() {
				So(domain.HasRolledOver(previous, now), ShouldBeTrue)
			})
		})

		Convey("When the previous date is five days earlier", func() {
			previous := now.AddDate(0, 0, -5)

			Convey("Then the week has not rolled over", func() {
				So(domain.HasRolledOver(previous, now), ShouldBeFalse)
			})
		})

		Convey("When the previous date is the same instant", func() {
			So(domain.HasRolledOver(now, now), ShouldBeFalse)
		})

		Convey("When the previous date is in a later week", func() {
			previous := now.AddDate(0, 0, 9)
			So(domain.HasRolledOver(previous, now), ShouldBeTrue)
		})
	})

	Convey("Given a previous attendance on a Sunday", t, func() {
		// Sunday closing ISO week 10 of 2024
		previous := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)

		Convey("When checked later the same Sunday", func() {
			sameDay := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)
			So(domain.HasRolledOver(previous, sameDay), ShouldBeFalse)
		})

		Convey("When checked on a weekday whose week number wrapped back around", func() {
			// Wednesday of ISO week 10 of 2025: the week numbers agree,
			// so only the Sunday clause catches the rollover.
			wrapped := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
			So(domain.HasRolledOver(previous, wrapped), ShouldBeTrue)
		})
	})
}
