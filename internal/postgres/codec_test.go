package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/attendance-mainframe/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAttendanceCodec(t *testing.T) {
	Convey("Given an attendance list", t, func() {
		attendance := []int64{42, 7, 42, 1003}

		Convey("Encoding then decoding yields the original list", func() {
			encoded, err := encodeAttendance(attendance)
			So(err, ShouldBeNil)
			So(encoded, ShouldEqual, "[42,7,42,1003]")

			decoded, err := decodeAttendance(encoded)
			So(err, ShouldBeNil)
			So(decoded, ShouldResemble, attendance)
		})

		Convey("Decoding corrupt text reports a corrupt row, not a missing one", func() {
			_, err := decodeAttendance("{not json")
			So(errors.Is(err, domain.ErrCorruptRow), ShouldBeTrue)
			So(domain.IsNotFoundError(err), ShouldBeFalse)
		})
	})
}

func TestDateCodec(t *testing.T) {
	Convey("Given a timestamp", t, func() {
		ts := time.Date(2024, 7, 14, 18, 30, 0, 0, time.UTC)

		Convey("Encoding then decoding round-trips", func() {
			decoded, err := decodeDate(encodeDate(ts))
			So(err, ShouldBeNil)
			So(decoded.Equal(ts), ShouldBeTrue)
		})

		Convey("Sub-second precision survives the round-trip", func() {
			stamped := domain.NewEvent(10, []int64{10}, "Main Hall", "rally", nil).EventDate
			decoded, err := decodeDate(encodeDate(stamped))
			So(err, ShouldBeNil)
			So(decoded.Equal(stamped), ShouldBeTrue)

			precise := time.Date(2024, 7, 14, 18, 30, 0, 123456789, time.UTC)
			decoded, err = decodeDate(encodeDate(precise))
			So(err, ShouldBeNil)
			So(decoded.Equal(precise), ShouldBeTrue)
		})

		Convey("Whole-second legacy rows still parse", func() {
			decoded, err := decodeDate("2024-07-14T18:30:00Z")
			So(err, ShouldBeNil)
			So(decoded.Equal(ts), ShouldBeTrue)
		})

		Convey("An unparseable date reports a corrupt row", func() {
			_, err := decodeDate("yesterday-ish")
			So(errors.Is(err, domain.ErrCorruptRow), ShouldBeTrue)
		})
	})

	Convey("Given an optional attendance date", t, func() {
		Convey("A missing date encodes as the literal null sentinel", func() {
			So(encodeOptionalDate(nil), ShouldEqual, "null")

			decoded, err := decodeOptionalDate("null")
			So(err, ShouldBeNil)
			So(decoded, ShouldBeNil)
		})

		Convey("A present date round-trips through the sentinel encoding", func() {
			ts := time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)
			decoded, err := decodeOptionalDate(encodeOptionalDate(&ts))
			So(err, ShouldBeNil)
			So(decoded, ShouldNotBeNil)
			So(decoded.Equal(ts), ShouldBeTrue)
		})
	})
}

func TestMetadataCodec(t *testing.T) {
	Convey("Given event metadata", t, func() {
		Convey("Absent metadata stays absent", func() {
			encoded, err := encodeMetadata(nil)
			So(err, ShouldBeNil)
			So(encoded, ShouldBeNil)

			decoded, err := decodeMetadata(nil)
			So(err, ShouldBeNil)
			So(decoded, ShouldBeNil)
		})

		Convey("Present metadata round-trips every category and key", func() {
			metadata := map[string]map[string]string{
				"awards":  {"mvp": "Ostrum", "sharpshooter": "Kale"},
				"weather": {"sky": "clear"},
			}

			encoded, err := encodeMetadata(metadata)
			So(err, ShouldBeNil)
			So(encoded, ShouldNotBeNil)

			decoded, err := decodeMetadata(encoded)
			So(err, ShouldBeNil)
			So(decoded, ShouldResemble, metadata)
		})

		Convey("Corrupt metadata reports a corrupt row", func() {
			raw := "][ nope"
			_, err := decodeMetadata(&raw)
			So(errors.Is(err, domain.ErrCorruptRow), ShouldBeTrue)
		})
	})
}
