package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/attendance-mainframe/internal/domain"
	"github.com/attendance-mainframe/internal/metrics"
)

// Store is the persistence boundary for events and profiles
type Store interface {
	InsertEvent(ctx context.Context, event domain.Event) (int64, error)
	GetEvent(ctx context.Context, eventID int64) (*domain.Event, error)
	GetHostedEvents(ctx context.Context, hostID int64) ([]domain.Event, error)
	GetAttendedEventIDs(ctx context.Context, userID int64) ([]int64, error)
	GetProfile(ctx context.Context, userID int64) (*domain.Profile, error)
	CreateProfile(ctx context.Context, profile *domain.Profile) error
	WithProfile(ctx context.Context, userID int64, fn func(*domain.Profile) error) error
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
}

// Directory is the external rank authority
type Directory interface {
	GetRank(ctx context.Context, userID int64) (int64, error)
	ResolveUsernames(ctx context.Context, names []string) (map[string]int64, error)
}

// Hub receives progression notifications for connected clients
type Hub interface {
	BroadcastMarkAwarded(userID int64, totalMarks, marksAtCurrentRank int)
	BroadcastRankChanged(userID, oldRankID, newRankID int64)
	BroadcastPromotionEligible(userID, rankID int64)
}

// Board mirrors lifetime mark totals for fast leaderboard reads
type Board interface {
	SetMarks(ctx context.Context, userID int64, totalMarks int) error
	SetMemberInfo(ctx context.Context, userID int64, username string) error
	GetTopN(ctx context.Context, n int) ([]domain.MarksEntry, error)
}

// AttendanceService runs the attendance-to-rank progression pipeline
type AttendanceService struct {
	store     Store
	directory Directory
	ranks     domain.RankTable
	logger    *slog.Logger
	hub       Hub
	board     Board
}

// NewAttendanceService creates a new attendance service
func NewAttendanceService(store Store, directory Directory, ranks domain.RankTable, logger *slog.Logger) *AttendanceService {
	return &AttendanceService{
		store:     store,
		directory: directory,
		ranks:     ranks,
		logger:    logger,
	}
}

// SetHub attaches the notification hub for broadcasting
func (s *AttendanceService) SetHub(hub Hub) {
	s.hub = hub
}

// SetBoard attaches the marks leaderboard mirror
func (s *AttendanceService) SetBoard(board Board) {
	s.board = board
}

// Ranks returns the injected rank table
func (s *AttendanceService) Ranks() domain.RankTable {
	return s.ranks
}

// LogEvent durably records an event and then logs attendance for every
// attendee, host included. The event row is the source of truth: once it
// is written, a failed profile update for one attendee is logged and
// skipped rather than rolling anything back.
func (s *AttendanceService) LogEvent(ctx context.Context, sub domain.EventSubmission) (*domain.Event, error) {
	if sub.Host == 0 {
		return nil, domain.ErrInvalidRequest
	}

	attendance, err := s.resolveAttendance(ctx, sub)
	if err != nil {
		return nil, err
	}

	event := domain.NewEvent(sub.Host, attendance, sub.Location, sub.Kind, sub.Metadata)
	event.ID, err = s.store.InsertEvent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("storing event: %w", err)
	}
	metrics.EventsLogged.Inc()

	for _, attendee := range event.Attendance {
		if err := s.logAttendance(ctx, attendee, event.EventDate); err != nil {
			metrics.AttendeeFailures.Inc()
			s.logger.Error("failed to log attendance",
				"event_id", event.ID,
				"user_id", attendee,
				"error", err,
			)
			continue
		}
		metrics.AttendeesProcessed.Inc()
	}

	return &event, nil
}

// resolveAttendance builds the ordered attendance list: the host first,
// then submitted usernames in order (resolved through the directory),
// then any raw ids. Unknown usernames are logged and dropped.
func (s *AttendanceService) resolveAttendance(ctx context.Context, sub domain.EventSubmission) ([]int64, error) {
	attendance := []int64{sub.Host}

	if len(sub.Names) > 0 {
		resolved, err := s.directory.ResolveUsernames(ctx, sub.Names)
		if err != nil {
			return nil, fmt.Errorf("resolving attendee names: %w", err)
		}
		for _, name := range sub.Names {
			userID, ok := resolved[name]
			if !ok {
				s.logger.Warn("dropping unknown attendee name", "username", name)
				continue
			}
			attendance = append(attendance, userID)
		}
	}

	attendance = append(attendance, sub.Attendees...)
	return attendance, nil
}

// logAttendance applies one attendance to a member's profile: reset the
// weekly counter if the week rolled over, count the event, stamp the
// date, then check the mark award. Ordering is load-bearing: reset
// before increment, award after.
func (s *AttendanceService) logAttendance(ctx context.Context, userID int64, eventDate time.Time) error {
	if err := s.ensureProfile(ctx, userID); err != nil {
		return err
	}

	var (
		awarded    bool
		promotable bool
		snapshot   domain.Profile
	)
	err := s.store.WithProfile(ctx, userID, func(p *domain.Profile) error {
		p.TryResetEvents(time.Now().UTC())
		p.EventsAttendedThisWeek++
		date := eventDate
		p.LastEventAttendedDate = &date
		awarded = p.TryAwardMark(s.ranks.EventsPerMark)
		promotable = p.ShouldPromote(s.ranks)
		snapshot = *p
		return nil
	})
	if err != nil {
		return err
	}

	if awarded {
		metrics.MarksAwarded.Inc()
		if s.hub != nil {
			s.hub.BroadcastMarkAwarded(userID, snapshot.TotalMarks, snapshot.MarksAtCurrentRank)
		}
		if s.board != nil {
			if err := s.board.SetMarks(ctx, userID, snapshot.TotalMarks); err != nil {
				s.logger.Warn("failed to mirror marks to board", "user_id", userID, "error", err)
			}
		}
	}
	if promotable && s.hub != nil {
		s.hub.BroadcastPromotionEligible(userID, snapshot.RankID)
	}
	return nil
}

// ensureProfile creates a fresh profile for a first-time attendee using
// the directory's current rank
func (s *AttendanceService) ensureProfile(ctx context.Context, userID int64) error {
	_, err := s.store.GetProfile(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return err
	}

	rankID, err := s.directory.GetRank(ctx, userID)
	if err != nil {
		return fmt.Errorf("looking up rank for new profile: %w", err)
	}
	return s.store.CreateProfile(ctx, domain.NewProfile(userID, "", rankID))
}

// GetProfile returns a member's profile, refreshing the stored rank from
// the directory. A member the directory no longer recognizes reads as
// not found even if a stale row remains.
func (s *AttendanceService) GetProfile(ctx context.Context, userID int64) (*domain.Profile, error) {
	rankID, err := s.directory.GetRank(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if profile.RankID != rankID {
		oldRankID := profile.RankID
		err := s.store.WithProfile(ctx, userID, func(p *domain.Profile) error {
			p.TryUpdateRank(rankID)
			*profile = *p
			return nil
		})
		if err != nil {
			return nil, err
		}
		metrics.RankChanges.Inc()
		if s.hub != nil {
			s.hub.BroadcastRankChanged(userID, oldRankID, rankID)
		}
	}
	return profile, nil
}

// CreateProfile explicitly creates a profile with preset counters
func (s *AttendanceService) CreateProfile(ctx context.Context, req domain.CreateProfileRequest) (*domain.Profile, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidRequest
	}
	profile := domain.NewProfile(req.UserID, req.Username, req.RankID)
	profile.EventsAttendedThisWeek = req.Events
	profile.TotalMarks = req.Marks
	profile.MarksAtCurrentRank = req.Marks

	if err := s.store.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}
	if s.board != nil {
		if err := s.board.SetMemberInfo(ctx, req.UserID, req.Username); err != nil {
			s.logger.Warn("failed to cache member info", "user_id", req.UserID, "error", err)
		}
	}
	return profile, nil
}

// IncrementEvents adjusts a member's weekly counter by delta. This is an
// administrative correction; it never awards marks and the counter stays
// bounded below by zero.
func (s *AttendanceService) IncrementEvents(ctx context.Context, userID int64, delta int) (*domain.Profile, error) {
	var snapshot domain.Profile
	err := s.store.WithProfile(ctx, userID, func(p *domain.Profile) error {
		p.EventsAttendedThisWeek += delta
		if p.EventsAttendedThisWeek < 0 {
			p.EventsAttendedThisWeek = 0
		}
		snapshot = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// RefreshRank reconciles one member's stored rank with the directory and
// reports whether it changed and whether the member is now promotable
func (s *AttendanceService) RefreshRank(ctx context.Context, userID int64) (changed, promotable bool, err error) {
	rankID, err := s.directory.GetRank(ctx, userID)
	if err != nil {
		return false, false, err
	}

	var (
		oldRankID int64
		snapshot  domain.Profile
	)
	err = s.store.WithProfile(ctx, userID, func(p *domain.Profile) error {
		oldRankID = p.RankID
		changed = p.TryUpdateRank(rankID)
		promotable = p.ShouldPromote(s.ranks)
		snapshot = *p
		return nil
	})
	if err != nil {
		return false, false, err
	}

	if changed {
		metrics.RankChanges.Inc()
		if s.hub != nil {
			s.hub.BroadcastRankChanged(userID, oldRankID, snapshot.RankID)
		}
	}
	return changed, promotable, nil
}

// ListProfiles returns all stored profiles
func (s *AttendanceService) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	return s.store.ListProfiles(ctx)
}

// ListPromotable returns the ids of members whose marks at their current
// rank equal the rank's promotion threshold
func (s *AttendanceService) ListPromotable(ctx context.Context) ([]int64, error) {
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}

	var promotable []int64
	for i := range profiles {
		if profiles[i].ShouldPromote(s.ranks) {
			promotable = append(promotable, profiles[i].UserID)
		}
	}
	return promotable, nil
}

// GetEvent returns a stored event by id
func (s *AttendanceService) GetEvent(ctx context.Context, eventID int64) (*domain.Event, error) {
	return s.store.GetEvent(ctx, eventID)
}

// GetHostedEvents returns all events hosted by a member
func (s *AttendanceService) GetHostedEvents(ctx context.Context, hostID int64) ([]domain.Event, error) {
	return s.store.GetHostedEvents(ctx, hostID)
}

// GetAttendedEventIDs returns the ids of events a member attended
func (s *AttendanceService) GetAttendedEventIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.store.GetAttendedEventIDs(ctx, userID)
}

// GetAttendedCount returns how many events a member attended
func (s *AttendanceService) GetAttendedCount(ctx context.Context, userID int64) (int, error) {
	ids, err := s.store.GetAttendedEventIDs(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// TopMarks returns the top entries from the marks board
func (s *AttendanceService) TopMarks(ctx context.Context, n int) ([]domain.MarksEntry, error) {
	if s.board == nil {
		return nil, domain.ErrInternalError
	}
	return s.board.GetTopN(ctx, n)
}
