package biz

import (
	"context"
	"time"
)

// TimeSpan is a duration bucketed into its largest nonzero unit with a
// German label, e.g. {3, "Tage"} or {1, "Stunde"}.
type TimeSpan struct {
	Value int64  `json:"value"`
	Unit  string `json:"unit"`
}

// ClusterTimeSpan buckets a duration: full days when at least one, else
// full hours, else full minutes, else seconds. Singular and plural
// labels follow German grammar; seconds are always plural.
func ClusterTimeSpan(d time.Duration) TimeSpan {
	seconds := int64(d.Seconds())
	switch {
	case seconds >= 86400:
		days := seconds / 86400
		if days == 1 {
			return TimeSpan{days, "Tag"}
		}
		return TimeSpan{days, "Tage"}
	case seconds >= 3600:
		hours := seconds / 3600
		if hours == 1 {
			return TimeSpan{hours, "Stunde"}
		}
		return TimeSpan{hours, "Stunden"}
	case seconds >= 60:
		minutes := seconds / 60
		if minutes == 1 {
			return TimeSpan{minutes, "Minute"}
		}
		return TimeSpan{minutes, "Minuten"}
	default:
		return TimeSpan{seconds, "Sekunden"}
	}
}

// UserAverage is one user's mean time from upload to first access.
type UserAverage struct {
	UID  string   `json:"uid"`
	Span TimeSpan `json:"span"`
}

// AnalyticsUseCase computes access-latency statistics.
type AnalyticsUseCase struct {
	users  UserRepo
	docs   DocumentRepo
	tokens TokenRepo
	events EventRepo
}

func NewAnalyticsUseCase(users UserRepo, docs DocumentRepo, tokens TokenRepo, events EventRepo) *AnalyticsUseCase {
	return &AnalyticsUseCase{users: users, docs: docs, tokens: tokens, events: events}
}

// AverageTimeForUser returns the mean of (earliest access − upload) over
// the user's documents. Documents never accessed, and intervals that are
// not strictly positive, are excluded from both numerator and
// denominator. The second return is false when nothing qualifies.
func (uc *AnalyticsUseCase) AverageTimeForUser(ctx context.Context, uid string) (time.Duration, bool, error) {
	docs, err := uc.docs.ListByUser(ctx, uid)
	if err != nil {
		return 0, false, err
	}

	var (
		total time.Duration
		count int64
	)
	for _, doc := range docs {
		first, err := uc.events.EarliestForDocument(ctx, doc.DID)
		if err != nil {
			return 0, false, err
		}
		if first == nil {
			continue
		}
		interval := first.Sub(doc.UploadDatetime)
		if interval <= 0 {
			continue
		}
		total += interval
		count++
	}
	if count == 0 {
		return 0, false, nil
	}
	return total / time.Duration(count), true, nil
}

// AverageTimeForAllUsers computes the per-user averages, skipping users
// without any qualifying document.
func (uc *AnalyticsUseCase) AverageTimeForAllUsers(ctx context.Context) ([]UserAverage, error) {
	users, err := uc.users.List(ctx)
	if err != nil {
		return nil, err
	}

	averages := make([]UserAverage, 0, len(users))
	for _, user := range users {
		mean, ok, err := uc.AverageTimeForUser(ctx, user.UID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		averages = append(averages, UserAverage{UID: user.UID, Span: ClusterTimeSpan(mean)})
	}
	return averages, nil
}

// AverageTimeForToken resolves the token's owning user and returns that
// user's average.
func (uc *AnalyticsUseCase) AverageTimeForToken(ctx context.Context, tokenValue string) (TimeSpan, bool, error) {
	token, err := uc.tokens.Get(ctx, tokenValue)
	if err != nil {
		return TimeSpan{}, false, err
	}
	doc, err := uc.docs.Get(ctx, token.DID)
	if err != nil {
		if err == ErrDocumentNotFound {
			return TimeSpan{}, false, ErrTokenNotFound
		}
		return TimeSpan{}, false, err
	}

	mean, ok, err := uc.AverageTimeForUser(ctx, doc.UserUID)
	if err != nil || !ok {
		return TimeSpan{}, false, err
	}
	return ClusterTimeSpan(mean), true, nil
}
