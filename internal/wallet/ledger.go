// Package wallet holds the coin and level rules. Everything here is pure; the
// store applies the results inside a transaction guarded by a unique credit row.
package wallet

import "slices"

const (
	DefaultAttendanceReward = 15
	FeedbackReward          = 5

	attendanceXP = 10
	feedbackXP   = 5
	xpPerLevel   = 50
)

// Account is the ledger view of a user.
type Account struct {
	Wallet         int
	Level          int
	EventsAttended []int64
	FeedbacksGiven []int64
}

// AttendanceReward returns the coins granted for attending an event that
// declares points. Zero or negative means the default award.
func AttendanceReward(points int) int {
	if points <= 0 {
		return DefaultAttendanceReward
	}
	return points
}

// Level is floor((10*attended + 5*feedbacks) / 50) + 1.
func Level(attended, feedbacks int) int {
	if attended < 0 {
		attended = 0
	}
	if feedbacks < 0 {
		feedbacks = 0
	}
	return (attendanceXP*attended+feedbackXP*feedbacks)/xpPerLevel + 1
}

// Recompute returns acct with Level derived from its credited sets.
func Recompute(acct Account) Account {
	acct.Level = Level(len(acct.EventsAttended), len(acct.FeedbacksGiven))
	return acct
}

// CreditAttendance adds the attendance award for eventID. The second result is
// false, and acct is returned unchanged, when eventID was already credited.
func CreditAttendance(acct Account, eventID int64, points int) (Account, bool) {
	if slices.Contains(acct.EventsAttended, eventID) {
		return acct, false
	}
	acct.EventsAttended = append(slices.Clone(acct.EventsAttended), eventID)
	acct.Wallet += AttendanceReward(points)
	return Recompute(acct), true
}

// CreditFeedback adds the feedback award for eventID, once.
func CreditFeedback(acct Account, eventID int64) (Account, bool) {
	if slices.Contains(acct.FeedbacksGiven, eventID) {
		return acct, false
	}
	acct.FeedbacksGiven = append(slices.Clone(acct.FeedbacksGiven), eventID)
	acct.Wallet += FeedbackReward
	return Recompute(acct), true
}
