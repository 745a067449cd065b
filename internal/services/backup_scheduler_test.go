package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/driftpanel/backend/internal/models"
)

func TestScheduleIsDue(t *testing.T) {
	// 2025-03-03 is a Monday
	monday0200 := time.Date(2025, 3, 3, 2, 0, 0, 0, time.UTC)

	t.Run("daily at matching time", func(t *testing.T) {
		s := &models.BackupSchedule{Frequency: "daily", TimeOfDay: "02:00"}
		assert.True(t, ScheduleIsDue(s, monday0200))
		assert.False(t, ScheduleIsDue(s, monday0200.Add(time.Minute)))
		assert.False(t, ScheduleIsDue(s, monday0200.Add(time.Hour)))
	})

	t.Run("empty time of day defaults to 02:00", func(t *testing.T) {
		s := &models.BackupSchedule{Frequency: "daily"}
		assert.True(t, ScheduleIsDue(s, monday0200))
	})

	t.Run("weekly matches day of week", func(t *testing.T) {
		s := &models.BackupSchedule{Frequency: "weekly", TimeOfDay: "02:00", DayOfWeek: 1}
		assert.True(t, ScheduleIsDue(s, monday0200))

		s.DayOfWeek = 2 // Tuesday
		assert.False(t, ScheduleIsDue(s, monday0200))
		assert.True(t, ScheduleIsDue(s, monday0200.AddDate(0, 0, 1)))
	})

	t.Run("monthly matches day of month", func(t *testing.T) {
		s := &models.BackupSchedule{Frequency: "monthly", TimeOfDay: "02:00", DayOfMonth: 3}
		assert.True(t, ScheduleIsDue(s, monday0200))

		s.DayOfMonth = 15
		assert.False(t, ScheduleIsDue(s, monday0200))
	})

	t.Run("unknown frequency never due", func(t *testing.T) {
		s := &models.BackupSchedule{Frequency: "hourly", TimeOfDay: "02:00"}
		assert.False(t, ScheduleIsDue(s, monday0200))
	})
}

func TestCalculateNextRun(t *testing.T) {
	// Monday, 10:00
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	t.Run("daily later today", func(t *testing.T) {
		s := &models.BackupSchedule{Frequency: "daily", TimeOfDay: "23:30"}
		next := CalculateNextRun(s, now)
		assert.Equal(t, time.Date(2025, 3, 3, 23, 30, 0, 0, time.UTC), next)
	})

	t.Run("daily already passed rolls to tomorrow", func(t *testing.T) {
		s := &models.BackupSchedule{Frequency: "daily", TimeOfDay: "02:00"}
		next := CalculateNextRun(s, now)
		assert.Equal(t, time.Date(2025, 3, 4, 2, 0, 0, 0, time.UTC), next)
	})

	t.Run("weekly same day already passed rolls a week", func(t *testing.T) {
		s := &models.BackupSchedule{Frequency: "weekly", TimeOfDay: "02:00", DayOfWeek: 1}
		next := CalculateNextRun(s, now)
		assert.Equal(t, time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC), next)
	})

	t.Run("weekly later in the week", func(t *testing.T) {
		s := &models.BackupSchedule{Frequency: "weekly", TimeOfDay: "02:00", DayOfWeek: 4} // Thursday
		next := CalculateNextRun(s, now)
		assert.Equal(t, time.Date(2025, 3, 6, 2, 0, 0, 0, time.UTC), next)
	})

	t.Run("monthly already passed rolls a month", func(t *testing.T) {
		s := &models.BackupSchedule{Frequency: "monthly", TimeOfDay: "02:00", DayOfMonth: 1}
		next := CalculateNextRun(s, now)
		assert.Equal(t, time.Date(2025, 4, 1, 2, 0, 0, 0, time.UTC), next)
	})

	t.Run("monthly later this month", func(t *testing.T) {
		s := &models.BackupSchedule{Frequency: "monthly", TimeOfDay: "02:00", DayOfMonth: 20}
		next := CalculateNextRun(s, now)
		assert.Equal(t, time.Date(2025, 3, 20, 2, 0, 0, 0, time.UTC), next)
	})
}
