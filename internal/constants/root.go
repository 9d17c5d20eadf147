package constants

import "time"

const (
	AppName            = "habitpilot"
	DefaultKeyringUser = "api-token"
	DefaultCachePath   = "~/.config/habitpilot/cache.db"
	DefaultAPIURL      = "http://127.0.0.1:8787"
	Version            = "v0.3.0"

	// DateFormat is the calendar-day format used for completion markers (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the time-of-day format used for reminders (HH:MM)
	TimeFormat = "15:04"

	// Quota
	FreeHabitLimit = 5

	// Reconciliation
	StreakDriftTolerance = 1

	// Offline cache keys
	HabitCacheKey     = "saved_habits"
	GoalsKey          = "goals"
	ActivityFeedKey   = "activity_feed"
	RemindersKey      = "reminders"
	HabitCacheVersion = 1

	// Remote API
	APIPrefix           = "/api/v1"
	DefaultHTTPTimeout  = 15 * time.Second
	DefaultRequestRate  = 5.0
	DefaultRequestBurst = 10

	// Activity feed
	ActivityFeedSize = 100

	// Reminder constants
	DefaultReminderTime    = "09:00"
	ReminderTickInterval   = 30 * time.Second
	ReminderGracePeriod    = 10 * time.Minute
	NotifyMaxRetries       = 3
	NotifyRetryDelay       = 100 * time.Millisecond
	NotifierLockfileName   = "habitpilot-notifier.lock"
	NotificationDurationMs = 5000
	TrayAppIdentifier      = "com.julianstephens.habitpilot"
	TrayExecutablePrefix   = "habitpilot-tray"
	TraySecretHeader       = "X-HabitPilot-Secret"
)
