package models

import "time"

// Onboarding stages. Monitoring only runs for users at StageActive.
const (
	StageNew       = 0
	StageStyle     = 1
	StageExchange  = 2
	StagePrinciple = 3
	StageActive    = 4
)

// User is an enrolled chatbot user
type User struct {
	ID                 int64      `db:"id"`
	TelegramID         int64      `db:"telegram_id"`
	Username           *string    `db:"username"`
	Language           string     `db:"language"`
	Tier               string     `db:"tier"`
	OnboardingStage    int        `db:"onboarding_stage"`
	StyleRaw           *string    `db:"style_raw"`
	StyleParsed        JSONMap    `db:"style_parsed"`
	LastActiveAt       *time.Time `db:"last_active_at"`
	DailySignalCount   int        `db:"daily_signal_count"`
	DailySignalResetAt time.Time  `db:"daily_signal_reset_at"`
	BriefingHour       *int       `db:"briefing_hour"`
	IsActive           bool       `db:"is_active"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// IsMonitored reports whether the engine should watch this user
func (u *User) IsMonitored() bool {
	return u.IsActive && u.OnboardingStage >= StageActive
}

// ExchangeConnection holds encrypted exchange credentials.
// Key and secret columns contain ciphertext only.
type ExchangeConnection struct {
	ID              int64      `db:"id"`
	UserID          int64      `db:"user_id"`
	ExchangeName    string     `db:"exchange_name"`
	EncryptedKey    string     `db:"encrypted_key"`
	EncryptedSecret string     `db:"encrypted_secret"`
	IsActive        bool       `db:"is_active"`
	LastPolledAt    *time.Time `db:"last_polled_at"`
	CreatedAt       time.Time  `db:"created_at"`
}

// Principle sources
const (
	PrincipleSourceUser      = "user_input"
	PrincipleSourceExtracted = "extracted"
)

// Principle is an investment rule the user stated or the engine extracted
type Principle struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Text      string    `db:"text"`
	Source    string    `db:"source"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}
