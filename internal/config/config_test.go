package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/internal/service/availability"
)

const minimal = `
providers:
  - id: anna
    name: Anna
    calendar_ref: cal-anna
hours:
  - { weekday: friday, start: "09:00", end: "12:00" }
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 60, cfg.Booking.SlotMinutes)
	assert.Equal(t, time.Hour, cfg.SlotDuration())
	assert.Equal(t, 10, cfg.Booking.MaxOffers)
	assert.Equal(t, 7, cfg.Booking.HorizonDays)
	assert.Equal(t, 5*time.Second, cfg.Calendar.FetchTimeout)
	assert.Equal(t, string(availability.FailOpen), cfg.Calendar.Policy)
	assert.Equal(t, "@every 15m", cfg.Sync.Schedule)

	dir, err := cfg.Directory()
	require.NoError(t, err)
	p, ok := dir.Get("anna")
	require.True(t, ok)
	assert.True(t, p.Active)
	assert.Equal(t, []model.Interval{{Start: model.NewClock(9, 0), End: model.NewClock(12, 0)}},
		dir.Hours(p).On(time.Friday))
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimal+`
booking:
  slot_minutes: 30
  max_offers: 4
  timezone: Europe/Berlin
calendar:
  policy: fail_closed
  fetch_timeout: 250ms
classifier:
  vocabulary:
    info: [piercing]
`))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.SlotDuration())
	assert.Equal(t, 4, cfg.Booking.MaxOffers)
	assert.Equal(t, 250*time.Millisecond, cfg.Calendar.FetchTimeout)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	rc := cfg.ToResolverConfig(loc)
	assert.Equal(t, availability.FailClosed, rc.Policy)
	assert.Contains(t, cfg.Vocabulary().Info, "piercing")
	assert.Contains(t, cfg.Vocabulary().Info, "pain")
}

func TestSecretsComeFromEnvironment(t *testing.T) {
	t.Setenv("BOOKING_JWT_SECRET", "from-env")
	t.Setenv("BOOKING_GEMINI_API_KEY", "key")
	t.Setenv("BOOKING_DB_PASSWORD", "pw")

	cfg, err := LoadConfig(writeConfig(t, minimal+`
jwt:
  secret: from-file
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "key", cfg.Classifier.Gemini.APIKey)
	assert.Equal(t, "pw", cfg.Database.Password)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"no providers": `
hours: []
`,
		"postgres without host": minimal + `
store:
  driver: postgres
`,
		"redis state without url": minimal + `
store:
  state: redis
`,
		"unknown weekday": `
providers:
  - { id: anna, name: Anna }
hours:
  - { weekday: caturday, start: "09:00", end: "12:00" }
`,
		"inverted window": `
providers:
  - { id: anna, name: Anna }
hours:
  - { weekday: friday, start: "12:00", end: "09:00" }
`,
		"too many offers": minimal + `
booking:
  max_offers: 11
`,
		"unknown policy": minimal + `
calendar:
  policy: maybe
`,
		"bad timezone": minimal + `
booking:
  timezone: Mars/Olympus
`,
		"admins without jwt secret": minimal + `
admins:
  - { username: admin, password_hash: x }
`,
		"duplicate provider": `
providers:
  - { id: anna, name: Anna }
  - { id: anna, name: Other }
`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestDisabledProvider(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
providers:
  - { id: anna, name: Anna }
  - { id: max, name: Max, disabled: true }
`))
	require.NoError(t, err)
	dir, err := cfg.Directory()
	require.NoError(t, err)
	p, ok := dir.Get("max")
	require.True(t, ok)
	assert.False(t, p.Active)
	assert.Len(t, dir.Active(), 1)
}
