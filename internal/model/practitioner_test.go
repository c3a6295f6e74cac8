package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekdayPractitioner() *Practitioner {
	return &Practitioner{
		Name:          "Dr. Helena Souza",
		LicenseNumber: "48213",
		LicenseState:  "SP",
		WorkStart:     "08:00",
		WorkEnd:       "18:00",
		WorkDays:      "1,2,3,4,5",
		SlotMinutes:   30,
	}
}

func TestWorksOn(t *testing.T) {
	p := weekdayPractitioner()
	assert.True(t, p.WorksOn(time.Monday))
	assert.True(t, p.WorksOn(time.Friday))
	assert.False(t, p.WorksOn(time.Saturday))
	assert.False(t, p.WorksOn(time.Sunday))

	p.WorkDays = "0,6"
	assert.True(t, p.WorksOn(time.Sunday))
	assert.False(t, p.WorksOn(time.Wednesday))
}

func TestWindowFor(t *testing.T) {
	p := weekdayPractitioner()

	// 2024-03-01 is a Friday
	friday := time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC)
	start, end, ok := p.WindowFor(friday)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC), end)

	sunday := time.Date(2024, 3, 3, 11, 30, 0, 0, time.UTC)
	_, _, ok = p.WindowFor(sunday)
	assert.False(t, ok)

	p.WorkStart = "bogus"
	_, _, ok = p.WindowFor(friday)
	assert.False(t, ok)

	p.WorkStart = "18:00"
	p.WorkEnd = "08:00"
	_, _, ok = p.WindowFor(friday)
	assert.False(t, ok, "inverted window is treated as unconfigured")
}

func TestDefaultDuration(t *testing.T) {
	p := weekdayPractitioner()
	assert.Equal(t, 30, p.DefaultDuration())

	p.SlotMinutes = 45
	assert.Equal(t, 45, p.DefaultDuration())

	p.SlotMinutes = 0
	assert.Equal(t, DefaultSlotMinutes, p.DefaultDuration())
}

func TestLicense(t *testing.T) {
	p := weekdayPractitioner()
	assert.Equal(t, "CRO-SP 48213", p.License())
}
