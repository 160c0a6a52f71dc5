package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTradeKeyNormalizesToUTCDate(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	// 2026-08-15 02:30 IST is still 2026-08-14 in UTC.
	late := time.Date(2026, 8, 15, 2, 30, 0, 0, ist)
	utc := time.Date(2026, 8, 14, 21, 0, 0, 0, time.UTC)

	assert.Equal(t, NewTradeKey("RELIANCE", "T1", late), NewTradeKey("RELIANCE", "T1", utc))
	assert.Equal(t, "2026-08-14", NewTradeKey("RELIANCE", "T1", late).EntryDate)
}

func TestTradeKeyDistinguishesComponents(t *testing.T) {
	entry := time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC)
	base := NewTradeKey("RELIANCE", "T1", entry)

	assert.NotEqual(t, base, NewTradeKey("INFY", "T1", entry))
	assert.NotEqual(t, base, NewTradeKey("RELIANCE", "T2", entry))
	assert.NotEqual(t, base, NewTradeKey("RELIANCE", "T1", entry.AddDate(0, 0, 1)))
	assert.Equal(t, base, NewTradeKey("RELIANCE", "T1", entry.Add(5*time.Hour)))
}

func TestCredentialExtra(t *testing.T) {
	cred := Credential{Extras: map[string]string{"totp_key": "abc"}}
	assert.Equal(t, "abc", cred.Extra("totp_key"))
	assert.Equal(t, "", cred.Extra("missing"))
	assert.Equal(t, "", Credential{}.Extra("totp_key"))
}
