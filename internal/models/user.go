package models

import (
	"errors"
	"time"
)

// ErrMalformedRecord is returned when an account or usage payload is missing required fields.
var ErrMalformedRecord = errors.New("malformed record")

// Account represents a Farcaster user as returned by the social graph API.
type Account struct {
	FID         int64  `json:"fid"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	PfpURL      string `json:"pfp_url"`
}

// Complete reports whether the account carries every field needed to render it.
func (a *Account) Complete() bool {
	return a != nil && a.FID > 0 && a.Username != "" && a.DisplayName != "" && a.PfpURL != ""
}

// StorageClass holds capacity and usage for one resource class.
type StorageClass struct {
	Capacity int64 `json:"capacity"`
	Used     int64 `json:"used"`
}

// UsageRecord represents an account's storage usage across casts, reactions and links.
type UsageRecord struct {
	FID              int64         `json:"fid"`
	TotalActiveUnits int64         `json:"total_active_units"`
	Casts            *StorageClass `json:"casts"`
	Reactions        *StorageClass `json:"reactions"`
	Links            *StorageClass `json:"links"`
}

// Complete reports whether all three resource classes are present.
func (u *UsageRecord) Complete() bool {
	return u != nil && u.Casts != nil && u.Reactions != nil && u.Links != nil
}

// Classes returns the three resource classes in a fixed order.
// Callers must check Complete first.
func (u *UsageRecord) Classes() []*StorageClass {
	return []*StorageClass{u.Casts, u.Reactions, u.Links}
}

// Candidate is an account ranked by its remaining storage.
type Candidate struct {
	Account      Account `json:"account"`
	Remaining    int64   `json:"remaining"`
	OverCapacity bool    `json:"over_capacity"`
}

// OverCapacityReport records an account whose usage exceeded its capacity.
type OverCapacityReport struct {
	FID         int64     `json:"fid"`
	Capacity    int64     `json:"capacity"`
	Used        int64     `json:"used"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Occurrences int       `json:"occurrences"`
}
