package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageStatus_String(t *testing.T) {
	tests := []struct {
		status PageStatus
		want   string
	}{
		{PageStatusUnset, "unset"},
		{PageStatusPending, "pending"},
		{PageStatusSuccess, "success"},
		{PageStatusFailure, "failure"},
		{PageStatusNotFound, "not_found"},
		{PageStatusDBError, "db_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestPageStatus_IsValid(t *testing.T) {
	tests := []struct {
		status PageStatus
		want   bool
	}{
		{PageStatusPending, true},
		{PageStatusSuccess, true},
		{PageStatusFailure, true},
		{PageStatusUnset, false},
		{PageStatusNotFound, false},
		{PageStatusDBError, false},
		{PageStatus("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsValid(), "PageStatus(%q).IsValid()", string(tt.status))
	}
}

func TestCrawlState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to CrawlState
		want     bool
	}{
		{CrawlStateIdle, CrawlStateRunning, true},
		{CrawlStateRunning, CrawlStateDone, true},
		{CrawlStateIdle, CrawlStateDone, false},
		{CrawlStateRunning, CrawlStateRunning, false},
		{CrawlStateRunning, CrawlStateIdle, false},
		{CrawlStateDone, CrawlStateRunning, false},
		{CrawlStateDone, CrawlStateIdle, false},
		{CrawlState("paused"), CrawlStateRunning, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCrawlState_IsTerminal(t *testing.T) {
	assert.False(t, CrawlStateIdle.IsTerminal())
	assert.False(t, CrawlStateRunning.IsTerminal())
	assert.True(t, CrawlStateDone.IsTerminal())
}
