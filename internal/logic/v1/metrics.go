package v1

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_sessions_started_total",
			Help: "Onboarding sessions started, by flow",
		},
		[]string{"flow"},
	)

	stepAdvances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_step_advances_total",
			Help: "Step advance attempts, by flow, step and result",
		},
		[]string{"flow", "step", "result"},
	)

	completions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_completions_total",
			Help: "Onboarding sessions handed off as completed profiles",
		},
		[]string{"flow"},
	)

	xpAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_xp_awarded_total",
			Help: "Experience points granted, by checklist item",
		},
		[]string{"item"},
	)

	verificationCodesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_verification_codes_total",
			Help: "Verification code events (sent, verified, locked)",
		},
		[]string{"result"},
	)
)
