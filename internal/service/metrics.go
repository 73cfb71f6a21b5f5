package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"blog-account-server/internal/domain"
)

var authAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{Name: "auth_attempts_total", Help: "Login attempts by result"},
	[]string{"result"},
)

func init() { prometheus.MustRegister(authAttempts) }

func authResult(err error) string {
	if err == nil {
		return "success"
	}
	var ae *domain.AuthenticationError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case domain.AuthDisabled:
			return "disabled"
		case domain.AuthLocked:
			return "locked"
		case domain.AuthCanceled:
			return "canceled"
		}
	}
	return "invalid_credential"
}

func observeAuth(err error) { authAttempts.WithLabelValues(authResult(err)).Inc() }
