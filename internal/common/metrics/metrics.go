package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels shared by the OTP counters
const (
	ResultOK = "ok"
)

var (
	otpIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "otp",
		Name:      "issue_total",
		Help:      "OTP issuance attempts by result.",
	}, []string{"result"})

	otpVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "otp",
		Name:      "verify_total",
		Help:      "OTP verification attempts by result.",
	}, []string{"result"})

	smsFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "otp",
		Name:      "sms_failures_total",
		Help:      "OTP SMS deliveries the gateway rejected or that timed out.",
	})

	otpPurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "otp",
		Name:      "purged_total",
		Help:      "Stale OTP rows deleted by the cleanup job.",
	})

	sessionsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "session",
		Name:      "issued_total",
		Help:      "Sessions issued by login method.",
	}, []string{"method"})
)

// OTPIssued counts an issuance outcome
func OTPIssued(result string) { otpIssued.WithLabelValues(result).Inc() }

// OTPVerified counts a verification outcome
func OTPVerified(result string) { otpVerified.WithLabelValues(result).Inc() }

// SMSFailed counts a failed SMS delivery
func SMSFailed() { smsFailures.Inc() }

// OTPPurged counts rows removed by cleanup
func OTPPurged(n int64) { otpPurged.Add(float64(n)) }

// SessionIssued counts a session created by method
func SessionIssued(method string) { sessionsIssued.WithLabelValues(method).Inc() }

// Handler exposes the default registry
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
