package metrics

import "github.com/prometheus/client_golang/prometheus"

// DefaultService labels samples recorded before MustRegister runs, which is
// what tests see.
const DefaultService = "uniauth"

var (
	authLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of login attempts per resolver.",
		},
		[]string{"service", "resolver", "result"},
	)

	merges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniauth_merges_total",
			Help: "Total number of identity merges.",
		},
		[]string{"service", "result"},
	)

	emailVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniauth_email_verifications_total",
			Help: "Total number of email verification attempts.",
		},
		[]string{"service", "result"},
	)

	placeholdersSwept = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniauth_placeholders_swept_total",
			Help: "Total number of expired placeholder identities deleted.",
		},
		[]string{"service"},
	)
)

var (
	AuthLoginsTotal         *prometheus.CounterVec
	MergesTotal             *prometheus.CounterVec
	EmailVerificationsTotal *prometheus.CounterVec
	PlaceholdersSweptTotal  prometheus.Counter
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
	ResultInvalid = "invalid"
)

func init() { curry(DefaultService) }

func curry(serviceName string) {
	labels := prometheus.Labels{"service": serviceName}
	AuthLoginsTotal = authLogins.MustCurryWith(labels)
	MergesTotal = merges.MustCurryWith(labels)
	EmailVerificationsTotal = emailVerifications.MustCurryWith(labels)
	PlaceholdersSweptTotal = placeholdersSwept.WithLabelValues(serviceName)
}

func MustRegister(serviceName string) {
	MustRegisterWith(prometheus.DefaultRegisterer, serviceName)
}

// MustRegisterWith labels every counter with the service name and registers
// them on reg.
func MustRegisterWith(reg prometheus.Registerer, serviceName string) {
	curry(serviceName)
	reg.MustRegister(
		authLogins,
		merges,
		emailVerifications,
		placeholdersSwept,
	)
}
