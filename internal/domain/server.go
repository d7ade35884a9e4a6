package domain

// Server is the runtime view of one configured NNTP endpoint: identity and
// live counters. Static configuration (host/port/credentials/limits) lives
// in infra/config.ServerConfig; the pool attaches one Server per configured
// entry and updates these counters as connections are leased and released.
type Server struct {
	ID            string
	Host          string
	Port          int
	TLS           bool
	Username      string
	Password      string
	MaxConnection int
	Level         int // normalized level: 0 = primary, 1 = first backup, ...
	Active        bool
	GroupFilter   string // optional regexp restricting which groups this server serves

	// Counters exposed to RPC via ServerPool::get_connection_stats (§6.7).
	SuccessArticles int64
	FailedArticles  int64
	LeasedNow       int64
}
