// Package mailer runs the background mail delivery worker. It drains the
// durable mail queue on a fixed interval, and can be woken early by a UDP
// "ping" datagram from an allowlisted web-tier host, so enqueued mail
// normally leaves within one MTA round-trip instead of waiting out the
// interval.
//
// Two goroutines share one wake channel: the UDP listener feeds it, the
// consumer selects on it alongside the interval timer and the shutdown
// context. The ping payload is unsigned; the only authentication is the
// source-IP allowlist, which is a trust-on-LAN decision.
package mailer

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// PingPayload is the only datagram the listener acts on.
const PingPayload = "ping\n"

// maxDatagram bounds the receive buffer; anything longer is garbage anyway.
const maxDatagram = 128

// defaultBatchSize caps how many pending rows one cycle drains.
const defaultBatchSize = 100

var (
	mailsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailer_mails_sent_total",
		Help: "Mails handed to the MTA and marked sent.",
	})
	mailsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailer_mails_failed_total",
		Help: "Mail deliveries the MTA rejected; rows stay queued.",
	})
	mailerWakes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailer_wakes_total",
		Help: "Consumer wake-ups, both interval and ping triggered.",
	})
)

func init() {
	prometheus.MustRegister(mailsSent, mailsFailed, mailerWakes)
}

// MTA is the SMTP-speaking collaborator behind the worker. Session errors
// abort the current batch; per-mail errors leave that row queued.
type MTA interface {
	// Session opens one delivery session; the returned close function is
	// called when the batch ends.
	Session(ctx context.Context) (SendFunc, func() error, error)
}

// SendFunc delivers one mail within an open session.
type SendFunc func(ctx context.Context, mail *domain.Mail) error

// Worker owns the consumer loop and the UDP listener.
type Worker struct {
	DB        *gorm.DB
	MTA       MTA
	Interval  time.Duration // sleep between drains when not pinged
	BatchSize int           // ≤ 0 means defaultBatchSize
	Log       zerolog.Logger

	// UDP listener config
	Addr       string        // host:port to bind
	UDPTimeout time.Duration // receive deadline per read
	Allowed    []string      // client IPs permitted to ping

	wake chan struct{}
	conn *net.UDPConn
	wg   sync.WaitGroup
}

// Start binds the UDP socket and launches both goroutines. It returns once
// the worker is running; cancel ctx to begin a cooperative shutdown and call
// Wait to join.
func (w *Worker) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", w.Addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	w.conn = conn
	w.wake = make(chan struct{}, 1)

	w.wg.Add(2)
	go w.listen(ctx)
	go w.consume(ctx)
	return nil
}

// LocalAddr returns the bound UDP address, useful when Addr requested an
// ephemeral port.
func (w *Worker) LocalAddr() net.Addr { return w.conn.LocalAddr() }

// Wait blocks until both goroutines have exited and closes the socket.
func (w *Worker) Wait() {
	w.wg.Wait()
	if w.conn != nil {
		_ = w.conn.Close()
	}
}

// listen reads datagrams until ctx is cancelled. Only an exact PingPayload
// from an allowed client IP signals the consumer; everything else is
// discarded silently (a debug log at most).
func (w *Worker) listen(ctx context.Context) {
	defer w.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = w.conn.SetReadDeadline(time.Now().Add(w.UDPTimeout))
		n, peer, err := w.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.Log.Warn().Err(err).Msg("udp receive")
			continue
		}
		if string(buf[:n]) != PingPayload {
			continue
		}
		if !w.allowed(peer.IP) {
			w.Log.Debug().Str("peer", peer.IP.String()).Msg("ping from disallowed client")
			continue
		}
		select {
		case w.wake <- struct{}{}:
		default: // a wake is already pending
		}
	}
}

func (w *Worker) allowed(ip net.IP) bool {
	for _, a := range w.Allowed {
		if parsed := net.ParseIP(strings.TrimSpace(a)); parsed != nil && parsed.Equal(ip) {
			return true
		}
	}
	return false
}

// consume drains the queue once per wake, where a wake is a ping, the
// interval elapsing, or shutdown (which exits instead).
func (w *Worker) consume(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		case <-time.After(w.Interval):
		}
		mailerWakes.Inc()
		w.drain(ctx)
	}
}

// drain sends one batch of pending mail. Per-mail failures leave the row for
// the next cycle; a session error or cancellation ends the batch early.
func (w *Worker) drain(ctx context.Context) {
	limit := w.BatchSize
	if limit <= 0 {
		limit = defaultBatchSize
	}
	batch, err := repo.PendingMail(ctx, w.DB, limit)
	if err != nil {
		w.Log.Error().Err(err).Msg("fetch pending mail")
		return
	}
	if len(batch) == 0 {
		return
	}

	send, closeSession, err := w.MTA.Session(ctx)
	if err != nil {
		w.Log.Error().Err(err).Msg("open mta session")
		return
	}
	defer func() {
		if err := closeSession(); err != nil {
			w.Log.Warn().Err(err).Msg("close mta session")
		}
	}()

	for i := range batch {
		if ctx.Err() != nil {
			return
		}
		m := &batch[i]
		if err := w.resolveReceiver(ctx, m); err != nil {
			mailsFailed.Inc()
			w.Log.Warn().Err(err).Str("mail_id", m.ID).Msg("resolve receiver")
			continue
		}
		if err := send(ctx, m); err != nil {
			mailsFailed.Inc()
			w.Log.Warn().Err(err).Str("mail_id", m.ID).Msg("delivery failed, mail stays queued")
			continue
		}
		if err := repo.MarkMailSent(ctx, w.DB, m.ID); err != nil {
			w.Log.Error().Err(err).Str("mail_id", m.ID).Msg("mark sent")
			continue
		}
		mailsSent.Inc()
	}
}

// resolveReceiver rewrites a "user:<username>" receiver reference to the
// user's current address, so address changes between enqueue and delivery
// are honoured.
func (w *Worker) resolveReceiver(ctx context.Context, m *domain.Mail) error {
	username, ok := strings.CutPrefix(m.Receiver, "user:")
	if !ok {
		return nil
	}
	u, err := repo.GetUserByUsername(ctx, w.DB, username)
	if err != nil {
		return err
	}
	m.Receiver = u.Email
	return nil
}

// Ping wakes a mailer listening on addr. Callers treat a failure as "the
// interval will catch it": errors are returned for logging but delivery is
// not affected.
func Ping(addr string) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write([]byte(PingPayload))
	return err
}
