package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lnbroker/internal/clockid"
	"lnbroker/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var (
	// ErrDuplicate is returned by Insert when payment_hash already exists.
	ErrDuplicate = errors.New("payment intent already exists")
	// ErrNotFound is returned by MarkStatus when payment_hash doesn't exist.
	ErrNotFound = errors.New("payment intent not found")
	// ErrStoreUnavailable wraps any underlying storage failure.
	ErrStoreUnavailable = errors.New("intent store unavailable")
)

// ClaimOutcome is the result of a TryClaim call.
type ClaimOutcome string

const (
	ClaimOutcomeClaimed           ClaimOutcome = "claimed"
	ClaimOutcomeNotFound          ClaimOutcome = "not_found"
	ClaimOutcomeAlreadyTerminal   ClaimOutcome = "already_terminal"
	ClaimOutcomeAlreadyProcessing ClaimOutcome = "already_processing"
)

// ClaimResult is TryClaim's return value: exactly one of Intent (when
// Outcome is Claimed) or TerminalStatus (when Outcome is AlreadyTerminal)
// carries additional information.
type ClaimResult struct {
	Outcome        ClaimOutcome
	Intent         *PaymentIntent
	TerminalStatus Status
}

// Store is the IntentStore: persistent storage with transactional status
// transitions and an append-only event log.
type Store struct {
	pool       *pgxpool.Pool
	clock      clockid.Clock
	defaultTTL time.Duration
}

// NewStore builds a Store over an already-migrated DB.
func NewStore(db *DB, clock clockid.Clock, defaultTTL time.Duration) *Store {
	return &Store{pool: db.pool, clock: clock, defaultTTL: defaultTTL}
}

const selectColumns = `payment_hash, user_api_key_hash, user_wallet_id, total_amount_sat,
	base_amount_sat, tip_amount_sat, tip_percent, display_currency,
	COALESCE(base_amount_display, ''), COALESCE(tip_amount_display, ''),
	COALESCE(memo, ''), status, metadata, environment, created_at, processed_at, expires_at`

func scanIntent(row pgx.Row) (*PaymentIntent, error) {
	var in PaymentIntent
	var status, environment string
	var metadataJSON []byte

	err := row.Scan(
		&in.PaymentHash,
		&in.UserAPIKeyHash,
		&in.UserWalletID,
		&in.TotalAmountSat,
		&in.BaseAmountSat,
		&in.TipAmountSat,
		&in.TipPercent,
		&in.DisplayCurrency,
		&in.BaseAmountDisplay,
		&in.TipAmountDisplay,
		&in.Memo,
		&status,
		&metadataJSON,
		&environment,
		&in.CreatedAt,
		&in.ProcessedAt,
		&in.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	in.Status = Status(status)
	in.Environment = Environment(environment)

	raw := map[string]string{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &raw); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if err := decodeMetadata(&in, raw); err != nil {
		return nil, fmt.Errorf("decode destination metadata: %w", err)
	}

	return &in, nil
}

// Insert inserts a new intent with status=pending and
// expires_at=created_at+default_ttl. Fails with ErrDuplicate if
// payment_hash exists.
func (s *Store) Insert(ctx context.Context, in *PaymentIntent) error {
	now := s.clock.Now()
	in.CreatedAt = now
	in.ExpiresAt = now.Add(s.defaultTTL)
	in.Status = StatusPending
	if in.UserAPIKeyHash == "" {
		in.UserAPIKeyHash = SentinelNoAPIKey
	}
	if in.UserWalletID == "" {
		in.UserWalletID = SentinelNoWallet
	}
	if in.DisplayCurrency == "" {
		in.DisplayCurrency = "BTC"
	}

	metaMap, err := encodeMetadata(in)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	metaJSON, err := json.Marshal(metaMap)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `INSERT INTO payment_intents (
		payment_hash, user_api_key_hash, user_wallet_id, total_amount_sat,
		base_amount_sat, tip_amount_sat, tip_percent, display_currency,
		base_amount_display, tip_amount_display, memo, status, metadata,
		environment, created_at, expires_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err = s.pool.Exec(ctx, query,
		in.PaymentHash, in.UserAPIKeyHash, in.UserWalletID, in.TotalAmountSat,
		in.BaseAmountSat, in.TipAmountSat, in.TipPercent, in.DisplayCurrency,
		nullIfEmpty(in.BaseAmountDisplay), nullIfEmpty(in.TipAmountDisplay), nullIfEmpty(in.Memo),
		string(in.Status), metaJSON, string(in.Environment), in.CreatedAt, in.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		logger.Error("failed to insert payment intent", zap.String("payment_hash", in.PaymentHash), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get returns a snapshot, or nil if payment_hash does not exist. Never
// mutates.
func (s *Store) Get(ctx context.Context, paymentHash string) (*PaymentIntent, error) {
	query := `SELECT ` + selectColumns + ` FROM payment_intents WHERE payment_hash = $1`
	row := s.pool.QueryRow(ctx, query, paymentHash)

	in, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		logger.Error("failed to get payment intent", zap.String("payment_hash", paymentHash), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return in, nil
}

// TryClaim atomically transitions pending -> processing. It is the only
// primitive that grants forwarding rights.
func (s *Store) TryClaim(ctx context.Context, paymentHash string, claimMetadata map[string]string) (ClaimResult, error) {
	now := s.clock.Now()
	patch := map[string]string{metaClaimedAt: now.Format(time.RFC3339Nano)}
	for k, v := range claimMetadata {
		patch[k] = v
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("marshal claim metadata: %w", err)
	}

	query := `UPDATE payment_intents
		SET status = 'processing', processed_at = $2, metadata = metadata || $3::jsonb
		WHERE payment_hash = $1 AND status = 'pending'
		RETURNING ` + selectColumns

	row := s.pool.QueryRow(ctx, query, paymentHash, now, patchJSON)
	in, err := scanIntent(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			logger.Error("failed to claim payment intent", zap.String("payment_hash", paymentHash), zap.Error(err))
			return ClaimResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		// Zero rows updated: a second read (which does not reset any
		// state) determines whether the row is missing, processing, or
		// terminal.
		existing, gerr := s.Get(ctx, paymentHash)
		if gerr != nil {
			return ClaimResult{}, gerr
		}
		if existing == nil {
			return ClaimResult{Outcome: ClaimOutcomeNotFound}, nil
		}
		if existing.Status == StatusProcessing {
			return ClaimResult{Outcome: ClaimOutcomeAlreadyProcessing}, nil
		}
		return ClaimResult{Outcome: ClaimOutcomeAlreadyTerminal, TerminalStatus: existing.Status}, nil
	}

	return ClaimResult{Outcome: ClaimOutcomeClaimed, Intent: in}, nil
}

// Release conditionally transitions processing -> pending. Zero rows
// updated is not an error for the caller.
func (s *Store) Release(ctx context.Context, paymentHash string, reason string) (bool, error) {
	now := s.clock.Now()
	patch := map[string]string{
		metaLastError:    reason,
		metaLastFailedAt: now.Format(time.RFC3339Nano),
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return false, fmt.Errorf("marshal release metadata: %w", err)
	}

	query := `UPDATE payment_intents
		SET status = 'pending', processed_at = NULL, metadata = metadata || $2::jsonb
		WHERE payment_hash = $1 AND status = 'processing'`

	tag, err := s.pool.Exec(ctx, query, paymentHash, patchJSON)
	if err != nil {
		logger.Error("failed to release payment intent", zap.String("payment_hash", paymentHash), zap.Error(err))
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkStatus unconditionally updates status, used by the Claimer for the
// completed and failed terminal transitions (the Janitor expires rows
// through ExpireBefore). Sets processed_at on entering completed or failed.
func (s *Store) MarkStatus(ctx context.Context, paymentHash string, newStatus Status, metadataPatch map[string]string) error {
	patchJSON, err := json.Marshal(metadataPatch)
	if err != nil {
		return fmt.Errorf("marshal status metadata: %w", err)
	}

	query := `UPDATE payment_intents SET status = $2, metadata = metadata || $3::jsonb`
	args := []any{paymentHash, string(newStatus), patchJSON}

	if newStatus == StatusCompleted || newStatus == StatusFailed {
		query += `, processed_at = $4`
		args = append(args, s.clock.Now())
	}
	query += ` WHERE payment_hash = $1`

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		logger.Error("failed to mark payment intent status", zap.String("payment_hash", paymentHash), zap.String("status", string(newStatus)), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireBefore atomically expires every pending/processing intent whose
// expires_at is before ts, returning the affected hashes. Safe to run
// concurrently with TryClaim.
func (s *Store) ExpireBefore(ctx context.Context, ts time.Time) ([]string, error) {
	query := `UPDATE payment_intents
		SET status = 'expired'
		WHERE status IN ('pending', 'processing') AND expires_at < $1
		RETURNING payment_hash`

	rows, err := s.pool.Query(ctx, query, ts)
	if err != nil {
		logger.Error("failed to expire payment intents", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan expired payment_hash: %w", err)
		}
		hashes = append(hashes, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return hashes, nil
}

// AppendEvent is best-effort: failure to append is logged but never
// propagated, so audit-log trouble never breaks the main flow.
func (s *Store) AppendEvent(ctx context.Context, paymentHash, kind string, outcome EventOutcome, metadata map[string]string, errMsg string) {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		logger.Warn("failed to marshal event metadata", zap.String("payment_hash", paymentHash), zap.String("kind", kind), zap.Error(err))
		metaJSON = []byte("{}")
	}

	query := `INSERT INTO payment_events (id, payment_hash, kind, outcome, metadata, error_message, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = s.pool.Exec(ctx, query, clockid.NewEventID(), paymentHash, kind, string(outcome), metaJSON, nullIfEmpty(errMsg), s.clock.Now())
	if err != nil {
		logger.Error("failed to append forwarding event", zap.String("payment_hash", paymentHash), zap.String("kind", kind), zap.Error(err))
	}
}

// Stats returns aggregate counts by status plus amount sums over the
// trailing window, for health/monitoring only.
func (s *Store) Stats(ctx context.Context, window time.Duration) (StatsSnapshot, error) {
	since := s.clock.Now().Add(-window)
	query := `SELECT status, COUNT(*), COALESCE(SUM(total_amount_sat), 0), COALESCE(SUM(tip_amount_sat), 0)
		FROM payment_intents WHERE created_at >= $1 GROUP BY status`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	snap := StatsSnapshot{ByStatus: map[Status]int64{}}
	for rows.Next() {
		var status string
		var count, total, tip int64
		if err := rows.Scan(&status, &count, &total, &tip); err != nil {
			return StatsSnapshot{}, fmt.Errorf("scan stats row: %w", err)
		}
		snap.ByStatus[Status(status)] = count
		snap.TotalAmountSat += total
		snap.TipAmountSat += tip
	}
	if err := rows.Err(); err != nil {
		return StatsSnapshot{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return snap, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
