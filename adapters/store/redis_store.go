package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/lnurld/core"
	"github.com/layer-3/lnurld/ports"
)

const keyPrefix = "lnurld:"

// Single-use transitions run as Lua scripts so the check and the set are
// one atomic step on the Redis side. Each script answers with a short
// status string that maps onto the core sentinel errors.
var (
	authenticateScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return "missing" end
if redis.call("HGET", KEYS[1], "authenticated") == "1" then
    if redis.call("HGET", KEYS[1], "pubkey") == ARGV[1] then return "ok" end
    return "conflict"
end
redis.call("HSET", KEYS[1], "authenticated", "1", "pubkey", ARGV[1], "authenticated_at", ARGV[2])
return "ok"`)

	attachInvoiceScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return "missing" end
local hash = redis.call("HGET", KEYS[1], "payment_hash")
if hash and hash ~= "" then return "issued" end
redis.call("HSET", KEYS[1], "payment_hash", ARGV[1], "amount_sats", ARGV[2], "description", ARGV[3], "comment", ARGV[4])
redis.call("SADD", KEYS[2], ARGV[5])
return "ok"`)

	markPaidScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return "missing" end
redis.call("HSET", KEYS[1], "paid", "1")
redis.call("SREM", KEYS[2], ARGV[1])
return "ok"`)

	spendWithdrawalScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return "missing" end
if redis.call("HGET", KEYS[1], "used") == "1" then return "used" end
redis.call("HSET", KEYS[1], "used", "1")
return "ok"`)

	resolveChannelScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return "missing" end
if redis.call("HGET", KEYS[1], "cancelled") == "1" or redis.call("HGET", KEYS[1], "completed") == "1" then
    return "resolved"
end
redis.call("HSET", KEYS[1], ARGV[1], "1")
return "ok"`)

	deleteExpiredScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
for _, k1 in ipairs(expired) do
    local key = ARGV[2] .. k1
    local id = redis.call("HGET", key, "id")
    if id then redis.call("DEL", ARGV[3] .. id) end
    redis.call("DEL", key)
    redis.call("ZREM", KEYS[1], k1)
end
return #expired`)
)

// RedisStore is the Redis implementation of the Store interface and the
// persistence engine used in production.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ ports.Store = (*RedisStore)(nil)

func sessionKey(k1 string) string    { return keyPrefix + "session:" + k1 }
func sessionIDKey(id string) string  { return keyPrefix + "session:id:" + id }
func sessionExpiryKey() string       { return keyPrefix + "sessions:expiry" }
func paymentKey(id string) string    { return keyPrefix + "payment:" + id }
func pendingKey() string             { return keyPrefix + "payments:pending" }
func withdrawalKey(k1 string) string { return keyPrefix + "withdrawal:" + k1 }
func channelKey(k1 string) string    { return keyPrefix + "channel:" + k1 }

// CreateSession persists a new auth session.
func (s *RedisStore) CreateSession(ctx context.Context, session *core.AuthSession) error {
	key := sessionKey(session.K1)

	created, err := s.client.HSetNX(ctx, key, "id", session.ID).Result()
	if err != nil {
		return storeErr("create session", err)
	}
	if !created {
		return fmt.Errorf("%w: duplicate k1", core.ErrStore)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"k1", session.K1,
		"action", string(session.Action),
		"pubkey", session.PubKey,
		"authenticated", boolField(session.Authenticated),
		"authenticated_at", timeField(session.AuthenticatedAt),
		"created_at", timeField(session.CreatedAt),
		"expires_at", timeField(session.ExpiresAt),
	)
	pipe.Set(ctx, sessionIDKey(session.ID), session.K1, 0)
	pipe.ZAdd(ctx, sessionExpiryKey(), redis.Z{
		Score:  float64(session.ExpiresAt.Unix()),
		Member: session.K1,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("create session", err)
	}

	return nil
}

// SessionByK1 returns the session owning the given challenge.
func (s *RedisStore) SessionByK1(ctx context.Context, k1 string) (*core.AuthSession, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(k1)).Result()
	if err != nil {
		return nil, storeErr("load session", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrChallengeNotFound
	}

	return sessionFromFields(fields), nil
}

// SessionByID returns the session with the given identifier.
func (s *RedisStore) SessionByID(ctx context.Context, id string) (*core.AuthSession, error) {
	k1, err := s.client.Get(ctx, sessionIDKey(id)).Result()
	if err == redis.Nil {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, storeErr("load session", err)
	}

	session, err := s.SessionByK1(ctx, k1)
	if err == core.ErrChallengeNotFound {
		return nil, core.ErrSessionNotFound
	}

	return session, err
}

// AuthenticateSession atomically binds pubKey to the session owning k1.
func (s *RedisStore) AuthenticateSession(ctx context.Context, k1, pubKey string, at time.Time) error {
	status, err := authenticateScript.Run(ctx, s.client,
		[]string{sessionKey(k1)}, pubKey, timeField(at)).Text()
	if err != nil {
		return storeErr("authenticate session", err)
	}

	switch status {
	case "ok":
		return nil
	case "missing":
		return core.ErrChallengeNotFound
	default:
		return core.ErrInvalidSignature
	}
}

// DeleteExpiredSessions removes every session past its deadline.
func (s *RedisStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	deleted, err := deleteExpiredScript.Run(ctx, s.client,
		[]string{sessionExpiryKey()},
		now.Unix(), keyPrefix+"session:", keyPrefix+"session:id:").Int()
	if err != nil {
		return 0, storeErr("delete expired sessions", err)
	}

	return deleted, nil
}

// CreatePayment persists a new pay config.
func (s *RedisStore) CreatePayment(ctx context.Context, payment *core.PaymentRequest) error {
	key := paymentKey(payment.ID)

	created, err := s.client.HSetNX(ctx, key, "id", payment.ID).Result()
	if err != nil {
		return storeErr("create payment", err)
	}
	if !created {
		return fmt.Errorf("%w: duplicate payment id", core.ErrStore)
	}

	err = s.client.HSet(ctx, key,
		"min_sendable_msat", payment.MinSendableMsat,
		"max_sendable_msat", payment.MaxSendableMsat,
		"comment_allowed", payment.CommentAllowed,
		"payment_hash", payment.PaymentHash,
		"amount_sats", payment.AmountSats,
		"description", payment.Description,
		"comment", payment.Comment,
		"paid", boolField(payment.Paid),
		"created_at", timeField(payment.CreatedAt),
	).Err()
	if err != nil {
		return storeErr("create payment", err)
	}

	return nil
}

// PaymentByID returns the pay config with the given identifier.
func (s *RedisStore) PaymentByID(ctx context.Context, id string) (*core.PaymentRequest, error) {
	fields, err := s.client.HGetAll(ctx, paymentKey(id)).Result()
	if err != nil {
		return nil, storeErr("load payment", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrPaymentNotFound
	}

	return paymentFromFields(fields), nil
}

// AttachInvoice records the invoice issued against a pay config.
func (s *RedisStore) AttachInvoice(ctx context.Context, id, paymentHash string, amountSats int64, description, comment string) error {
	status, err := attachInvoiceScript.Run(ctx, s.client,
		[]string{paymentKey(id), pendingKey()},
		paymentHash, amountSats, description, comment, id).Text()
	if err != nil {
		return storeErr("attach invoice", err)
	}

	switch status {
	case "ok":
		return nil
	case "missing":
		return core.ErrPaymentNotFound
	default:
		return core.ErrInvoiceIssued
	}
}

// MarkPaymentPaid flips a payment to paid.
func (s *RedisStore) MarkPaymentPaid(ctx context.Context, id string) error {
	status, err := markPaidScript.Run(ctx, s.client,
		[]string{paymentKey(id), pendingKey()}, id).Text()
	if err != nil {
		return storeErr("mark payment paid", err)
	}

	if status == "missing" {
		return core.ErrPaymentNotFound
	}

	return nil
}

// PendingPayments returns all unpaid payments with an attached invoice.
func (s *RedisStore) PendingPayments(ctx context.Context) ([]*core.PaymentRequest, error) {
	ids, err := s.client.SMembers(ctx, pendingKey()).Result()
	if err != nil {
		return nil, storeErr("list pending payments", err)
	}

	var pending []*core.PaymentRequest
	for _, id := range ids {
		payment, err := s.PaymentByID(ctx, id)
		if err == core.ErrPaymentNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !payment.Paid && payment.InvoiceIssued() {
			pending = append(pending, payment)
		}
	}

	return pending, nil
}

// CreateWithdrawal persists a new withdrawal token.
func (s *RedisStore) CreateWithdrawal(ctx context.Context, token *core.WithdrawalToken) error {
	key := withdrawalKey(token.K1)

	created, err := s.client.HSetNX(ctx, key, "k1", token.K1).Result()
	if err != nil {
		return storeErr("create withdrawal", err)
	}
	if !created {
		return fmt.Errorf("%w: duplicate k1", core.ErrStore)
	}

	err = s.client.HSet(ctx, key,
		"amount_sats", token.AmountSats,
		"used", boolField(token.Used),
		"created_at", timeField(token.CreatedAt),
	).Err()
	if err != nil {
		return storeErr("create withdrawal", err)
	}

	return nil
}

// WithdrawalByK1 returns the withdrawal token for k1.
func (s *RedisStore) WithdrawalByK1(ctx context.Context, k1 string) (*core.WithdrawalToken, error) {
	fields, err := s.client.HGetAll(ctx, withdrawalKey(k1)).Result()
	if err != nil {
		return nil, storeErr("load withdrawal", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrWithdrawalNotFound
	}

	return withdrawalFromFields(fields), nil
}

// SpendWithdrawal flips a token to used; exactly one racing caller wins.
func (s *RedisStore) SpendWithdrawal(ctx context.Context, k1 string) error {
	status, err := spendWithdrawalScript.Run(ctx, s.client,
		[]string{withdrawalKey(k1)}).Text()
	if err != nil {
		return storeErr("spend withdrawal", err)
	}

	switch status {
	case "ok":
		return nil
	case "missing":
		return core.ErrWithdrawalNotFound
	default:
		return core.ErrWithdrawalUsed
	}
}

// CreateChannel persists a new channel request.
func (s *RedisStore) CreateChannel(ctx context.Context, request *core.ChannelRequest) error {
	key := channelKey(request.K1)

	created, err := s.client.HSetNX(ctx, key, "k1", request.K1).Result()
	if err != nil {
		return storeErr("create channel request", err)
	}
	if !created {
		return fmt.Errorf("%w: duplicate k1", core.ErrStore)
	}

	err = s.client.HSet(ctx, key,
		"remote_id", request.RemoteID,
		"private", boolField(request.Private),
		"cancelled", boolField(request.Cancelled),
		"completed", boolField(request.Completed),
		"created_at", timeField(request.CreatedAt),
	).Err()
	if err != nil {
		return storeErr("create channel request", err)
	}

	return nil
}

// ChannelByK1 returns the channel request for k1.
func (s *RedisStore) ChannelByK1(ctx context.Context, k1 string) (*core.ChannelRequest, error) {
	fields, err := s.client.HGetAll(ctx, channelKey(k1)).Result()
	if err != nil {
		return nil, storeErr("load channel request", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrChannelNotFound
	}

	return channelFromFields(fields), nil
}

// CompleteChannel moves a channel request to the completed terminal
// state.
func (s *RedisStore) CompleteChannel(ctx context.Context, k1 string) error {
	return s.resolveChannel(ctx, k1, "completed")
}

// CancelChannel moves a channel request to the cancelled terminal state.
func (s *RedisStore) CancelChannel(ctx context.Context, k1 string) error {
	return s.resolveChannel(ctx, k1, "cancelled")
}

func (s *RedisStore) resolveChannel(ctx context.Context, k1, field string) error {
	status, err := resolveChannelScript.Run(ctx, s.client,
		[]string{channelKey(k1)}, field).Text()
	if err != nil {
		return storeErr("resolve channel request", err)
	}

	switch status {
	case "ok":
		return nil
	case "missing":
		return core.ErrChannelNotFound
	default:
		return core.ErrChannelResolved
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrStore, op, err)
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func timeField(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func parseTimeField(v string) time.Time {
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil || sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func parseIntField(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

func sessionFromFields(fields map[string]string) *core.AuthSession {
	return &core.AuthSession{
		ID:              fields["id"],
		K1:              fields["k1"],
		Action:          core.Action(fields["action"]),
		PubKey:          fields["pubkey"],
		Authenticated:   fields["authenticated"] == "1",
		AuthenticatedAt: parseTimeField(fields["authenticated_at"]),
		CreatedAt:       parseTimeField(fields["created_at"]),
		ExpiresAt:       parseTimeField(fields["expires_at"]),
	}
}

func paymentFromFields(fields map[string]string) *core.PaymentRequest {
	return &core.PaymentRequest{
		ID:              fields["id"],
		MinSendableMsat: parseIntField(fields["min_sendable_msat"]),
		MaxSendableMsat: parseIntField(fields["max_sendable_msat"]),
		CommentAllowed:  int(parseIntField(fields["comment_allowed"])),
		PaymentHash:     fields["payment_hash"],
		AmountSats:      parseIntField(fields["amount_sats"]),
		Description:     fields["description"],
		Comment:         fields["comment"],
		Paid:            fields["paid"] == "1",
		CreatedAt:       parseTimeField(fields["created_at"]),
	}
}

func withdrawalFromFields(fields map[string]string) *core.WithdrawalToken {
	return &core.WithdrawalToken{
		K1:         fields["k1"],
		AmountSats: parseIntField(fields["amount_sats"]),
		Used:       fields["used"] == "1",
		CreatedAt:  parseTimeField(fields["created_at"]),
	}
}

func channelFromFields(fields map[string]string) *core.ChannelRequest {
	return &core.ChannelRequest{
		K1:        fields["k1"],
		RemoteID:  fields["remote_id"],
		Private:   fields["private"] == "1",
		Cancelled: fields["cancelled"] == "1",
		Completed: fields["completed"] == "1",
		CreatedAt: parseTimeField(fields["created_at"]),
	}
}
