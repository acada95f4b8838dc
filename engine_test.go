package vaultauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/docsafe/vaultauth/password"
	"github.com/docsafe/vaultauth/totp"
)

const testPassword = "correct-password-123"

type mockUserProvider struct {
	mu           sync.Mutex
	users        map[string]UserRecord
	byIdentifier map[string]string
	mfaRecords   map[string]MFARecord
	backupCodes  map[string][]BackupCodeRecord

	mfaErr     error
	consumeErr error

	getByIdentifierCalls    int
	getByIDCalls            int
	updatePasswordCalls     int
	getMFARecordCalls       int
	putMFARecordCalls       int
	deleteMFARecordCalls    int
	getBackupCodesCalls     int
	replaceBackupCodesCalls int
	consumeBackupCodeCalls  int
}

func (m *mockUserProvider) GetUserByIdentifier(identifier string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIdentifierCalls++

	userID, ok := m.byIdentifier[identifier]
	if !ok {
		return UserRecord{}, errors.New("not found")
	}
	user, ok := m.users[userID]
	if !ok {
		return UserRecord{}, errors.New("not found")
	}
	return user, nil
}

func (m *mockUserProvider) GetUserByID(userID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++

	user, ok := m.users[userID]
	if !ok {
		return UserRecord{}, errors.New("not found")
	}
	return user, nil
}

func (m *mockUserProvider) UpdatePasswordHash(userID string, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatePasswordCalls++

	user, ok := m.users[userID]
	if !ok {
		return errors.New("not found")
	}
	user.PasswordHash = newHash
	m.users[userID] = user
	return nil
}

func (m *mockUserProvider) GetMFARecord(ctx context.Context, userID string) (*MFARecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getMFARecordCalls++

	if m.mfaErr != nil {
		return nil, m.mfaErr
	}
	record, ok := m.mfaRecords[userID]
	if !ok {
		return nil, nil
	}
	cloned := record
	if len(record.EncryptedSecret) > 0 {
		cloned.EncryptedSecret = append([]byte(nil), record.EncryptedSecret...)
	}
	return &cloned, nil
}

func (m *mockUserProvider) PutMFARecord(ctx context.Context, userID string, record MFARecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putMFARecordCalls++

	if m.mfaErr != nil {
		return m.mfaErr
	}
	if _, ok := m.users[userID]; !ok {
		return errors.New("not found")
	}
	if m.mfaRecords == nil {
		m.mfaRecords = make(map[string]MFARecord)
	}
	if len(record.EncryptedSecret) > 0 {
		record.EncryptedSecret = append([]byte(nil), record.EncryptedSecret...)
	}
	m.mfaRecords[userID] = record
	return nil
}

func (m *mockUserProvider) DeleteMFARecord(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteMFARecordCalls++

	delete(m.mfaRecords, userID)
	return nil
}

func (m *mockUserProvider) GetBackupCodes(ctx context.Context, userID string) ([]BackupCodeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getBackupCodesCalls++

	records := m.backupCodes[userID]
	out := make([]BackupCodeRecord, len(records))
	copy(out, records)
	return out, nil
}

func (m *mockUserProvider) ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceBackupCodesCalls++

	if _, ok := m.users[userID]; !ok {
		return errors.New("not found")
	}
	if m.backupCodes == nil {
		m.backupCodes = make(map[string][]BackupCodeRecord)
	}
	next := make([]BackupCodeRecord, len(codes))
	copy(next, codes)
	m.backupCodes[userID] = next
	return nil
}

func (m *mockUserProvider) ConsumeBackupCode(ctx context.Context, userID string, codeHash [32]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumeBackupCodeCalls++

	if m.consumeErr != nil {
		return false, m.consumeErr
	}
	records := m.backupCodes[userID]
	matchIndex := -1
	for i := range records {
		if subtle.ConstantTimeCompare(records[i].Hash[:], codeHash[:]) == 1 && matchIndex == -1 {
			matchIndex = i
		}
	}
	if matchIndex < 0 {
		return false, nil
	}
	records = append(records[:matchIndex], records[matchIndex+1:]...)
	m.backupCodes[userID] = records
	return true, nil
}

func (m *mockUserProvider) resetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIdentifierCalls = 0
	m.getByIDCalls = 0
	m.updatePasswordCalls = 0
	m.getMFARecordCalls = 0
	m.putMFARecordCalls = 0
	m.deleteMFARecordCalls = 0
	m.getBackupCodesCalls = 0
	m.replaceBackupCodesCalls = 0
	m.consumeBackupCodeCalls = 0
}

func (m *mockUserProvider) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getByIdentifierCalls + m.getByIDCalls + m.updatePasswordCalls +
		m.getMFARecordCalls + m.putMFARecordCalls + m.deleteMFARecordCalls +
		m.getBackupCodesCalls + m.replaceBackupCodesCalls + m.consumeBackupCodeCalls
}

var (
	testHashOnce sync.Once
	testHash     string
	testHashErr  error
)

// hashedTestPassword hashes testPassword once per package run; bcrypt at
// the cost floor is still too slow to repeat in every test.
func hashedTestPassword(tb testing.TB) string {
	tb.Helper()

	testHashOnce.Do(func() {
		h, err := password.NewHasher(password.Config{
			Cost:           password.MinCost,
			MinLength:      10,
			MinCharClasses: 2,
			RejectCommon:   true,
		})
		if err != nil {
			testHashErr = err
			return
		}
		testHash, testHashErr = h.Hash(testPassword)
	})
	if testHashErr != nil {
		tb.Fatalf("hashing test password failed: %v", testHashErr)
	}
	return testHash
}

func newTestProvider(t *testing.T) *mockUserProvider {
	t.Helper()

	hash := hashedTestPassword(t)
	return &mockUserProvider{
		users: map[string]UserRecord{
			"u1": {UserID: "u1", Identifier: "alice", PasswordHash: hash, Role: "member"},
			"u9": {UserID: "u9", Identifier: "root", PasswordHash: hash, Role: "admin"},
		},
		byIdentifier: map[string]string{
			"alice": "u1",
			"root":  "u9",
		},
	}
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.MFA.SecretEncryptionKey = []byte("abcdefghijklmnopqrstuvwxyz012345")
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestEngine(t *testing.T, cfg Config, up UserProvider) (*Engine, *ChannelSink, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	sink := NewChannelSink(1024)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(up).
		WithAuditSink(sink).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	done := func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
	return engine, sink, done
}

func testTOTPOptions(cfg Config) totp.Options {
	return totp.Options{
		Period:    cfg.MFA.Period,
		Skew:      cfg.MFA.Skew,
		Digits:    cfg.MFA.Digits,
		Algorithm: cfg.MFA.Algorithm,
	}
}

func totpCodeAt(t *testing.T, cfg Config, secret string, at time.Time) string {
	t.Helper()

	code, err := totp.GenerateCode(secret, at, testTOTPOptions(cfg))
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	return code
}

// wrongTOTPCode flips the first digit so the result stays TOTP-shaped but
// no longer matches the window the input came from.
func wrongTOTPCode(code string) string {
	if code == "" {
		return "000000"
	}
	if code[0] != '0' {
		return "0" + code[1:]
	}
	return "1" + code[1:]
}

// enableMFA walks one account through setup and confirmation, consuming
// the current window's code in the replay ledger. Tests that verify
// afterwards must use a neighbouring window via totpCodeAt.
func enableMFA(t *testing.T, engine *Engine, cfg Config, userID string) (string, []string) {
	t.Helper()

	ctx := context.Background()
	setup, err := engine.SetupMFA(ctx, userID, testPassword)
	if err != nil {
		t.Fatalf("SetupMFA failed: %v", err)
	}
	code := totpCodeAt(t, cfg, setup.SecretBase32, time.Now())
	if err := engine.ConfirmMFA(ctx, userID, code); err != nil {
		t.Fatalf("ConfirmMFA failed: %v", err)
	}
	return setup.SecretBase32, setup.BackupCodes
}

// drainAudit closes nothing; it reads whatever the dispatcher has already
// delivered to the sink. Callers wanting a complete trail close the
// engine first.
func drainAudit(sink *ChannelSink) []AuditEvent {
	var events []AuditEvent
	for {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func auditEventsOfType(events []AuditEvent, eventType string) []AuditEvent {
	var out []AuditEvent
	for _, ev := range events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}
