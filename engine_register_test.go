package authflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func validRegistration() RegistrationInput {
	return RegistrationInput{
		Email:           "new@example.com",
		Password:        "12345678",
		Confirm:         "12345678",
		DisplayName:     "New User",
		CodeDestination: "chat:new",
	}
}

func TestStartRegistrationValidatesBeforeDispatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegistrationInput)
	}{
		{name: "empty email", mutate: func(in *RegistrationInput) { in.Email = "" }},
		{name: "no at sign", mutate: func(in *RegistrationInput) { in.Email = "new.example.com" }},
		{name: "double at sign", mutate: func(in *RegistrationInput) { in.Email = "a@b@c.com" }},
		{name: "bare domain", mutate: func(in *RegistrationInput) { in.Email = "a@b" }},
		{name: "trailing dot", mutate: func(in *RegistrationInput) { in.Email = "a@b.com." }},
		{name: "short password", mutate: func(in *RegistrationInput) { in.Password, in.Confirm = "1234567", "1234567" }},
		{name: "mismatched confirm", mutate: func(in *RegistrationInput) { in.Confirm = "different-pw" }},
		{name: "no destination", mutate: func(in *RegistrationInput) { in.CodeDestination = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newMockCredentialStore()
			delivery := &mockDelivery{}
			engine := newFlowEngine(t, flowTestConfig(), users, delivery, newFakeClock())

			input := validRegistration()
			tt.mutate(&input)

			err := engine.StartRegistration(context.Background(), input)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if delivery.count() != 0 {
				t.Fatal("validation failures must not reach the delivery channel")
			}
			if engine.Stage() != StageRegister {
				t.Fatalf("expected to stay on register with data preserved, got %s", engine.Stage())
			}
		})
	}
}

func TestStartRegistrationPreservesInputOnFailure(t *testing.T) {
	users := newMockCredentialStore()
	delivery := &mockDelivery{}
	engine := newFlowEngine(t, flowTestConfig(), users, delivery, newFakeClock())

	input := validRegistration()
	input.Confirm = "not-the-same"
	if err := engine.StartRegistration(context.Background(), input); err == nil {
		t.Fatal("expected validation failure")
	}

	pending := engine.PendingRegistration()
	if pending.Email != input.Email || pending.DisplayName != input.DisplayName {
		t.Fatalf("entered fields not preserved: %+v", pending)
	}
}

func TestRegistrationHappyPath(t *testing.T) {
	users := newMockCredentialStore()
	delivery := &mockDelivery{}
	cfg := flowTestConfig()
	cfg.Metrics.Enabled = true
	engine := newFlowEngine(t, cfg, users, delivery, newFakeClock())

	if err := engine.StartRegistration(context.Background(), validRegistration()); err != nil {
		t.Fatalf("StartRegistration failed: %v", err)
	}
	if engine.Stage() != StageVerifyCode {
		t.Fatalf("expected verify-code stage, got %s", engine.Stage())
	}
	if got := delivery.last().destination; got != "chat:new" {
		t.Fatalf("code dispatched to %q, want chat:new", got)
	}

	if err := engine.ConfirmRegistrationCode(context.Background(), delivery.last().code); err != nil {
		t.Fatalf("ConfirmRegistrationCode failed: %v", err)
	}
	if engine.Stage() != StageLogin {
		t.Fatalf("expected login stage after registration, got %s", engine.Stage())
	}
	if users.lastRegistered != "new@example.com" || users.lastDisplayName != "New User" {
		t.Fatalf("Register called with %q/%q", users.lastRegistered, users.lastDisplayName)
	}
	if got := engine.PendingRegistration(); got != (RegistrationInput{}) {
		t.Fatalf("registration data not cleared: %+v", got)
	}
	if got := engine.MetricsSnapshot().Counters[MetricRegistrationSuccess]; got != 1 {
		t.Fatalf("MetricRegistrationSuccess = %d, want 1", got)
	}
}

func TestConfirmRegistrationCodeMismatchIsRecoverable(t *testing.T) {
	users := newMockCredentialStore()
	delivery := &mockDelivery{}
	engine := newFlowEngine(t, flowTestConfig(), users, delivery, newFakeClock())

	if err := engine.StartRegistration(context.Background(), validRegistration()); err != nil {
		t.Fatalf("StartRegistration failed: %v", err)
	}

	wrong := makeDifferentCode(delivery.last().code)
	if err := engine.ConfirmRegistrationCode(context.Background(), wrong); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	if engine.Stage() != StageVerifyCode {
		t.Fatalf("mismatch must keep the verify-code stage, got %s", engine.Stage())
	}
	if users.registerCalls != 0 {
		t.Fatal("Register must not be reached on a mismatched code")
	}

	// The real code still works after a failed attempt.
	if err := engine.ConfirmRegistrationCode(context.Background(), delivery.last().code); err != nil {
		t.Fatalf("ConfirmRegistrationCode failed after retry: %v", err)
	}
}

func TestConfirmRegistrationConflictReturnsToForm(t *testing.T) {
	users := newMockCredentialStore()
	delivery := &mockDelivery{}
	cfg := flowTestConfig()
	cfg.Metrics.Enabled = true
	engine := newFlowEngine(t, cfg, users, delivery, newFakeClock())

	input := validRegistration()
	input.Email = "alice@example.com" // already registered in the mock
	if err := engine.StartRegistration(context.Background(), input); err != nil {
		t.Fatalf("StartRegistration failed: %v", err)
	}

	err := engine.ConfirmRegistrationCode(context.Background(), delivery.last().code)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if engine.Stage() != StageRegister {
		t.Fatalf("expected return to register, got %s", engine.Stage())
	}
	if got := engine.PendingRegistration(); got.Email != "alice@example.com" || got.DisplayName != input.DisplayName {
		t.Fatalf("entered fields not preserved after conflict: %+v", got)
	}
	if got := engine.MetricsSnapshot().Counters[MetricRegistrationDuplicate]; got != 1 {
		t.Fatalf("MetricRegistrationDuplicate = %d, want 1", got)
	}
}

func TestConfirmRegistrationNetworkFailureReturnsToForm(t *testing.T) {
	users := newMockCredentialStore()
	users.registerErr = errors.New("backend unreachable")
	delivery := &mockDelivery{}
	engine := newFlowEngine(t, flowTestConfig(), users, delivery, newFakeClock())

	if err := engine.StartRegistration(context.Background(), validRegistration()); err != nil {
		t.Fatalf("StartRegistration failed: %v", err)
	}

	err := engine.ConfirmRegistrationCode(context.Background(), delivery.last().code)
	if !errors.Is(err, ErrNetworkUnreachable) {
		t.Fatalf("expected ErrNetworkUnreachable, got %v", err)
	}
	if engine.Stage() != StageRegister {
		t.Fatalf("expected return to register, got %s", engine.Stage())
	}
	if engine.PendingRegistration().Email == "" {
		t.Fatal("entered fields must survive a transport failure")
	}
}

func TestResendCooldownBlocksThenSupersedes(t *testing.T) {
	users := newMockCredentialStore()
	delivery := &mockDelivery{}
	clock := newFakeClock()
	cfg := flowTestConfig()
	cfg.Metrics.Enabled = true
	engine := newFlowEngine(t, cfg, users, delivery, clock)

	if err := engine.StartRegistration(context.Background(), validRegistration()); err != nil {
		t.Fatalf("StartRegistration failed: %v", err)
	}
	first := delivery.last().code

	if err := engine.ResendCode(context.Background()); !errors.Is(err, ErrResendCooldown) {
		t.Fatalf("expected ErrResendCooldown, got %v", err)
	}
	if delivery.count() != 1 {
		t.Fatalf("blocked resend must not dispatch, got %d sends", delivery.count())
	}
	if got := engine.MetricsSnapshot().Counters[MetricResendBlocked]; got != 1 {
		t.Fatalf("MetricResendBlocked = %d, want 1", got)
	}

	clock.Advance(60 * time.Second)
	if err := engine.ResendCode(context.Background()); err != nil {
		t.Fatalf("ResendCode failed after cooldown: %v", err)
	}
	if delivery.count() != 2 {
		t.Fatalf("expected second dispatch, got %d", delivery.count())
	}
	second := delivery.last().code

	// The superseded code is dead even when it differs from the new one.
	if first != second {
		if err := engine.ConfirmRegistrationCode(context.Background(), first); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("expected superseded code rejection, got %v", err)
		}
	}
	if err := engine.ConfirmRegistrationCode(context.Background(), second); err != nil {
		t.Fatalf("ConfirmRegistrationCode failed with fresh code: %v", err)
	}
}

func TestResendOutsideCodeStagesRejected(t *testing.T) {
	users := newMockCredentialStore()
	delivery := &mockDelivery{}
	engine := newFlowEngine(t, flowTestConfig(), users, delivery, newFakeClock())

	if err := engine.ResendCode(context.Background()); !errors.Is(err, ErrStageInvalid) {
		t.Fatalf("expected ErrStageInvalid on the login stage, got %v", err)
	}
}

func TestBackFromVerifyCodeAbandonsCode(t *testing.T) {
	users := newMockCredentialStore()
	delivery := &mockDelivery{}
	cfg := flowTestConfig()
	cfg.Metrics.Enabled = true
	engine := newFlowEngine(t, cfg, users, delivery, newFakeClock())

	if err := engine.StartRegistration(context.Background(), validRegistration()); err != nil {
		t.Fatalf("StartRegistration failed: %v", err)
	}
	code := delivery.last().code

	if err := engine.Back(context.Background()); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	if engine.Stage() != StageRegister {
		t.Fatalf("expected register stage, got %s", engine.Stage())
	}
	if engine.PendingRegistration().Email == "" {
		t.Fatal("registration data must survive going back")
	}
	if got := engine.MetricsSnapshot().Counters[MetricFlowAbandoned]; got != 1 {
		t.Fatalf("MetricFlowAbandoned = %d, want 1", got)
	}

	// Restarting re-issues; the abandoned code is gone.
	if err := engine.StartRegistration(context.Background(), engine.PendingRegistration()); err != nil {
		t.Fatalf("StartRegistration failed: %v", err)
	}
	fresh := delivery.last().code
	if code != fresh {
		if err := engine.ConfirmRegistrationCode(context.Background(), code); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("expected abandoned code rejection, got %v", err)
		}
	}
}

func TestStartRegistrationStaleResponseDiscarded(t *testing.T) {
	users := newMockCredentialStore()
	delivery := &mockDelivery{}
	cfg := flowTestConfig()
	cfg.Metrics.Enabled = true
	engine := newFlowEngine(t, cfg, users, delivery, newFakeClock())

	delivery.sendHook = func() {
		delivery.sendHook = nil
		if err := engine.Back(context.Background()); err != nil {
			t.Errorf("Back failed: %v", err)
		}
	}

	err := engine.StartRegistration(context.Background(), validRegistration())
	if !errors.Is(err, ErrFlowSuperseded) {
		t.Fatalf("expected ErrFlowSuperseded, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricStaleResponseDiscarded]; got != 1 {
		t.Fatalf("MetricStaleResponseDiscarded = %d, want 1", got)
	}
}
