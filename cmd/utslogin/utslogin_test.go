package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	utslogin "github.com/unimate/utslogin"
	"github.com/unimate/utslogin/flow"
	"github.com/unimate/utslogin/loginconfig"
	"github.com/unimate/utslogin/tokenstore"
)

// backend is a scripted login server.
type backend struct {
	mu         sync.Mutex
	signups    []string
	codes      []string
	validCode  string
	token      string
	signupCode int
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch r.URL.Path {
	case "/login/signup":
		b.signups = append(b.signups, body["email"])
		if b.signupCode != 0 {
			w.WriteHeader(b.signupCode)
			_, _ = w.Write([]byte(`{"message":"Unknown student"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	case "/login/verify":
		b.codes = append(b.codes, body["verificationCode"])
		if body["verificationCode"] != b.validCode || body["password"] != "1234" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Authorization", "Bearer "+b.token)
	default:
		http.NotFound(w, r)
	}
}

func (b *backend) signupList() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.signups...)
}

func (b *backend) codeList() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.codes...)
}

func (b *backend) rejectSignups(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signupCode = status
}

type fixture struct {
	backend *backend
	cfg     *loginconfig.Config
	client  *utslogin.Client
	store   *tokenstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := &backend{validCode: "123456", token: "xyz"}
	server := httptest.NewServer(b)
	t.Cleanup(server.Close)

	cfg := loginconfig.Default()
	cfg.Server.BaseURL = server.URL
	cfg.Token.Path = filepath.Join(t.TempDir(), "tokens.yaml")

	client, store, err := resolve(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{backend: b, cfg: cfg, client: client, store: store}
}

func (fx *fixture) run(t *testing.T, input string) (string, *terminalSession, error) {
	t.Helper()
	var out bytes.Buffer
	sess := newTerminalSession(strings.NewReader(input), &out, fx.cfg.Login.EmailDomain)
	f := newFlow(fx.cfg, fx.client, fx.store, sess,
		flow.WithNotifier(sess),
		flow.WithFocusController(sess),
	)
	t.Cleanup(f.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := sess.Run(ctx, f)
	return out.String(), sess, err
}

func (fx *fixture) storedToken(t *testing.T) string {
	t.Helper()
	e, err := fx.store.Get("access_token")
	if err != nil {
		return ""
	}
	return e.Value
}

func TestLoginSessionHappyPath(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	out, sess, err := fx.run(t, "12345678\n123456\n\n")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if sess.navigated != "Main" {
		t.Fatalf("navigated=%q", sess.navigated)
	}
	if got := fx.storedToken(t); got != "xyz" {
		t.Fatalf("token=%q", got)
	}
	if got := fx.backend.signupList(); len(got) != 1 || got[0] != "12345678@student.uts.edu.au" {
		t.Fatalf("signups=%v", got)
	}
	for _, want := range []string{
		"A verification code has been sent to your email.",
		"You have been successfully logged in!",
		"Continuing to Main",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLoginSessionDigitByDigit(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	out, sess, err := fx.run(t, "12345678\n1\n2\n3\n4\n5\n6\n:submit\n")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if sess.navigated != "Main" {
		t.Fatalf("navigated=%q\n%s", sess.navigated, out)
	}
	if got := fx.backend.codeList(); len(got) != 1 || got[0] != "123456" {
		t.Fatalf("codes=%v", fx.backend.codeList())
	}
}

func TestLoginSessionEmptyPrefix(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	out, _, err := fx.run(t, "\n:quit\n")
	if err != errAborted {
		t.Fatalf("err=%v", err)
	}
	if len(fx.backend.signupList()) != 0 {
		t.Fatalf("signups=%v", fx.backend.signupList())
	}
	if !strings.Contains(out, "Please enter your student ID before the domain.") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestLoginSessionServerRejection(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.backend.rejectSignups(http.StatusBadRequest)
	out, _, err := fx.run(t, "99999999\n")
	if err != errAborted {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(out, "[Error] Unknown student") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestLoginSessionInvalidCodeThenCorrection(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	// Wrong code, then fix the last cell and resubmit.
	out, sess, err := fx.run(t, "12345678\n123450\n\n:cell 6\n6\n\n")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Invalid verification code, please try again.") {
		t.Fatalf("output:\n%s", out)
	}
	if sess.navigated != "Main" {
		t.Fatalf("navigated=%q", sess.navigated)
	}
	if got := fx.backend.codeList(); len(got) != 2 || got[0] != "123450" || got[1] != "123456" {
		t.Fatalf("codes=%v", got)
	}
}

func TestLoginSessionBackClearsCode(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	// Back keeps the student ID, so Enter at the ID prompt resends it.
	out, sess, err := fx.run(t, "12345678\n12\n:back\n\n123456\n\n")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if sess.navigated != "Main" {
		t.Fatalf("navigated=%q\n%s", sess.navigated, out)
	}
	if got := fx.backend.signupList(); len(got) != 2 || got[0] != got[1] {
		t.Fatalf("signups=%v", got)
	}
	if !strings.Contains(out, "[12345678]") {
		t.Fatalf("expected kept ID in prompt:\n%s", out)
	}
	if n := strings.Count(out, "Code [>_ _ _ _ _ _]"); n != 2 {
		t.Fatalf("expected an empty code prompt after back, got %d:\n%s", n, out)
	}
}

func TestLoginSessionPastedCodeWithSpaces(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	out, sess, err := fx.run(t, "12345678\n123 456\n\n")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if got := fx.backend.codeList(); len(got) != 1 || got[0] != "123456" {
		t.Fatalf("codes=%v", got)
	}
	if sess.navigated != "Main" {
		t.Fatalf("navigated=%q", sess.navigated)
	}
}

func TestLoginSessionCancelWhileWaitingForInput(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	var out bytes.Buffer
	sess := newTerminalSession(in, &out, fx.cfg.Login.EmailDomain)
	f := newFlow(fx.cfg, fx.client, fx.store, sess, flow.WithNotifier(sess))
	t.Cleanup(f.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx, f) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != errAborted {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel while blocked on input")
	}
	if got := fx.backend.signupList(); len(got) != 0 {
		t.Fatalf("signups=%v", got)
	}
}

func TestLoginSessionEOFAborts(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	_, sess, err := fx.run(t, "12345678\n12")
	if err != errAborted {
		t.Fatalf("err=%v", err)
	}
	if sess.navigated != "" {
		t.Fatalf("navigated=%q", sess.navigated)
	}
	if got := fx.storedToken(t); got != "" {
		t.Fatalf("token=%q", got)
	}
}

func TestEnterCode(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	nav := &recordingNavigator{}
	var notice flow.Notice
	f := newFlow(fx.cfg, fx.client, fx.store, nav,
		flow.WithNotifier(flow.NotifierFunc(func(n flow.Notice) { notice = n })),
	)
	t.Cleanup(f.Close)

	if err := enterCode(context.Background(), f, "12345678", "123456"); err != nil {
		t.Fatal(err)
	}
	if !notice.OK() || nav.screen != "Main" {
		t.Fatalf("notice=%+v screen=%q", notice, nav.screen)
	}
	if len(fx.backend.signupList()) != 0 {
		t.Fatalf("verify must not request a new code: %v", fx.backend.signupList())
	}
	if got := fx.storedToken(t); got != "xyz" {
		t.Fatalf("token=%q", got)
	}
}

func TestRequestCode(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	f := newFlow(fx.cfg, fx.client, fx.store, nopNavigator{})
	t.Cleanup(f.Close)

	notice, err := requestCode(context.Background(), f, "  ")
	if err != nil {
		t.Fatal(err)
	}
	if notice.Kind != flow.NoticeValidation || len(fx.backend.signupList()) != 0 {
		t.Fatalf("notice=%+v signups=%v", notice, fx.backend.signupList())
	}

	notice, err = requestCode(context.Background(), f, " 12345678 ")
	if err != nil {
		t.Fatal(err)
	}
	if !notice.OK() || f.Phase() != flow.AwaitingCode {
		t.Fatalf("notice=%+v phase=%v", notice, f.Phase())
	}
	if got := fx.backend.signupList(); len(got) != 1 || got[0] != "12345678@student.uts.edu.au" {
		t.Fatalf("signups=%v", got)
	}
}

func TestTokenStatus(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	out, err := tokenStatus(fx.store, "access_token", now)
	if err != nil {
		t.Fatal(err)
	}
	if out.SignedIn {
		t.Fatal("expected signed out")
	}

	if err := fx.store.Set("access_token", "opaque-token"); err != nil {
		t.Fatal(err)
	}
	out, err = tokenStatus(fx.store, "access_token", now)
	if err != nil {
		t.Fatal(err)
	}
	if !out.SignedIn || out.TokenType != "opaque" {
		t.Fatalf("out=%+v", out)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "12345678@student.uts.edu.au",
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.store.Set("access_token", signed); err != nil {
		t.Fatal(err)
	}
	out, err = tokenStatus(fx.store, "access_token", now)
	if err != nil {
		t.Fatal(err)
	}
	if out.TokenType != "jwt" || out.Subject != "12345678@student.uts.edu.au" || !out.Expired {
		t.Fatalf("out=%+v", out)
	}
	if out.ExpiresAt != "2025-12-31T23:00:00Z" {
		t.Fatalf("expires_at=%s", out.ExpiresAt)
	}
}

func TestRenderCode(t *testing.T) {
	t.Parallel()

	got := renderCode(flow.CodeBuffer{"1", "2", "", "", "", ""}, 2)
	if got != "[1 2 >_ _ _ _]" {
		t.Fatalf("got %q", got)
	}
}
