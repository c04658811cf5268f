// Package flow implements the one-time-code login state machine.
//
// A Flow starts in AwaitingAddress. Submitting a non-empty student ID asks
// the backend to mail a code and moves to AwaitingCode; submitting the six
// code cells verifies them, stores the returned token and navigates to the
// signed-in screen. Every backend outcome is reported through a Notifier;
// the Submit methods only return errors for misuse of the flow itself.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	utslogin "github.com/unimate/utslogin"
	"github.com/unimate/utslogin/loginconfig"
	"github.com/unimate/utslogin/logger"
)

var (
	// ErrClosed is returned once the flow has been discarded or has
	// finished by navigating away.
	ErrClosed = errors.New("flow: closed")
	// ErrInFlight is returned when the same action is already outstanding.
	ErrInFlight = errors.New("flow: request already in flight")
	// ErrWrongPhase is returned when an action is not available in the
	// current phase.
	ErrWrongPhase = errors.New("flow: action not available in this phase")
	// ErrStale is returned when the flow was reset while a request was
	// outstanding; the response was dropped.
	ErrStale = errors.New("flow: response dropped after reset")
)

// Phase selects which input surface is active.
type Phase int

const (
	AwaitingAddress Phase = iota
	AwaitingCode
)

func (p Phase) String() string {
	switch p {
	case AwaitingAddress:
		return "awaiting_address"
	case AwaitingCode:
		return "awaiting_code"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// API is the backend the flow talks to. *utslogin.Client implements it.
type API interface {
	RequestCode(ctx context.Context, req *utslogin.SignupRequest) (utslogin.SignupResponse, error)
	VerifyCode(ctx context.Context, req *utslogin.VerifyRequest) (*utslogin.VerifyResponse, error)
}

// TokenStore persists sensitive values. *tokenstore.Store implements it.
type TokenStore interface {
	Set(key, value string) error
}

// Navigator moves the caller to another screen.
type Navigator interface {
	NavigateTo(screen string) error
}

// FocusController moves input focus between code cells.
type FocusController interface {
	RequestFocus(index int)
}

// Notifier shows a notice to the user.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// FocusFunc adapts a function to FocusController.
type FocusFunc func(int)

func (f FocusFunc) RequestFocus(i int) { f(i) }

type noopNotifier struct{}

func (noopNotifier) Notify(Notice) {}

type noopFocus struct{}

func (noopFocus) RequestFocus(int) {}

// Option configures a Flow.
type Option func(*Flow)

// WithNotifier sets where notices are shown.
func WithNotifier(n Notifier) Option { return func(f *Flow) { f.notifier = n } }

// WithFocusController sets the cell focus controller.
func WithFocusController(fc FocusController) Option { return func(f *Flow) { f.focus = fc } }

// WithLogger sets the logger. Defaults to the global logger.
func WithLogger(l *zap.Logger) Option { return func(f *Flow) { f.log = l } }

// WithEmailDomain overrides the domain appended to the student ID.
func WithEmailDomain(domain string) Option { return func(f *Flow) { f.domain = domain } }

// WithPassword overrides the credential sent with the code.
func WithPassword(password string) Option { return func(f *Flow) { f.password = password } }

// WithTokenKey overrides the storage slot for the access token.
func WithTokenKey(key string) Option { return func(f *Flow) { f.tokenKey = key } }

// WithDestination overrides the screen navigated to after login.
func WithDestination(screen string) Option { return func(f *Flow) { f.destination = screen } }

// State is a point-in-time view of the flow for rendering.
type State struct {
	Phase     Phase
	Prefix    string
	Address   string
	Code      CodeBuffer
	Focus     int
	Sending   bool
	Verifying bool
	Done      bool
}

// Flow is one login screen instance.
//
// Methods are safe for concurrent use. Notifier, FocusController, Navigator
// and TokenStore are invoked while the flow's lock is held and must not call
// back into the Flow.
type Flow struct {
	id          string
	api         API
	store       TokenStore
	nav         Navigator
	notifier    Notifier
	focus       FocusController
	log         *zap.Logger
	domain      string
	password    string
	tokenKey    string
	destination string

	life context.Context
	stop context.CancelFunc

	mu        sync.Mutex
	prefix    string
	phase     Phase
	code      CodeBuffer
	focusIdx  int
	epoch     uint64
	sending   bool
	verifying bool
	done      bool
	closed    bool
}

// New returns a flow in AwaitingAddress.
func New(api API, store TokenStore, nav Navigator, opts ...Option) *Flow {
	life, stop := context.WithCancel(context.Background())
	f := &Flow{
		id:          uuid.NewString(),
		api:         api,
		store:       store,
		nav:         nav,
		notifier:    noopNotifier{},
		focus:       noopFocus{},
		domain:      loginconfig.DefaultEmailDomain,
		password:    loginconfig.PlaceholderPassword,
		tokenKey:    loginconfig.DefaultTokenKey,
		destination: loginconfig.DefaultDestination,
		life:        life,
		stop:        stop,
		phase:       AwaitingAddress,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.notifier == nil {
		f.notifier = noopNotifier{}
	}
	if f.focus == nil {
		f.focus = noopFocus{}
	}
	if f.log == nil {
		f.log = logger.WithModule("flow")
	}
	f.log = f.log.With(zap.String("flow_id", f.id))
	return f
}

// ID identifies this flow instance in logs.
func (f *Flow) ID() string { return f.id }

// DeriveAddress appends domain to prefix.
func DeriveAddress(prefix, domain string) string {
	return prefix + "@" + domain
}

// SetPrefix replaces the student ID.
func (f *Flow) SetPrefix(prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.done {
		return ErrClosed
	}
	f.prefix = prefix
	return nil
}

// Prefix returns the student ID as entered.
func (f *Flow) Prefix() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefix
}

// Address returns the derived email address.
func (f *Flow) Address() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return DeriveAddress(f.prefix, f.domain)
}

// Phase returns the current phase.
func (f *Flow) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// Code returns a copy of the code buffer.
func (f *Flow) Code() CodeBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code
}

// Focus returns the index of the focused code cell.
func (f *Flow) Focus() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.focusIdx
}

// Snapshot returns the whole state at once.
func (f *Flow) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		Phase:     f.phase,
		Prefix:    f.prefix,
		Address:   DeriveAddress(f.prefix, f.domain),
		Code:      f.code,
		Focus:     f.focusIdx,
		Sending:   f.sending,
		Verifying: f.verifying,
		Done:      f.done,
	}
}

// EditCell sets cell i to the first character of value. A non-empty value
// in cells 0-4 moves focus to the next cell; the last cell and deletions
// never move focus.
func (f *Flow) EditCell(i int, value string) error {
	if i < 0 || i >= CodeLength {
		return fmt.Errorf("flow: cell index %d out of range", i)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.done {
		return ErrClosed
	}
	if f.phase != AwaitingCode {
		return ErrWrongPhase
	}

	value = firstChar(value)
	f.code[i] = value
	f.focusIdx = i
	if value != "" && i < CodeLength-1 {
		f.focusIdx = i + 1
		f.focus.RequestFocus(i + 1)
	}
	return nil
}

// SetFocus moves focus to cell i.
func (f *Flow) SetFocus(i int) error {
	if i < 0 || i >= CodeLength {
		return fmt.Errorf("flow: cell index %d out of range", i)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.done {
		return ErrClosed
	}
	if f.phase != AwaitingCode {
		return ErrWrongPhase
	}
	f.focusIdx = i
	f.focus.RequestFocus(i)
	return nil
}

// SubmitAddress requests a one-time code for the derived address. The
// returned notice has already been sent to the Notifier.
func (f *Flow) SubmitAddress(ctx context.Context) (Notice, error) {
	f.mu.Lock()
	if f.closed || f.done {
		f.mu.Unlock()
		return Notice{}, ErrClosed
	}
	if f.phase != AwaitingAddress {
		f.mu.Unlock()
		return Notice{}, ErrWrongPhase
	}
	if f.sending {
		f.mu.Unlock()
		return Notice{}, ErrInFlight
	}
	if f.prefix == "" {
		n := validationNotice()
		f.notifier.Notify(n)
		f.mu.Unlock()
		return n, nil
	}
	f.sending = true
	epoch := f.epoch
	email := DeriveAddress(f.prefix, f.domain)
	f.mu.Unlock()

	reqCtx, cancel := f.requestContext(ctx)
	defer cancel()
	_, err := f.api.RequestCode(reqCtx, &utslogin.SignupRequest{Email: email})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sending = false
	if f.closed || f.life.Err() != nil {
		return Notice{}, ErrClosed
	}
	if epoch != f.epoch {
		return Notice{}, ErrStale
	}

	var n Notice
	if err == nil {
		f.phase = AwaitingCode
		f.focusIdx = 0
		n = codeSentNotice()
		f.log.Info("verification code requested", zap.String("email", email))
	} else {
		n = f.signupFailure(email, err)
	}
	f.notifier.Notify(n)
	return n, nil
}

func (f *Flow) signupFailure(email string, err error) Notice {
	if utslogin.IsResponseFormat(err) {
		var fe *utslogin.ResponseFormatError
		errors.As(err, &fe)
		f.log.Error("failed to parse code request response",
			zap.String("email", email), zap.Int("status", fe.StatusCode), zap.String("body", fe.Body))
		return parseErrorNotice()
	}
	if code, ok := utslogin.HTTPStatusCode(err); ok {
		msg, _ := utslogin.ServerMessage(err)
		f.log.Warn("code request rejected", zap.String("email", email), zap.Int("status", code))
		return rejectionNotice(msg)
	}
	f.log.Error("error sending verification code", zap.String("email", email), zap.Error(err))
	return connectivityNotice()
}

// SubmitCode verifies the code buffer. On success the token is stored and
// the flow navigates away and finishes. On failure the buffer is kept so
// the user can correct it.
func (f *Flow) SubmitCode(ctx context.Context) (Notice, error) {
	f.mu.Lock()
	if f.closed || f.done {
		f.mu.Unlock()
		return Notice{}, ErrClosed
	}
	if f.phase != AwaitingCode {
		f.mu.Unlock()
		return Notice{}, ErrWrongPhase
	}
	if f.verifying {
		f.mu.Unlock()
		return Notice{}, ErrInFlight
	}
	f.verifying = true
	epoch := f.epoch
	req := &utslogin.VerifyRequest{
		Email:            DeriveAddress(f.prefix, f.domain),
		VerificationCode: f.code.String(),
		Password:         f.password,
	}
	f.mu.Unlock()

	if req.Password == loginconfig.PlaceholderPassword {
		f.log.Warn("verify request uses the placeholder password")
	}

	reqCtx, cancel := f.requestContext(ctx)
	defer cancel()
	resp, err := f.api.VerifyCode(reqCtx, req)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifying = false
	if f.closed || f.life.Err() != nil {
		return Notice{}, ErrClosed
	}
	if epoch != f.epoch {
		return Notice{}, ErrStale
	}

	if err != nil {
		n := f.verifyFailure(req.Email, err)
		f.notifier.Notify(n)
		return n, nil
	}
	if err := f.store.Set(f.tokenKey, resp.Token); err != nil {
		f.log.Error("failed to store access token", zap.String("key", f.tokenKey), zap.Error(err))
		n := tokenNotSavedNotice()
		f.notifier.Notify(n)
		return n, nil
	}

	f.done = true
	f.log.Info("login verified", zap.String("email", req.Email))
	n := loggedInNotice()
	f.notifier.Notify(n)
	if err := f.nav.NavigateTo(f.destination); err != nil {
		f.log.Error("navigation failed", zap.String("screen", f.destination), zap.Error(err))
	}
	return n, nil
}

func (f *Flow) verifyFailure(email string, err error) Notice {
	if code, ok := utslogin.HTTPStatusCode(err); ok {
		f.log.Info("verification code rejected", zap.String("email", email), zap.Int("status", code))
		return invalidCodeNotice()
	}
	if errors.Is(err, utslogin.ErrMissingToken) {
		f.log.Error("verify response carried no token", zap.String("email", email))
		return tokenNotSavedNotice()
	}
	f.log.Error("error verifying code", zap.String("email", email), zap.Error(err))
	return connectivityNotice()
}

// ResumeCode enters AwaitingCode for prefix without requesting a new code.
// Front ends use it when the code was requested in an earlier session.
func (f *Flow) ResumeCode(prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.done {
		return ErrClosed
	}
	if f.phase != AwaitingAddress {
		return ErrWrongPhase
	}
	if f.sending {
		return ErrInFlight
	}
	f.prefix = prefix
	f.phase = AwaitingCode
	f.code = CodeBuffer{}
	f.focusIdx = 0
	return nil
}

// Back returns to AwaitingAddress and clears the code buffer. The student
// ID is kept. Responses to requests sent before Back are dropped.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.done {
		return ErrClosed
	}
	f.phase = AwaitingAddress
	f.code = CodeBuffer{}
	f.focusIdx = 0
	f.epoch++
	return nil
}

// Close discards the flow. Outstanding requests are cancelled and their
// results ignored. Close is idempotent.
func (f *Flow) Close() {
	f.stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// requestContext derives a context that ends with ctx or when the flow is
// closed, whichever comes first.
func (f *Flow) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(f.life, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}
