// Package registration walks a user through choosing a city of interest and
// confirming an email address.
package registration

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/core/telegram/state"
	"github.com/m3rciful/farebot/fares/catalog"
	"github.com/m3rciful/farebot/fares/refdata"
)

// State is the step a session is waiting on.
type State int

const (
	AwaitingCity State = iota + 1
	AwaitingEmail
	AwaitingEmailConfirm
)

func (s State) String() string {
	switch s {
	case AwaitingCity:
		return "awaiting_city"
	case AwaitingEmail:
		return "awaiting_email"
	case AwaitingEmailConfirm:
		return "awaiting_email_confirm"
	default:
		return "none"
	}
}

// Session is the in-progress registration of one user.
type Session struct {
	UserID         int64
	State          State
	InterestedCity string
	Email          string
}

// Outcome tells the transport what happened to the input.
type Outcome int

const (
	OutcomeStarted Outcome = iota + 1
	// OutcomeCityAccepted moves to AwaitingEmail.
	OutcomeCityAccepted
	OutcomeInvalidCity
	// OutcomeCityUnavailable means the city could not be resolved upstream; the user may retry.
	OutcomeCityUnavailable
	OutcomeEmailReceived
	OutcomeEmailMismatch
	OutcomeCompleted
	// OutcomeSessionAbsent is free text from a user with no registration in progress.
	OutcomeSessionAbsent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeCityAccepted:
		return "city_accepted"
	case OutcomeInvalidCity:
		return "invalid_city"
	case OutcomeCityUnavailable:
		return "city_unavailable"
	case OutcomeEmailReceived:
		return "email_received"
	case OutcomeEmailMismatch:
		return "email_mismatch"
	case OutcomeCompleted:
		return "completed"
	case OutcomeSessionAbsent:
		return "session_absent"
	default:
		return "unknown"
	}
}

// Reply is the result of one step. State is the state after the step and is
// zero when no session remains.
type Reply struct {
	Outcome Outcome
	State   State
	City    string
}

// User identifies the chat user sending input.
type User struct {
	ID        int64
	FirstName string
	LastName  string
}

// CityResolver maps a city name to an airport code.
type CityResolver interface {
	ResolveCity(ctx context.Context, name string) (string, error)
}

// Catalog is the part of the city catalog the flow uses.
type Catalog interface {
	Canonical(name string) (string, bool)
	Upsert(ctx context.Context, name, code string) (catalog.UpsertResult, catalog.CityEntry)
}

// Registrar stores a completed registration upstream.
type Registrar interface {
	RegisterUser(ctx context.Context, u refdata.User) error
}

// Recorder observes flow outcomes. The metrics package implements it.
type Recorder interface {
	RegistrationStep(outcome string)
}

// Options configures New.
type Options struct {
	Catalog   Catalog
	Resolver  CityResolver
	Registrar Registrar
	Metrics   Recorder
}

// Flow owns the session table. Steps for one user are serialized.
type Flow struct {
	sessions  *state.Store[int64, Session]
	catalog   Catalog
	resolver  CityResolver
	registrar Registrar
	rec       Recorder
}

// New returns a Flow with an empty session table.
func New(opts Options) (*Flow, error) {
	if opts.Catalog == nil || opts.Resolver == nil || opts.Registrar == nil {
		return nil, errors.New("registration: catalog, resolver and registrar are required")
	}
	return &Flow{
		sessions:  state.NewStore[int64, Session](),
		catalog:   opts.Catalog,
		resolver:  opts.Resolver,
		registrar: opts.Registrar,
		rec:       opts.Metrics,
	}, nil
}

// Start opens a session awaiting a city, discarding any previous one.
func (f *Flow) Start(userID int64) Reply {
	f.sessions.Update(userID, func(Session, bool) (Session, bool) {
		return Session{UserID: userID, State: AwaitingCity}, true
	})
	return f.done(context.Background(), userID, Reply{Outcome: OutcomeStarted, State: AwaitingCity})
}

// Cancel drops the user's session and reports whether one existed.
func (f *Flow) Cancel(userID int64) bool {
	return f.sessions.Delete(userID)
}

// State returns the user's current state.
func (f *Flow) State(userID int64) (State, bool) {
	s, ok := f.sessions.Get(userID)
	return s.State, ok
}

// Active returns the number of open sessions.
func (f *Flow) Active() int { return f.sessions.Len() }

// Handle feeds one line of free text into the user's session. Text without a
// session never creates one.
func (f *Flow) Handle(ctx context.Context, user User, text string) Reply {
	var reply Reply
	f.sessions.WithLock(user.ID, func() {
		sess, ok := f.sessions.Get(user.ID)
		if !ok {
			reply = Reply{Outcome: OutcomeSessionAbsent}
			return
		}
		text = strings.TrimSpace(text)
		switch sess.State {
		case AwaitingCity:
			reply = f.city(ctx, &sess, text)
		case AwaitingEmail:
			sess.Email = text
			sess.State = AwaitingEmailConfirm
			reply = Reply{Outcome: OutcomeEmailReceived, State: AwaitingEmailConfirm}
		case AwaitingEmailConfirm:
			if text != sess.Email {
				sess.Email = ""
				sess.State = AwaitingEmail
				reply = Reply{Outcome: OutcomeEmailMismatch, State: AwaitingEmail}
				break
			}
			f.register(ctx, user, sess)
			f.sessions.Delete(user.ID)
			reply = Reply{Outcome: OutcomeCompleted, City: sess.InterestedCity}
			return
		}
		f.sessions.Put(user.ID, sess)
	})
	return f.done(ctx, user.ID, reply)
}

func (f *Flow) city(ctx context.Context, sess *Session, text string) Reply {
	name, ok := f.catalog.Canonical(text)
	if !ok {
		return Reply{Outcome: OutcomeInvalidCity, State: AwaitingCity}
	}
	code, err := f.resolver.ResolveCity(ctx, name)
	if err != nil {
		logger.Warn(ctx, "registration", "city.resolve",
			slog.String("status", "fail"),
			slog.String("city", name),
			slog.String("err", err.Error()),
		)
		return Reply{Outcome: OutcomeCityUnavailable, State: AwaitingCity}
	}
	_, entry := f.catalog.Upsert(ctx, name, code)
	sess.InterestedCity = entry.City
	sess.State = AwaitingEmail
	return Reply{Outcome: OutcomeCityAccepted, State: AwaitingEmail, City: entry.City}
}

// register posts the registration. A failure is logged and the flow still completes.
func (f *Flow) register(ctx context.Context, user User, sess Session) {
	lastName := strings.TrimSpace(user.LastName)
	if lastName == "" {
		lastName = strconv.FormatInt(user.ID, 10)
	}
	err := f.registrar.RegisterUser(ctx, refdata.User{
		FirstName:      user.FirstName,
		LastName:       lastName,
		InterestedCity: sess.InterestedCity,
		Email:          sess.Email,
	})
	if err != nil {
		logger.Warn(ctx, "registration", "register",
			slog.String("status", "fail"),
			slog.String("city", sess.InterestedCity),
			slog.String("err", err.Error()),
		)
	}
}

func (f *Flow) done(ctx context.Context, userID int64, r Reply) Reply {
	if f.rec != nil {
		f.rec.RegistrationStep(r.Outcome.String())
	}
	logger.Debug(ctx, "registration", "step",
		slog.Int64("user_id", userID),
		slog.String("result", r.Outcome.String()),
		slog.String("state", r.State.String()),
	)
	return r
}
