// Package classifier maps a client message to a route, stage and booking
// type with an ordered rule table.
package classifier

import (
	"context"
	"regexp"
	"time"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/metrics"
)

// Context is what the classifier knows about the client besides the text.
type Context struct {
	ClientStatus      string
	HasActiveBooking  bool
	ActiveBookingType model.BookingType
	LastRoute         model.Route
	LastStage         model.Stage
	SelectedID        string
	// ActiveBooking, when set, replaces HasActiveBooking and
	// ActiveBookingType and is only called by rules that need it.
	ActiveBooking func() (model.BookingType, bool)
}

func (c Context) active() (model.BookingType, bool) {
	if c.ActiveBooking != nil {
		return c.ActiveBooking()
	}
	return c.ActiveBookingType, c.HasActiveBooking
}

// resolved evaluates the lazy lookup so the context can leave the process.
func (c Context) resolved() Context {
	if c.ActiveBooking != nil {
		c.ActiveBookingType, c.HasActiveBooking = c.ActiveBooking()
		c.ActiveBooking = nil
	}
	return c
}

// Oracle is consulted only when no rule matches. Its answer must satisfy
// model.Intent.Valid or it is ignored.
type Oracle interface {
	Classify(ctx context.Context, text string, c Context) (model.Intent, error)
}

var (
	numericDate = regexp.MustCompile(`\b\d{1,2}[-/:.]\d{1,2}\b`)
	bareHour    = regexp.MustCompile(`\b(9|1\d|2[0-2])([:.]\d{2})?\b`)
)

// message is the pre-processed input the rules look at.
type message struct {
	raw   string
	words string
}

type rule struct {
	name       string
	when       func(c *Classifier, m message, ctx Context) bool
	route      model.Route
	stage      model.Stage
	confidence float64
	summary    string
	// bookingType defaults to none when nil.
	bookingType func(c *Classifier, m message, ctx Context) model.BookingType
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{
		name:       "selected_slot",
		when:       func(_ *Classifier, _ message, ctx Context) bool { return ctx.SelectedID != "" },
		route:      model.RouteBookingConfirm,
		stage:      model.StageConfirmingChoice,
		confidence: 0.95,
		summary:    "Client selecting offered time slot",
	},
	{
		name: "reschedule",
		when: func(c *Classifier, m message, ctx Context) bool {
			if !c.reschedule.in(m.words) {
				return false
			}
			_, ok := ctx.active()
			return ok
		},
		route:      model.RouteBookingReschedule,
		stage:      model.StageOfferSlots,
		confidence: 0.90,
		summary:    "Client wants to reschedule existing booking",
		bookingType: func(_ *Classifier, _ message, ctx Context) model.BookingType {
			if bt, _ := ctx.active(); bt.Valid() && bt != model.BookingTypeNone {
				return bt
			}
			return model.BookingTypeStandard
		},
	},
	{
		name:       "booking",
		when:       func(c *Classifier, m message, _ Context) bool { return c.booking.in(m.words) },
		route:      model.RouteBooking,
		stage:      model.StageOfferSlots,
		confidence: 0.85,
		summary:    "Client wants to book an appointment",
		bookingType: func(c *Classifier, m message, _ Context) model.BookingType {
			switch {
			case c.walkIn.in(m.words):
				return model.BookingTypeWalkIn
			case c.consultation.in(m.words):
				return model.BookingTypeConsultation
			}
			return model.BookingTypeStandard
		},
	},
	{
		name:       "consultation",
		when:       func(c *Classifier, m message, _ Context) bool { return c.consultation.in(m.words) },
		route:      model.RouteConsultation,
		stage:      model.StageNone,
		confidence: 0.80,
		summary:    "Client wants to discuss an idea or design",
	},
	{
		name:       "info",
		when:       func(c *Classifier, m message, _ Context) bool { return c.info.in(m.words) },
		route:      model.RouteInfo,
		stage:      model.StageNone,
		confidence: 0.75,
		summary:    "Client asking for information (pain, care, price)",
	},
	{
		name: "time_selection",
		when: func(c *Classifier, m message, _ Context) bool {
			return numericDate.MatchString(m.raw) || bareHour.MatchString(m.raw) || c.timeWords.in(m.words)
		},
		route:      model.RouteBookingConfirm,
		stage:      model.StageConfirmingChoice,
		confidence: 0.80,
		summary:    "Client selecting time/date for appointment",
	},
}

var fallback = model.Intent{
	Route:               model.RouteOther,
	Stage:               model.StageNone,
	BookingType:         model.BookingTypeNone,
	Summary:             "Unclear intent - requires clarification",
	Confidence:          0.4,
	RequiresHumanReview: true,
}

type Classifier struct {
	booking      keywords
	consultation keywords
	walkIn       keywords
	info         keywords
	reschedule   keywords
	timeWords    keywords

	oracle        Oracle
	oracleTimeout time.Duration
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

type Option func(*Classifier)

// WithOracle consults o for messages no rule recognises.
func WithOracle(o Oracle, timeout time.Duration) Option {
	return func(c *Classifier) {
		c.oracle = o
		c.oracleTimeout = timeout
	}
}

func New(v Vocabulary, log *logger.Logger, m *metrics.Metrics, opts ...Option) *Classifier {
	c := &Classifier{
		booking:       compile(v.Booking),
		consultation:  compile(v.Consultation),
		walkIn:        compile(v.WalkIn),
		info:          compile(v.Info),
		reschedule:    compile(v.Reschedule),
		timeWords:     compile(v.TimeWords),
		oracleTimeout: 5 * time.Second,
		logger:        log,
		metrics:       m,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify never fails: without a matching rule or a usable oracle answer
// it returns the human-review fallback.
func (c *Classifier) Classify(ctx context.Context, text string, cc Context) model.Intent {
	intent := c.match(text, cc)
	if intent.Route == model.RouteOther && c.oracle != nil {
		if answer, ok := c.ask(ctx, text, cc.resolved()); ok {
			intent = answer
		}
	}
	c.metrics.ClassifiedRoutes.WithLabelValues(string(intent.Route)).Inc()
	return intent
}

// match applies the rule table only.
func (c *Classifier) match(text string, cc Context) model.Intent {
	m := message{raw: text, words: " " + normalize(text)}
	for _, r := range rules {
		if !r.when(c, m, cc) {
			continue
		}
		bt := model.BookingTypeNone
		if r.bookingType != nil {
			bt = r.bookingType(c, m, cc)
		}
		return model.Intent{
			Route:       r.route,
			Stage:       r.stage,
			BookingType: bt,
			Summary:     r.summary,
			Confidence:  r.confidence,
		}
	}
	return fallback
}

func (c *Classifier) ask(ctx context.Context, text string, cc Context) (model.Intent, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.oracleTimeout)
	defer cancel()

	answer, err := c.oracle.Classify(ctx, text, cc)
	if err != nil {
		c.metrics.OracleCalls.WithLabelValues("error").Inc()
		c.logger.ZL.Warn().Err(err).Msg("Intent oracle failed, using rule result")
		return model.Intent{}, false
	}
	if !answer.Valid() {
		c.metrics.OracleCalls.WithLabelValues("invalid").Inc()
		c.logger.Warn("Intent oracle returned an invalid intent",
			"route", string(answer.Route),
			"stage", string(answer.Stage),
		)
		return model.Intent{}, false
	}
	c.metrics.OracleCalls.WithLabelValues("ok").Inc()
	return answer, true
}
