// Package intake implements the dialogue orchestrator: it keeps one draft
// per user, decides turn by turn whether enough information has been
// gathered, and drives the ticket gateway.
package intake

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
	"github.com/tjfontaine/helpdesk-gateway/internal/extract"
	"github.com/tjfontaine/helpdesk-gateway/internal/llm"
)

// AskRequest is one inbound message.
type AskRequest struct {
	Identity domain.Identity
	Message  string
	// TicketID, when set, makes the message a followup on that ticket.
	TicketID *int
	// RequestID correlates interaction events with the HTTP request.
	RequestID string
}

// Service is the dialogue orchestrator.
type Service struct {
	drafts    ports.DraftStore
	events    ports.EventStore
	knowledge ports.KnowledgeSearcher
	completer ports.Completer
	prompts   *llm.PromptBuilder
	gateway   ports.TicketGateway

	rules  atomic.Pointer[Rules]
	locks  *keyedMutex
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEventStore records interaction events.
func WithEventStore(events ports.EventStore) Option {
	return func(s *Service) {
		s.events = events
	}
}

// WithKnowledge sets the knowledge searcher used for FAQ answers.
func WithKnowledge(k ports.KnowledgeSearcher) Option {
	return func(s *Service) {
		s.knowledge = k
	}
}

// WithPromptBuilder sets the prompt builder.
func WithPromptBuilder(b *llm.PromptBuilder) Option {
	return func(s *Service) {
		s.prompts = b
	}
}

// WithRules sets the initial rules.
func WithRules(r Rules) Option {
	return func(s *Service) {
		s.SetRules(r)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates the orchestrator.
func New(drafts ports.DraftStore, gateway ports.TicketGateway, completer ports.Completer, opts ...Option) *Service {
	s := &Service{
		drafts:    drafts,
		gateway:   gateway,
		completer: completer,
		locks:     newKeyedMutex(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("helpdesk-gateway/intake"),
		now:       time.Now,
	}
	s.SetRules(DefaultRules())
	for _, opt := range opts {
		opt(s)
	}
	if s.prompts == nil {
		s.prompts = llm.NewPromptBuilder(llm.NewCounter(""), 0)
	}
	return s
}

// SetRules replaces the rules for subsequent messages.
func (s *Service) SetRules(r Rules) {
	r = r.withDefaults()
	s.rules.Store(&r)
}

// Rules returns the current rules.
func (s *Service) Rules() Rules {
	return *s.rules.Load()
}

// Ask handles one message and returns the structured reply. Failures of
// the ticketing system are reported as error replies; the returned error
// is reserved for invalid requests and local storage failures.
func (s *Service) Ask(ctx context.Context, req AskRequest) (_ *domain.Reply, err error) {
	if err := req.Identity.Validate(); err != nil {
		return nil, err
	}
	req.Identity.Role = domain.NormalizeRole(string(req.Identity.Role))
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "message is required")
	}
	if req.TicketID != nil && *req.TicketID <= 0 {
		return nil, domain.NewError(domain.KindInvalidRequest, "ticket id must be positive")
	}

	ctx, span := s.tracer.Start(ctx, "intake.ask", trace.WithAttributes(
		attribute.String("user.role", string(req.Identity.Role)),
	))
	start := s.now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	unlock := s.locks.Lock(req.Identity.Key())
	defer unlock()

	rules := s.Rules()
	detail := map[string]string{"message": truncate(req.Message, 500)}
	ticketID := 0
	if req.TicketID != nil {
		ticketID = *req.TicketID
	}
	s.logEvent(ctx, req, domain.EventRequestReceived, ticketID, detail)

	reply, err := s.dispatch(ctx, req, rules)
	if err != nil {
		s.logger.Error("ask failed",
			slog.String("user", req.Identity.Key()),
			slog.String("request_id", req.RequestID),
			slog.Any("error", err),
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("reply.type", string(reply.Type)))
	s.logger.Info("ask handled",
		slog.String("user", req.Identity.Key()),
		slog.String("request_id", req.RequestID),
		slog.String("reply_type", string(reply.Type)),
		slog.Int("ticket_id", reply.TicketID),
		slog.Duration("duration", s.now().Sub(start)),
	)
	return reply, nil
}

func (s *Service) dispatch(ctx context.Context, req AskRequest, rules Rules) (*domain.Reply, error) {
	if isExactly(req.Message, rules.CancelPhrases) {
		return s.cancel(ctx, req)
	}
	if req.TicketID != nil {
		return s.addFollowup(ctx, req, *req.TicketID, req.Message)
	}

	d, err := s.loadDraft(ctx, req.Identity.Key())
	if err != nil {
		return nil, err
	}

	var prior *domain.Draft
	if d != nil {
		var (
			reply   *domain.Reply
			handled bool
		)
		switch d.Next.State {
		case domain.StateAwaitConfirmation:
			reply, handled, err = s.onConfirmation(ctx, req, d, rules)
		case domain.StateAwaitFAQFeedback:
			reply, handled, err = s.onFAQFeedback(ctx, req, d, rules)
		case domain.StateCollecting:
			return s.onCollect(ctx, req, d, rules)
		}
		if err != nil || handled {
			return reply, err
		}

		// The answer fits none of the expected ones: the message is classified
		// afresh, carrying the fields and history gathered so far.
		prior = d
		if err := s.drafts.DeleteDraft(ctx, d.UserKey); err != nil {
			return nil, err
		}
	}

	if containsAny(req.Message, statusWords) {
		if id, ok := ticketIDIn(req.Message); ok {
			return s.ticketStatus(ctx, req, id)
		}
	}
	return s.classify(ctx, req, rules, prior)
}

func (s *Service) loadDraft(ctx context.Context, key string) (*domain.Draft, error) {
	d, err := s.drafts.LoadDraft(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if d.Next.State == domain.StateIdle || d.Next.State == "" {
		return nil, nil
	}
	return d, nil
}

// saveTurn records the turn in the draft history and persists the draft.
func (s *Service) saveTurn(ctx context.Context, req AskRequest, d *domain.Draft, reply *domain.Reply, rules Rules) (*domain.Reply, error) {
	d.AppendTurn(domain.Turn{Question: req.Message, Response: reply.Message}, rules.MaxHistory)
	if err := s.drafts.SaveDraft(ctx, d); err != nil {
		return nil, err
	}
	s.logEvent(ctx, req, domain.EventDraftUpdated, 0, map[string]string{
		"next_expected": d.Next.String(),
		"missing":       joinFields(d.MissingFields()),
	})
	return reply, nil
}

func (s *Service) cancel(ctx context.Context, req AskRequest) (*domain.Reply, error) {
	if err := s.drafts.DeleteDraft(ctx, req.Identity.Key()); err != nil {
		return nil, err
	}
	s.logEvent(ctx, req, domain.EventCancelled, 0, nil)
	return &domain.Reply{
		Type:    domain.ReplyCancelled,
		Message: msgCancelled,
	}, nil
}

func (s *Service) onConfirmation(ctx context.Context, req AskRequest, d *domain.Draft, rules Rules) (*domain.Reply, bool, error) {
	switch confirmation(req.Message) {
	case feedbackNegative:
		if err := s.drafts.DeleteDraft(ctx, d.UserKey); err != nil {
			return nil, true, err
		}
		s.logEvent(ctx, req, domain.EventCancelled, 0, map[string]string{"stage": "confirmation"})
		return &domain.Reply{Type: domain.ReplyConfirmationCancelled, Message: msgConfirmationCancelled}, true, nil

	case feedbackPositive:
		question := d.PendingQuestion
		if question == "" {
			question = req.Message
		}
		docs := s.search(ctx, question, rules.FAQResults)
		if answer := s.synthesize(ctx, question, docs); answer != "" {
			d.Next = domain.Expectation{State: domain.StateAwaitFAQFeedback}
			reply := &domain.Reply{
				Type:    domain.ReplyFAQSuggestion,
				Message: answer + "\n\n" + msgFAQFeedback,
				Sources: titles(docs),
			}
			s.logEvent(ctx, req, domain.EventFAQAnswered, 0, map[string]string{"stage": "confirmation"})
			reply, err := s.saveTurn(ctx, req, d, reply, rules)
			return reply, true, err
		}
		reply, err := s.advance(ctx, req, d, rules, "")
		return reply, true, err
	}
	return nil, false, nil
}

func (s *Service) onFAQFeedback(ctx context.Context, req AskRequest, d *domain.Draft, rules Rules) (*domain.Reply, bool, error) {
	switch faqFeedback(req.Message) {
	case feedbackPositive:
		if err := s.drafts.DeleteDraft(ctx, d.UserKey); err != nil {
			return nil, true, err
		}
		s.logEvent(ctx, req, domain.EventFAQResolved, 0, nil)
		return &domain.Reply{Type: domain.ReplyFAQResolved, Message: msgFAQResolved}, true, nil

	case feedbackNegative:
		reply, err := s.advance(ctx, req, d, rules, "")
		return reply, true, err
	}
	return nil, false, nil
}

// onCollect stores the message into the awaited field and moves on.
func (s *Service) onCollect(ctx context.Context, req AskRequest, d *domain.Draft, rules Rules) (*domain.Reply, error) {
	f := d.Next.Field
	if !rules.acceptable(f, req.Message, false) {
		reply := &domain.Reply{
			Type:    domain.ReplyTicketIncomplete,
			Message: incompleteMessage([]domain.Field{f}),
			Field:   f,
			Missing: []domain.Field{f},
		}
		return s.saveTurn(ctx, req, d, reply, rules)
	}

	// Placeholder answers to optional fields leave them unset.
	d.SetField(f, req.Message)
	return s.advance(ctx, req, d, rules, f)
}

// advance asks for the next field to collect after the given one, or
// submits the draft when nothing is left.
func (s *Service) advance(ctx context.Context, req AskRequest, d *domain.Draft, rules Rules, after domain.Field) (*domain.Reply, error) {
	if next, ok := rules.nextToCollect(d, after); ok {
		d.Next = domain.Collecting(next)
		reply := &domain.Reply{
			Type:    domain.ReplyAskField,
			Message: fieldQuestion(next),
			Field:   next,
		}
		return s.saveTurn(ctx, req, d, reply, rules)
	}
	return s.submitDraft(ctx, req, d, rules)
}

// submitDraft is the terminal collection step. The draft is removed
// before the creation call so a retry cannot create a second ticket.
func (s *Service) submitDraft(ctx context.Context, req AskRequest, d *domain.Draft, rules Rules) (*domain.Reply, error) {
	if bad := rules.insufficient(d.Fields, false); len(bad) > 0 {
		d.Next = domain.Collecting(bad[0])
		reply := &domain.Reply{
			Type:    domain.ReplyTicketIncomplete,
			Message: incompleteMessage(bad),
			Field:   bad[0],
			Missing: bad,
		}
		return s.saveTurn(ctx, req, d, reply, rules)
	}

	if err := s.gateway.EnsureSession(ctx); err != nil {
		// The draft is kept so the user can retry once the system is back.
		reply := s.failure(ctx, req, err)
		if _, saveErr := s.saveTurn(ctx, req, d, reply, rules); saveErr != nil {
			return nil, saveErr
		}
		return reply, nil
	}

	if err := s.drafts.DeleteDraft(ctx, d.UserKey); err != nil {
		return nil, err
	}
	return s.createTicket(ctx, req, d.Fields), nil
}

func (s *Service) createTicket(ctx context.Context, req AskRequest, fields map[domain.Field]string) *domain.Reply {
	nt := domain.NewTicket{
		Title:       fields[domain.FieldTitle],
		Description: fields[domain.FieldDescription],
		Priority:    domain.ScaleLevel(fields[domain.FieldPriority]),
		Urgency:     urgencyLevel(fields[domain.FieldUrgency]),
	}
	if c := fields[domain.FieldCategory]; !domain.IsPlaceholder(c) {
		nt.Category = c
	}

	ref, err := s.gateway.CreateTicket(ctx, nt, req.Identity)
	if err != nil {
		s.logEvent(ctx, req, domain.EventTicketFailed, 0, map[string]string{
			"title": nt.Title,
			"error": err.Error(),
		})
		if domain.KindOf(err) == domain.KindReconciliation {
			s.logger.Error("requester could not be reconciled with the ticketing system",
				slog.String("user", req.Identity.Key()),
				slog.String("request_id", req.RequestID),
				slog.Bool("operator_action", true),
				slog.Any("error", err),
			)
			s.logEvent(ctx, req, domain.EventReconcileFailure, 0, map[string]string{"error": err.Error()})
		}
		return s.failure(ctx, req, err)
	}

	s.logEvent(ctx, req, domain.EventTicketCreated, ref.ID, map[string]string{"title": nt.Title})
	return &domain.Reply{
		Type:     domain.ReplyTicketCreated,
		Message:  ticketCreatedMessage(ref.ID),
		TicketID: ref.ID,
	}
}

// classify runs the language model on a message outside any open draft.
// prior is the draft abandoned by this message, if any.
func (s *Service) classify(ctx context.Context, req AskRequest, rules Rules, prior *domain.Draft) (*domain.Reply, error) {
	var history []domain.Turn
	if prior != nil {
		history = prior.History
	}
	docs := s.search(ctx, req.Message, rules.FAQResults)
	text, err := s.completer.Complete(ctx, s.prompts.Classify(req.Message, docs, history))
	if err != nil {
		if domain.KindOf(err) == "" {
			err = domain.NewError(domain.KindUnavailable, "language model call failed").WithOp("complete").WithCause(err)
		}
		return s.failure(ctx, req, err), nil
	}

	res := extract.Parse(text)
	s.logEvent(ctx, req, domain.EventLLMParsed, 0, map[string]string{
		"intent":   string(res.Intent),
		"response": truncate(res.Value(extract.KeyResponse), 500),
	})

	switch res.Intent {
	case domain.IntentSalutation:
		return &domain.Reply{Type: domain.ReplyConversation, Message: msgGreeting}, nil
	case domain.IntentUnsupported:
		return &domain.Reply{Type: domain.ReplyConversation, Message: msgUnsupported}, nil
	case domain.IntentCreateTicket:
		return s.startTicket(ctx, req, rules, res, prior)
	case domain.IntentFAQ:
		return s.faq(ctx, req, res, docs), nil
	case domain.IntentList:
		return s.listTickets(ctx, req), nil
	}
	if res.Intent.TicketScoped() {
		return s.ticketAction(ctx, req, res)
	}

	if containsAny(req.Message, distressWords) {
		return s.confirm(ctx, req, rules, res, prior)
	}
	msg := res.Value(extract.KeyResponse)
	if msg == "" {
		msg = msgTellMeMore
	}
	return &domain.Reply{Type: domain.ReplyConversation, Message: msg}, nil
}

// startTicket handles a creation request outside any draft.
func (s *Service) startTicket(ctx context.Context, req AskRequest, rules Rules, res extract.Result, prior *domain.Draft) (*domain.Reply, error) {
	d := s.newDraft(req, res, prior)
	if len(rules.insufficient(d.Fields, true)) == 0 {
		return s.createTicket(ctx, req, d.Fields), nil
	}
	if !containsAny(req.Message, createPhrases) {
		return s.confirm(ctx, req, rules, res, prior)
	}

	// Every field came with this message, so the single-message gate applies
	// rather than the one for answers collected field by field.
	if _, ok := rules.nextToCollect(d, ""); !ok {
		bad := rules.insufficient(d.Fields, true)
		d.Next = domain.Collecting(bad[0])
		reply := &domain.Reply{
			Type:    domain.ReplyTicketIncomplete,
			Message: incompleteMessage(bad),
			Field:   bad[0],
			Missing: bad,
		}
		return s.saveTurn(ctx, req, d, reply, rules)
	}
	return s.advance(ctx, req, d, rules, "")
}

// confirm asks whether a vague problem report should become a ticket.
func (s *Service) confirm(ctx context.Context, req AskRequest, rules Rules, res extract.Result, prior *domain.Draft) (*domain.Reply, error) {
	d := s.newDraft(req, res, prior)
	if d.PendingQuestion == "" {
		d.PendingQuestion = req.Message
	}
	d.Next = domain.Expectation{State: domain.StateAwaitConfirmation}
	reply := &domain.Reply{Type: domain.ReplyConfirmationTicket, Message: msgConfirmTicket}
	return s.saveTurn(ctx, req, d, reply, rules)
}

// newDraft starts a draft from the extracted fields, layered over those of
// prior so a placeholder never erases a value captured earlier.
func (s *Service) newDraft(req AskRequest, res extract.Result, prior *domain.Draft) *domain.Draft {
	d := domain.NewDraft(req.Identity.Key(), s.now())
	if prior != nil {
		d.History = append([]domain.Turn(nil), prior.History...)
		d.PendingQuestion = prior.PendingQuestion
		for f, v := range prior.Fields {
			d.SetField(f, v)
		}
	}
	for f, v := range res.DraftFields() {
		d.SetField(f, v)
	}
	return d
}

func (s *Service) faq(ctx context.Context, req AskRequest, res extract.Result, docs []domain.Document) *domain.Reply {
	answer := res.Value(extract.KeyResponse)
	if answer == "" {
		answer = s.synthesize(ctx, req.Message, docs)
	}
	if answer == "" {
		return &domain.Reply{Type: domain.ReplyConversation, Message: msgNoAnswer}
	}
	s.logEvent(ctx, req, domain.EventFAQAnswered, 0, map[string]string{"sources": strings.Join(titles(docs), ", ")})
	return &domain.Reply{Type: domain.ReplyConversation, Message: answer, Sources: titles(docs)}
}

// search queries the knowledge base. Failures only cost the context.
func (s *Service) search(ctx context.Context, question string, limit int) []domain.Document {
	if s.knowledge == nil {
		return nil
	}
	docs, err := s.knowledge.SearchDocuments(ctx, question, limit)
	if err != nil {
		s.logger.Warn("knowledge search failed", slog.Any("error", err))
		return nil
	}
	return docs
}

// synthesize asks the language model to answer from docs. It returns ""
// when there is no usable answer.
func (s *Service) synthesize(ctx context.Context, question string, docs []domain.Document) string {
	if len(docs) == 0 {
		return ""
	}
	answer, err := s.completer.Complete(ctx, s.prompts.Answer(question, docs))
	if err != nil {
		s.logger.Warn("answer synthesis failed", slog.Any("error", err))
		return ""
	}
	if llm.IsNoAnswer(answer) {
		return ""
	}
	return strings.TrimSpace(answer)
}

func titles(docs []domain.Document) []string {
	if len(docs) == 0 {
		return nil
	}
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Title
	}
	return out
}

// urgencyLevel accepts yes/no answers on top of the priority scale.
func urgencyLevel(v string) int {
	switch normalize(v) {
	case "yes", "oui", "y":
		return 4
	case "no", "non", "n":
		return 3
	}
	return domain.ScaleLevel(v)
}
