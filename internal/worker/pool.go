package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"smart-mail-responder/internal/apperrors"
	"smart-mail-responder/internal/classifier"
	"smart-mail-responder/internal/composer"
	"smart-mail-responder/internal/config"
	"smart-mail-responder/internal/mailbox"
	"smart-mail-responder/internal/metrics"
	"smart-mail-responder/internal/models"
	"smart-mail-responder/internal/queue"
	"smart-mail-responder/internal/repository"
)

// Options configures a Pool.
type Options struct {
	Count           int
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	ClaimTTL        time.Duration
	SendTimeout     time.Duration // bound on classify, compose and send; kept below ClaimTTL
	PollInterval    time.Duration
	RateLimit       float64 // sends per second, 0 means unlimited
	RateBurst       int
	ShutdownTimeout time.Duration
	Now             func() time.Time
}

// OptionsFromConfig maps worker configuration to pool options.
func OptionsFromConfig(cfg config.WorkerConfig) Options {
	return Options{
		Count:           cfg.Count,
		MaxAttempts:     cfg.MaxAttempts,
		BackoffBase:     cfg.BackoffBase,
		BackoffMax:      cfg.BackoffMax,
		ClaimTTL:        cfg.ClaimTTL,
		SendTimeout:     cfg.SendTimeout,
		PollInterval:    cfg.PollInterval,
		RateLimit:       cfg.RateLimit,
		RateBurst:       cfg.RateBurst,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}

func (o *Options) setDefaults() {
	if o.Count <= 0 {
		o.Count = 3
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = o.BackoffBase
	}
	if o.ClaimTTL <= 0 {
		o.ClaimTTL = 5 * time.Minute
	}
	if o.SendTimeout <= 0 || o.SendTimeout >= o.ClaimTTL {
		o.SendTimeout = o.ClaimTTL / 2
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 1
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Pool runs workers that drain the reply queue.
type Pool struct {
	queue      *queue.Queue
	repo       *repository.Repository
	mailbox    mailbox.Client
	classifier classifier.Classifier
	composer   *composer.Composer
	metrics    *metrics.Metrics
	reporter   Reporter
	limiter    *rate.Limiter
	opts       Options

	mu            sync.Mutex
	running       bool
	stopDequeue   context.CancelFunc
	cancelProcess context.CancelFunc
	wg            sync.WaitGroup
}

// NewPool creates a worker pool. metrics may be nil.
func NewPool(opts Options, q *queue.Queue, repo *repository.Repository, client mailbox.Client,
	cls classifier.Classifier, comp *composer.Composer, m *metrics.Metrics) *Pool {
	opts.setDefaults()

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return &Pool{
		queue:      q,
		repo:       repo,
		mailbox:    client,
		classifier: cls,
		composer:   comp,
		metrics:    m,
		reporter:   NewLogReporter(repo),
		limiter:    rate.NewLimiter(limit, opts.RateBurst),
		opts:       opts,
	}
}

// WithReporter replaces the failure reporter.
func (p *Pool) WithReporter(r Reporter) *Pool {
	p.reporter = r
	return p
}

// Start launches the workers. They stop dequeueing when ctx is done or Stop
// is called.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("worker pool is already running")
	}

	dequeueCtx, stopDequeue := context.WithCancel(ctx)
	processCtx, cancelProcess := context.WithCancel(context.WithoutCancel(ctx))
	p.stopDequeue = stopDequeue
	p.cancelProcess = cancelProcess
	p.running = true

	for i := 0; i < p.opts.Count; i++ {
		p.wg.Add(1)
		go p.run(dequeueCtx, processCtx, i)
	}

	logrus.WithField("workers", p.opts.Count).Info("Worker pool started")
	return nil
}

// Stop stops dequeueing and waits for in-flight jobs. Jobs still running
// after the shutdown timeout are cancelled; they release their claims and
// return to the queue.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopDequeue, cancelProcess := p.stopDequeue, p.cancelProcess
	p.mu.Unlock()

	stopDequeue()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Worker pool stopped gracefully")
	case <-time.After(p.opts.ShutdownTimeout):
		logrus.Warn("Worker pool stop timeout, cancelling in-flight jobs")
		cancelProcess()
		<-done
	}
	cancelProcess()
}

// IsRunning returns whether the workers are running
func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pool) run(dequeueCtx, processCtx context.Context, id int) {
	defer p.wg.Done()

	logrus.WithField("worker_id", id).Debug("Worker started")
	for {
		job, err := p.queue.Dequeue(dequeueCtx)
		if err != nil {
			if dequeueCtx.Err() != nil {
				logrus.WithField("worker_id", id).Debug("Worker shutting down")
				return
			}
			logrus.WithError(err).WithField("worker_id", id).Error("Failed to dequeue job")
			select {
			case <-dequeueCtx.Done():
				return
			case <-time.After(p.opts.PollInterval):
			}
			continue
		}
		p.Process(processCtx, job)
	}
}

// Process runs one dequeued job to completion: it ends done, failed, or back
// in the queue for a later attempt.
func (p *Pool) Process(ctx context.Context, job *models.ReplyJob) {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.WorkersBusy.Inc()
		defer func() {
			p.metrics.WorkersBusy.Dec()
			p.metrics.ProcessingTime.Observe(time.Since(start).Seconds())
		}()
	}

	log := logrus.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"message_id": job.MessageID,
		"attempt":    job.Attempt,
	})
	// The lease token names this delivery of the job; it owns the claim.
	owner := job.LeaseToken

	if job.MessageID == "" {
		p.fail(ctx, job, owner, false, apperrors.Fatal("job has no message id", nil), log)
		return
	}

	claim, err := p.repo.MarkInFlight(ctx, job.MessageID, owner, p.opts.ClaimTTL)
	if err != nil {
		p.handleError(ctx, job, owner, false, apperrors.Transient("claim", err), log)
		return
	}

	switch claim.Outcome {
	case repository.ClaimAlreadyReplied:
		if err := p.queue.Ack(ctx, job); err != nil {
			log.WithError(err).Warn("Failed to acknowledge duplicate job")
		}
		if p.metrics != nil {
			p.metrics.DuplicateClaims.Inc()
		}
		p.audit(ctx, job, models.LogDuplicate, "", claim.Err())
		log.WithError(claim.Err()).Info("Message already replied to, skipping")
		return
	case repository.ClaimHeldByOther:
		if err := p.queue.Defer(ctx, job, claim.Expiry, "claimed by another worker"); err != nil {
			log.WithError(err).Warn("Failed to defer job")
		}
		p.audit(ctx, job, models.LogDeferred, "", claim.Err())
		log.WithError(claim.Err()).WithField("until", claim.Expiry).Info("Message claimed by another worker, deferring")
		return
	}

	// The send must end while the claim is still ours; past its expiry a
	// redelivery may claim the message and reply again.
	replyCtx, cancel := context.WithTimeout(ctx, p.sendBudget(claim.Expiry))
	category, sentID, err := p.reply(replyCtx, job)
	expired := replyCtx.Err() == context.DeadlineExceeded
	cancel()
	if err != nil {
		if expired && ctx.Err() == nil {
			err = apperrors.Transient("reply", fmt.Errorf("not finished before the claim deadline: %v", err))
		}
		p.handleError(ctx, job, owner, true, err, log)
		return
	}

	if err := p.recordSent(ctx, job.MessageID, category, sentID); err != nil {
		// The reply went out; keep the job out of the queue so it is not sent again.
		log.WithError(err).WithField("sent_id", sentID).Error("Reply sent but not recorded")
	}
	if err := p.queue.Ack(context.WithoutCancel(ctx), job); err != nil {
		log.WithError(err).Warn("Failed to acknowledge sent job")
	}

	if p.metrics != nil {
		p.metrics.RepliesSent.Inc()
	}
	p.audit(ctx, job, models.LogSent, category, nil)
	log.WithFields(logrus.Fields{
		"category":  category,
		"sent_id":   sentID,
		"duration":  time.Since(start).String(),
		"recipient": job.Sender,
	}).Info("Reply sent")
}

// reply classifies, composes and sends. It is called with the claim held.
func (p *Pool) reply(ctx context.Context, job *models.ReplyJob) (models.Category, string, error) {
	msg := job.Message()
	if msg.ThreadID == "" {
		return "", "", apperrors.Fatal("message has no thread id", nil)
	}
	if msg.Sender == "" {
		return "", "", apperrors.Fatal("message has no sender", nil)
	}

	category, err := p.classifier.Classify(ctx, msg.Body)
	if err != nil {
		return "", "", fmt.Errorf("classification failed: %w", err)
	}
	if p.metrics != nil {
		p.metrics.Classifications.WithLabelValues(string(category)).Inc()
	}

	body, err := p.composer.Compose(category, composer.ContextFor(msg))
	if err != nil {
		return category, "", err
	}
	html, err := p.composer.RenderHTML(body)
	if err != nil {
		logrus.WithError(err).WithField("message_id", msg.ID).Warn("Failed to render HTML reply, sending text only")
		html = ""
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return category, "", err
	}

	sentID, err := p.mailbox.SendReply(ctx, mailbox.Reply{
		SourceMessageID: msg.ID,
		ThreadID:        msg.ThreadID,
		InReplyTo:       msg.InternetMessageID,
		To:              msg.Sender,
		Subject:         mailbox.ReplySubject(msg.Subject),
		Body:            body,
		HTMLBody:        html,
	})
	if err != nil {
		return category, "", err
	}
	return category, sentID, nil
}

// sendBudget returns how long a reply may take under a claim expiring at
// expiry: SendTimeout, cut short to leave a tenth of ClaimTTL for recording.
func (p *Pool) sendBudget(expiry time.Time) time.Duration {
	budget := expiry.Sub(p.opts.Now()) - p.opts.ClaimTTL/10
	if budget > p.opts.SendTimeout {
		budget = p.opts.SendTimeout
	}
	if budget < 0 {
		return 0
	}
	return budget
}

// recordSent retries store errors; the reply has already gone out.
func (p *Pool) recordSent(ctx context.Context, messageID string, category models.Category, sentID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.ClaimTTL)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = p.opts.ClaimTTL

	return backoff.Retry(func() error {
		return p.repo.RecordSent(ctx, messageID, category, sentID)
	}, backoff.WithContext(b, ctx))
}

func (p *Pool) handleError(ctx context.Context, job *models.ReplyJob, owner string, claimed bool, err error, log *logrus.Entry) {
	switch {
	case ctx.Err() != nil:
		p.interrupted(ctx, job, owner, claimed, log)
	case apperrors.IsFatal(err):
		p.fail(ctx, job, owner, claimed, err, log)
	default:
		p.retry(ctx, job, owner, claimed, err, log)
	}
}

// interrupted returns a job cancelled by shutdown to the queue without
// consuming an attempt.
func (p *Pool) interrupted(ctx context.Context, job *models.ReplyJob, owner string, claimed bool, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if claimed {
		if err := p.repo.ReleaseInFlight(ctx, job.MessageID, owner); err != nil {
			log.WithError(err).Error("Failed to release claim")
		}
	}
	if err := p.queue.Defer(ctx, job, p.opts.Now(), "interrupted by shutdown"); err != nil {
		log.WithError(err).Warn("Failed to return interrupted job")
	}
	p.audit(ctx, job, models.LogDeferred, "", errors.New("interrupted by shutdown"))
	log.Warn("Job interrupted by shutdown, returned to queue")
}

func (p *Pool) retry(ctx context.Context, job *models.ReplyJob, owner string, claimed bool, cause error, log *logrus.Entry) {
	attempt := job.Attempt + 1
	if attempt >= p.opts.MaxAttempts {
		p.fail(ctx, job, owner, claimed, fmt.Errorf("giving up after %d attempts: %w", attempt, cause), log)
		return
	}

	if claimed {
		if err := p.repo.ReleaseInFlight(ctx, job.MessageID, owner); err != nil {
			log.WithError(err).Error("Failed to release claim")
		}
	}

	delay := RetryDelay(p.opts.BackoffBase, p.opts.BackoffMax, attempt)
	if err := p.queue.Retry(ctx, job, attempt, delay, cause); err != nil {
		log.WithError(err).Warn("Failed to schedule retry")
		return
	}

	if p.metrics != nil {
		p.metrics.ReplyRetries.Inc()
	}
	p.audit(ctx, job, models.LogRetry, "", cause)
	log.WithError(cause).WithField("retry_in", delay.String()).Warn("Transient failure, retrying")
}

func (p *Pool) fail(ctx context.Context, job *models.ReplyJob, owner string, claimed bool, cause error, log *logrus.Entry) {
	attempt := job.Attempt + 1

	if claimed {
		if err := p.repo.MarkFailed(ctx, job.MessageID, owner, cause.Error()); err != nil {
			log.WithError(err).Error("Failed to mark reply as failed")
		}
	}
	if err := p.queue.Fail(ctx, job, attempt, cause); err != nil {
		log.WithError(err).Warn("Failed to mark job as failed")
		return
	}

	if p.metrics != nil {
		p.metrics.ReplyFailures.Inc()
	}
	p.reporter.Report(ctx, *job, cause)
}

func (p *Pool) audit(ctx context.Context, job *models.ReplyJob, status string, category models.Category, cause error) {
	entry := models.ReplyLog{
		MessageID: job.MessageID,
		JobID:     job.ID,
		Status:    status,
		Category:  category,
		Attempt:   job.Attempt,
	}
	if cause != nil {
		entry.ErrorMsg = cause.Error()
	}
	if err := p.repo.LogReplyAttempt(context.WithoutCancel(ctx), entry); err != nil {
		logrus.WithError(err).WithField("message_id", job.MessageID).Warn("Failed to write reply log")
	}
}

// RetryDelay returns base * 2^(attempt-1), capped at limit.
func RetryDelay(base, limit time.Duration, attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = limit
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := base
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
